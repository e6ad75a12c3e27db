package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer", header: "Bearer display-key", want: "display-key"},
		{name: "padded", header: "Bearer   display-key  ", want: "display-key"},
		{name: "missing", header: "", wantErr: ErrNoCredentials},
		{name: "basic", header: "Basic abc", wantErr: ErrNotBearer},
		{name: "empty token", header: "Bearer   ", wantErr: ErrEmptyToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "http://hwcd.test/v1/display", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, err := BearerToken(req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("BearerToken() error = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("BearerToken() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAdminKeyAllowsEverything(t *testing.T) {
	t.Parallel()

	keys := NewKeyring("root-key", nil)
	p, ok := keys.Verify("root-key")
	if !ok || !p.Admin {
		t.Fatalf("Verify(root-key) = %+v, %v", p, ok)
	}
	for _, info := range Catalog {
		if !p.Allows(info.Name) {
			t.Errorf("admin denied %s", info.Name)
		}
	}

	if _, ok := NewKeyring("", nil).Verify(""); ok {
		t.Fatal("empty token must never verify")
	}
}

func TestScopedTokens(t *testing.T) {
	t.Parallel()

	keys := NewKeyring("root-key", []TokenConfig{
		{Token: "panel-viewer", Scopes: []string{ScopeDisplayRead, " ", ScopeEventsRead}},
		{Token: "panel-operator", Scopes: []string{ScopeDisplayWrite}},
		{Token: "scraper", Scopes: []string{ScopeMetricsRead}},
	})

	cases := []struct {
		token   string
		allowed []string
		denied  []string
	}{
		{
			token:   "panel-viewer",
			allowed: []string{ScopeDisplayRead, ScopeEventsRead},
			denied:  []string{ScopeDisplayWrite, ScopeMetricsRead},
		},
		{
			token:   "panel-operator",
			allowed: []string{ScopeDisplayWrite, ScopeDisplayRead},
			denied:  []string{ScopeEventsRead, ScopeMetricsRead},
		},
		{
			token:   "scraper",
			allowed: []string{ScopeMetricsRead},
			denied:  []string{ScopeDisplayRead},
		},
	}

	for _, tc := range cases {
		p, ok := keys.Verify(tc.token)
		if !ok {
			t.Fatalf("%s did not verify", tc.token)
		}
		if p.Admin {
			t.Errorf("%s verified as admin", tc.token)
		}
		if _, blank := p.Scopes[""]; blank {
			t.Errorf("%s kept a blank scope", tc.token)
		}
		for _, s := range tc.allowed {
			if !p.Allows(s) {
				t.Errorf("%s denied %s", tc.token, s)
			}
		}
		for _, s := range tc.denied {
			if p.Allows(s) {
				t.Errorf("%s allowed %s", tc.token, s)
			}
		}
	}

	if _, ok := keys.Verify("stranger"); ok {
		t.Fatal("unknown token verified")
	}
	if !(Principal{}).Allows() {
		t.Fatal("no required scopes should always pass")
	}
}

func TestWildcardTokenIsAdmin(t *testing.T) {
	t.Parallel()

	p, ok := NewKeyring("", []TokenConfig{{Token: "ops", Scopes: []string{ScopeAdmin}}}).Verify("ops")
	if !ok || !p.Admin || !p.Allows(ScopeDisplayWrite) {
		t.Fatalf("Verify(ops) = %+v, %v", p, ok)
	}
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	for _, info := range Catalog {
		if !Known(info.Name) || info.Description == "" {
			t.Errorf("catalog entry %+v", info)
		}
		for _, implied := range info.Implies {
			if !Known(implied) {
				t.Errorf("%s implies unknown scope %s", info.Name, implied)
			}
		}
	}
	if Known("jobs:rw") {
		t.Error("Known(jobs:rw) = true")
	}
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context carried a principal")
	}
	ctx := NewContext(context.Background(), Principal{Admin: true})
	if p, ok := FromContext(ctx); !ok || !p.Admin {
		t.Fatalf("FromContext() = %+v, %v", p, ok)
	}
}
