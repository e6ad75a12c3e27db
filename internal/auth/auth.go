// Package auth turns API bearer tokens into scoped principals.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scopes understood by the display API.
const (
	ScopeDisplayRead  = "display:ro"
	ScopeDisplayWrite = "display:rw"
	ScopeEventsRead   = "events:ro"
	ScopeMetricsRead  = "metrics:ro"
	ScopeAdmin        = "*"
)

// ScopeInfo documents one scope. Granting it also grants Implies.
type ScopeInfo struct {
	Name        string
	Description string
	Implies     []string
}

// Catalog is every scope a token may carry.
var Catalog = []ScopeInfo{
	{Name: ScopeAdmin, Description: "Full administrative access (all scopes)"},
	{Name: ScopeDisplayRead, Description: "Read session status, history and properties"},
	{
		Name:        ScopeDisplayWrite,
		Description: "Dispatch operations, refresh, secure and pause",
		Implies:     []string{ScopeDisplayRead},
	},
	{Name: ScopeEventsRead, Description: "Access to the real-time event stream (SSE)"},
	{Name: ScopeMetricsRead, Description: "Scrape Prometheus metrics"},
}

// Known reports whether scope appears in Catalog.
func Known(scope string) bool {
	_, ok := lookup(scope)
	return ok
}

func lookup(scope string) (ScopeInfo, bool) {
	for _, info := range Catalog {
		if info.Name == scope {
			return info, true
		}
	}
	return ScopeInfo{}, false
}

// Header errors returned by BearerToken.
var (
	ErrNoCredentials = errors.New("missing Authorization header")
	ErrNotBearer     = errors.New("invalid Authorization header format")
	ErrEmptyToken    = errors.New("missing API key")
)

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoCredentials
	}
	rest, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", ErrNotBearer
	}
	token := strings.TrimSpace(rest)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is the caller behind an accepted token.
type Principal struct {
	Admin  bool
	Scopes map[string]struct{}
}

// Allows reports whether p holds at least one of required. An empty
// requirement is always met.
func (p Principal) Allows(required ...string) bool {
	if len(required) == 0 || p.Admin {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

type principalKey struct{}

// NewContext attaches p to ctx.
func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by NewContext.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type credential struct {
	token     string
	principal Principal
}

// Keyring holds the tokens the API accepts. The admin key, if set, grants
// every scope.
type Keyring struct {
	admin  string
	tokens []credential
}

// NewKeyring resolves scope implications once so Verify only compares tokens.
func NewKeyring(adminKey string, tokens []TokenConfig) *Keyring {
	k := &Keyring{admin: adminKey, tokens: make([]credential, 0, len(tokens))}
	for _, t := range tokens {
		k.tokens = append(k.tokens, credential{token: t.Token, principal: grant(t.Scopes)})
	}
	return k
}

// Verify returns the principal for presented. Every configured token is
// compared so the time taken does not depend on which one matched.
func (k *Keyring) Verify(presented string) (Principal, bool) {
	if tokenEqual(presented, k.admin) {
		return Principal{Admin: true}, true
	}
	var (
		found Principal
		ok    bool
	)
	for _, c := range k.tokens {
		if tokenEqual(presented, c.token) && !ok {
			found, ok = c.principal, true
		}
	}
	return found, ok
}

func tokenEqual(presented, want string) bool {
	if presented == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(want)) == 1
}

func grant(scopes []string) Principal {
	p := Principal{Scopes: make(map[string]struct{}, len(scopes))}
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if s == ScopeAdmin {
			p.Admin = true
		}
		p.Scopes[s] = struct{}{}
		if info, ok := lookup(s); ok {
			for _, implied := range info.Implies {
				p.Scopes[implied] = struct{}{}
			}
		}
	}
	return p
}
