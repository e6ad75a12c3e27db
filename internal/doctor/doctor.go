// Package doctor validates hwcd configuration beyond what Load enforces:
// cross-field consistency, property keys, token scopes and file layout.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/hwcd/internal/auth"
	"github.com/mattjoyce/hwcd/internal/config"
	"github.com/mattjoyce/hwcd/internal/cpuhint"
	"github.com/mattjoyce/hwcd/internal/display"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// knownProperties are the keys read by the session and the CPU hint.
var knownProperties = map[string]bool{
	display.PropDisableMetadataDynFPS: true,
	display.PropFBWidth:               true,
	display.PropFBHeight:              true,
	cpuhint.WindowProperty:            true,
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateState(r)
	d.validateDisplay(r)
	d.validateProperties(r)
	d.validateScene(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnDeprecatedSyntax(r)
	d.reportIntegrity(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateState checks that the database directory can be created.
func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	dir := filepath.Dir(d.cfg.State.Path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.addWarning(r, "state", "state.path", fmt.Sprintf("directory %q does not exist yet; it will be created", dir))
	case err != nil:
		d.addError(r, "state", "state.path", err.Error())
	case !info.IsDir():
		d.addError(r, "state", "state.path", fmt.Sprintf("%q is not a directory", dir))
	}
}

// validateDisplay checks panel limits against each other.
func (d *Doctor) validateDisplay(r *Result) {
	dc := d.cfg.Display

	if dc.HWPlanes == 0 {
		d.addWarning(r, "display", "display.hw_planes",
			"no hardware planes; every frame is composed by the GPU")
	}
	if dc.HWPlanes > dc.MaxLayers+1 {
		d.addWarning(r, "display", "display.hw_planes",
			fmt.Sprintf("hw_planes (%d) exceeds max_layers+1 (%d); extra planes are never used", dc.HWPlanes, dc.MaxLayers+1))
	}

	if dc.IdleTimeout > 0 && dc.MinRate > 0 {
		if frame := time.Second / time.Duration(dc.MinRate); dc.IdleTimeout < frame {
			d.addWarning(r, "display", "display.idle_timeout",
				fmt.Sprintf("idle_timeout %s is shorter than one frame at %d Hz", dc.IdleTimeout, dc.MinRate))
		}
	}

	if dc.BootMarker != "" {
		dir := filepath.Dir(dc.BootMarker)
		if _, err := os.Stat(dir); err != nil {
			d.addWarning(r, "display", "display.boot_marker",
				fmt.Sprintf("directory %q is not accessible; boot will never be reported complete", dir))
		}
	}
}

// validateProperties resolves the property store and checks its keys.
func (d *Doctor) validateProperties(r *Result) {
	if d.cfg.PropertiesFile != "" {
		if _, err := os.Stat(d.cfg.PropertiesFile); errors.Is(err, os.ErrNotExist) {
			d.addWarning(r, "properties", "properties_file",
				fmt.Sprintf("%q does not exist; only inline properties apply", d.cfg.PropertiesFile))
		}
	}

	props, err := config.NewProperties(d.cfg)
	if err != nil {
		d.addError(r, "properties", "properties_file", err.Error())
		return
	}
	values := props.Snapshot()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !knownProperties[k] {
			d.addWarning(r, "properties", "properties."+k, fmt.Sprintf("property %q is not used by hwcd", k))
		}
	}

	w, hasW := values[display.PropFBWidth]
	h, hasH := values[display.PropFBHeight]
	if hasW != hasH || (hasW && (w <= 0 || h <= 0)) {
		d.addWarning(r, "properties", display.PropFBWidth,
			"framebuffer override needs both width and height > 0; panel size is used")
	}

	if d.cfg.Display.PerfLock {
		if n, ok := values[cpuhint.WindowProperty]; !ok || n <= 0 {
			d.addWarning(r, "properties", cpuhint.WindowProperty,
				"display.perf_lock is set but the hint window is not positive; the CPU hint stays off")
		}
	}
}

// validateScene checks synthetic layers against the panel.
func (d *Doctor) validateScene(r *Result) {
	dc := d.cfg.Display
	if len(d.cfg.Scene.Layers) == 0 {
		d.addWarning(r, "scene", "scene.layers", "no scene layers; only the framebuffer target is composed")
		return
	}

	seen := make(map[string]int)
	for i, l := range d.cfg.Scene.Layers {
		field := fmt.Sprintf("scene.layers[%d]", i)
		if l.Name != "" {
			if prev, ok := seen[l.Name]; ok {
				d.addWarning(r, "scene", field+".name",
					fmt.Sprintf("layer name %q duplicates scene.layers[%d]", l.Name, prev))
			}
			seen[l.Name] = i
		}
		f := l.Frame
		if f.Left < 0 || f.Top < 0 || f.Right > int32(dc.Width) || f.Bottom > int32(dc.Height) {
			d.addWarning(r, "scene", field+".frame",
				fmt.Sprintf("frame extends beyond the %dx%d panel", dc.Width, dc.Height))
		}
		if l.FrameRate != 0 && (l.FrameRate < dc.MinRate || l.FrameRate > dc.MaxRate) {
			d.addWarning(r, "scene", field+".frame_rate",
				fmt.Sprintf("frame_rate %d is outside the panel range %d..%d Hz", l.FrameRate, dc.MinRate, dc.MaxRate))
		}
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
	if host, _, ok := strings.Cut(d.cfg.API.Listen, ":"); ok && (host == "" || host == "0.0.0.0") {
		d.addWarning(r, "api", "api.listen", "API listens on all interfaces")
	}
}

// validateTokenScopes checks that every scope is one the API understands.
func (d *Doctor) validateTokenScopes(r *Result) {
	seen := make(map[string]int)
	for i, token := range d.cfg.API.Auth.Tokens {
		if prev, ok := seen[token.Token]; ok && token.Token != "" {
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].token", i),
				fmt.Sprintf("token duplicates api.auth.tokens[%d]", prev))
		}
		seen[token.Token] = i

		for j, scope := range token.Scopes {
			if !auth.Known(scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q", scope))
			}
		}
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

// reportIntegrity surfaces the non-fatal findings Load collected.
func (d *Doctor) reportIntegrity(r *Result) {
	for _, w := range d.cfg.Warnings {
		d.addWarning(r, "integrity", "", w)
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
	} else {
		fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
