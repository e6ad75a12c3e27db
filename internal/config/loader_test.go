package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
display:
  width: 720
  height: 1280
  min_refresh_rate: 48
  max_refresh_rate: 90
state:
  path: ./test.db
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Display.Width != 720 || cfg.Display.Height != 1280 {
					t.Errorf("panel = %dx%d, want 720x1280", cfg.Display.Width, cfg.Display.Height)
				}
				if cfg.Display.MinRate != 48 || cfg.Display.MaxRate != 90 {
					t.Error("refresh rates not parsed")
				}
				if cfg.State.Path != "./test.db" {
					t.Error("state.path not parsed")
				}
				// Check defaults applied
				if cfg.Display.ID != "primary" || cfg.Display.HWPlanes != 4 {
					t.Error("display defaults not applied")
				}
				if cfg.Display.IdleTimeout != 2*time.Second {
					t.Errorf("idle_timeout = %v, want default 2s", cfg.Display.IdleTimeout)
				}
			},
		},
		{
			name: "empty file uses defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "hwcd" {
					t.Errorf("service.name = %q, want hwcd", cfg.Service.Name)
				}
			},
		},
		{
			name: "properties and scene",
			yaml: `
properties:
  persist.metadata_dynfps.disable: 1
properties_file: props.yaml
display:
  idle_timeout: 500ms
  boot_marker: booted
scene:
  layers:
    - name: video
      frame: {left: 0, top: 0, right: 1080, bottom: 608}
      update_every: 2
      frame_rate: 24
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Properties["persist.metadata_dynfps.disable"] != 1 {
					t.Error("properties not parsed")
				}
				if !filepath.IsAbs(cfg.PropertiesFile) || filepath.Base(cfg.PropertiesFile) != "props.yaml" {
					t.Errorf("properties_file = %q, want absolute path", cfg.PropertiesFile)
				}
				if !filepath.IsAbs(cfg.Display.BootMarker) {
					t.Errorf("boot_marker = %q, want absolute path", cfg.Display.BootMarker)
				}
				if cfg.Display.IdleTimeout != 500*time.Millisecond {
					t.Errorf("idle_timeout = %v", cfg.Display.IdleTimeout)
				}
				if len(cfg.Scene.Layers) != 1 || cfg.Scene.Layers[0].Frame.Bottom != 608 {
					t.Errorf("scene = %+v", cfg.Scene)
				}
			},
		},
		{
			name: "env interpolation in api key",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${HWCD_TEST_KEY}
`,
			env: map[string]string{"HWCD_TEST_KEY": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Auth.APIKey != "s3cret" {
					t.Errorf("api_key = %q, want interpolated value", cfg.API.Auth.APIKey)
				}
			},
		},
		{
			name: "unresolved env var",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${HWCD_TEST_UNSET_KEY}
`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			yaml:    "display:\n  refresh: 60\n",
			wantErr: true,
		},
		{
			name:    "max below min",
			yaml:    "display:\n  min_refresh_rate: 60\n  max_refresh_rate: 30\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			yaml:    "display: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			path := writeFile(t, tmpDir, "config.yaml", tt.yaml)

			cfg, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "config.yaml", "service:\n  log_level: debug\n")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.Service.LogLevel)
	}
	if cfg.SourcePath != filepath.Join(tmpDir, "config.yaml") {
		t.Errorf("SourcePath = %q", cfg.SourcePath)
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load() should fail for a directory without config.yaml")
	}
}

func TestLoadVerifiesChecksums(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "config.yaml", "properties_file: properties.yaml\n")
	writeFile(t, tmpDir, "properties.yaml", "sdm.fb_size_width: 720\n")

	lock(t, tmpDir, lockedFiles)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() on locked dir failed: %v", err)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", cfg.Warnings)
	}

	// Operational drift is tolerated.
	writeFile(t, tmpDir, "properties.yaml", "sdm.fb_size_width: 1080\n")
	cfg, err = Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() after properties edit failed: %v", err)
	}
	if len(cfg.Warnings) != 1 {
		t.Errorf("len(Warnings) = %d, want 1", len(cfg.Warnings))
	}

	writeFile(t, tmpDir, "config.yaml", "properties_file: properties.yaml\nservice:\n  log_level: debug\n")
	_, err = Load(tmpDir)
	if err == nil || !strings.Contains(err.Error(), "integrity") {
		t.Fatalf("Load() error = %v, want integrity failure", err)
	}

	cfg, err = LoadUnverified(tmpDir)
	if err != nil {
		t.Fatalf("LoadUnverified() failed: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Service.LogLevel)
	}
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple replacement",
			input: "path: ${HWCD_TEST_HOME}/data",
			env:   map[string]string{"HWCD_TEST_HOME": "/users/test"},
			want:  "path: /users/test/data",
		},
		{
			name:  "multiple vars",
			input: "${HWCD_A}:${HWCD_B}",
			env: map[string]string{
				"HWCD_A": "admin",
				"HWCD_B": "secret",
			},
			want: "admin:secret",
		},
		{
			name:  "undefined var unchanged",
			input: "key: ${HWCD_UNDEFINED}",
			want:  "key: ${HWCD_UNDEFINED}",
		},
		{
			name:  "no vars",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got := interpolateEnv(tt.input)
			if got != tt.want {
				t.Errorf("interpolateEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "invalid log level", mutate: func(c *Config) { c.Service.LogLevel = "trace" }, wantErr: true},
		{name: "missing state path", mutate: func(c *Config) { c.State.Path = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Display.Driver = "drm" }, wantErr: true},
		{name: "zero width", mutate: func(c *Config) { c.Display.Width = 0 }, wantErr: true},
		{name: "zero min rate", mutate: func(c *Config) { c.Display.MinRate = 0 }, wantErr: true},
		{name: "fixed rate", mutate: func(c *Config) { c.Display.MinRate, c.Display.MaxRate = 60, 60 }},
		{name: "no hw planes", mutate: func(c *Config) { c.Display.HWPlanes = 0 }},
		{name: "negative hw planes", mutate: func(c *Config) { c.Display.HWPlanes = -1 }, wantErr: true},
		{name: "zero max layers", mutate: func(c *Config) { c.Display.MaxLayers = 0 }, wantErr: true},
		{
			name: "empty scene layer",
			mutate: func(c *Config) {
				c.Scene.Layers = []SceneLayer{{Name: "bad"}}
			},
			wantErr: true,
		},
		{
			name:    "api without auth",
			mutate:  func(c *Config) { c.API.Enabled = true },
			wantErr: true,
		},
		{
			name: "api token without scopes",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Auth.Tokens = []APIToken{{Token: "t"}}
			},
			wantErr: true,
		},
		{
			name: "api scoped token",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Auth.Tokens = []APIToken{{Token: "t", Scopes: []string{"display:ro"}}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDiscoverConfigDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HWCD_CONFIG_DIR", dir)

	got, err := DiscoverConfigDir()
	if err != nil {
		t.Fatalf("DiscoverConfigDir() failed: %v", err)
	}
	if got != dir {
		t.Errorf("DiscoverConfigDir() = %q, want %q", got, dir)
	}

	if _, err := os.Stat(got); err != nil {
		t.Fatal(err)
	}
}
