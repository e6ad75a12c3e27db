package config

import (
	"time"

	"github.com/mattjoyce/hwcd/internal/layer"
)

// Config represents the complete hwcd configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Display DisplayConfig `yaml:"display"`
	// Properties seeds the property store. PropertiesFile, when set, is read
	// on top and can be reloaded at runtime.
	Properties     map[string]int `yaml:"properties,omitempty"`
	PropertiesFile string         `yaml:"properties_file,omitempty"`
	State          StateConfig    `yaml:"state"`
	API            APIConfig      `yaml:"api,omitempty"`
	Scene          SceneConfig    `yaml:"scene,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
	// Warnings collects non-fatal integrity findings from Load.
	Warnings []string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	PIDFile  string `yaml:"pid_file,omitempty"`
}

// DisplayConfig describes the panel and the composition limits.
type DisplayConfig struct {
	ID        string `yaml:"id"`
	Driver    string `yaml:"driver"`
	Width     uint32 `yaml:"width"`
	Height    uint32 `yaml:"height"`
	MinRate   uint32 `yaml:"min_refresh_rate"`
	MaxRate   uint32 `yaml:"max_refresh_rate"`
	HWPlanes  int    `yaml:"hw_planes"`
	MaxLayers int    `yaml:"max_layers"`
	// IdleTimeout triggers an out-of-band refresh once content stops updating.
	// Zero disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// BootMarker is a file whose presence means the boot animation finished.
	// Empty means boot is already complete.
	BootMarker string `yaml:"boot_marker,omitempty"`
	// PerfLock enables the CPU performance hint.
	PerfLock bool `yaml:"perf_lock"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// SceneConfig drives the synthetic frame source used with the simulated driver.
type SceneConfig struct {
	Layers []SceneLayer `yaml:"layers"`
}

// SceneLayer is one synthetic layer.
type SceneLayer struct {
	Name  string     `yaml:"name"`
	Frame layer.Rect `yaml:"frame"`
	// UpdateEvery is the number of frames between buffer changes; 0 is static.
	UpdateEvery int    `yaml:"update_every"`
	FrameRate   uint32 `yaml:"frame_rate,omitempty"`
	Skip        bool   `yaml:"skip,omitempty"`
	Hidden      bool   `yaml:"hidden,omitempty"`
	Secure      bool   `yaml:"secure,omitempty"`
}

// Defaults returns a Config for a 1080x1920 panel on the simulated driver.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "hwcd",
			LogLevel: "info",
		},
		Display: DisplayConfig{
			ID:          "primary",
			Driver:      "sim",
			Width:       1080,
			Height:      1920,
			MinRate:     30,
			MaxRate:     60,
			HWPlanes:    4,
			MaxLayers:   32,
			IdleTimeout: 2 * time.Second,
		},
		Properties: make(map[string]int),
		State: StateConfig{
			Path: "./data/hwcd.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
