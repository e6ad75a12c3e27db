package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file, or from config.yaml inside
// a directory. Values not present in the file keep their Defaults.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadUnverified is Load without the checksum manifest check. config lock
// uses it to re-authorize files that were edited on purpose.
func LoadUnverified(configPath string) (*Config, error) {
	return load(configPath, false)
}

func load(configPath string, verify bool) (*Config, error) {
	// Resolve to absolute path for consistent relative path resolution
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and leaves every default in place.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	configDir := filepath.Dir(absPath)
	if cfg.PropertiesFile != "" && !filepath.IsAbs(cfg.PropertiesFile) {
		cfg.PropertiesFile = filepath.Join(configDir, cfg.PropertiesFile)
	}
	if cfg.Display.BootMarker != "" && !filepath.IsAbs(cfg.Display.BootMarker) {
		cfg.Display.BootMarker = filepath.Join(configDir, cfg.Display.BootMarker)
	}
	if cfg.Properties == nil {
		cfg.Properties = make(map[string]int)
	}

	// Only enforce integrity when the directory has been locked.
	if _, err := os.Stat(filepath.Join(configDir, LockFile)); verify && err == nil {
		result, err := VerifyIntegrity(configDir, ConfigFiles(cfg))
		if err != nil {
			return nil, fmt.Errorf("integrity check failed: %w", err)
		}
		if !result.Passed {
			return nil, fmt.Errorf("integrity check failed: %s", strings.Join(result.Errors, "; "))
		}
		cfg.Warnings = append(cfg.Warnings, result.Warnings...)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $HWCD_CONFIG_DIR, ~/.config/hwcd, /etc/hwcd, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("HWCD_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "hwcd")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	if _, err := os.Stat("/etc/hwcd"); err == nil {
		return "/etc/hwcd", nil
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return ".", nil
	}

	return "", fmt.Errorf("no config found (checked $HWCD_CONFIG_DIR, ~/.config/hwcd, /etc/hwcd, ./config.yaml)")
}

// interpolateEnv replaces ${VAR} with environment variable values.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	d := cfg.Display
	if d.ID == "" {
		return fmt.Errorf("display.id is required")
	}
	if d.Driver != "sim" {
		return fmt.Errorf("display.driver %q is not supported (available: sim)", d.Driver)
	}
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("display.width and display.height must be positive")
	}
	if d.MinRate == 0 {
		return fmt.Errorf("display.min_refresh_rate must be positive")
	}
	if d.MaxRate < d.MinRate {
		return fmt.Errorf("display.max_refresh_rate (%d) must be >= min_refresh_rate (%d)", d.MaxRate, d.MinRate)
	}
	if d.HWPlanes < 0 {
		return fmt.Errorf("display.hw_planes must be >= 0")
	}
	if d.MaxLayers <= 0 {
		return fmt.Errorf("display.max_layers must be positive")
	}
	if d.IdleTimeout < 0 {
		return fmt.Errorf("display.idle_timeout must be >= 0")
	}

	for i, l := range cfg.Scene.Layers {
		if l.Frame.Empty() {
			return fmt.Errorf("scene.layers[%d] (%s): frame must have positive size", i, l.Name)
		}
		if l.UpdateEvery < 0 {
			return fmt.Errorf("scene.layers[%d] (%s): update_every must be >= 0", i, l.Name)
		}
	}
	if len(cfg.Scene.Layers) > d.MaxLayers {
		return fmt.Errorf("scene has %d layers, display.max_layers is %d", len(cfg.Scene.Layers), d.MaxLayers)
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth.api_key or api.auth.tokens is required when api.enabled is true")
		}
		if err := checkUnresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := checkUnresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}

func checkUnresolved(field, v string) error {
	if matches := envVarPattern.FindStringSubmatch(v); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
