package config

import (
	"fmt"
	"maps"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Properties is the integer system-property store the display reads its
// tunables from (persist.metadata_dynfps.disable, sdm.fb_size_width, ...).
// Values come from the properties section of config.yaml, overlaid with the
// optional properties file, which can be reloaded while running.
type Properties struct {
	mu     sync.RWMutex
	base   map[string]int
	values map[string]int
	path   string
}

// NewProperties seeds a store from cfg and loads cfg.PropertiesFile if set.
func NewProperties(cfg *Config) (*Properties, error) {
	p := &Properties{
		base:   maps.Clone(cfg.Properties),
		values: maps.Clone(cfg.Properties),
		path:   cfg.PropertiesFile,
	}
	if p.base == nil {
		p.base = make(map[string]int)
		p.values = make(map[string]int)
	}
	if p.path != "" {
		if err := p.Reload(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// GetProperty returns the value for key and whether it is set.
func (p *Properties) GetProperty(key string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Set overrides a single property until the next Reload.
func (p *Properties) Set(key string, value int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Reload re-reads the properties file on top of the config values. A missing
// file leaves only the config values.
func (p *Properties) Reload() error {
	values := maps.Clone(p.base)
	if p.path != "" {
		data, err := os.ReadFile(p.path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return fmt.Errorf("failed to read properties file: %w", err)
		default:
			var file map[string]int
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse properties file %s: %w", p.path, err)
			}
			maps.Copy(values, file)
		}
	}

	p.mu.Lock()
	p.values = values
	p.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current values.
func (p *Properties) Snapshot() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.values)
}
