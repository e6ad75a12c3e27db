package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Tier says how strictly a config file is verified.
type Tier int

const (
	// TierOperational files only warn on mismatch.
	TierOperational Tier = iota
	// TierHighSecurity files fail verification on mismatch.
	TierHighSecurity
)

func (t Tier) String() string {
	if t == TierHighSecurity {
		return "high-security"
	}
	return "operational"
}

// IntegrityResult collects the outcome of a checksum verification.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// ConfigFiles returns the files of cfg that belong in the lock,
// relative to the config directory. config.yaml carries API tokens and is high
// security; a properties file is operational since it is meant to be edited
// while the daemon runs.
func ConfigFiles(cfg *Config) map[string]Tier {
	files := map[string]Tier{"config.yaml": TierHighSecurity}
	if cfg == nil || cfg.PropertiesFile == "" || cfg.SourcePath == "" {
		return files
	}
	rel, err := filepath.Rel(filepath.Dir(cfg.SourcePath), cfg.PropertiesFile)
	if err == nil && filepath.IsLocal(rel) {
		files[rel] = TierOperational
	}
	return files
}

// VerifyIntegrity checks files against the lock in configDir. High-security
// mismatches are errors; operational mismatches and tier changes are warnings.
func VerifyIntegrity(configDir string, files map[string]Tier) (*IntegrityResult, error) {
	result := &IntegrityResult{Passed: true}

	manifest, err := ReadManifest(configDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s in %s; run 'hwcd config lock' to enable integrity verification",
				LockFile, configDir))
		return result, nil
	}

	fail := func(tier Tier, msg string) {
		if tier == TierHighSecurity {
			result.Passed = false
			result.Errors = append(result.Errors, msg)
			return
		}
		result.Warnings = append(result.Warnings, msg)
	}

	for name, tier := range files {
		path := filepath.Join(configDir, name)
		locked, inManifest := manifest.Files[name]

		if _, err := os.Stat(path); os.IsNotExist(err) {
			if inManifest {
				fail(tier, fmt.Sprintf("%s is locked but missing from disk", name))
			}
			continue
		}
		if !inManifest {
			fail(tier, fmt.Sprintf("%s is not in %s", name, LockFile))
			continue
		}
		if err := checkDigest(name, path, locked.BLAKE3); err != nil {
			fail(tier, err.Error())
			continue
		}
		if locked.Tier != tier.String() {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s was locked as %s and is now %s; re-run 'hwcd config lock'",
					name, locked.Tier, tier))
		}
	}

	return result, nil
}
