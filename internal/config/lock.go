package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// LockFile is written by 'hwcd config lock' next to config.yaml.
const LockFile = "hwcd.lock"

const lockVersion = 1

// Manifest is the parsed form of a LockFile.
type Manifest struct {
	Version  int                    `yaml:"version"`
	LockedAt time.Time              `yaml:"locked_at"`
	Files    map[string]LockedDigest `yaml:"files"`
}

// LockedDigest pins one config file.
type LockedDigest struct {
	BLAKE3 string `yaml:"blake3"`
	Tier   string `yaml:"tier"`
}

// LockedFile is one row of a LockReport. Absent files are listed without a
// digest and are left out of the manifest.
type LockedFile struct {
	Name    string
	Path    string
	Tier    Tier
	Present bool
	Digest  string
}

// LockReport describes what Lock did, or would do on a dry run.
type LockReport struct {
	Dir          string
	ManifestPath string
	Written      bool
	Files        []LockedFile
}

// Lock pins the current content of files in dir. Files are processed in name
// order so the report and the manifest are stable.
func Lock(dir string, files map[string]Tier, dryRun bool) (*LockReport, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	m := Manifest{
		Version:  lockVersion,
		LockedAt: time.Now().UTC().Truncate(time.Second),
		Files:    make(map[string]LockedDigest, len(names)),
	}
	report := &LockReport{
		Dir:          dir,
		ManifestPath: filepath.Join(dir, LockFile),
		Files:        make([]LockedFile, 0, len(names)),
	}

	for _, name := range names {
		row := LockedFile{Name: name, Path: filepath.Join(dir, name), Tier: files[name]}
		digest, err := digestFile(row.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("lock %s: %w", name, err)
		default:
			row.Present = true
			row.Digest = digest
			m.Files[name] = LockedDigest{BLAKE3: digest, Tier: row.Tier.String()}
		}
		report.Files = append(report.Files, row)
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", LockFile, err)
	}
	// config.yaml holds API tokens; the lock that vouches for it stays private.
	if err := os.WriteFile(report.ManifestPath, data, 0600); err != nil {
		return nil, fmt.Errorf("write %s: %w", LockFile, err)
	}
	report.Written = true
	return report, nil
}

// ReadManifest parses the LockFile in dir. A missing lock is reported with an
// error wrapping os.ErrNotExist.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, LockFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no %s in %s (run 'hwcd config lock'): %w", LockFile, dir, err)
		}
		return nil, fmt.Errorf("read %s: %w", LockFile, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", LockFile, err)
	}
	if m.Version != lockVersion {
		return nil, fmt.Errorf("%s version %d not supported", LockFile, m.Version)
	}
	return &m, nil
}

func digestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// checkDigest reports whether the file at path still matches a locked digest.
func checkDigest(name, path, want string) error {
	got, err := digestFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("%s changed since it was locked", name)
	}
	return nil
}
