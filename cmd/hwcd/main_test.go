package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/hwcd/internal/config"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

// writeConfigDir creates a config directory whose state lives inside it.
func writeConfigDir(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := "state:\n  path: " + filepath.Join(dir, "hwcd.db") + "\n" +
		"scene:\n  layers:\n    - name: wallpaper\n      frame: {left: 0, top: 0, right: 1080, bottom: 1920}\n" +
		extra
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"help"})
	})
	if code != 0 || !strings.Contains(stdout, "system start") {
		t.Fatalf("unexpected help (%d): %s", code, stdout)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "help"})
	})
	if code != 0 || !strings.Contains(stdout, "check, lock, show") {
		t.Fatalf("unexpected config help (%d): %s", code, stdout)
	}
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-01-02T03:04:05+10:00")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("decode version JSON: %v\n%s", err, stdout)
	}
	if info.Version != "1.2.3" || info.Commit != "0123456789ab" || info.BuildTime != "2026-01-01T17:04:05Z" {
		t.Fatalf("unexpected version info: %+v", info)
	}
}

func TestRunVersionRejectsArgs(t *testing.T) {
	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"extra"})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

func TestConfigLockThenCheck(t *testing.T) {
	dir := writeConfigDir(t, "")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", dir, "-v"})
	})
	if code != 0 {
		t.Fatalf("lock failed (%d): %s", code, stderr)
	}
	if !strings.Contains(stdout, "HASH [high-security] config.yaml") {
		t.Fatalf("expected config.yaml hash in output: %s", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, config.LockFile)); err != nil {
		t.Fatalf("lock not written: %v", err)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("check failed (%d): %s %s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("unexpected check output: %s", stdout)
	}

	// Tamper with the locked file; check must now fail on load.
	f, err := os.OpenFile(filepath.Join(dir, "config.yaml"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("# edited\n")
	_ = f.Close()

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", dir})
	})
	if code != 1 || !strings.Contains(stderr, "integrity") {
		t.Fatalf("expected integrity failure, got %d: %s", code, stderr)
	}

	// Re-locking authorizes the edit.
	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("re-lock failed: %d", code)
	}
}

func TestConfigLockDryRun(t *testing.T) {
	dir := writeConfigDir(t, "")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", dir, "--dry-run"})
	})
	if code != 0 || !strings.Contains(stdout, "Dry run completed") {
		t.Fatalf("unexpected dry run (%d): %s", code, stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, config.LockFile)); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote the lock: %v", err)
	}
}

func TestConfigCheckStrict(t *testing.T) {
	dir := writeConfigDir(t, "properties:\n  sdm.unknown_knob: 1\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", dir, "--json"})
	})
	if code != 0 {
		t.Fatalf("warnings alone should pass, got %d: %s", code, stdout)
	}
	if !strings.Contains(stdout, "sdm.unknown_knob") {
		t.Fatalf("expected warning in JSON: %s", stdout)
	}

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", dir, "--strict"})
	})
	if code != 2 {
		t.Fatalf("expected exit 2 with --strict, got %d", code)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	dir := writeConfigDir(t, "api:\n  enabled: true\n  listen: 127.0.0.1:0\n  auth:\n    api_key: super-secret\n"+
		"    tokens:\n      - token: viewer-secret\n        scopes: [display:ro]\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("show failed (%d): %s", code, stderr)
	}
	if strings.Contains(stdout, "secret") {
		t.Fatalf("secrets leaked:\n%s", stdout)
	}
	if !strings.Contains(stdout, redacted) || !strings.Contains(stdout, "display:ro") {
		t.Fatalf("unexpected show output:\n%s", stdout)
	}
}

func TestTokenNewWithScopes(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runTokenNew([]string{"--scopes", "display:ro, events:ro,display:ro", "--bytes", "16"})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "display:ro") || !strings.Contains(stdout, "events:ro") {
		t.Fatalf("unexpected snippet:\n%s", stdout)
	}
	if strings.Count(stdout, "display:ro") != 1 {
		t.Fatalf("duplicate scope not collapsed:\n%s", stdout)
	}
}

func TestTokenNewRejectsUnknownScope(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runTokenNew([]string{"--scopes", "jobs:rw"})
	})
	if code != 1 || !strings.Contains(stderr, "unknown scope") {
		t.Fatalf("expected unknown scope failure, got %d: %s", code, stderr)
	}
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := generateSecureToken(16)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := generateSecureToken(16)
	if len(a) != 32 || a == b {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
}

func TestDisplayLockPath(t *testing.T) {
	cfg := config.Defaults()
	cfg.State.Path = "/var/lib/hwcd/hwcd.db"
	if got := displayLockPath(cfg); got != "/var/lib/hwcd/hwcd-primary.lock" {
		t.Fatalf("displayLockPath = %q", got)
	}
	cfg.Service.PIDFile = "/run/hwcd.pid"
	if got := displayLockPath(cfg); got != "/run/hwcd.pid" {
		t.Fatalf("displayLockPath with pid_file = %q", got)
	}
}

func TestRunStartMissingConfig(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runStart([]string{"--config", filepath.Join(t.TempDir(), "absent")})
	})
	if code != 1 || !strings.Contains(stderr, "Failed to load config") {
		t.Fatalf("expected load failure, got %d: %s", code, stderr)
	}
}
