package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/mattjoyce/hwcd/internal/api"
	"github.com/mattjoyce/hwcd/internal/auth"
	"github.com/mattjoyce/hwcd/internal/config"
	"github.com/mattjoyce/hwcd/internal/cpuhint"
	"github.com/mattjoyce/hwcd/internal/display"
	"github.com/mattjoyce/hwcd/internal/driver"
	"github.com/mattjoyce/hwcd/internal/events"
	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/lock"
	"github.com/mattjoyce/hwcd/internal/log"
	"github.com/mattjoyce/hwcd/internal/pipeline"
	"github.com/mattjoyce/hwcd/internal/scene"
	"github.com/mattjoyce/hwcd/internal/scheduler"
	"github.com/mattjoyce/hwcd/internal/state"
	"github.com/mattjoyce/hwcd/internal/storage"
	"github.com/mattjoyce/hwcd/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// EventInvalidate is published whenever the session asks the frame source to redraw.
const EventInvalidate = "display.invalidate"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "token":
		return runTokenNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "watch":
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hwcd version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hwcd %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hwcd - primary display composition controller

Usage:
  hwcd <noun> <action> [flags]

Core Resources (Nouns):
  system    Controller lifecycle and health
  config    Configuration and integrity
  token     Scoped API tokens

System Commands:
  system start      Run the display controller in the foreground
  system status     Query a running controller's health
  system watch      Real-time display monitoring TUI

Config Commands:
  config check      Validate syntax, policy, and integrity
  config lock       Authorize current state (update integrity hashes)
  config show       Print the resolved configuration

Token Commands:
  token new         Generate a scoped API token

General:
  version           Show version information
  help              Show this help message

Use 'hwcd <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runTokenNoun(args []string) int {
	if len(args) < 1 {
		printTokenNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printTokenNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "new":
		if hasHelpFlag(args[1:]) {
			printTokenNewHelp()
			return 0
		}
		return runTokenNew(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown token action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hwcd system <action>")
	fmt.Fprintln(w, "Actions: start, status, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hwcd config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printTokenNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hwcd token <action> [flags]")
	fmt.Fprintln(w, "Actions: new")
}

func printSystemStartHelp() {
	fmt.Println("Usage: hwcd system start [--config PATH]")
	fmt.Println("Run the display controller in the foreground. SIGHUP reloads the properties file.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: hwcd system status [--api-url URL] [--json]")
	fmt.Println("Query /healthz of a running controller.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Controller reachable and healthy")
	fmt.Println("  1  Controller unreachable or unhealthy")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: hwcd system watch [flags]")
	fmt.Println()
	fmt.Println("Real-time display monitoring TUI.")
	fmt.Println("Shows session flags, refresh rate history, and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Controller API URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY    API Bearer Token (or HWCD_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  r                Refresh status")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hwcd config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: hwcd config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize the current configuration by regenerating integrity hashes.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: hwcd config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration with secrets redacted.")
}

func printTokenNewHelp() {
	fmt.Println("Usage: hwcd token new [--scopes a,b] [--bytes N]")
	fmt.Println("Generate a random bearer token and print the config snippet for it.")
	fmt.Println("Without --scopes an interactive picker is shown.")
}

// --- ACTION IMPLEMENTATIONS ---

func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	discovered, err := config.DiscoverConfigDir()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
	return discovered, nil
}

func displayLockPath(cfg *config.Config) string {
	if cfg.Service.PIDFile != "" {
		return cfg.Service.PIDFile
	}
	return lock.PathFor(filepath.Dir(cfg.State.Path), cfg.Display.ID)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("hwcd starting", "version", version, "config", cfg.SourcePath, "display", cfg.Display.ID)
	for _, w := range cfg.Warnings {
		logger.Warn("config integrity warning", "warning", w)
	}

	lockPath := displayLockPath(cfg)
	displayLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire display lock", "path", lockPath, "error", err)
		return 1
	}
	defer displayLock.Release()
	logger.Info("acquired display lock", "path", lockPath)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := state.NewStore(db)
	history := state.NewSessionLog(db)

	props, err := config.NewProperties(cfg)
	if err != nil {
		logger.Error("failed to load properties", "path", cfg.PropertiesFile, "error", err)
		return 1
	}

	displayLogger := log.WithDisplay(cfg.Display.ID)
	fences := fence.NewTracker()
	drv := driver.NewSim(driver.Attributes{
		Width:          cfg.Display.Width,
		Height:         cfg.Display.Height,
		MinRefreshRate: cfg.Display.MinRate,
		MaxRefreshRate: cfg.Display.MaxRate,
	}, displayLogger)

	var hint display.CPUHint
	if cfg.Display.PerfLock {
		hint = cpuhint.New(cpuhint.NewLogLock(displayLogger), displayLogger)
	}
	var boot display.BootProbe
	if cfg.Display.BootMarker != "" {
		boot = display.FileProbe{Path: cfg.Display.BootMarker}
	}

	hub := events.NewHub(256)

	session, err := display.Create(display.Deps{
		DisplayID:  cfg.Display.ID,
		Driver:     drv,
		Properties: props,
		CPUHint:    hint,
		BootProbe:  boot,
		Publisher:  hub,
		Saver:      store,
		Fences:     fences,
		Pipeline: pipeline.Options{
			HWPlanes:  cfg.Display.HWPlanes,
			MaxLayers: cfg.Display.MaxLayers,
		},
		Logger: log.Get(),
	})
	if err != nil {
		logger.Error("failed to create display session", "error", err)
		return 1
	}
	sessionLogger := log.WithSession(session.ID())

	if saved, ok, err := store.LoadSettings(ctx, cfg.Display.ID); err != nil {
		logger.Warn("failed to load saved display settings", "error", err)
	} else if ok {
		if err := session.Restore(saved); err != nil {
			logger.Warn("failed to restore display settings", "error", err)
		} else {
			logger.Info("display settings restored", "force_refresh_rate", saved.ForceRefreshRate)
		}
	}

	snap := session.Snapshot()
	src := scene.New(cfg.Scene, snap.FBWidth, snap.FBHeight, fences, displayLogger)
	session.RegisterInvalidator(display.InvalidatorFunc(func() {
		src.Invalidate()
		hub.Publish(EventInvalidate, nil)
	}))

	if err := history.Begin(ctx, session.ID(), cfg.Display.ID); err != nil {
		sessionLogger.Warn("failed to record session start", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(session, src, clockwork.NewRealClock(), cfg.Display.IdleTimeout, displayLogger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		_ = session.Destroy()
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errCh := make(chan error, 1)

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{
				Token:  t.Token,
				Scopes: t.Scopes,
			})
		}
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: tokens,
		}
		apiServer := api.New(apiConfig, session, hub, history, props, log.Get())
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("hwcd running (press Ctrl+C to stop)", "session_id", session.ID())

	code := 0
loop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := props.Reload(); err != nil {
					logger.Warn("property reload failed", "error", err)
					continue
				}
				logger.Info("properties reloaded")
				hub.Publish("properties.reloaded", nil)
				continue
			}
			logger.Info("received shutdown signal", "signal", sig)
			break loop
		case err := <-errCh:
			logger.Error("component failed", "error", err)
			code = 1
			break loop
		}
	}

	cancel()
	sched.Stop()

	frames := session.Snapshot().Frames
	if err := session.Destroy(); err != nil {
		sessionLogger.Warn("display session teardown failed", "error", err)
	}
	if err := history.End(context.Background(), session.ID(), frames, fences.Stats()); err != nil {
		sessionLogger.Warn("failed to record session end", "error", err)
	}

	logger.Info("hwcd stopped", "frames", frames)
	return code
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Controller API URL")
	jsonOut := fs.Bool("json", false, "Output raw JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	health, err := fetchHealth(strings.TrimSuffix(*apiURL, "/"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Controller unreachable: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(health, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("status:         %s\n", health.Status)
		fmt.Printf("session:        %s\n", health.SessionID)
		fmt.Printf("refresh_rate:   %d Hz\n", health.RefreshRate)
		fmt.Printf("uptime:         %s\n", time.Duration(health.UptimeSeconds)*time.Second)
		fmt.Printf("dropped_events: %d\n", health.DroppedEvents)
	}

	if health.Status != "ok" {
		return 1
	}
	return 0
}

func fetchHealth(apiURL string) (*api.HealthzResponse, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(apiURL + "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("healthz: %s", resp.Status)
	}

	var h api.HealthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode healthz: %w", err)
	}
	return &h, nil
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Controller API URL")
	apiKey := fs.String("api-key", os.Getenv("HWCD_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or HWCD_API_KEY env var.")
		return 1
	}

	m := watch.New(strings.TrimSuffix(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
