package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hwcd/internal/auth"
	"github.com/mattjoyce/hwcd/internal/config"
	"github.com/mattjoyce/hwcd/internal/doctor"
	"github.com/mattjoyce/hwcd/internal/tui/tokenmgr"
)

const redacted = "<redacted>"

func runConfigCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	// The manifest is being replaced, so the current one is not consulted.
	cfg, err := config.LoadUnverified(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	dir := filepath.Dir(cfg.SourcePath)

	report, err := config.Lock(dir, config.ConfigFiles(cfg), dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", dir)
		for _, file := range report.Files {
			if file.Present {
				fmt.Printf("  HASH [%s] %s: %s\n", file.Tier, file.Name, file.Digest)
				continue
			}
			fmt.Printf("  SKIP [%s] %s: not found (optional)\n", file.Tier, file.Name)
		}
		if dryRun {
			fmt.Printf("  DRY-RUN %s (not written)\n", report.ManifestPath)
		} else {
			fmt.Printf("  WROTE %s\n", report.ManifestPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %s (no files written)\n", dir)
	} else {
		fmt.Printf("Successfully locked configuration in %s\n", dir)
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
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
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	cfg = redactSecrets(cfg)

	if *jsonOut {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

// redactSecrets returns a copy of cfg with every bearer token masked.
func redactSecrets(cfg *config.Config) *config.Config {
	out := *cfg
	if out.API.Auth.APIKey != "" {
		out.API.Auth.APIKey = redacted
	}
	out.API.Auth.Tokens = make([]config.APIToken, len(cfg.API.Auth.Tokens))
	for i, t := range cfg.API.Auth.Tokens {
		out.API.Auth.Tokens[i] = config.APIToken{Token: redacted, Scopes: t.Scopes}
	}
	return &out
}

func runTokenNew(args []string) int {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	scopesArg := fs.String("scopes", "", "Comma-separated scopes (skips the picker)")
	bytesLen := fs.Int("bytes", 32, "Random bytes in the token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *bytesLen < 16 {
		fmt.Fprintln(os.Stderr, "--bytes must be at least 16")
		return 1
	}

	scopes := parseCSVScopes(*scopesArg)
	if len(scopes) == 0 {
		final, err := tea.NewProgram(*tokenmgr.New()).Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			return 1
		}
		picked, ok := final.(tokenmgr.Model).Result()
		if !ok {
			fmt.Fprintln(os.Stderr, "No scopes selected; no token generated.")
			return 1
		}
		scopes = picked
	}
	if err := checkScopes(scopes); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	token, err := generateSecureToken(*bytesLen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		return 1
	}

	snippet, err := tokenSnippet(token, scopes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
		return 1
	}
	fmt.Println("# Add to config.yaml, then run 'hwcd config lock'.")
	fmt.Print(snippet)
	return 0
}

func tokenSnippet(token string, scopes []string) (string, error) {
	doc := map[string]any{
		"api": map[string]any{
			"auth": map[string]any{
				"tokens": []config.APIToken{{Token: token, Scopes: scopes}},
			},
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func checkScopes(scopes []string) error {
	for _, s := range scopes {
		if !auth.Known(s) {
			return fmt.Errorf("unknown scope %q", s)
		}
	}
	return nil
}

func parseCSVScopes(in string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range strings.Split(in, ",") {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func generateSecureToken(bytesLen int) (string, error) {
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
