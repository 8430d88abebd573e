package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"grandgold-errcache/internal/logging"
	"grandgold-errcache/pkg/client"
)

var (
	// Global flags
	profilePath string
	serverFlag  string
	apiKeyFlag  string
	verbose     bool
)

// Command group IDs for organizing help output
const (
	GroupRemote = "remote"
	GroupLocal  = "local"
)

var rootCmd = &cobra.Command{
	Use:   "errcachectl",
	Short: "Inspect and drive the GrandGold error cache",
	Long: `errcachectl talks to the error cache API and can host a local probe.

Server and API key come from ~/.config/errcachectl.toml:

  server  = "http://localhost:8080"
  api_key = "..."

Flags override the profile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logging.Setup(os.Stderr, level)
	},
}

// Execute runs the root command.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Run 'errcachectl -h' for help")
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "profile file (default ~/.config/errcachectl.toml)")
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "API key")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupRemote, Title: "Server Commands:"},
		&cobra.Group{ID: GroupLocal, Title: "Local Commands:"},
	)

	rootCmd.AddCommand(
		newReportCmd(),
		newDismissCmd(),
		newRetryCmd(),
		newInspectCmd(),
		newClearCmd(),
		newLogCmd(),
		newStatsCmd(),
		newProbeCmd(),
	)
}

// newClient resolves the profile and flags into an API client.
func newClient() (*client.Client, error) {
	path := profilePath
	if path == "" {
		p, err := defaultProfilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	profile, err := loadProfile(path)
	if err != nil {
		return nil, err
	}
	if serverFlag != "" {
		profile.Server = serverFlag
	}
	if apiKeyFlag != "" {
		profile.APIKey = apiKeyFlag
	}

	return client.New(profile.Server, profile.APIKey), nil
}

// parseVariables decodes a JSON object given on the command line.
func parseVariables(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var vars map[string]any
	if err := dec.Decode(&vars); err != nil {
		return nil, fmt.Errorf("--vars must be a JSON object: %w", err)
	}
	return vars, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
