// Package main provides the docchat CLI entry point.
// docchat is the command-line interface for the DocChat document Q&A backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/docchat-cli/cmd"
	"github.com/otherjamesbrown/docchat-cli/config"
)

// Build metadata, set via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	cfgDir       string
	serverURL    string
	timeout      time.Duration
	outputFormat string
	debug        bool
	jsonLogs     bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "DocChat CLI - chat with your documents",
	Long: `docchat is the command-line interface for the DocChat backend.

Upload documents through the web UI, then use this CLI to chat with
them. Answers stream token by token; for audio and video documents,
answers cite playback positions you can jump to with /seek.

COMMON WORKFLOWS:
  See what's uploaded:   docchat documents list
  Wait for processing:   docchat documents watch
  Chat with a document:  docchat chat <document-id>
  Review a conversation: docchat history show <document-id>
  Check the backend:     docchat status

Run 'docchat <command> --help' for flags and examples.`,
}

// loadConfig resolves configuration, then overlays global command-line flags.
func loadConfig() (*config.CLIConfig, error) {
	if cfgDir != "" {
		os.Setenv("DOCCHAT_CONFIG_DIR", cfgDir)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if timeout != 0 {
		cfg.Timeout = timeout
	}
	if outputFormat != "" {
		cfg.OutputFormat = config.OutputFormat(outputFormat)
	}
	if debug {
		cfg.Debug = true
	}
	if jsonLogs {
		cfg.JSONLogs = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(c *cobra.Command, args []string) {
		fmt.Fprintf(c.OutOrStdout(), "docchat version %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default is ~/.docchat)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL (e.g. http://localhost:8000)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (e.g., 30s, 2m)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output-format", "", "default output format: text, json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")

	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(cmd.NewChatCommand(&cmd.ChatCommandDeps{
		LoadConfig: loadConfig,
		Input:      os.Stdin,
		Output:     os.Stdout,
	}))
	rootCmd.AddCommand(cmd.NewDocumentsCommand(&cmd.DocumentsCommandDeps{
		LoadConfig: loadConfig,
	}))
	rootCmd.AddCommand(cmd.NewHistoryCommand(&cmd.HistoryCommandDeps{
		LoadConfig: loadConfig,
	}))
	rootCmd.AddCommand(cmd.NewStatusCommand(&cmd.StatusCommandDeps{
		LoadConfig: loadConfig,
	}))
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
