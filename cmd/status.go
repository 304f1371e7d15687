package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/docchat-cli/client"
	"github.com/otherjamesbrown/docchat-cli/config"
)

// Status command flags.
var statusOutput string

// StatusCommandDeps holds the dependencies for the status command.
type StatusCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultStatusDeps returns the default dependencies for production use.
func DefaultStatusDeps() *StatusCommandDeps {
	return &StatusCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(deps *StatusCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultStatusDeps()
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend availability",
		Long: `Show whether the chat service and its model backend are reachable.

Examples:
  docchat status
  docchat status -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVarP(&statusOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// runStatus executes the status command.
func runStatus(ctx context.Context, deps *StatusCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	c := client.NewChatClient(cfg.ServerURL, &client.ClientOptions{
		RequestTimeout: cfg.Timeout,
		Logger:         newLogger(cfg, "status"),
	})
	status, err := c.GetServiceStatus(ctx)
	if err != nil {
		return fmt.Errorf("backend at %s unreachable: %w", cfg.ServerURL, err)
	}

	switch statusOutput {
	case "json":
		return outputJSON(status)
	case "yaml":
		return outputYAML(status)
	}

	fmt.Printf("Server:  %s\n", cfg.ServerURL)
	fmt.Printf("Chat:    %s\n", status.Status)
	return nil
}
