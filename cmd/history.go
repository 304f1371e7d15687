package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/docchat-cli/client"
	"github.com/otherjamesbrown/docchat-cli/config"
)

// History command flags.
var historyOutput string

// HistoryCommandDeps holds the dependencies for history commands.
type HistoryCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultHistoryDeps returns the default dependencies for production use.
func DefaultHistoryDeps() *HistoryCommandDeps {
	return &HistoryCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(deps *HistoryCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultHistoryDeps()
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage stored conversations",
		Long: `Manage the conversation history stored per document.

Operations:
  show    Show the stored conversation for a document
  clear   Delete the stored conversation for a document

Examples:
  docchat history show <document-id>
  docchat history clear <document-id>`,
	}

	cmd.PersistentFlags().StringVarP(&historyOutput, "output", "o", "", "Output format: text, json, yaml")

	cmd.AddCommand(newHistoryShowCommand(deps))
	cmd.AddCommand(newHistoryClearCommand(deps))

	return cmd
}

// newHistoryShowCommand creates the 'history show' subcommand.
func newHistoryShowCommand(deps *HistoryCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show the stored conversation for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd.Context(), deps, args[0])
		},
	}
}

// newHistoryClearCommand creates the 'history clear' subcommand.
func newHistoryClearCommand(deps *HistoryCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <document-id>",
		Short: "Delete the stored conversation for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryClear(cmd.Context(), deps, args[0])
		},
	}
}

// runHistoryShow executes the history show command.
func runHistoryShow(ctx context.Context, deps *HistoryCommandDeps, documentID string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	c := client.NewChatClient(cfg.ServerURL, &client.ClientOptions{
		RequestTimeout: cfg.Timeout,
		Logger:         newLogger(cfg, "history"),
	})
	messages, err := c.GetHistory(ctx, documentID)
	if err != nil {
		return err
	}

	switch historyOutput {
	case "json":
		return outputJSON(messages)
	case "yaml":
		return outputYAML(messages)
	}

	if len(messages) == 0 {
		fmt.Println("No conversation yet.")
		return nil
	}
	for _, msg := range messages {
		fmt.Printf("[%s] %s: %s\n",
			msg.CreatedAt.Format("2006-01-02 15:04"), msg.Role, msg.Content)
	}
	return nil
}

// runHistoryClear executes the history clear command.
func runHistoryClear(ctx context.Context, deps *HistoryCommandDeps, documentID string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	c := client.NewChatClient(cfg.ServerURL, &client.ClientOptions{
		RequestTimeout: cfg.Timeout,
		Logger:         newLogger(cfg, "history"),
	})
	if err := c.ClearHistory(ctx, documentID); err != nil {
		return err
	}
	fmt.Printf("Cleared history for %s\n", documentID)
	return nil
}
