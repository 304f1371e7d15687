// Package cmd provides CLI commands for the docchat tool.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/docchat-cli/client"
	"github.com/otherjamesbrown/docchat-cli/config"
	"github.com/otherjamesbrown/docchat-cli/pkg/documents"
	dcerrors "github.com/otherjamesbrown/docchat-cli/pkg/errors"
	"github.com/otherjamesbrown/docchat-cli/pkg/poller"
	"github.com/otherjamesbrown/docchat-cli/pkg/timestamp"
)

// Documents command flags.
var (
	documentsSkip   int
	documentsLimit  int
	documentsOutput string
)

// DocumentsCommandDeps holds the dependencies for documents commands.
type DocumentsCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultDocumentsDeps returns the default dependencies for production use.
func DefaultDocumentsDeps() *DocumentsCommandDeps {
	return &DocumentsCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

// NewDocumentsCommand creates the documents command group.
func NewDocumentsCommand(deps *DocumentsCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDocumentsDeps()
	}

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage uploaded documents",
		Long: `Manage uploaded documents.

Documents are uploaded through the web UI or API; this command inspects
them, tracks their processing state, and removes them.

Operations:
  list        List documents with pagination
  show        Show one document's record
  delete      Delete a document and its derived data
  timestamps  Show the transcription segments for a media document
  url         Print the byte-serving URL for a media document
  watch       Poll until all pending documents finish processing

Examples:
  docchat documents list --limit 10
  docchat documents show <document-id>
  docchat documents timestamps <document-id>
  docchat documents watch`,
		Aliases: []string{"docs"},
	}

	cmd.PersistentFlags().StringVarP(&documentsOutput, "output", "o", "", "Output format: text, json, yaml")

	cmd.AddCommand(newDocumentsListCommand(deps))
	cmd.AddCommand(newDocumentsShowCommand(deps))
	cmd.AddCommand(newDocumentsDeleteCommand(deps))
	cmd.AddCommand(newDocumentsTimestampsCommand(deps))
	cmd.AddCommand(newDocumentsURLCommand(deps))
	cmd.AddCommand(newDocumentsWatchCommand(deps))

	return cmd
}

// newDocumentsListCommand creates the 'documents list' subcommand.
func newDocumentsListCommand(deps *DocumentsCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents with pagination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsList(cmd.Context(), deps)
		},
	}

	cmd.Flags().IntVar(&documentsSkip, "skip", 0, "Pagination offset")
	cmd.Flags().IntVar(&documentsLimit, "limit", 50, "Maximum results")

	return cmd
}

// newDocumentsShowCommand creates the 'documents show' subcommand.
func newDocumentsShowCommand(deps *DocumentsCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show one document's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsShow(cmd.Context(), deps, args[0])
		},
	}
}

// newDocumentsDeleteCommand creates the 'documents delete' subcommand.
func newDocumentsDeleteCommand(deps *DocumentsCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its derived data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsDelete(cmd.Context(), deps, args[0])
		},
	}
}

// newDocumentsTimestampsCommand creates the 'documents timestamps' subcommand.
func newDocumentsTimestampsCommand(deps *DocumentsCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "timestamps <document-id>",
		Short: "Show transcription segments for a media document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsTimestamps(cmd.Context(), deps, args[0])
		},
	}
}

// newDocumentsURLCommand creates the 'documents url' subcommand.
func newDocumentsURLCommand(deps *DocumentsCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "url <document-id>",
		Short: "Print the byte-serving URL for a media document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsURL(deps, args[0])
		},
	}
}

// newDocumentsWatchCommand creates the 'documents watch' subcommand.
func newDocumentsWatchCommand(deps *DocumentsCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll until all pending documents finish processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsWatch(cmd.Context(), deps)
		},
	}
}

// loadDocumentsConfig resolves config for a documents subcommand.
func loadDocumentsConfig(deps *DocumentsCommandDeps) (*config.CLIConfig, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg
	return cfg, nil
}

// runDocumentsList executes the documents list command.
func runDocumentsList(ctx context.Context, deps *DocumentsCommandDeps) error {
	cfg, err := loadDocumentsConfig(deps)
	if err != nil {
		return err
	}

	c := client.FromConfig(cfg, newLogger(cfg, "documents"))
	list, err := c.ListDocuments(ctx, documentsSkip, documentsLimit)
	if err != nil {
		return err
	}

	switch documentsOutput {
	case "json":
		return outputJSON(list)
	case "yaml":
		return outputYAML(list)
	}

	if len(list.Documents) == 0 {
		fmt.Println("No documents.")
		return nil
	}

	fmt.Printf("%-36s  %-30s  %-6s  %-10s  %s\n", "ID", "FILENAME", "TYPE", "SIZE", "STATUS")
	for _, doc := range list.Documents {
		status := "pending"
		if doc.Processed {
			status = "ready"
		}
		fmt.Printf("%-36s  %-30s  %-6s  %-10s  %s\n",
			doc.ID, truncate(doc.Filename, 30), doc.FileType, formatBytes(doc.FileSize), status)
	}
	fmt.Printf("\nTotal: %d\n", list.Total)
	return nil
}

// runDocumentsShow executes the documents show command.
func runDocumentsShow(ctx context.Context, deps *DocumentsCommandDeps, id string) error {
	cfg, err := loadDocumentsConfig(deps)
	if err != nil {
		return err
	}

	c := client.FromConfig(cfg, newLogger(cfg, "documents"))
	doc, err := c.GetStatus(ctx, id)
	if err != nil {
		return err
	}

	switch documentsOutput {
	case "json":
		return outputJSON(doc)
	case "yaml":
		return outputYAML(doc)
	}

	fmt.Printf("ID:        %s\n", doc.ID)
	fmt.Printf("Filename:  %s\n", doc.Filename)
	fmt.Printf("Type:      %s\n", doc.FileType)
	fmt.Printf("Size:      %s\n", formatBytes(doc.FileSize))
	fmt.Printf("Processed: %t\n", doc.Processed)
	fmt.Printf("Chunks:    %d\n", doc.ChunkCount)
	fmt.Printf("Uploaded:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	if doc.Summary != "" {
		fmt.Printf("Summary:   %s\n", doc.Summary)
	}
	if doc.FileType.IsMedia() {
		fmt.Printf("Media URL: %s\n", c.FileURL(doc.ID))
	}
	return nil
}

// runDocumentsDelete executes the documents delete command.
func runDocumentsDelete(ctx context.Context, deps *DocumentsCommandDeps, id string) error {
	cfg, err := loadDocumentsConfig(deps)
	if err != nil {
		return err
	}

	c := client.FromConfig(cfg, newLogger(cfg, "documents"))
	if err := c.DeleteDocument(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}

// runDocumentsTimestamps executes the documents timestamps command.
func runDocumentsTimestamps(ctx context.Context, deps *DocumentsCommandDeps, id string) error {
	cfg, err := loadDocumentsConfig(deps)
	if err != nil {
		return err
	}

	c := client.FromConfig(cfg, newLogger(cfg, "documents"))
	segments, err := c.GetTimestamps(ctx, id)
	if err != nil {
		if dcerrors.IsDocumentNotProcessed(err) {
			return fmt.Errorf("document %s is still processing; try 'docchat documents watch'", id)
		}
		return err
	}

	switch documentsOutput {
	case "json":
		return outputJSON(segments)
	case "yaml":
		return outputYAML(segments)
	}

	if len(segments) == 0 {
		fmt.Println("No transcription segments.")
		return nil
	}
	for _, seg := range segments {
		fmt.Printf("[%s - %s] %s\n",
			timestamp.Format(int(seg.Start)), timestamp.Format(int(seg.End)), truncate(seg.Text, 100))
	}
	return nil
}

// runDocumentsURL executes the documents url command.
func runDocumentsURL(deps *DocumentsCommandDeps, id string) error {
	cfg, err := loadDocumentsConfig(deps)
	if err != nil {
		return err
	}

	c := client.FromConfig(cfg, newLogger(cfg, "documents"))
	fmt.Println(c.FileURL(id))
	return nil
}

// runDocumentsWatch executes the documents watch command. It loads the full
// document list, then polls the backend until no pending documents remain.
func runDocumentsWatch(ctx context.Context, deps *DocumentsCommandDeps) error {
	cfg, err := loadDocumentsConfig(deps)
	if err != nil {
		return err
	}
	log := newLogger(cfg, "watch")

	c := client.FromConfig(cfg, log)
	list, err := c.ListDocuments(ctx, 0, 1000)
	if err != nil {
		return err
	}

	collection := documents.NewCollection()
	collection.SetAll(list.Documents)

	pending := collection.Unprocessed()
	if len(pending) == 0 {
		fmt.Println("All documents processed.")
		return nil
	}
	fmt.Printf("Waiting for %d document(s) to finish processing...\n", len(pending))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := poller.New(collection, c, cfg.PollInterval, log)
	if !p.Start(ctx) {
		return fmt.Errorf("poller did not start")
	}
	p.Wait(ctx)
	p.Stop()

	if remaining := collection.Unprocessed(); len(remaining) > 0 {
		return fmt.Errorf("interrupted with %d document(s) still pending", len(remaining))
	}
	fmt.Println("All documents processed.")
	return nil
}
