package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/docchat-cli/client"
	"github.com/otherjamesbrown/docchat-cli/config"
	"github.com/otherjamesbrown/docchat-cli/pkg/chat"
	"github.com/otherjamesbrown/docchat-cli/pkg/documents"
	dcerrors "github.com/otherjamesbrown/docchat-cli/pkg/errors"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
	"github.com/otherjamesbrown/docchat-cli/pkg/metrics"
	"github.com/otherjamesbrown/docchat-cli/pkg/player"
	"github.com/otherjamesbrown/docchat-cli/pkg/poller"
	"github.com/otherjamesbrown/docchat-cli/pkg/seek"
	"github.com/otherjamesbrown/docchat-cli/pkg/timestamp"
)

// Chat command flags.
var (
	chatNoStream    bool
	chatTimestamps  bool
	chatMetricsAddr string
)

// ChatCommandDeps holds the dependencies for the chat command.
type ChatCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
	Input      io.Reader
	Output     io.Writer
}

// DefaultChatDeps returns the default dependencies for production use.
func DefaultChatDeps() *ChatCommandDeps {
	return &ChatCommandDeps{
		LoadConfig: config.LoadConfig,
		Input:      os.Stdin,
		Output:     os.Stdout,
	}
}

// NewChatCommand creates the interactive chat command.
func NewChatCommand(deps *ChatCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultChatDeps()
	}

	cmd := &cobra.Command{
		Use:   "chat <document-id>",
		Short: "Chat with a document",
		Long: `Start an interactive chat session with a document.

Answers stream token by token over a WebSocket connection. When the
streaming transport is unavailable the question falls back to the
plain HTTP chat endpoint.

For audio and video documents, answers cite playback positions as
[M:SS] or [H:MM:SS] markers. Use /seek to jump the playback surface
to any position. Repeating /seek with the same position seeks again.

Session commands:
  /seek <pos>   Jump playback to a position (seconds or H:MM[:SS])
  /sources      Show the sources behind the last answer
  /history      Show the conversation so far
  /quit         End the session

Examples:
  docchat chat 3f0c9a1e
  docchat chat 3f0c9a1e --no-stream
  docchat chat 3f0c9a1e --timestamps=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), deps, args[0], cmd.Flags().Changed("timestamps"))
		},
	}

	cmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Use the plain HTTP chat endpoint instead of streaming")
	cmd.Flags().BoolVar(&chatTimestamps, "timestamps", true, "Ask for playback-position markers in answers (default from config include_timestamps)")
	cmd.Flags().StringVar(&chatMetricsAddr, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

// turnOutcome is the terminal event of one streamed question.
type turnOutcome struct {
	completed  bool
	errMsg     string
	disconnect error
}

// streamRenderer bridges transport callbacks to the terminal and the
// session. Tokens print as they arrive; the terminal event lands on the
// outcomes channel for the ask loop to collect.
type streamRenderer struct {
	session  *chat.Session
	out      io.Writer
	outcomes chan turnOutcome
}

func newStreamRenderer(session *chat.Session, out io.Writer) *streamRenderer {
	return &streamRenderer{
		session:  session,
		out:      out,
		outcomes: make(chan turnOutcome, 4),
	}
}

func (r *streamRenderer) OnToken(token string) {
	r.session.AppendToken(token)
	fmt.Fprint(r.out, token)
}

func (r *streamRenderer) OnComplete(sources []chat.Source, timestamps []chat.TimestampSegment) {
	r.session.Complete(sources, timestamps)
	fmt.Fprintln(r.out)
	r.outcomes <- turnOutcome{completed: true}
}

func (r *streamRenderer) OnStreamError(message string) {
	r.session.Abandon()
	r.outcomes <- turnOutcome{errMsg: message}
}

func (r *streamRenderer) OnDisconnect(err error) {
	if err == nil {
		// Clean close between turns; nothing outstanding.
		return
	}
	r.session.Abandon()
	r.outcomes <- turnOutcome{disconnect: err}
}

// drain discards stale outcomes left over from an abandoned turn.
func (r *streamRenderer) drain() {
	for {
		select {
		case <-r.outcomes:
		default:
			return
		}
	}
}

// chatRuntime bundles the live pieces of one chat session.
type chatRuntime struct {
	cfg        *config.CLIConfig
	log        logging.Logger
	docClient  *client.DocumentClient
	chatClient *client.ChatClient
	stream     *client.StreamClient
	session    *chat.Session
	renderer   *streamRenderer
	seeks      *seek.Coordinator
	surface    player.Surface
	timestamps bool
	out        io.Writer
}

// effectiveTimestamps resolves whether answers should carry playback
// markers: an explicit --timestamps flag wins, otherwise the config's
// include_timestamps default applies.
func effectiveTimestamps(cfg *config.CLIConfig, flagSet bool) bool {
	if flagSet {
		return chatTimestamps
	}
	return cfg.IncludeTimestamps
}

// runChat executes the interactive chat command.
func runChat(ctx context.Context, deps *ChatCommandDeps, documentID string, tsFlagSet bool) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg
	log := newLogger(cfg, "chat")
	out := deps.Output

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	docClient := client.FromConfig(cfg, log)
	chatClient := client.NewChatClient(cfg.ServerURL, &client.ClientOptions{
		RequestTimeout: cfg.Timeout,
		Logger:         log,
	})

	doc, err := docClient.GetStatus(ctx, documentID)
	if err != nil {
		if dcerrors.IsDocumentNotFound(err) {
			return fmt.Errorf("document %s not found", documentID)
		}
		return err
	}

	collection := documents.NewCollection()
	collection.Add(doc)
	collection.Select(doc.ID)

	if !doc.Processed {
		fmt.Fprintf(out, "Document %s is still processing, waiting...\n", doc.Filename)
		p := poller.New(collection, docClient, cfg.PollInterval, log)
		p.Start(ctx)
		p.Wait(ctx)
		p.Stop()

		doc, _ = collection.Selected()
		if !doc.Processed {
			return fmt.Errorf("document %s is still processing", documentID)
		}
	}

	session := chat.NewSession(doc.ID, log)
	renderer := newStreamRenderer(session, out)
	stream := client.NewStreamClient(cfg.ServerURL, doc.ID, renderer, log)
	defer stream.Close()

	rt := &chatRuntime{
		cfg:        cfg,
		log:        log,
		docClient:  docClient,
		chatClient: chatClient,
		stream:     stream,
		session:    session,
		renderer:   renderer,
		seeks:      seek.NewCoordinator(),
		timestamps: effectiveTimestamps(cfg, tsFlagSet),
		out:        out,
	}
	if doc.FileType.IsMedia() {
		rt.surface = player.NewStubSurface(docClient.FileURL(doc.ID), log)
	}

	if chatMetricsAddr != "" {
		serveMetrics(chatMetricsAddr, stream, collection, doc.ID, log)
	}

	if err := loadHistory(ctx, rt); err != nil {
		log.Warn("history unavailable", logging.Err(err))
	}

	fmt.Fprintf(out, "Chatting with %s. /quit to exit.\n", doc.Filename)
	return chatLoop(ctx, rt, deps.Input)
}

// serveMetrics exposes transport and document collectors on addr.
func serveMetrics(addr string, stream *client.StreamClient, collection *documents.Collection, documentID string, log logging.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewTransportCollector(stream, "docchat", documentID))
	reg.MustRegister(metrics.NewDocumentsCollector(collection, "docchat"))

	go func() {
		handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Warn("metrics listener failed", logging.Err(err))
		}
	}()
}

// loadHistory replays the stored conversation into the session and the
// terminal.
func loadHistory(ctx context.Context, rt *chatRuntime) error {
	history, err := rt.chatClient.GetHistory(ctx, rt.session.DocumentID())
	if err != nil {
		return err
	}
	for _, msg := range history {
		rt.session.AddHistoryMessage(msg)
		printMessage(rt.out, msg)
	}
	return nil
}

func printMessage(out io.Writer, msg chat.Message) {
	switch msg.Role {
	case chat.RoleUser:
		fmt.Fprintf(out, "> %s\n", msg.Content)
	default:
		fmt.Fprintf(out, "%s\n", msg.Content)
	}
}

// chatLoop reads questions and session commands until EOF or /quit.
func chatLoop(ctx context.Context, rt *chatRuntime, input io.Reader) error {
	scanner := bufio.NewScanner(input)
	for {
		fmt.Fprint(rt.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(rt.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runSessionCommand(rt, line); quit {
				return nil
			}
			continue
		}
		if err := ask(ctx, rt, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(rt.out, "error: %v\n", err)
		}
	}
}

// runSessionCommand handles /-prefixed session commands. Returns true when
// the session should end.
func runSessionCommand(rt *chatRuntime, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true

	case "/seek":
		seconds, err := parsePosition(arg)
		if err != nil {
			fmt.Fprintf(rt.out, "%v\n", err)
			return false
		}
		if rt.surface == nil {
			fmt.Fprintln(rt.out, "This document has no playback surface.")
			return false
		}
		rt.seeks.RequestSeek(seconds)
		if player.Apply(rt.seeks, rt.surface, rt.log) {
			fmt.Fprintf(rt.out, "Jumped to %s\n", timestamp.Format(int(seconds)))
		} else {
			fmt.Fprintln(rt.out, "Seek rejected by playback surface.")
		}
		return false

	case "/sources":
		sources := rt.session.LastSources()
		if len(sources) == 0 {
			fmt.Fprintln(rt.out, "No sources for the last answer.")
			return false
		}
		for _, src := range sources {
			marker := ""
			if src.Timestamp != nil {
				marker = fmt.Sprintf(" [%s]", timestamp.Format(int(src.Timestamp.Start)))
			}
			fmt.Fprintf(rt.out, "chunk %d (%.2f)%s: %s\n",
				src.ChunkIndex, src.Score, marker, truncate(src.Content, 80))
		}
		return false

	case "/history":
		for _, msg := range rt.session.Messages() {
			printMessage(rt.out, msg)
		}
		return false

	default:
		fmt.Fprintf(rt.out, "Unknown command %s\n", cmd)
		return false
	}
}

// ask submits one question, preferring the streaming transport and falling
// back to the HTTP chat endpoint when no streaming path exists.
func ask(ctx context.Context, rt *chatRuntime, question string) error {
	rt.renderer.drain()
	rt.session.AddUserMessage(question)

	includeTimestamps := rt.timestamps && rt.surface != nil

	if !chatNoStream && rt.stream.Send(ctx, question, includeTimestamps) {
		if err := awaitAnswer(ctx, rt); err != nil {
			return err
		}
	} else {
		if err := askOverHTTP(ctx, rt, question, includeTimestamps); err != nil {
			return err
		}
	}

	printJumpPoints(rt)
	return nil
}

// awaitAnswer blocks until the in-flight streamed turn terminates.
func awaitAnswer(ctx context.Context, rt *chatRuntime) error {
	select {
	case outcome := <-rt.renderer.outcomes:
		switch {
		case outcome.completed:
			return nil
		case outcome.errMsg != "":
			return fmt.Errorf("server error: %s", outcome.errMsg)
		default:
			return fmt.Errorf("connection lost: %w", outcome.disconnect)
		}
	case <-ctx.Done():
		rt.session.Abandon()
		return ctx.Err()
	}
}

// askOverHTTP is the non-streaming fallback: one request, one full answer.
func askOverHTTP(ctx context.Context, rt *chatRuntime, question string, includeTimestamps bool) error {
	resp, err := rt.chatClient.SendMessage(ctx, rt.session.DocumentID(), question, includeTimestamps)
	if err != nil {
		rt.session.Abandon()
		return err
	}
	rt.session.AppendToken(resp.Message)
	rt.session.Complete(resp.Sources, resp.Timestamps)
	fmt.Fprintln(rt.out, resp.Message)
	return nil
}

// printJumpPoints lists the playback positions cited by the last answer.
func printJumpPoints(rt *chatRuntime) {
	if rt.surface == nil {
		return
	}
	messages := rt.session.Messages()
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Role != chat.RoleAssistant {
		return
	}
	matches := timestamp.Extract(last.Content)
	if len(matches) == 0 {
		return
	}

	seen := make(map[string]bool)
	literals := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m.Literal] {
			seen[m.Literal] = true
			literals = append(literals, m.Literal)
		}
	}
	fmt.Fprintf(rt.out, "Jump points: %s (use /seek)\n", strings.Join(literals, " "))
}
