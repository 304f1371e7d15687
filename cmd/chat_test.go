package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/otherjamesbrown/docchat-cli/config"
	"github.com/otherjamesbrown/docchat-cli/pkg/chat"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
	"github.com/otherjamesbrown/docchat-cli/pkg/player"
	"github.com/otherjamesbrown/docchat-cli/pkg/seek"
)

// TestNewChatCommand tests that the chat command is created correctly.
func TestNewChatCommand(t *testing.T) {
	deps := DefaultChatDeps()
	cmd := NewChatCommand(deps)

	if cmd == nil {
		t.Fatal("NewChatCommand returned nil")
	}

	if !strings.HasPrefix(cmd.Use, "chat") {
		t.Errorf("Use = %v, want 'chat <document-id>'", cmd.Use)
	}

	if err := cmd.Args(cmd, []string{}); err == nil {
		t.Error("chat should require a document id")
	}

	for _, name := range []string{"no-stream", "timestamps", "metrics-listen"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag should be registered", name)
		}
	}

	tsFlag := cmd.Flags().Lookup("timestamps")
	if tsFlag.DefValue != "true" {
		t.Errorf("--timestamps default = %v, want 'true'", tsFlag.DefValue)
	}
}

// TestEffectiveTimestamps tests that the config default applies unless the
// flag was given explicitly.
func TestEffectiveTimestamps(t *testing.T) {
	defer func() { chatTimestamps = true }()

	cfg := config.DefaultConfig()
	cfg.IncludeTimestamps = false

	chatTimestamps = true
	if effectiveTimestamps(cfg, false) {
		t.Error("config include_timestamps=false should apply when the flag is unset")
	}
	if !effectiveTimestamps(cfg, true) {
		t.Error("explicit --timestamps should override the config")
	}

	cfg.IncludeTimestamps = true
	chatTimestamps = false
	if !effectiveTimestamps(cfg, false) {
		t.Error("config include_timestamps=true should apply when the flag is unset")
	}
	if effectiveTimestamps(cfg, true) {
		t.Error("explicit --timestamps=false should override the config")
	}
}

// TestStreamRenderer tests that tokens print as they arrive and the
// completed answer lands in the session.
func TestStreamRenderer(t *testing.T) {
	session := chat.NewSession("doc-1", logging.NewNopLogger())
	var out bytes.Buffer
	r := newStreamRenderer(session, &out)

	r.OnToken("Hel")
	r.OnToken("lo")
	if out.String() != "Hello" {
		t.Errorf("printed %q, want 'Hello'", out.String())
	}

	r.OnComplete(nil, nil)

	select {
	case outcome := <-r.outcomes:
		if !outcome.completed {
			t.Error("outcome should be completed")
		}
	default:
		t.Fatal("no outcome delivered")
	}

	messages := session.Messages()
	if len(messages) != 1 || messages[0].Content != "Hello" {
		t.Errorf("session messages = %v, want one 'Hello'", messages)
	}
	if session.Draft() != "" {
		t.Error("draft should be empty after completion")
	}
}

// TestStreamRendererErrorAbandonsDraft tests that a server error drops the
// partial answer instead of committing it.
func TestStreamRendererErrorAbandonsDraft(t *testing.T) {
	session := chat.NewSession("doc-1", logging.NewNopLogger())
	var out bytes.Buffer
	r := newStreamRenderer(session, &out)

	r.OnToken("half answ")
	r.OnStreamError("model unavailable")

	outcome := <-r.outcomes
	if outcome.errMsg != "model unavailable" {
		t.Errorf("errMsg = %q", outcome.errMsg)
	}
	if session.Draft() != "" {
		t.Error("draft should be discarded on stream error")
	}
	if len(session.Messages()) != 0 {
		t.Error("no message should be committed on stream error")
	}
}

// TestStreamRendererCleanDisconnectIsSilent tests that a between-turns
// disconnect produces no outcome.
func TestStreamRendererCleanDisconnectIsSilent(t *testing.T) {
	session := chat.NewSession("doc-1", logging.NewNopLogger())
	r := newStreamRenderer(session, &bytes.Buffer{})

	r.OnDisconnect(nil)

	select {
	case <-r.outcomes:
		t.Error("clean disconnect should not produce an outcome")
	default:
	}
}

// TestRunSessionCommandSeek tests the /seek command against a stub surface,
// including re-seeking to the same position.
func TestRunSessionCommandSeek(t *testing.T) {
	surface := player.NewStubSurface("http://localhost:8000/documents/doc-1/file", logging.NewNopLogger())
	var out bytes.Buffer
	rt := &chatRuntime{
		session: chat.NewSession("doc-1", logging.NewNopLogger()),
		seeks:   seek.NewCoordinator(),
		surface: surface,
		log:     logging.NewNopLogger(),
		out:     &out,
	}

	if quit := runSessionCommand(rt, "/seek 1:23"); quit {
		t.Fatal("/seek should not end the session")
	}
	if got := surface.Position(); got != 83 {
		t.Errorf("position = %v, want 83", got)
	}

	// Re-seeking to the same position seeks again.
	runSessionCommand(rt, "/seek 1:23")
	if surface.SeekCount() != 2 {
		t.Errorf("seek count = %d, want 2", surface.SeekCount())
	}

	runSessionCommand(rt, "/seek nonsense")
	if surface.SeekCount() != 2 {
		t.Error("invalid position should not seek")
	}
}

// TestRunSessionCommandSeekWithoutSurface tests /seek on a text document.
func TestRunSessionCommandSeekWithoutSurface(t *testing.T) {
	var out bytes.Buffer
	rt := &chatRuntime{
		session: chat.NewSession("doc-1", logging.NewNopLogger()),
		seeks:   seek.NewCoordinator(),
		log:     logging.NewNopLogger(),
		out:     &out,
	}

	runSessionCommand(rt, "/seek 10")
	if !strings.Contains(out.String(), "no playback surface") {
		t.Errorf("output = %q, want playback surface notice", out.String())
	}
}

// TestRunSessionCommandQuit tests the session-ending commands.
func TestRunSessionCommandQuit(t *testing.T) {
	rt := &chatRuntime{
		session: chat.NewSession("doc-1", logging.NewNopLogger()),
		log:     logging.NewNopLogger(),
		out:     &bytes.Buffer{},
	}

	if !runSessionCommand(rt, "/quit") {
		t.Error("/quit should end the session")
	}
	if !runSessionCommand(rt, "/exit") {
		t.Error("/exit should end the session")
	}
	if runSessionCommand(rt, "/history") {
		t.Error("/history should not end the session")
	}
}
