package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/docchat-cli/pkg/chat"
	dcerrors "github.com/otherjamesbrown/docchat-cli/pkg/errors"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
)

// fakeConn is an in-memory wsConn scripted by the test.
type fakeConn struct {
	inbound chan []byte

	mu     sync.Mutex
	writes []chat.Request
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (f *fakeConn) serve(frame chat.Frame) {
	data, _ := json.Marshal(frame)
	f.inbound <- data
}

func (f *fakeConn) serveRaw(data string) {
	f.inbound <- []byte(data)
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	req, ok := v.(*chat.Request)
	if !ok {
		return errors.New("unexpected write type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed connection")
	}
	f.writes = append(f.writes, *req)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) sentRequests() []chat.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Request, len(f.writes))
	copy(out, f.writes)
	return out
}

// event is one handler callback, recorded in order.
type event struct {
	kind       string // "token", "complete", "error", "disconnect"
	token      string
	message    string
	err        error
	sources    []chat.Source
	timestamps []chat.TimestampSegment
}

// recordingHandler feeds callbacks into a channel so tests can wait on them.
type recordingHandler struct {
	events chan event
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan event, 32)}
}

func (h *recordingHandler) OnToken(token string) {
	h.events <- event{kind: "token", token: token}
}

func (h *recordingHandler) OnComplete(sources []chat.Source, timestamps []chat.TimestampSegment) {
	h.events <- event{kind: "complete", sources: sources, timestamps: timestamps}
}

func (h *recordingHandler) OnStreamError(message string) {
	h.events <- event{kind: "error", message: message}
}

func (h *recordingHandler) OnDisconnect(err error) {
	h.events <- event{kind: "disconnect", err: err}
}

func (h *recordingHandler) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler event")
		return event{}
	}
}

// testDialer hands out scripted connections and counts dials. A non-nil
// gate holds every dial until the test closes it.
type testDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
	gate  chan struct{}
}

func (d *testDialer) dial(_ context.Context, _ string) (wsConn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *testDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *testDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if len(d.conns) > i {
			conn := d.conns[i]
			d.mu.Unlock()
			return conn
		}
		d.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("connection %d was never dialed", i)
	return nil
}

func newTestStreamClient(handler FrameHandler, dialer *testDialer) *StreamClient {
	c := NewStreamClient("http://localhost:8000", "doc-1", handler, logging.NewNopLogger())
	c.dial = dialer.dial
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStreamClient_EndToEndStreamingTurn(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)
	session := chat.NewSession("doc-1", logging.NewNopLogger())

	require.True(t, c.Send(context.Background(), "Summarize", true))

	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "queued request never fired")
	assert.Equal(t, chat.Request{Message: "Summarize", IncludeTimestamps: true}, conn.sentRequests()[0])

	conn.serve(chat.Frame{Token: "Hel"})
	conn.serve(chat.Frame{Token: "lo"})
	conn.serve(chat.Frame{Done: true, Sources: []chat.Source{}, Timestamps: []chat.TimestampSegment{}})

	for i := 0; i < 2; i++ {
		e := handler.next(t)
		require.Equal(t, "token", e.kind)
		session.AppendToken(e.token)
	}
	e := handler.next(t)
	require.Equal(t, "complete", e.kind)

	msg, ok := session.Complete(e.sources, e.timestamps)
	require.True(t, ok)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, "", session.Draft(), "accumulator is empty afterward")

	// One turn fully consumes one connection.
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.Streaming())
}

func TestStreamClient_SendQueuesWhileConnecting(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{gate: make(chan struct{})}
	c := newTestStreamClient(handler, dialer)

	// Two sends while the dial is in flight: the pending slot is
	// last-write-wins and only one socket is ever dialed.
	require.True(t, c.Send(context.Background(), "first", false))
	assert.True(t, c.Streaming())
	require.True(t, c.Send(context.Background(), "second", false))
	close(dialer.gate)

	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) > 0 }, "no request fired on open")

	reqs := conn.sentRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "second", reqs[0].Message)
	assert.Equal(t, 1, dialer.dialCount(), "never two live transport connections")
}

func TestStreamClient_ConnectIsIdempotent(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	c.Connect(context.Background())
	c.Connect(context.Background())
	dialer.conn(t, 0)
	c.Connect(context.Background())

	waitFor(t, func() bool { return c.State() == StateOpen }, "connection never opened")
	assert.Equal(t, 1, dialer.dialCount())
}

func TestStreamClient_ErrorFrameTerminatesExchange(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	require.True(t, c.Send(context.Background(), "question", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "request never fired")

	conn.serve(chat.Frame{Error: "Ollama service not available"})

	e := handler.next(t)
	require.Equal(t, "error", e.kind)
	assert.Equal(t, "Ollama service not available", e.message)

	assert.False(t, c.Streaming())
	assert.True(t, conn.isClosed(), "server errors close the connection")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.RemoteErrors)
}

func TestStreamClient_MalformedFrameIsDroppedNotFatal(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	require.True(t, c.Send(context.Background(), "question", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "request never fired")

	conn.serveRaw("this is not json")
	conn.serve(chat.Frame{Token: "still"})
	conn.serve(chat.Frame{Done: true})

	e := handler.next(t)
	require.Equal(t, "token", e.kind)
	assert.Equal(t, "still", e.token)

	e = handler.next(t)
	assert.Equal(t, "complete", e.kind)

	assert.Equal(t, int64(1), c.Stats().MalformedFrames)
}

func TestStreamClient_EmptyTokenFramesAreNeverForwarded(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	require.True(t, c.Send(context.Background(), "question", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "request never fired")

	conn.serve(chat.Frame{Token: ""})
	conn.serve(chat.Frame{Done: true})

	e := handler.next(t)
	assert.Equal(t, "complete", e.kind, "empty token must not reach OnToken")
}

func TestStreamClient_MidStreamDropSurfacesDisconnect(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	require.True(t, c.Send(context.Background(), "question", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "request never fired")

	conn.serve(chat.Frame{Token: "half"})
	e := handler.next(t)
	require.Equal(t, "token", e.kind)

	// Network failure with no terminal frame.
	conn.Close()

	e = handler.next(t)
	require.Equal(t, "disconnect", e.kind)
	assert.True(t, dcerrors.IsTransportClosed(e.err))
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Streaming())
}

func TestStreamClient_ReconnectsOnDemandAfterClose(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	require.True(t, c.Send(context.Background(), "turn one", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "request never fired")
	conn.serve(chat.Frame{Token: "a"})
	conn.serve(chat.Frame{Done: true})

	handler.next(t) // token
	handler.next(t) // complete
	assert.Equal(t, StateClosed, c.State())

	// No background reconnection happened; the next send dials.
	require.True(t, c.Send(context.Background(), "turn two", false))
	conn2 := dialer.conn(t, 1)
	waitFor(t, func() bool { return len(conn2.sentRequests()) == 1 }, "second turn never fired")
	assert.Equal(t, "turn two", conn2.sentRequests()[0].Message)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestStreamClient_SendWithNoTransportPathReturnsFalse(t *testing.T) {
	handler := newRecordingHandler()
	c := NewStreamClient("http://localhost:8000", "doc-1", handler, logging.NewNopLogger())
	c.dial = nil

	assert.False(t, c.Send(context.Background(), "question", false))
	assert.False(t, c.Streaming())
}

func TestStreamClient_DialFailureAbandonsQueuedSend(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{err: errors.New("connection refused")}
	c := newTestStreamClient(handler, dialer)

	require.True(t, c.Send(context.Background(), "question", false))

	e := handler.next(t)
	require.Equal(t, "disconnect", e.kind)
	assert.True(t, dcerrors.IsTransportClosed(e.err))
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Streaming())
}

// sessionHandler wires callbacks to a session the way the CLI does:
// tokens feed the accumulator, terminal frames commit, stream errors and
// mid-stream disconnects abandon the draft.
type sessionHandler struct {
	session *chat.Session
	done    chan struct{}
}

func newSessionHandler(session *chat.Session) *sessionHandler {
	return &sessionHandler{session: session, done: make(chan struct{}, 4)}
}

func (h *sessionHandler) OnToken(token string) {
	h.session.AppendToken(token)
}

func (h *sessionHandler) OnComplete(sources []chat.Source, timestamps []chat.TimestampSegment) {
	h.session.Complete(sources, timestamps)
	h.done <- struct{}{}
}

func (h *sessionHandler) OnStreamError(string) {
	h.session.Abandon()
	h.done <- struct{}{}
}

func (h *sessionHandler) OnDisconnect(err error) {
	if err != nil {
		h.session.Abandon()
	}
}

func TestStreamClient_CloseMidStreamAbandonsPartialText(t *testing.T) {
	session := chat.NewSession("doc-1", logging.NewNopLogger())
	handler := newSessionHandler(session)
	dialer := &testDialer{}
	c := NewStreamClient("http://localhost:8000", "doc-1", handler, logging.NewNopLogger())
	c.dial = dialer.dial

	require.True(t, c.Send(context.Background(), "turn one", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "first turn never fired")

	conn.serve(chat.Frame{Token: "half an ans"})
	waitFor(t, func() bool { return session.Draft() == "half an ans" }, "token never reached the session")

	// Caller closes mid-stream; the abandoned draft must not survive.
	c.Close()
	assert.Equal(t, "", session.Draft(), "partial text must be dropped on close")

	require.True(t, c.Send(context.Background(), "turn two", false))
	conn2 := dialer.conn(t, 1)
	waitFor(t, func() bool { return len(conn2.sentRequests()) == 1 }, "second turn never fired")

	conn2.serve(chat.Frame{Token: "full answer"})
	conn2.serve(chat.Frame{Done: true})
	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("second turn never completed")
	}

	messages := session.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "full answer", messages[0].Content)
}

func TestStreamClient_UnrecognizedFrameShapeCountsMalformed(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	require.True(t, c.Send(context.Background(), "question", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "request never fired")

	// Valid JSON, but no protocol field at all.
	conn.serveRaw(`{"foo": 1}`)
	conn.serve(chat.Frame{Token: "still"})
	conn.serve(chat.Frame{Done: true})

	e := handler.next(t)
	require.Equal(t, "token", e.kind)
	assert.Equal(t, "still", e.token)

	e = handler.next(t)
	assert.Equal(t, "complete", e.kind)

	assert.Equal(t, int64(1), c.Stats().MalformedFrames)
}

func TestStreamClient_CloseIsIdempotent(t *testing.T) {
	handler := newRecordingHandler()
	dialer := &testDialer{}
	c := newTestStreamClient(handler, dialer)

	// Closing with no connection is a no-op.
	c.Close()
	c.Close()
	assert.Equal(t, StateClosed, c.State())

	require.True(t, c.Send(context.Background(), "question", false))
	conn := dialer.conn(t, 0)
	waitFor(t, func() bool { return len(conn.sentRequests()) == 1 }, "never opened")

	c.Close()
	c.Close()
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.Streaming())
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/chat/stream/doc-1",
		StreamURL("http://localhost:8000", "doc-1"))
	assert.Equal(t, "wss://api.example.com/chat/stream/doc%202",
		StreamURL("https://api.example.com/", "doc 2"))
}
