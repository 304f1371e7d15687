package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/otherjamesbrown/docchat-cli/pkg/chat"
	dcerrors "github.com/otherjamesbrown/docchat-cli/pkg/errors"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
	"github.com/otherjamesbrown/docchat-cli/pkg/observability"
)

// ConnState is the lifecycle state of the streaming connection.
type ConnState int

const (
	// StateDisconnected means no connection exists; the next Send dials.
	StateDisconnected ConnState = iota
	// StateConnecting means a dial is in flight; sends queue one request.
	StateConnecting
	// StateOpen means the connection is ready for a request frame.
	StateOpen
	// StateClosed means the client closed the connection after a completed
	// or failed turn. The next Send dials again.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FrameHandler receives protocol events from the stream client. Callbacks
// are invoked from the connection's read loop, one at a time, in frame
// arrival order.
type FrameHandler interface {
	// OnToken delivers one non-empty answer fragment.
	OnToken(token string)

	// OnComplete delivers the terminal frame's retrieval payload. The
	// connection is closed after this returns.
	OnComplete(sources []chat.Source, timestamps []chat.TimestampSegment)

	// OnStreamError delivers the human-readable message from a server error
	// frame. The connection is closed after this returns.
	OnStreamError(message string)

	// OnDisconnect reports a transport close. err is ErrTransportClosed when
	// the connection dropped mid-stream, nil for an idle drop.
	OnDisconnect(err error)
}

// wsConn is the subset of *websocket.Conn the client uses; tests substitute
// an in-memory implementation.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens one duplex connection to the given URL.
type Dialer func(ctx context.Context, url string) (wsConn, error)

// defaultDialer dials over gorilla/websocket.
func defaultDialer(ctx context.Context, rawURL string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// StreamStats is a snapshot of transport counters, read by the metrics
// collector.
type StreamStats struct {
	Connects        int64
	Disconnects     int64
	TokensReceived  int64
	TurnsCompleted  int64
	RemoteErrors    int64
	MalformedFrames int64
}

// StreamClient owns one duplex connection to the streaming chat endpoint
// for a single conversation target. The connection object never escapes;
// callers interact only through Send and the FrameHandler contract.
//
// One request/response cycle fully consumes one connection: the client
// closes after the terminal or error frame and dials again on the next
// Send. There is no timed auto-reconnect.
type StreamClient struct {
	documentID string
	url        string
	dial       Dialer
	handler    FrameHandler
	log        logging.Logger
	tracer     *observability.Tracer

	mu        sync.Mutex
	state     ConnState
	conn      wsConn
	connGen   uint64 // identifies the connection a read loop belongs to
	pending   *chat.Request
	streaming bool

	turnSpan   trace.Span
	turnTokens int

	stats StreamStats
}

// NewStreamClient creates a stream client scoped to one document. baseURL
// is the backend's HTTP base; the streaming endpoint is derived from it.
func NewStreamClient(baseURL, documentID string, handler FrameHandler, log logging.Logger) *StreamClient {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &StreamClient{
		documentID: documentID,
		url:        StreamURL(baseURL, documentID),
		dial:       defaultDialer,
		handler:    handler,
		log:        log.With(logging.F("document_id", documentID)),
		tracer:     observability.NewTracer(),
	}
}

// StreamURL derives the WebSocket endpoint for a document from the
// backend's HTTP base URL.
func StreamURL(baseURL, documentID string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/chat/stream/" + url.PathEscape(documentID)
}

// DocumentID returns the conversation target this client is scoped to.
func (c *StreamClient) DocumentID() string {
	return c.documentID
}

// State returns the current connection state.
func (c *StreamClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the connection is open.
func (c *StreamClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen && c.conn != nil
}

// Streaming reports whether a request is outstanding.
func (c *StreamClient) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Stats returns a snapshot of the transport counters.
func (c *StreamClient) Stats() StreamStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Connect dials the streaming endpoint. It is a no-op when a connection
// object already exists, even one not yet open, so duplicate sockets can
// never be created. The dial completes asynchronously; a request queued by
// Send fires on transport-open.
func (c *StreamClient) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked(ctx)
}

func (c *StreamClient) connectLocked(ctx context.Context) {
	if c.conn != nil || c.state == StateConnecting {
		return
	}
	if c.dial == nil || c.url == "" {
		return
	}

	c.state = StateConnecting
	go c.dialAndOpen(ctx)
}

// dialAndOpen runs outside the lock: it dials, transitions to Open, fires
// the queued request if one is pending, and starts the read loop.
func (c *StreamClient) dialAndOpen(ctx context.Context) {
	_, span := c.tracer.StartConnectSpan(ctx, c.documentID)

	conn, err := c.dial(ctx, c.url)
	if err != nil {
		observability.FailSpan(span, "dial_failed", err)
		c.log.Warn("dial failed", logging.Err(err))

		c.mu.Lock()
		c.state = StateDisconnected
		hadPending := c.pending != nil
		c.pending = nil
		c.streaming = false
		c.failTurnLocked("dial_failed", err)
		c.mu.Unlock()

		if hadPending {
			c.handler.OnDisconnect(fmt.Errorf("dial failed: %w", dcerrors.ErrTransportClosed))
		}
		return
	}

	observability.EndSpan(span)

	c.mu.Lock()
	if c.state != StateConnecting {
		// The client was closed while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connGen++
	gen := c.connGen
	c.state = StateOpen
	c.stats.Connects++

	// Transport-open: fire the deferred request, if any.
	var writeErr error
	if c.pending != nil {
		req := *c.pending
		c.pending = nil
		writeErr = conn.WriteJSON(&req)
	}
	if writeErr != nil {
		c.teardownLocked(StateDisconnected)
		wasStreaming := c.streaming
		c.streaming = false
		c.failTurnLocked("write_failed", writeErr)
		c.mu.Unlock()

		c.log.Warn("queued send failed on open", logging.Err(writeErr))
		if wasStreaming {
			c.handler.OnDisconnect(fmt.Errorf("queued send failed: %w", dcerrors.ErrTransportClosed))
		}
		return
	}
	c.mu.Unlock()

	c.log.Debug("connection open")
	go c.readLoop(conn, gen)
}

// Send submits one question. Returns true when the request was written or
// queued for the transport-open event; false when no path to an open
// connection exists (the TransportNotReady condition, reported as a
// boolean rather than an error so callers can fall back without unwinding).
func (c *StreamClient) Send(ctx context.Context, message string, includeTimestamps bool) bool {
	req := chat.Request{Message: message, IncludeTimestamps: includeTimestamps}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateOpen && c.conn != nil:
		if err := c.conn.WriteJSON(&req); err != nil {
			c.log.Warn("send failed", logging.Err(err))
			c.teardownLocked(StateDisconnected)
			c.streaming = false
			return false
		}
		c.beginTurnLocked(ctx)
		return true

	case c.state == StateConnecting:
		// Queue exactly one request; a second Send before open overwrites it.
		c.pending = &req
		c.beginTurnLocked(ctx)
		return true

	default:
		if c.dial == nil || c.url == "" {
			c.log.Warn("send with no transport path", logging.Err(dcerrors.ErrTransportNotReady))
			return false
		}
		c.pending = &req
		c.connectLocked(ctx)
		c.beginTurnLocked(ctx)
		return true
	}
}

// beginTurnLocked marks the streaming flag and opens the turn span.
func (c *StreamClient) beginTurnLocked(ctx context.Context) {
	c.streaming = true
	if c.turnSpan == nil {
		_, c.turnSpan = c.tracer.StartTurnSpan(ctx, c.documentID)
		c.turnTokens = 0
	}
}

// failTurnLocked closes the turn span, if any, with an error status.
func (c *StreamClient) failTurnLocked(errType string, err error) {
	if c.turnSpan != nil {
		observability.FailSpan(c.turnSpan, errType, err)
		c.turnSpan = nil
	}
}

// teardownLocked discards the connection object. The object is never
// reused; a later Send dials a fresh one.
func (c *StreamClient) teardownLocked(next ConnState) {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.stats.Disconnects++
	}
	c.state = next
}

// Close closes the connection if one exists. Closing an already-closed or
// absent connection is a no-op. Closing mid-stream abandons the turn and
// reports it through OnDisconnect so the handler can drop partial text.
func (c *StreamClient) Close() {
	c.mu.Lock()
	wasStreaming := c.streaming
	c.streaming = false
	c.pending = nil
	if wasStreaming {
		c.failTurnLocked("client_closed", nil)
	}
	c.teardownLocked(StateClosed)
	c.mu.Unlock()

	if wasStreaming {
		c.handler.OnDisconnect(fmt.Errorf("closed mid-stream: %w", dcerrors.ErrTransportClosed))
	}
}

// readLoop consumes frames until the connection dies. gen ties the loop to
// the connection it was started for, so a loop outliving a teardown cannot
// touch a successor connection's state.
func (c *StreamClient) readLoop(conn wsConn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportClose(gen, err)
			return
		}

		var frame chat.Frame
		if jsonErr := json.Unmarshal(data, &frame); jsonErr != nil {
			// Transient anomaly: log and drop, keep the connection.
			c.mu.Lock()
			c.stats.MalformedFrames++
			c.mu.Unlock()
			c.log.Warn("malformed frame dropped",
				logging.F("bytes", len(data)),
				logging.Err(fmt.Errorf("%w: %v", dcerrors.ErrMalformedFrame, jsonErr)))
			continue
		}

		// Valid JSON of an unrecognized shape decodes to a zero frame; only
		// the protocol's own keys distinguish it from a benign empty token.
		if frame.Token == "" && !frame.Done && frame.Error == "" && !hasFrameKey(data) {
			c.mu.Lock()
			c.stats.MalformedFrames++
			c.mu.Unlock()
			c.log.Warn("malformed frame dropped",
				logging.F("bytes", len(data)),
				logging.Err(fmt.Errorf("%w: no recognized frame field", dcerrors.ErrMalformedFrame)))
			continue
		}

		if done := c.handleFrame(gen, &frame); done {
			return
		}
	}
}

// hasFrameKey reports whether data carries at least one protocol frame key.
func hasFrameKey(data []byte) bool {
	var keys map[string]json.RawMessage
	if json.Unmarshal(data, &keys) != nil {
		return false
	}
	for _, k := range []string{"token", "done", "error", "sources", "timestamps"} {
		if _, ok := keys[k]; ok {
			return true
		}
	}
	return false
}

// handleFrame dispatches one parsed frame. Returns true when the frame
// terminated the exchange and the connection was closed.
func (c *StreamClient) handleFrame(gen uint64, frame *chat.Frame) bool {
	switch {
	case frame.Error != "":
		// Server errors terminate the exchange; no silent continuation.
		c.mu.Lock()
		if gen != c.connGen {
			c.mu.Unlock()
			return true
		}
		c.streaming = false
		c.stats.RemoteErrors++
		c.failTurnLocked("remote_stream_error", fmt.Errorf("%w: %s", dcerrors.ErrRemoteStream, frame.Error))
		c.teardownLocked(StateClosed)
		c.mu.Unlock()

		c.log.Warn("server error frame", logging.F("message", frame.Error))
		c.handler.OnStreamError(frame.Error)
		return true

	case frame.Done:
		c.mu.Lock()
		if gen != c.connGen {
			c.mu.Unlock()
			return true
		}
		c.streaming = false
		c.stats.TurnsCompleted++
		if c.turnSpan != nil {
			observability.EndTurnSpan(c.turnSpan, c.turnTokens, len(frame.Sources), len(frame.Timestamps))
			c.turnSpan = nil
		}
		// One turn fully consumes one connection; no idle sockets between
		// turns.
		c.teardownLocked(StateClosed)
		c.mu.Unlock()

		c.handler.OnComplete(frame.Sources, frame.Timestamps)
		return true

	case frame.Token != "":
		c.mu.Lock()
		if gen != c.connGen {
			c.mu.Unlock()
			return true
		}
		c.stats.TokensReceived++
		c.turnTokens++
		c.mu.Unlock()

		c.handler.OnToken(frame.Token)
		return false

	default:
		// Empty-token, not-done frame: never forwarded as content.
		return false
	}
}

// handleTransportClose processes a read failure: server-initiated close,
// network failure, or our own deliberate teardown racing the read.
func (c *StreamClient) handleTransportClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.connGen || c.conn == nil {
		// Stale loop, or the close was ours (already torn down).
		c.mu.Unlock()
		return
	}

	wasStreaming := c.streaming
	c.streaming = false
	if wasStreaming {
		c.failTurnLocked("transport_closed", err)
	}
	c.teardownLocked(StateDisconnected)
	c.mu.Unlock()

	if wasStreaming {
		c.log.Warn("connection dropped mid-stream", logging.Err(err))
		c.handler.OnDisconnect(fmt.Errorf("mid-stream close: %w", dcerrors.ErrTransportClosed))
	} else {
		c.log.Debug("connection closed", logging.Err(err))
		c.handler.OnDisconnect(nil)
	}
}
