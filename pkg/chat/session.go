package chat

import (
	"strings"
	"sync"

	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
)

// Session owns one conversation with one document: the append-only message
// log plus the accumulator for the answer currently streaming in.
//
// Completion is the only path that moves text from the accumulator into the
// log: it reads the buffer, appends an immutable message, and only then
// resets accumulation state. A message is never partially visible in the
// log.
type Session struct {
	mu         sync.Mutex
	documentID string
	acc        *Accumulator
	messages   []Message

	// Retrieval payload from the most recent completed turn.
	lastSources    []Source
	lastTimestamps []TimestampSegment

	log logging.Logger
}

// NewSession creates a session scoped to the given conversation target.
func NewSession(documentID string, log logging.Logger) *Session {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Session{
		documentID: documentID,
		acc:        NewAccumulator(),
		log:        log.With(logging.F("document_id", documentID)),
	}
}

// DocumentID returns the conversation target this session is scoped to.
func (s *Session) DocumentID() string {
	return s.documentID
}

// AddUserMessage appends the user's question to the log and returns it.
func (s *Session) AddUserMessage(text string) Message {
	msg := NewMessage(RoleUser, text, nil)
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg
}

// AddHistoryMessage appends an already-finalized message (from the history
// service) to the log.
func (s *Session) AddHistoryMessage(msg Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// AppendToken feeds one answer fragment to the accumulator.
func (s *Session) AppendToken(token string) {
	s.acc.Append(token)
}

// Draft returns the published snapshot of the in-flight answer.
func (s *Session) Draft() string {
	return s.acc.Draft()
}

// Complete finalizes the in-flight answer: it takes the accumulator's
// current value, builds an immutable assistant message with the supplied
// sources, and appends it to the log. The accumulator is reset strictly
// after the read used for the commit.
//
// A terminal frame on an empty or whitespace-only buffer commits nothing;
// that is a no-op, not an error.
func (s *Session) Complete(sources []Source, timestamps []TimestampSegment) (Message, bool) {
	content := s.acc.Take()
	if strings.TrimSpace(content) == "" {
		s.log.Debug("terminal frame with empty accumulation, skipping commit")
		return Message{}, false
	}

	msg := NewMessage(RoleAssistant, content, sources)

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.lastSources = sources
	s.lastTimestamps = timestamps
	s.mu.Unlock()

	s.log.Debug("answer committed",
		logging.F("message_id", msg.ID),
		logging.F("length", len(content)),
		logging.F("sources", len(sources)))
	return msg, true
}

// Abandon discards the in-flight answer without committing. Used when the
// connection closes mid-stream or the server reports an error.
func (s *Session) Abandon() {
	if s.acc.Len() > 0 {
		s.log.Debug("in-flight answer abandoned", logging.F("discarded_bytes", s.acc.Len()))
	}
	s.acc.Discard()
}

// Messages returns a copy of the message log in insertion order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastSources returns the citations from the most recent completed turn.
func (s *Session) LastSources() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSources
}

// LastTimestamps returns the timestamp segments from the most recent
// completed turn.
func (s *Session) LastTimestamps() []TimestampSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTimestamps
}
