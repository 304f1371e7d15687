package chat

import (
	"strings"
	"sync"
)

// Accumulator buffers inbound answer fragments for the current in-flight
// turn. The committed buffer is the source of truth; Draft returns a
// snapshot published after each append so observers (progress rendering)
// can lag behind the buffer without ever being able to lose tokens.
//
// Exactly one live Accumulator exists per connection. It is cleared only
// by Take (commit path) or Discard (abandoned turn), never by readers.
type Accumulator struct {
	mu       sync.Mutex
	buf      strings.Builder
	snapshot string
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append commits a fragment to the buffer and publishes a new snapshot.
func (a *Accumulator) Append(token string) {
	if token == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.WriteString(token)
	a.snapshot = a.buf.String()
}

// Draft returns the published snapshot of the in-flight answer.
func (a *Accumulator) Draft() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// Len returns the committed buffer length in bytes.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Len()
}

// Take reads the buffer's current value and resets the accumulator, in
// that order, under one critical section. The read value is what a commit
// must use; the snapshot may lag and is never consulted.
func (a *Accumulator) Take() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	content := a.buf.String()
	a.buf.Reset()
	a.snapshot = ""
	return content
}

// Discard drops any accumulated text without committing it.
func (a *Accumulator) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
	a.snapshot = ""
}
