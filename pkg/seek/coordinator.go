// Package seek coordinates playback-position requests between the chat
// surface and the media playback surface.
//
// The chat surface (a clicked timestamp in an answer, or an entry in the
// timestamp index) requests a position; the playback surface consumes it.
// The coordinator is a single value cell, not a queue: a second request
// before the first is consumed overwrites it.
package seek

import "sync"

// Request is one seek request. Seq increases monotonically so that two
// requests for the same position are still distinct deliveries; consumers
// must not suppress a request because the seconds value did not change.
type Request struct {
	Seconds float64
	Seq     uint64
}

// Coordinator owns the requested-playback-position cell.
// The zero value is ready to use.
type Coordinator struct {
	mu      sync.Mutex
	pending *Request
	lastSeq uint64
}

// NewCoordinator returns an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// RequestSeek asks the playback surface to move to the given absolute
// position in seconds. An unconsumed earlier request is overwritten.
func (c *Coordinator) RequestSeek(seconds float64) Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSeq++
	req := Request{Seconds: seconds, Seq: c.lastSeq}
	c.pending = &req
	return req
}

// Consume takes the pending request, if any. After Consume returns a
// request, the cell is empty until the next RequestSeek.
func (c *Coordinator) Consume() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return Request{}, false
	}
	req := *c.pending
	c.pending = nil
	return req, true
}

// Peek reports the pending request without consuming it.
func (c *Coordinator) Peek() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return Request{}, false
	}
	return *c.pending, true
}

// Clear drops any pending request. Callers invoke this when the selected
// document changes so a stale position never applies to a new asset.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}
