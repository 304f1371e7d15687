// Package player defines the media playback surface contract consumed by
// the seek coordinator, plus a stub surface for environments with no real
// player attached.
package player

import (
	"sync"

	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
	"github.com/otherjamesbrown/docchat-cli/pkg/seek"
)

// Surface is the minimum a playback surface must expose: jump to an
// absolute second, and report the current position.
type Surface interface {
	// SeekTo moves playback to the given absolute position in seconds.
	SeekTo(seconds float64) error

	// Position returns the current playback position in seconds.
	Position() float64
}

// Apply drains the pending seek request, if any, into the surface. It
// returns true when a seek was delivered. Delivery is best effort: the
// request is consumed even if the surface rejects it, matching the
// no-acknowledgment contract of the coordinator.
func Apply(c *seek.Coordinator, s Surface, log logging.Logger) bool {
	req, ok := c.Consume()
	if !ok {
		return false
	}
	if err := s.SeekTo(req.Seconds); err != nil {
		if log != nil {
			log.Warn("seek not honored",
				logging.F("seconds", req.Seconds),
				logging.F("seq", int64(req.Seq)),
				logging.Err(err))
		}
		return false
	}
	return true
}

// StubSurface is a Surface with no real media backend. It records the
// requested position so progress display still works, and logs each seek
// with the byte-serving URL a real player would open.
type StubSurface struct {
	mu       sync.Mutex
	position float64
	seeks    int

	fileURL string
	log     logging.Logger
}

// NewStubSurface creates a stub surface for the given media URL.
func NewStubSurface(fileURL string, log logging.Logger) *StubSurface {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &StubSurface{fileURL: fileURL, log: log}
}

// SeekTo records the position and logs the jump.
func (s *StubSurface) SeekTo(seconds float64) error {
	s.mu.Lock()
	s.position = seconds
	s.seeks++
	s.mu.Unlock()

	s.log.Info("seek requested",
		logging.F("seconds", seconds),
		logging.F("media_url", s.fileURL))
	return nil
}

// Position returns the last sought position.
func (s *StubSurface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SeekCount returns how many seeks the surface has honored.
func (s *StubSurface) SeekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks
}
