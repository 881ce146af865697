package camera

import (
	"errors"
	"sync"
)

// Errors
var (
	ErrClosed      = errors.New("camera: source closed")
	ErrNoFrame     = errors.New("camera: no frame available") // Transient, try again
	ErrEndOfStream = errors.New("camera: end of stream")      // A finite source ran out
)

// Source yields one JPEG-encoded frame per call.
type Source interface {
	Capture() ([]byte, error)
	Close() error
}

// Static replays a fixed list of frames. It backs tests and the replay
// tool, where frames come from disk instead of a sensor.
type Static struct {
	mu     sync.Mutex
	frames [][]byte
	next   int
	loop   bool
	closed bool
}

var _ Source = (*Static)(nil)

// NewStatic creates a source that returns frames in order, then
// ErrEndOfStream.
func NewStatic(frames ...[]byte) *Static {
	return &Static{frames: frames}
}

// Loop makes the source start over after the last frame.
func (s *Static) Loop() *Static {
	s.loop = true
	return s
}

func (s *Static) Capture() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.next >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, ErrEndOfStream
		}
		s.next = 0
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Static) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
