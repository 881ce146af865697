package detection

import (
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by Scripted once every frame has been served.
var ErrScriptExhausted = errors.New("detection: script exhausted")

// Scripted implements Detector by replaying a fixed sequence of sets,
// one per Detect call. Used in tests and for dry runs without a model.
type Scripted struct {
	mu     sync.Mutex
	frames []Set
	errs   map[int]error
	next   int
	loop   bool
	closed bool
}

// NewScripted returns a detector that serves frames in order.
func NewScripted(frames ...Set) *Scripted {
	return &Scripted{frames: frames, errs: make(map[int]error)}
}

// Loop makes the script restart from the beginning when exhausted.
func (s *Scripted) Loop() *Scripted {
	s.loop = true
	return s
}

// FailAt makes the i-th Detect call (zero-based) return err instead of a set.
func (s *Scripted) FailAt(i int, err error) *Scripted {
	s.errs[i] = err
	return s
}

// Detect ignores the frame and returns the next scripted set.
func (s *Scripted) Detect(_ []byte) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.next
	if s.loop && len(s.frames) > 0 {
		call = s.next % len(s.frames)
	}
	if err, ok := s.errs[s.next]; ok {
		s.next++
		return nil, err
	}
	if call >= len(s.frames) {
		return nil, ErrScriptExhausted
	}
	s.next++
	return s.frames[call], nil
}

// Calls returns how many times Detect was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Close marks the detector closed.
func (s *Scripted) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ Detector = (*Scripted)(nil)
