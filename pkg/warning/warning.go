// Package warning voices the pedestrian warning.
//
// The steering engine decides when a warning is due; a Sink only has to
// deliver it. Delivery never blocks the control loop: the Announcer plays
// clips on its own goroutine and drops a notification that arrives while a
// clip is still playing.
package warning

import (
	"context"
	"sync"
)

// Sink receives warning notifications from the control loop.
type Sink interface {
	Notify(ctx context.Context) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context) error

func (f SinkFunc) Notify(ctx context.Context) error { return f(ctx) }

// Nop discards notifications. Used when audio is disabled.
var Nop Sink = SinkFunc(func(context.Context) error { return nil })

// Recorder is a Sink for tests that counts notifications.
type Recorder struct {
	mu    sync.Mutex
	count int
	Err   error
}

func (r *Recorder) Notify(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.Err
}

// Count returns the number of notifications received.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
