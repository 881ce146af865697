package motor

import (
	"sync"

	"github.com/teslashibe/go-autocar/pkg/steering"
)

// Mock is an Actuator for tests. It records every call in order.
type Mock struct {
	mu       sync.Mutex
	calls    []steering.Command
	cleanups int

	// FailOn makes the matching command return the error.
	FailOn map[steering.Command]error
	// CleanupErr is returned from Cleanup.
	CleanupErr error
}

var _ Actuator = (*Mock)(nil)

// NewMock creates a recording actuator.
func NewMock() *Mock {
	return &Mock{FailOn: make(map[steering.Command]error)}
}

func (m *Mock) record(cmd steering.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)
	return m.FailOn[cmd]
}

func (m *Mock) Forward() error   { return m.record(steering.CommandForward) }
func (m *Mock) Backward() error  { return m.record(steering.CommandBackward) }
func (m *Mock) TurnLeft() error  { return m.record(steering.CommandTurnLeft) }
func (m *Mock) TurnRight() error { return m.record(steering.CommandTurnRight) }
func (m *Mock) Stop() error      { return m.record(steering.CommandStop) }

func (m *Mock) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups++
	return m.CleanupErr
}

// Calls returns the recorded commands.
func (m *Mock) Calls() []steering.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]steering.Command, len(m.calls))
	copy(out, m.calls)
	return out
}

// Cleanups returns how many times Cleanup was called.
func (m *Mock) Cleanups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanups
}
