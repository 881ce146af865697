package motor

import (
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-autocar/pkg/steering"
)

// Dry is an Actuator with no wheels attached. Each command goes to the
// debug log and is otherwise dropped.
type Dry struct {
	closed atomic.Bool
	logger *slog.Logger
}

var _ Actuator = (*Dry)(nil)

// NewDry creates a dry-run actuator.
func NewDry(logger *slog.Logger) *Dry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dry{logger: logger.With("component", "motor.dry")}
}

func (d *Dry) send(cmd steering.Command) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.logger.Debug("command", "command", cmd)
	return nil
}

func (d *Dry) Forward() error   { return d.send(steering.CommandForward) }
func (d *Dry) Backward() error  { return d.send(steering.CommandBackward) }
func (d *Dry) TurnLeft() error  { return d.send(steering.CommandTurnLeft) }
func (d *Dry) TurnRight() error { return d.send(steering.CommandTurnRight) }
func (d *Dry) Stop() error      { return d.send(steering.CommandStop) }

// Cleanup ends the dry run. Later calls return ErrClosed.
func (d *Dry) Cleanup() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	d.logger.Debug("cleanup")
	return nil
}
