// Package motor drives the vehicle's wheels.
//
// Like the rest of the hardware packages it defines small interfaces so
// consumers depend only on what they use: the control loop needs a Driver
// for per-frame commands, and only the runner's teardown needs a Cleaner.
package motor

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-autocar/pkg/steering"
)

// Errors
var (
	ErrClosed         = errors.New("motor: actuator closed")
	ErrUnknownCommand = errors.New("motor: unknown command")
)

// Driver issues one movement command. Each call replaces the previous one.
type Driver interface {
	Forward() error
	Backward() error
	TurnLeft() error
	TurnRight() error
	Stop() error
}

// Cleaner releases the motor hardware. It is terminal: no command may
// follow it.
type Cleaner interface {
	Cleanup() error
}

// Actuator is the composite the runner owns.
type Actuator interface {
	Driver
	Cleaner
}

// CommandError reports which command an actuator failed to carry out.
type CommandError struct {
	Command steering.Command
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("motor: %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Apply dispatches exactly one Driver call for cmd.
func Apply(d Driver, cmd steering.Command) error {
	var err error
	switch cmd {
	case steering.CommandForward:
		err = d.Forward()
	case steering.CommandBackward:
		err = d.Backward()
	case steering.CommandTurnLeft:
		err = d.TurnLeft()
	case steering.CommandTurnRight:
		err = d.TurnRight()
	case steering.CommandStop:
		err = d.Stop()
	default:
		err = ErrUnknownCommand
	}
	if err != nil {
		return &CommandError{Command: cmd, Err: err}
	}
	return nil
}
