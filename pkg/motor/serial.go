package motor

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/teslashibe/go-autocar/pkg/steering"
)

// Line codes understood by the motor controller firmware. Each command is
// one code followed by a newline.
const (
	codeForward  = 'F'
	codeBackward = 'B'
	codeLeft     = 'L'
	codeRight    = 'R'
	codeStop     = 'S'
)

// LineCode returns the serial code for cmd.
func LineCode(cmd steering.Command) (byte, error) {
	switch cmd {
	case steering.CommandForward:
		return codeForward, nil
	case steering.CommandBackward:
		return codeBackward, nil
	case steering.CommandTurnLeft:
		return codeLeft, nil
	case steering.CommandTurnRight:
		return codeRight, nil
	case steering.CommandStop:
		return codeStop, nil
	}
	return 0, ErrUnknownCommand
}

// Serial drives a motor controller attached over a serial line.
type Serial struct {
	mu     sync.Mutex
	port   io.WriteCloser
	closed bool
	logger *slog.Logger
}

var _ Actuator = (*Serial)(nil)

// OpenSerial opens the port at path and returns a driver for it.
func OpenSerial(path string, opts PortOptions, logger *slog.Logger) (*Serial, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open motor port %s: %w", path, err)
	}

	return NewSerial(port, logger), nil
}

// NewSerial wraps an already open port.
func NewSerial(port io.WriteCloser, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{port: port, logger: logger.With("component", "motor.serial")}
}

func (s *Serial) send(cmd steering.Command) error {
	code, err := LineCode(cmd)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.port.Write([]byte{code, '\n'}); err != nil {
		return fmt.Errorf("write %c: %w", code, err)
	}
	return nil
}

func (s *Serial) Forward() error   { return s.send(steering.CommandForward) }
func (s *Serial) Backward() error  { return s.send(steering.CommandBackward) }
func (s *Serial) TurnLeft() error  { return s.send(steering.CommandTurnLeft) }
func (s *Serial) TurnRight() error { return s.send(steering.CommandTurnRight) }
func (s *Serial) Stop() error      { return s.send(steering.CommandStop) }

// Cleanup stops the wheels and closes the port. Later calls return ErrClosed.
func (s *Serial) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true

	_, werr := s.port.Write([]byte{codeStop, '\n'})
	cerr := s.port.Close()
	if werr != nil {
		s.logger.Warn("final stop not delivered", "error", werr)
		return fmt.Errorf("final stop: %w", werr)
	}
	return cerr
}
