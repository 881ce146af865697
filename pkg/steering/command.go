package steering

import "fmt"

// Command is the single motor instruction produced per frame
type Command int

const (
	CommandStop Command = iota // Never produced by the engine; used by the runner
	CommandForward
	CommandBackward
	CommandTurnLeft
	CommandTurnRight
)

func (c Command) String() string {
	switch c {
	case CommandStop:
		return "stop"
	case CommandForward:
		return "forward"
	case CommandBackward:
		return "backward"
	case CommandTurnLeft:
		return "turn_left"
	case CommandTurnRight:
		return "turn_right"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// ParseCommand is the inverse of String.
func ParseCommand(s string) (Command, error) {
	switch s {
	case "stop":
		return CommandStop, nil
	case "forward":
		return CommandForward, nil
	case "backward":
		return CommandBackward, nil
	case "turn_left":
		return CommandTurnLeft, nil
	case "turn_right":
		return CommandTurnRight, nil
	}
	return CommandStop, fmt.Errorf("unknown command %q", s)
}

// MarshalText encodes the command by name in JSON
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a command name
func (c *Command) UnmarshalText(b []byte) error {
	parsed, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Branch classifies a frame. It is recomputed every frame, never stored.
type Branch int

const (
	BranchClear Branch = iota
	BranchObstacle
)

func (b Branch) String() string {
	if b == BranchObstacle {
		return "obstacle"
	}
	return "clear"
}

// MarshalText encodes the branch by name in JSON
func (b Branch) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a branch name
func (b *Branch) UnmarshalText(text []byte) error {
	switch string(text) {
	case "clear":
		*b = BranchClear
	case "obstacle":
		*b = BranchObstacle
	default:
		return fmt.Errorf("unknown branch %q", text)
	}
	return nil
}
