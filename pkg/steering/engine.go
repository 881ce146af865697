// Package steering turns per-frame detections into one motor command.
//
// The decision is a two-branch classification of the current frame (clear
// or obstacle) plus a small amount of carried State: a signed count of
// avoidance turns still owed a correction, and two cooldown windows. Decide
// is the pure form; Engine owns a State for a session.
package steering

import (
	"github.com/teslashibe/go-autocar/pkg/detection"
)

// State persists across frames within one session.
type State struct {
	// DirectionBias counts net avoidance turns not yet corrected:
	// +1 per avoidance right turn, -1 per avoidance left turn.
	DirectionBias int      `json:"direction_bias"`
	TurnCooldown  Cooldown `json:"turn_cooldown"`
	WarnCooldown  Cooldown `json:"warn_cooldown"`
}

// Decision is the outcome of one frame.
type Decision struct {
	Frame   uint64  `json:"frame"`
	Branch  Branch  `json:"branch"`
	Command Command `json:"command"`
	Warn    bool    `json:"warn"`    // The warning sink should be notified
	Reading Reading `json:"reading"` // Obstacle that drove the decision, if any
	State   State   `json:"state"`   // State after the frame
}

// Decide computes the command for one frame and the state that follows it.
// It does not modify s.
func Decide(s State, r Reading, cfg Config) (Decision, State) {
	next := s
	d := Decision{Reading: r}

	if r.Present {
		d.Branch = BranchObstacle
		switch {
		case r.SpanY > cfg.CloseSpan:
			// Too close to steer around, whatever its lateral position
			d.Command = CommandBackward
		case r.CenterX <= cfg.CenterLine:
			d.Command = CommandTurnRight
			next.DirectionBias++
		default:
			d.Command = CommandTurnLeft
			next.DirectionBias--
		}
		next.TurnCooldown.Arm(cfg.TurnCooldownFrames)

		if !next.WarnCooldown.Active() {
			d.Warn = true
			next.WarnCooldown.Arm(cfg.WarnCooldownFrames)
		}
	} else {
		d.Branch = BranchClear
		switch {
		case next.TurnCooldown.Active() || next.DirectionBias == 0:
			d.Command = CommandForward
		case next.DirectionBias > 0:
			d.Command = CommandTurnLeft
			next.DirectionBias--
		default:
			d.Command = CommandTurnRight
			next.DirectionBias++
		}
	}

	// Both windows run in wall-clock frames, not obstacle frames
	next.TurnCooldown.Tick()
	next.WarnCooldown.Tick()

	d.State = next
	return d, next
}

// Engine owns the steering State for one session. It is not safe for
// concurrent use; the control loop is its only caller.
type Engine struct {
	cfg    Config
	state  State
	frames uint64
}

// NewEngine validates cfg and returns an engine with zero state
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Step evaluates one detection set and advances the state. On malformed
// input it returns the error and leaves the state untouched.
func (e *Engine) Step(set detection.Set) (Decision, error) {
	r, err := Evaluate(set, e.cfg)
	if err != nil {
		return Decision{}, err
	}

	d, next := Decide(e.state, r, e.cfg)
	e.frames++
	d.Frame = e.frames
	e.state = next
	return d, nil
}

// State returns a copy of the current state
func (e *Engine) State() State {
	return e.state
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Frames returns the number of frames decided so far
func (e *Engine) Frames() uint64 {
	return e.frames
}

// Reset zeroes the state for a new session
func (e *Engine) Reset() {
	e.state = State{}
	e.frames = 0
}
