package drive

import (
	"time"

	"github.com/teslashibe/go-autocar/pkg/steering"
)

// Phase is where a Loop is in its life
type Phase int

const (
	PhaseIdle    Phase = iota // Constructed, Run not called
	PhaseWaiting              // Run called, waiting for Start
	PhaseRunning
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Status is a point-in-time snapshot of the loop for the dashboard.
type Status struct {
	Phase     Phase              `json:"phase"`
	SessionID string             `json:"session_id,omitempty"`
	StartedAt *time.Time         `json:"started_at,omitempty"` // Nil until the run begins
	Frames    uint64             `json:"frames"`
	Faults    uint64             `json:"faults"`
	Warnings  uint64             `json:"warnings"`
	FPS       float64            `json:"fps"`
	LastError string             `json:"last_error,omitempty"`
	Last      *steering.Decision `json:"last,omitempty"`
}

// fpsMeter smooths the instantaneous frame rate
type fpsMeter struct {
	last  time.Time
	value float64
}

const fpsAlpha = 0.2

func (m *fpsMeter) tick(now time.Time) float64 {
	if !m.last.IsZero() {
		if dt := now.Sub(m.last).Seconds(); dt > 0 {
			inst := 1 / dt
			if m.value == 0 {
				m.value = inst
			} else {
				m.value += fpsAlpha * (inst - m.value)
			}
		}
	}
	m.last = now
	return m.value
}
