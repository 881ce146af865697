package drive

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config controls the runner around the steering engine. The engine's own
// tuning lives in steering.Config.
type Config struct {
	// MaxFPS caps the frame rate. Zero runs as fast as capture and
	// detection allow.
	MaxFPS float64 `json:"max_fps" validate:"gte=0,lte=120"`

	// StopOnFault issues a motor Stop when a frame fails, so the vehicle
	// does not keep executing a stale command.
	StopOnFault bool `json:"stop_on_fault"`

	// MaxConsecutiveFaults ends the run after this many failed frames in a
	// row. Zero never gives up.
	MaxConsecutiveFaults int `json:"max_consecutive_faults" validate:"gte=0"`

	// AutoStart begins driving as soon as Run is called. Otherwise the
	// loop waits for Start, usually from the dashboard.
	AutoStart bool `json:"auto_start"`

	// Source describes the frame source for the session log
	Source string `json:"source"`
}

// DefaultConfig returns runner settings for an attended vehicle
func DefaultConfig() Config {
	return Config{
		MaxFPS:               0,
		StopOnFault:          true,
		MaxConsecutiveFaults: 30,
		AutoStart:            true,
		Source:               "camera",
	}
}

var validate = validator.New()

// Validate checks the numeric bounds
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("drive config: %w", err)
	}
	return nil
}
