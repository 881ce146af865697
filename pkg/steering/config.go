package steering

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/teslashibe/go-autocar/pkg/detection"
)

// Config holds all tunable parameters for obstacle avoidance
type Config struct {
	// Obstacle selection
	ObstacleClass       int     `json:"obstacle_class" validate:"gte=0"`             // Class id treated as safety relevant
	ConfidenceThreshold float64 `json:"confidence_threshold" validate:"gte=0,lte=1"` // Score must be strictly above this

	// Geometry
	CloseSpan  float64 `json:"close_span" validate:"gte=0,lte=1"`  // Box height above this means too close to steer around
	CenterLine float64 `json:"center_line" validate:"gte=0,lte=1"` // Obstacles at or left of this are avoided by turning right

	// Cooldowns (frames)
	TurnCooldownFrames int `json:"turn_cooldown_frames" validate:"gt=0"` // Straight driving after an avoidance turn before correcting
	WarnCooldownFrames int `json:"warn_cooldown_frames" validate:"gt=0"` // Minimum frames between two warnings
}

// DefaultConfig returns the tuning the vehicle was originally driven with
func DefaultConfig() Config {
	return Config{
		ObstacleClass:       detection.ClassPerson,
		ConfidenceThreshold: 0.4,

		CloseSpan:  0.6,
		CenterLine: 0.5,

		TurnCooldownFrames: 10,
		WarnCooldownFrames: 10,
	}
}

// CautiousConfig reacts to weaker detections, backs off earlier and holds
// heading longer before correcting
func CautiousConfig() Config {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.3
	cfg.CloseSpan = 0.45
	cfg.TurnCooldownFrames = 15
	return cfg
}

// AggressiveConfig ignores weak detections and corrects heading sooner
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.55
	cfg.CloseSpan = 0.7
	cfg.TurnCooldownFrames = 6
	return cfg
}

var validate = validator.New()

// Validate rejects thresholds outside [0,1] and non-positive cooldowns
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("steering config: %w", err)
	}
	return nil
}

// Preset returns a named configuration: "default", "cautious" or "aggressive".
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "cautious":
		return CautiousConfig(), nil
	case "aggressive":
		return AggressiveConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown steering preset %q", name)
	}
}
