// Package autocar assembles the vehicle: camera, detector, steering loop,
// motors, voice warnings, session log and dashboard.
package autocar

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-autocar/internal/config"
	"github.com/teslashibe/go-autocar/pkg/camera"
	"github.com/teslashibe/go-autocar/pkg/detection"
	"github.com/teslashibe/go-autocar/pkg/drive"
	"github.com/teslashibe/go-autocar/pkg/steering"
	"github.com/teslashibe/go-autocar/pkg/warning"
)

// Motor links
const (
	MotorSerial = "serial"
	MotorHTTP   = "http"
	MotorDry    = "dry" // Commands go to the debug log, nothing moves
)

// Voice providers
const (
	VoiceGoogle = "google"
	VoiceOpenAI = "openai"
	VoiceChain  = "chain" // Google, falling back to OpenAI
	VoiceOff    = "off"
)

// Config holds everything needed to bring the vehicle up.
// Flag parsing is done in cmd/autocar; this struct is data only.
type Config struct {
	Debug       bool // Forces debug level logging
	DebugFrames bool
	LogLevel    string
	LogFile     string // Rotated log file, empty for stderr only

	// Vision
	CameraPreset string
	CameraIndex  int
	ModelPath    string

	// Steering
	SteeringPreset string
	Drive          drive.Config

	// Motors
	Motor      string
	SerialPort string
	BaudRate   int
	MotorURL   string

	// Voice
	Voice         string
	Language      string
	WarnPhrase    string
	StartPhrase   string
	PlayerCommand string
	PlayTimeout   time.Duration

	// Credentials, usually from the environment
	GoogleAPIKey          string
	GoogleCredentialsFile string
	OpenAIKey             string

	// Session log, empty disables
	DBPath string

	// Dashboard, empty address disables
	WebAddr   string
	WebStatic string
	CameraFPS float64
}

// DefaultConfig returns settings for the USB webcam car on a serial link
func DefaultConfig() Config {
	return Config{
		LogLevel:       "info",
		CameraPreset:   camera.PresetDefault,
		ModelPath:      detection.DefaultYOLOConfig().ModelPath,
		SteeringPreset: "default",
		Drive:          drive.DefaultConfig(),
		Motor:          MotorSerial,
		SerialPort:     "/dev/ttyUSB0",
		Voice:          VoiceGoogle,
		Language:       "zh-TW",
		WarnPhrase:     warning.DefaultWarnPhrase,
		StartPhrase:    warning.DefaultStartPhrase,
		PlayerCommand:  "mpg123 -q",
		PlayTimeout:    10 * time.Second,
		DBPath:         "autocar.db",
		WebAddr:        ":8080",
		CameraFPS:      5,
	}
}

// LoadEnvConfig applies AUTOCAR_* overrides and the provider credentials.
// Call it before flag parsing so flags take precedence.
func (c *Config) LoadEnvConfig() {
	c.Debug = config.Bool("DEBUG", c.Debug)
	c.LogLevel = config.String("LOG_LEVEL", c.LogLevel)
	c.LogFile = config.String("LOG_FILE", c.LogFile)

	c.CameraPreset = config.String("CAMERA", c.CameraPreset)
	c.CameraIndex = config.Int("CAMERA_INDEX", c.CameraIndex)
	c.ModelPath = config.String("MODEL", c.ModelPath)

	c.SteeringPreset = config.String("STEERING", c.SteeringPreset)
	c.Drive.MaxFPS = config.Float("MAX_FPS", c.Drive.MaxFPS)
	c.Drive.StopOnFault = config.Bool("STOP_ON_FAULT", c.Drive.StopOnFault)
	c.Drive.AutoStart = config.Bool("AUTO_START", c.Drive.AutoStart)

	c.Motor = config.String("MOTOR", c.Motor)
	c.SerialPort = config.String("SERIAL_PORT", c.SerialPort)
	c.BaudRate = config.Int("BAUD", c.BaudRate)
	c.MotorURL = config.String("MOTOR_URL", c.MotorURL)

	c.Voice = config.String("VOICE", c.Voice)
	c.Language = config.String("LANGUAGE", c.Language)
	c.WarnPhrase = config.String("WARN_PHRASE", c.WarnPhrase)
	c.StartPhrase = config.String("START_PHRASE", c.StartPhrase)
	c.PlayerCommand = config.String("PLAYER", c.PlayerCommand)
	c.PlayTimeout = config.Duration("PLAY_TIMEOUT", c.PlayTimeout)

	c.DBPath = config.String("DB", c.DBPath)
	c.WebAddr = config.String("WEB_ADDR", c.WebAddr)

	c.GoogleAPIKey = config.Secret("GOOGLE_API_KEY")
	c.GoogleCredentialsFile = config.Secret("GOOGLE_APPLICATION_CREDENTIALS")
	c.OpenAIKey = config.Secret("OPENAI_API_KEY")
}

// Validate checks that the selected components have what they need.
func (c *Config) Validate() error {
	if camera.GetPreset(c.CameraPreset) == nil {
		return &ConfigError{Field: "CameraPreset", Message: fmt.Sprintf("unknown camera preset %q", c.CameraPreset)}
	}
	if _, err := steering.Preset(c.SteeringPreset); err != nil {
		return &ConfigError{Field: "SteeringPreset", Message: err.Error()}
	}
	if err := c.Drive.Validate(); err != nil {
		return &ConfigError{Field: "Drive", Message: err.Error()}
	}

	switch c.Motor {
	case MotorSerial:
		if c.SerialPort == "" {
			return &ConfigError{Field: "SerialPort", Message: "a serial port is required for the serial motor link"}
		}
	case MotorHTTP:
		if c.MotorURL == "" {
			return &ConfigError{Field: "MotorURL", Message: "a base URL is required for the http motor link"}
		}
	case MotorDry:
	default:
		return &ConfigError{Field: "Motor", Message: fmt.Sprintf("unknown motor link %q", c.Motor)}
	}

	switch c.Voice {
	case VoiceGoogle, VoiceChain, VoiceOff:
	case VoiceOpenAI:
		if c.OpenAIKey == "" {
			return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for openai voice"}
		}
	default:
		return &ConfigError{Field: "Voice", Message: fmt.Sprintf("unknown voice provider %q", c.Voice)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// EffectiveLogLevel is LogLevel, raised to debug when Debug is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// CameraConfig resolves the camera preset and index
func (c *Config) CameraConfig() camera.Config {
	cfg := *camera.GetPreset(c.CameraPreset)
	cfg.Index = c.CameraIndex
	return cfg
}
