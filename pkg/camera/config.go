// Package camera provides the frame source for the control loop along with
// its runtime-configurable settings.
package camera

import "fmt"

// Device kinds
const (
	DeviceUSB   = "usb"   // V4L2 webcam opened by index
	DevicePicam = "picam" // Raspberry Pi camera through a GStreamer pipeline
)

// Config holds all camera configuration parameters.
// These can be modified via the dashboard at runtime.
type Config struct {
	Device    string `json:"device"`    // usb or picam
	Index     int    `json:"index"`     // USB device index
	Width     int    `json:"width"`     // Frame width in pixels
	Height    int    `json:"height"`    // Frame height in pixels
	Framerate int    `json:"framerate"` // Target FPS
	Quality   int    `json:"quality"`   // JPEG quality 1-100

	// The camera is often mounted upside down on the chassis
	FlipVertical   bool `json:"flip_vertical"`
	FlipHorizontal bool `json:"flip_horizontal"`
}

// Limits for the sensors we ship with
const (
	MaxWidth     = 1920
	MaxHeight    = 1080
	MaxFramerate = 60
)

// DefaultConfig returns the USB webcam setup at 640x480. Detection runs at
// model resolution anyway, so larger frames only cost time.
func DefaultConfig() Config {
	return Config{
		Device:    DeviceUSB,
		Index:     0,
		Width:     640,
		Height:    480,
		Framerate: 10,
		Quality:   80,
	}
}

// PicamConfig returns the Pi camera setup.
func PicamConfig() Config {
	cfg := DefaultConfig()
	cfg.Device = DevicePicam
	return cfg
}

// LowLatencyConfig trades resolution for frame rate.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 20
	cfg.Quality = 70
	return cfg
}

// Preset names
const (
	PresetDefault    = "default"
	PresetPicam      = "picam"
	PresetLowLatency = "low-latency"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:    DefaultConfig(),
		PresetPicam:      PicamConfig(),
		PresetLowLatency: LowLatencyConfig(),
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device != DeviceUSB && c.Device != DevicePicam {
		errors = append(errors, "device must be usb or picam")
	}
	if c.Index < 0 {
		errors = append(errors, "index must not be negative")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}

// Pipeline returns the GStreamer pipeline for the Pi camera. libcamerasrc
// delivers raw frames; appsink hands BGR to OpenCV.
func (c Config) Pipeline() string {
	return fmt.Sprintf(
		"libcamerasrc ! video/x-raw,width=%d,height=%d,framerate=%d/1 ! videoconvert ! video/x-raw,format=BGR ! appsink drop=true max-buffers=1",
		c.Width, c.Height, c.Framerate,
	)
}

// flipCode maps the flip flags to OpenCV's flip code, ok=false for none.
func (c Config) flipCode() (code int, ok bool) {
	switch {
	case c.FlipVertical && c.FlipHorizontal:
		return -1, true
	case c.FlipVertical:
		return 0, true
	case c.FlipHorizontal:
		return 1, true
	}
	return 0, false
}
