package autocar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-autocar/pkg/camera"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown camera", func(c *Config) { c.CameraPreset = "thermal" }, "CameraPreset"},
		{"unknown steering", func(c *Config) { c.SteeringPreset = "reckless" }, "SteeringPreset"},
		{"negative fps", func(c *Config) { c.Drive.MaxFPS = -1 }, "Drive"},
		{"serial without port", func(c *Config) { c.SerialPort = "" }, "SerialPort"},
		{"http without url", func(c *Config) { c.Motor = MotorHTTP }, "MotorURL"},
		{"unknown motor", func(c *Config) { c.Motor = "can" }, "Motor"},
		{"openai without key", func(c *Config) { c.Voice = VoiceOpenAI }, "OpenAIKey"},
		{"unknown voice", func(c *Config) { c.Voice = "espeak" }, "Voice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestValidate_DryRunNeedsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Motor = MotorDry
	cfg.SerialPort = ""
	cfg.Voice = VoiceOff
	assert.NoError(t, cfg.Validate())
}

func TestEffectiveLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	assert.Equal(t, "warn", cfg.EffectiveLogLevel())

	t.Setenv("AUTOCAR_DEBUG", "true")
	cfg.LoadEnvConfig()
	assert.Equal(t, "debug", cfg.EffectiveLogLevel())
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("AUTOCAR_CAMERA", camera.PresetPicam)
	t.Setenv("AUTOCAR_STEERING", "cautious")
	t.Setenv("AUTOCAR_MOTOR", "http")
	t.Setenv("AUTOCAR_MOTOR_URL", "http://car.local:8000")
	t.Setenv("AUTOCAR_MAX_FPS", "12.5")
	t.Setenv("AUTOCAR_AUTO_START", "false")
	t.Setenv("AUTOCAR_WARN_PHRASE", "注意")
	t.Setenv("AUTOCAR_PLAY_TIMEOUT", "3s")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := DefaultConfig()
	cfg.LoadEnvConfig()

	assert.Equal(t, camera.PresetPicam, cfg.CameraPreset)
	assert.Equal(t, "cautious", cfg.SteeringPreset)
	assert.Equal(t, MotorHTTP, cfg.Motor)
	assert.Equal(t, "http://car.local:8000", cfg.MotorURL)
	assert.Equal(t, 12.5, cfg.Drive.MaxFPS)
	assert.False(t, cfg.Drive.AutoStart)
	assert.True(t, cfg.Drive.StopOnFault)
	assert.Equal(t, "注意", cfg.WarnPhrase)
	assert.Equal(t, 3*time.Second, cfg.PlayTimeout)
	assert.Equal(t, "sk-test", cfg.OpenAIKey)
	assert.NoError(t, cfg.Validate())
}

func TestCameraConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CameraIndex = 2
	cc := cfg.CameraConfig()
	assert.Equal(t, 2, cc.Index)
	assert.Equal(t, camera.DeviceUSB, cc.Device)
}

func TestNewRejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Motor = ""
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
