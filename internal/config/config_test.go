package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedHelpers(t *testing.T) {
	t.Setenv("AUTOCAR_NAME", "  rover ")
	t.Setenv("AUTOCAR_FPS", "15")
	t.Setenv("AUTOCAR_THRESHOLD", "0.55")
	t.Setenv("AUTOCAR_DASHBOARD", "false")
	t.Setenv("AUTOCAR_TIMEOUT", "250ms")
	t.Setenv("AUTOCAR_BAD_INT", "ten")

	assert.Equal(t, "rover", String("NAME", "x"))
	assert.Equal(t, 15, Int("FPS", 10))
	assert.InDelta(t, 0.55, Float("THRESHOLD", 0.4), 1e-9)
	assert.False(t, Bool("DASHBOARD", true))
	assert.Equal(t, 250*time.Millisecond, Duration("TIMEOUT", time.Second))
	assert.Equal(t, 7, Int("BAD_INT", 7))
	assert.Equal(t, "def", String("MISSING", "def"))
}

func TestEmptyValueFallsBack(t *testing.T) {
	t.Setenv("AUTOCAR_PORT", "   ")
	assert.Equal(t, "/dev/ttyUSB0", String("PORT", "/dev/ttyUSB0"))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AUTOCAR_DOTENV_FPS=12\nAUTOCAR_DOTENV_KEEP=file\n"), 0o600))

	t.Setenv("AUTOCAR_DOTENV_KEEP", "env")
	t.Cleanup(func() { os.Unsetenv("AUTOCAR_DOTENV_FPS") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, 12, Int("DOTENV_FPS", 0))
	assert.Equal(t, "env", String("DOTENV_KEEP", ""), "existing env wins over .env")
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
