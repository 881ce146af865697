// Package audio plays announcement clips through the vehicle's speaker.
//
// Playback shells out to a command-line player (mpg123 by default, omxplayer
// on older Pi images) the same way the clip would be played by hand.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// ErrBusy is returned when a clip is already playing.
var ErrBusy = errors.New("audio: player busy")

// Known player commands
var (
	Mpg123    = []string{"mpg123", "-q"}
	OMXPlayer = []string{"omxplayer", "-o", "local", "--no-keys"}
	Aplay     = []string{"aplay", "-q"} // WAV only
)

// RunFunc executes a player command to completion.
type RunFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Player plays one clip at a time.
type Player struct {
	command []string
	tmpDir  string
	run     RunFunc

	speaking   bool
	speakingMu sync.Mutex
}

// NewPlayer creates a player using command (Mpg123 when empty). The clip
// path is appended as the last argument.
func NewPlayer(command []string) *Player {
	if len(command) == 0 {
		command = Mpg123
	}
	return &Player{
		command: command,
		tmpDir:  os.TempDir(),
		run:     execRun,
	}
}

var presets = map[string][]string{
	"mpg123":    Mpg123,
	"omxplayer": OMXPlayer,
	"aplay":     Aplay,
}

// ParseCommand splits a player command line such as "omxplayer -o local".
// A bare known player name expands to its preset arguments.
func ParseCommand(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 1 {
		if preset, ok := presets[fields[0]]; ok {
			return preset
		}
	}
	return fields
}

// SetRunner replaces the process runner. Tests use it to avoid spawning
// real players.
func (p *Player) SetRunner(run RunFunc) {
	p.run = run
}

// Play writes clip to a temp file with extension ext and plays it to
// completion. It returns ErrBusy instead of overlapping another clip.
func (p *Player) Play(ctx context.Context, clip []byte, ext string) error {
	p.speakingMu.Lock()
	if p.speaking {
		p.speakingMu.Unlock()
		return ErrBusy
	}
	p.speaking = true
	p.speakingMu.Unlock()

	defer func() {
		p.speakingMu.Lock()
		p.speaking = false
		p.speakingMu.Unlock()
	}()

	f, err := os.CreateTemp(p.tmpDir, "autocar-clip-*"+ext)
	if err != nil {
		return fmt.Errorf("create clip file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(clip); err != nil {
		f.Close()
		return fmt.Errorf("write clip file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close clip file: %w", err)
	}

	args := append(append([]string{}, p.command[1:]...), path)
	return p.run(ctx, p.command[0], args...)
}
