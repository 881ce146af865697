package warning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-autocar/pkg/tts"
)

// Default phrases, spoken in Taiwanese Mandarin
const (
	DefaultWarnPhrase  = "小心行人"
	DefaultStartPhrase = "啟動車輛"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("warning: announcer closed")

// Player plays an encoded clip to completion.
type Player interface {
	Play(ctx context.Context, clip []byte, ext string) error
}

// Config configures an Announcer.
type Config struct {
	WarnPhrase  string
	StartPhrase string
	// PlayTimeout bounds a single clip so a hung player cannot wedge the
	// announcer forever.
	PlayTimeout time.Duration
}

// DefaultConfig returns the stock phrases.
func DefaultConfig() Config {
	return Config{
		WarnPhrase:  DefaultWarnPhrase,
		StartPhrase: DefaultStartPhrase,
		PlayTimeout: 10 * time.Second,
	}
}

// Stats counts what happened to notifications.
type Stats struct {
	Played  uint64 `json:"played"`
	Dropped uint64 `json:"dropped"` // Arrived while a clip was playing
	Failed  uint64 `json:"failed"`
}

// Announcer is a Sink that speaks synthesized phrases. Clips are
// synthesized once and cached.
type Announcer struct {
	provider tts.Provider
	player   Player
	cfg      Config
	logger   *slog.Logger

	mu    sync.Mutex
	clips map[string]*tts.AudioResult

	busy    atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	played  atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

var _ Sink = (*Announcer)(nil)

// NewAnnouncer creates an announcer speaking through provider and player.
func NewAnnouncer(provider tts.Provider, player Player, cfg Config, logger *slog.Logger) *Announcer {
	if cfg.WarnPhrase == "" {
		cfg.WarnPhrase = DefaultWarnPhrase
	}
	if cfg.PlayTimeout <= 0 {
		cfg.PlayTimeout = DefaultConfig().PlayTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Announcer{
		provider: provider,
		player:   player,
		cfg:      cfg,
		logger:   logger.With("component", "warning"),
		clips:    make(map[string]*tts.AudioResult),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Prepare synthesizes the configured phrases ahead of time so the first
// warning is not delayed by a network round trip.
func (a *Announcer) Prepare(ctx context.Context) error {
	for _, phrase := range []string{a.cfg.WarnPhrase, a.cfg.StartPhrase} {
		if phrase == "" {
			continue
		}
		if _, err := a.clip(ctx, phrase); err != nil {
			return err
		}
	}
	return nil
}

func (a *Announcer) clip(ctx context.Context, phrase string) (*tts.AudioResult, error) {
	a.mu.Lock()
	cached, ok := a.clips[phrase]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	result, err := a.provider.Synthesize(ctx, phrase)
	if err != nil {
		return nil, fmt.Errorf("synthesize %q: %w", phrase, err)
	}

	a.mu.Lock()
	a.clips[phrase] = result
	a.mu.Unlock()
	return result, nil
}

func (a *Announcer) play(ctx context.Context, phrase string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PlayTimeout)
	defer cancel()

	c, err := a.clip(ctx, phrase)
	if err != nil {
		return err
	}
	return a.player.Play(ctx, c.Audio, c.Format.Encoding.FileExt())
}

// Notify starts the warning clip and returns without waiting for it.
// A notification that arrives while a clip is playing is dropped.
func (a *Announcer) Notify(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.busy.CompareAndSwap(false, true) {
		a.dropped.Add(1)
		a.logger.Debug("warning dropped, clip still playing")
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy.Store(false)

		if err := a.play(a.ctx, a.cfg.WarnPhrase); err != nil {
			a.failed.Add(1)
			a.logger.Warn("warning playback failed", "error", err)
			return
		}
		a.played.Add(1)
	}()
	return nil
}

// Announce speaks the start phrase and waits for it to finish. It is a
// no-op when no start phrase is configured.
func (a *Announcer) Announce(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if a.cfg.StartPhrase == "" {
		return nil
	}
	a.wg.Wait()
	a.busy.Store(true)
	defer a.busy.Store(false)

	if err := a.play(ctx, a.cfg.StartPhrase); err != nil {
		return fmt.Errorf("start announcement: %w", err)
	}
	return nil
}

// Stats returns notification counters.
func (a *Announcer) Stats() Stats {
	return Stats{
		Played:  a.played.Load(),
		Dropped: a.dropped.Load(),
		Failed:  a.failed.Load(),
	}
}

// Wait blocks until no clip is playing.
func (a *Announcer) Wait() {
	a.wg.Wait()
}

// Close stops accepting notifications, cancels any clip in flight and
// waits for the worker to exit.
func (a *Announcer) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.cancel()
	a.wg.Wait()
	return nil
}
