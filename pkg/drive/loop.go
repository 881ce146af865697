// Package drive runs the per-frame control loop: capture a frame, detect
// objects, decide a steering command, actuate it, and notify the side
// channels (warning sink, decision log, dashboard).
package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-autocar/pkg/camera"
	"github.com/teslashibe/go-autocar/pkg/debug"
	"github.com/teslashibe/go-autocar/pkg/detection"
	"github.com/teslashibe/go-autocar/pkg/motor"
	"github.com/teslashibe/go-autocar/pkg/steering"
	"github.com/teslashibe/go-autocar/pkg/store"
	"github.com/teslashibe/go-autocar/pkg/warning"
)

// Errors
var (
	ErrAlreadyRun    = errors.New("drive: loop already run")
	ErrStopped       = errors.New("drive: loop stopped")
	ErrTooManyFaults = errors.New("drive: too many consecutive faults")
)

// Stage names the step of a frame that failed
type Stage string

const (
	StageCapture Stage = "capture"
	StageDetect  Stage = "detect"
	StageDecide  Stage = "decide"
	StageActuate Stage = "actuate"
)

// FaultError is a failed frame
type FaultError struct {
	Frame uint64 // Frames decided before the fault
	Stage Stage
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("drive: %s: %v", e.Stage, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// Recorder keeps the session log. store.Store implements it.
type Recorder interface {
	StartSession(ctx context.Context, sess store.Session) error
	EndSession(ctx context.Context, id string, frames uint64) error
	RecordDecision(ctx context.Context, sessionID string, d steering.Decision, set detection.Set) error
}

// Publisher receives every decision and the frame it was made on.
// Implementations must not block.
type Publisher interface {
	PublishDecision(d steering.Decision)
	PublishFrame(jpeg []byte)
}

// Announcer is an optional Sink extension that speaks once at start
type Announcer interface {
	Announce(ctx context.Context) error
}

// Option configures a Loop
type Option func(*Loop)

// WithSink sets the warning sink. The default discards warnings.
func WithSink(s warning.Sink) Option {
	return func(l *Loop) { l.sink = s }
}

// WithRecorder logs the session and every decision
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithPublisher streams decisions and frames
func WithPublisher(p Publisher) Option {
	return func(l *Loop) { l.publisher = p }
}

// WithLogger sets the loop logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop owns one driving session. It is single use: Run tears down the
// camera, detector and actuator when it returns.
type Loop struct {
	cfg       Config
	engine    *steering.Engine
	source    camera.Source
	detector  detection.Detector
	actuator  motor.Actuator
	sink      warning.Sink
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger

	ran       atomic.Bool
	gate      chan struct{}
	gateOnce  sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	mu     sync.RWMutex
	status Status
	fps    fpsMeter
}

// NewLoop wires a loop. The engine must be fresh; its state becomes the
// session's state.
func NewLoop(engine *steering.Engine, source camera.Source, detector detection.Detector, actuator motor.Actuator, cfg Config, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil || source == nil || detector == nil || actuator == nil {
		return nil, errors.New("drive: engine, source, detector and actuator are required")
	}

	l := &Loop{
		cfg:      cfg,
		engine:   engine,
		source:   source,
		detector: detector,
		actuator: actuator,
		sink:     warning.Nop,
		logger:   slog.Default(),
		gate:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "drive")
	if cfg.AutoStart {
		l.openGate()
	}
	return l, nil
}

// Start releases a loop waiting for the go signal. It is a no-op when the
// loop is already driving.
func (l *Loop) Start() error {
	select {
	case <-l.stop:
		return ErrStopped
	default:
	}
	l.openGate()
	return nil
}

// Stop ends the loop between frames. Safe to call more than once and
// before Run.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

// Status returns a snapshot of the loop
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}

func (l *Loop) openGate() {
	l.gateOnce.Do(func() { close(l.gate) })
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	l.status.Phase = p
	l.mu.Unlock()
}

// Run drives until ctx is cancelled, Stop is called, a finite source runs
// out, or too many frames fail in a row. Individual frame faults are
// logged and skipped. Teardown always runs before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer l.teardown()

	l.setPhase(PhaseWaiting)
	select {
	case <-l.gate:
	case <-l.stop:
		return nil
	case <-ctx.Done():
		return nil
	}
	if l.stopped(ctx) {
		return nil
	}

	l.begin(ctx)

	var limiter *rate.Limiter
	if l.cfg.MaxFPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(l.cfg.MaxFPS), 1)
	}

	consecutive := 0
	for {
		if l.stopped(ctx) {
			return nil
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		err := l.step(ctx)
		if err == nil {
			consecutive = 0
			continue
		}
		if errors.Is(err, camera.ErrEndOfStream) {
			l.logger.Info("frame source exhausted", "frames", l.engine.Frames())
			return nil
		}

		consecutive++
		l.fault(err)
		if l.cfg.MaxConsecutiveFaults > 0 && consecutive >= l.cfg.MaxConsecutiveFaults {
			return fmt.Errorf("%w (%d): %w", ErrTooManyFaults, consecutive, err)
		}
	}
}

// stopped reports whether the loop should end before the next frame
func (l *Loop) stopped(ctx context.Context) bool {
	select {
	case <-l.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// begin opens the session log and plays the start announcement
func (l *Loop) begin(ctx context.Context) {
	id := uuid.NewString()
	started := time.Now().UTC()

	l.mu.Lock()
	l.status.Phase = PhaseRunning
	l.status.SessionID = id
	l.status.StartedAt = &started
	l.mu.Unlock()

	if l.recorder != nil {
		err := l.recorder.StartSession(ctx, store.Session{
			ID:        id,
			StartedAt: started,
			Source:    l.cfg.Source,
			Config:    l.engine.Config(),
		})
		if err != nil {
			l.logger.Warn("session log unavailable", "error", err)
			l.recorder = nil
		}
	}

	if a, ok := l.sink.(Announcer); ok {
		if err := a.Announce(ctx); err != nil {
			l.logger.Warn("start announcement failed", "error", err)
		}
	}
	l.logger.Info("driving", "session", id, "source", l.cfg.Source)
}

// step runs one frame
func (l *Loop) step(ctx context.Context) error {
	frames := l.engine.Frames()

	jpeg, err := l.source.Capture()
	if err != nil {
		if errors.Is(err, camera.ErrEndOfStream) {
			return err
		}
		return &FaultError{Frame: frames, Stage: StageCapture, Err: err}
	}

	set, err := l.detector.Detect(jpeg)
	if err != nil {
		return &FaultError{Frame: frames, Stage: StageDetect, Err: err}
	}

	d, err := l.engine.Step(set)
	if err != nil {
		return &FaultError{Frame: frames, Stage: StageDecide, Err: err}
	}

	actErr := motor.Apply(l.actuator, d.Command)

	if d.Warn {
		if err := l.sink.Notify(ctx); err != nil {
			l.logger.Warn("warning not delivered", "frame", d.Frame, "error", err)
		}
	}

	if l.recorder != nil {
		if err := l.recorder.RecordDecision(ctx, l.sessionID(), d, set); err != nil {
			l.logger.Warn("decision not recorded", "frame", d.Frame, "error", err)
		}
	}

	if l.publisher != nil {
		l.publisher.PublishDecision(d)
		l.publisher.PublishFrame(jpeg)
	}

	l.mu.Lock()
	l.status.Frames = d.Frame
	if d.Warn {
		l.status.Warnings++
	}
	l.status.FPS = l.fps.tick(time.Now())
	l.status.Last = &d
	fps := l.status.FPS
	l.mu.Unlock()

	debug.FrameLog("frame=%d branch=%s cmd=%s warn=%t bias=%d turn_cd=%d warn_cd=%d fps=%.1f\n",
		d.Frame, d.Branch, d.Command, d.Warn, d.State.DirectionBias,
		d.State.TurnCooldown.Remaining(), d.State.WarnCooldown.Remaining(), fps)

	if actErr != nil {
		return &FaultError{Frame: d.Frame, Stage: StageActuate, Err: actErr}
	}
	return nil
}

// fault logs a failed frame and, unless the frame simply was not ready,
// halts the wheels
func (l *Loop) fault(err error) {
	l.mu.Lock()
	l.status.Faults++
	l.status.LastError = err.Error()
	l.mu.Unlock()

	if errors.Is(err, camera.ErrNoFrame) {
		l.logger.Debug("frame skipped", "error", err)
		return
	}
	l.logger.Warn("frame skipped", "error", err)

	if l.cfg.StopOnFault {
		if err := l.actuator.Stop(); err != nil {
			l.logger.Error("stop after fault failed", "error", err)
		}
	}
}

func (l *Loop) sessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status.SessionID
}

// teardown halts and releases the hardware. Cleanup runs exactly once.
func (l *Loop) teardown() {
	l.closeOnce.Do(func() {
		l.Stop()

		if err := l.actuator.Stop(); err != nil {
			l.logger.Warn("final stop failed", "error", err)
		}
		if err := l.actuator.Cleanup(); err != nil {
			l.logger.Error("motor cleanup failed", "error", err)
		}
		if err := l.source.Close(); err != nil {
			l.logger.Warn("camera close failed", "error", err)
		}
		if err := l.detector.Close(); err != nil {
			l.logger.Warn("detector close failed", "error", err)
		}

		l.mu.Lock()
		l.status.Phase = PhaseStopped
		id, frames := l.status.SessionID, l.status.Frames
		l.mu.Unlock()

		if l.recorder != nil && id != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.recorder.EndSession(ctx, id, frames); err != nil {
				l.logger.Warn("session not closed", "error", err)
			}
		}
		l.logger.Info("stopped", "session", id, "frames", frames)
	})
}
