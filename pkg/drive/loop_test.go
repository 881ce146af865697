package drive

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-autocar/internal/log"
	"github.com/teslashibe/go-autocar/pkg/camera"
	"github.com/teslashibe/go-autocar/pkg/detection"
	"github.com/teslashibe/go-autocar/pkg/motor"
	"github.com/teslashibe/go-autocar/pkg/steering"
	"github.com/teslashibe/go-autocar/pkg/store"
	"github.com/teslashibe/go-autocar/pkg/warning"
)

var (
	F = steering.CommandForward
	B = steering.CommandBackward
	L = steering.CommandTurnLeft
	R = steering.CommandTurnRight
	S = steering.CommandStop
)

// pedestrian at horizontal centre cx with vertical span h
func pedestrian(cx, h float64) detection.Set {
	return detection.Set{{
		ClassID: detection.ClassPerson,
		Score:   0.9,
		Box:     detection.Box{YMin: 0, XMin: cx, YMax: h, XMax: cx},
	}}
}

func frames(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{0xff, 0xd8, byte(i)}
	}
	return out
}

type rig struct {
	engine   *steering.Engine
	source   *camera.Static
	detector *detection.Scripted
	motor    *motor.Mock
}

func newRig(t *testing.T, source *camera.Static, detector *detection.Scripted) *rig {
	t.Helper()
	e, err := steering.NewEngine(steering.DefaultConfig())
	require.NoError(t, err)
	return &rig{engine: e, source: source, detector: detector, motor: motor.NewMock()}
}

func (r *rig) loop(t *testing.T, cfg Config, opts ...Option) *Loop {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	l, err := NewLoop(r.engine, r.source, r.detector, r.motor, cfg, opts...)
	require.NoError(t, err)
	return l
}

// scripted builds a rig whose source yields one frame per set
func scripted(t *testing.T, sets ...detection.Set) *rig {
	return newRig(t, camera.NewStatic(frames(len(sets))...), detection.NewScripted(sets...))
}

func TestRun_DrivesScriptedSession(t *testing.T) {
	sets := []detection.Set{pedestrian(0.3, 0.4)}
	sets = append(sets, make([]detection.Set, 10)...)
	r := scripted(t, sets...)

	err := r.loop(t, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	want := []steering.Command{R, F, F, F, F, F, F, F, F, F, L, S}
	assert.Equal(t, want, r.motor.Calls())
	assert.Equal(t, 1, r.motor.Cleanups())
	assert.True(t, r.source.Closed())
	assert.True(t, r.detector.Closed())
}

type cleanupWatch struct {
	t         *testing.T
	motor     *motor.Mock
	mu        sync.Mutex
	decisions []steering.Decision
	frames    int
}

func (w *cleanupWatch) PublishDecision(d steering.Decision) {
	assert.Zero(w.t, w.motor.Cleanups(), "cleanup before frame %d", d.Frame)
	w.mu.Lock()
	w.decisions = append(w.decisions, d)
	w.mu.Unlock()
}

func (w *cleanupWatch) PublishFrame([]byte) {
	w.mu.Lock()
	w.frames++
	w.mu.Unlock()
}

func TestRun_CleanupOnlyAtTeardown(t *testing.T) {
	r := scripted(t, pedestrian(0.7, 0.3), pedestrian(0.2, 0.8), nil, nil)
	w := &cleanupWatch{t: t, motor: r.motor}

	require.NoError(t, r.loop(t, DefaultConfig(), WithPublisher(w)).Run(context.Background()))

	assert.Len(t, w.decisions, 4)
	assert.Equal(t, 4, w.frames)
	assert.Equal(t, 1, r.motor.Cleanups())
	assert.Equal(t, []steering.Command{L, B, F, F, S}, r.motor.Calls())
}

func TestRun_StopOnFault(t *testing.T) {
	boom := errors.New("inference failed")
	r := newRig(t, camera.NewStatic(frames(3)...), detection.NewScripted(nil, nil, nil).FailAt(1, boom))
	l := r.loop(t, DefaultConfig())

	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, []steering.Command{F, S, F, S}, r.motor.Calls())
	st := l.Status()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(1), st.Faults)
	assert.Contains(t, st.LastError, "inference failed")
}

func TestRun_FaultWithoutStop(t *testing.T) {
	r := newRig(t, camera.NewStatic(frames(3)...), detection.NewScripted(nil, nil, nil).FailAt(1, errors.New("x")))
	cfg := DefaultConfig()
	cfg.StopOnFault = false

	require.NoError(t, r.loop(t, cfg).Run(context.Background()))
	assert.Equal(t, []steering.Command{F, F, S}, r.motor.Calls())
}

func TestRun_MalformedFrameLeavesStateUntouched(t *testing.T) {
	bad := detection.Set{{ClassID: detection.ClassPerson, Score: 1.5}}
	r := scripted(t, pedestrian(0.3, 0.4), bad, nil)
	l := r.loop(t, DefaultConfig())

	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, []steering.Command{R, S, F, S}, r.motor.Calls())
	st := l.Status()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(1), st.Faults)
	require.NotNil(t, st.Last)
	// One clear frame after the turn: bias kept, cooldown ticked twice
	assert.Equal(t, steering.State{DirectionBias: 1, TurnCooldown: 8, WarnCooldown: 8}, st.Last.State)
}

func TestRun_WarningCadence(t *testing.T) {
	sets := make([]detection.Set, 21)
	for i := range sets {
		sets[i] = pedestrian(0.2, 0.3)
	}
	r := scripted(t, sets...)
	sink := &warning.Recorder{}
	l := r.loop(t, DefaultConfig(), WithSink(sink))

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 3, sink.Count()) // frames 1, 11, 21
	assert.Equal(t, uint64(3), l.Status().Warnings)
}

func TestRun_SinkErrorIsNotAFault(t *testing.T) {
	r := scripted(t, pedestrian(0.2, 0.3))
	sink := &warning.Recorder{Err: errors.New("speaker unplugged")}
	l := r.loop(t, DefaultConfig(), WithSink(sink))

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1, sink.Count())
	assert.Zero(t, l.Status().Faults)
}

type announcingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *announcingSink) Notify(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "warn")
	return nil
}

func (s *announcingSink) Announce(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "start")
	return nil
}

func TestRun_AnnouncesBeforeFirstFrame(t *testing.T) {
	r := scripted(t, pedestrian(0.2, 0.3))
	sink := &announcingSink{}

	require.NoError(t, r.loop(t, DefaultConfig(), WithSink(sink)).Run(context.Background()))
	assert.Equal(t, []string{"start", "warn"}, sink.events)
}

func TestRun_TooManyFaults(t *testing.T) {
	r := newRig(t, camera.NewStatic(frames(1)...).Loop(), detection.NewScripted())
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFaults = 3
	cfg.StopOnFault = false
	l := r.loop(t, cfg)

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrTooManyFaults)
	assert.ErrorIs(t, err, detection.ErrScriptExhausted)

	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageDetect, fe.Stage)

	assert.Equal(t, []steering.Command{S}, r.motor.Calls())
	assert.Equal(t, 1, r.motor.Cleanups())
	assert.Equal(t, PhaseStopped, l.Status().Phase)
}

func TestRun_WaitsForStart(t *testing.T) {
	r := newRig(t, camera.NewStatic(frames(1)...).Loop(), detection.NewScripted(nil).Loop())
	cfg := DefaultConfig()
	cfg.AutoStart = false
	l := r.loop(t, cfg)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return l.Status().Phase == PhaseWaiting }, time.Second, 5*time.Millisecond)
	assert.Zero(t, r.detector.Calls())
	assert.Nil(t, l.Status().StartedAt)

	require.NoError(t, l.Start())
	assert.Eventually(t, func() bool { return l.Status().Frames >= 3 }, time.Second, time.Millisecond)
	assert.NotEmpty(t, l.Status().SessionID)
	assert.NotNil(t, l.Status().StartedAt)

	require.NoError(t, l.Stop())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, PhaseStopped, l.Status().Phase)
	assert.Equal(t, 1, r.motor.Cleanups())
	assert.ErrorIs(t, l.Start(), ErrStopped)
}

func TestRun_ContextCancel(t *testing.T) {
	r := newRig(t, camera.NewStatic(frames(1)...).Loop(), detection.NewScripted(nil).Loop())
	cfg := DefaultConfig()
	cfg.MaxFPS = 100
	l := r.loop(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Run(ctx))
	assert.Equal(t, 1, r.motor.Cleanups())
	// Rate limited to 100/s over 100ms, with a burst of one
	assert.LessOrEqual(t, l.Status().Frames, uint64(15))
}

func TestRun_StopBeforeRun(t *testing.T) {
	r := scripted(t, nil, nil)
	l := r.loop(t, DefaultConfig())

	require.NoError(t, l.Stop())
	require.NoError(t, l.Run(context.Background()))

	assert.Zero(t, r.detector.Calls())
	assert.Equal(t, []steering.Command{S}, r.motor.Calls())
	assert.Equal(t, 1, r.motor.Cleanups())
}

func TestRun_SingleUse(t *testing.T) {
	r := scripted(t, nil)
	l := r.loop(t, DefaultConfig())

	require.NoError(t, l.Run(context.Background()))
	assert.ErrorIs(t, l.Run(context.Background()), ErrAlreadyRun)
	assert.Equal(t, 1, r.motor.Cleanups())
}

func TestRun_RecordsSession(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "drive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := scripted(t, pedestrian(0.3, 0.4), nil, nil)
	cfg := DefaultConfig()
	cfg.Source = "static:3"
	l := r.loop(t, cfg, WithRecorder(db))
	require.NoError(t, l.Run(context.Background()))

	ctx := context.Background()
	id := l.Status().SessionID
	sess, err := db.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "static:3", sess.Source)
	assert.Equal(t, uint64(3), sess.Frames)
	assert.False(t, sess.EndedAt.IsZero())

	recs, err := db.Decisions(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, R, recs[0].Decision.Command)
	assert.True(t, recs[0].Decision.Warn)
	assert.Len(t, recs[0].Detections, 1)
}

func TestNewLoop_Validates(t *testing.T) {
	r := scripted(t)
	cfg := DefaultConfig()
	cfg.MaxFPS = -1
	_, err := NewLoop(r.engine, r.source, r.detector, r.motor, cfg)
	assert.Error(t, err)

	_, err = NewLoop(nil, r.source, r.detector, r.motor, DefaultConfig())
	assert.Error(t, err)
}

func TestFPSMeter(t *testing.T) {
	var m fpsMeter
	t0 := time.Unix(0, 0)
	assert.Zero(t, m.tick(t0))
	assert.InDelta(t, 10, m.tick(t0.Add(100*time.Millisecond)), 1e-9)
	assert.InDelta(t, 10, m.tick(t0.Add(200*time.Millisecond)), 1e-9)
}
