package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-autocar/pkg/detection"
	"github.com/teslashibe/go-autocar/pkg/steering"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "autocar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func drive(t *testing.T, sets []detection.Set) []steering.Decision {
	t.Helper()
	e, err := steering.NewEngine(steering.DefaultConfig())
	require.NoError(t, err)
	var out []steering.Decision
	for _, set := range sets {
		d, err := e.Step(set)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

var pedestrian = detection.Set{{
	ClassID: detection.ClassPerson,
	Score:   0.8,
	Box:     detection.Box{YMin: 0.2, XMin: 0.1, YMax: 0.5, XMax: 0.3},
}}

func TestSessionLifecycle(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	cfg := steering.CautiousConfig()
	require.NoError(t, s.StartSession(ctx, Session{ID: "s1", Source: "usb:0", Config: cfg}))

	sess, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "usb:0", sess.Source)
	assert.Equal(t, cfg, sess.Config)
	assert.True(t, sess.EndedAt.IsZero())

	require.NoError(t, s.EndSession(ctx, "s1", 42))
	sess, err = s.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sess.Frames)
	assert.False(t, sess.EndedAt.IsZero())
}

func TestUnknownSession(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	_, err := s.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.EndSession(ctx, "missing", 1), ErrNotFound)
}

func TestDecisionsRoundTrip(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, Session{ID: "s1", Source: "test", Config: steering.DefaultConfig()}))

	sets := []detection.Set{pedestrian, nil, nil}
	decisions := drive(t, sets)
	for i, d := range decisions {
		require.NoError(t, s.RecordDecision(ctx, "s1", d, sets[i]))
	}

	recs, err := s.Decisions(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	for i, rec := range recs {
		if diff := cmp.Diff(decisions[i], rec.Decision); diff != "" {
			t.Errorf("decision %d mismatch (-want +got):\n%s", i, diff)
		}
		want := sets[i]
		if want == nil {
			want = detection.Set{}
		}
		if diff := cmp.Diff(want, rec.Detections); diff != "" {
			t.Errorf("detections %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestDecisionsLimitReturnsLatestInOrder(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, Session{ID: "s1", Source: "test", Config: steering.DefaultConfig()}))

	sets := make([]detection.Set, 10)
	for _, d := range drive(t, sets) {
		require.NoError(t, s.RecordDecision(ctx, "s1", d, nil))
	}

	recs, err := s.Decisions(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []uint64{8, 9, 10}, []uint64{recs[0].Decision.Frame, recs[1].Decision.Frame, recs[2].Decision.Frame})
}

func TestSessionsNewestFirst(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.StartSession(ctx, Session{
			ID:        id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Source:    "test",
			Config:    steering.DefaultConfig(),
		}))
	}

	sessions, err := s.Sessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "c", sessions[0].ID)
	assert.Equal(t, "b", sessions[1].ID)
}

func TestRecordRequiresSession(t *testing.T) {
	s := tempStore(t)
	d := drive(t, []detection.Set{nil})[0]
	assert.Error(t, s.RecordDecision(context.Background(), "ghost", d, nil))
}
