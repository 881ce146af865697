// replay re-runs a recorded session's detections through the steering
// engine, optionally with a different preset, and reports every frame
// where the command or warning would have changed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/teslashibe/go-autocar/internal/log"
	"github.com/teslashibe/go-autocar/pkg/camera"
	"github.com/teslashibe/go-autocar/pkg/detection"
	"github.com/teslashibe/go-autocar/pkg/drive"
	"github.com/teslashibe/go-autocar/pkg/motor"
	"github.com/teslashibe/go-autocar/pkg/steering"
	"github.com/teslashibe/go-autocar/pkg/store"
)

func main() {
	dbPath := flag.String("db", "autocar.db", "Session log database")
	sessionID := flag.String("session", "", "Session to replay (default: most recent)")
	preset := flag.String("steering", "", "Steering preset to replay with (default: the recorded config)")
	save := flag.Bool("save", false, "Record the replay as a new session")
	list := flag.Bool("list", false, "List recorded sessions and exit")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log.Init(*logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, *dbPath, *sessionID, *preset, *save, *list); err != nil {
		log.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, dbPath, sessionID, preset string, save, list bool) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if list {
		return listSessions(ctx, w, db)
	}

	sess, err := pickSession(ctx, db, sessionID)
	if err != nil {
		return err
	}
	recs, err := db.Decisions(ctx, sess.ID, 0)
	if err != nil {
		return err
	}

	cfg := sess.Config
	if preset != "" {
		if cfg, err = steering.Preset(preset); err != nil {
			return err
		}
	}

	var rec drive.Recorder
	if save {
		rec = db
	}
	res, err := Replay(ctx, sess.ID, recs, cfg, rec)
	if err != nil {
		return err
	}
	return report(w, sess, res)
}

func pickSession(ctx context.Context, db *store.Store, id string) (store.Session, error) {
	if id != "" {
		return db.Session(ctx, id)
	}
	sessions, err := db.Sessions(ctx, 1)
	if err != nil {
		return store.Session{}, err
	}
	if len(sessions) == 0 {
		return store.Session{}, errors.New("no recorded sessions")
	}
	return sessions[0], nil
}

func listSessions(ctx context.Context, w io.Writer, db *store.Store) error {
	sessions, err := db.Sessions(ctx, 50)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSOURCE\tFRAMES")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Source, s.Frames)
	}
	return tw.Flush()
}

func report(w io.Writer, sess store.Session, res Result) error {
	fmt.Fprintf(w, "session %s: %d frames replayed, %d changed\n", sess.ID, res.Frames, len(res.Diffs))
	if res.SessionID != "" {
		fmt.Fprintf(w, "saved as session %s\n", res.SessionID)
	}
	if len(res.Diffs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tRECORDED\tREPLAYED\tWARN")
	for _, d := range res.Diffs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t→%t\n", d.Frame, d.Recorded, d.Replayed, d.RecordedWarn, d.ReplayedWarn)
	}
	return tw.Flush()
}

// Diff is one frame whose outcome changed
type Diff struct {
	Frame        uint64
	Recorded     steering.Command
	Replayed     steering.Command
	RecordedWarn bool
	ReplayedWarn bool
}

// Result summarizes a replay
type Result struct {
	Frames    int
	Diffs     []Diff
	SessionID string // Set when the replay was recorded
}

type collector struct {
	decisions []steering.Decision
}

func (c *collector) PublishDecision(d steering.Decision) { c.decisions = append(c.decisions, d) }
func (c *collector) PublishFrame([]byte)                 {}

// Replay feeds recorded detections through a dry-run loop configured with
// cfg and compares the outcome frame by frame.
func Replay(ctx context.Context, sessionID string, recs []store.Record, cfg steering.Config, rec drive.Recorder) (Result, error) {
	engine, err := steering.NewEngine(cfg)
	if err != nil {
		return Result{}, err
	}

	frames := make([][]byte, len(recs))
	sets := make([]detection.Set, len(recs))
	for i, r := range recs {
		frames[i] = []byte{}
		sets[i] = r.Detections
	}

	dc := drive.DefaultConfig()
	dc.StopOnFault = false
	dc.MaxConsecutiveFaults = 0
	dc.Source = "replay:" + sessionID

	out := &collector{}
	opts := []drive.Option{drive.WithPublisher(out), drive.WithLogger(log.L())}
	if rec != nil {
		opts = append(opts, drive.WithRecorder(rec))
	}

	loop, err := drive.NewLoop(engine, camera.NewStatic(frames...), detection.NewScripted(sets...), motor.NewMock(), dc, opts...)
	if err != nil {
		return Result{}, err
	}
	if err := loop.Run(ctx); err != nil {
		return Result{}, err
	}

	res := Result{Frames: len(out.decisions)}
	if rec != nil {
		res.SessionID = loop.Status().SessionID
	}
	for i, d := range out.decisions {
		if i >= len(recs) {
			break
		}
		old := recs[i].Decision
		if old.Command != d.Command || old.Warn != d.Warn {
			res.Diffs = append(res.Diffs, Diff{
				Frame:        d.Frame,
				Recorded:     old.Command,
				Replayed:     d.Command,
				RecordedWarn: old.Warn,
				ReplayedWarn: d.Warn,
			})
		}
	}
	return res, nil
}
