// Package store keeps a log of driving sessions and every decision made in
// them, so a run can be inspected afterwards or replayed through a
// different steering configuration.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-autocar/pkg/detection"
	"github.com/teslashibe/go-autocar/pkg/steering"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	source      TEXT NOT NULL,
	config_json TEXT NOT NULL,
	frames      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS decisions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL,
	frame           INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	branch          TEXT NOT NULL,
	command         TEXT NOT NULL,
	warn            INTEGER NOT NULL,
	direction_bias  INTEGER NOT NULL,
	turn_cooldown   INTEGER NOT NULL,
	warn_cooldown   INTEGER NOT NULL,
	reading_json    TEXT NOT NULL,
	detections_json TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_decisions_session_frame ON decisions(session_id, frame);
`

// Session is one run of the control loop.
type Session struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at,omitempty"` // Zero while running
	Source    string          `json:"source"`             // Camera or replay description
	Config    steering.Config `json:"config"`
	Frames    uint64          `json:"frames"`
}

// Record is one stored decision together with the detections it was
// computed from.
type Record struct {
	SessionID  string            `json:"session_id"`
	CreatedAt  time.Time         `json:"created_at"`
	Decision   steering.Decision `json:"decision"`
	Detections detection.Set     `json:"detections"`
}

// Store manages the decision log in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; the loop and the dashboard share the handle
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession inserts a new session row.
func (s *Store) StartSession(ctx context.Context, sess Session) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, source, config_json) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.StartedAt.UTC().Format(time.RFC3339Nano), sess.Source, string(cfg),
	)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// EndSession stamps the end time and final frame count.
func (s *Store) EndSession(ctx context.Context, id string, frames uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, frames = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), frames, id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordDecision appends one decision to a session.
func (s *Store) RecordDecision(ctx context.Context, sessionID string, d steering.Decision, set detection.Set) error {
	reading, err := json.Marshal(d.Reading)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	if set == nil {
		set = detection.Set{}
	}
	dets, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (session_id, frame, created_at, branch, command, warn,
		 direction_bias, turn_cooldown, warn_cooldown, reading_json, detections_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		d.Frame,
		time.Now().UTC().Format(time.RFC3339Nano),
		d.Branch.String(),
		d.Command.String(),
		boolToInt(d.Warn),
		d.State.DirectionBias,
		d.State.TurnCooldown.Remaining(),
		d.State.WarnCooldown.Remaining(),
		string(reading),
		string(dets),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Session returns one session by id.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, source, config_json, frames FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// Sessions returns the most recent sessions, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, source, config_json, frames
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Decisions returns the last limit decisions of a session in frame order.
// A limit of zero or less returns all of them.
func (s *Store) Decisions(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	query := `SELECT session_id, frame, created_at, branch, command, warn,
		direction_bias, turn_cooldown, warn_cooldown, reading_json, detections_json
		FROM decisions WHERE session_id = ? ORDER BY frame ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT session_id, frame, created_at, branch, command, warn,
			direction_bias, turn_cooldown, warn_cooldown, reading_json, detections_json
			FROM decisions WHERE session_id = ? ORDER BY frame DESC LIMIT ?
		) ORDER BY frame ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess             Session
		started, cfgJSON string
		ended            sql.NullString
	)
	if err := row.Scan(&sess.ID, &started, &ended, &sess.Source, &cfgJSON, &sess.Frames); err != nil {
		return Session{}, err
	}

	var err error
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	if ended.Valid {
		if sess.EndedAt, err = time.Parse(time.RFC3339Nano, ended.String); err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(cfgJSON), &sess.Config); err != nil {
		return Session{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return sess, nil
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec                     Record
		created, branch, cmd    string
		warn, bias, turn, wcool int
		readingJSON, detsJSON   string
	)
	err := row.Scan(&rec.SessionID, &rec.Decision.Frame, &created, &branch, &cmd, &warn,
		&bias, &turn, &wcool, &readingJSON, &detsJSON)
	if err != nil {
		return Record{}, fmt.Errorf("scan decision: %w", err)
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	if err := rec.Decision.Branch.UnmarshalText([]byte(branch)); err != nil {
		return Record{}, err
	}
	if rec.Decision.Command, err = steering.ParseCommand(cmd); err != nil {
		return Record{}, err
	}
	rec.Decision.Warn = warn != 0
	rec.Decision.State = steering.State{
		DirectionBias: bias,
		TurnCooldown:  steering.Cooldown(turn),
		WarnCooldown:  steering.Cooldown(wcool),
	}
	if err := json.Unmarshal([]byte(readingJSON), &rec.Decision.Reading); err != nil {
		return Record{}, fmt.Errorf("unmarshal reading: %w", err)
	}
	if err := json.Unmarshal([]byte(detsJSON), &rec.Detections); err != nil {
		return Record{}, fmt.Errorf("unmarshal detections: %w", err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
