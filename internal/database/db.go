package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jgoulah/linkyscraper/pkg/models"
	_ "modernc.org/sqlite"
)

const (
	timeLayout = time.RFC3339
	dayLayout  = "2006-01-02"
)

// DB wraps the run log database connection
type DB struct {
	conn *sql.DB
}

// New opens the SQLite run log and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite copes badly with concurrent writers
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// NewWithConn wraps an already opened connection without touching the schema
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fetch_runs (
		id TEXT PRIMARY KEY,
		usage_point_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		first_day TEXT,
		points INTEGER NOT NULL,
		first_point TEXT,
		last_point TEXT,
		last_sum REAL NOT NULL DEFAULT 0,
		published INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS fetch_windows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES fetch_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		outcome TEXT NOT NULL,
		points INTEGER NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_usage_point ON fetch_runs(usage_point_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_windows_run ON fetch_windows(run_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertRun stores a run and its windows in one transaction.
// An empty run ID is replaced with a new UUID.
func (db *DB) InsertRun(ctx context.Context, run *models.FetchRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO fetch_runs (id, usage_point_id, started_at, finished_at, first_day, points, first_point, last_point, last_sum, published)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.UsagePointID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		formatDay(run.FirstDay),
		run.Points,
		formatTime(run.FirstPoint),
		formatTime(run.LastPoint),
		run.LastSum,
		boolToInt(run.Published),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, w := range run.Windows {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO fetch_windows (run_id, seq, kind, from_date, to_date, outcome, points, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			i,
			string(w.Kind),
			formatDay(w.Window.From),
			formatDay(w.Window.To),
			string(w.Outcome),
			w.Points,
			w.Error,
		)
		if err != nil {
			return fmt.Errorf("inserting window %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

const runColumns = `id, usage_point_id, started_at, finished_at, first_day, points, first_point, last_point, last_sum, published`

// ListRuns returns the most recent runs for a usage point, newest first.
// A limit of 0 or less returns every run.
func (db *DB) ListRuns(ctx context.Context, usagePointID string, limit int) ([]models.FetchRun, error) {
	query := `SELECT ` + runColumns + ` FROM fetch_runs WHERE usage_point_id = ? ORDER BY started_at DESC`
	args := []any{usagePointID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var results []models.FetchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *run)
	}

	return results, rows.Err()
}

// LastPublishedRun returns the newest published run with data, or nil
func (db *DB) LastPublishedRun(ctx context.Context, usagePointID string) (*models.FetchRun, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM fetch_runs
	WHERE usage_point_id = ? AND published = 1 AND points > 0
	ORDER BY last_point DESC LIMIT 1`, usagePointID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListWindows returns the windows requested by a run, in request order
func (db *DB) ListWindows(ctx context.Context, runID string) ([]models.WindowAttempt, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT kind, from_date, to_date, outcome, points, error
	FROM fetch_windows
	WHERE run_id = ?
	ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying windows: %w", err)
	}
	defer rows.Close()

	var results []models.WindowAttempt
	for rows.Next() {
		var w models.WindowAttempt
		var kind, outcome, from, to string
		var errStr sql.NullString

		if err := rows.Scan(&kind, &from, &to, &outcome, &w.Points, &errStr); err != nil {
			return nil, fmt.Errorf("scanning window: %w", err)
		}

		w.Kind = models.WindowKind(kind)
		w.Outcome = models.WindowOutcome(outcome)
		w.Error = errStr.String
		if w.Window.From, err = parseDay(from); err != nil {
			return nil, err
		}
		if w.Window.To, err = parseDay(to); err != nil {
			return nil, err
		}

		results = append(results, w)
	}

	return results, rows.Err()
}

// MarkPublished marks a run as published
func (db *DB) MarkPublished(ctx context.Context, runID string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE fetch_runs SET published = 1 WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("marking run as published: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("marking run as published: run %s not found", runID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.FetchRun, error) {
	var run models.FetchRun
	var startedAt, finishedAt string
	var firstDay, firstPoint, lastPoint sql.NullString
	var published int

	err := s.Scan(&run.ID, &run.UsagePointID, &startedAt, &finishedAt, &firstDay,
		&run.Points, &firstPoint, &lastPoint, &run.LastSum, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, err
	}
	if run.FirstDay, err = parseDay(firstDay.String); err != nil {
		return nil, err
	}
	if run.FirstPoint, err = parseTime(firstPoint.String); err != nil {
		return nil, err
	}
	if run.LastPoint, err = parseTime(lastPoint.String); err != nil {
		return nil, err
	}
	run.Published = published != 0

	return &run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dayLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
