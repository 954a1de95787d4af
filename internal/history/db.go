// Package history records every task invocation in a local SQLite database.
// Uses WAL mode so a reader never blocks a running invocation.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/uwflow/uwflow/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the database at dir/history.db.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "history.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			driver      TEXT NOT NULL,
			task        TEXT NOT NULL,
			cycle       INTEGER,
			rundir      TEXT NOT NULL,
			mode        TEXT NOT NULL DEFAULT '',
			dry_run     BOOLEAN NOT NULL DEFAULT 0,
			ok          BOOLEAN NOT NULL DEFAULT 0,
			exit_code   INTEGER NOT NULL DEFAULT 0,
			job_id      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// ─── Run Repository ─────────────────────────────────────────────────────────

// Record stores one run.
func (d *DB) Record(r domain.RunRecord) error {
	_, err := d.db.Exec(
		`INSERT INTO runs (id, driver, task, cycle, rundir, mode, dry_run, ok, exit_code, job_id, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Driver, r.Task, nullableUnix(r.Cycle), r.Rundir, r.Mode,
		r.DryRun, r.OK, r.ExitCode, r.JobID, r.Error,
		r.StartedAt.UnixMilli(), r.Duration.Milliseconds(),
	)
	return err
}

// Get returns the run with id, or domain.ErrRunNotFound.
func (d *DB) Get(id string) (*domain.RunRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, driver, task, cycle, rundir, mode, dry_run, ok, exit_code, job_id, error, started_at, duration_ms
		 FROM runs WHERE id = ?`, id,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return r, err
}

// List returns the most recent runs, newest first. limit <= 0 means all.
func (d *DB) List(limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(
		`SELECT id, driver, task, cycle, rundir, mode, dry_run, ok, exit_code, job_id, error, started_at, duration_ms
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.RunRecord, error) {
	var r domain.RunRecord
	var cycle sql.NullInt64
	var startedAt, durationMs int64

	err := s.Scan(&r.ID, &r.Driver, &r.Task, &cycle, &r.Rundir, &r.Mode,
		&r.DryRun, &r.OK, &r.ExitCode, &r.JobID, &r.Error,
		&startedAt, &durationMs)
	if err != nil {
		return nil, err
	}
	if cycle.Valid {
		r.Cycle = time.Unix(cycle.Int64, 0).UTC()
	}
	r.StartedAt = time.UnixMilli(startedAt)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
