// Package runlog keeps an append-only SQLite log of runs and per-target
// outcomes. It is observability, not state: the history store alone decides
// verdicts, and every write here is best-effort — a full disk must never
// cost a monitoring run.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/linkrot/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	source      TEXT NOT NULL,
	targets     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	target     TEXT NOT NULL,
	status     TEXT NOT NULL,
	error_tag  TEXT NOT NULL DEFAULT '',
	checked_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
`

// Log is an open run log.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Run is one logged run.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Source     string
	Targets    int
}

// Open opens (and if needed creates) the run log at path.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	return &Log{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// BeginRun records the start of a run and returns its id. On failure it
// logs and returns 0; callers pass the id back unconditionally and the
// remaining writes become no-ops.
func (l *Log) BeginRun(ctx context.Context, source string) int64 {
	res, err := dbopen.Exec(ctx, l.db,
		`INSERT INTO runs (started_at, source) VALUES (?, ?)`,
		time.Now().UTC().Format(time.RFC3339), source)
	if err != nil {
		l.logger.Warn("runlog: begin run", "error", err)
		return 0
	}
	id, err := res.LastInsertId()
	if err != nil {
		l.logger.Warn("runlog: begin run id", "error", err)
		return 0
	}
	return id
}

// RecordOutcome appends one per-target outcome to a run.
func (l *Log) RecordOutcome(ctx context.Context, runID int64, target, status, errorTag string, checkedAt time.Time) {
	if runID == 0 {
		return
	}
	_, err := dbopen.Exec(ctx, l.db,
		`INSERT INTO outcomes (run_id, target, status, error_tag, checked_at) VALUES (?, ?, ?, ?, ?)`,
		runID, target, status, errorTag, checkedAt.UTC().Format(time.RFC3339))
	if err != nil {
		l.logger.Warn("runlog: record outcome", "target", target, "error", err)
	}
}

// FinishRun stamps a run as finished with its final target count.
func (l *Log) FinishRun(ctx context.Context, runID int64, targets int) {
	if runID == 0 {
		return
	}
	_, err := dbopen.Exec(ctx, l.db,
		`UPDATE runs SET finished_at = ?, targets = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), targets, runID)
	if err != nil {
		l.logger.Warn("runlog: finish run", "error", err)
	}
}

// RecentRuns returns the newest runs, newest first.
func (l *Log) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, source, targets FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.Source, &r.Targets); err != nil {
			return nil, fmt.Errorf("runlog: scan run: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, started); err == nil {
			r.StartedAt = ts
		}
		if finished.Valid {
			if ts, err := time.Parse(time.RFC3339, finished.String); err == nil {
				r.FinishedAt = &ts
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcomes returns the per-target outcomes of a run in insertion order.
func (l *Log) Outcomes(ctx context.Context, runID int64) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT target, status, error_tag, checked_at FROM outcomes WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("runlog: list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var checked string
		if err := rows.Scan(&o.Target, &o.Status, &o.ErrorTag, &checked); err != nil {
			return nil, fmt.Errorf("runlog: scan outcome: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, checked); err == nil {
			o.CheckedAt = ts
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Outcome is one logged per-target outcome.
type Outcome struct {
	Target    string
	Status    string
	ErrorTag  string
	CheckedAt time.Time
}
