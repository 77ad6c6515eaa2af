package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the history database inside the data dir.
const DBFileName = "trackhub.db"

// Run is one pipeline execution.
type Run struct {
	ID         string
	Pipeline   string
	Status     string
	OK         bool
	SessionDir string
	ReportPath string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Invocation is one PoGo run made by a pipeline.
type Invocation struct {
	ID         string
	RunID      string
	TaskID     string
	TaxonomyID string
	InputFile  string
	Command    string
	Success    bool
	ReturnCode int
	Error      string
	Duration   time.Duration
	RecordedAt time.Time
}

// History is the sqlite-backed run history.
type History struct {
	db   *sql.DB
	path string
}

var _ Store = (*History)(nil)

// Open opens (creating if needed) the history database in dataDir.
func Open(dataDir string) (*History, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	h := &History{db: db, path: dbPath}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return h, nil
}

func (h *History) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		status TEXT NOT NULL,
		ok INTEGER NOT NULL,
		session_dir TEXT NOT NULL DEFAULT '',
		report_path TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS invocations (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		taxonomy_id TEXT NOT NULL,
		input_file TEXT NOT NULL,
		command TEXT NOT NULL,
		success INTEGER NOT NULL,
		return_code INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invocations_run ON invocations(run_id);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Path is the database file location.
func (h *History) Path() string { return h.path }

func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *History) Close() error {
	return h.db.Close()
}

// RecordRun inserts or replaces a run.
func (h *History) RecordRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		return errors.Wrap(ErrInvalidID, "record run")
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, pipeline, status, ok, session_dir, report_path, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Pipeline, r.Status, r.OK, r.SessionDir, r.ReportPath, r.StartedAt.UTC(), r.FinishedAt.UTC())
	return errors.Wrapf(err, "record run %s", r.ID)
}

// RecordInvocation stores an invocation, assigning it an ID when missing.
func (h *History) RecordInvocation(ctx context.Context, inv *Invocation) error {
	if inv.RunID == "" {
		return errors.Wrap(ErrInvalidID, "record invocation: empty run id")
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.RecordedAt.IsZero() {
		inv.RecordedAt = time.Now()
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO invocations (id, run_id, task_id, taxonomy_id, input_file, command, success, return_code, error, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.RunID, inv.TaskID, inv.TaxonomyID, inv.InputFile, inv.Command, inv.Success,
		inv.ReturnCode, inv.Error, inv.Duration.Milliseconds(), inv.RecordedAt.UTC())
	return errors.Wrapf(err, "record invocation %s", inv.ID)
}

const runColumns = `id, pipeline, status, ok, session_dir, report_path, started_at, finished_at`

var runFilterFields = map[string]string{
	"pipeline": "pipeline",
	"status":   "status",
	"ok":       "ok",
}

// ListRuns returns runs matching the filter ordered by start time.
func (h *History) ListRuns(ctx context.Context, f Filter) ([]*Run, error) {
	var (
		conds []string
		args  []any
	)
	keys := make([]string, 0, len(f.Where))
	for k := range f.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col, ok := runFilterFields[k]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidFilter, "field %q", k)
		}
		conds = append(conds, col+" = ?")
		args = append(args, f.Where[k])
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY started_at`
	if f.OrderDesc {
		query += ` DESC`
	}
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a run by ID.
func (h *History) GetRun(ctx context.Context, id string) (*Run, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewNotFoundError("run", id)
	}
	return r, err
}

// Invocations lists the invocations of a run in the order they were recorded.
func (h *History) Invocations(ctx context.Context, runID string) ([]*Invocation, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, run_id, task_id, taxonomy_id, input_file, command, success, return_code, error, duration_ms, recorded_at
		FROM invocations WHERE run_id = ? ORDER BY recorded_at, id
	`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "list invocations of %s", runID)
	}
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		var inv Invocation
		var ms int64
		if err := rows.Scan(&inv.ID, &inv.RunID, &inv.TaskID, &inv.TaxonomyID, &inv.InputFile, &inv.Command,
			&inv.Success, &inv.ReturnCode, &inv.Error, &ms, &inv.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scan invocation")
		}
		inv.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, &inv)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	if err := s.Scan(&r.ID, &r.Pipeline, &r.Status, &r.OK, &r.SessionDir, &r.ReportPath, &r.StartedAt, &r.FinishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan run")
	}
	return &r, nil
}
