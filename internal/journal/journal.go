// Package journal records bootstrap attempts in a SQLite database.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/clr"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusLoaded  = "loaded"
	StatusFailed  = "failed"
)

// ErrRunNotFound is returned by Run for an unknown id.
var ErrRunNotFound = errors.New("journal: run not found")

// Journal is a handle to the journal database.
type Journal struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Run is one bootstrap attempt.
type Run struct {
	ID                uuid.UUID
	StartedAt         time.Time
	FinishedAt        time.Time
	Status            string
	AssemblyPath      string
	RuntimeConfigPath string
	HostfxrPath       string
	FailedStage       string
	StatusCode        uint32
	Error             string
	Callbacks         string
	Stages            []StageRecord
}

// Duration is the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageRecord is one executed bootstrap stage.
type StageRecord struct {
	Seq      int
	Stage    string
	Duration time.Duration
	Error    string
}

// Open opens or creates the journal at path. ":memory:" keeps it in memory.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal dir: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	} else {
		dsn = path + "?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, path: path, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id                  TEXT    PRIMARY KEY,
			started_at          INTEGER NOT NULL,
			finished_at         INTEGER NOT NULL DEFAULT 0,
			status              TEXT    NOT NULL,
			assembly_path       TEXT    NOT NULL DEFAULT '',
			runtime_config_path TEXT    NOT NULL DEFAULT '',
			hostfxr_path        TEXT    NOT NULL DEFAULT '',
			failed_stage        TEXT    NOT NULL DEFAULT '',
			status_code         INTEGER NOT NULL DEFAULT 0,
			error               TEXT    NOT NULL DEFAULT '',
			callbacks           TEXT    NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);

		CREATE TABLE IF NOT EXISTS stages (
			run_id      TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq         INTEGER NOT NULL,
			stage       TEXT    NOT NULL,
			duration_ns INTEGER NOT NULL,
			error       TEXT    NOT NULL DEFAULT '',
			UNIQUE(run_id, seq)
		);
	`)
	return err
}

// Path returns the path the journal was opened with.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// ============================================================
// Recording
// ============================================================

// Recorder appends to a single run.
type Recorder struct {
	j   *Journal
	id  uuid.UUID
	seq int
}

// Begin inserts a running entry.
func (j *Journal) Begin(assemblyPath, runtimeConfigPath string) (*Recorder, error) {
	id := uuid.New()
	_, err := j.db.Exec(
		`INSERT INTO runs (id, started_at, status, assembly_path, runtime_config_path) VALUES (?, ?, ?, ?, ?)`,
		id.String(), time.Now().UnixNano(), StatusRunning, assemblyPath, runtimeConfigPath,
	)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return &Recorder{j: j, id: id}, nil
}

// ID is the run identifier.
func (r *Recorder) ID() uuid.UUID {
	return r.id
}

// Observe records a stage. Its signature matches clr.Observer. Write
// failures are logged and otherwise ignored.
func (r *Recorder) Observe(stage clr.Stage, elapsed time.Duration, err error) {
	r.seq++
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_, dbErr := r.j.db.Exec(
		`INSERT INTO stages (run_id, seq, stage, duration_ns, error) VALUES (?, ?, ?, ?, ?)`,
		r.id.String(), r.seq, string(stage), elapsed.Nanoseconds(), msg,
	)
	if dbErr != nil {
		r.j.logger.Warn("Unable to record bootstrap stage", zap.String("stage", string(stage)), zap.Error(dbErr))
	}
}

// Finish completes the run. A nil err marks it loaded.
func (r *Recorder) Finish(hostfxrPath string, table clr.CallbackTable, err error) error {
	status := StatusLoaded
	var stage, msg, callbacks string
	var code uint32
	if err != nil {
		status = StatusFailed
		msg = err.Error()
		var be *clr.BootstrapError
		if errors.As(err, &be) {
			stage = string(be.Stage)
			code = uint32(be.Status)
			if hostfxrPath == "" {
				hostfxrPath = be.Path
			}
		}
	} else {
		callbacks = table.String()
	}

	_, dbErr := r.j.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, hostfxr_path = ?, failed_stage = ?, status_code = ?, error = ?, callbacks = ? WHERE id = ?`,
		time.Now().UnixNano(), status, hostfxrPath, stage, code, msg, callbacks, r.id.String(),
	)
	if dbErr != nil {
		return fmt.Errorf("finish run: %w", dbErr)
	}
	return nil
}

// ============================================================
// Queries
// ============================================================

const runColumns = `id, started_at, finished_at, status, assembly_path, runtime_config_path,
	hostfxr_path, failed_stage, status_code, error, callbacks`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                 Run
		id                string
		started, finished int64
	)
	err := s.Scan(&id, &started, &finished, &r.Status, &r.AssemblyPath, &r.RuntimeConfigPath,
		&r.HostfxrPath, &r.FailedStage, &r.StatusCode, &r.Error, &r.Callbacks)
	if err != nil {
		return Run{}, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("run id %q: %w", id, err)
	}
	r.StartedAt = time.Unix(0, started)
	if finished != 0 {
		r.FinishedAt = time.Unix(0, finished)
	}
	return r, nil
}

// Recent returns up to limit runs, newest first, with their stages.
func (j *Journal) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Stages, err = j.stages(runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Run looks up a run by id or unique id prefix.
func (j *Journal) Run(id string) (Run, error) {
	rows, err := j.db.Query(`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ORDER BY started_at DESC LIMIT 2`,
		strings.ToLower(strings.TrimSpace(id))+"%")
	if err != nil {
		return Run{}, err
	}
	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return Run{}, err
		}
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
	default:
		return Run{}, fmt.Errorf("journal: run id %s is ambiguous", id)
	}
	r := found[0]
	if r.Stages, err = j.stages(r.ID); err != nil {
		return Run{}, err
	}
	return r, nil
}

func (j *Journal) stages(id uuid.UUID) ([]StageRecord, error) {
	rows, err := j.db.Query(`SELECT seq, stage, duration_ns, error FROM stages WHERE run_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var s StageRecord
		var ns int64
		if err := rows.Scan(&s.Seq, &s.Stage, &ns, &s.Error); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ns)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs.
func (j *Journal) Prune(keep int) (int64, error) {
	res, err := j.db.Exec(`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
