// Package store keeps a SQLite history of DDA runs and their decoded results.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ddaharness/internal/logging"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusKilled  = "killed"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one invocation of the binary.
type RunRecord struct {
	ID         string        `json:"id"`
	InputPath  string        `json:"input_path"`
	OutputPath string        `json:"output_path"`
	Argv       []string      `json:"argv"`
	Format     string        `json:"binary_format"`
	Variants   []string      `json:"variants"`
	ExitCode   int           `json:"exit_code"`
	Status     string        `json:"status"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`

	// Results is filled by GetRun; ListRuns leaves it empty.
	Results []ResultRecord `json:"results,omitempty"`
}

// ResultRecord is one decoded variant of a run.
type ResultRecord struct {
	Variant    string      `json:"variant"`
	Rows       int         `json:"rows"`
	Cols       int         `json:"cols"`
	SourcePath string      `json:"source_path,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
	Matrix     [][]float64 `json:"matrix,omitempty"`
}

// RunStore persists run history.
type RunStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string

	// storeMatrices controls whether decoded matrices are saved with results.
	storeMatrices bool
}

// Open initializes the SQLite database at path. ":memory:" is allowed.
func Open(path string, storeMatrices bool) (*RunStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open run store")
	defer timer.Stop()

	logging.Store("Initializing RunStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &RunStore{db: db, dbPath: path, storeMatrices: storeMatrices}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *RunStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_path TEXT NOT NULL,
		output_path TEXT NOT NULL,
		argv TEXT NOT NULL,
		binary_format TEXT,
		variants TEXT,
		exit_code INTEGER,
		status TEXT NOT NULL,
		error_kind TEXT,
		error TEXT,
		started_at TEXT NOT NULL,
		duration_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS run_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		variant TEXT NOT NULL,
		rows INTEGER,
		cols INTEGER,
		source_path TEXT,
		warnings TEXT,
		matrix TEXT,
		PRIMARY KEY(run_id, variant)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create run tables: %w", err)
	}
	return nil
}

// RecordRun inserts (or replaces) a run and its results in one transaction.
func (s *RunStore) RecordRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	argv, err := json.Marshal(rec.Argv)
	if err != nil {
		return fmt.Errorf("failed to encode argv: %w", err)
	}
	variantsJSON, err := json.Marshal(rec.Variants)
	if err != nil {
		return fmt.Errorf("failed to encode variants: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, input_path, output_path, argv, binary_format, variants, exit_code, status, error_kind, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.InputPath, rec.OutputPath, string(argv), rec.Format, string(variantsJSON),
		rec.ExitCode, rec.Status, rec.ErrorKind, rec.Error,
		rec.StartedAt.UTC().Format(timeLayout), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_results WHERE run_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	for _, res := range rec.Results {
		warnings, err := json.Marshal(res.Warnings)
		if err != nil {
			return fmt.Errorf("failed to encode warnings: %w", err)
		}
		var matrix sql.NullString
		if s.storeMatrices && res.Matrix != nil {
			data, err := json.Marshal(res.Matrix)
			if err != nil {
				return fmt.Errorf("failed to encode matrix: %w", err)
			}
			matrix = sql.NullString{String: string(data), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_results (run_id, variant, rows, cols, source_path, warnings, matrix)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, res.Variant, res.Rows, res.Cols, res.SourcePath, string(warnings), matrix)
		if err != nil {
			return fmt.Errorf("failed to insert result %s: %w", res.Variant, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	logging.StoreDebug("Recorded run %s (%s, %d results)", rec.ID, rec.Status, len(rec.Results))
	return nil
}

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = `id, input_path, output_path, argv, binary_format, variants, exit_code, status, error_kind, error, started_at, duration_ms`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec                   RunRecord
		argv, variantsJSON    string
		format, kind, errText sql.NullString
		started               string
		durationMs            int64
	)
	if err := row.Scan(&rec.ID, &rec.InputPath, &rec.OutputPath, &argv, &format, &variantsJSON,
		&rec.ExitCode, &rec.Status, &kind, &errText, &started, &durationMs); err != nil {
		return rec, err
	}
	rec.Format = format.String
	rec.ErrorKind = kind.String
	rec.Error = errText.String
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(argv), &rec.Argv); err != nil {
		return rec, fmt.Errorf("corrupt argv for run %s: %w", rec.ID, err)
	}
	if variantsJSON != "" {
		if err := json.Unmarshal([]byte(variantsJSON), &rec.Variants); err != nil {
			return rec, fmt.Errorf("corrupt variants for run %s: %w", rec.ID, err)
		}
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return rec, fmt.Errorf("corrupt start time for run %s: %w", rec.ID, err)
	}
	rec.StartedAt = t
	return rec, nil
}

// GetRun loads a run with all of its results.
func (s *RunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT variant, rows, cols, source_path, warnings, matrix
		FROM run_results WHERE run_id = ? ORDER BY variant`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res              ResultRecord
			source, warnings sql.NullString
			matrix           sql.NullString
		)
		if err := rows.Scan(&res.Variant, &res.Rows, &res.Cols, &source, &warnings, &matrix); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.SourcePath = source.String
		if warnings.Valid && warnings.String != "" {
			if err := json.Unmarshal([]byte(warnings.String), &res.Warnings); err != nil {
				return nil, fmt.Errorf("corrupt warnings for %s/%s: %w", id, res.Variant, err)
			}
		}
		if matrix.Valid {
			if err := json.Unmarshal([]byte(matrix.String), &res.Matrix); err != nil {
				return nil, fmt.Errorf("corrupt matrix for %s/%s: %w", id, res.Variant, err)
			}
		}
		rec.Results = append(rec.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns the most recent runs first, without results.
// limit <= 0 returns every run.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *RunStore) Close() error {
	logging.Store("Closing RunStore database connection")
	return s.db.Close()
}

// Path returns the database path.
func (s *RunStore) Path() string {
	return s.dbPath
}
