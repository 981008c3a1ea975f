package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ExportFile records one file produced by a run.
type ExportFile struct {
	Name     string `json:"name"`
	Rows     int    `json:"rows"`
	Bytes    int    `json:"bytes"`
	Checksum string `json:"checksum"`
}

// ExportRun records a completed export.
type ExportRun struct {
	ID         string       `json:"id"`
	Project    string       `json:"project"`
	Server     string       `json:"server"`
	Fetched    int          `json:"fetched"`
	Files      []ExportFile `json:"files"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// HistoryStore persists export runs between invocations.
type HistoryStore interface {
	Record(ctx context.Context, run *ExportRun) error
	List(ctx context.Context, limit int) ([]ExportRun, error)
	Close() error
}

// SQLiteHistoryStore keeps the export history in a SQLite database.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// NewSQLiteHistoryStore opens/creates the database at dbPath.
func NewSQLiteHistoryStore(dbPath string) (*SQLiteHistoryStore, error) {
	if dbPath == "" {
		return nil, errors.New("history database path required")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	store := &SQLiteHistoryStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteHistoryStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS export_runs (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		server TEXT,
		fetched INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS export_files (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		checksum TEXT,
		PRIMARY KEY(run_id, name),
		FOREIGN KEY(run_id) REFERENCES export_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_export_runs_started ON export_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores run and its files in one transaction.
func (s *SQLiteHistoryStore) Record(ctx context.Context, run *ExportRun) error {
	if run == nil {
		return errors.New("nil export run")
	}
	if run.ID == "" {
		return errors.New("export run id required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO export_runs (id, project, server, fetched, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.Server, run.Fetched, run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	for _, f := range run.Files {
		_, err = tx.ExecContext(ctx, `INSERT INTO export_files (run_id, name, row_count, bytes, checksum) VALUES (?, ?, ?, ?, ?)`,
			run.ID, f.Name, f.Rows, f.Bytes, f.Checksum)
		if err != nil {
			return fmt.Errorf("insert file %s: %w", f.Name, err)
		}
	}
	return tx.Commit()
}

// List returns the most recent runs first. limit <= 0 returns all runs.
func (s *SQLiteHistoryStore) List(ctx context.Context, limit int) ([]ExportRun, error) {
	query := `SELECT id, project, server, fetched, started_at, finished_at FROM export_runs ORDER BY started_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var runs []ExportRun
	for rows.Next() {
		var run ExportRun
		var server sql.NullString
		if err := rows.Scan(&run.ID, &run.Project, &server, &run.Fetched, &run.StartedAt, &run.FinishedAt); err != nil {
			rows.Close()
			return nil, err
		}
		run.Server = server.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		files, err := s.files(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Files = files
	}
	return runs, nil
}

func (s *SQLiteHistoryStore) files(ctx context.Context, runID string) ([]ExportFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, row_count, bytes, checksum FROM export_files WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []ExportFile
	for rows.Next() {
		var f ExportFile
		var checksum sql.NullString
		if err := rows.Scan(&f.Name, &f.Rows, &f.Bytes, &checksum); err != nil {
			return nil, err
		}
		f.Checksum = checksum.String
		files = append(files, f)
	}
	return files, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteHistoryStore) Close() error {
	return s.db.Close()
}
