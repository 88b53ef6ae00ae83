// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal persists the run history: one row per conversion attempt
// so operators can answer "when did this last run, against what, and how
// did it end" without scraping terminal scrollback.
package journal

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"
)

const dbFile = "runs.db"

// Phase names recorded for an attempt.
const (
	PhaseBuild = "build"
	PhaseRun   = "run"
)

// Attempt is one recorded conversion attempt.
type Attempt struct {
	ID           int64     `yaml:"id"`
	StartedAt    time.Time `yaml:"started_at"`
	FinishedAt   time.Time `yaml:"finished_at"`
	Image        string    `yaml:"image"`
	DatabaseName string    `yaml:"database_name,omitempty"`
	DataDir      string    `yaml:"data_dir"`

	// Phase is the phase the attempt ended in: "build" when the image
	// build failed, "run" otherwise.
	Phase string `yaml:"phase"`

	// ExitCode is 0 on success, the conversion process's own code on run
	// failure, and -1 when the runtime could not be invoked at all.
	ExitCode int    `yaml:"exit_code"`
	Error    string `yaml:"error,omitempty"`
}

// Succeeded reports whether the attempt completed with exit code 0.
func (a Attempt) Succeeded() bool {
	return a.Phase == PhaseRun && a.ExitCode == 0 && a.Error == ""
}

// Store manages the run journal SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal database at stateDir/runs.db, creating
// the schema if it does not exist.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		image TEXT NOT NULL,
		database_name TEXT,
		data_dir TEXT NOT NULL,
		phase TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		error TEXT
	)`)
	if err != nil {
		return fmt.Errorf("executing schema statement: %w", err)
	}
	return nil
}

// Record inserts an attempt and returns it with its assigned ID.
func (s *Store) Record(a Attempt) (Attempt, error) {
	res, err := s.db.Exec(
		`INSERT INTO runs (started_at, finished_at, image, database_name, data_dir, phase, exit_code, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.StartedAt.UTC().Format(time.RFC3339Nano),
		a.FinishedAt.UTC().Format(time.RFC3339Nano),
		a.Image, a.DatabaseName, a.DataDir, a.Phase, a.ExitCode, a.Error,
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("recording attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Attempt{}, fmt.Errorf("reading attempt id: %w", err)
	}
	a.ID = id
	return a, nil
}

// List returns the most recent attempts, newest first. A limit of 0 or
// less returns all attempts.
func (s *Store) List(limit int) ([]Attempt, error) {
	query := `SELECT id, started_at, finished_at, image, database_name, data_dir, phase, exit_code, error
		 FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var started, finished string
		if err := rows.Scan(&a.ID, &started, &finished, &a.Image, &a.DatabaseName,
			&a.DataDir, &a.Phase, &a.ExitCode, &a.Error); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		if a.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing started_at for attempt %d: %w", a.ID, err)
		}
		if a.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at for attempt %d: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ExportYAML writes the most recent attempts to w as YAML, newest first.
func (s *Store) ExportYAML(w io.Writer, limit int) error {
	attempts, err := s.List(limit)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}
