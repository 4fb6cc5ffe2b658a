// Package storage persists integration runs in a local sqlite database:
// one row of metadata per run plus a sampled trajectory.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"odeflow/internal/solve"
	"odeflow/internal/state"
)

// Store wraps the runs database.
type Store struct {
	db *sql.DB
}

// Run is the stored metadata of one integration.
type Run struct {
	ID          string
	Problem     string
	Method      string
	T0, T1      float64
	Atol, Rtol  float64
	Accepted    int
	Rejected    int
	Evaluations int
	CreatedAt   time.Time
}

// Sample is one stored trajectory point; Y is the flattened state.
type Sample struct {
	T float64
	Y []float64
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		problem TEXT NOT NULL,
		method TEXT NOT NULL,
		t0 REAL NOT NULL,
		t1 REAL NOT NULL,
		atol REAL NOT NULL,
		rtol REAL NOT NULL,
		accepted INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		evaluations INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL REFERENCES runs(id),
		t REAL NOT NULL,
		y TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id, t);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun stores the run metadata and the given trajectory samples, and
// returns the new run ID.
func (s *Store) SaveRun(problem, method string, atol, rtol float64, sol *solve.Solution, ts []float64, ys []state.Tree) (string, error) {
	if len(ts) != len(ys) {
		return "", fmt.Errorf("storage: %d times for %d states", len(ts), len(ys))
	}
	id := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(id, problem, method, t0, t1, atol, rtol, accepted, rejected, evaluations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, problem, method, sol.T0, sol.T1, atol, rtol,
		sol.Stats.Accepted, sol.Stats.Rejected, sol.Stats.Evaluations,
		time.Now().UTC())
	if err != nil {
		return "", err
	}

	ins, err := tx.Prepare(`INSERT INTO samples (run_id, t, y) VALUES (?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer ins.Close()

	for i, t := range ts {
		y, err := json.Marshal(ys[i].Flatten())
		if err != nil {
			return "", err
		}
		if _, err := ins.Exec(id, t, string(y)); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, problem, method, t0, t1, atol, rtol,
		accepted, rejected, evaluations, created_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Problem, &r.Method, &r.T0, &r.T1,
			&r.Atol, &r.Rtol, &r.Accepted, &r.Rejected, &r.Evaluations, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run's metadata.
func (s *Store) GetRun(id string) (*Run, error) {
	var r Run
	err := s.db.QueryRow(`SELECT id, problem, method, t0, t1, atol, rtol,
		accepted, rejected, evaluations, created_at
		FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Problem, &r.Method, &r.T0, &r.T1,
			&r.Atol, &r.Rtol, &r.Accepted, &r.Rejected, &r.Evaluations, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: no run %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Samples returns the stored trajectory of a run in time order.
func (s *Store) Samples(id string) ([]Sample, error) {
	rows, err := s.db.Query(`SELECT t, y FROM samples WHERE run_id = ? ORDER BY t`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var sm Sample
		var raw string
		if err := rows.Scan(&sm.T, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &sm.Y); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
