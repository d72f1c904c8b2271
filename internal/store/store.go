// Package store persists completed runs and their ledgers to sqlite so audit
// history survives the process.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/rahul/webpilot/internal/agent"
)

type RunStore struct {
	DB *sql.DB
}

// RunSummary is the list view of a persisted run.
type RunSummary struct {
	ID        string
	Objective string
	StartURL  string
	Achieved  bool
	CreatedAt time.Time
}

func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			objective TEXT,
			start_url TEXT,
			achieved INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			run_id TEXT,
			seq INTEGER,
			kind TEXT,
			status TEXT,
			entry TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &RunStore{DB: db}, nil
}

// SaveRun persists the run and every ledger entry, returning the run id.
func (s *RunStore) SaveRun(res agent.RunResult) (string, error) {
	id := uuid.NewString()

	tx, err := s.DB.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, objective, start_url, achieved) VALUES (?, ?, ?, ?)`,
		id, res.Objective, res.StartURL, res.Achieved,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	for seq, entry := range res.History {
		payload, err := json.Marshal(entry)
		if err != nil {
			return "", fmt.Errorf("encoding ledger entry %d: %w", seq, err)
		}
		_, err = tx.Exec(
			`INSERT INTO ledger_entries (run_id, seq, kind, status, entry) VALUES (?, ?, ?, ?, ?)`,
			id, seq, string(entry.Kind), string(entry.Status), string(payload),
		)
		if err != nil {
			return "", fmt.Errorf("inserting ledger entry %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetLedger loads the full ledger of a persisted run in order.
func (s *RunStore) GetLedger(runID string) ([]agent.Entry, error) {
	rows, err := s.DB.Query(
		`SELECT entry FROM ledger_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []agent.Entry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry agent.Entry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("decoding ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]RunSummary, error) {
	rows, err := s.DB.Query(
		`SELECT id, objective, start_url, achieved, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Objective, &r.StartURL, &r.Achieved, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *RunStore) Close() error {
	return s.DB.Close()
}
