// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package execlog is the append-only execution log used by the dependency
// evaluator. Storage is backed by database/sql so the
// core never hard-depends on a concrete SQLite driver: the host registers
// one (e.g. modernc.org/sqlite, mattn/go-sqlite3) and passes a *sql.DB in.
package execlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Entry is one durable record: a block's start/end timestamps (ns since
// epoch) and its captured output.
type Entry struct {
	BlockID uuid.UUID
	StartNs int64
	EndNs   int64
	Output  string
}

// Log is the durable append-only contract: writes are serialized, reads
// are concurrent, and entries are retained at least long enough to answer
// "most recent execution time of block X".
type Log interface {
	LogExecution(ctx context.Context, e Entry) error
	LastExecutionTime(ctx context.Context, blockID uuid.UUID) (int64, bool, error)
}

// Schema is the DDL the SQL-backed Log expects to already exist (or
// creates via EnsureSchema).
const Schema = `
CREATE TABLE IF NOT EXISTS exec_log (
	block_id   TEXT    NOT NULL,
	start_ns   INTEGER NOT NULL,
	end_ns     INTEGER NOT NULL,
	output     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS exec_log_block_id_end_ns ON exec_log(block_id, end_ns DESC);
`

// SQLLog is the database/sql-backed implementation.
type SQLLog struct {
	db *sql.DB
	mu sync.Mutex // serializes writes
}

// NewSQLLog wraps db, assumed already migrated (see EnsureSchema).
func NewSQLLog(db *sql.DB) *SQLLog {
	return &SQLLog{db: db}
}

// EnsureSchema creates the exec_log table if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("exec_log: ensure schema: %w", err)
	}
	return nil
}

func (l *SQLLog) LogExecution(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO exec_log (block_id, start_ns, end_ns, output) VALUES (?, ?, ?, ?)`,
		e.BlockID.String(), e.StartNs, e.EndNs, e.Output,
	)
	if err != nil {
		return fmt.Errorf("exec_log: insert: %w", err)
	}
	return nil
}

func (l *SQLLog) LastExecutionTime(ctx context.Context, blockID uuid.UUID) (int64, bool, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT end_ns FROM exec_log WHERE block_id = ? ORDER BY end_ns DESC LIMIT 1`,
		blockID.String(),
	)

	var endNs int64
	if err := row.Scan(&endNs); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("exec_log: query: %w", err)
	}
	return endNs, true, nil
}

// Memory is an in-process Log, useful for tests and for hosts running
// without persistence.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) LogExecution(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) LastExecutionTime(_ context.Context, blockID uuid.UUID) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		best  int64
		found bool
	)
	for _, e := range m.entries {
		if e.BlockID != blockID {
			continue
		}
		if !found || e.EndNs > best {
			best = e.EndNs
			found = true
		}
	}
	return best, found, nil
}
