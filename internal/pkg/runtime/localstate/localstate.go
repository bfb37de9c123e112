// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package localstate persists per-block state that survives process
// restarts: the `block_local_state` table backing `local-var` resolution
// and the `context` table holding resolved-context snapshots. Like the
// execution log, it depends only on database/sql; the host registers a
// concrete driver.
package localstate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Schema is the DDL the store expects, matching the `context` and
// `block_local_state` tables with their unique constraints.
const Schema = `
CREATE TABLE IF NOT EXISTS context (
	document_id  TEXT NOT NULL,
	block_id     TEXT NOT NULL,
	context_json TEXT NOT NULL,
	UNIQUE (document_id, block_id)
);
CREATE TABLE IF NOT EXISTS block_local_state (
	runbook_id     TEXT    NOT NULL,
	block_id       TEXT    NOT NULL,
	property_name  TEXT    NOT NULL,
	property_value TEXT    NOT NULL,
	created        INTEGER NOT NULL,
	updated        INTEGER NOT NULL,
	UNIQUE (runbook_id, block_id, property_name)
);
`

// Store reads and writes both tables over one *sql.DB. Its Get method
// satisfies the context resolver's KVProvider contract, so a host can hand
// a Store directly to Resolve (or to Engine) as the `local-var` backing.
type Store struct {
	db  *sql.DB
	now func() int64
}

// New wraps db, assumed already migrated (see EnsureSchema).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() int64 { return time.Now().UnixNano() }}
}

// EnsureSchema creates both tables if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("localstate: ensure schema: %w", err)
	}
	return nil
}

// Get implements the resolver's KVProvider: the stored value of name for
// blockID within runbookID, or ok=false if never set.
func (s *Store) Get(runbookID, blockID uuid.UUID, name string) (string, bool) {
	row := s.db.QueryRow(
		`SELECT property_value FROM block_local_state WHERE runbook_id = ? AND block_id = ? AND property_name = ?`,
		runbookID.String(), blockID.String(), name,
	)
	var value string
	if err := row.Scan(&value); err != nil {
		return "", false
	}
	return value, true
}

// Set upserts a block-local property, preserving the original created
// timestamp on update. It reports whether the stored value actually
// changed, so callers can skip notifying watchers on a same-value write.
func (s *Store) Set(ctx context.Context, runbookID, blockID uuid.UUID, name, value string) (bool, error) {
	if existing, ok := s.Get(runbookID, blockID, name); ok && existing == value {
		return false, nil
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO block_local_state (runbook_id, block_id, property_name, property_value, created, updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (runbook_id, block_id, property_name)
		 DO UPDATE SET property_value = excluded.property_value, updated = excluded.updated`,
		runbookID.String(), blockID.String(), name, value, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("localstate: set %s: %w", name, err)
	}
	return true, nil
}

// Delete removes a block-local property. Deleting an absent property is
// not an error.
func (s *Store) Delete(ctx context.Context, runbookID, blockID uuid.UUID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM block_local_state WHERE runbook_id = ? AND block_id = ? AND property_name = ?`,
		runbookID.String(), blockID.String(), name,
	)
	if err != nil {
		return fmt.Errorf("localstate: delete %s: %w", name, err)
	}
	return nil
}

// SaveContext upserts the resolved-context snapshot for blockID within
// documentID.
func (s *Store) SaveContext(ctx context.Context, documentID, blockID uuid.UUID, contextJSON []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO context (document_id, block_id, context_json) VALUES (?, ?, ?)
		 ON CONFLICT (document_id, block_id) DO UPDATE SET context_json = excluded.context_json`,
		documentID.String(), blockID.String(), string(contextJSON),
	)
	if err != nil {
		return fmt.Errorf("localstate: save context: %w", err)
	}
	return nil
}

// LoadContext returns the snapshot saved for blockID within documentID, or
// ok=false if none exists.
func (s *Store) LoadContext(ctx context.Context, documentID, blockID uuid.UUID) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT context_json FROM context WHERE document_id = ? AND block_id = ?`,
		documentID.String(), blockID.String(),
	)
	var contextJSON string
	if err := row.Scan(&contextJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("localstate: load context: %w", err)
	}
	return []byte(contextJSON), true, nil
}
