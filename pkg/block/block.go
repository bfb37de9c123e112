// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package block defines the runbook's block data model: a tagged variant
// with a stable id and kind-specific properties. Kind is immutable once a
// block is parsed from the document; props may be edited by the owning
// document but never by the execution core.
package block

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind tags the block variants recognized by the core.
type Kind string

const (
	// Execution kinds.
	KindScript     Kind = "script"
	KindTerminal   Kind = "terminal"
	KindPostgres   Kind = "postgres"
	KindMySQL      Kind = "mysql"
	KindSQLite     Kind = "sqlite"
	KindClickhouse Kind = "clickhouse"
	KindHTTP       Kind = "http"
	KindPrometheus Kind = "prometheus"

	// Context kinds.
	KindDirectory  Kind = "directory"
	KindEnviron    Kind = "environment"
	KindVar        Kind = "var"
	KindLocalVar   Kind = "local-var"
	KindHost       Kind = "host"
	KindSSHConnect Kind = "ssh-connect"
	KindEditor     Kind = "editor"

	// Display kinds.
	KindVarDisplay     Kind = "var-display"
	KindMarkdownRender Kind = "markdown-render"

	// Composite kinds.
	KindRunbookRef Kind = "runbook-ref"
)

// DependencySpec governs whether a block may run, evaluated against the
// execution log. Only the first entry of Parents is consulted; additional
// parents are reserved until multi-parent semantics (all? any?) are
// settled.
type DependencySpec struct {
	Parents        []uuid.UUID `json:"parents"`
	Within         int64       `json:"within"`
	AutoRunParents bool        `json:"autoRunParents"`
}

// Block is a single document entry: a stable id, an immutable kind, and
// kind-specific JSON properties resolved lazily by each handler/context
// provider via Decode.
type Block struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	Name       string          `json:"name,omitempty"`
	Props      json.RawMessage `json:"props"`
	Dependency *DependencySpec `json:"dependency,omitempty"`
}

// Decode unmarshals Props into dst, which must be a pointer. It is the only
// sanctioned way for a handler to read a block's kind-specific fields,
// keeping the core's knowledge of the JSON shape confined to one call site
// per handler.
func (b Block) Decode(dst interface{}) error {
	if len(b.Props) == 0 {
		return nil
	}
	if err := json.Unmarshal(b.Props, dst); err != nil {
		return fmt.Errorf("block %s: decode props: %w", b.ID, err)
	}
	return nil
}

// Document is the ordered sequence the context resolver and workflow
// executor walk; it is the source of truth, not any persisted runbook
// representation.
type Document []Block

// Find returns the block with the given id and its position, or false if
// absent.
func (d Document) Find(id uuid.UUID) (Block, int, bool) {
	for i, b := range d {
		if b.ID == id {
			return b, i, true
		}
	}
	return Block{}, -1, false
}

// Raw returns the document re-encoded as a slice of JSON values, one per
// block. The template engine does not use it: templates resolve against
// env and variables only, not document-level values such as block names.
func (d Document) Raw() ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(d))
	for _, b := range d {
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode block %s: %w", b.ID, err)
		}
		out = append(out, encoded)
	}
	return out, nil
}
