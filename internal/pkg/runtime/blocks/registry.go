// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"
	"database/sql"
	"fmt"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/pkg/block"
)

// Handler is the common contract every block kind implements: consume a
// resolved context, spawn whatever work the kind requires, and return an
// ExecutionHandle the caller can poll or cancel.
type Handler interface {
	Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error)
}

// Registry is the pure kind -> Handler map. Registration is static;
// Dispatch is the entry point for "execute this block".
type Registry struct {
	handlers map[block.Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[block.Kind]Handler)}
}

func (r *Registry) Register(kind block.Kind, h Handler) {
	r.handlers[kind] = h
}

// Dispatch matches b.Kind against the registry and calls the
// corresponding handler. An unregistered kind is an error.
func (r *Registry) Dispatch(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	h, ok := r.handlers[b.Kind]
	if !ok {
		return nil, fmt.Errorf("Unsupported block kind: %s", b.Kind)
	}
	return h.Execute(ctx, b, ec, deps, sink)
}

// SQLDialects names the driver each dialect-specific Opener should target
// via sql.Open, the seam a host fills in with a concrete registered
// driver.
type SQLDialects struct {
	Postgres   string
	MySQL      string
	SQLite     string
	Clickhouse string
}

// sqlOpener returns an Opener that opens driverName against the URI
// verbatim. A host that has not registered driverName with database/sql
// will get sql.Open's own error at first use, not at registration time.
func sqlOpener(driverName string) Opener {
	return func(uri string) (*sql.DB, error) {
		if driverName == "" {
			return nil, fmt.Errorf("no driver configured for this dialect")
		}
		return sql.Open(driverName, uri)
	}
}

// NewDefaultRegistry wires a handler for every recognized block kind.
// dialects selects which database/sql driver name each SQL dialect opens
// against; loader backs runbook-ref resolution and may be nil (resolution
// then fails per-call, not at wiring time).
func NewDefaultRegistry(dialects SQLDialects, loader ContentLoader) *Registry {
	r := NewRegistry()

	r.Register(block.KindScript, ScriptHandler{})
	r.Register(block.KindTerminal, TerminalHandler{})

	r.Register(block.KindPostgres, SQLHandler{Open: sqlOpener(dialects.Postgres)})
	r.Register(block.KindMySQL, SQLHandler{Open: sqlOpener(dialects.MySQL)})
	r.Register(block.KindSQLite, SQLHandler{Open: sqlOpener(dialects.SQLite)})
	r.Register(block.KindClickhouse, SQLHandler{Open: sqlOpener(dialects.Clickhouse)})

	r.Register(block.KindHTTP, HTTPHandler{})
	r.Register(block.KindPrometheus, PrometheusHandler{})

	r.Register(block.KindVarDisplay, VarDisplayHandler{})
	r.Register(block.KindMarkdownRender, MarkdownRenderHandler{})

	ctxHandler := ContextHandler{}
	r.Register(block.KindDirectory, ctxHandler)
	r.Register(block.KindEnviron, ctxHandler)
	r.Register(block.KindVar, ctxHandler)
	r.Register(block.KindLocalVar, ctxHandler)
	r.Register(block.KindHost, ctxHandler)
	r.Register(block.KindSSHConnect, ctxHandler)
	r.Register(block.KindEditor, ctxHandler)

	r.Register(block.KindRunbookRef, RunbookRefHandler{Loader: loader})

	return r
}
