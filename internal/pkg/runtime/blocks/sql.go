// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/pkg/block"
)

// Opener opens a single-use *sql.DB for a dialect-specific URI. The core
// depends only on database/sql's *sql.DB/*sql.Rows contract; the concrete
// driver is registered by the host via sql.Register/blank import, and
// Opener is the seam that hands the dialect-qualified driver name to
// sql.Open.
type Opener func(uri string) (*sql.DB, error)

// SQLHandler executes postgres/mysql/sqlite/clickhouse blocks. One
// instance is registered per dialect, differing only in Open.
type SQLHandler struct {
	Open Opener
}

// QueryResult is the {columns, rows} object emitted as Output.Object.
type QueryResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func (h SQLHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.SQLProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}

	env := renderMergedEnv(ec)
	uri, err := renderTemplate(props.URI, env)
	if err != nil {
		return nil, err
	}
	query, err := renderTemplate(props.Query, env)
	if err != nil {
		return nil, err
	}

	if props.OutputVariable != "" && !identRe(props.OutputVariable) {
		return nil, fmt.Errorf("sql block %s: invalid output variable name %q", b.ID, props.OutputVariable)
	}

	handle := NewExecutionHandle(b.ID, ec.RunbookID, props.OutputVariable)
	deps.Handles.Put(handle)

	sink.Send(Output{Lifecycle: startedLifecycle()})
	emitBlock(deps.Bus, events.KindBlockStarted, b.ID, ec.RunbookID, true, "")

	go h.run(ctx, handle, b, ec, deps, sink, uri, query, props.Params)

	return handle, nil
}

func (h SQLHandler) run(ctx gocontext.Context, handle *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, uri, query string, params []interface{}) {
	start := nowNs(deps)

	result, runErr := h.query(ctx, handle, uri, query, params)

	end := nowNs(deps)

	defer deps.Handles.Remove(handle.ID)

	select {
	case <-handle.Cancel.Done():
		handle.Finish(Status{Kind: StatusCancelled})
		sink.Send(Output{Lifecycle: cancelledLifecycle()})
		emitBlock(deps.Bus, events.KindBlockCancelled, b.ID, ec.RunbookID, false, "")
		return
	default:
	}

	if runErr != nil {
		handle.Finish(Status{Kind: StatusFailed, Message: runErr.Error()})
		sink.Send(Output{Lifecycle: errorLifecycle(runErr.Error())})
		emitBlock(deps.Bus, events.KindBlockFailed, b.ID, ec.RunbookID, false, runErr.Error())
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		handle.Finish(Status{Kind: StatusFailed, Message: err.Error()})
		sink.Send(Output{Lifecycle: errorLifecycle(err.Error())})
		emitBlock(deps.Bus, events.KindBlockFailed, b.ID, ec.RunbookID, false, err.Error())
		return
	}

	sink.Send(Output{Object: encoded})
	handle.Finish(Status{Kind: StatusSuccess, Output: string(encoded)})
	sink.Send(Output{Lifecycle: finishedLifecycle(0, true)})
	emitBlock(deps.Bus, events.KindBlockFinished, b.ID, ec.RunbookID, true, "")

	if handle.OutputVariable != "" && deps.Outputs != nil {
		deps.Outputs.Set(ec.RunbookID, handle.OutputVariable, string(encoded))
	}

	if deps.Log != nil {
		_ = deps.Log.LogExecution(gocontext.Background(), execlog.Entry{
			BlockID: b.ID,
			StartNs: start,
			EndNs:   end,
			Output:  string(encoded),
		})
	}
}

func (h SQLHandler) query(ctx gocontext.Context, handle *ExecutionHandle, uri, query string, params []interface{}) (*QueryResult, error) {
	db, err := h.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	queryCtx, cancel := gocontext.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-handle.Cancel.Done():
			cancel()
		case <-queryCtx.Done():
		}
	}()

	rows, err := db.QueryContext(queryCtx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	result := &QueryResult{Columns: columns, Rows: make([][]interface{}, 0)}
	for rows.Next() {
		raw := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result.Rows = append(result.Rows, decodeRow(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return result, nil
}
