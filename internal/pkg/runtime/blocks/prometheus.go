// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"
	"encoding/json"
	"fmt"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/pkg/block"
)

// PrometheusHandler executes `prometheus` blocks by querying the
// configured endpoint over its HTTP API, using the same client library
// the wider ecosystem's metrics stacks depend on.
type PrometheusHandler struct{}

// PrometheusResult is the structured object emitted as Output.Object.
type PrometheusResult struct {
	ResultType string          `json:"resultType"`
	Result     json.RawMessage `json:"result"`
	Warnings   []string        `json:"warnings,omitempty"`
}

func (PrometheusHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.PrometheusProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}

	env := renderMergedEnv(ec)
	endpoint, err := renderTemplate(props.Endpoint, env)
	if err != nil {
		return nil, err
	}
	query, err := renderTemplate(props.Query, env)
	if err != nil {
		return nil, err
	}

	handle := NewExecutionHandle(b.ID, ec.RunbookID, "")
	deps.Handles.Put(handle)

	sink.Send(Output{Lifecycle: startedLifecycle()})
	emitBlock(deps.Bus, events.KindBlockStarted, b.ID, ec.RunbookID, true, "")

	go runPrometheusQuery(ctx, handle, b, ec, deps, sink, endpoint, query, props.Period)

	return handle, nil
}

func runPrometheusQuery(ctx gocontext.Context, handle *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, endpoint, query, period string) {
	defer deps.Handles.Remove(handle.ID)

	reqCtx, cancel := gocontext.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-handle.Cancel.Done():
			cancel()
		case <-reqCtx.Done():
		}
	}()

	client, err := promapi.NewClient(promapi.Config{Address: endpoint})
	if err != nil {
		fail(handle, b, ec, deps, sink, fmt.Errorf("prometheus client: %w", err))
		return
	}
	api := promv1.NewAPI(client)

	var (
		resultType model.ValueType
		resultJSON json.RawMessage
		warnings   promv1.Warnings
	)

	if period != "" {
		window, perr := time.ParseDuration(period)
		if perr != nil {
			fail(handle, b, ec, deps, sink, fmt.Errorf("invalid period %q: %w", period, perr))
			return
		}
		now := time.Now()
		r := promv1.Range{Start: now.Add(-window), End: now, Step: window / 100}
		val, warn, qerr := api.QueryRange(reqCtx, query, r)
		if qerr != nil {
			handleQueryErr(handle, b, ec, deps, sink, qerr)
			return
		}
		resultType = val.Type()
		resultJSON, err = json.Marshal(val)
		warnings = warn
	} else {
		val, warn, qerr := api.Query(reqCtx, query, time.Now())
		if qerr != nil {
			handleQueryErr(handle, b, ec, deps, sink, qerr)
			return
		}
		resultType = val.Type()
		resultJSON, err = json.Marshal(val)
		warnings = warn
	}

	if err != nil {
		fail(handle, b, ec, deps, sink, err)
		return
	}

	result := PrometheusResult{ResultType: resultType.String(), Result: resultJSON, Warnings: []string(warnings)}
	encoded, err := json.Marshal(result)
	if err != nil {
		fail(handle, b, ec, deps, sink, err)
		return
	}

	sink.Send(Output{Object: encoded})
	handle.Finish(Status{Kind: StatusSuccess, Output: string(encoded)})
	sink.Send(Output{Lifecycle: finishedLifecycle(0, true)})
	emitBlock(deps.Bus, events.KindBlockFinished, b.ID, ec.RunbookID, true, "")
}

func handleQueryErr(handle *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, err error) {
	select {
	case <-handle.Cancel.Done():
		handle.Finish(Status{Kind: StatusCancelled})
		sink.Send(Output{Lifecycle: cancelledLifecycle()})
		emitBlock(deps.Bus, events.KindBlockCancelled, b.ID, ec.RunbookID, false, "")
	default:
		fail(handle, b, ec, deps, sink, fmt.Errorf("prometheus query: %w", err))
	}
}

func fail(handle *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, err error) {
	handle.Finish(Status{Kind: StatusFailed, Message: err.Error()})
	sink.Send(Output{Lifecycle: errorLifecycle(err.Error())})
	emitBlock(deps.Bus, events.KindBlockFailed, b.ID, ec.RunbookID, false, err.Error())
}
