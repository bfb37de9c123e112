// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/pkg/block"
)

// HTTPSummary is the structured object emitted for an http block; the
// response body is deliberately not persisted, to bound memory.
type HTTPSummary struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	DurationMs int64             `json:"durationMs"`
}

// HTTPHandler executes `http` blocks.
type HTTPHandler struct {
	Client *http.Client
}

func (h HTTPHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.HTTPProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}

	env := renderMergedEnv(ec)
	verb := strings.ToUpper(props.Verb)
	if verb == "" {
		verb = http.MethodGet
	}
	url, err := renderTemplate(props.URL, env)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(props.Headers))
	for k, v := range props.Headers {
		rendered, err := renderTemplate(v, env)
		if err != nil {
			return nil, err
		}
		headers[k] = rendered
	}

	body, err := renderTemplate(props.Body, env)
	if err != nil {
		return nil, err
	}

	handle := NewExecutionHandle(b.ID, ec.RunbookID, "")
	deps.Handles.Put(handle)

	sink.Send(Output{Lifecycle: startedLifecycle()})
	emitBlock(deps.Bus, events.KindBlockStarted, b.ID, ec.RunbookID, true, "")

	go h.run(ctx, handle, b, ec, deps, sink, verb, url, headers, body)

	return handle, nil
}

func (h HTTPHandler) run(ctx gocontext.Context, handle *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, verb, url string, headers map[string]string, body string) {
	defer deps.Handles.Remove(handle.ID)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	reqCtx, cancel := gocontext.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-handle.Cancel.Done():
			cancel()
		case <-reqCtx.Done():
		}
	}()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, verb, url, bodyReader)
	if err != nil {
		h.fail(handle, b, ec, deps, sink, err)
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		select {
		case <-handle.Cancel.Done():
			handle.Finish(Status{Kind: StatusCancelled})
			sink.Send(Output{Lifecycle: cancelledLifecycle()})
			emitBlock(deps.Bus, events.KindBlockCancelled, b.ID, ec.RunbookID, false, "")
		default:
			h.fail(handle, b, ec, deps, sink, err)
		}
		return
	}
	defer resp.Body.Close()

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	summary := HTTPSummary{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    respHeaders,
		DurationMs: duration.Milliseconds(),
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		h.fail(handle, b, ec, deps, sink, err)
		return
	}

	sink.Send(Output{Object: encoded})
	handle.Finish(Status{Kind: StatusSuccess, Output: string(encoded)})
	sink.Send(Output{Lifecycle: finishedLifecycle(0, true)})
	emitBlock(deps.Bus, events.KindBlockFinished, b.ID, ec.RunbookID, true, "")
}

func (h HTTPHandler) fail(handle *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, err error) {
	msg := fmt.Errorf("http request: %w", err).Error()
	handle.Finish(Status{Kind: StatusFailed, Message: msg})
	sink.Send(Output{Lifecycle: errorLifecycle(msg)})
	emitBlock(deps.Bus, events.KindBlockFailed, b.ID, ec.RunbookID, false, msg)
}
