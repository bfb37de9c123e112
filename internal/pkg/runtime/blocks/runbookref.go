// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"
	"fmt"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/pkg/block"
)

// ContentLoader resolves a runbook-ref block's target (by id, URI, or
// path) to the referenced runbook's raw content. Loading itself (parsing
// runbook files, fetching remote URIs, watching a workspace) belongs to
// the host; the execution core only consumes this interface.
type ContentLoader interface {
	Load(ref block.RunbookRefProps) ([]byte, error)
}

// RunbookRefHandler resolves a composite block through a ContentLoader and
// reports what it found; it does not recursively execute the referenced
// runbook. Only content resolution happens here.
type RunbookRefHandler struct {
	Loader ContentLoader
}

func (h RunbookRefHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.RunbookRefProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}

	handle := NewExecutionHandle(b.ID, ec.RunbookID, "")
	deps.Handles.Put(handle)

	sink.Send(Output{Lifecycle: startedLifecycle()})
	emitBlock(deps.Bus, events.KindBlockStarted, b.ID, ec.RunbookID, true, "")

	if h.Loader == nil {
		err := fmt.Errorf("runbook-ref block %s: no content loader configured", b.ID)
		handle.Finish(Status{Kind: StatusFailed, Message: err.Error()})
		sink.Send(Output{Lifecycle: errorLifecycle(err.Error())})
		emitBlock(deps.Bus, events.KindBlockFailed, b.ID, ec.RunbookID, false, err.Error())
		deps.Handles.Remove(handle.ID)
		return handle, nil
	}

	content, err := h.Loader.Load(props)
	if err != nil {
		msg := fmt.Errorf("load runbook ref: %w", err).Error()
		handle.Finish(Status{Kind: StatusFailed, Message: msg})
		sink.Send(Output{Lifecycle: errorLifecycle(msg)})
		emitBlock(deps.Bus, events.KindBlockFailed, b.ID, ec.RunbookID, false, msg)
		deps.Handles.Remove(handle.ID)
		return handle, nil
	}

	sink.Send(Output{Object: content})
	handle.Finish(Status{Kind: StatusSuccess, Output: string(content)})
	sink.Send(Output{Lifecycle: finishedLifecycle(0, true)})
	emitBlock(deps.Bus, events.KindBlockFinished, b.ID, ec.RunbookID, true, "")
	deps.Handles.Remove(handle.ID)
	return handle, nil
}
