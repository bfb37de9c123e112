// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/pkg/block"
)

// VarDisplayHandler is a pure context consumer: it produces no execution
// lifecycle beyond an immediate Finished.
type VarDisplayHandler struct{}

func (VarDisplayHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.VarDisplayProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}
	return finishImmediately(b, ec, deps, sink)
}

// MarkdownRenderHandler resolves its variable name through the template
// engine and otherwise behaves like VarDisplayHandler.
type MarkdownRenderHandler struct{}

func (MarkdownRenderHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.MarkdownRenderProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}

	if props.VariableName != "" {
		env := renderMergedEnv(ec)
		if _, err := renderTemplate(props.VariableName, env); err != nil {
			return nil, err
		}
	}

	return finishImmediately(b, ec, deps, sink)
}

// ContextHandler is the trivial handler registered for the context-
// producing block kinds (directory, environment, var, local-var, host,
// ssh-connect, editor). Their effect on later blocks already happened
// during context resolution; running one directly still produces an
// immediate, well-formed lifecycle, the same way var-display and
// markdown-render do.
type ContextHandler struct{}

func (ContextHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	return finishImmediately(b, ec, deps, sink)
}

func finishImmediately(b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	h := NewExecutionHandle(b.ID, ec.RunbookID, "")
	deps.Handles.Put(h)

	sink.Send(Output{Lifecycle: startedLifecycle()})
	emitBlock(deps.Bus, events.KindBlockStarted, b.ID, ec.RunbookID, true, "")

	h.Finish(Status{Kind: StatusSuccess})
	sink.Send(Output{Lifecycle: finishedLifecycle(0, true)})
	emitBlock(deps.Bus, events.KindBlockFinished, b.ID, ec.RunbookID, true, "")

	deps.Handles.Remove(h.ID)
	return h, nil
}
