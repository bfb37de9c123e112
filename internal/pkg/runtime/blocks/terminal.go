// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"
	"fmt"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/pkg/block"
)

// 24x80 matches the conventional default terminal geometry, used when the
// caller does not specify rows/cols.
const (
	defaultRows = 24
	defaultCols = 80
)

// TerminalHandler allocates a PTY, writes the block's code into it, and
// streams raw bytes back as they arrive. Unlike script, it does not
// "finish" on command completion: the lifecycle ends only when the PTY
// closes or the block is cancelled.
type TerminalHandler struct{}

func (TerminalHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.TerminalProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}

	env := renderMergedEnv(ec)
	code, err := renderTemplate(props.Code, env)
	if err != nil {
		return nil, err
	}

	h := NewExecutionHandle(b.ID, ec.RunbookID, "")
	deps.Handles.Put(h)

	ptyID, output, err := deps.PTY.Open(ec.RunbookID, b.ID, defaultRows, defaultCols, ec.Cwd, ec.Env, props.Shell)
	if err != nil {
		deps.Handles.Remove(h.ID)
		return nil, fmt.Errorf("terminal block %s: %w", b.ID, err)
	}

	sink.Send(Output{Lifecycle: startedLifecycle()})
	emitBlock(deps.Bus, events.KindBlockStarted, b.ID, ec.RunbookID, true, "")

	deps.PTY.Write(ptyID, []byte(code+"\n"))

	go pumpTerminal(h, b, ec, deps, sink, ptyID, output)

	return h, nil
}

func pumpTerminal(h *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, ptyID uuid.UUID, output <-chan []byte) {
	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				h.Finish(Status{Kind: StatusSuccess})
				sink.Send(Output{Lifecycle: finishedLifecycle(0, true)})
				emitBlock(deps.Bus, events.KindBlockFinished, b.ID, ec.RunbookID, true, "")
				deps.Handles.Remove(h.ID)
				return
			}
			sink.Send(Output{Binary: chunk})

		case <-h.Cancel.Done():
			deps.PTY.Kill(ptyID)
			h.Finish(Status{Kind: StatusCancelled})
			sink.Send(Output{Lifecycle: cancelledLifecycle()})
			emitBlock(deps.Bus, events.KindBlockCancelled, b.ID, ec.RunbookID, false, "")
			deps.Handles.Remove(h.ID)
			return
		}
	}
}
