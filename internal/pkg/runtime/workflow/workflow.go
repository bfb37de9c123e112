// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package workflow implements the serial workflow state machine: fire the
// first block, await its BlockFinished event, fire the next, honour
// cancellation. Exactly one run per workflow id may be Running at a time;
// distinct workflow ids run independently and concurrently.
package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
)

// Runner is how the executor actually causes a block to execute; the
// engine wiring these together implements it by dispatching through the
// block registry.
type Runner interface {
	RunBlock(ctx context.Context, runbookID, blockID uuid.UUID)
	StopBlock(blockID uuid.UUID)
}

type stateKind int

const (
	stateRunning stateKind = iota
	stateFinished
	stateCancelled
)

type run struct {
	workflowID uuid.UUID
	runbookID  uuid.UUID
	blocks     []uuid.UUID
	pos        int
	state      stateKind
}

// Executor drives zero or more concurrently running serial workflows. It
// implements events.Bus so it can be plugged into the same event fan-out
// every block handler emits on; it reacts only to KindBlockFinished.
type Executor struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]*run
	bus    events.Bus
	runner Runner
}

// New returns an Executor that issues RunBlock/StopBlock through runner
// and emits SerialExecution/Runbook/BlockFinished-adjacent events onto
// bus. bus may be nil (events.NoOp is used).
func New(bus events.Bus, runner Runner) *Executor {
	if bus == nil {
		bus = events.NoOp{}
	}
	return &Executor{
		runs:   make(map[uuid.UUID]*run),
		bus:    bus,
		runner: runner,
	}
}

// RunWorkflow starts workflowID running runbookID's blocks in document
// order. A duplicate workflowID already Running is a no-op. An empty
// blocks list emits the started and completed lifecycle with no RunBlock.
func (e *Executor) RunWorkflow(ctx context.Context, workflowID, runbookID uuid.UUID, blocks []uuid.UUID) {
	e.mu.Lock()
	if _, exists := e.runs[workflowID]; exists {
		e.mu.Unlock()
		return
	}

	r := &run{workflowID: workflowID, runbookID: runbookID, blocks: blocks, pos: 0, state: stateRunning}
	e.runs[workflowID] = r
	e.mu.Unlock()

	e.bus.Emit(events.Event{Kind: events.KindSerialExecutionStarted, Data: events.RunbookLifecycleData{RunbookID: workflowID}})
	e.bus.Emit(events.Event{Kind: events.KindRunbookStarted, Data: events.RunbookLifecycleData{RunbookID: runbookID}})

	if len(blocks) == 0 {
		e.mu.Lock()
		delete(e.runs, workflowID)
		e.mu.Unlock()
		e.bus.Emit(events.Event{Kind: events.KindSerialExecutionCompleted, Data: events.RunbookLifecycleData{RunbookID: workflowID}})
		e.bus.Emit(events.Event{Kind: events.KindRunbookCompleted, Data: events.RunbookLifecycleData{RunbookID: runbookID}})
		return
	}

	e.runner.RunBlock(ctx, runbookID, blocks[0])
}

// StopWorkflow cancels workflowID, if running: every remaining block
// receives StopBlock, the run transitions to Cancelled, and it is
// removed. Idempotent.
func (e *Executor) StopWorkflow(workflowID uuid.UUID) {
	e.mu.Lock()
	r, ok := e.runs[workflowID]
	if !ok || r.state != stateRunning {
		e.mu.Unlock()
		return
	}
	r.state = stateCancelled
	blocks := append([]uuid.UUID(nil), r.blocks...)
	runbookID := r.runbookID
	delete(e.runs, workflowID)
	e.mu.Unlock()

	for _, id := range blocks {
		e.runner.StopBlock(id)
	}

	e.bus.Emit(events.Event{Kind: events.KindSerialExecutionCancelled, Data: events.RunbookLifecycleData{RunbookID: workflowID}})
	e.bus.Emit(events.Event{Kind: events.KindRunbookFailed, Data: events.RunbookLifecycleData{RunbookID: runbookID}})
}

// Emit implements events.Bus. It advances whichever active run is
// currently waiting on blockID; events for blocks that belong to no
// active run, or that are not the run's current position, are ignored.
func (e *Executor) Emit(evt events.Event) {
	if evt.Kind != events.KindBlockFinished {
		return
	}
	data, ok := evt.Data.(events.BlockLifecycleData)
	if !ok {
		return
	}

	e.mu.Lock()
	var (
		advancing  *run
		nextBlock  uuid.UUID
		hasNext    bool
		finishedAt uuid.UUID
	)
	for _, r := range e.runs {
		if r.state != stateRunning {
			continue
		}
		if r.pos >= len(r.blocks) || r.blocks[r.pos] != data.BlockID {
			continue
		}
		r.pos++
		advancing = r
		finishedAt = r.workflowID
		if r.pos < len(r.blocks) {
			nextBlock = r.blocks[r.pos]
			hasNext = true
		} else {
			r.state = stateFinished
			delete(e.runs, r.workflowID)
		}
		break
	}
	e.mu.Unlock()

	if advancing == nil {
		return
	}

	if hasNext {
		e.runner.RunBlock(context.Background(), advancing.runbookID, nextBlock)
		return
	}

	e.bus.Emit(events.Event{Kind: events.KindSerialExecutionCompleted, Data: events.RunbookLifecycleData{RunbookID: finishedAt}})
	e.bus.Emit(events.Event{Kind: events.KindRunbookCompleted, Data: events.RunbookLifecycleData{RunbookID: advancing.runbookID}})
}

// Status reports whether workflowID currently has a Running entry.
func (e *Executor) Status(workflowID uuid.UUID) (running bool, pos int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[workflowID]
	if !ok {
		return false, 0
	}
	return r.state == stateRunning, r.pos
}
