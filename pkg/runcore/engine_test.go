// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package runcore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/blocks"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/pkg/block"
)

func mustProps(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func waitHandle(t *testing.T, h *blocks.ExecutionHandle) blocks.Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s := h.Status()
		if s.Kind != blocks.StatusRunning {
			return s
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatalf("execution never reached a terminal status")
		}
	}
}

func TestEngineExecuteBlockScript(t *testing.T) {
	mem := events.NewMemory()
	e := New(Options{Bus: mem})

	runbookID := uuid.New()
	scriptBlock := block.Block{
		ID:   uuid.New(),
		Kind: block.KindScript,
		Props: mustProps(t, block.ScriptProps{
			Interpreter:    "bash",
			Code:           "echo from-engine",
			OutputVariable: "g",
		}),
	}
	doc := block.Document{scriptBlock}

	handle, _, err := e.ExecuteBlock(context.Background(), runbookID, doc, scriptBlock.ID)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}

	status := waitHandle(t, handle)
	if status.Kind != blocks.StatusSuccess {
		t.Fatalf("status = %+v, want Success", status)
	}

	val, ok := e.OutputVariable(runbookID, "g")
	if !ok || val != "from-engine" {
		t.Fatalf("OutputVariable = %q, ok=%v, want \"from-engine\"", val, ok)
	}
}

func TestEngineExecuteBlockUnknownID(t *testing.T) {
	e := New(Options{})
	doc := block.Document{}
	if _, _, err := e.ExecuteBlock(context.Background(), uuid.New(), doc, uuid.New()); err == nil {
		t.Fatal("expected an error for a block id absent from the document")
	}
}

func TestEngineCancelExecution(t *testing.T) {
	e := New(Options{})
	runbookID := uuid.New()
	b := block.Block{
		ID:   uuid.New(),
		Kind: block.KindScript,
		Props: mustProps(t, block.ScriptProps{
			Interpreter: "bash",
			Code:        "sleep 30",
		}),
	}
	doc := block.Document{b}

	handle, _, err := e.ExecuteBlock(context.Background(), runbookID, doc, b.ID)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	e.CancelExecution(handle.ID)

	status := waitHandle(t, handle)
	if status.Kind != blocks.StatusCancelled {
		t.Fatalf("status = %+v, want Cancelled", status)
	}
}

// TestEngineRunWorkflowSerial drives a three-block document (var, script,
// var-display) end to end through RunWorkflow and confirms it reaches
// completion.
func TestEngineRunWorkflowSerial(t *testing.T) {
	mem := events.NewMemory()
	e := New(Options{Bus: mem})

	varBlock := block.Block{
		ID:   uuid.New(),
		Kind: block.KindVar,
		Props: mustProps(t, block.VarProps{
			Name:  "greeting",
			Value: "hello",
		}),
	}
	scriptBlock := block.Block{
		ID:   uuid.New(),
		Kind: block.KindScript,
		Props: mustProps(t, block.ScriptProps{
			Interpreter: "bash",
			Code:        "echo {{greeting}}",
		}),
	}
	displayBlock := block.Block{
		ID:   uuid.New(),
		Kind: block.KindVarDisplay,
		Props: mustProps(t, block.VarDisplayProps{
			VariableName: "greeting",
		}),
	}
	doc := block.Document{varBlock, scriptBlock, displayBlock}
	runbookID := uuid.New()

	e.RunWorkflow(context.Background(), runbookID, doc)

	deadline := time.After(5 * time.Second)
	for {
		running, _ := e.wf.Status(runbookID)
		if !running {
			break
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("workflow never finished")
		}
	}

	var sawCompleted bool
	for _, evt := range mem.Events() {
		if evt.Kind == events.KindSerialExecutionCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Fatal("expected SerialExecutionCompleted")
	}
}

// TestEngineLogExecutionBroadcasts: logging an externally executed block
// records it and emits BlockFinished so waiting workflows advance.
func TestEngineLogExecutionBroadcasts(t *testing.T) {
	mem := events.NewMemory()
	e := New(Options{Bus: mem})
	runbookID, blockID := uuid.New(), uuid.New()

	err := e.LogExecution(context.Background(), runbookID, execlog.Entry{
		BlockID: blockID,
		StartNs: 100,
		EndNs:   200,
		Output:  "done",
	})
	if err != nil {
		t.Fatalf("LogExecution: %v", err)
	}

	last, ok, err := e.LastExecutionTime(context.Background(), blockID)
	if err != nil || !ok || last != 200 {
		t.Fatalf("last = %d ok=%v err=%v, want 200", last, ok, err)
	}

	var sawFinished bool
	for _, evt := range mem.Events() {
		if evt.Kind != events.KindBlockFinished {
			continue
		}
		if data, ok := evt.Data.(events.BlockLifecycleData); ok && data.BlockID == blockID {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatal("expected a BlockFinished broadcast for the logged block")
	}
}

func TestEngineSetAndGetLocalVar(t *testing.T) {
	e := New(Options{})
	runbookID, blockID := uuid.New(), uuid.New()

	if _, ok := e.kv.Get(runbookID, blockID, "x"); ok {
		t.Fatal("expected unset local var to report !ok")
	}

	changed, err := e.SetLocalVar(context.Background(), runbookID, blockID, "x", "42")
	if err != nil || !changed {
		t.Fatalf("SetLocalVar: changed=%v err=%v", changed, err)
	}
	val, ok := e.kv.Get(runbookID, blockID, "x")
	if !ok || val != "42" {
		t.Fatalf("local var x = %q, ok=%v, want \"42\"", val, ok)
	}

	// A same-value write reports unchanged.
	if changed, err := e.SetLocalVar(context.Background(), runbookID, blockID, "x", "42"); err != nil || changed {
		t.Fatalf("same-value SetLocalVar: changed=%v err=%v", changed, err)
	}
}
