// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	rcontext "github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/pkg/block"
)

func newTestDeps() (*Deps, *events.Memory) {
	mem := events.NewMemory()
	return &Deps{
		Bus:     mem,
		Log:     execlog.NewMemory(),
		Outputs: rcontext.NewOutputStore(),
		Handles: NewHandleRegistry(),
	}, mem
}

func waitTerminal(t *testing.T, h *ExecutionHandle) Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s := h.Status()
		if s.Kind != StatusRunning {
			return s
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatalf("execution never reached a terminal status")
		}
	}
}

func mustProps(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// TestScriptSuccess: echo hello, output captured to a variable, one exec
// log entry recorded.
func TestScriptSuccess(t *testing.T) {
	deps, mem := newTestDeps()
	runbookID := uuid.New()
	b := block.Block{
		ID:   uuid.New(),
		Kind: block.KindScript,
		Props: mustProps(t, block.ScriptProps{
			Interpreter:    "bash",
			Code:           "echo hello",
			OutputVariable: "g",
		}),
	}
	ec := &rcontext.ExecutionContext{RunbookID: runbookID, Cwd: ".", Env: map[string]string{}, Variables: map[string]string{}}

	sink := NewChanSink(16)
	h, err := ScriptHandler{}.Execute(context.Background(), b, ec, deps, sink)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	status := waitTerminal(t, h)
	if status.Kind != StatusSuccess {
		t.Fatalf("status = %+v, want Success", status)
	}

	val, ok := deps.Outputs.Get(runbookID, "g")
	if !ok || val != "hello" {
		t.Fatalf("output variable g = %q, ok=%v; want \"hello\"", val, ok)
	}

	var sawStarted, sawFinished bool
	for _, evt := range mem.Events() {
		switch evt.Kind {
		case events.KindBlockStarted:
			sawStarted = true
		case events.KindBlockFinished:
			sawFinished = true
		}
	}
	if !sawStarted || !sawFinished {
		t.Fatalf("expected Started and Finished events, got %+v", mem.Events())
	}

	if last, ok, err := deps.Log.LastExecutionTime(context.Background(), b.ID); err != nil || !ok || last == 0 {
		t.Fatalf("expected an exec log entry, got ok=%v err=%v last=%d", ok, err, last)
	}
}

// TestScriptDirectoryAndEnv runs a script under a resolved cwd and env
// and asserts both reach the subprocess.
func TestScriptDirectoryAndEnv(t *testing.T) {
	deps, _ := newTestDeps()
	runbookID := uuid.New()
	b := block.Block{
		ID:   uuid.New(),
		Kind: block.KindScript,
		Props: mustProps(t, block.ScriptProps{
			Interpreter: "bash",
			Code:        "echo $X-$PWD",
		}),
	}
	ec := &rcontext.ExecutionContext{
		RunbookID: runbookID,
		Cwd:       "/tmp",
		Env:       map[string]string{"X": "1"},
		Variables: map[string]string{},
	}

	sink := NewChanSink(16)
	h, err := ScriptHandler{}.Execute(context.Background(), b, ec, deps, sink)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var stdout string
	for {
		select {
		case out := <-sink.C():
			stdout += out.Stdout
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for output")
		}
		if h.Status().Kind != StatusRunning && stdout != "" {
			goto done
		}
	}
done:
	if stdout != "1-/tmp\n" {
		t.Errorf("stdout = %q, want %q", stdout, "1-/tmp\n")
	}
}

// TestScriptCancellationDuringRun covers cancellation of a running script
// at the handle level: cancelling a `sleep 30` script after it has started
// still reaches a Cancelled terminal status rather than hanging.
func TestScriptCancellationDuringRun(t *testing.T) {
	deps, _ := newTestDeps()
	runbookID := uuid.New()
	b := block.Block{
		ID:   uuid.New(),
		Kind: block.KindScript,
		Props: mustProps(t, block.ScriptProps{
			Interpreter: "bash",
			Code:        "sleep 30",
		}),
	}
	ec := &rcontext.ExecutionContext{RunbookID: runbookID, Cwd: ".", Env: map[string]string{}, Variables: map[string]string{}}

	sink := NewChanSink(16)
	h, err := ScriptHandler{}.Execute(context.Background(), b, ec, deps, sink)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	deps.Handles.Cancel(h.ID)

	status := waitTerminal(t, h)
	if status.Kind != StatusCancelled {
		t.Fatalf("status = %+v, want Cancelled", status)
	}
}
