// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package blocks implements the per-kind block handlers and the registry
// that dispatches a block to its handler. Each handler is a leaf module
// owning only its own state; polymorphism is a tagged variant (block.Kind)
// with per-variant dispatch, not inheritance.
package blocks

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/internal/pkg/runtime/ptystore"
	"github.com/runbookhq/runcore/internal/pkg/runtime/secret"
	"github.com/runbookhq/runcore/internal/pkg/runtime/sshpool"
)

// CancelToken is a one-shot cancellation signal shared between the caller
// requesting cancellation and the handler task observing it. The sender
// half (Cancel) is safe to call more than once; sync.Once collapses
// repeated calls into one close. Every receiver holds an independent read
// of Done().
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
}

func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel fires the token. Safe to call multiple times or concurrently.
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Done returns a channel closed once Cancel has fired.
func (t *CancelToken) Done() <-chan struct{} {
	return t.ch
}

// StatusKind enumerates an ExecutionHandle's monotonic status progression:
// Running is the only non-terminal state.
type StatusKind string

const (
	StatusRunning   StatusKind = "Running"
	StatusSuccess   StatusKind = "Success"
	StatusFailed    StatusKind = "Failed"
	StatusCancelled StatusKind = "Cancelled"
)

// Status is the current state of an ExecutionHandle.
type Status struct {
	Kind    StatusKind
	Output  string // populated on StatusSuccess
	Message string // populated on StatusFailed
}

var terminalRank = map[StatusKind]int{
	StatusRunning:   0,
	StatusSuccess:   1,
	StatusFailed:    1,
	StatusCancelled: 1,
}

// ExecutionHandle is returned when a handler starts asynchronous work.
// Status only ever moves from Running to one terminal state; it never
// reverts.
type ExecutionHandle struct {
	ID             uuid.UUID
	BlockID        uuid.UUID
	RunbookID      uuid.UUID
	OutputVariable string
	Cancel         *CancelToken

	mu     sync.Mutex
	status Status
}

// NewExecutionHandle returns a handle in the Running state.
func NewExecutionHandle(blockID, runbookID uuid.UUID, outputVariable string) *ExecutionHandle {
	return &ExecutionHandle{
		ID:             uuid.New(),
		BlockID:        blockID,
		RunbookID:      runbookID,
		OutputVariable: outputVariable,
		Cancel:         NewCancelToken(),
		status:         Status{Kind: StatusRunning},
	}
}

// Status returns the handle's current status.
func (h *ExecutionHandle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Finish transitions the handle to a terminal status. A second call is a
// no-op: status is monotonic and never reverts to Running.
func (h *ExecutionHandle) Finish(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if terminalRank[h.status.Kind] > 0 {
		return
	}
	h.status = s
}

// HandleRegistry is the process-wide id -> handle map an external caller
// consults to look up and cancel an execution by id.
type HandleRegistry struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*ExecutionHandle
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{handles: make(map[uuid.UUID]*ExecutionHandle)}
}

func (r *HandleRegistry) Put(h *ExecutionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
}

func (r *HandleRegistry) Get(id uuid.UUID) (*ExecutionHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Cancel looks up id and fires its cancel token. Idempotent; a missing id
// is not an error.
func (r *HandleRegistry) Cancel(id uuid.UUID) {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if ok {
		h.Cancel.Cancel()
	}
}

// Remove drops id from the registry, called once its terminal lifecycle
// has been emitted.
func (r *HandleRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Lifecycle is the wire payload of Output.Lifecycle: exactly one of
// Started/Finished/Cancelled/Error is implied by Type.
type Lifecycle struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type LifecycleFinished struct {
	ExitCode int  `json:"exitCode"`
	Success  bool `json:"success"`
}

type LifecycleError struct {
	Message string `json:"message"`
}

func startedLifecycle() *Lifecycle {
	return &Lifecycle{Type: "Started"}
}

func finishedLifecycle(exitCode int, success bool) *Lifecycle {
	data, _ := json.Marshal(LifecycleFinished{ExitCode: exitCode, Success: success})
	return &Lifecycle{Type: "Finished", Data: data}
}

func cancelledLifecycle() *Lifecycle {
	return &Lifecycle{Type: "Cancelled"}
}

func errorLifecycle(message string) *Lifecycle {
	data, _ := json.Marshal(LifecycleError{Message: message})
	return &Lifecycle{Type: "Error", Data: data}
}

// Output is the streamed record a handler emits on its Sink: at least one
// of its subfields is populated per message.
type Output struct {
	Stdout    string          `json:"stdout,omitempty"`
	Stderr    string          `json:"stderr,omitempty"`
	Binary    []byte          `json:"binary,omitempty"`
	Object    json.RawMessage `json:"object,omitempty"`
	Lifecycle *Lifecycle      `json:"lifecycle,omitempty"`
}

// Sink is where a handler streams Output records.
type Sink interface {
	Send(Output)
}

// ChanSink adapts a buffered channel to the Sink interface; a full channel
// drops the oldest send rather than blocking the handler indefinitely,
// matching the event bus's best-effort delivery contract.
type ChanSink struct {
	ch chan Output
}

func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan Output, buffer)}
}

func (s *ChanSink) Send(o Output) {
	select {
	case s.ch <- o:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- o:
		default:
		}
	}
}

func (s *ChanSink) C() <-chan Output {
	return s.ch
}

func (s *ChanSink) Close() {
	close(s.ch)
}

// Deps bundles the shared, pooled collaborators every handler may need.
// Now is injectable so tests can exercise time-dependent behavior
// deterministically.
type Deps struct {
	Bus     events.Bus
	PTY     *ptystore.Store
	SSH     *sshpool.Pool
	Log     execlog.Log
	Outputs *context.OutputStore
	Secrets secret.Cache
	Handles *HandleRegistry
	Now     func() int64
}

func nowNs(d *Deps) int64 {
	if d != nil && d.Now != nil {
		return d.Now()
	}
	return time.Now().UnixNano()
}

// emitBlock emits a Block lifecycle event of kind plus, for KindBlockFailed
// and KindBlockCancelled, the generic KindBlockFinished the workflow
// executor advances on.
func emitBlock(bus events.Bus, kind events.Kind, blockID, runbookID uuid.UUID, success bool, errMsg string) {
	if bus == nil {
		bus = events.NoOp{}
	}
	data := events.BlockLifecycleData{BlockID: blockID, RunbookID: runbookID, Success: success, Error: errMsg}
	bus.Emit(events.Event{Kind: kind, Data: data})
	if kind == events.KindBlockFailed || kind == events.KindBlockCancelled {
		bus.Emit(events.Event{Kind: events.KindBlockFinished, Data: data})
	}
}

