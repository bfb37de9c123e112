// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package runcore is the execution core's public entry point: Engine wires
// the event bus, PTY store, SSH pool, execution log, context resolver,
// dependency evaluator, block registry, and workflow executor into the
// operation set a host (CLI, RPC layer, desktop shell) drives.
package runcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runbookhq/runcore/internal/pkg/runtime/blocks"
	rcontext "github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/dependency"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/internal/pkg/runtime/localstate"
	"github.com/runbookhq/runcore/internal/pkg/runtime/ptystore"
	"github.com/runbookhq/runcore/internal/pkg/runtime/secret"
	"github.com/runbookhq/runcore/internal/pkg/runtime/sshpool"
	"github.com/runbookhq/runcore/internal/pkg/runtime/workflow"
	"github.com/runbookhq/runcore/pkg/block"
)

// Options configures a new Engine. Every field has a usable zero value: a
// nil Bus becomes events.NoOp, a nil Log becomes an in-memory execlog.Memory,
// and so on, so a host can start with Options{} and fill in collaborators as
// it acquires them.
type Options struct {
	Bus      events.Bus
	Log      execlog.Log
	Secrets  secret.Cache
	Loader   blocks.ContentLoader
	Dialects blocks.SQLDialects
	Registry prometheus.Registerer

	// KV backs `local-var` resolution. Nil means in-process memory; a host
	// with persistent block-local state passes a *localstate.Store here.
	KV KV

	SSHKeepaliveTimeout int64 // seconds; 0 uses sshpool's default
	SSHDialTimeout      int64 // seconds; 0 uses sshpool's default
}

// Engine is the façade a host drives. It owns every pooled resource and
// exposes the runtime's operation set as methods.
type Engine struct {
	bus     events.Bus
	pty     *ptystore.Store
	ssh     *sshpool.Pool
	log     execlog.Log
	secrets secret.Cache
	handles *blocks.HandleRegistry
	kv      KV
	outputs *rcontext.OutputStore
	reg     *blocks.Registry
	wf      *workflow.Executor

	mu        sync.Mutex
	documents map[uuid.UUID]block.Document
}

// New builds an Engine from opts, wiring a MetricsBus in front of the
// caller's Bus whenever a Prometheus registerer is supplied.
func New(opts Options) *Engine {
	outBus := opts.Bus
	if outBus == nil {
		outBus = events.NoOp{}
	}
	if opts.Registry != nil {
		outBus = events.NewMetricsBus(outBus, opts.Registry)
	}

	execLog := opts.Log
	if execLog == nil {
		execLog = execlog.NewMemory()
	}

	secrets := opts.Secrets
	if secrets == nil {
		secrets = secret.NewMemory()
	}

	kv := opts.KV
	if kv == nil {
		kv = newMemoryKV()
	}

	e := &Engine{
		pty:       ptystore.New(outBus),
		ssh:       sshpool.New(outBus, time.Duration(opts.SSHKeepaliveTimeout)*time.Second, time.Duration(opts.SSHDialTimeout)*time.Second),
		log:       execLog,
		secrets:   secrets,
		handles:   blocks.NewHandleRegistry(),
		kv:        kv,
		outputs:   rcontext.NewOutputStore(),
		reg:       blocks.NewDefaultRegistry(opts.Dialects, opts.Loader),
		documents: make(map[uuid.UUID]block.Document),
	}

	// wf emits its own SerialExecution/Runbook lifecycle onto outBus. It
	// must also receive every block handler's BlockFinished so it can
	// advance; deps.Bus (e.bus) therefore fans out to both outBus and wf,
	// rather than wf being just another outBus subscriber.
	e.wf = workflow.New(outBus, runnerFunc{e})
	e.bus = events.NewMulti(outBus, e.wf)
	return e
}

// runnerFunc adapts Engine to workflow.Runner without exposing RunBlock and
// StopBlock on Engine's own method set, where they would collide with
// ExecuteBlock's richer signature.
type runnerFunc struct{ e *Engine }

func (r runnerFunc) RunBlock(ctx context.Context, runbookID, blockID uuid.UUID) {
	r.e.mu.Lock()
	doc, ok := r.e.documents[runbookID]
	r.e.mu.Unlock()
	if !ok {
		return
	}
	if _, _, err := r.e.ExecuteBlock(ctx, runbookID, doc, blockID); err != nil {
		r.e.bus.Emit(events.Event{
			Kind: events.KindBlockFailed,
			Data: events.BlockLifecycleData{BlockID: blockID, RunbookID: runbookID, Error: err.Error()},
		})
	}
}

func (r runnerFunc) StopBlock(blockID uuid.UUID) {
	if h, ok := r.e.handles.Get(blockID); ok {
		h.Cancel.Cancel()
	}
}

// ExecuteBlock resolves blockID's context within doc and dispatches it
// through the registry. The caller owns the returned handle for
// cancellation and the sink channel for streamed output. The handle is
// removed from the engine's handle registry once it reaches a terminal
// status; the engine keeps no record of the sink.
func (e *Engine) ExecuteBlock(ctx context.Context, runbookID uuid.UUID, doc block.Document, blockID uuid.UUID) (*blocks.ExecutionHandle, <-chan blocks.Output, error) {
	b, _, ok := doc.Find(blockID)
	if !ok {
		return nil, nil, fmt.Errorf("block %s not found in document", blockID)
	}

	e.mu.Lock()
	e.documents[runbookID] = doc
	e.mu.Unlock()

	ec, err := rcontext.Resolve(runbookID, blockID, doc, e.kv)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve context: %w", err)
	}

	if b.Dependency != nil {
		ok, err := dependency.CanRun(ctx, *b.Dependency, blockID, e.log, nowNs)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate dependency: %w", err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("block %s: dependency not satisfied", blockID)
		}
	}

	sink := blocks.NewChanSink(64)
	deps := &blocks.Deps{
		Bus:     e.bus,
		PTY:     e.pty,
		SSH:     e.ssh,
		Log:     e.log,
		Outputs: e.outputs,
		Secrets: e.secrets,
		Handles: e.handles,
	}

	handle, err := e.reg.Dispatch(ctx, b, ec, deps, sink)
	if err != nil {
		return nil, nil, err
	}
	return handle, sink.C(), nil
}

// CancelExecution requests cancellation of a previously started execution.
// Idempotent; an unknown id is not an error.
func (e *Engine) CancelExecution(handleID uuid.UUID) {
	e.handles.Cancel(handleID)
}

// RunWorkflow starts a serial run over every block in doc, in document
// order.
func (e *Engine) RunWorkflow(ctx context.Context, runbookID uuid.UUID, doc block.Document) {
	e.mu.Lock()
	e.documents[runbookID] = doc
	e.mu.Unlock()

	ids := make([]uuid.UUID, len(doc))
	for i, b := range doc {
		ids[i] = b.ID
	}
	e.wf.RunWorkflow(ctx, runbookID, runbookID, ids)
}

// StopWorkflow cancels a running workflow. Idempotent.
func (e *Engine) StopWorkflow(runbookID uuid.UUID) {
	e.wf.StopWorkflow(runbookID)
}

// CanRun evaluates blockID's dependency predicate without executing it.
func (e *Engine) CanRun(ctx context.Context, blockID uuid.UUID, spec block.DependencySpec) (bool, error) {
	return dependency.CanRun(ctx, spec, blockID, e.log, nowNs)
}

// LogExecution appends an entry to the execution log and broadcasts the
// corresponding BlockFinished, so a host logging an externally executed
// block still advances any workflow waiting on it.
func (e *Engine) LogExecution(ctx context.Context, runbookID uuid.UUID, entry execlog.Entry) error {
	if err := e.log.LogExecution(ctx, entry); err != nil {
		return err
	}
	e.bus.Emit(events.Event{
		Kind: events.KindBlockFinished,
		Data: events.BlockLifecycleData{BlockID: entry.BlockID, RunbookID: runbookID, Success: true},
	})
	return nil
}

// LastExecutionTime reports blockID's most recent logged completion, if
// any.
func (e *Engine) LastExecutionTime(ctx context.Context, blockID uuid.UUID) (int64, bool, error) {
	return e.log.LastExecutionTime(ctx, blockID)
}

// OpenPTY allocates a PTY for an interactive terminal block.
func (e *Engine) OpenPTY(runbookID, blockID uuid.UUID, rows, cols int, cwd string, env map[string]string, shell string) (uuid.UUID, <-chan []byte, error) {
	return e.pty.Open(runbookID, blockID, rows, cols, cwd, env, shell)
}

// WritePTY sends bytes to ptyID's input.
func (e *Engine) WritePTY(ptyID uuid.UUID, b []byte) {
	e.pty.Write(ptyID, b)
}

// ResizePTY changes ptyID's window size.
func (e *Engine) ResizePTY(ptyID uuid.UUID, rows, cols int) error {
	return e.pty.Resize(ptyID, rows, cols)
}

// KillPTY terminates and removes ptyID.
func (e *Engine) KillPTY(ptyID uuid.UUID) {
	e.pty.Kill(ptyID)
}

// ListPTYs enumerates PTYs belonging to runbookID.
func (e *Engine) ListPTYs(runbookID uuid.UUID) []ptystore.Metadata {
	return e.pty.ListForRunbook(runbookID)
}

// ConnectSSH dials (or reuses a pooled) session for blockUser@host.
func (e *Engine) ConnectSSH(ctx context.Context, blockUser, callerUser, host string, hints sshpool.Hints) (*sshpool.Session, []sshpool.Warning, error) {
	sess, warnings, err := e.ssh.Connect(ctx, blockUser, callerUser, host, nil, hints, nil)
	for _, w := range warnings {
		e.bus.Emit(events.Event{Kind: w.Kind, Data: events.SshCertificateData{Host: w.Host, CertPath: w.Path}})
	}
	return sess, warnings, err
}

// DisconnectSSH evicts the pooled session for user@host.
func (e *Engine) DisconnectSSH(userName, host string) {
	e.ssh.Disconnect(userName, host)
}

// SetLocalVar writes a value into the per-block KV provider backing
// `local-var` blocks; hosts call this when a user edits a local-var
// block's bound value outside of execution.
// The returned bool reports whether the stored value changed.
func (e *Engine) SetLocalVar(ctx context.Context, runbookID, blockID uuid.UUID, name, value string) (bool, error) {
	return e.kv.Set(ctx, runbookID, blockID, name, value)
}

// OutputVariable reads a value a previously executed block captured under
// its output variable name, within runbookID.
func (e *Engine) OutputVariable(runbookID uuid.UUID, name string) (string, bool) {
	return e.outputs.Get(runbookID, name)
}

// SubscribeEvents returns a Bus the caller can fold into its own fan-out;
// Engine itself never calls this. It is the Bus the Engine emits on: a
// fan-out to the events.Bus this Engine was constructed with (wrapped for
// metrics when configured) and to the Engine's workflow executor.
func (e *Engine) SubscribeEvents() events.Bus {
	return e.bus
}

// KV is the read/write contract backing `local-var` blocks: the resolver
// reads through rcontext.KVProvider, and SetLocalVar writes through Set.
// localstate.Store satisfies it for hosts with persistent block-local
// state; memoryKV is the in-process default.
type KV interface {
	rcontext.KVProvider
	Set(ctx context.Context, runbookID, blockID uuid.UUID, name, value string) (changed bool, err error)
}

var _ KV = (*localstate.Store)(nil)

type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string]string)}
}

func (k *memoryKV) Get(runbookID, blockID uuid.UUID, name string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.values[kvKey(runbookID, blockID, name)]
	return v, ok
}

func (k *memoryKV) Set(_ context.Context, runbookID, blockID uuid.UUID, name, value string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key := kvKey(runbookID, blockID, name)
	if existing, ok := k.values[key]; ok && existing == value {
		return false, nil
	}
	k.values[key] = value
	return true, nil
}

func kvKey(runbookID, blockID uuid.UUID, name string) string {
	return runbookID.String() + "/" + blockID.String() + "/" + name
}

// nowNs is the dependency evaluator's default Clock.
func nowNs() int64 {
	return time.Now().UnixNano()
}
