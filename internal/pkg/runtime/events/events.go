// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package events defines the runtime's event taxonomy and the pluggable
// sinks that consume it. Tags are load-bearing for observability tooling
// downstream and must not be renamed casually.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Kind tags the exhaustive set of event variants the runtime emits.
type Kind string

const (
	KindSerialExecutionStarted   Kind = "SerialExecutionStarted"
	KindSerialExecutionCompleted Kind = "SerialExecutionCompleted"
	KindSerialExecutionCancelled Kind = "SerialExecutionCancelled"
	KindSerialExecutionFailed    Kind = "SerialExecutionFailed"
	KindSerialExecutionPaused    Kind = "SerialExecutionPaused"

	KindPtyOpened Kind = "PtyOpened"
	KindPtyClosed Kind = "PtyClosed"

	KindBlockStarted   Kind = "BlockStarted"
	KindBlockFinished  Kind = "BlockFinished"
	KindBlockFailed    Kind = "BlockFailed"
	KindBlockCancelled Kind = "BlockCancelled"

	KindSshConnected        Kind = "SshConnected"
	KindSshConnectionFailed Kind = "SshConnectionFailed"
	KindSshDisconnected     Kind = "SshDisconnected"

	KindSshCertificateLoadFailed  Kind = "SshCertificateLoadFailed"
	KindSshCertificateExpired     Kind = "SshCertificateExpired"
	KindSshCertificateNotYetValid Kind = "SshCertificateNotYetValid"

	KindRunbookStarted   Kind = "RunbookStarted"
	KindRunbookCompleted Kind = "RunbookCompleted"
	KindRunbookFailed    Kind = "RunbookFailed"
)

// Event is the single concrete type carried through the bus; Data holds the
// variant-specific payload, matching the `{type, data}` wire tagging used
// throughout the block output protocol (see blocks.Output).
type Event struct {
	Kind Kind
	Data interface{}
}

// PtyOpenedData is the payload for KindPtyOpened.
type PtyOpenedData struct {
	PtyID     uuid.UUID
	RunbookID uuid.UUID
	BlockID   uuid.UUID
	CreatedAt int64
}

type PtyClosedData struct {
	PtyID uuid.UUID
}

type BlockLifecycleData struct {
	BlockID   uuid.UUID
	RunbookID uuid.UUID
	Success   bool
	Error     string
}

type SshConnectedData struct {
	Host     string
	Username string
}

type SshConnectionFailedData struct {
	Host  string
	Error string
}

type SshDisconnectedData struct {
	Host string
}

type SshCertificateData struct {
	Host      string
	CertPath  string
	ValidFrom int64
	ValidTo   int64
	Error     string
}

type RunbookLifecycleData struct {
	RunbookID uuid.UUID
	Error     string
}

// Bus is the single method contract every sink implements. Emit is
// best-effort at-least-once from the emitter's perspective: a slow or
// unbuffered subscriber must never block the runtime indefinitely.
type Bus interface {
	Emit(evt Event)
}

// NoOp discards every event; useful when the host has not wired a sink.
type NoOp struct{}

func (NoOp) Emit(Event) {}

// Memory collects events in order, for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// Bridge forwards every event to an arbitrary external sink function. It is
// the adapter a host (UI, RPC layer) plugs its own transport into.
type Bridge struct {
	Sink func(Event)
}

func NewBridge(sink func(Event)) *Bridge {
	return &Bridge{Sink: sink}
}

func (b *Bridge) Emit(evt Event) {
	if b.Sink != nil {
		b.Sink(evt)
	}
}

// Multi fans a single Emit out to several sinks. A sink that panics does
// not block the others' delivery; the panic is recovered and delivery
// continues.
type Multi struct {
	sinks []Bus
}

func NewMulti(sinks ...Bus) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Emit(evt Event) {
	for _, s := range m.sinks {
		func(s Bus) {
			defer func() { _ = recover() }()
			s.Emit(evt)
		}(s)
	}
}
