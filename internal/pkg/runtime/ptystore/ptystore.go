// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package ptystore owns every pseudo-terminal instance the runtime opens
// for `terminal` blocks: allocation, the reader pump, input routing, and
// resize/kill.
package ptystore

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/runbookhq/runcore/internal/pkg/rlog"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
)

// inputChannelCapacity bounds each PTY's input channel so a runaway
// producer backs up instead of growing without limit.
const inputChannelCapacity = 32

// Metadata describes a PTY instance for listing and event payloads.
type Metadata struct {
	PtyID     uuid.UUID
	RunbookID uuid.UUID
	BlockID   uuid.UUID
	CreatedAt int64
}

// entry is the store's internal record for one PTY: the master/child pair,
// the input channel its writer pump drains, and the output channel its
// reader pump feeds.
type entry struct {
	meta   Metadata
	master *os.File
	cmd    *exec.Cmd

	input  chan []byte
	output chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// Store owns every open PTY, keyed by a generated id. It is shared across
// many goroutines; state is guarded by a mutex, and the reader pump never
// holds that lock across a blocking read.
type Store struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	bus     events.Bus
}

func New(bus events.Bus) *Store {
	if bus == nil {
		bus = events.NoOp{}
	}
	return &Store{
		entries: make(map[uuid.UUID]*entry),
		bus:     bus,
	}
}

// Open allocates a PTY of the given size, spawns shell (or the OS default
// if empty) in cwd with env on top of the process environment, and starts
// its reader pump. The returned channel streams raw output bytes until the
// PTY closes.
func (s *Store) Open(runbookID, blockID uuid.UUID, rows, cols int, cwd string, env map[string]string, shell string) (uuid.UUID, <-chan []byte, error) {
	ptyID := uuid.New()

	shellPath := shell
	if shellPath == "" {
		shellPath = defaultShell()
	}

	cmd := exec.Command(shellPath, "-i")
	cmd.Dir = cwd
	cmd.Env = buildChildEnv(env)

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("open pty: %w", err)
	}

	e := &entry{
		meta: Metadata{
			PtyID:     ptyID,
			RunbookID: runbookID,
			BlockID:   blockID,
			CreatedAt: time.Now().UnixNano(),
		},
		master: master,
		cmd:    cmd,
		input:  make(chan []byte, inputChannelCapacity),
		output: make(chan []byte, 64),
		closed: make(chan struct{}),
	}

	s.mu.Lock()
	s.entries[ptyID] = e
	s.mu.Unlock()

	go s.writerPump(ptyID, e)
	go s.readerPump(ptyID, e)

	s.bus.Emit(events.Event{
		Kind: events.KindPtyOpened,
		Data: events.PtyOpenedData{
			PtyID:     ptyID,
			RunbookID: runbookID,
			BlockID:   blockID,
			CreatedAt: e.meta.CreatedAt,
		},
	})

	return ptyID, e.output, nil
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func buildChildEnv(env map[string]string) []string {
	out := append([]string{}, os.Environ()...)
	out = append(out, "ATUIN_DESKTOP_PTY=true", "TERM=xterm-256color")
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// writerPump drains the input channel into the master file descriptor. It
// exits when the entry is closed or a write to the master fails. The input
// channel is never closed and the pump never closes the master itself;
// closeEntry closes the master.
func (s *Store) writerPump(ptyID uuid.UUID, e *entry) {
	for {
		select {
		case b := <-e.input:
			if _, err := e.master.Write(b); err != nil {
				rlog.Debugf("pty %s: write error: %v", ptyID, err)
				return
			}
		case <-e.closed:
			return
		}
	}
}

// readerPump offloads blocking reads from the master onto this goroutine,
// forwarding chunks of up to 4 KiB to the output channel, which it closes
// on exit. Each send waits until the consumer receives the chunk or the
// entry is closed; a consumer that stops reading is not detected. A read
// error, EOF included, removes the entry via closeEntry.
func (s *Store) readerPump(ptyID uuid.UUID, e *entry) {
	defer close(e.output)
	buf := make([]byte, 4096)

	for {
		n, err := e.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case e.output <- chunk:
			case <-e.closed:
				return
			}
		}
		if err != nil {
			s.closeEntry(ptyID)
			return
		}
	}
}

// Write enqueues bytes for delivery to the PTY's master. Writes after
// close are silently dropped, never panicking.
func (s *Store) Write(ptyID uuid.UUID, b []byte) {
	s.mu.Lock()
	e, ok := s.entries[ptyID]
	s.mu.Unlock()
	if !ok {
		return
	}

	select {
	case e.input <- b:
	case <-e.closed:
	}
}

// Resize changes the PTY's window size.
func (s *Store) Resize(ptyID uuid.UUID, rows, cols int) error {
	s.mu.Lock()
	e, ok := s.entries[ptyID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("pty %s not found", ptyID)
	}

	if err := pty.Setsize(e.master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("resize pty %s: %w", ptyID, err)
	}
	return nil
}

// Kill terminates the PTY's child process and removes the entry, emitting
// PtyClosed. It is idempotent: killing an unknown or already-closed id is
// a no-op.
func (s *Store) Kill(ptyID uuid.UUID) {
	s.closeEntry(ptyID)
}

func (s *Store) closeEntry(ptyID uuid.UUID) {
	s.mu.Lock()
	e, ok := s.entries[ptyID]
	if ok {
		delete(s.entries, ptyID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	e.closeOnce.Do(func() {
		close(e.closed)
		if e.cmd.Process != nil {
			gracefulKill(e.cmd)
		}
		_ = e.master.Close()
		// e.input is intentionally never closed: writerPump already exits
		// via e.closed, and closing it here would race a concurrent
		// Write's send on the same channel.
	})

	s.bus.Emit(events.Event{Kind: events.KindPtyClosed, Data: events.PtyClosedData{PtyID: ptyID}})
}

// gracefulKill asks the child to exit with SIGHUP (the signal a real
// terminal sends on hangup) via golang.org/x/sys/unix, then escalates to a
// hard kill if it has not exited within a short grace period.
func gracefulKill(cmd *exec.Cmd) {
	pid := cmd.Process.Pid
	_ = unix.Kill(pid, syscall.SIGHUP)
	time.AfterFunc(2*time.Second, func() {
		_ = cmd.Process.Kill()
	})
}

// ListForRunbook enumerates metadata for every PTY belonging to runbookID.
func (s *Store) ListForRunbook(runbookID uuid.UUID) []Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Metadata, 0)
	for _, e := range s.entries {
		if e.meta.RunbookID == runbookID {
			out = append(out, e.meta)
		}
	}
	return out
}
