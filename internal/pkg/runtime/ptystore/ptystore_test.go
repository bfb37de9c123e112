// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package ptystore

import (
	"os/exec"
	"testing"
	"time"

	expect "github.com/Netflix/go-expect"
	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
)

// console adapts the store's raw output channel to a go-expect console so
// tests can assert on PTY output with Expect matchers instead of hand-rolled
// buffer scans.
func console(t *testing.T, output <-chan []byte) *expect.Console {
	t.Helper()
	c, err := expect.NewConsole(expect.WithDefaultTimeout(10 * time.Second))
	if err != nil {
		t.Fatalf("new console: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	go func() {
		for chunk := range output {
			if _, err := c.Tty().Write(chunk); err != nil {
				return
			}
		}
	}()
	return c
}

func TestOpenWriteExpectKill(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no POSIX shell available")
	}

	bus := events.NewMemory()
	s := New(bus)

	runbookID, blockID := uuid.New(), uuid.New()
	ptyID, output, err := s.Open(runbookID, blockID, 24, 80, t.TempDir(), nil, sh)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	c := console(t, output)

	// $((40+2)) keeps the expected string out of the echoed command line,
	// so the match can only come from real command output.
	s.Write(ptyID, []byte("echo run$((40+2))\n"))
	if _, err := c.ExpectString("run42"); err != nil {
		t.Fatalf("expect run42: %v", err)
	}

	// Children inherit the PTY marker environment.
	s.Write(ptyID, []byte("echo marker=$ATUIN_DESKTOP_PTY\n"))
	if _, err := c.ExpectString("marker=true"); err != nil {
		t.Fatalf("expect marker: %v", err)
	}

	if err := s.Resize(ptyID, 40, 120); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	metas := s.ListForRunbook(runbookID)
	if len(metas) != 1 || metas[0].PtyID != ptyID || metas[0].BlockID != blockID {
		t.Fatalf("ListForRunbook = %+v", metas)
	}

	s.Kill(ptyID)

	// The reader pump must exit: the output channel closes.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-output:
			if !ok {
				goto closed
			}
		case <-deadline:
			t.Fatal("output channel never closed after Kill")
		}
	}
closed:

	// Writes after close are dropped without panicking.
	s.Write(ptyID, []byte("echo ignored\n"))

	var opened, closed int
	for _, evt := range bus.Events() {
		switch evt.Kind {
		case events.KindPtyOpened:
			opened++
		case events.KindPtyClosed:
			closed++
		}
	}
	if opened != 1 || closed != 1 {
		t.Fatalf("opened=%d closed=%d, want exactly one of each", opened, closed)
	}
}

func TestResizeUnknownPty(t *testing.T) {
	s := New(nil)
	if err := s.Resize(uuid.New(), 24, 80); err == nil {
		t.Fatal("expected an error resizing an unknown pty")
	}
}

func TestKillUnknownPtyIsNoop(t *testing.T) {
	s := New(events.NewMemory())
	s.Kill(uuid.New())
}
