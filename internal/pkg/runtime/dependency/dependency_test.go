// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package dependency

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/pkg/block"
)

func TestCanRunNoParents(t *testing.T) {
	log := execlog.NewMemory()
	ok, err := CanRun(context.Background(), block.DependencySpec{}, uuid.New(), log, func() int64 { return 0 })
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want true/nil", ok, err)
	}
}

func TestCanRunWithinEverRun(t *testing.T) {
	log := execlog.NewMemory()
	parent := uuid.New()
	target := uuid.New()

	spec := block.DependencySpec{Parents: []uuid.UUID{parent}, Within: -1}
	ok, err := CanRun(context.Background(), spec, target, log, func() int64 { return 0 })
	if err != nil || ok {
		t.Fatalf("parent never ran: ok=%v err=%v, want false", ok, err)
	}

	_ = log.LogExecution(context.Background(), execlog.Entry{BlockID: parent, StartNs: 1, EndNs: 2})
	ok, err = CanRun(context.Background(), spec, target, log, func() int64 { return 0 })
	if err != nil || !ok {
		t.Fatalf("parent ran once: ok=%v err=%v, want true", ok, err)
	}
}

// TestCanRunWithinZero: within = 0 with neither parent nor block ever run
// is false; parent ran once, block never, is true.
func TestCanRunWithinZero(t *testing.T) {
	log := execlog.NewMemory()
	parent := uuid.New()
	target := uuid.New()
	spec := block.DependencySpec{Parents: []uuid.UUID{parent}, Within: 0}

	ok, err := CanRun(context.Background(), spec, target, log, func() int64 { return 0 })
	if err != nil || ok {
		t.Fatalf("neither ran: ok=%v err=%v, want false", ok, err)
	}

	_ = log.LogExecution(context.Background(), execlog.Entry{BlockID: parent, StartNs: 1, EndNs: 10})
	ok, err = CanRun(context.Background(), spec, target, log, func() int64 { return 0 })
	if err != nil || !ok {
		t.Fatalf("parent ran, target never: ok=%v err=%v, want true", ok, err)
	}

	_ = log.LogExecution(context.Background(), execlog.Entry{BlockID: target, StartNs: 20, EndNs: 30})
	ok, err = CanRun(context.Background(), spec, target, log, func() int64 { return 0 })
	if err != nil || ok {
		t.Fatalf("target ran after parent: ok=%v err=%v, want false", ok, err)
	}

	_ = log.LogExecution(context.Background(), execlog.Entry{BlockID: parent, StartNs: 40, EndNs: 50})
	ok, err = CanRun(context.Background(), spec, target, log, func() int64 { return 0 })
	if err != nil || !ok {
		t.Fatalf("parent ran again after target: ok=%v err=%v, want true", ok, err)
	}
}

// TestCanRunWithinWindow checks the elapsed-seconds window on both sides
// of the boundary.
func TestCanRunWithinWindow(t *testing.T) {
	log := execlog.NewMemory()
	parent := uuid.New()
	target := uuid.New()
	spec := block.DependencySpec{Parents: []uuid.UUID{parent}, Within: 5}

	const nowNs = int64(100) * 1_000_000_000
	_ = log.LogExecution(context.Background(), execlog.Entry{BlockID: parent, StartNs: 0, EndNs: nowNs - 3_000_000_000})

	ok, err := CanRun(context.Background(), spec, target, log, func() int64 { return nowNs })
	if err != nil || !ok {
		t.Fatalf("parent ran 3s ago, within 5s: ok=%v err=%v, want true", ok, err)
	}

	ok, err = CanRun(context.Background(), spec, target, log, func() int64 { return nowNs + 7_000_000_000 })
	if err != nil || ok {
		t.Fatalf("parent ran 10s before check, within 5s: ok=%v err=%v, want false", ok, err)
	}
}
