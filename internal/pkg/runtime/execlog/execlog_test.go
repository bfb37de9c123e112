// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package execlog

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryLastExecutionTime(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	blockID := uuid.New()

	if _, ok, err := m.LastExecutionTime(ctx, blockID); err != nil || ok {
		t.Fatalf("empty log: ok=%v err=%v, want no entry", ok, err)
	}

	entries := []Entry{
		{BlockID: blockID, StartNs: 100, EndNs: 200, Output: "a"},
		{BlockID: uuid.New(), StartNs: 150, EndNs: 900, Output: "other"},
		{BlockID: blockID, StartNs: 300, EndNs: 400, Output: "b"},
	}
	for _, e := range entries {
		if err := m.LogExecution(ctx, e); err != nil {
			t.Fatalf("LogExecution: %v", err)
		}
	}

	last, ok, err := m.LastExecutionTime(ctx, blockID)
	if err != nil || !ok || last != 400 {
		t.Fatalf("last = %d ok=%v err=%v, want 400", last, ok, err)
	}
}

// TestMemoryMonotonicity: last_execution_time never decreases as entries
// are appended.
func TestMemoryMonotonicity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	blockID := uuid.New()

	var prev int64
	for i := int64(1); i <= 5; i++ {
		if err := m.LogExecution(ctx, Entry{BlockID: blockID, StartNs: i * 10, EndNs: i * 100}); err != nil {
			t.Fatal(err)
		}
		last, ok, err := m.LastExecutionTime(ctx, blockID)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		if last < prev {
			t.Fatalf("last execution time decreased: %d -> %d", prev, last)
		}
		prev = last
	}
}
