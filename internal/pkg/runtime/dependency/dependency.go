// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package dependency evaluates "can this block run now?" predicates
// against the execution log.
package dependency

import (
	"context"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/pkg/block"
)

// Clock supplies the current time in nanoseconds since epoch; injected so
// tests can exercise the `within > 0` window deterministically.
type Clock func() int64

// CanRun decides whether blockID may run given spec, consulting log for
// parent/self execution history. Only the first entry of spec.Parents is
// evaluated; additional parents are reserved until multi-parent semantics
// (all? any?) are settled.
func CanRun(ctx context.Context, spec block.DependencySpec, blockID uuid.UUID, log execlog.Log, now Clock) (bool, error) {
	if len(spec.Parents) == 0 {
		return true, nil
	}

	parentID := spec.Parents[0]

	switch {
	case spec.Within == -1:
		_, ok, err := log.LastExecutionTime(ctx, parentID)
		if err != nil {
			return false, err
		}
		return ok, nil

	case spec.Within == 0:
		parentLast, parentOK, err := log.LastExecutionTime(ctx, parentID)
		if err != nil {
			return false, err
		}
		if !parentOK {
			return false, nil
		}

		blockLast, blockOK, err := log.LastExecutionTime(ctx, blockID)
		if err != nil {
			return false, err
		}
		if !blockOK {
			return true, nil
		}

		return blockLast < parentLast, nil

	default: // spec.Within > 0
		parentLast, parentOK, err := log.LastExecutionTime(ctx, parentID)
		if err != nil {
			return false, err
		}
		if !parentOK {
			return false, nil
		}

		window := spec.Within * 1_000_000_000
		elapsed := now() - parentLast
		return elapsed <= window, nil
	}
}
