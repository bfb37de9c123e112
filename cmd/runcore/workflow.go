// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/runbookhq/runcore/internal/pkg/runtime/config"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/pkg/runcore"
)

// doneBus wraps printingBus and closes done once runbookID reaches a
// terminal Runbook lifecycle event, letting the CLI block on workflow
// completion without polling.
type doneBus struct {
	runbookID uuid.UUID
	once      sync.Once
	done      chan struct{}
}

func newDoneBus(runbookID uuid.UUID) *doneBus {
	return &doneBus{runbookID: runbookID, done: make(chan struct{})}
}

func (b *doneBus) Emit(evt events.Event) {
	printingBus{}.Emit(evt)
	if evt.Kind != events.KindRunbookCompleted && evt.Kind != events.KindRunbookFailed {
		return
	}
	if data, ok := evt.Data.(events.RunbookLifecycleData); ok && data.RunbookID == b.runbookID {
		b.once.Do(func() { close(b.done) })
	}
}

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow <document.json>",
		Short: "Run every block in a document serially, in document order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			cfg := config.Default()
			if configPath != "" {
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}

			runbookID := uuid.New()
			bus := newDoneBus(runbookID)
			eng := runcore.New(runcore.Options{
				Bus:                 bus,
				SSHKeepaliveTimeout: int64(cfg.SSHKeepaliveTimeout.Seconds()),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			eng.RunWorkflow(ctx, runbookID, doc)

			select {
			case <-bus.done:
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "interrupted, stopping workflow")
				eng.StopWorkflow(runbookID)
				<-bus.done
			}
			return nil
		},
	}
	return cmd
}
