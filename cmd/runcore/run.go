// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/runbookhq/runcore/internal/pkg/runtime/blocks"
	"github.com/runbookhq/runcore/internal/pkg/runtime/shellenv"
)

func newRunCmd() *cobra.Command {
	var runbookIDFlag string

	cmd := &cobra.Command{
		Use:   "run <document.json> <block-id>",
		Short: "Execute a single block and stream its output to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			blockID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("parse block id: %w", err)
			}

			runbookID := blockID
			if runbookIDFlag != "" {
				runbookID, err = uuid.Parse(runbookIDFlag)
				if err != nil {
					return fmt.Errorf("parse --runbook: %w", err)
				}
			}

			eng, _, err := newEngine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			handle, sink, err := eng.ExecuteBlock(ctx, runbookID, doc, blockID)
			if err != nil {
				return fmt.Errorf("execute block: %w", err)
			}

			for out := range sink {
				printBlockOutput(cmd, out)
				if out.Lifecycle != nil && out.Lifecycle.Type != "Started" {
					break
				}
			}

			status := handle.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "final status: %s\n", status.Kind)
			if status.Kind == "Failed" {
				return fmt.Errorf("block failed: %s", status.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runbookIDFlag, "runbook", "", "runbook id to resolve context under (defaults to the block id)")
	return cmd
}

// printBlockOutput renders whichever subfields a streamed Output carries.
func printBlockOutput(cmd *cobra.Command, out blocks.Output) {
	w := cmd.OutOrStdout()
	if out.Stdout != "" {
		fmt.Fprint(w, out.Stdout)
	}
	if out.Stderr != "" {
		fmt.Fprint(os.Stderr, out.Stderr)
	}
	// Raw PTY bytes carry escape sequences only a real terminal should
	// interpret; under NO_TTY/CI or a pipe they are dropped.
	if len(out.Binary) > 0 && shellenv.Interactive() {
		os.Stdout.Write(out.Binary)
	}
	if out.Object != nil {
		fmt.Fprintf(w, "%s\n", out.Object)
	}
	if out.Lifecycle != nil {
		fmt.Fprintf(w, "[%s]", out.Lifecycle.Type)
		if out.Lifecycle.Data != nil {
			fmt.Fprintf(w, " %s", out.Lifecycle.Data)
		}
		fmt.Fprintln(w)
	}
}
