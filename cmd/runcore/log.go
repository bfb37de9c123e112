// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the execution log used by dependency predicates",
	}
	cmd.AddCommand(newLogLastCmd())
	return cmd
}

func newLogLastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "last <block-id>",
		Short: "Print the most recent logged execution time of a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blockID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse block id: %w", err)
			}

			eng, _, err := newEngine()
			if err != nil {
				return err
			}

			ns, ok, err := eng.LastExecutionTime(cmd.Context(), blockID)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded execution")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", ns)
			return nil
		},
	}
}
