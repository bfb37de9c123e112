// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"github.com/spf13/cobra"

	"github.com/runbookhq/runcore/internal/pkg/runtime/config"
	"github.com/runbookhq/runcore/internal/pkg/runtime/shellenv"
)

var (
	configPath string
	loginEnv   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "runcore",
		Short: "Runbook execution core CLI harness",
		Long: `runcore drives pkg/runcore.Engine directly from a document file,
without a UI or workspace layer: it exists to exercise and inspect the
execution core end-to-end from a terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !loginEnv {
				return nil
			}
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			env, err := shellenv.Harvest(cmd.Context(), "", cfg.ShellEnvHarvestTimeout)
			if err != nil {
				return err
			}
			shellenv.Apply(env)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a runcore.toml config file")
	root.PersistentFlags().BoolVar(&loginEnv, "login-env", false, "copy the login shell's environment into the process before executing")

	root.AddCommand(newRunCmd())
	root.AddCommand(newWorkflowCmd())
	root.AddCommand(newLogCmd())

	return root
}
