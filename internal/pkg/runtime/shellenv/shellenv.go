// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package shellenv copies a login shell's environment into the current
// process at startup, for hosts launched outside a shell (desktop
// launchers) whose PATH and friends would otherwise be the bare system
// defaults. The harvest runs under a hard timeout: a login shell that
// hangs in its rc files must not hang the host.
package shellenv

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/runbookhq/runcore/internal/pkg/rlog"
)

// DefaultTimeout bounds the harvest subprocess.
const DefaultTimeout = 2 * time.Second

// Harvest spawns shell as an interactive login shell, runs `env`, and
// parses the result into a map. shell defaults to $SHELL, then /bin/sh.
// Values containing newlines are truncated at the first newline; a login
// environment with such values is not representable through `env` output.
func Harvest(ctx context.Context, shell string, timeout time.Duration) (map[string]string, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, shell, "-ilc", "env")
	// Killing the shell does not close a stdout pipe that one of its
	// children still holds; WaitDelay bounds how long Output waits for it.
	cmd.WaitDelay = 100 * time.Millisecond
	out, err := cmd.Output()
	if err != nil {
		return nil, rlog.Wrap(err, "harvest shell environment")
	}

	return parseEnv(string(out)), nil
}

func parseEnv(out string) map[string]string {
	env := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

// Apply sets every harvested variable on the current process, skipping any
// already present: the process's own environment wins over the login
// shell's.
func Apply(env map[string]string) {
	for k, v := range env {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			rlog.Debugf("shellenv: set %s: %v", k, err)
		}
	}
}

// Interactive reports whether the CLI runner should behave interactively:
// false when NO_TTY or CI is set, or when stdout is not a terminal.
func Interactive() bool {
	if os.Getenv("NO_TTY") != "" || os.Getenv("CI") != "" {
		return false
	}
	return isTerminal(int(os.Stdout.Fd()))
}

func isTerminal(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	return err == nil
}
