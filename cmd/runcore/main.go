// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Command runcore is a CLI harness over pkg/runcore.Engine: it runs a
// single block or a whole document serially from a terminal, without any
// UI or workspace layer on top.
package main

import (
	"os"

	"github.com/runbookhq/runcore/internal/pkg/rlog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		rlog.Errorf("%v", err)
		os.Exit(1)
	}
}
