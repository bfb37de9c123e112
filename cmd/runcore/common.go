// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/runbookhq/runcore/internal/pkg/runtime/config"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/pkg/block"
	"github.com/runbookhq/runcore/pkg/runcore"
)

// loadDocument reads a JSON array of blocks from path, the CLI's stand-in
// for a full runbook file format.
func loadDocument(path string) (block.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var doc block.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// printingBus renders events to stdout as single JSON lines.
type printingBus struct{}

func (printingBus) Emit(evt events.Event) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		fmt.Fprintf(os.Stdout, "%s\n", evt.Kind)
		return
	}
	fmt.Fprintf(os.Stdout, "%s %s\n", evt.Kind, data)
}

// newEngine loads config from configPath (if set) and wires an Engine with
// a printing event bus. The CLI never registers a concrete SQL driver or
// persistent execution log: it runs entirely in-memory.
func newEngine() (*runcore.Engine, config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, cfg, err
		}
		cfg = loaded
	}

	eng := runcore.New(runcore.Options{
		Bus:                 printingBus{},
		SSHKeepaliveTimeout: int64(cfg.SSHKeepaliveTimeout.Seconds()),
	})
	return eng, cfg, nil
}
