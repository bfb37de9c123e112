// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runcore.toml")
	content := "pty_input_channel_capacity = 64\nssh_keepalive_timeout = \"10s\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PTYInputChannelCapacity != 64 {
		t.Errorf("PTYInputChannelCapacity = %d, want 64", cfg.PTYInputChannelCapacity)
	}
	if cfg.SSHKeepaliveTimeout != 10*time.Second {
		t.Errorf("SSHKeepaliveTimeout = %v, want 10s", cfg.SSHKeepaliveTimeout)
	}
	// Unset fields keep the default.
	if cfg.ShellEnvHarvestTimeout != Default().ShellEnvHarvestTimeout {
		t.Errorf("ShellEnvHarvestTimeout = %v, want default", cfg.ShellEnvHarvestTimeout)
	}
}

