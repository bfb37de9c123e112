// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config holds the runtime's process-wide tunables, loaded from
// an optional TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the full set of tunables the runtime core reads at startup.
// Every field has a zero-value-safe default applied by Default.
type Config struct {
	// PTYInputChannelCapacity bounds a PTY's input channel for hosts that
	// build their own channel plumbing.
	PTYInputChannelCapacity int `toml:"pty_input_channel_capacity"`

	// ShellEnvHarvestTimeout bounds how long the host may spend copying a
	// login shell's environment into the process on startup.
	ShellEnvHarvestTimeout time.Duration `toml:"shell_env_harvest_timeout"`

	// ExecLogRetention is how long exec_log rows are guaranteed retained
	// before a host-driven prune may remove them. Zero means unbounded.
	ExecLogRetention time.Duration `toml:"exec_log_retention"`

	// SSHKeepaliveTimeout bounds a single liveness probe against a pooled
	// session before it is evicted and redialed.
	SSHKeepaliveTimeout time.Duration `toml:"ssh_keepalive_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		PTYInputChannelCapacity: 32,
		ShellEnvHarvestTimeout:  2 * time.Second,
		ExecLogRetention:        0,
		SSHKeepaliveTimeout:     5 * time.Second,
	}
}

// Load reads and parses a TOML config file at path, overlaying any set
// fields onto Default(). A missing file is not an error: Default() is
// returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	// Duration fields may be written as strings such as "10s"; convert
	// them to nanosecond integers before decoding into Config.
	var raw map[string]interface{}
	if err := toml.Unmarshal(b, &raw); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for _, key := range []string{"shell_env_harvest_timeout", "exec_log_retention", "ssh_keepalive_timeout"} {
		if s, ok := raw[key].(string); ok {
			d, err := time.ParseDuration(s)
			if err != nil {
				return cfg, fmt.Errorf("config: parse %s: %s: %w", path, key, err)
			}
			raw[key] = int64(d)
		}
	}
	if b, err = toml.Marshal(raw); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}
