// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package context implements the execution context resolver: it walks a
// document up to a target block, accumulating cwd/env/vars/ssh target
// from every context-producing block encountered along the way.
//
// Resolution never reads runtime state beyond the document and the
// declared KV provider, so it is deterministic given those inputs.
package context

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/internal/pkg/runtime/template"
	"github.com/runbookhq/runcore/pkg/block"
)

// KVProvider resolves a block-local key/value, the backing store for
// `local-var` blocks. This resolver treats a missing key as the empty
// string.
type KVProvider interface {
	Get(runbookID, blockID uuid.UUID, name string) (string, bool)
}

// SSHHints carries identity/certificate overrides attached to an
// ssh-connect block, consumed by the SSH pool when it dials ssh_host.
type SSHHints struct {
	IdentityKey string
	Certificate string
}

// ExecutionContext is produced fresh per block execution by Resolve and
// owned by one handler invocation. Shared handles (bus, pools, log) are
// passed alongside by the caller and outlive the invocation.
type ExecutionContext struct {
	RunbookID uuid.UUID
	Cwd       string
	Env       map[string]string
	Variables map[string]string
	SSHHost   string
	SSHHints  SSHHints
	Document  block.Document
}

var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Resolve walks doc up to (not including) targetID, applying every
// context-producing block's effect in order, then returns the resulting
// ExecutionContext.
func Resolve(runbookID, targetID uuid.UUID, doc block.Document, kv KVProvider) (*ExecutionContext, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	ctx := &ExecutionContext{
		RunbookID: runbookID,
		Cwd:       cwd,
		Env:       make(map[string]string),
		Variables: make(map[string]string),
		Document:  doc,
	}

	for _, b := range doc {
		if b.ID == targetID {
			break
		}

		if err := apply(ctx, b, kv); err != nil {
			return nil, fmt.Errorf("resolving context for block %s: %w", b.ID, err)
		}
	}

	return ctx, nil
}

func apply(ctx *ExecutionContext, b block.Block, kv KVProvider) error {
	env := renderEnv(ctx)

	switch b.Kind {
	case block.KindDirectory:
		var props block.DirectoryProps
		if err := b.Decode(&props); err != nil {
			return err
		}
		path, err := template.Render(props.Path, env)
		if err != nil {
			return err
		}
		ctx.Cwd = resolvePath(ctx.Cwd, path)

	case block.KindEnviron:
		var props block.EnvironmentProps
		if err := b.Decode(&props); err != nil {
			return err
		}
		name, err := template.Render(props.Name, env)
		if err != nil {
			return err
		}
		if err := validateName(name); err != nil {
			return err
		}
		value, err := template.Render(props.Value, env)
		if err != nil {
			return err
		}
		ctx.Env[name] = value

	case block.KindVar:
		var props block.VarProps
		if err := b.Decode(&props); err != nil {
			return err
		}
		name, err := template.Render(props.Name, env)
		if err != nil {
			return err
		}
		if err := validateName(name); err != nil {
			return err
		}
		value, err := template.Render(props.Value, env)
		if err != nil {
			return err
		}
		ctx.Variables[name] = value

	case block.KindLocalVar:
		var props block.LocalVarProps
		if err := b.Decode(&props); err != nil {
			return err
		}
		name, err := template.Render(props.Name, env)
		if err != nil {
			return err
		}
		if err := validateName(name); err != nil {
			return err
		}
		if kv == nil {
			ctx.Variables[name] = ""
			return nil
		}
		value, ok := kv.Get(ctx.RunbookID, b.ID, name)
		if !ok {
			value = ""
		}
		ctx.Variables[name] = value

	case block.KindHost:
		var props block.HostProps
		if err := b.Decode(&props); err != nil {
			return err
		}
		host, err := template.Render(props.Host, env)
		if err != nil {
			return err
		}
		ctx.SSHHost = host

	case block.KindSSHConnect:
		var props block.SSHConnectProps
		if err := b.Decode(&props); err != nil {
			return err
		}
		userHost, err := template.Render(props.UserHost, env)
		if err != nil {
			return err
		}
		if _, _, err := SplitUserHost(userHost); err != nil {
			return err
		}
		ctx.SSHHost = userHost
		ctx.SSHHints = SSHHints{
			IdentityKey: props.IdentityKey,
			Certificate: props.Certificate,
		}

	case block.KindEditor:
		var props block.EditorProps
		if err := b.Decode(&props); err != nil {
			return err
		}
		if props.VariableName == "" {
			return nil
		}
		name, err := template.Render(props.VariableName, env)
		if err != nil {
			return err
		}
		if err := validateName(name); err != nil {
			return err
		}
		ctx.Variables[name] = props.Text
	}

	return nil
}

func renderEnv(ctx *ExecutionContext) template.Env {
	return template.Merge(ctx.Env, ctx.Variables)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty variable name")
	}
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid variable name %q: must match [A-Za-z0-9_]+", name)
	}
	return nil
}

func resolvePath(cwd, path string) string {
	path = expandTilde(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(cwd, path))
}

func expandTilde(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	if strings.HasPrefix(path, "~") {
		// ~otheruser/rest
		rest := path[1:]
		sep := strings.IndexRune(rest, '/')
		name := rest
		tail := ""
		if sep >= 0 {
			name = rest[:sep]
			tail = rest[sep:]
		}
		if u, err := user.Lookup(name); err == nil {
			return filepath.Join(u.HomeDir, tail)
		}
	}
	return path
}

// SplitUserHost parses a `user@host` string. User resolution precedence
// (block override > caller > SSH config > OS user) is the SSH pool's job;
// this helper only validates shape and splits parts.
func SplitUserHost(userHost string) (user, host string, err error) {
	if userHost == "" {
		return "", "", fmt.Errorf("empty ssh target")
	}
	parts := strings.SplitN(userHost, "@", 2)
	if len(parts) == 2 {
		if parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid ssh target %q", userHost)
		}
		return parts[0], parts[1], nil
	}
	return "", parts[0], nil
}
