// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package context

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/runbookhq/runcore/pkg/block"
)

func props(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestResolveFoldsContextInOrder(t *testing.T) {
	runbookID := uuid.New()
	target := uuid.New()

	doc := block.Document{
		{ID: uuid.New(), Kind: block.KindDirectory, Props: props(t, block.DirectoryProps{Path: "/tmp"})},
		{ID: uuid.New(), Kind: block.KindEnviron, Props: props(t, block.EnvironmentProps{Name: "X", Value: "1"})},
		{ID: uuid.New(), Kind: block.KindVar, Props: props(t, block.VarProps{Name: "greeting", Value: "hi {{X}}"})},
		{ID: target, Kind: block.KindScript},
	}

	ec, err := Resolve(runbookID, target, doc, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ec.Cwd != "/tmp" {
		t.Errorf("Cwd = %q, want /tmp", ec.Cwd)
	}
	if ec.Env["X"] != "1" {
		t.Errorf("Env[X] = %q, want 1", ec.Env["X"])
	}
	if ec.Variables["greeting"] != "hi 1" {
		t.Errorf("Variables[greeting] = %q, want %q", ec.Variables["greeting"], "hi 1")
	}
}

func TestResolveStopsBeforeTarget(t *testing.T) {
	runbookID := uuid.New()
	target := uuid.New()

	doc := block.Document{
		{ID: target, Kind: block.KindScript},
		{ID: uuid.New(), Kind: block.KindEnviron, Props: props(t, block.EnvironmentProps{Name: "LATE", Value: "1"})},
	}

	ec, err := Resolve(runbookID, target, doc, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := ec.Env["LATE"]; ok {
		t.Fatal("context after the target block must not be applied")
	}
}

func TestResolveInvalidVariableName(t *testing.T) {
	runbookID := uuid.New()
	target := uuid.New()
	doc := block.Document{
		{ID: uuid.New(), Kind: block.KindVar, Props: props(t, block.VarProps{Name: "bad name", Value: "x"})},
		{ID: target, Kind: block.KindScript},
	}

	if _, err := Resolve(runbookID, target, doc, nil); err == nil {
		t.Fatal("expected an error for an invalid variable name")
	}
}

type fakeKV struct{ values map[string]string }

func (f fakeKV) Get(runbookID, blockID uuid.UUID, name string) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

func TestResolveLocalVarFromKV(t *testing.T) {
	runbookID := uuid.New()
	target := uuid.New()
	lv := uuid.New()
	doc := block.Document{
		{ID: lv, Kind: block.KindLocalVar, Props: props(t, block.LocalVarProps{Name: "saved"})},
		{ID: target, Kind: block.KindScript},
	}

	ec, err := Resolve(runbookID, target, doc, fakeKV{values: map[string]string{"saved": "value"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ec.Variables["saved"] != "value" {
		t.Errorf("Variables[saved] = %q, want value", ec.Variables["saved"])
	}
}

func TestResolveLocalVarUnsetIsEmptyString(t *testing.T) {
	runbookID := uuid.New()
	target := uuid.New()
	doc := block.Document{
		{ID: uuid.New(), Kind: block.KindLocalVar, Props: props(t, block.LocalVarProps{Name: "missing"})},
		{ID: target, Kind: block.KindScript},
	}

	ec, err := Resolve(runbookID, target, doc, fakeKV{values: map[string]string{}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v, ok := ec.Variables["missing"]; !ok || v != "" {
		t.Errorf("Variables[missing] = %q, ok=%v, want empty string, true", v, ok)
	}
}

func TestResolveSSHConnect(t *testing.T) {
	runbookID := uuid.New()
	target := uuid.New()
	doc := block.Document{
		{ID: uuid.New(), Kind: block.KindSSHConnect, Props: props(t, block.SSHConnectProps{
			UserHost:    "deploy@example.com",
			IdentityKey: "/home/x/.ssh/id_ed25519",
		})},
		{ID: target, Kind: block.KindScript},
	}

	ec, err := Resolve(runbookID, target, doc, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ec.SSHHost != "deploy@example.com" {
		t.Errorf("SSHHost = %q", ec.SSHHost)
	}
	if ec.SSHHints.IdentityKey != "/home/x/.ssh/id_ed25519" {
		t.Errorf("SSHHints.IdentityKey = %q", ec.SSHHints.IdentityKey)
	}
}

func TestResolveSSHConnectInvalidTarget(t *testing.T) {
	runbookID := uuid.New()
	target := uuid.New()
	doc := block.Document{
		{ID: uuid.New(), Kind: block.KindSSHConnect, Props: props(t, block.SSHConnectProps{UserHost: "@"})},
		{ID: target, Kind: block.KindScript},
	}

	if _, err := Resolve(runbookID, target, doc, nil); err == nil {
		t.Fatal("expected an error for an invalid user@host target")
	}
}

func TestSplitUserHost(t *testing.T) {
	cases := []struct {
		in       string
		user     string
		host     string
		wantErr  bool
	}{
		{in: "alice@example.com", user: "alice", host: "example.com"},
		{in: "example.com", user: "", host: "example.com"},
		{in: "", wantErr: true},
		{in: "@example.com", wantErr: true},
		{in: "alice@", wantErr: true},
	}
	for _, c := range cases {
		user, host, err := SplitUserHost(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("SplitUserHost(%q): expected error", c.in)
			}
			continue
		}
		if err != nil || user != c.user || host != c.host {
			t.Errorf("SplitUserHost(%q) = %q, %q, %v, want %q, %q, nil", c.in, user, host, err, c.user, c.host)
		}
	}
}
