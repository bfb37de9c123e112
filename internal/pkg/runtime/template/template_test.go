// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package template

import "testing"

func TestRenderSubstitutesKnownNames(t *testing.T) {
	env := Env{"name": "world", "n": "1"}
	got, err := Render("hello {{name}}, attempt {{ n }}", env)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "hello world, attempt 1" {
		t.Errorf("got %q", got)
	}
}

func TestRenderUndefinedIsFatal(t *testing.T) {
	_, err := Render("{{missing}}", Env{})
	if err == nil {
		t.Fatal("expected an error for an undefined variable")
	}
	var undef *ErrUndefined
	if !asErrUndefined(err, &undef) {
		t.Fatalf("error = %v, want *ErrUndefined", err)
	}
	if undef.Name != "missing" {
		t.Errorf("Name = %q, want %q", undef.Name, "missing")
	}
}

func asErrUndefined(err error, target **ErrUndefined) bool {
	e, ok := err.(*ErrUndefined)
	if ok {
		*target = e
	}
	return ok
}

func TestRenderUnterminatedExpression(t *testing.T) {
	if _, err := Render("{{oops", Env{}); err == nil {
		t.Fatal("expected an error for an unterminated expression")
	}
}

func TestRenderNoTemplatesIsIdentity(t *testing.T) {
	got, err := Render("plain text", Env{})
	if err != nil || got != "plain text" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestMergeLaterWins(t *testing.T) {
	env := Merge(map[string]string{"a": "1", "b": "1"}, map[string]string{"b": "2"})
	if env["a"] != "1" || env["b"] != "2" {
		t.Fatalf("env = %v", env)
	}
}
