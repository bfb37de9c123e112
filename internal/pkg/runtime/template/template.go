// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package template implements the runtime's `{{name}}` substitution
// engine. It is intentionally strict: an undefined variable is a fatal
// error for the block being resolved, never a silent empty string.
package template

import (
	"fmt"
	"strings"
)

// ErrUndefined is wrapped into the returned error when a referenced name has
// no value in the environment.
type ErrUndefined struct {
	Name string
}

func (e *ErrUndefined) Error() string {
	return fmt.Sprintf("undefined template variable %q", e.Name)
}

// Env supplies values for `{{name}}` references. Lookup order is left to
// the caller composing the Env (see context.Resolve, which overlays
// variables on top of env). Document-level values such as block display
// names are not part of that Env.
type Env map[string]string

// Render replaces every `{{name}}` occurrence in s with its value from env.
// Whitespace immediately inside the braces is trimmed (`{{ name }}` and
// `{{name}}` are equivalent), matching the engine's strict trim-blocks
// behavior. An undefined name aborts the whole render with *ErrUndefined.
func Render(s string, env Env) (string, error) {
	var out strings.Builder
	out.Grow(len(s))

	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "{{")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i
		out.WriteString(s[i:start])

		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return "", fmt.Errorf("unterminated template expression in %q", s)
		}
		end += start

		name := strings.TrimSpace(s[start+2 : end])
		if name == "" {
			return "", fmt.Errorf("empty template expression in %q", s)
		}

		val, ok := env[name]
		if !ok {
			return "", &ErrUndefined{Name: name}
		}
		out.WriteString(val)

		i = end + 2
	}

	return out.String(), nil
}

// Merge overlays later maps onto earlier ones, later values winning. It is
// how an Env is built from environment, variables, and document values.
func Merge(maps ...map[string]string) Env {
	env := make(Env)
	for _, m := range maps {
		for k, v := range m {
			env[k] = v
		}
	}
	return env
}
