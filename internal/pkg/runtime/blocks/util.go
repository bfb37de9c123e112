// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	"regexp"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/template"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func identRe(name string) bool {
	return name != "" && identifierRe.MatchString(name)
}

// renderMergedEnv builds the template.Env a handler renders its own
// props against: variables layered over environment.
func renderMergedEnv(ec *context.ExecutionContext) template.Env {
	return template.Merge(ec.Env, ec.Variables)
}

func renderTemplate(s string, env template.Env) (string, error) {
	return template.Render(s, env)
}
