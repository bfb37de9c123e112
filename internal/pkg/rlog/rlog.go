// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package rlog is the leveled logging wrapper used throughout the runtime
// core. It exists so call sites never import a concrete logging backend
// directly, the same indirection the rest of the ecosystem reaches for when
// wrapping apex/log.
package rlog

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
)

var base = log.Logger{
	Handler: cli.New(os.Stderr),
	Level:   log.InfoLevel,
}

// SetOutput redirects the handler's destination, primarily for tests that
// want to assert on emitted log lines.
func SetOutput(w io.Writer) {
	base.Handler = cli.New(w)
}

// SetLevel adjusts the minimum emitted level.
func SetLevel(level log.Level) {
	base.Level = level
}

// WithField returns an entry carrying a single structured field.
func WithField(key string, value interface{}) *log.Entry {
	return base.WithField(key, value)
}

// WithFields returns an entry carrying several structured fields.
func WithFields(fields log.Fields) *log.Entry {
	return base.WithFields(fields)
}

func Debugf(format string, args ...interface{}) {
	base.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	base.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	base.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	base.Errorf(format, args...)
}

// Fatalf logs at error level and terminates the process. Intended for CLI
// entry points only.
func Fatalf(format string, args ...interface{}) {
	base.Errorf(format, args...)
	os.Exit(1)
}

// Wrap annotates err with a leveled log line and returns err unchanged, for
// call sites that want to both log and propagate an error in one line.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", context, err)
	base.Error(wrapped.Error())
	return wrapped
}
