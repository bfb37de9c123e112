// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	"reflect"
	"testing"
)

func TestLineWriterSplitsOnNewline(t *testing.T) {
	var lines []string
	w := newLineWriter(func(line string) { lines = append(lines, line) })

	_, _ = w.Write([]byte("hello "))
	_, _ = w.Write([]byte("world\nsecond line\npartial"))
	_ = w.Close()

	want := []string{"hello world\n", "second line\n", "partial"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestLineWriterCloseWithoutPartialIsNoop(t *testing.T) {
	var lines []string
	w := newLineWriter(func(line string) { lines = append(lines, line) })

	_, _ = w.Write([]byte("complete\n"))
	_ = w.Close()

	want := []string{"complete\n"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}
