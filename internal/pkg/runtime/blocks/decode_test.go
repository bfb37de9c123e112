// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeValue(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"nil", nil, nil},
		{"int64", int64(42), int64(42)},
		{"string", "hello", "hello"},
		{"printable bytes", []byte("plain text"), "plain text"},
		{"binary bytes", []byte{0x00, 0x01, 0xff}, "AAH/"},
		{"time", now, now.Format(time.RFC3339Nano)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeValue(tc.in)
			if got != tc.want {
				t.Errorf("decodeValue(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeValueJSONColumn(t *testing.T) {
	got := decodeValue([]byte(`{"a": 1, "b": [true, null]}`))
	raw, ok := got.(json.RawMessage)
	if !ok {
		t.Fatalf("decodeValue(json bytes) = %T, want json.RawMessage", got)
	}
	if string(raw) != `{"a": 1, "b": [true, null]}` {
		t.Errorf("decodeValue(json bytes) = %s", raw)
	}
}

func TestDecodeValueNumericLookingStringStaysPlain(t *testing.T) {
	got := decodeValue([]byte("12345"))
	if got != "12345" {
		t.Errorf("decodeValue(numeric text) = %v, want plain string", got)
	}
}

func TestDecodeValueMalformedBraceStaysPlain(t *testing.T) {
	got := decodeValue([]byte("{not json"))
	if got != "{not json" {
		t.Errorf("decodeValue(malformed brace) = %v, want plain string", got)
	}
}

func TestDecodeRow(t *testing.T) {
	row := []interface{}{int64(1), "a", nil}
	got := decodeRow(row)
	if len(got) != 3 || got[0] != int64(1) || got[1] != "a" || got[2] != nil {
		t.Errorf("decodeRow = %+v", got)
	}
}
