// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/buger/jsonparser"
)

// decodeValue converts a value as returned by (*sql.Rows).Scan (via an
// interface{} slot) into a JSON-marshalable value. Numeric, date/time,
// UUID, interval, JSON, and byte-array columns all collapse to either a Go
// native type database/sql already produces, a string (base64 for
// non-printable bytes, RFC 3339 for times), or a json.RawMessage for
// printable bytes holding a JSON object or array: the driver has already
// typed the value, so this function's job is only to make it JSON-safe.
func decodeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		// Ambiguous between bytea/blob and a driver returning raw text as
		// bytes; drivers that want JSON semantics should return string.
		if !isPrintableText(val) {
			return base64.StdEncoding.EncodeToString(val)
		}
		// A json/jsonb column comes back from database/sql as printable
		// text; embed it as a nested JSON value instead of a doubly
		// escaped string so {columns, rows} round-trips cleanly.
		if isJSONValue(val) {
			return json.RawMessage(val)
		}
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case sql.RawBytes:
		return decodeValue([]byte(val))
	default:
		return val
	}
}

// isJSONValue reports whether b is a complete, validly-formed JSON object or
// array, using jsonparser's zero-allocation scan rather than a full
// unmarshal just to answer a yes/no question. Only object/array are treated
// as JSON columns; a bare string or number column that happens to look
// JSON-ish (e.g. the text "123") is left as a plain string.
func isJSONValue(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	_, _, offset, err := jsonparser.Get(trimmed)
	return err == nil && offset == len(trimmed)
}

func isPrintableText(b []byte) bool {
	for _, c := range b {
		if c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// decodeRow decodes one row's worth of scanned values into an ordered
// slice of JSON-ready values, the row half of the {columns, rows} object
// every SQL block emits.
func decodeRow(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		var deref interface{}
		if p, ok := v.(*interface{}); ok {
			deref = *p
		} else {
			deref = v
		}
		out[i] = decodeValue(deref)
	}
	return out
}
