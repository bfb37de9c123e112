// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package context

import (
	"sync"

	"github.com/google/uuid"
)

// OutputStore is the runbook-scoped `name -> value` map that script and SQL
// blocks write their captured output into. Writes are rare (end of block);
// reads through Get may come from many goroutines, hence RWMutex rather
// than a single mutex. The context resolver does not read this store.
type OutputStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]map[string]string
}

func NewOutputStore() *OutputStore {
	return &OutputStore{data: make(map[uuid.UUID]map[string]string)}
}

// Set writes value under name within runbookID, overwriting any prior
// value for the same name.
func (s *OutputStore) Set(runbookID uuid.UUID, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data[runbookID]
	if !ok {
		m = make(map[string]string)
		s.data[runbookID] = m
	}
	m[name] = value
}

func (s *OutputStore) Get(runbookID uuid.UUID, name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[runbookID]
	if !ok {
		return "", false
	}
	v, ok := m[name]
	return v, ok
}

// All returns a copy of every variable recorded for runbookID.
func (s *OutputStore) All(runbookID uuid.UUID) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for k, v := range s.data[runbookID] {
		out[k] = v
	}
	return out
}
