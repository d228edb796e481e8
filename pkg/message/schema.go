// Copyright 2024 Bolt Server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package message implements the message store, packet, and queue: the
// plugin-declared schema template registry, the content-addressed packet
// identifier, and the in-flight packet status tracker.
package message

import (
	"sort"
	"sync"

	"github.com/bolt-server/bolt/pkg/boerr"
)

// Schema is a plugin-supplied field-name to default-value template. The
// dispatcher treats it as read-only: a concrete outgoing message is a
// Bind()-produced copy with named overrides, never a mutation of the
// stored original.
type Schema map[string]interface{}

// Bind returns a new Schema with every key in params overwritten, failing
// with boerr.ErrParamMismatch on the first key absent from s. name
// identifies the message this schema is registered under, and is carried
// into the error so a ParamMismatch names the message that rejected it.
func (s Schema) Bind(name string, params map[string]interface{}) (Schema, error) {
	bound := make(Schema, len(s))
	for k, v := range s {
		bound[k] = v
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := s[k]; !ok {
			return nil, boerr.ErrParamMismatch.GenWithStackByArgs(k, name)
		}
		bound[k] = params[k]
	}
	return bound, nil
}

// Store is the mapping MessageName -> Schema. A name is unique within a
// Store; re-adding fails.
type Store struct {
	mu    sync.RWMutex
	items map[string]Schema
}

// NewStore returns an empty message store.
func NewStore() *Store {
	return &Store{items: make(map[string]Schema)}
}

// Add registers schema under name. Fails with boerr.ErrDuplicateName if
// name already exists.
func (s *Store) Add(name string, schema Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[name]; ok {
		return boerr.ErrDuplicateName.GenWithStackByArgs(name)
	}
	s.items[name] = schema
	return nil
}

// Remove deletes name. Fails with boerr.ErrUnknownMessage if name is not
// present.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[name]; !ok {
		return boerr.ErrUnknownMessage.GenWithStackByArgs(name)
	}
	delete(s.items, name)
	return nil
}

// Get returns the schema registered under name. Callers must treat the
// result as a template and never mutate it in place; use Schema.Bind to
// produce an outgoing copy.
func (s *Store) Get(name string) (Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.items[name]
	if !ok {
		return nil, boerr.ErrUnknownMessage.GenWithStackByArgs(name)
	}
	return schema, nil
}

// Has reports whether name is registered, without returning the schema.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[name]
	return ok
}
