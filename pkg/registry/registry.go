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

// Package registry implements the connection registry: a mapping from
// subscription topic to an ordered, set-semantic sequence of client
// transports. Grounded on pkg/p2p/server.go's peers map guarded by a single
// sync.RWMutex, generalized from a flat peer map to a topic-keyed map of
// ordered transport slices.
package registry

import (
	"sync"

	"github.com/bolt-server/bolt/pkg/boerr"
	"github.com/bolt-server/bolt/pkg/transport"
)

// ErrNoSuchTopic is the error kind for a topic that has never been added.
// GetClients does not return it: it reports an unknown topic with ok set
// to false, distinguishing "unknown topic" from "topic known but empty".
var ErrNoSuchTopic = boerr.ErrUnknownTopic

// Registry is the connection registry described by the data model: Topic
// -> ordered sequence of ClientTransport, set semantics per topic.
type Registry struct {
	mu     sync.RWMutex
	topics map[string][]transport.ClientTransport
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		topics: make(map[string][]transport.ClientTransport),
	}
}

// AddTopic creates topic if absent and returns the current topic count.
// Idempotent for existing topics.
func (r *Registry) AddTopic(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[topic]; !ok {
		r.topics[topic] = nil
	}
	return len(r.topics)
}

// AddClient registers transport under topic, creating the topic if
// absent. Returns false iff transport was already registered under that
// topic; otherwise appends and returns true.
func (r *Registry) AddClient(topic string, t transport.ClientTransport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := r.topics[topic]
	for _, existing := range clients {
		if existing == t {
			return false
		}
	}
	r.topics[topic] = append(clients, t)
	return true
}

// GetTopics returns a snapshot of the registered topic names.
func (r *Registry) GetTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.topics))
	for t := range r.topics {
		out = append(out, t)
	}
	return out
}

// GetClients returns a snapshot sequence of transports registered under
// topic, in insertion order. ok is false when the topic has never been
// added (distinguishable from a topic that exists but is empty).
func (r *Registry) GetClients(topic string) (clients []transport.ClientTransport, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.topics[topic]
	if !ok {
		return nil, false
	}
	out := make([]transport.ClientTransport, len(existing))
	copy(out, existing)
	return out, true
}

// RemoveClient removes t from topic. If topic is the empty string, t is
// removed from every topic where it is present. A missing transport is a
// no-op.
func (r *Registry) RemoveClient(t transport.ClientTransport, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if topic != "" {
		r.removeFromTopic(topic, t)
		return
	}
	for name := range r.topics {
		r.removeFromTopic(name, t)
	}
}

func (r *Registry) removeFromTopic(topic string, t transport.ClientTransport) {
	clients, ok := r.topics[topic]
	if !ok {
		return
	}
	for i, existing := range clients {
		if existing == t {
			r.topics[topic] = append(clients[:i:i], clients[i+1:]...)
			return
		}
	}
}

// RemoveTopic deletes topic. Fails with boerr.ErrTopicBusy if the topic is
// non-empty and force is false.
func (r *Registry) RemoveTopic(topic string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.topics[topic]
	if !ok {
		return nil
	}
	if len(clients) > 0 && !force {
		return boerr.ErrTopicBusy.GenWithStackByArgs(topic, len(clients))
	}
	delete(r.topics, topic)
	return nil
}
