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

package message

import (
	"sync"

	"github.com/bolt-server/bolt/pkg/boerr"
)

// Status is the lifecycle status of an in-flight packet.
type Status string

// StatusAwaited is the only status the core itself assigns; additional
// statuses are a future extension point (hence the open-ended enum in the
// spec's data model, "Status ∈ {Awaited, ...}").
const StatusAwaited Status = "Awaited"

// Queue tracks PacketID -> Status for in-flight packets.
type Queue struct {
	mu    sync.Mutex
	items map[PacketID]Status
}

// NewQueue returns an empty message queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[PacketID]Status)}
}

// Put records id with an initial status. Overwrites any existing entry
// for id.
func (q *Queue) Put(id PacketID, status Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[id] = status
}

// Update sets the status for an already-tracked id. Fails with
// boerr.ErrUnknownMessage if id is not tracked.
func (q *Queue) Update(id PacketID, status Status) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[id]; !ok {
		return boerr.ErrUnknownMessage.GenWithStackByArgs(id.String())
	}
	q.items[id] = status
	return nil
}

// Get returns the current status of id.
func (q *Queue) Get(id PacketID) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.items[id]
	return s, ok
}
