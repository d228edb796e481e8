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

// Package task implements the task queue: tasks keyed by a 128-bit random
// id, with status and dependency tracking. Grounded on
// original_source/bolt_server/execution_engine/structures.py's TaskQueue,
// reimplemented with the id-minting fix the design notes require
// (uuid.UUID ids instead of hashlib.md5(name + random.randint)).
package task

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bolt-server/bolt/pkg/boerr"
)

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusQueued   Status = "Queued"
	StatusPending  Status = "Pending"
	StatusRunning  Status = "Running"
	StatusHalted   Status = "Halted"
	StatusComplete Status = "Complete"
)

// Task is one unit of dispatchable work.
type Task struct {
	ID           uuid.UUID
	Name         string
	PluginName   string
	Params       map[string]interface{}
	Topics       []string
	Status       Status
	Dependencies []uuid.UUID
}

// Queue is the mapping TaskId -> Task.
type Queue struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Task
	// order records insertion order so cycleTasks can scan deterministically.
	order []uuid.UUID
}

// NewQueue returns an empty task queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[uuid.UUID]*Task)}
}

// QueueTask creates a new task in StatusQueued and returns its id.
func (q *Queue) QueueTask(name, pluginName string, params map[string]interface{}, topics []string, dependencies []uuid.UUID) uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.New()
	q.items[id] = &Task{
		ID:           id,
		Name:         name,
		PluginName:   pluginName,
		Params:       params,
		Topics:       topics,
		Status:       StatusQueued,
		Dependencies: dependencies,
	}
	q.order = append(q.order, id)
	return id
}

// GetTask returns a copy of the task identified by id. Fails with
// boerr.ErrUnknownTask if id is not present.
func (q *Queue) GetTask(id uuid.UUID) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.items[id]
	if !ok {
		return Task{}, boerr.ErrUnknownTask.GenWithStackByArgs(id.String())
	}
	return *t, nil
}

// GetTaskStatus returns the status of id. Fails with boerr.ErrUnknownTask
// if id is not present.
func (q *Queue) GetTaskStatus(id uuid.UUID) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.items[id]
	if !ok {
		return "", boerr.ErrUnknownTask.GenWithStackByArgs(id.String())
	}
	return t.Status, nil
}

// GetTaskDependency returns the dependency list of id (possibly empty).
// Fails with boerr.ErrUnknownTask if id is not present.
func (q *Queue) GetTaskDependency(id uuid.UUID) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.items[id]
	if !ok {
		return nil, boerr.ErrUnknownTask.GenWithStackByArgs(id.String())
	}
	return append([]uuid.UUID(nil), t.Dependencies...), nil
}

// ChangeTaskStatus sets the status of id. Any transition is permitted;
// ordering discipline is the engine's responsibility, not the queue's.
// Fails with boerr.ErrUnknownTask if id is not present.
func (q *Queue) ChangeTaskStatus(id uuid.UUID, status Status) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.items[id]
	if !ok {
		return boerr.ErrUnknownTask.GenWithStackByArgs(id.String())
	}
	t.Status = status
	return nil
}

// Snapshot returns every task in insertion order, for cycleTasks to scan.
func (q *Queue) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.items[id])
	}
	return out
}
