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

package task

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestQueueTaskInitialStatusQueued(t *testing.T) {
	q := NewQueue()
	id := q.QueueTask("A", "pluginA", nil, []string{"T"}, nil)

	status, err := q.GetTaskStatus(id)
	require.NoError(t, err)
	require.Equal(t, StatusQueued, status)
}

func TestGetTaskUnknownIDFails(t *testing.T) {
	q := NewQueue()
	_, err := q.GetTask(uuid.New())
	require.Error(t, err)
}

func TestChangeTaskStatusUnknownIDFails(t *testing.T) {
	q := NewQueue()
	err := q.ChangeTaskStatus(uuid.New(), StatusComplete)
	require.Error(t, err)
}

func TestGetTaskDependencyEmptyIsNotAnError(t *testing.T) {
	q := NewQueue()
	id := q.QueueTask("A", "pluginA", nil, nil, nil)

	deps, err := q.GetTaskDependency(id)
	require.NoError(t, err)
	require.Empty(t, deps)
}

func TestSnapshotPreservesInsertionOrder(t *testing.T) {
	q := NewQueue()
	a := q.QueueTask("A", "p", nil, nil, nil)
	b := q.QueueTask("B", "p", nil, nil, nil)
	c := q.QueueTask("C", "p", nil, nil, nil)

	snap := q.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, []uuid.UUID{a, b, c}, []uuid.UUID{snap[0].ID, snap[1].ID, snap[2].ID})
}

func TestTaskIDsAreUniqueRandomUUIDs(t *testing.T) {
	q := NewQueue()
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 100; i++ {
		id := q.QueueTask("A", "p", nil, nil, nil)
		require.False(t, seen[id], "task id collided")
		seen[id] = true
		require.Equal(t, uuid.Version(4), id.Version())
	}
}
