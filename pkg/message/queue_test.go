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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueUpdateUnknownIDFails(t *testing.T) {
	q := NewQueue()
	err := q.Update(PacketID{0x01}, StatusAwaited)
	require.Error(t, err)
}

func TestQueuePutThenUpdate(t *testing.T) {
	q := NewQueue()
	id := PacketID{0x02}
	q.Put(id, StatusAwaited)

	status, ok := q.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusAwaited, status)

	require.NoError(t, q.Update(id, "Delivered"))
	status, ok = q.Get(id)
	require.True(t, ok)
	require.Equal(t, Status("Delivered"), status)
}
