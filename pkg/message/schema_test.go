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

func TestSchemaBindOverridesKnownKeys(t *testing.T) {
	s := Schema{"msg": ""}
	bound, err := s.Bind("ping", map[string]interface{}{"msg": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", bound["msg"])
	require.Equal(t, "", s["msg"], "stored schema must not be mutated")
}

func TestSchemaBindRejectsUnknownKey(t *testing.T) {
	s := Schema{"msg": ""}
	_, err := s.Bind("ping", map[string]interface{}{"other": 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ping", "error must name the message that rejected the param")
}

func TestStoreDuplicateNameFails(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("ping", Schema{"msg": ""}))
	err := s.Add("ping", Schema{"msg": ""})
	require.Error(t, err)
}

func TestStoreRemoveUnknownNameFails(t *testing.T) {
	s := NewStore()
	err := s.Remove("nope")
	require.Error(t, err)
}

func TestStoreGetReturnsTemplateByReference(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("ping", Schema{"msg": ""}))

	got, err := s.Get("ping")
	require.NoError(t, err)
	require.Equal(t, Schema{"msg": ""}, got)

	got["msg"] = "changed"
	again, err := s.Get("ping")
	require.NoError(t, err)
	require.Equal(t, "changed", again["msg"], "Get must return the stored map, not a copy")
}
