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

package socketserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bolt-server/bolt/pkg/registry"
)

func TestHandshakeParsesTopicsAndHostname(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.SetWriteDeadline(time.Now().Add(time.Second))
		client.Write([]byte("Test,Other:hostA\n"))
	}()

	s := New(Config{Host: "127.0.0.1", Port: 0, Backlog: 1}, registry.New())
	server.SetReadDeadline(time.Now().Add(time.Second))
	transport, topics, err := s.handshake(server)
	require.NoError(t, err)
	require.Equal(t, []string{"Test", "Other"}, topics)
	require.Equal(t, "hostA", transport.RemoteName())
}

func TestHandshakeRejectsMissingSeparator(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.SetWriteDeadline(time.Now().Add(time.Second))
		client.Write([]byte("nocolon\n"))
	}()

	s := New(Config{Host: "127.0.0.1", Port: 0, Backlog: 1}, registry.New())
	server.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := s.handshake(server)
	require.Error(t, err)
}

func TestHandshakeRejectsEmptyTopic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.SetWriteDeadline(time.Now().Add(time.Second))
		client.Write([]byte("Test,,Other:hostA\n"))
	}()

	s := New(Config{Host: "127.0.0.1", Port: 0, Backlog: 1}, registry.New())
	server.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := s.handshake(server)
	require.Error(t, err)
}

func TestSendUnknownTopicFails(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", Port: 0, Backlog: 1}, registry.New())
	err := s.Send("nope", []byte("frame"))
	require.Error(t, err)
}
