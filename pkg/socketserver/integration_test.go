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

package socketserver_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bolt-server/bolt/pkg/dispatcher"
	"github.com/bolt-server/bolt/pkg/message"
	"github.com/bolt-server/bolt/pkg/registry"
	"github.com/bolt-server/bolt/pkg/socketserver"
)

// TestSingleTopicEcho exercises the single-topic echo end-to-end scenario:
// a client handshakes on one topic, a message is registered and sent, and
// the client observes the exact wire frame with the SHA-256 packet id.
func TestSingleTopicEcho(t *testing.T) {
	reg := registry.New()
	srv := socketserver.New(socketserver.Config{Host: "127.0.0.1", Port: 0, Backlog: 10}, reg)

	store := message.NewStore()
	queue := message.NewQueue()
	disp := dispatcher.New(store, queue, srv, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	addr := waitForAddr(t, srv)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("Test:hostA\n"))
	require.NoError(t, err)

	require.True(t, disp.RegisterMessage("ping", message.Schema{"msg": ""}, []string{"Test"}))

	waitForClient(t, reg, "Test")

	id, err := disp.SendMessage("ping", map[string]interface{}{"msg": "hi"}, nil)
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	packet, err := message.Unmarshal(line[:len(line)-1])
	require.NoError(t, err)
	require.Equal(t, id, packet.ID)
	require.Equal(t, "hi", packet.Payload["msg"])

	want := message.NewPacket(message.Schema{"msg": "hi"}).ID
	require.Equal(t, want, packet.ID)

	// Receivers observe cancellation only between reads, so the client
	// disconnects first to release the receiver blocked on its socket.
	conn.Close()
	cancel()
	<-done
}

func waitForAddr(t *testing.T, srv *socketserver.Server) net.Addr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := srv.Addr(); a != nil {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not start listening in time")
	return nil
}

func waitForClient(t *testing.T, reg *registry.Registry, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if clients, ok := reg.GetClients(topic); ok && len(clients) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client never registered under topic")
}
