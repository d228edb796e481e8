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

// Package transport defines the abstract bidirectional byte channel the
// connection registry and socket server operate on, plus the TCP adapter
// used by cmd/boltd.
package transport

import (
	"bufio"
	"net"
	"sync"

	"github.com/pingcap/errors"
)

// MaxFrameBytes is the fixed upper bound on a single framed read, shared by
// the handshake frame and every subsequent frame.
const MaxFrameBytes = 32000

// ClientTransport is an abstract bidirectional byte channel. The core
// neither interprets nor frames beyond delimited reads up to MaxFrameBytes.
type ClientTransport interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
	// RemoteName is the hostname the client announced in its handshake
	// frame. It is informational only, used for logging and metrics
	// labels.
	RemoteName() string
}

// TCPTransport implements ClientTransport over a single net.Conn, framing
// each message with a trailing newline (the wire format in use by bolt
// clients: ASCII/JSON-like text frames, one per line, each no larger than
// MaxFrameBytes).
type TCPTransport struct {
	conn       net.Conn
	reader     *bufio.Reader
	remoteName string

	mu sync.Mutex
}

// NewTCPTransport wraps conn. remoteName is the hostname parsed from the
// handshake frame.
func NewTCPTransport(conn net.Conn, remoteName string) *TCPTransport {
	return &TCPTransport{
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, MaxFrameBytes+1),
		remoteName: remoteName,
	}
}

// RemoteName implements ClientTransport.
func (t *TCPTransport) RemoteName() string {
	return t.remoteName
}

// Send implements ClientTransport. Sends are serialized: a single
// transport may be a fan-out target for more than one in-flight send.
func (t *TCPTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(frame) > MaxFrameBytes {
		return errors.Errorf("frame of %d bytes exceeds maximum of %d", len(frame), MaxFrameBytes)
	}
	if _, err := t.conn.Write(frame); err != nil {
		return errors.Trace(err)
	}
	if _, err := t.conn.Write([]byte("\n")); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Recv implements ClientTransport. An empty frame (io.EOF on the first
// byte of a read) signals a clean disconnect and is reported to the caller
// as a nil slice with a nil error; callers terminate their receive loop on
// that condition without treating it as an error.
func (t *TCPTransport) Recv() ([]byte, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if len(line) > MaxFrameBytes {
		return nil, errors.Errorf("frame of %d bytes exceeds maximum of %d", len(line), MaxFrameBytes)
	}
	return line, nil
}

// Close implements ClientTransport.
func (t *TCPTransport) Close() error {
	return t.conn.Close()
}
