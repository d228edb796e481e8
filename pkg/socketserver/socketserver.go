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

// Package socketserver implements the raw-TCP socket server: it accepts
// connections, performs the topic handshake, registers into the
// connection registry, and spawns one per-connection receiver goroutine
// that forwards inbound frames to a single handler callback. Grounded on
// pkg/p2p/server.go's acceptor + errgroup-supervised goroutine model,
// adapted from gRPC streams to net.Listener/net.Conn because the wire
// format this server implements (ASCII handshake, newline-delimited text
// frames) is mandated, not a protobuf/gRPC surface.
package socketserver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bolt-server/bolt/pkg/boerr"
	"github.com/bolt-server/bolt/pkg/metrics"
	"github.com/bolt-server/bolt/pkg/registry"
	"github.com/bolt-server/bolt/pkg/transport"
)

// ConnState is a connection's position in the per-connection state
// machine: Accepting -> Handshaking -> Registered -> Receiving -> Closed.
type ConnState string

const (
	StateAccepting   ConnState = "Accepting"
	StateHandshaking ConnState = "Handshaking"
	StateRegistered  ConnState = "Registered"
	StateReceiving   ConnState = "Receiving"
	StateClosed      ConnState = "Closed"
)

// Handler processes one inbound frame from any connection.
type Handler func(frame []byte)

// Server is the C2 socket server.
type Server struct {
	host              string
	port              int
	backlog           int
	registry          *registry.Registry
	receiveRateLimit  float64

	handlerMu atomic.Value // stores Handler

	listening int32 // atomic, monotone stop flag
	ln        net.Listener
	addr      atomic.Value // stores net.Addr, set once the listener is open
}

// Config configures a Server.
type Config struct {
	Host    string
	Port    int
	Backlog int
	// ReceiveRateLimit bounds, per connection, the rate of frames
	// accepted from a single client. It is an internal safeguard against
	// a single misbehaving client starving the accept/receive
	// goroutines — not client-negotiated flow control, which remains a
	// non-goal. Zero disables the limiter.
	ReceiveRateLimit float64
}

// New builds a Server bound to reg. The listener is not opened until
// ListenAndServe is called.
func New(cfg Config, reg *registry.Registry) *Server {
	s := &Server{
		host:             cfg.Host,
		port:             cfg.Port,
		backlog:          cfg.Backlog,
		registry:         reg,
		receiveRateLimit: cfg.ReceiveRateLimit,
	}
	return s
}

// RegisterHandler sets the inbound frame handler, replacing any previous
// one. Safe to call concurrently with ListenAndServe.
func (s *Server) RegisterHandler(fn Handler) {
	s.handlerMu.Store(fn)
}

func (s *Server) handler() Handler {
	v := s.handlerMu.Load()
	if v == nil {
		return nil
	}
	return v.(Handler)
}

// StopListening flips a monotone flag; the acceptor and in-flight
// receivers observe it cooperatively between blocking reads and exit.
func (s *Server) StopListening() {
	atomic.StoreInt32(&s.listening, 0)
	if s.ln != nil {
		_ = s.ln.Close()
	}
}

// Addr returns the listener's bound address, or nil if ListenAndServe has
// not yet opened it. Primarily useful in tests that bind to port 0.
func (s *Server) Addr() net.Addr {
	v := s.addr.Load()
	if v == nil {
		return nil
	}
	return v.(net.Addr)
}

func (s *Server) stopped() bool {
	return atomic.LoadInt32(&s.listening) == 0
}

// Send implements dispatcher.Sender: it fans frame out to every transport
// registered under topic, in registration order, aborting on the first
// failure (first-failure-wins, no retry/rollback, per the dispatcher's
// contract).
func (s *Server) Send(topic string, frame []byte) error {
	clients, ok := s.registry.GetClients(topic)
	if !ok {
		return boerr.ErrUnknownTopic.GenWithStackByArgs(topic)
	}
	for _, c := range clients {
		if err := c.Send(frame); err != nil {
			return err
		}
	}
	return nil
}

// ListenAndServe opens the listener and runs the accept loop until ctx is
// cancelled or StopListening is called. It returns once the accept loop
// and every spawned receiver goroutine have exited.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.addr.Store(ln.Addr())
	atomic.StoreInt32(&s.listening, 1)

	log.Info("bolt socket server listening", zap.String("addr", addr), zap.Int("backlog", s.backlog))

	errg, egCtx := errgroup.WithContext(ctx)
	// Not run under errg: egCtx is only cancelled once Wait returns, so
	// waiting on it inside the group would block Wait after StopListening.
	go func() {
		<-egCtx.Done()
		s.StopListening()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopped() {
				break
			}
			log.Warn("accept failed", zap.Error(err))
			continue
		}
		errg.Go(func() error {
			s.serve(egCtx, conn)
			return nil
		})
	}

	return errg.Wait()
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	state := StateAccepting
	defer func() {
		if state != StateClosed {
			_ = conn.Close()
		}
	}()

	state = StateHandshaking
	t, topics, err := s.handshake(conn)
	if err != nil {
		metrics.HandshakeFailures.Inc()
		log.Warn("handshake failed, closing connection", zap.Error(err))
		state = StateClosed
		_ = conn.Close()
		return
	}

	for _, topic := range topics {
		s.registry.AddTopic(topic)
		s.registry.AddClient(topic, t)
	}
	state = StateRegistered
	metrics.ConnectionsAccepted.Inc()
	log.Info("client registered", zap.String("remote", t.RemoteName()), zap.Strings("topics", topics))

	state = StateReceiving
	s.receive(ctx, t)

	state = StateClosed
	s.registry.RemoveClient(t, "")
	_ = t.Close()
}

// handshake reads exactly one frame, parses it as TOPICLIST:HOSTNAME, and
// returns a transport plus the parsed topic list. Malformed handshakes
// fail with boerr.ErrMalformedFrame and the connection is never
// registered.
func (s *Server) handshake(conn net.Conn) (*transport.TCPTransport, []string, error) {
	t := transport.NewTCPTransport(conn, "")
	frame, err := t.Recv()
	if err != nil {
		return nil, nil, boerr.ErrMalformedFrame.GenWithStackByArgs(err.Error())
	}
	if len(frame) == 0 {
		return nil, nil, boerr.ErrMalformedFrame.GenWithStackByArgs("empty handshake frame")
	}

	idx := strings.LastIndexByte(string(frame), ':')
	if idx < 0 {
		return nil, nil, boerr.ErrMalformedFrame.GenWithStackByArgs("missing ':' separator")
	}
	topicList, hostname := string(frame[:idx]), string(frame[idx+1:])
	if hostname == "" {
		return nil, nil, boerr.ErrMalformedFrame.GenWithStackByArgs("empty hostname")
	}

	rawTopics := strings.Split(topicList, ",")
	topics := make([]string, 0, len(rawTopics))
	for _, rt := range rawTopics {
		if rt == "" {
			return nil, nil, boerr.ErrMalformedFrame.GenWithStackByArgs("empty topic in handshake")
		}
		topics = append(topics, rt)
	}

	return transport.NewTCPTransport(conn, hostname), topics, nil
}

// receive repeatedly reads a framed blob and forwards it to the
// registered inbound handler. An empty read signals disconnect and
// terminates the loop without surfacing an error.
func (s *Server) receive(ctx context.Context, t *transport.TCPTransport) {
	var limiter *rate.Limiter
	if s.receiveRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.receiveRateLimit), 1)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.stopped() {
			return
		}

		failpoint.Inject("boltReceiveDelay", func() {})

		frame, err := t.Recv()
		if err != nil {
			log.Debug("receive error, closing connection", zap.Error(err))
			return
		}
		if frame == nil {
			return
		}
		if len(frame) == 0 {
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		metrics.FramesReceived.Inc()
		if h := s.handler(); h != nil {
			h(frame)
		}
	}
}
