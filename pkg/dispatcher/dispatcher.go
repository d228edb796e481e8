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

// Package dispatcher implements the message dispatcher: it composes the
// message store, packet, and queue (pkg/message) with the connection
// registry and a socket-server fan-out to register messages, bind and
// send them, and hand inbound wire frames back to a single registered
// handler. Grounded on pkg/p2p/server.go's AddHandler/SendMessage pairing,
// narrowed from gRPC streams to the raw-socket Sender this package
// defines.
package dispatcher

import (
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/bolt-server/bolt/pkg/boerr"
	"github.com/bolt-server/bolt/pkg/logutil"
	"github.com/bolt-server/bolt/pkg/message"
	"github.com/bolt-server/bolt/pkg/metrics"
)

// Sender fans a wire frame out to every client transport registered under
// topic. Implemented by the socket server; kept as a narrow interface here
// so the dispatcher does not depend on socketserver's goroutine/accept
// machinery.
type Sender interface {
	Send(topic string, frame []byte) error
}

// InboundHandler receives a correlated inbound response: the original
// packet id and the payload a client sent back.
type InboundHandler func(id message.PacketID, result message.Schema)

// Dispatcher is the C6 message dispatcher.
type Dispatcher struct {
	store  *message.Store
	queue  *message.Queue
	sender Sender

	mu     sync.Mutex
	topics map[string][]string // message name -> topics

	handlerMu sync.RWMutex
	handler   InboundHandler

	logMessages bool
}

// New builds a Dispatcher over store/queue, fanning sends out through
// sender.
func New(store *message.Store, queue *message.Queue, sender Sender, logMessages bool) *Dispatcher {
	return &Dispatcher{
		store:       store,
		queue:       queue,
		sender:      sender,
		topics:      make(map[string][]string),
		logMessages: logMessages,
	}
}

// RegisterMessage stores schema under name and records its topic list.
// Returns false on duplicate name.
func (d *Dispatcher) RegisterMessage(name string, schema message.Schema, topics []string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.store.Add(name, schema); err != nil {
		return false
	}
	d.topics[name] = append([]string(nil), topics...)
	return true
}

// Known reports whether name is already registered, used by the execution
// engine to decide whether registration is needed before a send.
func (d *Dispatcher) Known(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.topics[name]
	return ok
}

// UnregisterMessage removes both the schema and the topic-list record for
// name. A missing name is a no-op.
func (d *Dispatcher) UnregisterMessage(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.topics, name)
	_ = d.store.Remove(name)
}

// RegisterHandler sets the inbound handler, replacing any previous one.
func (d *Dispatcher) RegisterHandler(fn InboundHandler) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.handler = fn
}

// SendMessage binds params onto the schema registered under name,
// constructs a packet, fans it out to every topic registered for name, and
// records the packet id as Awaited. Returns the new packet id.
//
// Step order matters: the packet id is computed and would be recorded in
// the message queue and any caller-supplied correlation map *before* the
// first network write, so a fast round-trip response can always be
// correlated (see pkg/engine, which records PacketID -> TaskID using the
// PreRecord hook below prior to the fan-out completing).
func (d *Dispatcher) SendMessage(name string, params map[string]interface{}, preRecord func(message.PacketID)) (message.PacketID, error) {
	schema, err := d.store.Get(name)
	if err != nil {
		return message.PacketID{}, err
	}

	bound, err := schema.Bind(name, params)
	if err != nil {
		return message.PacketID{}, err
	}

	packet := message.NewPacket(bound)

	if preRecord != nil {
		preRecord(packet.ID)
	}
	d.queue.Put(packet.ID, message.StatusAwaited)

	frame, err := packet.Marshal()
	if err != nil {
		return message.PacketID{}, err
	}

	d.mu.Lock()
	topics := append([]string(nil), d.topics[name]...)
	d.mu.Unlock()

	for _, topic := range topics {
		if err := d.sender.Send(topic, frame); err != nil {
			metrics.DispatchFailures.WithLabelValues(topic).Inc()
			return packet.ID, boerr.WrapError(boerr.ErrDispatchFailed, err, topic)
		}
	}

	metrics.MessagesDispatched.WithLabelValues(name).Inc()

	if d.logMessages {
		fields := []zap.Field{
			zap.String("name", name),
			zap.String("id", packet.ID.String()),
			zap.Strings("topics", topics),
		}
		fields = append(fields, logutil.MessageFields(d.logMessages, bound)...)
		log.Debug("message dispatched", fields...)
	}

	return packet.ID, nil
}

// OnInbound parses frame as the canonical {id, payload} form and forwards
// it to the registered inbound handler exactly once.
func (d *Dispatcher) OnInbound(frame []byte) error {
	packet, err := message.Unmarshal(frame)
	if err != nil {
		return err
	}

	d.handlerMu.RLock()
	handler := d.handler
	d.handlerMu.RUnlock()

	if handler == nil {
		log.Warn("inbound message dropped: no handler registered", zap.String("id", packet.ID.String()))
		return nil
	}
	handler(packet.ID, packet.Payload)
	return nil
}
