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

package dispatcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bolt-server/bolt/pkg/message"
)

type fakeSender struct {
	sent      map[string][][]byte
	order     []string
	failTopic string
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][][]byte)}
}

func (f *fakeSender) Send(topic string, frame []byte) error {
	if topic == f.failTopic {
		return errFake
	}
	f.sent[topic] = append(f.sent[topic], frame)
	f.order = append(f.order, topic)
	return nil
}

var errFake = errors.New("fake send error")

func TestSendMessageSingleTopicEcho(t *testing.T) {
	sender := newFakeSender()
	d := New(message.NewStore(), message.NewQueue(), sender, false)

	ok := d.RegisterMessage("ping", message.Schema{"msg": ""}, []string{"Test"})
	require.True(t, ok)

	id, err := d.SendMessage("ping", map[string]interface{}{"msg": "hi"}, nil)
	require.NoError(t, err)

	want := message.NewPacket(message.Schema{"msg": "hi"}).ID
	require.Equal(t, want, id)
	require.Len(t, sender.sent["Test"], 1)
}

func TestSendMessageUnknownParamRejected(t *testing.T) {
	sender := newFakeSender()
	d := New(message.NewStore(), message.NewQueue(), sender, false)
	d.RegisterMessage("ping", message.Schema{"msg": ""}, []string{"Test"})

	_, err := d.SendMessage("ping", map[string]interface{}{"other": 1}, nil)
	require.Error(t, err)
	require.Empty(t, sender.sent["Test"])
}

func TestSendMessageMultiTopicFanOutOrder(t *testing.T) {
	sender := newFakeSender()
	d := New(message.NewStore(), message.NewQueue(), sender, false)
	d.RegisterMessage("m", message.Schema{"a": 0}, []string{"X", "Y"})

	_, err := d.SendMessage("m", nil, nil)
	require.NoError(t, err)
	require.Len(t, sender.sent["X"], 1)
	require.Len(t, sender.sent["Y"], 1)
	require.Equal(t, []string{"X", "Y"}, sender.order)
}

func TestSendMessageDispatchFailedFirstFailureWins(t *testing.T) {
	sender := newFakeSender()
	sender.failTopic = "Y"
	d := New(message.NewStore(), message.NewQueue(), sender, false)
	d.RegisterMessage("m", message.Schema{"a": 0}, []string{"X", "Y", "Z"})

	_, err := d.SendMessage("m", nil, nil)
	require.Error(t, err)
	require.Len(t, sender.sent["X"], 1)
	require.Empty(t, sender.sent["Z"], "later topics must not be attempted after the first failure")
}

func TestRegisterMessageDuplicateNameFails(t *testing.T) {
	sender := newFakeSender()
	d := New(message.NewStore(), message.NewQueue(), sender, false)

	require.True(t, d.RegisterMessage("m", message.Schema{"a": 0}, []string{"X"}))
	require.False(t, d.RegisterMessage("m", message.Schema{"a": 0}, []string{"X"}))
}

func TestOnInboundDeliversToRegisteredHandlerOnce(t *testing.T) {
	sender := newFakeSender()
	d := New(message.NewStore(), message.NewQueue(), sender, false)

	var calls int
	var gotID message.PacketID
	var gotPayload message.Schema
	d.RegisterHandler(func(id message.PacketID, result message.Schema) {
		calls++
		gotID = id
		gotPayload = result
	})

	p := message.NewPacket(message.Schema{"result": "ok"})
	frame, err := p.Marshal()
	require.NoError(t, err)

	require.NoError(t, d.OnInbound(frame))
	require.Equal(t, 1, calls)
	require.Equal(t, p.ID, gotID)
	require.Equal(t, "ok", gotPayload["result"])
}
