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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pingcap/errors"

	"github.com/bolt-server/bolt/pkg/boerr"
)

// PacketID is a content-addressed digest of a bound payload: a raw
// SHA-256 sum rendered as lowercase hex on the wire.
type PacketID [sha256.Size]byte

// String renders id as lowercase hex.
func (id PacketID) String() string {
	return hex.EncodeToString(id[:])
}

// ParsePacketID parses a lowercase-hex packet id as produced by String.
func ParsePacketID(s string) (PacketID, error) {
	var id PacketID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Trace(err)
	}
	if len(b) != sha256.Size {
		return id, errors.Errorf("packet id has wrong length: %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Packet is the outgoing/incoming unit: {id, payload}, where id is the
// content-addressed digest of payload's canonical encoding.
type Packet struct {
	ID      PacketID
	Payload Schema
}

// canonicalEncoding produces a deterministic byte encoding of a bound
// schema: field names sorted, joined as "field=value" pairs, so identical
// bindings always hash to the same id regardless of map iteration order.
func canonicalEncoding(payload Schema) []byte {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		fmt.Fprintf(&buf, "%v", payload[k])
	}
	return buf.Bytes()
}

// NewPacket binds payload into a Packet, computing its content-addressed
// id. Identical bindings always produce identical ids (P3); differing
// bindings produce different ids with cryptographic probability.
func NewPacket(payload Schema) Packet {
	return Packet{
		ID:      sha256.Sum256(canonicalEncoding(payload)),
		Payload: payload,
	}
}

// wireFrame is the self-describing text form of a Packet on the wire.
type wireFrame struct {
	ID      string                 `json:"id"`
	Payload map[string]interface{} `json:"payload"`
}

// Marshal serializes p to its wire form: a JSON-like text object with
// exactly the fields "id" and "payload".
func (p Packet) Marshal() ([]byte, error) {
	frame := wireFrame{
		ID:      p.ID.String(),
		Payload: p.Payload,
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return b, nil
}

// Unmarshal parses the wire form produced by Marshal, or by a client
// responding with the same {id, payload} shape.
func Unmarshal(b []byte) (Packet, error) {
	var frame wireFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		return Packet{}, boerr.ErrMalformedFrame.GenWithStackByArgs(err.Error())
	}
	id, err := ParsePacketID(frame.ID)
	if err != nil {
		return Packet{}, boerr.ErrMalformedFrame.GenWithStackByArgs(err.Error())
	}
	payload := make(Schema, len(frame.Payload))
	for k, v := range frame.Payload {
		payload[k] = v
	}
	return Packet{ID: id, Payload: payload}, nil
}
