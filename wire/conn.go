// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"net"
	"sync"

	"github.com/foyer-project/foyer/lib/codec"
)

// Conn is one end of the control link: CBOR envelopes over a stream
// transport. Send is safe for concurrent use; Receive must be called
// from a single reader goroutine.
type Conn struct {
	conn    net.Conn
	decoder *codec.Decoder

	// writeMu serializes envelope writes. Session handlers, the room
	// router, and the lease path all send on the same link.
	writeMu sync.Mutex
	encoder *codec.Encoder
}

// NewConn wraps a stream connection in the control protocol.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		decoder: codec.NewDecoder(conn),
	}
}

// Send encodes payload and writes it under the given event name.
// A nil payload sends an envelope with no payload field.
func (c *Conn) Send(event string, payload any) error {
	var raw codec.RawMessage
	if payload != nil {
		encoded, err := codec.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", event, err)
		}
		raw = encoded
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.Encode(Envelope{Event: event, Payload: raw}); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	return nil
}

// Receive blocks until the next envelope arrives.
func (c *Conn) Receive() (Envelope, error) {
	var envelope Envelope
	if err := c.decoder.Decode(&envelope); err != nil {
		return Envelope{}, err
	}
	return envelope, nil
}

// Close tears down the underlying transport. A blocked Receive returns
// with an error.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr reports the peer address, for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
