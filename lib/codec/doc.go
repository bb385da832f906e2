// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Foyer's standard CBOR encoding configuration.
//
// Foyer uses two serialization formats with a clear boundary:
//
//   - JSON for the external client-facing protocol: the WebSocket
//     frames exchanged with game clients, and the claim-session call
//     to the identity service.
//   - CBOR for the internal control protocol: the broker link between
//     the gateway and the game-server process.
//
// This package provides the shared CBOR encoding and decoding modes so
// that both ends of the control link encode identically. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the control socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// CBOR is self-delimiting, so the control protocol needs no framing
// layer on top of the stream encoder.
package codec
