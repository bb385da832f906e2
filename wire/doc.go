// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the broker's two protocols.
//
// The control protocol runs over the single broker link between the
// gateway and the game-server process: a bidirectional stream of
// CBOR-encoded [Envelope] values (self-delimiting, no extra framing).
// [Conn] wraps a net.Conn with the shared codec configuration and a
// write lock so concurrent handlers can send safely.
//
// The client protocol runs over each per-session WebSocket: JSON
// [ClientFrame] values. Client message payloads are opaque to the
// broker — they cross the control link as raw JSON bytes and are never
// interpreted, only tagged with the owning identity.
//
// [Hello] is the four-field handshake a client presents on connect via
// the WebSocket subprotocol list. [Whitelist] is the security boundary
// limiting which client-originated event names reach game logic.
package wire
