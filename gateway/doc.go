// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the public front door.
//
// The [Gateway] listens on one control port and admits exactly one
// broker link at a time — the trusted control channel from the
// game-server process, authenticated by a shared token. Every other
// control connection is closed without explanation.
//
// For each session the link opens, the gateway spawns a [Worker]: an
// isolated transport endpoint on a freshly allocated ephemeral port,
// guarded by a random lease token, serving exactly one client
// WebSocket. The lease is reported back over the link only after the
// worker is confirmed listening, so a dead endpoint is never
// advertised. A worker that fails to reach the listening state within
// the spawn timeout is abandoned and its port and token are released.
//
// Worker isolation bounds the blast radius of the public-facing attack
// surface: a stall or failure in one client's transport handling
// occupies only that client's goroutines and socket, and the only
// thing that crosses from a worker to the shared session authority is
// an already-demultiplexed, identity-tagged frame. The ephemeral
// port and token are invalidated the moment the worker closes.
package gateway
