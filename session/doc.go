// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the authority that owns the account ↔
// connection mapping.
//
// The [Authority] is the only holder of session state. Every mutation
// (admission, publication, teardown) is an atomic step under one
// mutex, and the one invariant it exists to defend is: at most one
// live session per account at any instant.
//
// Admission resolves an identity — by claiming a one-time ticket
// against the identity service, or by synthesizing one in trust mode —
// and parks it as pending. Publication ([Authority.Connected]) binds
// the identity to its connection, but only after any previous
// connection for the same account has fully vacated: a takeover
// force-closes the old connection and then waits on its teardown
// signal, so the old session's cleanup always runs to completion
// before the new connection is published. The wait is a per-account
// done channel; unrelated accounts never block each other.
//
// Client events pass a whitelist before reaching game logic. An event
// outside the whitelist is a protocol violation that terminates the
// connection — a security boundary, not a recoverable error.
package session
