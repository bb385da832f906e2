// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a hex-encoded random token of 2*bytes characters. The
// randomness comes from crypto/rand; a read failure panics, since no
// part of the broker can operate safely with a guessable token.
func New(bytes int) string {
	buffer := make([]byte, bytes)
	if _, err := rand.Read(buffer); err != nil {
		panic("token: reading crypto/rand: " + err.Error())
	}
	return hex.EncodeToString(buffer)
}

// NewLease returns a worker lease token: 16 random bytes, 32 hex
// characters. Lease tokens guard the ephemeral per-session worker
// ports and are invalidated when the worker closes.
func NewLease() string { return New(16) }

// NewProtocol returns the per-process protocol token: 32 random bytes,
// 64 hex characters. The protocol token is minted once at startup and
// lets internal reconnections bypass the capacity check.
func NewProtocol() string { return New(32) }
