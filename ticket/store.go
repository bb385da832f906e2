// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"errors"
	"sync"
)

// ErrTicketNotFound is returned by Consume when the ticket ID is
// unknown — either never issued or already consumed. The two cases are
// deliberately indistinguishable: a replayed ticket must look exactly
// like a missing one.
var ErrTicketNotFound = errors.New("ticket: not found")

// Ticket is a pending one-time credential.
type Ticket struct {
	ID  string
	Key string
}

// Store holds pending tickets between out-of-band issuance and the
// claim handshake. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	pending map[string]Ticket
}

// NewStore returns an empty ticket store.
func NewStore() *Store {
	return &Store{pending: make(map[string]Ticket)}
}

// Issue inserts a pending ticket. Re-issuing an ID overwrites the
// previous key: the issuer is trusted, and the newer credential wins.
func (s *Store) Issue(ticketID, ticketKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[ticketID] = Ticket{ID: ticketID, Key: ticketKey}
}

// Consume removes and returns the pending ticket for ticketID. Exactly
// one of any set of concurrent callers succeeds; the rest (and any
// later replay) get ErrTicketNotFound.
func (s *Store) Consume(ticketID string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.pending[ticketID]
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	delete(s.pending, ticketID)
	return pending, nil
}

// Pending reports how many tickets are waiting to be claimed.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
