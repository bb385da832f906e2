// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/foyer-project/foyer/lib/clock"
	"github.com/foyer-project/foyer/ticket"
	"github.com/foyer-project/foyer/wire"
)

// Errors surfaced by admission and event handling. All are terminal
// for the connection that triggered them; none leak to the client
// beyond the connection being closed.
var (
	ErrAccountAtCapacity = errors.New("session: at capacity")
	ErrProtocolViolation = errors.New("session: event outside whitelist")
	ErrUnknownConnection = errors.New("session: connection has no resolved identity")
)

// Sender is the authority's handle on one client transport. SendFrame
// delivers a JSON frame; Close force-closes the transport, which must
// eventually drive Disconnected for the same connection.
type Sender interface {
	SendFrame(event string, message []byte) error
	Close()
}

// GameLink carries the authority's output toward game logic. The
// broker link implements it in production; tests use channel fakes.
// Implementations must not block indefinitely.
type GameLink interface {
	UserJoined(connectionID string, user wire.User)
	UserLeft(connectionID string, user wire.User)
	UserData(user wire.User, event string, message []byte)
}

// Claimer is the subset of the ticket claimer the authority needs.
type Claimer interface {
	Claim(ctx context.Context, request ticket.ClaimRequest) (ticket.Identity, error)
}

// Config configures an Authority.
type Config struct {
	// TrustMode admits every connection without a ticket claim and
	// synthesizes a fresh random account per connection. Development
	// only.
	TrustMode bool

	// ProtocolToken is the per-process token that lets internal
	// reconnections bypass the capacity check.
	ProtocolToken string

	// Capacity is the maximum number of admitted users (pending plus
	// live). Zero means unlimited.
	Capacity int

	// Tickets is the pending ticket store. Required unless TrustMode.
	Tickets *ticket.Store

	// Claimer performs the external claim call. Required unless
	// TrustMode.
	Claimer Claimer

	// Whitelist is the set of client event names allowed through to
	// game logic.
	Whitelist wire.Whitelist

	// Game receives joined/left/data output.
	Game GameLink

	Clock  clock.Clock
	Logger *slog.Logger
}

// binding is one published session: the live association of an
// account with a connection.
type binding struct {
	connectionID string
	user         wire.User
	sender       Sender

	// released is closed when this binding has fully vacated its
	// account slot. A takeover for the same account waits on it.
	released chan struct{}
}

// Authority owns the session tables and enforces the one-session-per-
// account invariant. All exported methods are safe for concurrent use.
type Authority struct {
	config Config
	logger *slog.Logger

	mu sync.Mutex
	// pending holds identities that passed admission but have not yet
	// been published by Connected, keyed by connection ID.
	pending map[string]wire.User
	// connections and accounts index the same bindings both ways.
	connections map[string]*binding
	accounts    map[string]*binding
	// rooms maps room IDs to member connection IDs.
	rooms map[string]map[string]struct{}
}

// New creates an Authority. Panics on an unusable configuration, since
// the broker cannot run without a working authority.
func New(config Config) *Authority {
	if !config.TrustMode {
		if config.Tickets == nil || config.Claimer == nil {
			panic("session: production mode requires a ticket store and claimer")
		}
	}
	if config.Game == nil {
		panic("session: game link is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Authority{
		config:      config,
		logger:      config.Logger,
		pending:     make(map[string]wire.User),
		connections: make(map[string]*binding),
		accounts:    make(map[string]*binding),
		rooms:       make(map[string]map[string]struct{}),
	}
}

// Admit decides whether the connection presenting hello may proceed.
// On success the resolved identity is parked as pending for
// connectionID until Connected publishes it.
//
// Production mode consumes and claims the handshake's ticket. When the
// claimed account already owns a live session, the old connection is
// force-closed and the new one takes over (newest wins) — Connected
// then waits for the old teardown to complete before publishing.
func (a *Authority) Admit(ctx context.Context, connectionID string, hello wire.Hello) error {
	if a.config.TrustMode {
		// Trust-on-connect: fresh random account, username taken from
		// the ticket ID field of the handshake.
		user := wire.User{
			AccountID: uuid.NewString(),
			Username:  hello.TicketID,
		}
		a.mu.Lock()
		a.pending[connectionID] = user
		a.mu.Unlock()
		a.logger.Info("admitted (trust mode)",
			"connection_id", connectionID, "account_id", user.AccountID)
		return nil
	}

	// The capacity check is bypassed for correctly-tokened internal
	// reconnections; everyone else is rejected when full.
	if hello.ProtocolToken != a.config.ProtocolToken && a.atCapacity() {
		a.logger.Warn("admission rejected: at capacity", "connection_id", connectionID)
		return ErrAccountAtCapacity
	}

	consumed, err := a.config.Tickets.Consume(hello.TicketID)
	if err != nil {
		a.logger.Warn("admission rejected: ticket",
			"connection_id", connectionID, "ticket_id", hello.TicketID, "error", err)
		return err
	}

	// The ticket is consumed no matter what the claim says: a failed
	// external call must not leave the ticket replayable.
	identity, err := a.config.Claimer.Claim(ctx, ticket.ClaimRequest{
		TicketID:  consumed.ID,
		TicketKey: consumed.Key,
		SessionID: hello.SessionID,
		Token:     hello.Token,
	})
	if err != nil {
		a.logger.Warn("admission rejected: claim",
			"connection_id", connectionID, "ticket_id", hello.TicketID, "error", err)
		return err
	}

	user := wire.User{AccountID: identity.AccountID, Username: identity.Username}

	var evict Sender
	a.mu.Lock()
	// Newest wins: an existing live session for this account is
	// force-closed; its teardown releases the slot Connected waits
	// for. A stale pending admission for the account is dropped.
	if current, ok := a.accounts[user.AccountID]; ok {
		evict = current.sender
	}
	for pendingConnection, pendingUser := range a.pending {
		if pendingUser.AccountID == user.AccountID {
			delete(a.pending, pendingConnection)
		}
	}
	a.pending[connectionID] = user
	a.mu.Unlock()

	if evict != nil {
		a.logger.Info("evicting previous connection for account",
			"account_id", user.AccountID, "connection_id", connectionID)
		evict.Close()
	}

	a.logger.Info("admitted",
		"connection_id", connectionID,
		"account_id", user.AccountID,
		"username", user.Username)
	return nil
}

// Connected publishes the pending identity for connectionID, waiting
// first for any previous connection of the same account to fully
// vacate. The wait is bounded by ctx; teardown of the old connection
// releases it independently, so a completed teardown never deadlocks
// a waiter.
//
// A connection with no pending identity slipped past admission; it is
// closed immediately.
func (a *Authority) Connected(ctx context.Context, connectionID string, sender Sender) error {
	a.mu.Lock()
	user, ok := a.pending[connectionID]
	a.mu.Unlock()
	if !ok {
		sender.Close()
		return ErrUnknownConnection
	}

	for {
		a.mu.Lock()
		// The pending entry may have been dropped by a newer admission
		// for the same account while we waited.
		if _, stillPending := a.pending[connectionID]; !stillPending {
			a.mu.Unlock()
			sender.Close()
			return ErrUnknownConnection
		}
		current, occupied := a.accounts[user.AccountID]
		if !occupied {
			published := &binding{
				connectionID: connectionID,
				user:         user,
				sender:       sender,
				released:     make(chan struct{}),
			}
			delete(a.pending, connectionID)
			a.connections[connectionID] = published
			a.accounts[user.AccountID] = published
			a.mu.Unlock()

			a.logger.Info("session published",
				"connection_id", connectionID,
				"account_id", user.AccountID,
				"username", user.Username)

			a.config.Game.UserJoined(connectionID, user)
			a.sendWelcome(published)
			return nil
		}
		released := current.released
		a.mu.Unlock()

		select {
		case <-released:
			// Old connection vacated; try to publish.
		case <-ctx.Done():
			a.mu.Lock()
			delete(a.pending, connectionID)
			a.mu.Unlock()
			sender.Close()
			return fmt.Errorf("waiting for account %s to vacate: %w", user.AccountID, ctx.Err())
		}
	}
}

// Disconnected tears down whatever state connectionID holds: the
// published binding, room memberships, or a pending admission. It is a
// no-op for connections that were rejected before the handshake
// completed. Teardown closes the binding's release channel last, so a
// takeover waiting in Connected observes fully completed cleanup.
func (a *Authority) Disconnected(connectionID string) {
	defer a.recoverHandler("disconnected", connectionID)

	a.mu.Lock()
	delete(a.pending, connectionID)

	published, ok := a.connections[connectionID]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.connections, connectionID)
	if a.accounts[published.user.AccountID] == published {
		delete(a.accounts, published.user.AccountID)
	}
	for roomID, members := range a.rooms {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(a.rooms, roomID)
		}
	}
	a.mu.Unlock()

	a.logger.Info("session closed",
		"connection_id", connectionID,
		"account_id", published.user.AccountID)

	// The release channel is closed only after the departure
	// notification returns, so a takeover waiting in Connected can
	// never announce the new session while the old one's departure is
	// still in flight. The deferred close also runs if UserLeft
	// panics, so the waiter is never stranded.
	defer close(published.released)
	a.config.Game.UserLeft(connectionID, published.user)
}

// ClientEvent applies the whitelist to one client-originated event.
// Whitelisted events are forwarded to game logic tagged with the
// owning identity. Anything else closes the connection and returns
// ErrProtocolViolation so the caller stops reading.
func (a *Authority) ClientEvent(connectionID, event string, message []byte) error {
	defer a.recoverHandler("client_event", connectionID)

	a.mu.Lock()
	published, ok := a.connections[connectionID]
	a.mu.Unlock()
	if !ok {
		// Frame raced with teardown; nothing to forward.
		return nil
	}

	if !a.config.Whitelist.Allows(event) {
		a.logger.Warn("protocol violation, closing connection",
			"connection_id", connectionID,
			"account_id", published.user.AccountID,
			"event", event)
		published.sender.Close()
		return ErrProtocolViolation
	}

	a.config.Game.UserData(published.user, event, message)
	return nil
}

// SessionCount reports the number of published sessions.
func (a *Authority) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.connections)
}

// atCapacity reports whether admitted users (pending plus live) have
// reached the configured limit.
func (a *Authority) atCapacity() bool {
	if a.config.Capacity <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)+len(a.connections) >= a.config.Capacity
}

// sendWelcome delivers the first frame of a published session.
func (a *Authority) sendWelcome(published *binding) {
	welcome := wire.NewWelcome(
		a.config.Clock.Now().UnixMilli(),
		published.user.AccountID,
		published.user.Username,
	)
	message, err := json.Marshal(welcome)
	if err != nil {
		a.logger.Error("encoding welcome frame", "error", err)
		return
	}
	if err := published.sender.SendFrame(wire.EventWelcome, message); err != nil {
		a.logger.Warn("sending welcome frame",
			"connection_id", published.connectionID, "error", err)
	}
}

// recoverHandler fault-isolates a per-connection handler body: a panic
// while processing one connection's action is logged and dropped, and
// must not affect other connections or the authority itself.
func (a *Authority) recoverHandler(handler, subject string) {
	if recovered := recover(); recovered != nil {
		a.logger.Error("handler panic",
			"handler", handler,
			"subject", subject,
			"panic", recovered,
			"stack", string(debug.Stack()))
	}
}
