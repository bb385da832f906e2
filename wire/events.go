// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Control events sent by the game-server process over the broker link.
const (
	// EventLink is the first envelope on a new control connection: it
	// presents the shared link credential. The gateway answers with
	// EventLinked or closes the connection.
	EventLink = "LINK"

	// EventOpen asks the gateway to materialize a session worker for
	// an account. The gateway answers with EventLease once the worker
	// is listening.
	EventOpen = "OPEN"

	// EventIssueTicket seeds the ticket store with a pending one-time
	// ticket. Tickets arrive over the trusted link before the client
	// they were issued to ever connects.
	EventIssueTicket = "ISSUE_TICKET"

	// EventUserData routes an opaque payload to clients. Downstream
	// (game to gateway) it carries a target list; upstream (gateway to
	// game) it carries the originating user.
	EventUserData = "USER_DATA"

	// EventAddRoom and EventRemoveRoom maintain room membership for
	// room-scoped routing.
	EventAddRoom    = "ADD_ROOM"
	EventRemoveRoom = "REMOVE_ROOM"

	// EventRoomData routes an opaque payload to every member of a room.
	EventRoomData = "ROOM_DATA"

	// EventDisconnectUser force-closes one connection.
	EventDisconnectUser = "DISCONNECT_USER"
)

// Control events sent by the gateway over the broker link.
const (
	// EventLinked acknowledges a successful EventLink admission.
	EventLinked = "LINKED"

	// EventLease answers EventOpen with the ephemeral endpoint the
	// client should connect to.
	EventLease = "LEASE"

	// EventUserJoined and EventUserLeft report session lifecycle.
	EventUserJoined = "USER_JOINED"
	EventUserLeft   = "USER_LEFT"
)

// Events sent to clients over their session WebSocket.
const (
	// EventWelcome is the first frame a client receives after its
	// session is published.
	EventWelcome = "welcome"
)

// TargetAll is the broadcast target: EventUserData with users
// containing TargetAll is delivered to every connected session.
const TargetAll = "*"

// Whitelist is the set of event names a client connection is permitted
// to send toward game logic. Any event outside the set is a protocol
// violation that terminates the connection.
type Whitelist map[string]struct{}

// NewWhitelist builds a Whitelist from a list of event names.
func NewWhitelist(events ...string) Whitelist {
	list := make(Whitelist, len(events))
	for _, event := range events {
		list[event] = struct{}{}
	}
	return list
}

// Allows reports whether the event name may cross the boundary.
func (w Whitelist) Allows(event string) bool {
	_, ok := w[event]
	return ok
}

// ClientWhitelist returns the fixed set of client events the game
// understands. Everything else a client sends is hostile or broken.
func ClientWhitelist() Whitelist {
	return NewWhitelist(
		"join_room",
		"pointer_tile",
		"message",
		"typing_start",
		"typing_end",
	)
}
