// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"

	"github.com/foyer-project/foyer/lib/codec"
)

// Envelope is the control protocol's unit of transmission: an event
// name plus a CBOR payload decoded lazily by the handler registered
// for that event.
type Envelope struct {
	Event   string           `cbor:"event"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// User identifies one authenticated account. Immutable once resolved
// for a given session.
type User struct {
	AccountID string `cbor:"account_id"`
	Username  string `cbor:"username"`
}

// LinkRequest is the payload of EventLink.
type LinkRequest struct {
	Token string `cbor:"token"`
}

// LinkAck is the payload of EventLinked. It hands the game server the
// per-process protocol token, which it may pass to internal clients so
// their reconnections bypass the capacity check.
type LinkAck struct {
	ProtocolToken string `cbor:"protocol_token"`
}

// OpenRequest is the payload of EventOpen: the game-server process
// asks the gateway to spawn a session worker for this account.
type OpenRequest struct {
	Username  string `cbor:"username"`
	WorkerID  string `cbor:"worker_id"`
	AccountID string `cbor:"account_id"`
}

// Lease is the payload of EventLease: the ephemeral, token-guarded
// endpoint one client may connect to. The port and token are valid for
// exactly one session and are invalidated when the worker closes.
type Lease struct {
	UserID string `cbor:"user_id"`
	Port   int    `cbor:"port"`
	Token  string `cbor:"token"`
}

// IssueTicket is the payload of EventIssueTicket.
type IssueTicket struct {
	TicketID  string `cbor:"ticket_id"`
	TicketKey string `cbor:"ticket_key"`
}

// UserData is the payload of EventUserData in the downstream
// direction: deliver Message under Event to every account in Users.
// Users containing TargetAll means broadcast. Message is opaque JSON,
// passed through to client frames untouched.
type UserData struct {
	Users   []string `cbor:"users"`
	Event   string   `cbor:"event"`
	Message []byte   `cbor:"message,omitempty"`
}

// TaggedData is the payload of EventUserData in the upstream
// direction: a whitelisted client event, tagged with the identity that
// owns the originating connection.
type TaggedData struct {
	User    User   `cbor:"user"`
	Event   string `cbor:"event"`
	Message []byte `cbor:"message,omitempty"`
}

// RoomMembership is the payload of EventAddRoom and EventRemoveRoom.
type RoomMembership struct {
	RoomID    string `cbor:"room_id"`
	AccountID string `cbor:"account_id"`
}

// RoomData is the payload of EventRoomData.
type RoomData struct {
	RoomID  string `cbor:"room_id"`
	Event   string `cbor:"event"`
	Message []byte `cbor:"message,omitempty"`
}

// DisconnectUser is the payload of EventDisconnectUser.
type DisconnectUser struct {
	ConnectionID string `cbor:"connection_id"`
}

// UserEvent is the payload of EventUserJoined and EventUserLeft. The
// connection ID is the handle EventDisconnectUser takes.
type UserEvent struct {
	ConnectionID string `cbor:"connection_id"`
	User         User   `cbor:"user"`
}

// ClientFrame is the JSON envelope exchanged with clients over their
// session WebSocket.
type ClientFrame struct {
	Event   string          `json:"event"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Hello is the handshake a client presents on connect:
// [protocolToken, ticketId, sessionId, token]. The fields are opaque
// to the transport; the session authority decides admission.
type Hello struct {
	ProtocolToken string
	TicketID      string
	SessionID     string
	Token         string
}

// Welcome is the payload of EventWelcome.
type Welcome struct {
	Datetime int64 `json:"datetime"`
	User     struct {
		AccountID string `json:"account_id"`
		Username  string `json:"username"`
	} `json:"user"`
}

// NewWelcome builds the welcome payload for a published session.
func NewWelcome(unixMillis int64, accountID, username string) Welcome {
	var welcome Welcome
	welcome.Datetime = unixMillis
	welcome.User.AccountID = accountID
	welcome.User.Username = username
	return welcome
}
