// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "slices"

// Route delivers an opaque payload to each targeted account's live
// connection. A target list containing the broadcast marker "*" hits
// every published session. Accounts without a live session are
// silently skipped — offline delivery is neither guaranteed nor
// queued.
func (a *Authority) Route(users []string, event string, message []byte) {
	defer a.recoverHandler("route", event)

	var targets []*binding
	a.mu.Lock()
	if slices.Contains(users, "*") {
		targets = make([]*binding, 0, len(a.connections))
		for _, published := range a.connections {
			targets = append(targets, published)
		}
	} else {
		for _, accountID := range users {
			if published, ok := a.accounts[accountID]; ok {
				targets = append(targets, published)
			}
		}
	}
	a.mu.Unlock()

	for _, published := range targets {
		a.deliver(published, event, message)
	}
}

// AddToRoom adds the account's live connection to a room. Unknown or
// offline accounts are ignored.
func (a *Authority) AddToRoom(roomID, accountID string) {
	defer a.recoverHandler("add_room", roomID)

	a.mu.Lock()
	defer a.mu.Unlock()
	published, ok := a.accounts[accountID]
	if !ok {
		return
	}
	members, ok := a.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		a.rooms[roomID] = members
	}
	members[published.connectionID] = struct{}{}
}

// RemoveFromRoom removes the account's live connection from a room.
func (a *Authority) RemoveFromRoom(roomID, accountID string) {
	defer a.recoverHandler("remove_room", roomID)

	a.mu.Lock()
	defer a.mu.Unlock()
	published, ok := a.accounts[accountID]
	if !ok {
		return
	}
	members, ok := a.rooms[roomID]
	if !ok {
		return
	}
	delete(members, published.connectionID)
	if len(members) == 0 {
		delete(a.rooms, roomID)
	}
}

// RoomData delivers an opaque payload to every member of a room.
func (a *Authority) RoomData(roomID, event string, message []byte) {
	defer a.recoverHandler("room_data", roomID)

	var targets []*binding
	a.mu.Lock()
	for connectionID := range a.rooms[roomID] {
		if published, ok := a.connections[connectionID]; ok {
			targets = append(targets, published)
		}
	}
	a.mu.Unlock()

	for _, published := range targets {
		a.deliver(published, event, message)
	}
}

// CloseConnection force-closes one connection by ID, on behalf of game
// logic. The transport close drives Disconnected as usual. Unknown
// connection IDs are ignored.
func (a *Authority) CloseConnection(connectionID string) {
	defer a.recoverHandler("disconnect_user", connectionID)

	a.mu.Lock()
	published, ok := a.connections[connectionID]
	a.mu.Unlock()
	if ok {
		published.sender.Close()
	}
}

// deliver writes one frame, logging and dropping on failure. A failed
// write is the worker's problem to surface as a disconnect; the
// authority never retries.
func (a *Authority) deliver(published *binding, event string, message []byte) {
	if err := published.sender.SendFrame(event, message); err != nil {
		a.logger.Debug("dropping frame",
			"connection_id", published.connectionID,
			"event", event,
			"error", err)
	}
}
