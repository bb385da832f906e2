// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/foyer-project/foyer/lib/clock"
	"github.com/foyer-project/foyer/lib/testutil"
	"github.com/foyer-project/foyer/ticket"
	"github.com/foyer-project/foyer/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// frame is one delivered client frame, for assertions.
type frame struct {
	event   string
	message string
}

// fakeSender stands in for a worker transport. Close simulates the
// real teardown path: the transport drops, the worker's read loop
// exits, and Disconnected fires for the connection.
type fakeSender struct {
	connectionID string
	authority    *Authority

	frames chan frame
	closed chan struct{}
	once   sync.Once
}

func newFakeSender(connectionID string) *fakeSender {
	return &fakeSender{
		connectionID: connectionID,
		frames:       make(chan frame, 32),
		closed:       make(chan struct{}),
	}
}

func (s *fakeSender) SendFrame(event string, message []byte) error {
	s.frames <- frame{event: event, message: string(message)}
	return nil
}

func (s *fakeSender) Close() {
	s.once.Do(func() {
		close(s.closed)
		if s.authority != nil {
			go s.authority.Disconnected(s.connectionID)
		}
	})
}

// fakeGame collects authority output on channels.
type fakeGame struct {
	joined chan wire.User
	left   chan wire.User
	data   chan wire.TaggedData
}

func newFakeGame() *fakeGame {
	return &fakeGame{
		joined: make(chan wire.User, 32),
		left:   make(chan wire.User, 32),
		data:   make(chan wire.TaggedData, 32),
	}
}

func (g *fakeGame) UserJoined(_ string, user wire.User) { g.joined <- user }
func (g *fakeGame) UserLeft(_ string, user wire.User)   { g.left <- user }
func (g *fakeGame) UserData(user wire.User, event string, message []byte) {
	g.data <- wire.TaggedData{User: user, Event: event, Message: message}
}

// claimFunc adapts a function to the Claimer interface.
type claimFunc func(ctx context.Context, request ticket.ClaimRequest) (ticket.Identity, error)

func (f claimFunc) Claim(ctx context.Context, request ticket.ClaimRequest) (ticket.Identity, error) {
	return f(ctx, request)
}

// fixedClaimer accepts every claim as the given identity.
func fixedClaimer(identity ticket.Identity) Claimer {
	return claimFunc(func(context.Context, ticket.ClaimRequest) (ticket.Identity, error) {
		return identity, nil
	})
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// connect admits and publishes one connection, wiring the fake sender
// to the authority's teardown path.
func connect(t *testing.T, authority *Authority, connectionID string, hello wire.Hello) *fakeSender {
	t.Helper()
	sender := newFakeSender(connectionID)
	sender.authority = authority
	if err := authority.Admit(testContext(t), connectionID, hello); err != nil {
		t.Fatalf("Admit(%s): %v", connectionID, err)
	}
	if err := authority.Connected(testContext(t), connectionID, sender); err != nil {
		t.Fatalf("Connected(%s): %v", connectionID, err)
	}
	return sender
}

func TestTrustModePublishesSession(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Clock:     clock.Fake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)),
		Logger:    testLogger(),
	})

	sender := connect(t, authority, "c1", wire.Hello{TicketID: "bob"})

	joined := testutil.RequireReceive(t, game.joined, 5*time.Second, "waiting for joined")
	if joined.Username != "bob" {
		t.Errorf("joined username = %q, want %q", joined.Username, "bob")
	}
	if joined.AccountID == "" {
		t.Error("trust mode did not synthesize an account ID")
	}

	welcome := testutil.RequireReceive(t, sender.frames, 5*time.Second, "waiting for welcome")
	if welcome.event != wire.EventWelcome {
		t.Errorf("first frame event = %q, want %q", welcome.event, wire.EventWelcome)
	}
	if authority.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, want 1", authority.SessionCount())
	}
}

func TestTrustModeSynthesizesDistinctAccounts(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	connect(t, authority, "c1", wire.Hello{TicketID: "alice"})
	connect(t, authority, "c2", wire.Hello{TicketID: "alice"})

	first := testutil.RequireReceive(t, game.joined, 5*time.Second, "first joined")
	second := testutil.RequireReceive(t, game.joined, 5*time.Second, "second joined")
	if first.AccountID == second.AccountID {
		t.Error("trust mode reused an account ID across connections")
	}
	if authority.SessionCount() != 2 {
		t.Errorf("SessionCount = %d, want 2", authority.SessionCount())
	}
}

func TestTicketAdmissionConsumesOnce(t *testing.T) {
	store := ticket.NewStore()
	store.Issue("T1", "K1")

	var claims int
	var claimsMu sync.Mutex
	claimer := claimFunc(func(_ context.Context, request ticket.ClaimRequest) (ticket.Identity, error) {
		claimsMu.Lock()
		claims++
		claimsMu.Unlock()
		if request.TicketKey != "K1" {
			t.Errorf("claim used key %q, want stored key K1", request.TicketKey)
		}
		return ticket.Identity{AccountID: "A1", Username: "bob"}, nil
	})

	game := newFakeGame()
	authority := New(Config{
		ProtocolToken: "proto",
		Tickets:       store,
		Claimer:       claimer,
		Whitelist:     wire.ClientWhitelist(),
		Game:          game,
		Logger:        testLogger(),
	})

	hello := wire.Hello{ProtocolToken: "wrong", TicketID: "T1", SessionID: "s1", Token: "tk1"}
	connect(t, authority, "c1", hello)

	joined := testutil.RequireReceive(t, game.joined, 5*time.Second, "waiting for joined")
	if joined.AccountID != "A1" {
		t.Errorf("joined account = %q, want A1", joined.AccountID)
	}

	// Same ticket again: consumed, terminal rejection.
	if err := authority.Admit(testContext(t), "c2", hello); !errors.Is(err, ticket.ErrTicketNotFound) {
		t.Errorf("replayed ticket: error = %v, want ErrTicketNotFound", err)
	}

	claimsMu.Lock()
	defer claimsMu.Unlock()
	if claims != 1 {
		t.Errorf("claim endpoint invoked %d times, want exactly 1", claims)
	}
}

func TestFailedClaimStillConsumesTicket(t *testing.T) {
	store := ticket.NewStore()
	store.Issue("T1", "K1")

	claimer := claimFunc(func(context.Context, ticket.ClaimRequest) (ticket.Identity, error) {
		return ticket.Identity{}, ticket.ErrClaimRejected
	})
	authority := New(Config{
		Tickets:   store,
		Claimer:   claimer,
		Whitelist: wire.ClientWhitelist(),
		Game:      newFakeGame(),
		Logger:    testLogger(),
	})

	hello := wire.Hello{TicketID: "T1"}
	if err := authority.Admit(testContext(t), "c1", hello); !errors.Is(err, ticket.ErrClaimRejected) {
		t.Fatalf("Admit error = %v, want ErrClaimRejected", err)
	}
	// The transient failure must not leave the ticket replayable.
	if err := authority.Admit(testContext(t), "c2", hello); !errors.Is(err, ticket.ErrTicketNotFound) {
		t.Errorf("second Admit error = %v, want ErrTicketNotFound", err)
	}
}

func TestCapacityRejectsWrongToken(t *testing.T) {
	store := ticket.NewStore()
	store.Issue("T1", "K1")
	store.Issue("T2", "K2")

	claimer := claimFunc(func(context.Context, ticket.ClaimRequest) (ticket.Identity, error) {
		return ticket.Identity{AccountID: testutil.UniqueID("acct"), Username: "u"}, nil
	})
	authority := New(Config{
		ProtocolToken: "proto",
		Capacity:      1,
		Tickets:       store,
		Claimer:       claimer,
		Whitelist:     wire.ClientWhitelist(),
		Game:          newFakeGame(),
		Logger:        testLogger(),
	})

	connect(t, authority, "c1", wire.Hello{TicketID: "T1"})

	// At capacity with a wrong protocol token: immediate rejection,
	// before the ticket store is touched.
	err := authority.Admit(testContext(t), "c2", wire.Hello{ProtocolToken: "wrong", TicketID: "T2"})
	if !errors.Is(err, ErrAccountAtCapacity) {
		t.Fatalf("Admit error = %v, want ErrAccountAtCapacity", err)
	}
	if _, consumeErr := store.Consume("T2"); consumeErr != nil {
		t.Error("capacity rejection must not consume the ticket")
	}
	store.Issue("T3", "K3")

	// The correct protocol token bypasses the capacity check.
	if err := authority.Admit(testContext(t), "c3", wire.Hello{ProtocolToken: "proto", TicketID: "T3"}); err != nil {
		t.Errorf("tokened Admit at capacity: %v, want admission", err)
	}
}

func TestWhitelistViolationClosesConnection(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	sender := connect(t, authority, "c1", wire.Hello{TicketID: "bob"})
	testutil.RequireReceive(t, game.joined, 5*time.Second, "waiting for joined")

	if err := authority.ClientEvent("c1", "drop_table", []byte(`{}`)); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("ClientEvent error = %v, want ErrProtocolViolation", err)
	}
	testutil.RequireClosed(t, sender.closed, 5*time.Second, "connection closed on violation")
	testutil.RequireNoReceive(t, game.data, 100*time.Millisecond, "violating event must not be forwarded")
}

func TestWhitelistedEventForwardedTagged(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	connect(t, authority, "c1", wire.Hello{TicketID: "bob"})
	joined := testutil.RequireReceive(t, game.joined, 5*time.Second, "waiting for joined")

	if err := authority.ClientEvent("c1", "message", []byte(`{"text":"hi"}`)); err != nil {
		t.Fatalf("ClientEvent: %v", err)
	}
	data := testutil.RequireReceive(t, game.data, 5*time.Second, "waiting for forwarded event")
	if data.Event != "message" {
		t.Errorf("forwarded event = %q, want message", data.Event)
	}
	if data.User.AccountID != joined.AccountID {
		t.Errorf("forwarded account = %q, want %q", data.User.AccountID, joined.AccountID)
	}
	if string(data.Message) != `{"text":"hi"}` {
		t.Errorf("forwarded message = %s, want untouched payload", data.Message)
	}
}

func TestRouteBroadcastAndTargeted(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	alice := connect(t, authority, "c1", wire.Hello{TicketID: "alice"})
	aliceUser := testutil.RequireReceive(t, game.joined, 5*time.Second, "alice joined")
	bob := connect(t, authority, "c2", wire.Hello{TicketID: "bob"})
	testutil.RequireReceive(t, game.joined, 5*time.Second, "bob joined")

	// Welcome frames first.
	testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice welcome")
	testutil.RequireReceive(t, bob.frames, 5*time.Second, "bob welcome")

	authority.Route([]string{wire.TargetAll}, "tick", []byte(`1`))
	if got := testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice broadcast"); got.event != "tick" {
		t.Errorf("alice got %q, want tick", got.event)
	}
	if got := testutil.RequireReceive(t, bob.frames, 5*time.Second, "bob broadcast"); got.event != "tick" {
		t.Errorf("bob got %q, want tick", got.event)
	}

	// Targeted delivery skips everyone else and unknown accounts.
	authority.Route([]string{aliceUser.AccountID, "offline-account"}, "ping", nil)
	if got := testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice targeted"); got.event != "ping" {
		t.Errorf("alice got %q, want ping", got.event)
	}
	testutil.RequireNoReceive(t, bob.frames, 100*time.Millisecond, "bob must not receive targeted frame")
}

func TestBroadcastSkipsDisconnected(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	alice := connect(t, authority, "c1", wire.Hello{TicketID: "alice"})
	bob := connect(t, authority, "c2", wire.Hello{TicketID: "bob"})
	testutil.RequireReceive(t, game.joined, 5*time.Second, "alice joined")
	testutil.RequireReceive(t, game.joined, 5*time.Second, "bob joined")
	testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice welcome")
	testutil.RequireReceive(t, bob.frames, 5*time.Second, "bob welcome")

	authority.Disconnected("c2")
	testutil.RequireReceive(t, game.left, 5*time.Second, "bob left")

	authority.Route([]string{wire.TargetAll}, "tick", nil)
	if got := testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice broadcast"); got.event != "tick" {
		t.Errorf("alice got %q, want tick", got.event)
	}
	testutil.RequireNoReceive(t, bob.frames, 100*time.Millisecond, "disconnected session must not receive broadcast")
}

func TestReconnectTakeover(t *testing.T) {
	store := ticket.NewStore()
	store.Issue("T1", "K1")
	store.Issue("T2", "K2")

	game := newFakeGame()
	authority := New(Config{
		Tickets:   store,
		Claimer:   fixedClaimer(ticket.Identity{AccountID: "A1", Username: "bob"}),
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	first := connect(t, authority, "c1", wire.Hello{TicketID: "T1"})
	testutil.RequireReceive(t, game.joined, 5*time.Second, "first joined")

	// Second login for the same account: the old connection is
	// force-closed and its teardown completes before the new session
	// publishes.
	second := newFakeSender("c2")
	second.authority = authority
	if err := authority.Admit(testContext(t), "c2", wire.Hello{TicketID: "T2"}); err != nil {
		t.Fatalf("takeover Admit: %v", err)
	}
	testutil.RequireClosed(t, first.closed, 5*time.Second, "old connection force-closed")

	if err := authority.Connected(testContext(t), "c2", second); err != nil {
		t.Fatalf("takeover Connected: %v", err)
	}

	left := testutil.RequireReceive(t, game.left, 5*time.Second, "old session left")
	if left.AccountID != "A1" {
		t.Errorf("left account = %q, want A1", left.AccountID)
	}
	joined := testutil.RequireReceive(t, game.joined, 5*time.Second, "new session joined")
	if joined.AccountID != "A1" {
		t.Errorf("joined account = %q, want A1", joined.AccountID)
	}
	if authority.SessionCount() != 1 {
		t.Errorf("SessionCount = %d after takeover, want 1", authority.SessionCount())
	}
}

// orderedGame records join/leave notifications in arrival order and
// holds each departure open briefly, widening the window in which a
// takeover could overtake the evicted session's teardown.
type orderedGame struct {
	fakeGame

	mu     sync.Mutex
	events []string
}

func (g *orderedGame) record(event string) {
	g.mu.Lock()
	g.events = append(g.events, event)
	g.mu.Unlock()
}

func (g *orderedGame) UserJoined(connectionID string, user wire.User) {
	g.record("joined:" + connectionID)
	g.fakeGame.UserJoined(connectionID, user)
}

func (g *orderedGame) UserLeft(connectionID string, user wire.User) {
	g.record("left:" + connectionID)
	time.Sleep(50 * time.Millisecond)
	g.fakeGame.UserLeft(connectionID, user)
}

// During a takeover the evicted connection's departure must be fully
// delivered before the replacement announces itself, even when the
// departure handler is slow. Otherwise the game server would observe
// JOINED(new) then LEFT(old) for the same account and tear down the
// session it just added.
func TestTakeoverOrdersLeftBeforeJoined(t *testing.T) {
	store := ticket.NewStore()
	store.Issue("T1", "K1")
	store.Issue("T2", "K2")

	game := &orderedGame{fakeGame: *newFakeGame()}
	authority := New(Config{
		Tickets:   store,
		Claimer:   fixedClaimer(ticket.Identity{AccountID: "A1", Username: "bob"}),
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	first := connect(t, authority, "c1", wire.Hello{TicketID: "T1"})
	testutil.RequireReceive(t, game.joined, 5*time.Second, "first joined")

	second := newFakeSender("c2")
	second.authority = authority
	if err := authority.Admit(testContext(t), "c2", wire.Hello{TicketID: "T2"}); err != nil {
		t.Fatalf("takeover Admit: %v", err)
	}
	testutil.RequireClosed(t, first.closed, 5*time.Second, "old connection force-closed")
	if err := authority.Connected(testContext(t), "c2", second); err != nil {
		t.Fatalf("takeover Connected: %v", err)
	}

	testutil.RequireReceive(t, game.left, 5*time.Second, "old session left")
	testutil.RequireReceive(t, game.joined, 5*time.Second, "new session joined")

	game.mu.Lock()
	events := append([]string(nil), game.events...)
	game.mu.Unlock()
	want := []string{"joined:c1", "left:c1", "joined:c2"}
	if !slices.Equal(events, want) {
		t.Errorf("notification order = %v, want %v", events, want)
	}
}

// Interleave two simultaneous logins for the same account: whatever
// the interleaving, at most one session for the account survives.
func TestConcurrentAdmitsSameAccount(t *testing.T) {
	store := ticket.NewStore()
	store.Issue("T1", "K1")
	store.Issue("T2", "K2")

	game := newFakeGame()
	authority := New(Config{
		Tickets:   store,
		Claimer:   fixedClaimer(ticket.Identity{AccountID: "A1", Username: "bob"}),
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	var wg sync.WaitGroup
	for i, ticketID := range []string{"T1", "T2"} {
		connectionID := []string{"c1", "c2"}[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			sender := newFakeSender(connectionID)
			sender.authority = authority
			if err := authority.Admit(testContext(t), connectionID, wire.Hello{TicketID: ticketID}); err != nil {
				return
			}
			// A lost race surfaces as ErrUnknownConnection or a
			// cancelled wait; both leave no session behind.
			_ = authority.Connected(testContext(t), connectionID, sender)
		}()
	}
	wg.Wait()

	deadline := time.After(5 * time.Second)
	for authority.SessionCount() > 1 {
		select {
		case <-deadline:
			t.Fatalf("SessionCount = %d, want at most 1", authority.SessionCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if authority.SessionCount() != 1 {
		t.Errorf("SessionCount = %d after racing logins, want 1", authority.SessionCount())
	}
}

func TestConnectedWithoutAdmission(t *testing.T) {
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      newFakeGame(),
		Logger:    testLogger(),
	})

	sender := newFakeSender("ghost")
	if err := authority.Connected(testContext(t), "ghost", sender); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("Connected error = %v, want ErrUnknownConnection", err)
	}
	testutil.RequireClosed(t, sender.closed, 5*time.Second, "unadmitted connection closed")
}

func TestDisconnectedUnknownIsNoop(t *testing.T) {
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      newFakeGame(),
		Logger:    testLogger(),
	})
	authority.Disconnected("never-seen")
	if authority.SessionCount() != 0 {
		t.Errorf("SessionCount = %d, want 0", authority.SessionCount())
	}
}

func TestRoomRouting(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	alice := connect(t, authority, "c1", wire.Hello{TicketID: "alice"})
	aliceUser := testutil.RequireReceive(t, game.joined, 5*time.Second, "alice joined")
	bob := connect(t, authority, "c2", wire.Hello{TicketID: "bob"})
	bobUser := testutil.RequireReceive(t, game.joined, 5*time.Second, "bob joined")
	testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice welcome")
	testutil.RequireReceive(t, bob.frames, 5*time.Second, "bob welcome")

	authority.AddToRoom("lobby", aliceUser.AccountID)
	authority.AddToRoom("lobby", bobUser.AccountID)
	authority.RoomData("lobby", "room_tick", nil)
	testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice room frame")
	testutil.RequireReceive(t, bob.frames, 5*time.Second, "bob room frame")

	authority.RemoveFromRoom("lobby", bobUser.AccountID)
	authority.RoomData("lobby", "room_tick", nil)
	testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice second room frame")
	testutil.RequireNoReceive(t, bob.frames, 100*time.Millisecond, "removed member must not receive room frame")

	// Teardown drops room membership.
	authority.Disconnected("c1")
	testutil.RequireReceive(t, game.left, 5*time.Second, "alice left")
	authority.RoomData("lobby", "room_tick", nil)
	testutil.RequireNoReceive(t, alice.frames, 100*time.Millisecond, "departed member must not receive room frame")
}

// panicGame panics on forwarded data to prove handler fault isolation.
type panicGame struct{ fakeGame }

func (g *panicGame) UserData(wire.User, string, []byte) { panic("game logic exploded") }

func TestHandlerPanicIsIsolated(t *testing.T) {
	game := &panicGame{fakeGame: *newFakeGame()}
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	alice := connect(t, authority, "c1", wire.Hello{TicketID: "alice"})
	testutil.RequireReceive(t, game.joined, 5*time.Second, "alice joined")
	testutil.RequireReceive(t, alice.frames, 5*time.Second, "alice welcome")

	// The panic is recovered and dropped; the session survives.
	_ = authority.ClientEvent("c1", "message", []byte(`{}`))
	if authority.SessionCount() != 1 {
		t.Errorf("SessionCount = %d after handler panic, want 1", authority.SessionCount())
	}
	authority.Route([]string{wire.TargetAll}, "still_alive", nil)
	if got := testutil.RequireReceive(t, alice.frames, 5*time.Second, "post-panic broadcast"); got.event != "still_alive" {
		t.Errorf("post-panic event = %q, want still_alive", got.event)
	}
}

func TestDisconnectUserClosesConnection(t *testing.T) {
	game := newFakeGame()
	authority := New(Config{
		TrustMode: true,
		Whitelist: wire.ClientWhitelist(),
		Game:      game,
		Logger:    testLogger(),
	})

	alice := connect(t, authority, "c1", wire.Hello{TicketID: "alice"})
	testutil.RequireReceive(t, game.joined, 5*time.Second, "alice joined")

	authority.CloseConnection("c1")
	testutil.RequireClosed(t, alice.closed, 5*time.Second, "connection closed by game request")
	testutil.RequireReceive(t, game.left, 5*time.Second, "left emitted after forced close")
}
