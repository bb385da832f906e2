// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/foyer-project/foyer/lib/clock"
	"github.com/foyer-project/foyer/lib/codec"
	"github.com/foyer-project/foyer/lib/netutil"
	"github.com/foyer-project/foyer/lib/token"
	"github.com/foyer-project/foyer/session"
	"github.com/foyer-project/foyer/wire"
)

// Errors surfaced by control-link admission and worker spawning.
var (
	ErrDuplicateBrokerLink = errors.New("gateway: a broker link is already attached")
	ErrLinkTokenMismatch   = errors.New("gateway: bad link token")
	ErrWorkerSpawnFailed   = errors.New("gateway: worker failed to reach listening state")
)

// defaultSpawnTimeout bounds how long an opened session may sit short
// of WORKER_LISTENING before its port and token are released.
const defaultSpawnTimeout = 5 * time.Second

// Config configures a Gateway.
type Config struct {
	// ControlAddress is the TCP address of the control port, e.g.
	// ":7800". Use "127.0.0.1:0" in tests.
	ControlAddress string

	// ControlToken authenticates the single broker link.
	ControlToken string

	// WorkerHost is the bind host for per-session worker listeners.
	// Ports are always kernel-allocated.
	WorkerHost string

	// SpawnTimeout bounds worker startup. Zero means the default.
	SpawnTimeout time.Duration

	// Session configures the session authority the gateway owns. The
	// Game field is ignored: the gateway itself is the game link,
	// forwarding joined/left/data over the broker link.
	Session session.Config

	Clock  clock.Clock
	Logger *slog.Logger

	// listen is swappable for tests; defaults to net.Listen.
	listen func(network, address string) (net.Listener, error)
}

// Gateway is the public front door: one token-authenticated broker
// link in, one ephemeral token-guarded worker per user session out.
type Gateway struct {
	config        Config
	logger        *slog.Logger
	clock         clock.Clock
	authority     *session.Authority
	linkDigest    [32]byte
	spawnTimeout  time.Duration
	protocolToken string

	listenWorker func(network, address string) (net.Listener, error)

	mu       sync.Mutex
	listener net.Listener
	broker   *wire.Conn
	workers  map[string]*Worker

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Gateway and the session authority it fronts.
func New(config Config) *Gateway {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.SpawnTimeout <= 0 {
		config.SpawnTimeout = defaultSpawnTimeout
	}
	if config.WorkerHost == "" {
		config.WorkerHost = "0.0.0.0"
	}

	gateway := &Gateway{
		config:       config,
		logger:       config.Logger,
		clock:        config.Clock,
		linkDigest:   blake3.Sum256([]byte(config.ControlToken)),
		spawnTimeout: config.SpawnTimeout,
		listenWorker: config.listen,
		workers:      make(map[string]*Worker),
		ready:        make(chan struct{}),
	}

	sessionConfig := config.Session
	sessionConfig.Game = gateway
	// The protocol token is minted per process unless configuration
	// pins one. It reaches the game server in the LINKED ack.
	if sessionConfig.ProtocolToken == "" {
		sessionConfig.ProtocolToken = token.NewProtocol()
	}
	gateway.protocolToken = sessionConfig.ProtocolToken
	if sessionConfig.Clock == nil {
		sessionConfig.Clock = config.Clock
	}
	if sessionConfig.Logger == nil {
		sessionConfig.Logger = config.Logger
	}
	gateway.authority = session.New(sessionConfig)
	return gateway
}

// Authority exposes the session authority the gateway owns.
func (g *Gateway) Authority() *session.Authority { return g.authority }

// Ready is closed once the control listener is bound.
func (g *Gateway) Ready() <-chan struct{} { return g.ready }

// ControlAddress reports the bound control address. Valid after Ready.
func (g *Gateway) ControlAddress() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// WorkerCount reports the number of live session workers.
func (g *Gateway) WorkerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.workers)
}

// Serve accepts control connections until ctx is cancelled. Exactly
// one connection at a time is admitted as the broker link; all others
// are closed without explanation.
func (g *Gateway) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.config.ControlAddress)
	if err != nil {
		return fmt.Errorf("binding control port %s: %w", g.config.ControlAddress, err)
	}
	g.mu.Lock()
	g.listener = listener
	g.mu.Unlock()
	g.readyOnce.Do(func() { close(g.ready) })

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	g.logger.Info("gateway control port listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			g.logger.Error("control accept failed", "error", err)
			continue
		}
		go g.handleControl(ctx, wire.NewConn(conn))
	}

	g.mu.Lock()
	if g.broker != nil {
		g.broker.Close()
	}
	g.mu.Unlock()
	g.closeAllWorkers()
	return nil
}

// handleControl runs one control connection through link admission
// and, if admitted, serves it as the broker link until it drops.
func (g *Gateway) handleControl(ctx context.Context, link *wire.Conn) {
	defer link.Close()

	if err := g.admitLink(link); err != nil {
		// No reason crosses the boundary; the rejected peer only sees
		// its connection close.
		g.logger.Warn("control connection rejected", "remote", link.RemoteAddr(), "error", err)
		return
	}

	g.logger.Info("broker link attached", "remote", link.RemoteAddr())
	g.serveLink(ctx, link)

	g.mu.Lock()
	if g.broker == link {
		g.broker = nil
	}
	g.mu.Unlock()
	g.logger.Info("broker link detached", "remote", link.RemoteAddr())
}

// admitLink applies the admission predicate: reject while a broker is
// already attached or when the presented token does not authenticate.
func (g *Gateway) admitLink(link *wire.Conn) error {
	envelope, err := link.Receive()
	if err != nil {
		return fmt.Errorf("reading link hello: %w", err)
	}
	if envelope.Event != wire.EventLink {
		return fmt.Errorf("first envelope is %q, want %s", envelope.Event, wire.EventLink)
	}
	var request wire.LinkRequest
	if err := wireDecode(envelope, &request); err != nil {
		return err
	}

	presented := blake3.Sum256([]byte(request.Token))
	if subtle.ConstantTimeCompare(presented[:], g.linkDigest[:]) != 1 {
		return ErrLinkTokenMismatch
	}

	g.mu.Lock()
	if g.broker != nil {
		g.mu.Unlock()
		return ErrDuplicateBrokerLink
	}
	g.broker = link
	g.mu.Unlock()

	return link.Send(wire.EventLinked, wire.LinkAck{ProtocolToken: g.protocolToken})
}

// serveLink dispatches broker envelopes until the link drops.
func (g *Gateway) serveLink(ctx context.Context, link *wire.Conn) {
	for {
		envelope, err := link.Receive()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) && ctx.Err() == nil {
				g.logger.Warn("broker link read failed", "error", err)
			}
			return
		}
		g.dispatch(ctx, link, envelope)
	}
}

// dispatch handles one broker envelope. The link is trusted, so an
// unknown or undecodable event is logged and skipped rather than
// treated as an attack.
func (g *Gateway) dispatch(ctx context.Context, link *wire.Conn, envelope wire.Envelope) {
	switch envelope.Event {
	case wire.EventOpen:
		var request wire.OpenRequest
		if err := wireDecode(envelope, &request); err != nil {
			g.logger.Warn("bad OPEN payload", "error", err)
			return
		}
		// Opens run off the control loop: a worker bind that hangs
		// until the spawn timeout must not stall routing for every
		// other user on the link.
		go g.openSession(ctx, link, request)

	case wire.EventIssueTicket:
		var request wire.IssueTicket
		if err := wireDecode(envelope, &request); err != nil {
			g.logger.Warn("bad ISSUE_TICKET payload", "error", err)
			return
		}
		if g.config.Session.Tickets == nil {
			g.logger.Warn("ticket issued but no ticket store configured", "ticket_id", request.TicketID)
			return
		}
		g.config.Session.Tickets.Issue(request.TicketID, request.TicketKey)

	case wire.EventUserData:
		var data wire.UserData
		if err := wireDecode(envelope, &data); err != nil {
			g.logger.Warn("bad USER_DATA payload", "error", err)
			return
		}
		g.authority.Route(data.Users, data.Event, data.Message)

	case wire.EventAddRoom:
		var membership wire.RoomMembership
		if err := wireDecode(envelope, &membership); err != nil {
			g.logger.Warn("bad ADD_ROOM payload", "error", err)
			return
		}
		g.authority.AddToRoom(membership.RoomID, membership.AccountID)

	case wire.EventRemoveRoom:
		var membership wire.RoomMembership
		if err := wireDecode(envelope, &membership); err != nil {
			g.logger.Warn("bad REMOVE_ROOM payload", "error", err)
			return
		}
		g.authority.RemoveFromRoom(membership.RoomID, membership.AccountID)

	case wire.EventRoomData:
		var data wire.RoomData
		if err := wireDecode(envelope, &data); err != nil {
			g.logger.Warn("bad ROOM_DATA payload", "error", err)
			return
		}
		g.authority.RoomData(data.RoomID, data.Event, data.Message)

	case wire.EventDisconnectUser:
		var request wire.DisconnectUser
		if err := wireDecode(envelope, &request); err != nil {
			g.logger.Warn("bad DISCONNECT_USER payload", "error", err)
			return
		}
		g.authority.CloseConnection(request.ConnectionID)

	default:
		g.logger.Warn("unknown control event", "event", envelope.Event)
	}
}

// openSession materializes a session worker and reports its lease —
// after, never before, the worker is confirmed listening. On spawn
// failure or timeout every partial allocation is released and no
// lease is emitted.
func (g *Gateway) openSession(ctx context.Context, link *wire.Conn, request wire.OpenRequest) {
	leaseToken := token.NewLease()

	worker := startWorker(workerConfig{
		user:        wire.User{AccountID: request.AccountID, Username: request.Username},
		workerID:    request.WorkerID,
		host:        g.config.WorkerHost,
		tokenDigest: blake3.Sum256([]byte(leaseToken)),
		authority:   g.authority,
		logger:      g.logger,
		onClosed:    g.removeWorker,
		listen:      g.listenWorker,
	})

	select {
	case <-worker.Listening():
	case <-worker.Failed():
		g.logger.Error("session open failed", "account_id", request.AccountID, "error", ErrWorkerSpawnFailed)
		return
	case <-g.clock.After(g.spawnTimeout):
		worker.Close()
		g.logger.Error("session open timed out",
			"account_id", request.AccountID,
			"timeout", g.spawnTimeout,
			"error", ErrWorkerSpawnFailed)
		return
	case <-ctx.Done():
		worker.Close()
		return
	}

	g.mu.Lock()
	// Newest wins here too: a second open for the same account
	// replaces the previous worker.
	previous := g.workers[request.AccountID]
	g.workers[request.AccountID] = worker
	g.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	lease := wire.Lease{UserID: request.AccountID, Port: worker.Port(), Token: leaseToken}
	if err := link.Send(wire.EventLease, lease); err != nil {
		g.logger.Warn("sending lease failed", "account_id", request.AccountID, "error", err)
		worker.Close()
		return
	}

	g.logger.Info("session worker leased",
		"account_id", request.AccountID,
		"worker_id", request.WorkerID,
		"port", lease.Port)
}

// removeWorker drops a closed worker from the table.
func (g *Gateway) removeWorker(worker *Worker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.workers[worker.config.user.AccountID] == worker {
		delete(g.workers, worker.config.user.AccountID)
	}
}

// closeAllWorkers tears down every live worker during shutdown.
func (g *Gateway) closeAllWorkers() {
	g.mu.Lock()
	workers := make([]*Worker, 0, len(g.workers))
	for _, worker := range g.workers {
		workers = append(workers, worker)
	}
	g.mu.Unlock()
	for _, worker := range workers {
		worker.Close()
	}
}

// UserJoined forwards a session publication upstream. Implements
// session.GameLink over the broker link; with no link attached the
// event is dropped.
func (g *Gateway) UserJoined(connectionID string, user wire.User) {
	g.sendUpstream(wire.EventUserJoined, wire.UserEvent{ConnectionID: connectionID, User: user})
}

// UserLeft forwards a session teardown upstream.
func (g *Gateway) UserLeft(connectionID string, user wire.User) {
	g.sendUpstream(wire.EventUserLeft, wire.UserEvent{ConnectionID: connectionID, User: user})
}

// UserData forwards one whitelisted, identity-tagged client event
// upstream.
func (g *Gateway) UserData(user wire.User, event string, message []byte) {
	g.sendUpstream(wire.EventUserData, wire.TaggedData{User: user, Event: event, Message: message})
}

func (g *Gateway) sendUpstream(event string, payload any) {
	g.mu.Lock()
	link := g.broker
	g.mu.Unlock()
	if link == nil {
		g.logger.Debug("no broker link, dropping upstream event", "event", event)
		return
	}
	if err := link.Send(event, payload); err != nil {
		g.logger.Warn("upstream send failed", "event", event, "error", err)
	}
}

// wireDecode unmarshals an envelope payload.
func wireDecode(envelope wire.Envelope, target any) error {
	if err := codec.Unmarshal(envelope.Payload, target); err != nil {
		return fmt.Errorf("decoding %s payload: %w", envelope.Event, err)
	}
	return nil
}
