// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zeebo/blake3"

	"github.com/foyer-project/foyer/lib/netutil"
	"github.com/foyer-project/foyer/session"
	"github.com/foyer-project/foyer/wire"
)

// WorkerState tracks a worker through its lifecycle. Transitions are
// strictly forward; StateClosed is terminal.
type WorkerState int32

const (
	// StateRequested: the broker link asked to open a session.
	StateRequested WorkerState = iota
	// StateStarting: the worker unit exists; port and token are being
	// allocated.
	StateStarting
	// StateListening: the worker is bound and accepting; the lease may
	// be handed out.
	StateListening
	// StateBridged: the end-user transport is connected and frames
	// flow.
	StateBridged
	// StateClosed: torn down. Terminal.
	StateClosed
)

func (s WorkerState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateBridged:
		return "bridged"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// workerConfig configures one session worker.
type workerConfig struct {
	user     wire.User
	workerID string

	// host is the bind address for the ephemeral listener; the port is
	// always kernel-allocated.
	host string

	// tokenDigest is the BLAKE3 digest of the lease token. The worker
	// never holds the raw token — once the lease is handed out, only
	// the client knows it.
	tokenDigest [32]byte

	authority *session.Authority
	logger    *slog.Logger

	// onClosed runs exactly once when the worker reaches StateClosed.
	onClosed func(*Worker)

	// listen is swappable for tests; defaults to net.Listen.
	listen func(network, address string) (net.Listener, error)
}

// Worker is one ephemeral, token-guarded transport endpoint serving
// exactly one user session.
type Worker struct {
	config workerConfig
	logger *slog.Logger

	state atomic.Int32

	// listening is closed once the listener is bound and accepting;
	// failed is closed if startup errors out instead.
	listening chan struct{}
	failed    chan struct{}

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	client   *websocket.Conn

	claimed   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// startWorker creates the worker and begins binding its listener in
// the background. The caller waits on Listening or Failed, bounded by
// its own spawn timeout.
func startWorker(config workerConfig) *Worker {
	if config.listen == nil {
		config.listen = net.Listen
	}
	worker := &Worker{
		config:    config,
		logger:    config.logger.With("user_id", config.user.AccountID, "worker_id", config.workerID),
		listening: make(chan struct{}),
		failed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	worker.state.Store(int32(StateRequested))
	go worker.run()
	return worker
}

func (w *Worker) run() {
	w.state.Store(int32(StateStarting))

	listener, err := w.config.listen("tcp", net.JoinHostPort(w.config.host, "0"))
	if err != nil {
		w.logger.Error("worker bind failed", "error", err)
		close(w.failed)
		w.Close()
		return
	}

	server := &http.Server{Handler: w}

	w.mu.Lock()
	if WorkerState(w.state.Load()) == StateClosed {
		// Abandoned while binding; release the port immediately.
		w.mu.Unlock()
		listener.Close()
		return
	}
	w.listener = listener
	w.server = server
	w.mu.Unlock()

	// StateClosed is terminal: a Close racing the bind wins the CAS,
	// and its server shutdown releases the listener we just stored.
	if !w.state.CompareAndSwap(int32(StateStarting), int32(StateListening)) {
		return
	}
	close(w.listening)

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed && !netutil.IsExpectedCloseError(err) {
		w.logger.Warn("worker serve ended", "error", err)
	}
}

// Listening is closed once the worker is bound and accepting.
func (w *Worker) Listening() <-chan struct{} { return w.listening }

// Failed is closed if the worker could not start.
func (w *Worker) Failed() <-chan struct{} { return w.failed }

// Done is closed when the worker has fully torn down.
func (w *Worker) Done() <-chan struct{} { return w.done }

// State reports the worker's current lifecycle state.
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// Port reports the kernel-allocated listener port. Valid only after
// Listening.
func (w *Worker) Port() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener == nil {
		return 0
	}
	return w.listener.Addr().(*net.TCPAddr).Port
}

// upgrader deliberately accepts any origin: workers are reached by
// game clients from arbitrary hosts, and the lease token is the
// credential, not the Origin header.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeHTTP handles the single client connection this worker exists
// for. The client presents its credentials in the WebSocket
// subprotocol list: [leaseToken, protocolToken, ticketId, sessionId,
// token]. A bad lease token or a failed admission yields a bare 403 —
// no internal reason crosses the boundary.
func (w *Worker) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	protocols := websocket.Subprotocols(request)
	if len(protocols) != 5 {
		http.Error(response, "forbidden", http.StatusForbidden)
		return
	}

	presented := blake3.Sum256([]byte(protocols[0]))
	if subtle.ConstantTimeCompare(presented[:], w.config.tokenDigest[:]) != 1 {
		w.logger.Warn("lease token mismatch", "remote", request.RemoteAddr)
		http.Error(response, "forbidden", http.StatusForbidden)
		return
	}

	// One client per worker, for its whole lifetime.
	if !w.claimed.CompareAndSwap(false, true) {
		http.Error(response, "forbidden", http.StatusForbidden)
		return
	}

	hello := wire.Hello{
		ProtocolToken: protocols[1],
		TicketID:      protocols[2],
		SessionID:     protocols[3],
		Token:         protocols[4],
	}
	connectionID := uuid.NewString()

	if err := w.config.authority.Admit(request.Context(), connectionID, hello); err != nil {
		http.Error(response, "forbidden", http.StatusForbidden)
		w.Close()
		return
	}

	client, err := upgrader.Upgrade(response, request, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", "error", err)
		w.config.authority.Disconnected(connectionID)
		w.Close()
		return
	}

	w.mu.Lock()
	w.client = client
	w.mu.Unlock()
	w.state.CompareAndSwap(int32(StateListening), int32(StateBridged))

	sender := &clientSender{conn: client}

	// The vacancy wait inside Connected is bounded only by the old
	// connection's teardown, which the admission's eviction already
	// set in motion.
	if err := w.config.authority.Connected(context.Background(), connectionID, sender); err != nil {
		w.logger.Warn("session publication failed", "connection_id", connectionID, "error", err)
		w.Close()
		return
	}

	w.logger.Info("session bridged", "connection_id", connectionID, "remote", request.RemoteAddr)
	w.readLoop(connectionID, client)

	w.config.authority.Disconnected(connectionID)
	w.Close()
}

// readLoop pumps client frames into the authority until the transport
// drops or the authority terminates the connection.
func (w *Worker) readLoop(connectionID string, client *websocket.Conn) {
	for {
		_, data, err := client.ReadMessage()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				w.logger.Debug("client read ended", "connection_id", connectionID, "error", err)
			}
			return
		}

		var frame wire.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			w.logger.Warn("undecodable client frame, closing", "connection_id", connectionID)
			return
		}
		if err := w.config.authority.ClientEvent(connectionID, frame.Event, frame.Message); err != nil {
			// Protocol violation: the authority already closed the
			// sender; stop reading.
			return
		}
	}
}

// Close tears the worker down: terminal, idempotent. The listener,
// server, and any bridged client are closed, the port and token are
// released, and the owner's onClosed hook runs.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.state.Store(int32(StateClosed))

		w.mu.Lock()
		client := w.client
		server := w.server
		listener := w.listener
		w.mu.Unlock()

		if client != nil {
			client.Close()
		}
		if server != nil {
			server.Close()
		} else if listener != nil {
			listener.Close()
		}

		close(w.done)
		if w.config.onClosed != nil {
			w.config.onClosed(w)
		}
		w.logger.Info("worker closed")
	})
}

// clientSender adapts a websocket connection to the authority's Sender
// interface. gorilla/websocket permits one concurrent writer, so all
// frame writes go through one mutex.
type clientSender struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (s *clientSender) SendFrame(event string, message []byte) error {
	frame, err := json.Marshal(wire.ClientFrame{Event: event, Message: message})
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", event, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *clientSender) Close() {
	s.conn.Close()
}
