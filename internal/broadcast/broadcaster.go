// Package broadcast fans committed vote updates out to websocket subscribers.
// A single actor goroutine owns all per-show client registries; handlers and
// the Redis relay talk to it through commands, so there is no shared-state
// locking anywhere in the fanout path.
package broadcast

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/encorelive/encore/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

type showClients map[*websocket.Conn]*clientWriter

type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	showID       uuid.UUID
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	showID     uuid.UUID
	connection *websocket.Conn
}

type deliverCmd struct {
	baseBroadcasterCmd
	showID  uuid.UUID
	payload []byte
}

type getClientCountCmd struct {
	baseBroadcasterCmd
	showID       uuid.UUID
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster manages websocket subscribers grouped by show and delivers
// vote update payloads to them. Delivery is at most once per subscriber:
// a client whose send buffer is full is evicted, never blocked on.
type Broadcaster struct {
	cmdCh             chan broadcasterCmd
	clock             clockwork.Clock
	activeClients     map[uuid.UUID]showClients
	onFirstClient     func(showID uuid.UUID)
	onShowEmpty       func(showID uuid.UUID)
	done              chan struct{}
	stopTimeout       time.Duration
	maxClientsPerShow int
}

// NewBroadcaster creates a broadcaster and starts its actor goroutine.
// onFirstClient fires when a show gains its first local subscriber (the relay
// subscribes to the show's Redis channel); onShowEmpty fires when the last
// one leaves (the relay unsubscribes).
func NewBroadcaster(onFirstClient, onShowEmpty func(uuid.UUID), clock clockwork.Clock, maxClientsPerShow int) *Broadcaster {
	b := &Broadcaster{
		cmdCh:             make(chan broadcasterCmd, 256),
		clock:             clock,
		activeClients:     make(map[uuid.UUID]showClients),
		onFirstClient:     onFirstClient,
		onShowEmpty:       onShowEmpty,
		done:              make(chan struct{}),
		stopTimeout:       stopTimeout,
		maxClientsPerShow: maxClientsPerShow,
	}
	go b.run()
	return b
}

// Register adds a subscriber to a show. Returns an error when the per-show
// client limit is reached.
func (b *Broadcaster) Register(showID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	b.cmdCh <- registerCmd{showID: showID, connection: conn, errorChannel: errCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a subscriber from a show.
func (b *Broadcaster) Unregister(showID uuid.UUID, conn *websocket.Conn) {
	b.cmdCh <- unregisterCmd{showID: showID, connection: conn}
}

// Deliver enqueues a payload for all local subscribers of a show. Called by
// the Redis relay; non-blocking for the caller.
func (b *Broadcaster) Deliver(showID uuid.UUID, payload []byte) {
	select {
	case b.cmdCh <- deliverCmd{showID: showID, payload: payload}:
	default:
		slog.Warn("Broadcaster command channel full, dropping update", "show_id", showID.String())
	}
}

// GetClientCount returns the number of local subscribers for a show, or -1 on
// command timeout.
func (b *Broadcaster) GetClientCount(showID uuid.UUID) int {
	replyCh := make(chan int, 1)
	b.cmdCh <- getClientCountCmd{showID: showID, replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("GetClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the broadcaster, closing all subscriber connections.
// Blocks until the actor goroutine has exited or the timeout is reached.
func (b *Broadcaster) Stop() {
	b.cmdCh <- stopCmd{}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded, forcing exit", "timeout", b.stopTimeout)
		metrics.BroadcasterStopTimeoutsTotal.Inc()
		close(b.done)
	}
}

func (b *Broadcaster) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			metrics.BroadcasterPanicsTotal.Inc()
			b.closeAllClients("broadcaster panic")
		}
	}()
	defer close(b.done)

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			b.handleRegister(c)
		case unregisterCmd:
			b.handleUnregister(c)
		case deliverCmd:
			b.handleDeliver(c)
		case getClientCountCmd:
			c.replyChannel <- len(b.activeClients[c.showID])
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	clients, exists := b.activeClients[c.showID]
	if !exists {
		clients = make(showClients)
		b.activeClients[c.showID] = clients
	}

	if len(clients) >= b.maxClientsPerShow {
		slog.Warn("Rejecting client: max clients reached", "show_id", c.showID.String(), "max_clients", b.maxClientsPerShow)
		metrics.WebSocketConnectionsRejected.WithLabelValues("show_limit").Inc()
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max clients per show (%d) reached", b.maxClientsPerShow)
		return
	}

	// Run callback asynchronously to avoid blocking Register on Redis.
	if !exists && b.onFirstClient != nil {
		go b.onFirstClient(c.showID)
	}

	cw := newClientWriter(c.connection, b.clock)
	clients[c.connection] = cw

	metrics.BroadcasterActiveShows.Set(float64(len(b.activeClients)))
	metrics.BroadcasterConnectedClients.Inc()

	slog.Debug("Client registered", "show_id", c.showID.String(), "total_clients", len(clients))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	clients, exists := b.activeClients[c.showID]
	if !exists {
		return
	}

	cw, exists := clients[c.connection]
	if !exists {
		return
	}

	cw.stop()
	delete(clients, c.connection)
	metrics.BroadcasterConnectedClients.Dec()

	if len(clients) == 0 {
		delete(b.activeClients, c.showID)
		metrics.BroadcasterActiveShows.Set(float64(len(b.activeClients)))
		if b.onShowEmpty != nil {
			go b.onShowEmpty(c.showID)
		}
		slog.Debug("Last client disconnected", "show_id", c.showID.String())
	} else {
		slog.Debug("Client unregistered", "show_id", c.showID.String(), "remaining_clients", len(clients))
	}
}

func (b *Broadcaster) handleDeliver(c deliverCmd) {
	clients, exists := b.activeClients[c.showID]
	if !exists {
		return
	}

	var slow []*websocket.Conn
	for conn, writer := range clients {
		select {
		case writer.sendChannel <- c.payload:
			metrics.BroadcasterMessagesSent.Inc()
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow client", "show_id", c.showID.String())
		metrics.BroadcasterSlowClientsEvicted.Inc()
		b.handleUnregister(unregisterCmd{showID: c.showID, connection: conn})
	}
}

func (b *Broadcaster) handleStop() {
	totalClients := 0
	for _, clients := range b.activeClients {
		totalClients += len(clients)
	}

	slog.Info("Broadcaster shutting down", "shows", len(b.activeClients), "total_clients", totalClients)
	b.closeAllClients("Server shutting down")
}

func (b *Broadcaster) closeAllClients(reason string) {
	for showID, clients := range b.activeClients {
		for _, cw := range clients {
			cw.stopGraceful(reason)
		}
		delete(b.activeClients, showID)
		if b.onShowEmpty != nil {
			b.onShowEmpty(showID)
		}
	}
	metrics.BroadcasterActiveShows.Set(0)
}
