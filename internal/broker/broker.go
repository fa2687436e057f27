// Package broker is the process-wide room multiplexer. Connections join named
// rooms explicitly; publishers emit an event into a room and every member
// gets a copy. Delivery is best effort and a room with no members drops the
// event.
package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
	"marketlive-ws/internal/metrics"
)

const defaultQueueSize = 256

// Publisher is the capability handed to services. Implementations must never
// block and never fail; delivery problems are theirs to log.
type Publisher interface {
	Publish(room, event string, payload interface{})
}

// Noop is the Publisher for contexts without a live transport, such as a
// background job runner.
type Noop struct{}

func (Noop) Publish(string, string, interface{}) {}

type Broker struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]*Connection
	connections map[string]*Connection
	queueSize   int
	log         zerolog.Logger
}

type Option func(*Broker)

// WithQueueSize bounds each connection's outbound queue.
func WithQueueSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func New(opts ...Option) *Broker {
	b := &Broker{
		rooms:       make(map[string]map[string]*Connection),
		connections: make(map[string]*Connection),
		queueSize:   defaultQueueSize,
		log:         logging.With("broker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect registers a transport and starts its writer. The connection is in
// no room until Join is called.
func (b *Broker) Connect(sender Sender) *Connection {
	conn := newConnection(uuid.New().String(), sender, b.queueSize, b.log)

	b.mu.Lock()
	b.connections[conn.ID] = conn
	total := len(b.connections)
	b.mu.Unlock()

	metrics.Connections.Inc()
	go conn.writeLoop()

	b.log.Debug().Str("connection_id", conn.ID).Int("total", total).Msg("Connection registered")
	return conn
}

// Join adds conn to room. Joining twice is a no-op. Authorization is the
// caller's job.
func (b *Broker) Join(conn *Connection, room string) {
	if b == nil || conn == nil || room == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.connections[conn.ID]; !live {
		return
	}
	if !conn.addRoom(room) {
		return
	}
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		b.rooms[room] = members
	}
	members[conn.ID] = conn
	b.log.Debug().Str("connection_id", conn.ID).Str("room", room).Int("members", len(members)).Msg("Joined room")
}

func (b *Broker) Leave(conn *Connection, room string) {
	if b == nil || conn == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	conn.removeRoom(room)
	b.dropMember(room, conn.ID)
}

// Disconnect removes conn from every room and stops its writer. When it
// returns the transport is no longer written to. Safe to call more than once.
func (b *Broker) Disconnect(conn *Connection) {
	if b == nil || conn == nil {
		return
	}

	b.mu.Lock()
	_, live := b.connections[conn.ID]
	delete(b.connections, conn.ID)
	for _, room := range conn.takeRooms() {
		b.dropMember(room, conn.ID)
	}
	b.mu.Unlock()

	conn.close()
	if live {
		metrics.Connections.Dec()
		b.log.Debug().Str("connection_id", conn.ID).Msg("Connection removed")
	}
}

// dropMember must be called with b.mu held.
func (b *Broker) dropMember(room, connID string) {
	members, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.rooms, room)
	}
}

// Publish queues event to every member of room and returns without waiting
// for any write. Publishing on a nil Broker is a no-op.
func (b *Broker) Publish(room, event string, payload interface{}) {
	if b == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("room", room).Msg("Recovered from panic in Publish")
		}
	}()

	metrics.BrokerPublishes.WithLabelValues(event).Inc()

	b.mu.RLock()
	members := b.rooms[room]
	targets := make([]*Connection, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		metrics.BrokerEmptyRooms.Inc()
		b.log.Debug().Str("room", room).Str("event", event).Msg("No active connections in room")
		return
	}

	frame := domain.WebSocketResponse{
		Type:      event,
		Room:      room,
		Success:   true,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	delivered := 0
	for _, c := range targets {
		if c.Send(frame) {
			delivered++
			metrics.BrokerDeliveries.Inc()
			continue
		}
		metrics.BrokerDropped.Inc()
		b.log.Warn().Str("connection_id", c.ID).Str("room", room).Str("event", event).Msg("Outbound queue full, event dropped")
	}

	b.log.Debug().Str("room", room).Str("event", event).
		Int("delivered", delivered).Int("members", len(targets)).
		Msg("Published event")
}

func (b *Broker) RoomSize(room string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

func (b *Broker) ConnectionCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections)
}

// ActiveRooms returns member counts per room, for monitoring.
func (b *Broker) ActiveRooms() map[string]int {
	result := make(map[string]int)
	if b == nil {
		return result
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for room, members := range b.rooms {
		result[room] = len(members)
	}
	return result
}

// Close tears down every connection. Used at process stop.
func (b *Broker) Close() {
	if b == nil {
		return
	}
	b.mu.RLock()
	conns := make([]*Connection, 0, len(b.connections))
	for _, c := range b.connections {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		b.Disconnect(c)
	}
	b.log.Info().Int("connections", len(conns)).Msg("Broker closed")
}
