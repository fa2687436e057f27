package broker

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sender is the write half of a client transport. *websocket.Conn satisfies it.
type Sender interface {
	WriteJSON(v interface{}) error
}

// Connection is one client's live session. Writes go through a bounded
// queue drained by a single writer goroutine, so the transport never sees
// concurrent writes and publishers never block on a slow client.
type Connection struct {
	ID string

	sender Sender
	egress  chan interface{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	log    zerolog.Logger

	mu      sync.RWMutex
	userID  string
	storeID string
	rooms   map[string]struct{}
}

func newConnection(id string, sender Sender, queueSize int, log zerolog.Logger) *Connection {
	return &Connection{
		ID:     id,
		sender: sender,
		egress:  make(chan interface{}, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log.With().Str("connection_id", id).Logger(),
		rooms:   make(map[string]struct{}),
	}
}

// UserID is empty until the connection authenticates.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) StoreID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storeID
}

// SetIdentity records the authenticated user once. It reports false when the
// connection was already authenticated.
func (c *Connection) SetIdentity(userID, storeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return false
	}
	c.userID = userID
	c.storeID = storeID
	return true
}

// Rooms returns a snapshot of the joined room names.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Send queues a frame for this connection only. It reports false when the
// frame was dropped because the queue is full or the connection is closed.
func (c *Connection) Send(v interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.egress <- v:
		return true
	default:
		return false
	}
}

// Done is closed once the connection is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// writeLoop is the only writer of the transport. Once done is closed no
// further frame reaches the sender, even with frames still queued.
func (c *Connection) writeLoop() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.egress:
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.safeWriteJSON(msg); err != nil {
				c.log.Warn().Err(err).Msg("Failed to write to client")
			}
		}
	}
}

// safeWriteJSON writes with panic recovery; a transport torn down mid-write
// may panic inside the websocket library.
func (c *Connection) safeWriteJSON(message interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("Recovered from panic in safeWriteJSON")
		}
	}()
	return c.sender.WriteJSON(message)
}

// close stops the writer and waits for an in-flight write to finish.
func (c *Connection) close() {
	c.once.Do(func() { close(c.done) })
	<-c.stopped
}

func (c *Connection) addRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; ok {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

func (c *Connection) removeRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *Connection) takeRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[string]struct{})
	return rooms
}
