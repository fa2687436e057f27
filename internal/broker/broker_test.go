package broker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlive-ws/internal/domain"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []domain.WebSocketResponse
	block  chan struct{}
	err    error
}

func (f *fakeSender) WriteJSON(v interface{}) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if resp, ok := v.(domain.WebSocketResponse); ok {
		f.frames = append(f.frames, resp)
	}
	return f.err
}

func (f *fakeSender) Frames() []domain.WebSocketResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WebSocketResponse, len(f.frames))
	copy(out, f.frames)
	return out
}

func waitFrames(t *testing.T, f *fakeSender, n int) []domain.WebSocketResponse {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.Frames()) >= n }, time.Second, 5*time.Millisecond)
	return f.Frames()
}

func TestBroker_PublishToRoomMembers(t *testing.T) {
	b := New()
	defer b.Close()

	a, other := &fakeSender{}, &fakeSender{}
	connA := b.Connect(a)
	connOther := b.Connect(other)

	b.Join(connA, "chat:c1:messages")
	b.Join(connOther, "chat:c2:messages")

	b.Publish("chat:c1:messages", domain.EventNewMessage, map[string]string{"id": "m1"})

	frames := waitFrames(t, a, 1)
	assert.Equal(t, domain.EventNewMessage, frames[0].Type)
	assert.Equal(t, "chat:c1:messages", frames[0].Room)
	assert.True(t, frames[0].Success)
	assert.Equal(t, map[string]string{"id": "m1"}, frames[0].Data)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, other.Frames())
}

func TestBroker_JoinIsIdempotent(t *testing.T) {
	b := New()
	defer b.Close()

	s := &fakeSender{}
	conn := b.Connect(s)
	b.Join(conn, "user-u1")
	b.Join(conn, "user-u1")

	assert.Equal(t, 1, b.RoomSize("user-u1"))

	b.Publish("user-u1", "ping", nil)
	waitFrames(t, s, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.Frames(), 1)
}

func TestBroker_PublishToEmptyRoomIsNoop(t *testing.T) {
	b := New()
	defer b.Close()

	assert.NotPanics(t, func() {
		b.Publish("notifications:user:nobody", domain.EventNewNotification, struct{}{})
	})
	assert.Equal(t, 0, b.RoomSize("notifications:user:nobody"))
}

func TestBroker_NilAndNoopDegrade(t *testing.T) {
	var b *Broker
	var p Publisher = b

	assert.NotPanics(t, func() {
		p.Publish("user-u1", "x", nil)
		b.Join(nil, "user-u1")
		b.Leave(nil, "user-u1")
		b.Disconnect(nil)
		b.Close()
	})
	assert.Equal(t, 0, b.ConnectionCount())
	assert.NotPanics(t, func() { Noop{}.Publish("user-u1", "x", nil) })
}

func TestBroker_DisconnectDropsAllRooms(t *testing.T) {
	b := New()
	defer b.Close()

	conn := b.Connect(&fakeSender{})
	b.Join(conn, "user-u1")
	b.Join(conn, "store-s1")
	require.Equal(t, 1, b.ConnectionCount())

	b.Disconnect(conn)
	b.Disconnect(conn)

	assert.Equal(t, 0, b.RoomSize("user-u1"))
	assert.Equal(t, 0, b.RoomSize("store-s1"))
	assert.Equal(t, 0, b.ConnectionCount())
	assert.Empty(t, b.ActiveRooms())
	assert.Empty(t, conn.Rooms())

	// Joining after disconnect must not resurrect membership.
	b.Join(conn, "user-u1")
	assert.Equal(t, 0, b.RoomSize("user-u1"))

	select {
	case <-conn.Done():
	default:
		t.Fatal("expected connection to be closed")
	}
	assert.False(t, conn.Send("late"))
}

func TestBroker_Leave(t *testing.T) {
	b := New()
	defer b.Close()

	conn := b.Connect(&fakeSender{})
	b.Join(conn, "live:store:s1:products")
	b.Leave(conn, "live:store:s1:products")

	assert.Equal(t, 0, b.RoomSize("live:store:s1:products"))
	assert.Empty(t, conn.Rooms())
}

func TestBroker_FullQueueDropsWithoutBlocking(t *testing.T) {
	b := New(WithQueueSize(1))
	defer b.Close()

	slow := &fakeSender{block: make(chan struct{})}
	conn := b.Connect(slow)
	b.Join(conn, "user-u1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("user-u1", "tick", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow connection")
	}
	close(slow.block)

	frames := waitFrames(t, slow, 1)
	assert.LessOrEqual(t, len(frames), 2)
}

func TestBroker_WriteErrorDoesNotStopWriter(t *testing.T) {
	b := New()
	defer b.Close()

	s := &fakeSender{err: errors.New("broken pipe")}
	conn := b.Connect(s)
	b.Join(conn, "user-u1")

	b.Publish("user-u1", "a", 1)
	b.Publish("user-u1", "b", 2)

	frames := waitFrames(t, s, 2)
	assert.Equal(t, "a", frames[0].Type)
	assert.Equal(t, "b", frames[1].Type)
}

// countingSender is a slow transport that counts writes made after the
// connection was torn down.
type countingSender struct {
	closed atomic.Bool
	late   atomic.Int32
}

func (s *countingSender) WriteJSON(v interface{}) error {
	if s.closed.Load() {
		s.late.Add(1)
	}
	time.Sleep(time.Millisecond)
	return nil
}

func TestBroker_NoWritesAfterDisconnect(t *testing.T) {
	b := New()
	defer b.Close()

	s := &countingSender{}
	conn := b.Connect(s)
	b.Join(conn, "r")
	for i := 0; i < 200; i++ {
		b.Publish("r", "tick", i)
	}

	b.Disconnect(conn)
	s.closed.Store(true)

	select {
	case <-conn.Done():
	default:
		t.Fatal("connection not marked done")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, s.late.Load())
	assert.False(t, conn.Send("late"))
}

func TestConnection_SetIdentityOnce(t *testing.T) {
	b := New()
	defer b.Close()

	conn := b.Connect(&fakeSender{})
	assert.Equal(t, "", conn.UserID())
	assert.True(t, conn.SetIdentity("u1", "s1"))
	assert.False(t, conn.SetIdentity("u2", ""))
	assert.Equal(t, "u1", conn.UserID())
	assert.Equal(t, "s1", conn.StoreID())
}
