package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/infrastructure/database"
)

type published struct {
	Room    string
	Event   string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(room, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{room, event, payload})
}

type stubCounter struct {
	n   int64
	err error
}

func (s stubCounter) CountUserConnections(context.Context, string) (int64, error) {
	return s.n, s.err
}

func setup(t *testing.T) (*database.Store, *recordingPublisher, time.Time) {
	t.Helper()
	store, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, &recordingPublisher{}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestTracker_SetOnlinePublishesToEveryConversation(t *testing.T) {
	ctx := context.Background()
	store, pub, now := setup(t)

	owned := &domain.Store{ID: uuid.New().String(), OwnerID: "u1", Name: "Mine"}
	require.NoError(t, store.CreateStore(ctx, owned))
	asBuyer, err := store.FindOrCreateConversation(ctx, "u1", "other-store", now)
	require.NoError(t, err)
	asOwner, err := store.FindOrCreateConversation(ctx, "buyer", owned.ID, now)
	require.NoError(t, err)

	tracker := NewTracker(store, pub, WithClock(func() time.Time { return now }))

	st, err := tracker.SetOnline(ctx, domain.Identity{UserID: "u1"}, "u1", true)
	require.NoError(t, err)
	assert.True(t, st.IsOnline)

	require.Len(t, pub.events, 2)
	rooms := []string{pub.events[0].Room, pub.events[1].Room}
	assert.ElementsMatch(t, []string{domain.ChatStatusRoom(asBuyer.ID), domain.ChatStatusRoom(asOwner.ID)}, rooms)
	for _, ev := range pub.events {
		assert.Equal(t, domain.EventStatusChanged, ev.Event)
		assert.Equal(t, domain.StatusChangedPayload{UserID: "u1", IsOnline: true, LastSeenAt: now}, ev.Payload)
	}

	got, err := tracker.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
	assert.True(t, got.LastSeenAt.Equal(now))
}

func TestTracker_SetOnlineAuthorization(t *testing.T) {
	ctx := context.Background()
	store, pub, _ := setup(t)
	tracker := NewTracker(store, pub)

	_, err := tracker.SetOnline(ctx, domain.Identity{}, "u1", true)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = tracker.SetOnline(ctx, domain.Identity{UserID: "u2"}, "u1", true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Empty(t, pub.events)
}

func TestTracker_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	store, _, now := setup(t)
	clock := now
	tracker := NewTracker(store, nil, WithClock(func() time.Time { return clock }))

	_, err := tracker.SetOnline(ctx, domain.Identity{UserID: "u1"}, "", true)
	require.NoError(t, err)
	clock = now.Add(time.Minute)
	_, err = tracker.SetOnline(ctx, domain.Identity{UserID: "u1"}, "u1", false)
	require.NoError(t, err)

	got, err := tracker.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	assert.True(t, got.LastSeenAt.Equal(now.Add(time.Minute)))
}

func TestTracker_GetDefaultsAndConnections(t *testing.T) {
	ctx := context.Background()
	store, pub, _ := setup(t)

	tracker := NewTracker(store, pub, WithConnectionCounter(stubCounter{n: 3}))
	got, err := tracker.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	assert.True(t, got.LastSeenAt.IsZero())
	assert.Equal(t, int64(3), got.ActiveConnections)

	tracker = NewTracker(store, pub, WithConnectionCounter(stubCounter{err: errors.New("redis down")}))
	got, err = tracker.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, got.ActiveConnections)
}
