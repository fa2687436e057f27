package notification

import (
	"context"
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

func (r *recordingPublisher) rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Room
	}
	return out
}

type fakeSink struct{ sent []interface{} }

func (f *fakeSink) SendMessage(_ context.Context, m interface{}) error {
	f.sent = append(f.sent, m)
	return nil
}

func setup(t *testing.T) (*database.Store, *recordingPublisher, *Service) {
	t.Helper()
	store, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	svc := NewService(store, pub, WithPageSize(2), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	return store, pub, svc
}

func seedStore(t *testing.T, store *database.Store, ownerID string, notifyBuyer bool) *domain.Store {
	t.Helper()
	st := &domain.Store{ID: uuid.New().String(), OwnerID: ownerID, Name: "Kite Shop", NotifyBuyerOnOrder: notifyBuyer}
	require.NoError(t, store.CreateStore(context.Background(), st))
	return st
}

func countRows(t *testing.T, store *database.Store) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.DB().Model(&domain.Notification{}).Count(&n).Error)
	return n
}

func TestService_CreateAndSendScopes(t *testing.T) {
	ctx := context.Background()
	store, pub, svc := setup(t)
	sink := &fakeSink{}
	svc.events = sink

	n, err := svc.CreateAndSend(ctx, CreateInput{
		Type:    domain.NotificationSystemUpdate,
		Title:   "Maintenance",
		Message: "Tonight at 2am",
		UserID:  "u1",
		StoreID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationUnread, n.Status)
	require.NotNil(t, n.UserID)
	require.NotNil(t, n.StoreID)
	assert.Nil(t, n.OrderID)

	assert.Equal(t, []string{domain.UserNotificationsRoom("u1"), domain.StoreNotificationsRoom("s1")}, pub.rooms())
	for _, ev := range pub.events {
		assert.Equal(t, domain.EventNewNotification, ev.Event)
		assert.Equal(t, n, ev.Payload)
	}
	assert.Equal(t, int64(1), countRows(t, store))
	assert.Len(t, sink.sent, 1)
}

func TestService_CreateAndSendValidation(t *testing.T) {
	ctx := context.Background()
	store, pub, svc := setup(t)

	_, err := svc.CreateAndSend(ctx, CreateInput{Type: "bogus", UserID: "u1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateAndSend(ctx, CreateInput{Type: domain.NotificationSystemUpdate, Title: "x", Message: "y"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateAndSend(ctx, CreateInput{
		Type: domain.NotificationSystemUpdate, Title: "x", Message: "y", UserID: "u1",
		Metadata: domain.NewProductMetadata{ProductID: "p1"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Zero(t, countRows(t, store))
	assert.Empty(t, pub.events)
}

func TestService_NotifyOrderPlaced(t *testing.T) {
	ctx := context.Background()
	order := domain.OrderData{OrderNumber: "ORD-1", Total: 42.5, Currency: "USD", ItemCount: 2}

	t.Run("store only", func(t *testing.T) {
		store, pub, svc := setup(t)
		shop := seedStore(t, store, "owner", false)

		require.NoError(t, svc.NotifyOrderPlaced(ctx, "o1", "buyer", shop.ID, order))
		assert.Equal(t, []string{domain.StoreNotificationsRoom(shop.ID)}, pub.rooms())
	})

	t.Run("store and buyer confirmation", func(t *testing.T) {
		store, pub, svc := setup(t)
		shop := seedStore(t, store, "owner", true)

		require.NoError(t, svc.NotifyOrderPlaced(ctx, "o1", "buyer", shop.ID, order))
		assert.Equal(t, []string{domain.StoreNotificationsRoom(shop.ID), domain.UserNotificationsRoom("buyer")}, pub.rooms())

		confirmation := pub.events[1].Payload.(*domain.Notification)
		assert.Equal(t, domain.NotificationOrderConfirmation, confirmation.Type)
		meta, err := domain.DecodeMetadata(confirmation.Type, confirmation.Metadata)
		require.NoError(t, err)
		assert.Equal(t, "ORD-1", meta.(domain.OrderMetadata).OrderNumber)
		assert.Equal(t, domain.NotificationOrderConfirmation, meta.NotificationType())
	})

	t.Run("unknown store", func(t *testing.T) {
		_, pub, svc := setup(t)
		err := svc.NotifyOrderPlaced(ctx, "o1", "buyer", "missing", order)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, pub.events)
	})
}

func TestService_NotifyPaymentStatusChangedIdempotent(t *testing.T) {
	ctx := context.Background()
	store, pub, svc := setup(t)

	require.NoError(t, svc.NotifyPaymentStatusChanged(ctx, "o1", "buyer", "s1", "paid", "paid", domain.PaymentData{}))
	assert.Zero(t, countRows(t, store))
	assert.Empty(t, pub.events)

	require.NoError(t, svc.NotifyPaymentStatusChanged(ctx, "o1", "buyer", "s1", "pending", "paid", domain.PaymentData{Provider: "stripe"}))
	assert.Equal(t, int64(1), countRows(t, store))
	assert.Equal(t, []string{domain.StoreNotificationsRoom("s1")}, pub.rooms())
}

func TestService_NotifyOrderCancelled(t *testing.T) {
	ctx := context.Background()
	store, pub, svc := setup(t)

	require.NoError(t, svc.NotifyOrderCancelled(ctx, "o1", "buyer", "s1", domain.OrderData{OrderNumber: "ORD-9", Reason: "out of stock"}))
	assert.Equal(t, int64(2), countRows(t, store))
	assert.Equal(t, []string{domain.UserNotificationsRoom("buyer"), domain.StoreNotificationsRoom("s1")}, pub.rooms())
	assert.Contains(t, pub.events[0].Payload.(*domain.Notification).Message, "out of stock")
}

func TestService_NotifyNewProductFansOutToFollowers(t *testing.T) {
	ctx := context.Background()
	store, pub, svc := setup(t)
	shop := seedStore(t, store, "owner", false)

	for _, f := range []string{"f1", "f2", "f3"} {
		require.NoError(t, store.FollowStore(ctx, &domain.StoreFollower{StoreID: shop.ID, UserID: f}))
	}
	product := &domain.Product{ID: uuid.New().String(), StoreID: shop.ID, Name: "Red Kite", Slug: "red-kite", Images: []string{"kite.png"}, Published: true}
	require.NoError(t, store.CreateProduct(ctx, product))

	require.NoError(t, svc.HandleProductPublished(ctx, domain.ProductPublishedEvent{ProductID: product.ID, StoreID: shop.ID}))

	assert.Equal(t, int64(3), countRows(t, store))
	assert.ElementsMatch(t, []string{
		domain.UserNotificationsRoom("f1"),
		domain.UserNotificationsRoom("f2"),
		domain.UserNotificationsRoom("f3"),
	}, pub.rooms())

	n := pub.events[0].Payload.(*domain.Notification)
	meta, err := domain.DecodeMetadata(n.Type, n.Metadata)
	require.NoError(t, err)
	assert.Equal(t, domain.NewProductMetadata{
		ProductID: product.ID, ProductName: "Red Kite", ProductSlug: "red-kite", ImageURL: "kite.png", StoreName: "Kite Shop",
	}, meta)
}

func TestService_ListForUserPaging(t *testing.T) {
	ctx := context.Background()
	_, _, svc := setup(t)
	viewer := domain.Identity{UserID: "u1"}

	var created []string
	for i := 0; i < 5; i++ {
		n, err := svc.CreateAndSend(ctx, CreateInput{Type: domain.NotificationSystemUpdate, Title: "t", Message: "m", UserID: "u1"})
		require.NoError(t, err)
		created = append(created, n.ID)
	}
	_, err := svc.CreateAndSend(ctx, CreateInput{Type: domain.NotificationSystemUpdate, Title: "t", Message: "m", UserID: "u2"})
	require.NoError(t, err)

	var got []string
	cursor := ""
	for i := 0; i < 5; i++ {
		page, err := svc.ListForUser(ctx, viewer, cursor, 0)
		require.NoError(t, err)
		for _, n := range page.Items {
			got = append(got, n.ID)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	want := make([]string, len(created))
	for i, id := range created {
		want[len(created)-1-i] = id
	}
	assert.Equal(t, want, got)

	_, err = svc.ListForUser(ctx, viewer, "no-such-id", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.ListForUser(ctx, domain.Identity{}, "", 0)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestService_StoreScopeRequiresOwner(t *testing.T) {
	ctx := context.Background()
	store, _, svc := setup(t)
	shop := seedStore(t, store, "owner", false)
	owner := domain.Identity{UserID: "owner"}

	_, err := svc.CreateAndSend(ctx, CreateInput{Type: domain.NotificationSystemUpdate, Title: "t", Message: "m", StoreID: shop.ID})
	require.NoError(t, err)

	page, err := svc.ListForStore(ctx, owner, shop.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Nil(t, page.NextCursor)

	_, err = svc.ListForStore(ctx, domain.Identity{UserID: "intruder"}, shop.ID, "", 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.ListForStore(ctx, owner, "missing", "", 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := svc.UnreadCount(ctx, owner, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestService_MarkReadIsPullOnly(t *testing.T) {
	ctx := context.Background()
	store, pub, svc := setup(t)
	shop := seedStore(t, store, "owner", false)
	user := domain.Identity{UserID: "u1"}

	mine, err := svc.CreateAndSend(ctx, CreateInput{Type: domain.NotificationSystemUpdate, Title: "t", Message: "m", UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.CreateAndSend(ctx, CreateInput{Type: domain.NotificationSystemUpdate, Title: "t", Message: "m", UserID: "u1"})
	require.NoError(t, err)
	storeNote, err := svc.CreateAndSend(ctx, CreateInput{Type: domain.NotificationSystemUpdate, Title: "t", Message: "m", StoreID: shop.ID})
	require.NoError(t, err)
	before := len(pub.events)

	assert.ErrorIs(t, svc.MarkAsRead(ctx, domain.Identity{UserID: "u2"}, mine.ID), domain.ErrForbidden)
	assert.ErrorIs(t, svc.MarkAsRead(ctx, user, storeNote.ID), domain.ErrForbidden)
	assert.ErrorIs(t, svc.MarkAsRead(ctx, user, "missing"), domain.ErrNotFound)

	require.NoError(t, svc.MarkAsRead(ctx, user, mine.ID))
	require.NoError(t, svc.MarkAsRead(ctx, domain.Identity{UserID: "owner"}, storeNote.ID))

	count, err := svc.UnreadCount(ctx, user, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	changed, err := svc.MarkAllRead(ctx, user, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	count, err = svc.UnreadCount(ctx, user, "")
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Len(t, pub.events, before)
}
