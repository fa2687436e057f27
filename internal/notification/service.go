// Package notification turns domain events into durable notifications and
// pushes each one to the room of the user or store it is addressed to.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"marketlive-ws/internal/broker"
	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/infrastructure/database"
	"marketlive-ws/internal/logging"
	"marketlive-ws/internal/metrics"
)

type Store interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	ListNotifications(ctx context.Context, scope database.NotificationScope, cursor string, limit int) ([]domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, scope database.NotificationScope) (int64, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, scope database.NotificationScope) (int64, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListFollowerIDs(ctx context.Context, storeID string) ([]string, error)
}

// EventSink mirrors created notifications to other services.
type EventSink interface {
	SendMessage(ctx context.Context, message interface{}) error
}

const defaultPageSize = 20

// CreateInput describes a single notification row. The row is addressed to
// UserID, StoreID or both, and is pushed to exactly those rooms.
type CreateInput struct {
	Type     domain.NotificationType
	Title    string
	Message  string
	UserID   string
	StoreID  string
	OrderID  string
	Metadata domain.NotificationMetadata
}

type Service struct {
	store     Store
	publisher broker.Publisher
	events    EventSink
	pageSize  int
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewService(store Store, publisher broker.Publisher, opts ...Option) *Service {
	if publisher == nil {
		publisher = broker.Noop{}
	}
	s := &Service{
		store:     store,
		publisher: publisher,
		pageSize:  defaultPageSize,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.With("notification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAndSend persists one notification and publishes it to its rooms.
func (s *Service) CreateAndSend(ctx context.Context, in CreateInput) (*domain.Notification, error) {
	if !in.Type.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown notification type %q", in.Type))
	}
	if in.UserID == "" && in.StoreID == "" {
		return nil, domain.Validation("user_id or store_id is required")
	}

	meta, err := domain.EncodeMetadata(in.Type, in.Metadata)
	if err != nil {
		return nil, err
	}

	n := &domain.Notification{
		ID:        uuid.New().String(),
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Metadata:  datatypes.JSON(meta),
		UserID:    optional(in.UserID),
		StoreID:   optional(in.StoreID),
		OrderID:   optional(in.OrderID),
		Status:    domain.NotificationUnread,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	if in.UserID != "" {
		s.publisher.Publish(domain.UserNotificationsRoom(in.UserID), domain.EventNewNotification, n)
	}
	if in.StoreID != "" {
		s.publisher.Publish(domain.StoreNotificationsRoom(in.StoreID), domain.EventNewNotification, n)
	}

	if s.events != nil {
		if err := s.events.SendMessage(ctx, *n); err != nil {
			s.log.Warn().Err(err).Str("notification_id", n.ID).Msg("Failed to mirror notification")
		}
	}

	s.log.Debug().Str("notification_id", n.ID).Str("type", string(n.Type)).Msg("Notification sent")
	return n, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// NotifyOrderPlaced tells the store about a new order and, when the store
// has opted in, sends the buyer a confirmation.
func (s *Service) NotifyOrderPlaced(ctx context.Context, orderID, userID, storeID string, order domain.OrderData) error {
	store, err := s.store.GetStore(ctx, storeID)
	if err != nil {
		return err
	}

	if _, err := s.CreateAndSend(ctx, CreateInput{
		Type:     domain.NotificationOrderPlaced,
		Title:    "New order received",
		Message:  fmt.Sprintf("Order %s was placed (%d items).", order.OrderNumber, order.ItemCount),
		StoreID:  storeID,
		OrderID:  orderID,
		Metadata: domain.NewOrderMetadata(domain.NotificationOrderPlaced, order),
	}); err != nil {
		return err
	}

	if !store.NotifyBuyerOnOrder || userID == "" {
		return nil
	}
	_, err = s.CreateAndSend(ctx, CreateInput{
		Type:     domain.NotificationOrderConfirmation,
		Title:    "Order confirmed",
		Message:  fmt.Sprintf("Your order %s from %s has been placed.", order.OrderNumber, store.Name),
		UserID:   userID,
		OrderID:  orderID,
		Metadata: domain.NewOrderMetadata(domain.NotificationOrderConfirmation, order),
	})
	return err
}

// NotifyPaymentStatusChanged notifies the store of a payment transition. A
// repeated status is ignored.
func (s *Service) NotifyPaymentStatusChanged(ctx context.Context, orderID, userID, storeID, oldStatus, newStatus string, payment domain.PaymentData) error {
	if oldStatus == newStatus {
		return nil
	}
	if storeID == "" {
		return domain.Validation("store_id is required")
	}
	_, err := s.CreateAndSend(ctx, CreateInput{
		Type:    domain.NotificationPaymentStatusChanged,
		Title:   "Payment status updated",
		Message: fmt.Sprintf("Payment for order %s changed from %s to %s.", orderID, oldStatus, newStatus),
		StoreID: storeID,
		OrderID: orderID,
		Metadata: domain.PaymentStatusMetadata{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Provider:  payment.Provider,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
		},
	})
	return err
}

// NotifyOrderCancelled notifies both the buyer and the store.
func (s *Service) NotifyOrderCancelled(ctx context.Context, orderID, userID, storeID string, order domain.OrderData) error {
	meta := domain.OrderCancelledMetadata{
		OrderNumber: order.OrderNumber,
		Reason:      order.Reason,
		CancelledBy: order.CancelledBy,
	}
	msg := fmt.Sprintf("Order %s was cancelled.", order.OrderNumber)
	if order.Reason != "" {
		msg = fmt.Sprintf("Order %s was cancelled: %s", order.OrderNumber, order.Reason)
	}

	if userID != "" {
		if _, err := s.CreateAndSend(ctx, CreateInput{
			Type: domain.NotificationOrderCancelled, Title: "Order cancelled", Message: msg,
			UserID: userID, OrderID: orderID, Metadata: meta,
		}); err != nil {
			return err
		}
	}
	if storeID != "" {
		if _, err := s.CreateAndSend(ctx, CreateInput{
			Type: domain.NotificationOrderCancelled, Title: "Order cancelled", Message: msg,
			StoreID: storeID, OrderID: orderID, Metadata: meta,
		}); err != nil {
			return err
		}
	}
	return nil
}

// NotifyNewProduct writes and pushes one notification per follower of the
// product's store. A failure stops the loop; followers already notified
// stay notified.
func (s *Service) NotifyNewProduct(ctx context.Context, productID string) (int, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	store, err := s.store.GetStore(ctx, product.StoreID)
	if err != nil {
		return 0, err
	}
	followers, err := s.store.ListFollowerIDs(ctx, store.ID)
	if err != nil {
		return 0, err
	}

	meta := domain.NewProductMetadata{
		ProductID:   product.ID,
		ProductName: product.Name,
		ProductSlug: product.Slug,
		StoreName:   store.Name,
	}
	if len(product.Images) > 0 {
		meta.ImageURL = product.Images[0]
	}

	sent := 0
	for _, followerID := range followers {
		if _, err := s.CreateAndSend(ctx, CreateInput{
			Type:     domain.NotificationNewProduct,
			Title:    fmt.Sprintf("New from %s", store.Name),
			Message:  fmt.Sprintf("%s just published %s.", store.Name, product.Name),
			UserID:   followerID,
			Metadata: meta,
		}); err != nil {
			return sent, err
		}
		sent++
	}
	s.log.Info().Str("product_id", product.ID).Int("followers", sent).Msg("New product fan-out complete")
	return sent, nil
}

// ListForUser pages the viewer's own notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, viewer domain.Identity, cursor string, limit int) (*domain.NotificationPage, error) {
	if !viewer.Authenticated() {
		return nil, domain.Unauthenticated("authentication required")
	}
	return s.list(ctx, database.NotificationScope{UserID: viewer.UserID}, cursor, limit)
}

// ListForStore pages a store's notifications for its owner.
func (s *Service) ListForStore(ctx context.Context, viewer domain.Identity, storeID, cursor string, limit int) (*domain.NotificationPage, error) {
	if err := s.requireOwner(ctx, viewer, storeID); err != nil {
		return nil, err
	}
	return s.list(ctx, database.NotificationScope{StoreID: storeID}, cursor, limit)
}

func (s *Service) list(ctx context.Context, scope database.NotificationScope, cursor string, limit int) (*domain.NotificationPage, error) {
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	items, err := s.store.ListNotifications(ctx, scope, cursor, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Notification{}
	}

	page := &domain.NotificationPage{Items: items}
	if len(items) == limit {
		last := items[len(items)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// UnreadCount counts unread notifications of the viewer, or of storeID when
// set and owned by the viewer.
func (s *Service) UnreadCount(ctx context.Context, viewer domain.Identity, storeID string) (int64, error) {
	scope, err := s.scope(ctx, viewer, storeID)
	if err != nil {
		return 0, err
	}
	return s.store.CountUnreadNotifications(ctx, scope)
}

// MarkAsRead flips one notification to read. Only its addressee, or the owner
// of the store it is addressed to, may do so.
func (s *Service) MarkAsRead(ctx context.Context, viewer domain.Identity, notificationID string) error {
	if !viewer.Authenticated() {
		return domain.Unauthenticated("authentication required")
	}
	n, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if err := s.canRead(ctx, viewer, n); err != nil {
		return err
	}
	return s.store.MarkNotificationRead(ctx, n.ID)
}

func (s *Service) canRead(ctx context.Context, viewer domain.Identity, n *domain.Notification) error {
	if n.UserID != nil && *n.UserID == viewer.UserID {
		return nil
	}
	if n.StoreID != nil {
		err := s.requireOwner(ctx, viewer, *n.StoreID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return domain.Forbidden("notification is addressed to someone else")
}

// MarkAllRead flips every unread notification in scope and returns how many
// changed.
func (s *Service) MarkAllRead(ctx context.Context, viewer domain.Identity, storeID string) (int64, error) {
	scope, err := s.scope(ctx, viewer, storeID)
	if err != nil {
		return 0, err
	}
	return s.store.MarkAllNotificationsRead(ctx, scope)
}

func (s *Service) scope(ctx context.Context, viewer domain.Identity, storeID string) (database.NotificationScope, error) {
	if storeID == "" {
		if !viewer.Authenticated() {
			return database.NotificationScope{}, domain.Unauthenticated("authentication required")
		}
		return database.NotificationScope{UserID: viewer.UserID}, nil
	}
	if err := s.requireOwner(ctx, viewer, storeID); err != nil {
		return database.NotificationScope{}, err
	}
	return database.NotificationScope{StoreID: storeID}, nil
}

func (s *Service) requireOwner(ctx context.Context, viewer domain.Identity, storeID string) error {
	if !viewer.Authenticated() {
		return domain.Unauthenticated("authentication required")
	}
	store, err := s.store.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store.OwnerID != viewer.UserID {
		return domain.Forbidden("not the owner of this store")
	}
	return nil
}
