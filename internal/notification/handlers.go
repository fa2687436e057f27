package notification

import (
	"context"

	"marketlive-ws/internal/domain"
)

// The Handle methods adapt consumed domain events to the Notify methods.

func (s *Service) HandleOrderPlaced(ctx context.Context, ev domain.OrderPlacedEvent) error {
	return s.NotifyOrderPlaced(ctx, ev.OrderID, ev.UserID, ev.StoreID, ev.Order)
}

func (s *Service) HandlePaymentStatusChanged(ctx context.Context, ev domain.PaymentStatusChangedEvent) error {
	return s.NotifyPaymentStatusChanged(ctx, ev.OrderID, ev.UserID, ev.StoreID, ev.OldStatus, ev.NewStatus, ev.Payment)
}

func (s *Service) HandleOrderCancelled(ctx context.Context, ev domain.OrderCancelledEvent) error {
	return s.NotifyOrderCancelled(ctx, ev.OrderID, ev.UserID, ev.StoreID, ev.Order)
}

func (s *Service) HandleProductPublished(ctx context.Context, ev domain.ProductPublishedEvent) error {
	_, err := s.NotifyNewProduct(ctx, ev.ProductID)
	return err
}
