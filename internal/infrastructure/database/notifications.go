package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"marketlive-ws/internal/domain"
)

// NotificationScope addresses either a user's or a store's notifications.
type NotificationScope struct {
	UserID  string
	StoreID string
}

func (sc NotificationScope) apply(q *gorm.DB) *gorm.DB {
	if sc.StoreID != "" {
		return q.Where("store_id = ?", sc.StoreID)
	}
	return q.Where("user_id = ?", sc.UserID)
}

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "notification")
	}
	return &n, nil
}

// ListNotifications returns up to limit notifications of a scope, newest
// first, starting after the notification whose id is cursor. The cursor must
// belong to the same scope.
func (s *Store) ListNotifications(ctx context.Context, scope NotificationScope, cursor string, limit int) ([]domain.Notification, error) {
	db := s.db.WithContext(ctx)
	q := scope.apply(db.Model(&domain.Notification{}))

	if cursor != "" {
		var c domain.Notification
		if err := scope.apply(db.Select("id", "created_at")).First(&c, "id = ?", cursor).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domain.Validation("invalid cursor")
			}
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var items []domain.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, scope NotificationScope) (int64, error) {
	var n int64
	q := scope.apply(s.db.WithContext(ctx).Model(&domain.Notification{}))
	if err := q.Where("status = ?", domain.NotificationUnread).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("status", domain.NotificationRead)
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("notification not found")
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, scope NotificationScope) (int64, error) {
	q := scope.apply(s.db.WithContext(ctx).Model(&domain.Notification{}))
	result := q.Where("status = ?", domain.NotificationUnread).Update("status", domain.NotificationRead)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
