package database

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"marketlive-ws/internal/domain"
)

// UpsertOnlineStatus writes the one row kept per user. Last writer wins.
func (s *Store) UpsertOnlineStatus(ctx context.Context, st *domain.OnlineStatus) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen_at"}),
	}).Create(st).Error
	if err != nil {
		return fmt.Errorf("failed to upsert online status: %w", err)
	}
	return nil
}

func (s *Store) GetOnlineStatus(ctx context.Context, userID string) (*domain.OnlineStatus, error) {
	var st domain.OnlineStatus
	if err := s.db.WithContext(ctx).First(&st, "user_id = ?", userID).Error; err != nil {
		return nil, lookupError(err, "online status")
	}
	return &st, nil
}
