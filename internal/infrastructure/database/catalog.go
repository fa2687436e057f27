package database

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"marketlive-ws/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "user")
	}
	return &u, nil
}

func (s *Store) CreateStore(ctx context.Context, st *domain.Store) error {
	if err := s.db.WithContext(ctx).Create(st).Error; err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	return nil
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	var st domain.Store
	if err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "store")
	}
	return &st, nil
}

// ListStoreIDsByOwner returns the ids of every store owned by userID.
func (s *Store) ListStoreIDsByOwner(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&domain.Store{}).
		Where("owner_id = ?", userID).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	return ids, nil
}

// FollowStore is idempotent.
func (s *Store) FollowStore(ctx context.Context, f *domain.StoreFollower) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error
	if err != nil {
		return fmt.Errorf("failed to follow store: %w", err)
	}
	return nil
}

func (s *Store) ListFollowerIDs(ctx context.Context, storeID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&domain.StoreFollower{}).
		Where("store_id = ?", storeID).
		Order("created_at").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	return ids, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "product")
	}
	return &p, nil
}

// GetStoreProducts loads the products of storeID among ids, in no particular
// order. Ids that are unknown or belong to another store are left out.
func (s *Store) GetStoreProducts(ctx context.Context, storeID string, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []domain.Product
	err := s.db.WithContext(ctx).
		Where("store_id = ? AND id IN ?", storeID, ids).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return products, nil
}
