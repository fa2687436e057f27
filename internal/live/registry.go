// Package live keeps the per-store list of products a seller highlights
// during a live stream. Only product ids are held, in memory; cards are
// resolved from the catalog on every read and publish.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketlive-ws/internal/broker"
	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
)

type Catalog interface {
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	GetStoreProducts(ctx context.Context, storeID string, ids []string) ([]domain.Product, error)
}

type selection struct {
	ids       []string
	updatedAt time.Time
}

// Registry is safe for concurrent use. Concurrent Set calls for one store are
// last-write-wins.
type Registry struct {
	mu         sync.RWMutex
	selections map[string]selection

	catalog   Catalog
	publisher broker.Publisher
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(catalog Catalog, publisher broker.Publisher, opts ...Option) *Registry {
	if publisher == nil {
		publisher = broker.Noop{}
	}
	r := &Registry{
		selections: make(map[string]selection),
		catalog:    catalog,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logging.With("live"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the current selection of storeID resolved to product cards.
// A store that never set one has an empty selection.
func (r *Registry) Get(ctx context.Context, storeID string) (*domain.LiveSelectionPayload, error) {
	if _, err := r.catalog.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	sel := r.load(storeID)
	return r.resolve(ctx, storeID, sel)
}

// Set replaces the selection of storeID with productIDs, deduplicated with
// the first occurrence kept, and publishes the result to the store's live
// room.
func (r *Registry) Set(ctx context.Context, storeID string, productIDs []string, actor domain.Identity) (*domain.LiveSelectionPayload, error) {
	if err := r.requireOwner(ctx, storeID, actor); err != nil {
		return nil, err
	}
	return r.replace(ctx, storeID, dedupe(productIDs))
}

// Toggle turns one product on or off. Turning a product on moves it to the
// front of the selection.
func (r *Registry) Toggle(ctx context.Context, storeID, productID string, on bool, actor domain.Identity) (*domain.LiveSelectionPayload, error) {
	if productID == "" {
		return nil, domain.Validation("product_id is required")
	}
	if err := r.requireOwner(ctx, storeID, actor); err != nil {
		return nil, err
	}

	current := r.load(storeID).ids
	next := make([]string, 0, len(current)+1)
	if on {
		next = append(next, productID)
	}
	for _, id := range current {
		if id != productID {
			next = append(next, id)
		}
	}
	return r.replace(ctx, storeID, next)
}

func (r *Registry) replace(ctx context.Context, storeID string, ids []string) (*domain.LiveSelectionPayload, error) {
	products, err := r.catalog.GetStoreProducts(ctx, storeID, ids)
	if err != nil {
		return nil, err
	}
	if len(products) != len(ids) {
		return nil, domain.Validation("product_ids must reference products of this store")
	}

	sel := selection{ids: ids, updatedAt: r.now()}
	r.mu.Lock()
	r.selections[storeID] = sel
	r.mu.Unlock()

	payload := buildPayload(storeID, sel, products)
	r.publisher.Publish(domain.LiveProductsRoom(storeID), domain.EventLiveProductsUpdated, payload)

	r.log.Debug().Str("store_id", storeID).Int("products", len(ids)).Msg("Live selection updated")
	return payload, nil
}

func (r *Registry) load(storeID string) selection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selections[storeID]
}

// resolve skips products deleted or moved since they were selected.
func (r *Registry) resolve(ctx context.Context, storeID string, sel selection) (*domain.LiveSelectionPayload, error) {
	products, err := r.catalog.GetStoreProducts(ctx, storeID, sel.ids)
	if err != nil {
		return nil, err
	}
	return buildPayload(storeID, sel, products), nil
}

func buildPayload(storeID string, sel selection, products []domain.Product) *domain.LiveSelectionPayload {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	payload := &domain.LiveSelectionPayload{
		StoreID:    storeID,
		ProductIDs: []string{},
		Products:   []domain.ProductCard{},
		UpdatedAt:  sel.updatedAt,
	}
	for _, id := range sel.ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		payload.ProductIDs = append(payload.ProductIDs, id)
		payload.Products = append(payload.Products, domain.ProductCard{
			ID:       p.ID,
			Name:     p.Name,
			Slug:     p.Slug,
			Images:   p.Images,
			Variants: p.Variants,
		})
	}
	return payload
}

func (r *Registry) requireOwner(ctx context.Context, storeID string, actor domain.Identity) error {
	if !actor.Authenticated() {
		return domain.Unauthenticated("authentication required")
	}
	store, err := r.catalog.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store.OwnerID != actor.UserID {
		return domain.Forbidden("not the owner of this store")
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
