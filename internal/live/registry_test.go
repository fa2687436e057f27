package live

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

func (r *recordingPublisher) last() published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	catalog  *database.Store
	pub      *recordingPublisher
	registry *Registry
	shop     *domain.Store
	owner    domain.Identity
	products map[string]*domain.Product
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	catalog, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	f := &fixture{
		catalog:  catalog,
		pub:      &recordingPublisher{},
		owner:    domain.Identity{UserID: "seller", Role: domain.RoleSeller},
		products: map[string]*domain.Product{},
	}
	f.shop = &domain.Store{ID: uuid.New().String(), OwnerID: f.owner.UserID, Name: "Live Shop"}
	require.NoError(t, catalog.CreateStore(ctx, f.shop))

	for _, name := range names {
		p := &domain.Product{
			ID:       name,
			StoreID:  f.shop.ID,
			Name:     "Product " + name,
			Slug:     "product-" + name,
			Images:   []string{name + ".jpg"},
			Variants: []domain.ProductVariant{{Size: "M", Price: 19.99}},
		}
		require.NoError(t, catalog.CreateProduct(ctx, p))
		f.products[name] = p
	}

	now := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	f.registry = NewRegistry(catalog, f.pub, WithClock(func() time.Time { return now }))
	return f
}

func TestRegistry_GetEmpty(t *testing.T) {
	f := newFixture(t)

	got, err := f.registry.Get(context.Background(), f.shop.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ProductIDs)
	assert.NotNil(t, got.Products)
	assert.Empty(t, f.pub.events)
}

func TestRegistry_SetDedupesKeepingFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")

	set, err := f.registry.Set(ctx, f.shop.ID, []string{"b", "a", "a", "c"}, f.owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, set.ProductIDs)

	got, err := f.registry.Get(ctx, f.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, got.ProductIDs)
	require.Len(t, got.Products, 3)
	assert.Equal(t, "Product b", got.Products[0].Name)
	assert.Equal(t, []string{"b.jpg"}, got.Products[0].Images)
	assert.Equal(t, 19.99, got.Products[0].Variants[0].Price)

	ev := f.pub.last()
	assert.Equal(t, domain.LiveProductsRoom(f.shop.ID), ev.Room)
	assert.Equal(t, domain.EventLiveProductsUpdated, ev.Event)
	assert.Equal(t, set, ev.Payload)
}

func TestRegistry_GetResolvesFreshProductData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")

	_, err := f.registry.Set(ctx, f.shop.ID, []string{"a"}, f.owner)
	require.NoError(t, err)

	require.NoError(t, f.catalog.DB().Model(&domain.Product{}).Where("id = ?", "a").Update("name", "Renamed").Error)

	got, err := f.registry.Get(ctx, f.shop.ID)
	require.NoError(t, err)
	require.Len(t, got.Products, 1)
	assert.Equal(t, "Renamed", got.Products[0].Name)
}

func TestRegistry_ToggleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "P1", "P2")

	steps := []struct {
		product string
		on      bool
		want    []string
	}{
		{"P1", true, []string{"P1"}},
		{"P2", true, []string{"P2", "P1"}},
		{"P1", false, []string{"P2"}},
	}

	for i, step := range steps {
		got, err := f.registry.Toggle(ctx, f.shop.ID, step.product, step.on, f.owner)
		require.NoError(t, err)
		assert.Equal(t, step.want, got.ProductIDs)

		require.Len(t, f.pub.events, i+1)
		payload := f.pub.last().Payload.(*domain.LiveSelectionPayload)
		assert.Equal(t, step.want, payload.ProductIDs)
		assert.Len(t, payload.Products, len(step.want))
	}
}

func TestRegistry_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")

	_, err := f.registry.Set(ctx, f.shop.ID, []string{"a"}, domain.Identity{UserID: "viewer"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.registry.Toggle(ctx, f.shop.ID, "a", true, domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.registry.Set(ctx, "missing", []string{"a"}, f.owner)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.registry.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Empty(t, f.pub.events)
}

func TestRegistry_RejectsForeignProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")

	_, err := f.registry.Set(ctx, f.shop.ID, []string{"a", "not-ours"}, f.owner)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.registry.Get(ctx, f.shop.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ProductIDs)
}

func TestRegistry_SetIsWholeListSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")

	_, err := f.registry.Set(ctx, f.shop.ID, []string{"a", "b"}, f.owner)
	require.NoError(t, err)
	got, err := f.registry.Set(ctx, f.shop.ID, []string{"b"}, f.owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.ProductIDs)

	got, err = f.registry.Set(ctx, f.shop.ID, nil, f.owner)
	require.NoError(t, err)
	assert.Empty(t, got.ProductIDs)
}

func TestRegistry_ConcurrentSets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []string{"a"}
			if i%2 == 0 {
				ids = []string{"b"}
			}
			_, err := f.registry.Set(ctx, f.shop.ID, ids, f.owner)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := f.registry.Get(ctx, f.shop.ID)
	require.NoError(t, err)
	assert.Len(t, got.ProductIDs, 1)
}
