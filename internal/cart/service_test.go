package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/cache"
	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/repository/memstore"
)

type mockCache struct {
	m        sync.Mutex
	entries  map[string]*models.Cart
	versions map[string]int64
	deletes  []string
	getErr   error
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]*models.Cart{}, versions: map[string]int64{}}
}

func (m *mockCache) Get(_ context.Context, key string) (*models.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Version(_ context.Context, key string) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.versions[key], nil
}

func (m *mockCache) Set(_ context.Context, key string, c *models.Cart, version int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.versions[key] != version {
		return cache.ErrStale
	}
	m.entries[key] = c
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.entries, key)
	m.versions[key]++
	m.deletes = append(m.deletes, key)
	return nil
}

func (m *mockCache) has(key string) bool {
	m.m.Lock()
	defer m.m.Unlock()
	_, ok := m.entries[key]
	return ok
}

func setup(t *testing.T) (*Service, *memstore.Store, *mockCache, *models.Product) {
	t.Helper()
	store := memstore.New()
	product := &models.Product{
		Name:          "Slim Fit Shirt",
		Price:         60,
		DiscountPrice: 45,
		Images:        models.StringList{"https://cdn.example.com/shirt.jpg"},
		IsPublished:   true,
		CountInStock:  10,
	}
	require.NoError(t, store.Products().Create(context.Background(), product))

	c := newMockCache()
	return NewService(store.Carts(), store.Products(), c), store, c, product
}

func TestAddCreatesGuestCartWithCatalogFields(t *testing.T) {
	svc, _, _, product := setup(t)

	c, err := svc.Add(context.Background(), AddInput{ProductID: product.ID, Quantity: 2, Size: "M"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(c.GuestID, "guest_"))
	assert.Nil(t, c.User)
	require.Len(t, c.Products, 1)
	assert.Equal(t, "Slim Fit Shirt", c.Products[0].Name)
	assert.Equal(t, "https://cdn.example.com/shirt.jpg", c.Products[0].Image)
	assert.Equal(t, 45.0, c.Products[0].Price)
	assert.Equal(t, 90.0, c.TotalPrice)
}

func TestAddMergesExistingLine(t *testing.T) {
	svc, _, _, product := setup(t)
	ctx := context.Background()
	owner := models.UserOwner(primitive.NewObjectID())

	_, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 1, Color: "Blue"})
	require.NoError(t, err)
	c, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 2, Color: "Blue"})
	require.NoError(t, err)

	require.Len(t, c.Products, 1)
	assert.Equal(t, 3, c.Products[0].Quantity)
}

func TestAddUsesCallerPrice(t *testing.T) {
	svc, _, _, product := setup(t)
	price := 500.0

	c, err := svc.Add(context.Background(), AddInput{
		Owner:     models.GuestOwner("guest_x"),
		ProductID: product.ID,
		Quantity:  2,
		Name:      "Custom",
		Image:     "img.png",
		Price:     &price,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, c.TotalPrice)
	assert.Equal(t, "Custom", c.Products[0].Name)
}

func TestAddRejectsUnknownProductAndBadQuantity(t *testing.T) {
	svc, _, _, product := setup(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, AddInput{ProductID: primitive.NewObjectID(), Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Add(ctx, AddInput{ProductID: product.ID, Quantity: 0})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAddRejectsUnavailableVariant(t *testing.T) {
	svc, store, _, _ := setup(t)
	ctx := context.Background()

	jacket := &models.Product{
		Name:        "Jacket",
		Price:       90,
		Sizes:       models.StringList{"M", "L"},
		Colors:      models.StringList{"Olive"},
		IsPublished: true,
	}
	require.NoError(t, store.Products().Create(ctx, jacket))

	_, err := svc.Add(ctx, AddInput{ProductID: jacket.ID, Quantity: 1, Size: "XS"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Add(ctx, AddInput{ProductID: jacket.ID, Quantity: 1, Size: "m", Color: "Pink"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	c, err := svc.Add(ctx, AddInput{ProductID: jacket.ID, Quantity: 1, Size: "L", Color: "olive"})
	require.NoError(t, err)
	assert.Equal(t, 90.0, c.TotalPrice)
}

func TestGetReadsThroughCache(t *testing.T) {
	svc, _, c, product := setup(t)
	ctx := context.Background()
	owner := models.GuestOwner("guest_cache")

	_, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, c.has(owner.CacheKey()))

	got, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, got.Products, 1)
	assert.True(t, c.has(owner.CacheKey()))

	_, err = svc.UpdateQuantity(ctx, owner, models.LineKey{ProductID: product.ID}, 4)
	require.NoError(t, err)
	assert.False(t, c.has(owner.CacheKey()), "mutation should invalidate the cached cart")
}

func TestGetFallsBackWhenCacheFails(t *testing.T) {
	svc, _, c, product := setup(t)
	ctx := context.Background()
	owner := models.GuestOwner("guest_fallback")

	_, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	c.getErr = errors.New("redis down")

	got, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, got.Products, 1)
}

func TestGetMissingCart(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.Get(context.Background(), models.GuestOwner("guest_none"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Get(context.Background(), models.CartOwner{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	svc, _, _, product := setup(t)
	ctx := context.Background()
	owner := models.GuestOwner("guest_zero")

	_, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)

	c, err := svc.UpdateQuantity(ctx, owner, models.LineKey{ProductID: product.ID}, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Products)
	assert.Equal(t, 0.0, c.TotalPrice)

	_, err = svc.UpdateQuantity(ctx, owner, models.LineKey{ProductID: product.ID}, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRemoveDistinguishesVariants(t *testing.T) {
	svc, _, _, product := setup(t)
	ctx := context.Background()
	owner := models.GuestOwner("guest_variants")

	_, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 1, Size: "S"})
	require.NoError(t, err)
	_, err = svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 1, Size: "L"})
	require.NoError(t, err)

	c, err := svc.Remove(ctx, owner, models.LineKey{ProductID: product.ID, Size: "S"})
	require.NoError(t, err)
	require.Len(t, c.Products, 1)
	assert.Equal(t, "L", c.Products[0].Size)

	_, err = svc.Remove(ctx, owner, models.LineKey{ProductID: product.ID, Size: "XL"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMergeSumsIntoUserCart(t *testing.T) {
	svc, store, _, product := setup(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.Add(ctx, AddInput{Owner: models.UserOwner(userID), ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Add(ctx, AddInput{Owner: models.GuestOwner("guest_m"), ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, "guest_m", userID)
	require.NoError(t, err)
	require.Len(t, merged.Products, 1)
	assert.Equal(t, 3, merged.Products[0].Quantity)

	_, err = store.Carts().FindByOwner(ctx, models.GuestOwner("guest_m"))
	assert.Error(t, err, "guest cart should be deleted")
}

func TestMergeReownsGuestCart(t *testing.T) {
	svc, _, _, product := setup(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.Add(ctx, AddInput{Owner: models.GuestOwner("guest_r"), ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, "guest_r", userID)
	require.NoError(t, err)
	require.NotNil(t, merged.User)
	assert.Equal(t, userID, *merged.User)
	assert.Empty(t, merged.GuestID)

	got, err := svc.Get(ctx, models.UserOwner(userID))
	require.NoError(t, err)
	assert.Len(t, got.Products, 1)
}

func TestMergeWithoutGuestCart(t *testing.T) {
	svc, _, _, product := setup(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.Merge(ctx, "guest_missing", userID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Add(ctx, AddInput{Owner: models.UserOwner(userID), ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	got, err := svc.Merge(ctx, "guest_missing", userID)
	require.NoError(t, err)
	assert.Len(t, got.Products, 1)
}

func TestInvalidateDropsCachedCart(t *testing.T) {
	svc, store, c, product := setup(t)
	ctx := context.Background()
	owner := models.GuestOwner("guest_invalidate")

	_, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Get(ctx, owner)
	require.NoError(t, err)
	require.True(t, c.has(owner.CacheKey()))

	_, err = store.Carts().DeleteByOwner(ctx, owner)
	require.NoError(t, err)
	svc.Invalidate(owner)
	assert.False(t, c.has(owner.CacheKey()))

	_, err = svc.Get(ctx, owner)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGetUserWithoutCartReturnsEmptyCart(t *testing.T) {
	svc, _, c, _ := setup(t)
	userID := primitive.NewObjectID()
	owner := models.UserOwner(userID)

	got, err := svc.Get(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, got.User)
	assert.Equal(t, userID, *got.User)
	assert.NotNil(t, got.Products)
	assert.Empty(t, got.Products)
	assert.False(t, c.has(owner.CacheKey()))
}

// pausingRepo blocks FindByOwner after the store read until release is
// closed, so a test can change the store while a load is in flight.
type pausingRepo struct {
	repository.CartRepository
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPausingRepo(inner repository.CartRepository) *pausingRepo {
	return &pausingRepo{CartRepository: inner, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingRepo) FindByOwner(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	c, err := p.CartRepository.FindByOwner(ctx, owner)
	paused := false
	p.once.Do(func() { paused = true })
	if paused {
		close(p.loaded)
		<-p.release
	}
	return c, err
}

func TestGetDoesNotCacheCartDeletedDuringLoad(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	owner := models.UserOwner(primitive.NewObjectID())

	seeded := models.NewCart(owner)
	seeded.Add(models.LineItem{ProductID: primitive.NewObjectID(), Name: "Shirt", Price: 500, Quantity: 2})
	require.NoError(t, store.Carts().Save(ctx, seeded))

	repo := newPausingRepo(store.Carts())
	c := newMockCache()
	svc := NewService(repo, store.Products(), c)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, owner)
		done <- err
	}()

	<-repo.loaded
	_, err := store.Carts().DeleteByOwner(ctx, owner)
	require.NoError(t, err)
	svc.Invalidate(owner)
	close(repo.release)
	require.NoError(t, <-done)

	assert.False(t, c.has(owner.CacheKey()), "stale load must not refill the cache")

	got, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, got.Products)
	assert.Equal(t, 0.0, got.TotalPrice)
}

func TestGetSurvivesCancelledLeader(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	owner := models.GuestOwner("guest_leader")

	seeded := models.NewCart(owner)
	seeded.Add(models.LineItem{ProductID: primitive.NewObjectID(), Name: "Cap", Price: 20, Quantity: 1})
	require.NoError(t, store.Carts().Save(ctx, seeded))

	repo := newPausingRepo(store.Carts())
	svc := NewService(repo, store.Products(), newMockCache())

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Get(leaderCtx, owner)
		leaderErr <- err
	}()
	<-repo.loaded

	followerDone := make(chan *models.Cart, 1)
	go func() {
		got, err := svc.Get(ctx, owner)
		assert.NoError(t, err)
		followerDone <- got
	}()

	cancelLeader()
	assert.Error(t, <-leaderErr)

	close(repo.release)
	got := <-followerDone
	require.NotNil(t, got)
	assert.Len(t, got.Products, 1)
}

func TestConcurrentGetsShareResult(t *testing.T) {
	svc, _, _, product := setup(t)
	ctx := context.Background()
	owner := models.GuestOwner("guest_concurrent")

	_, err := svc.Add(ctx, AddInput{Owner: owner, ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Get(ctx, owner)
			assert.NoError(t, err)
			assert.Len(t, got.Products, 1)
		}()
	}
	wg.Wait()
}
