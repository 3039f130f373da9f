package cache

import (
	"context"
	"errors"

	"storefront/internal/models"
)

// CartCache stores carts by owner key (see models.CartOwner.CacheKey).
//
// Readers call Version before loading a cart from the store and pass the
// result to Set. Delete bumps the version, so a load that raced with an
// invalidation is never written back.
type CartCache interface {
	Get(ctx context.Context, key string) (*models.Cart, error)
	Version(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, cart *models.Cart, version int64) error
	Delete(ctx context.Context, key string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale is returned by Set when the key was invalidated after the
	// caller read its version.
	ErrStale = errors.New("cache entry invalidated since read")
)

// NoopCache is used when no redis address is configured. Every Get misses.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) (*models.Cart, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Version(ctx context.Context, key string) (int64, error) {
	return 0, nil
}

func (NoopCache) Set(ctx context.Context, key string, cart *models.Cart, version int64) error {
	return nil
}

func (NoopCache) Delete(ctx context.Context, key string) error {
	return nil
}
