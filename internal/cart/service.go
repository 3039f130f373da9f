// Package cart keeps per-user and per-guest carts behind a read-through cache.
package cart

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/cache"
	"storefront/internal/models"
	"storefront/internal/repository"
)

const (
	guestPrefix = "guest_"
	loadTimeout = 5 * time.Second
)

type Catalog interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
}

type Service struct {
	repo     repository.CartRepository
	products Catalog
	cache    cache.CartCache
	sfg      singleflight.Group
}

func NewService(repo repository.CartRepository, products Catalog, c cache.CartCache) *Service {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &Service{repo: repo, products: products, cache: c}
}

// AddInput describes one line to add. Name, Image and Price are taken from
// the catalog when left empty.
type AddInput struct {
	Owner     models.CartOwner
	ProductID primitive.ObjectID
	Quantity  int
	Size      string
	Color     string
	Name      string
	Image     string
	Price     *float64
}

// NewGuestID mints a guest identifier for a visitor without one.
func NewGuestID() string {
	return guestPrefix + uuid.NewString()
}

// Get returns the owner's cart. A signed-in user without a stored cart gets an
// empty one; a missing guest cart is NotFound.
func (s *Service) Get(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, apperr.Validation("user ID or guest ID is required")
	}

	key := owner.CacheKey()
	ch := s.sfg.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter on key, so one caller's cancellation must not
		// fail the rest.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.readThrough(loadCtx, owner)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, apperr.Store("server error", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, repository.ErrNotFound) {
			if owner.UserID != nil {
				return models.NewCart(owner), nil
			}
			return nil, apperr.NotFound("cart not found")
		}
		return nil, apperr.Store("server error", res.Err)
	}

	// Callers that share a singleflight result must not share the slice.
	out := *res.Val.(*models.Cart)
	out.Products = append([]models.LineItem{}, out.Products...)
	return &out, nil
}

func (s *Service) readThrough(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	key := owner.CacheKey()
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("[CART] [WARN] cache get error key=%s: %v", key, err)
	}

	// The version is read before the store so an invalidation that lands
	// during the load makes the fill below a no-op.
	version, verErr := s.cache.Version(ctx, key)
	if verErr != nil {
		log.Printf("[CART] [WARN] cache version error key=%s: %v", key, verErr)
	}

	stored, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	if verErr == nil {
		setCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := s.cache.Set(setCtx, key, stored, version); err != nil {
			if errors.Is(err, cache.ErrStale) {
				log.Printf("[CART] [INFO] skipped stale cache fill key=%s", key)
			} else {
				log.Printf("[CART] [WARN] cache set error key=%s: %v", key, err)
			}
		}
	}
	return stored, nil
}

func (s *Service) load(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	stored, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("cart not found")
		}
		return nil, apperr.Store("server error", err)
	}
	return stored, nil
}

func (s *Service) save(ctx context.Context, c *models.Cart) error {
	if err := s.repo.Save(ctx, c); err != nil {
		return apperr.Store("server error", err)
	}
	s.Invalidate(c.Owner())
	return nil
}

func (s *Service) Add(ctx context.Context, in AddInput) (*models.Cart, error) {
	if in.ProductID.IsZero() {
		return nil, apperr.Validation("productId is required")
	}
	if in.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}
	if in.Owner.IsZero() {
		in.Owner = models.GuestOwner(NewGuestID())
	}

	item, err := s.lineFor(ctx, in)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.FindByOwner(ctx, in.Owner)
	if errors.Is(err, repository.ErrNotFound) {
		c = models.NewCart(in.Owner)
	} else if err != nil {
		return nil, apperr.Store("server error", err)
	}

	c.Add(item)
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) lineFor(ctx context.Context, in AddInput) (models.LineItem, error) {
	item := models.LineItem{
		ProductID: in.ProductID,
		Name:      in.Name,
		Image:     in.Image,
		Quantity:  in.Quantity,
		Size:      in.Size,
		Color:     in.Color,
	}
	if in.Price != nil {
		item.Price = *in.Price
	}
	if item.Name != "" && item.Image != "" && in.Price != nil {
		return item, nil
	}

	product, err := s.products.FindByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return item, apperr.NotFound("product not found")
		}
		return item, apperr.Store("server error", err)
	}
	if in.Size != "" && len(product.Sizes) > 0 && !product.Sizes.Contains(in.Size) {
		return item, apperr.Validation("size is not available")
	}
	if in.Color != "" && len(product.Colors) > 0 && !product.Colors.Contains(in.Color) {
		return item, apperr.Validation("color is not available")
	}
	if item.Name == "" {
		item.Name = product.Name
	}
	if item.Image == "" {
		item.Image = product.PrimaryImage()
	}
	if in.Price == nil {
		item.Price = product.EffectivePrice()
	}
	return item, nil
}

// UpdateQuantity sets the quantity of an existing line; zero removes it.
func (s *Service) UpdateQuantity(ctx context.Context, owner models.CartOwner, key models.LineKey, quantity int) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, apperr.Validation("user ID or guest ID is required")
	}
	if quantity < 0 {
		return nil, apperr.Validation("quantity must not be negative")
	}

	c, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !c.SetQuantity(key, quantity) {
		return nil, apperr.NotFound("product not found in cart")
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Remove(ctx context.Context, owner models.CartOwner, key models.LineKey) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, apperr.Validation("user ID or guest ID is required")
	}

	c, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !c.Remove(key) {
		return nil, apperr.NotFound("product not found in cart")
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Merge moves a guest cart into the user's cart after login. Matching lines
// have their quantities summed and the guest cart is deleted. When the user
// has no cart the guest cart is handed over as is.
func (s *Service) Merge(ctx context.Context, guestID string, userID primitive.ObjectID) (*models.Cart, error) {
	if guestID == "" {
		return nil, apperr.Validation("guest ID is required")
	}
	guestOwner := models.GuestOwner(guestID)
	userOwner := models.UserOwner(userID)

	guestCart, err := s.repo.FindByOwner(ctx, guestOwner)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Store("server error", err)
	}
	userCart, err := s.repo.FindByOwner(ctx, userOwner)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Store("server error", err)
	}

	if guestCart == nil || len(guestCart.Products) == 0 {
		if userCart != nil {
			return userCart, nil
		}
		return nil, apperr.NotFound("guest cart is empty")
	}

	if userCart == nil {
		guestCart.User = &userID
		guestCart.GuestID = ""
		if err := s.repo.Save(ctx, guestCart); err != nil {
			return nil, apperr.Store("server error", err)
		}
		s.Invalidate(guestOwner)
		s.Invalidate(userOwner)
		return guestCart, nil
	}

	for _, item := range guestCart.Products {
		userCart.Add(item)
	}
	if err := s.repo.Save(ctx, userCart); err != nil {
		return nil, apperr.Store("server error", err)
	}
	if _, err := s.repo.DeleteByOwner(ctx, guestOwner); err != nil {
		log.Printf("[CART] [WARN] guest cart delete failed guest=%s: %v", guestID, err)
	}
	s.Invalidate(guestOwner)
	s.Invalidate(userOwner)
	return userCart, nil
}

// Invalidate drops the cached copy of the owner's cart.
func (s *Service) Invalidate(owner models.CartOwner) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, owner.CacheKey()); err != nil {
		log.Printf("[CART] [WARN] cache invalidate error key=%s: %v", owner.CacheKey(), err)
	}
}
