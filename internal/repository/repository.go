package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

const (
	CartsCollection     = "carts"
	CheckoutsCollection = "checkouts"
	OrdersCollection    = "orders"
	UsersCollection     = "users"
	ProductsCollection  = "products"
	OutboxCollection    = "outbox"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrNotMatched is returned by conditional updates whose filter matched
	// nothing, usually because another request changed the document first.
	ErrNotMatched = errors.New("conditional update matched no document")
	// ErrDuplicateOrder is returned when a checkout already has an order.
	ErrDuplicateOrder = errors.New("checkout already has an order")
)

// Transactor runs fn so that every repository call made with the context it
// receives commits or aborts together.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CartRepository interface {
	FindByOwner(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	// Save inserts the cart when its ID is zero and replaces it otherwise.
	Save(ctx context.Context, cart *models.Cart) error
	// DeleteByOwner reports whether a cart existed.
	DeleteByOwner(ctx context.Context, owner models.CartOwner) (bool, error)
}

type CheckoutRepository interface {
	Create(ctx context.Context, checkout *models.Checkout) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Checkout, error)
	// MarkPaid records a payment on a checkout that is not finalized and
	// returns the updated document.
	MarkPaid(ctx context.Context, id primitive.ObjectID, status string, details *models.PaymentDetails, paidAt time.Time) (*models.Checkout, error)
	// MarkFinalized flips a paid, unfinalized checkout to finalized and
	// returns the updated document. It returns ErrNotMatched when the
	// checkout is not in that state.
	MarkFinalized(ctx context.Context, id, orderID primitive.ObjectID, key string, at time.Time) (*models.Checkout, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	// ListByUser returns the user's orders newest first.
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type ProductFilter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
}

type OutboxRepository interface {
	Insert(ctx context.Context, event *models.OutboxEvent) error
	FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id primitive.ObjectID, at time.Time) error
}
