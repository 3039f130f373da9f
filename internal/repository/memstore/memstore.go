// Package memstore is an in-memory implementation of the repository
// interfaces. It backs unit tests and local runs without a database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/repository"
)

// Store holds every collection behind one lock. Transactions are serialized
// and roll back by restoring a snapshot taken when they started; writes made
// outside a transaction while one is running are lost if it rolls back.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	carts     map[primitive.ObjectID]models.Cart
	checkouts map[primitive.ObjectID]models.Checkout
	orders    map[primitive.ObjectID]models.Order
	users     map[primitive.ObjectID]models.User
	products  map[primitive.ObjectID]models.Product
	outbox    map[primitive.ObjectID]models.OutboxEvent

	failures map[string]error
}

func New() *Store {
	return &Store{
		carts:     make(map[primitive.ObjectID]models.Cart),
		checkouts: make(map[primitive.ObjectID]models.Checkout),
		orders:    make(map[primitive.ObjectID]models.Order),
		users:     make(map[primitive.ObjectID]models.User),
		products:  make(map[primitive.ObjectID]models.Product),
		outbox:    make(map[primitive.ObjectID]models.OutboxEvent),
		failures:  make(map[string]error),
	}
}

// FailNext makes the next call of op return err. Op names are
// "<collection>.<method>", for example "orders.Create".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// takeFailure must be called with mu held.
func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func (s *Store) Carts() repository.CartRepository         { return cartRepo{s} }
func (s *Store) Checkouts() repository.CheckoutRepository { return checkoutRepo{s} }
func (s *Store) Orders() repository.OrderRepository       { return orderRepo{s} }
func (s *Store) Users() repository.UserRepository         { return userRepo{s} }
func (s *Store) Products() repository.ProductRepository   { return productRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository      { return outboxRepo{s} }

type snapshot struct {
	carts     map[primitive.ObjectID]models.Cart
	checkouts map[primitive.ObjectID]models.Checkout
	orders    map[primitive.ObjectID]models.Order
	users     map[primitive.ObjectID]models.User
	products  map[primitive.ObjectID]models.Product
	outbox    map[primitive.ObjectID]models.OutboxEvent
}

func copyMap[T any](in map[primitive.ObjectID]T) map[primitive.ObjectID]T {
	out := make(map[primitive.ObjectID]T, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Stored values are never mutated in place, so a shallow copy of each map is
// a consistent snapshot.
func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		carts:     copyMap(s.carts),
		checkouts: copyMap(s.checkouts),
		orders:    copyMap(s.orders),
		users:     copyMap(s.users),
		products:  copyMap(s.products),
		outbox:    copyMap(s.outbox),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts = snap.carts
	s.checkouts = snap.checkouts
	s.orders = snap.orders
	s.users = snap.users
	s.products = snap.products
	s.outbox = snap.outbox
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func cloneItems(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, len(items))
	copy(out, items)
	return out
}

type cartRepo struct{ s *Store }

func (r cartRepo) find(owner models.CartOwner) (models.Cart, bool) {
	for _, cart := range r.s.carts {
		if owner.UserID != nil {
			if cart.User != nil && *cart.User == *owner.UserID {
				return cart, true
			}
			continue
		}
		if cart.User == nil && cart.GuestID == owner.GuestID {
			return cart, true
		}
	}
	return models.Cart{}, false
}

func (r cartRepo) FindByOwner(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if owner.IsZero() {
		return nil, repository.ErrNotFound
	}
	cart, ok := r.find(owner)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cart.Products = cloneItems(cart.Products)
	return &cart, nil
}

func (r cartRepo) Save(ctx context.Context, cart *models.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("carts.Save"); err != nil {
		return err
	}

	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
	} else if _, ok := r.s.carts[cart.ID]; !ok {
		return repository.ErrNotFound
	}

	stored := *cart
	stored.Products = cloneItems(cart.Products)
	r.s.carts[cart.ID] = stored
	return nil
}

func (r cartRepo) DeleteByOwner(ctx context.Context, owner models.CartOwner) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("carts.DeleteByOwner"); err != nil {
		return false, err
	}
	if owner.IsZero() {
		return false, nil
	}
	cart, ok := r.find(owner)
	if !ok {
		return false, nil
	}
	delete(r.s.carts, cart.ID)
	return true, nil
}

type checkoutRepo struct{ s *Store }

func (r checkoutRepo) Create(ctx context.Context, checkout *models.Checkout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("checkouts.Create"); err != nil {
		return err
	}

	now := time.Now().UTC()
	if checkout.ID.IsZero() {
		checkout.ID = primitive.NewObjectID()
	}
	checkout.CreatedAt = now
	checkout.UpdatedAt = now

	stored := *checkout
	stored.CheckoutItems = cloneItems(checkout.CheckoutItems)
	r.s.checkouts[checkout.ID] = stored
	return nil
}

func (r checkoutRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Checkout, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	checkout, ok := r.s.checkouts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	checkout.CheckoutItems = cloneItems(checkout.CheckoutItems)
	return &checkout, nil
}

func (r checkoutRepo) MarkPaid(
	ctx context.Context,
	id primitive.ObjectID,
	status string,
	details *models.PaymentDetails,
	paidAt time.Time,
) (*models.Checkout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("checkouts.MarkPaid"); err != nil {
		return nil, err
	}

	checkout, ok := r.s.checkouts[id]
	if !ok || checkout.IsFinalized {
		return nil, repository.ErrNotMatched
	}
	paid := paidAt
	checkout.IsPaid = true
	checkout.PaymentStatus = status
	checkout.PaymentDetails = details
	checkout.PaidAt = &paid
	checkout.UpdatedAt = paidAt
	r.s.checkouts[id] = checkout

	checkout.CheckoutItems = cloneItems(checkout.CheckoutItems)
	return &checkout, nil
}

func (r checkoutRepo) MarkFinalized(ctx context.Context, id, orderID primitive.ObjectID, key string, at time.Time) (*models.Checkout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("checkouts.MarkFinalized"); err != nil {
		return nil, err
	}

	checkout, ok := r.s.checkouts[id]
	if !ok || !checkout.IsPaid || checkout.IsFinalized {
		return nil, repository.ErrNotMatched
	}
	finalizedAt := at
	oid := orderID
	checkout.IsFinalized = true
	checkout.FinalizedAt = &finalizedAt
	checkout.OrderID = &oid
	if key != "" {
		checkout.FinalizeKey = key
	}
	checkout.UpdatedAt = at
	r.s.checkouts[id] = checkout

	checkout.CheckoutItems = cloneItems(checkout.CheckoutItems)
	return &checkout, nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("orders.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.orders {
		if existing.CheckoutID == order.CheckoutID && !order.CheckoutID.IsZero() {
			return repository.ErrDuplicateOrder
		}
	}

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	stored := *order
	stored.OrderItems = cloneItems(order.OrderItems)
	r.s.orders[order.ID] = stored
	return nil
}

func (r orderRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	order.OrderItems = cloneItems(order.OrderItems)
	return &order, nil
}

func (r orderRepo) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("orders.ListByUser"); err != nil {
		return nil, err
	}

	orders := []models.Order{}
	for _, order := range r.s.orders {
		if order.User == userID {
			order.OrderItems = cloneItems(order.OrderItems)
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID.Hex() > orders[j].ID.Hex()
	})
	return orders, nil
}


type userRepo struct{ s *Store }

func (r userRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.PasswordHash = ""
	return &user, nil
}

func (r userRepo) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range r.s.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}

	now := time.Now().UTC()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	return nil
}

type productRepo struct{ s *Store }

func (r productRepo) List(ctx context.Context, filter repository.ProductFilter) ([]models.Product, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	category := strings.TrimSpace(filter.Category)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	matched := []models.Product{}
	for _, product := range r.s.products {
		if !product.IsPublished {
			continue
		}
		if category != "" && product.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(product.Name), search) {
			continue
		}
		product.Decorate()
		matched = append(matched, product)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.Hex() > matched[j].ID.Hex()
	})

	total := int64(len(matched))
	if filter.Page > 0 && filter.Limit > 0 {
		start := (filter.Page - 1) * filter.Limit
		if start >= len(matched) {
			return []models.Product{}, total, nil
		}
		end := start + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (r productRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	product, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	product.Decorate()
	return &product, nil
}

func (r productRepo) Create(ctx context.Context, product *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	r.s.products[product.ID] = *product
	return nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Insert(ctx context.Context, event *models.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("outbox.Insert"); err != nil {
		return err
	}

	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.s.outbox[event.ID] = *event
	return nil
}

func (r outboxRepo) FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	events := []models.OutboxEvent{}
	for _, event := range r.s.outbox {
		if event.PublishedAt == nil {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID.Hex() < events[j].ID.Hex()
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r outboxRepo) MarkPublished(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure("outbox.MarkPublished"); err != nil {
		return err
	}

	event, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	published := at
	event.PublishedAt = &published
	r.s.outbox[id] = event
	return nil
}

// CountOrdersForCheckout reports how many orders reference the checkout.
func (s *Store) CountOrdersForCheckout(checkoutID primitive.ObjectID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, order := range s.orders {
		if order.CheckoutID == checkoutID {
			count++
		}
	}
	return count
}

// CountOutbox reports the number of stored events, published or not.
func (s *Store) CountOutbox() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outbox)
}
