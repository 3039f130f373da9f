// Package checkout turns carts into checkout sessions and paid sessions into
// orders.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/outbox"
	"storefront/internal/repository"
)

// CartInvalidator drops cached carts once the finalizing transaction commits.
type CartInvalidator interface {
	Invalidate(owner models.CartOwner)
}

type FinalizeObserver interface {
	ObserveFinalize(outcome string)
}

type Service struct {
	tx        repository.Transactor
	checkouts repository.CheckoutRepository
	orders    repository.OrderRepository
	carts     repository.CartRepository
	outbox    repository.OutboxRepository
	cartCache CartInvalidator
	observer  FinalizeObserver
	now       func() time.Time
}

type Deps struct {
	Tx        repository.Transactor
	Checkouts repository.CheckoutRepository
	Orders    repository.OrderRepository
	Carts     repository.CartRepository
	Outbox    repository.OutboxRepository
	CartCache CartInvalidator
	Observer  FinalizeObserver
}

func NewService(d Deps) *Service {
	return &Service{
		tx:        d.Tx,
		checkouts: d.Checkouts,
		orders:    d.Orders,
		carts:     d.Carts,
		outbox:    d.Outbox,
		cartCache: d.CartCache,
		observer:  d.Observer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreateInput struct {
	User            primitive.ObjectID
	Items           []models.LineItem
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
	TotalPrice      float64
}

// FinalizeResult carries the order and whether it was returned from an
// earlier finalization with the same idempotency key.
type FinalizeResult struct {
	Order    *models.Order
	Replayed bool
}

var errLostRace = errors.New("checkout changed during finalization")

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound("checkout not found")
	}
	return oid, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Checkout, error) {
	if len(in.Items) == 0 {
		return nil, apperr.Validation("no items in checkout")
	}

	items := make([]models.LineItem, len(in.Items))
	copy(items, in.Items)

	checkout := &models.Checkout{
		User:            in.User,
		CheckoutItems:   items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		TotalPrice:      in.TotalPrice,
		PaymentStatus:   models.PaymentStatusPending,
	}
	if err := s.checkouts.Create(ctx, checkout); err != nil {
		return nil, apperr.Store("server error", err)
	}

	log.Printf("[CHECKOUT] [INFO] created id=%s user=%s items=%d total=%.2f",
		checkout.ID.Hex(), in.User.Hex(), len(items), in.TotalPrice)
	return checkout, nil
}

// ConfirmPayment records an external payment outcome. Only the exact status
// "paid" is accepted.
func (s *Service) ConfirmPayment(ctx context.Context, id string, callerID primitive.ObjectID, status string, rawDetails json.RawMessage) (*models.Checkout, error) {
	current, err := s.ownedCheckout(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	oid := current.ID
	if status != models.PaymentStatusPaid {
		return nil, apperr.Validation("invalid payment status")
	}
	details, err := models.ParsePaymentDetails(rawDetails)
	if err != nil {
		return nil, apperr.Validation("invalid payment details")
	}
	if current.IsFinalized {
		return nil, apperr.Conflict("checkout already finalized")
	}

	updated, err := s.checkouts.MarkPaid(ctx, oid, status, details, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotMatched) {
			return nil, apperr.Conflict("checkout already finalized")
		}
		return nil, apperr.Store("server error", err)
	}

	kind := "none"
	if details != nil {
		kind = string(details.Kind)
	}
	log.Printf("[CHECKOUT] [INFO] paid id=%s details=%s", oid.Hex(), kind)
	return updated, nil
}

// Finalize converts a paid checkout into an order. The checkout update, the
// order insert, the cart delete and the outbox insert commit together, and
// the conditional checkout update admits exactly one finalizer.
func (s *Service) Finalize(ctx context.Context, id string, callerID primitive.ObjectID, idempotencyKey string) (*FinalizeResult, error) {
	current, err := s.ownedCheckout(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	oid := current.ID
	if err := guard(current); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return s.replayOrConflict(ctx, current, idempotencyKey)
		}
		s.observe("not_paid")
		return nil, err
	}

	now := s.now()
	orderID := primitive.NewObjectID()
	var order *models.Order

	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		// The order is built from the document the conditional update
		// returned, not from the read above, so a payment confirmation that
		// landed in between is carried over.
		finalized, err := s.checkouts.MarkFinalized(txCtx, oid, orderID, idempotencyKey, now)
		if err != nil {
			if errors.Is(err, repository.ErrNotMatched) {
				return errLostRace
			}
			return err
		}
		order = orderFrom(finalized, orderID, now)
		if err := s.orders.Create(txCtx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicateOrder) {
				return errLostRace
			}
			return err
		}
		if _, err := s.carts.DeleteByOwner(txCtx, models.UserOwner(current.User)); err != nil {
			return err
		}
		event, err := outbox.OrderFinalizedEvent(order, now)
		if err != nil {
			return err
		}
		return s.outbox.Insert(txCtx, event)
	})
	if err != nil {
		if errors.Is(err, errLostRace) {
			return s.afterLostRace(ctx, oid, idempotencyKey)
		}
		log.Printf("[CHECKOUT] [ERROR] finalize id=%s: %v", oid.Hex(), err)
		s.observe("error")
		return nil, apperr.Store("server error", err)
	}

	if s.cartCache != nil {
		s.cartCache.Invalidate(models.UserOwner(current.User))
	}
	s.observe("created")
	log.Printf("[CHECKOUT] [INFO] finalized id=%s order=%s user=%s total=%.2f",
		oid.Hex(), order.ID.Hex(), current.User.Hex(), order.TotalPrice)
	return &FinalizeResult{Order: order}, nil
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveFinalize(outcome)
	}
}

func guard(c *models.Checkout) error {
	if c.IsFinalized {
		return apperr.Conflict("checkout already finalized")
	}
	if !c.CanFinalize() {
		return apperr.Precondition("checkout is not paid")
	}
	return nil
}

// afterLostRace re-reads a checkout whose conditional update matched nothing
// and reports why.
func (s *Service) afterLostRace(ctx context.Context, id primitive.ObjectID, key string) (*FinalizeResult, error) {
	current, err := s.checkouts.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	if err := guard(current); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return s.replayOrConflict(ctx, current, key)
		}
		s.observe("not_paid")
		return nil, err
	}
	// Finalizable again: the competing transaction aborted after our read.
	s.observe("error")
	return nil, apperr.Store("server error", errLostRace)
}

func (s *Service) replayOrConflict(ctx context.Context, c *models.Checkout, key string) (*FinalizeResult, error) {
	if key == "" || c.FinalizeKey != key || c.OrderID == nil {
		s.observe("conflict")
		return nil, apperr.Conflict("checkout already finalized")
	}

	order, err := s.orders.FindByID(ctx, *c.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.observe("conflict")
			return nil, apperr.Conflict("checkout already finalized")
		}
		return nil, apperr.Store("server error", err)
	}
	s.observe("replayed")
	log.Printf("[CHECKOUT] [INFO] finalize replay id=%s order=%s", c.ID.Hex(), order.ID.Hex())
	return &FinalizeResult{Order: order, Replayed: true}, nil
}

// ownedCheckout loads a checkout on behalf of its owner. Checkouts owned by
// someone else are reported as missing.
func (s *Service) ownedCheckout(ctx context.Context, id string, callerID primitive.ObjectID) (*models.Checkout, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	current, err := s.checkouts.FindByID(ctx, oid)
	if err != nil {
		return nil, s.lookupError(err)
	}
	if current.User != callerID {
		log.Printf("[CHECKOUT] [WARN] checkout=%s requested by non-owner user=%s", oid.Hex(), callerID.Hex())
		return nil, apperr.NotFound("checkout not found")
	}
	return current, nil
}

func (s *Service) lookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("checkout not found")
	}
	return apperr.Store("server error", err)
}

func orderFrom(c *models.Checkout, orderID primitive.ObjectID, now time.Time) *models.Order {
	items := make([]models.LineItem, len(c.CheckoutItems))
	copy(items, c.CheckoutItems)

	return &models.Order{
		ID:              orderID,
		User:            c.User,
		CheckoutID:      c.ID,
		OrderItems:      items,
		ShippingAddress: c.ShippingAddress,
		PaymentMethod:   c.PaymentMethod,
		TotalPrice:      c.TotalPrice,
		IsPaid:          true,
		PaidAt:          c.PaidAt,
		IsDelivered:     false,
		PaymentStatus:   models.PaymentStatusPaid,
		PaymentDetails:  c.PaymentDetails,
		Status:          models.OrderStatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
