package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/repository"
)

func TestWithinTransactionRollsBackEveryCollection(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := primitive.NewObjectID()

	c := models.NewCart(models.UserOwner(user))
	c.Add(models.LineItem{ProductID: primitive.NewObjectID(), Price: 5, Quantity: 1})
	require.NoError(t, s.Carts().Save(ctx, c))

	boom := errors.New("boom")
	err := s.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Orders().Create(ctx, &models.Order{User: user, CheckoutID: primitive.NewObjectID()}))
		_, err := s.Carts().DeleteByOwner(ctx, models.UserOwner(user))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	orders, err := s.Orders().ListByUser(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = s.Carts().FindByOwner(ctx, models.UserOwner(user))
	assert.NoError(t, err)
}

func TestWithinTransactionHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTransaction(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFailNextFiresOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailNext("outbox.Insert", boom)
	assert.ErrorIs(t, s.Outbox().Insert(ctx, &models.OutboxEvent{EventID: "e1"}), boom)
	assert.NoError(t, s.Outbox().Insert(ctx, &models.OutboxEvent{EventID: "e1"}))
	assert.Equal(t, 1, s.CountOutbox())
}

func TestFoundValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := models.GuestOwner("guest_1")

	c := models.NewCart(owner)
	c.Add(models.LineItem{ProductID: primitive.NewObjectID(), Price: 5, Quantity: 1})
	require.NoError(t, s.Carts().Save(ctx, c))

	got, err := s.Carts().FindByOwner(ctx, owner)
	require.NoError(t, err)
	got.Products[0].Quantity = 99

	again, err := s.Carts().FindByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Products[0].Quantity)
}

func TestCheckoutConditionalUpdates(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Checkouts()

	checkout := &models.Checkout{User: primitive.NewObjectID(), TotalPrice: 10}
	require.NoError(t, repo.Create(ctx, checkout))

	_, err := repo.MarkFinalized(ctx, checkout.ID, primitive.NewObjectID(), "", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotMatched)

	_, err = repo.MarkPaid(ctx, checkout.ID, models.PaymentStatusPaid, nil, time.Now())
	require.NoError(t, err)
	orderID := primitive.NewObjectID()
	finalized, err := repo.MarkFinalized(ctx, checkout.ID, orderID, "k", time.Now())
	require.NoError(t, err)
	assert.True(t, finalized.IsFinalized)
	require.NotNil(t, finalized.OrderID)
	assert.Equal(t, orderID, *finalized.OrderID)

	_, err = repo.MarkPaid(ctx, checkout.ID, models.PaymentStatusPaid, nil, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotMatched)

	got, err := repo.FindByID(ctx, checkout.ID)
	require.NoError(t, err)
	assert.Equal(t, "k", got.FinalizeKey)
}

func TestOrdersUniquePerCheckoutAndNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := primitive.NewObjectID()
	base := time.Now().UTC()

	first := &models.Order{User: user, CheckoutID: primitive.NewObjectID(), CreatedAt: base}
	second := &models.Order{User: user, CheckoutID: primitive.NewObjectID(), CreatedAt: base.Add(time.Second)}
	require.NoError(t, s.Orders().Create(ctx, first))
	require.NoError(t, s.Orders().Create(ctx, second))

	err := s.Orders().Create(ctx, &models.Order{User: user, CheckoutID: first.CheckoutID})
	assert.ErrorIs(t, err, repository.ErrDuplicateOrder)
	assert.Equal(t, 1, s.CountOrdersForCheckout(first.CheckoutID))

	list, err := s.Orders().ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestUsersRejectDuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Users().Create(ctx, &models.User{Email: "A@b.com", PasswordHash: "x"}))
	err := s.Users().Create(ctx, &models.User{Email: "a@b.com "})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}
