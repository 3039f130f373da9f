package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/repository"
)

func setupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := database.Connect(uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	db := client.Database("storefront_test")
	database.EnsureAll(db)
	return db
}

func TestMongoRepositories(t *testing.T) {
	db := setupTestDB(t)

	t.Run("carts", func(t *testing.T) {
		repo := repository.NewCartRepository(db)
		ctx := context.Background()
		owner := models.GuestOwner("guest_it")

		_, err := repo.FindByOwner(ctx, owner)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		c := models.NewCart(owner)
		c.Add(models.LineItem{ProductID: primitive.NewObjectID(), Name: "Shirt", Price: 500, Quantity: 2})
		require.NoError(t, repo.Save(ctx, c))
		require.False(t, c.ID.IsZero())

		c.Add(models.LineItem{ProductID: primitive.NewObjectID(), Name: "Cap", Price: 20, Quantity: 1})
		require.NoError(t, repo.Save(ctx, c))

		got, err := repo.FindByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, got.Products, 2)
		assert.Equal(t, 1020.0, got.TotalPrice)

		deleted, err := repo.DeleteByOwner(ctx, owner)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.DeleteByOwner(ctx, owner)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("checkout payment and finalize guards", func(t *testing.T) {
		repo := repository.NewCheckoutRepository(db)
		ctx := context.Background()

		checkout := &models.Checkout{
			User:          primitive.NewObjectID(),
			CheckoutItems: []models.LineItem{{ProductID: primitive.NewObjectID(), Name: "Shirt", Price: 500, Quantity: 2}},
			PaymentMethod: "PayPal",
			TotalPrice:    1000,
			PaymentStatus: models.PaymentStatusPending,
		}
		require.NoError(t, repo.Create(ctx, checkout))

		orderID := primitive.NewObjectID()
		_, err := repo.MarkFinalized(ctx, checkout.ID, orderID, "", time.Now().UTC())
		assert.ErrorIs(t, err, repository.ErrNotMatched, "unpaid checkout must not finalize")

		paid, err := repo.MarkPaid(ctx, checkout.ID, models.PaymentStatusPaid, &models.PaymentDetails{
			Kind:   models.PaymentKindPayPal,
			PayPal: &models.PayPalCapture{OrderID: "PAY-1", Status: "COMPLETED"},
		}, time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, paid.IsPaid)
		require.NotNil(t, paid.PaymentDetails)
		assert.Equal(t, "PAY-1", paid.PaymentDetails.PayPal.OrderID)

		finalized, err := repo.MarkFinalized(ctx, checkout.ID, orderID, "k-1", time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, finalized.IsFinalized)
		require.NotNil(t, finalized.PaymentDetails)
		assert.Equal(t, "PAY-1", finalized.PaymentDetails.PayPal.OrderID)
		_, err = repo.MarkFinalized(ctx, checkout.ID, primitive.NewObjectID(), "k-2", time.Now().UTC())
		assert.ErrorIs(t, err, repository.ErrNotMatched)

		_, err = repo.MarkPaid(ctx, checkout.ID, models.PaymentStatusPaid, nil, time.Now().UTC())
		assert.ErrorIs(t, err, repository.ErrNotMatched)

		stored, err := repo.FindByID(ctx, checkout.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsFinalized)
		require.NotNil(t, stored.OrderID)
		assert.Equal(t, orderID, *stored.OrderID)
		assert.Equal(t, "k-1", stored.FinalizeKey)
	})

	t.Run("orders newest first", func(t *testing.T) {
		repo := repository.NewOrderRepository(db)
		ctx := context.Background()
		user := primitive.NewObjectID()
		base := time.Now().UTC().Truncate(time.Millisecond)

		for i := 0; i < 3; i++ {
			require.NoError(t, repo.Create(ctx, &models.Order{
				User:       user,
				CheckoutID: primitive.NewObjectID(),
				TotalPrice: float64(i),
				Status:     models.OrderStatusProcessing,
				CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			}))
		}

		list, err := repo.ListByUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, 2.0, list[0].TotalPrice)
		assert.Equal(t, 0.0, list[2].TotalPrice)

		empty, err := repo.ListByUser(ctx, primitive.NewObjectID())
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		checkoutID := primitive.NewObjectID()
		require.NoError(t, repo.Create(ctx, &models.Order{User: user, CheckoutID: checkoutID}))
		err = repo.Create(ctx, &models.Order{User: user, CheckoutID: checkoutID})
		assert.ErrorIs(t, err, repository.ErrDuplicateOrder)
	})

	t.Run("users", func(t *testing.T) {
		repo := repository.NewUserRepository(db)
		ctx := context.Background()

		user := &models.User{Name: "Ada", Email: " Ada@Example.com ", PasswordHash: "hash", Role: models.RoleCustomer}
		require.NoError(t, repo.Create(ctx, user))

		got, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.Empty(t, got.PasswordHash)

		err = repo.Create(ctx, &models.User{Name: "Other", Email: "ada@example.com"})
		assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
	})

	t.Run("products", func(t *testing.T) {
		repo := repository.NewProductRepository(db)
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Millisecond)

		seed := []models.Product{
			{Name: "Oxford Shirt", Price: 40, Category: "Top Wear", IsPublished: true, CreatedAt: base},
			{Name: "Denim (Slim)", Price: 60, Category: "Bottom Wear", IsPublished: true, CreatedAt: base.Add(time.Minute)},
			{Name: "Draft Shirt", Price: 10, Category: "Top Wear", IsPublished: false, CreatedAt: base.Add(2 * time.Minute)},
		}
		for i := range seed {
			require.NoError(t, repo.Create(ctx, &seed[i]))
		}

		all, total, err := repo.List(ctx, repository.ProductFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, all, 2)
		assert.Equal(t, "Denim (Slim)", all[0].Name)

		tops, _, err := repo.List(ctx, repository.ProductFilter{Category: "Top Wear"})
		require.NoError(t, err)
		require.Len(t, tops, 1)
		assert.Equal(t, "Oxford Shirt", tops[0].Name)

		found, _, err := repo.List(ctx, repository.ProductFilter{Search: "(slim"})
		require.NoError(t, err)
		assert.Len(t, found, 1)

		page, total, err := repo.List(ctx, repository.ProductFilter{Page: 2, Limit: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, page, 1)
		assert.Equal(t, "Oxford Shirt", page[0].Name)
	})

	t.Run("outbox", func(t *testing.T) {
		repo := repository.NewOutboxRepository(db)
		ctx := context.Background()

		first := &models.OutboxEvent{EventID: "e1", EventType: models.EventTypeOrderFinalized, Payload: []byte(`{}`), CreatedAt: time.Now().UTC().Add(-time.Second)}
		second := &models.OutboxEvent{EventID: "e2", EventType: models.EventTypeOrderFinalized, Payload: []byte(`{}`)}
		require.NoError(t, repo.Insert(ctx, first))
		require.NoError(t, repo.Insert(ctx, second))

		pending, err := repo.FetchPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "e1", pending[0].EventID)

		require.NoError(t, repo.MarkPublished(ctx, first.ID, time.Now().UTC()))
		pending, err = repo.FetchPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "e2", pending[0].EventID)
	})
}
