package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

type mongoCheckoutRepository struct {
	collection *mongo.Collection
}

func NewCheckoutRepository(db *mongo.Database) CheckoutRepository {
	return &mongoCheckoutRepository{collection: db.Collection(CheckoutsCollection)}
}

func (r *mongoCheckoutRepository) Create(ctx context.Context, checkout *models.Checkout) error {
	now := time.Now().UTC()
	if checkout.ID.IsZero() {
		checkout.ID = primitive.NewObjectID()
	}
	checkout.CreatedAt = now
	checkout.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, checkout); err != nil {
		return fmt.Errorf("failed to insert checkout: %w", err)
	}
	return nil
}

func (r *mongoCheckoutRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Checkout, error) {
	var checkout models.Checkout
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&checkout)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get checkout: %w", err)
	}
	return &checkout, nil
}

func (r *mongoCheckoutRepository) MarkPaid(
	ctx context.Context,
	id primitive.ObjectID,
	status string,
	details *models.PaymentDetails,
	paidAt time.Time,
) (*models.Checkout, error) {
	filter := bson.M{"_id": id, "isFinalized": bson.M{"$ne": true}}
	update := bson.M{"$set": bson.M{
		"isPaid":         true,
		"paymentStatus":  status,
		"paymentDetails": details,
		"paidAt":         paidAt,
		"updatedAt":      paidAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var checkout models.Checkout
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&checkout)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotMatched
		}
		return nil, fmt.Errorf("failed to mark checkout paid: %w", err)
	}
	return &checkout, nil
}

func (r *mongoCheckoutRepository) MarkFinalized(
	ctx context.Context,
	id, orderID primitive.ObjectID,
	key string,
	at time.Time,
) (*models.Checkout, error) {
	filter := bson.M{"_id": id, "isPaid": true, "isFinalized": false}
	set := bson.M{
		"isFinalized": true,
		"finalizedAt": at,
		"orderId":     orderID,
		"updatedAt":   at,
	}
	if key != "" {
		set["finalizeKey"] = key
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var checkout models.Checkout
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&checkout)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotMatched
		}
		return nil, fmt.Errorf("failed to finalize checkout: %w", err)
	}
	return &checkout, nil
}
