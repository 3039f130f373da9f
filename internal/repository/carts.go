package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

type mongoCartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{collection: db.Collection(CartsCollection)}
}

func ownerFilter(owner models.CartOwner) bson.M {
	if owner.UserID != nil {
		return bson.M{"user": *owner.UserID}
	}
	return bson.M{"guestId": owner.GuestID}
}

func (r *mongoCartRepository) FindByOwner(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, ErrNotFound
	}

	var cart models.Cart
	err := r.collection.FindOne(ctx, ownerFilter(owner)).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart.Products == nil {
		cart.Products = []models.LineItem{}
	}
	return &cart, nil
}

func (r *mongoCartRepository) Save(ctx context.Context, cart *models.Cart) error {
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	if cart.Products == nil {
		cart.Products = []models.LineItem{}
	}

	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
		if _, err := r.collection.InsertOne(ctx, cart); err != nil {
			return fmt.Errorf("failed to insert cart: %w", err)
		}
		return nil
	}

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": cart.ID}, cart)
	if err != nil {
		return fmt.Errorf("failed to replace cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoCartRepository) DeleteByOwner(ctx context.Context, owner models.CartOwner) (bool, error) {
	if owner.IsZero() {
		return false, nil
	}
	result, err := r.collection.DeleteOne(ctx, ownerFilter(owner))
	if err != nil {
		return false, fmt.Errorf("failed to delete cart: %w", err)
	}
	return result.DeletedCount > 0, nil
}
