package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ensureIndexes(db *mongo.Database, collection string, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, model := range models {
		name := ""
		if model.Options != nil && model.Options.Name != nil {
			name = *model.Options.Name
		}
		log.Printf("ensureIndexes: creating %s.%s index", collection, name)
		if _, err := db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
			log.Printf("ensureIndexes: %s.%s index error: %v", collection, name, err)
			return err
		}
	}
	log.Printf("ensureIndexes: %s indexes created", collection)
	return nil
}

func EnsureCartIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "carts", []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user", Value: 1}},
			Options: options.Index().
				SetName("user_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"user": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "guestId", Value: 1}},
			Options: options.Index().
				SetName("guestId_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"guestId": bson.M{"$exists": true}}),
		},
	})
}

func EnsureCheckoutIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "checkouts", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user", Value: 1}},
			Options: options.Index().SetName("user_index"),
		},
	})
}

func EnsureOrderIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "orders", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_createdAt_index"),
		},
		{
			Keys:    bson.D{{Key: "checkoutId", Value: 1}},
			Options: options.Index().SetName("checkoutId_unique").SetUnique(true),
		},
	})
}

func EnsureUserIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "users", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
	})
}

func EnsureProductIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "products", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("category_createdAt_index"),
		},
	})
}

func EnsureOutboxIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "outbox", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("pending_index"),
		},
	})
}

// EnsureAll creates every index, logging failures as warnings.
func EnsureAll(db *mongo.Database) {
	steps := []struct {
		name string
		fn   func(*mongo.Database) error
	}{
		{"cart", EnsureCartIndexes},
		{"checkout", EnsureCheckoutIndexes},
		{"order", EnsureOrderIndexes},
		{"user", EnsureUserIndexes},
		{"product", EnsureProductIndexes},
		{"outbox", EnsureOutboxIndexes},
	}
	for _, step := range steps {
		if err := step.fn(db); err != nil {
			log.Printf("[DB] [WARN] %s index warning: %v", step.name, err)
		}
	}
}
