// Command seed resets the catalog and creates a development admin account.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repository"
)

var sampleProducts = []models.Product{
	{
		Name:          "Classic Oxford Button-Down Shirt",
		Description:   "Tailored fit oxford shirt in breathable cotton.",
		Price:         39.99,
		DiscountPrice: 34.99,
		CountInStock:  20,
		Category:      "Top Wear",
		Brand:         "Urban Threads",
		Sizes:         models.StringList{"S", "M", "L", "XL"},
		Colors:        models.StringList{"White", "Blue"},
		Images:        models.StringList{"https://picsum.photos/500/500?random=1"},
	},
	{
		Name:         "Slim-Fit Stretch Jeans",
		Description:  "Mid-rise stretch denim with a slim leg.",
		Price:        59.99,
		CountInStock: 35,
		Category:     "Bottom Wear",
		Brand:        "Denim Co.",
		Sizes:        models.StringList{"30", "32", "34", "36"},
		Colors:       models.StringList{"Dark Blue", "Black"},
		Images:       models.StringList{"https://picsum.photos/500/500?random=2"},
	},
	{
		Name:          "Lightweight Hooded Jacket",
		Description:   "Water resistant shell with a packable hood.",
		Price:         89.99,
		DiscountPrice: 74.99,
		CountInStock:  12,
		Category:      "Top Wear",
		Brand:         "Street Style",
		Sizes:         models.StringList{"M", "L", "XL"},
		Colors:        models.StringList{"Olive", "Navy"},
		Images:        models.StringList{"https://picsum.photos/500/500?random=3"},
	},
	{
		Name:         "Relaxed Jogger Pants",
		Description:  "Soft fleece joggers with an elastic waist.",
		Price:        45,
		CountInStock: 0,
		Category:     "Bottom Wear",
		Brand:        "ComfyFit",
		Sizes:        models.StringList{"S", "M", "L"},
		Colors:       models.StringList{"Grey", "Black"},
		Images:       models.StringList{"https://picsum.photos/500/500?random=4"},
	},
}

func main() {
	config.Load()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(config.AppEnv.DBName)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, name := range []string{repository.ProductsCollection, repository.UsersCollection, repository.CartsCollection} {
		if _, err := db.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			log.Fatalf("[SEED] [ERROR] clear %s: %v", name, err)
		}
	}
	database.EnsureAll(db)

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "123456789"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[SEED] [ERROR] hash password: %v", err)
	}

	admin := &models.User{
		Name:         "Admin User",
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}
	if err := repository.NewUserRepository(db).Create(ctx, admin); err != nil {
		log.Fatalf("[SEED] [ERROR] create admin: %v", err)
	}

	products := repository.NewProductRepository(db)
	now := time.Now().UTC()
	for i := range sampleProducts {
		p := sampleProducts[i]
		p.IsPublished = true
		p.CreatedAt = now.Add(time.Duration(i) * time.Second)
		if err := products.Create(ctx, &p); err != nil {
			log.Fatalf("[SEED] [ERROR] create product %q: %v", p.Name, err)
		}
	}
	log.Printf("[SEED] [INFO] seeded %d products and admin=%s", len(sampleProducts), admin.ID.Hex())

	if config.AppEnv.JWTSecret != "" {
		token, err := middleware.IssueToken(config.AppEnv.JWTSecret, admin.ID, admin.Role, 24*time.Hour)
		if err != nil {
			log.Fatalf("[SEED] [ERROR] issue token: %v", err)
		}
		fmt.Println(token)
	}
}
