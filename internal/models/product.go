package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the read-only catalog entry. The checkout workflow only uses it
// to fill in cart lines; prices are never re-validated at checkout.
type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	Price         float64            `bson:"price" json:"price"`
	DiscountPrice float64            `bson:"discountPrice,omitempty" json:"discountPrice,omitempty"`
	CountInStock  int                `bson:"countInStock" json:"countInStock"`
	Category      string             `bson:"category,omitempty" json:"category,omitempty"`
	Brand         string             `bson:"brand,omitempty" json:"brand,omitempty"`
	Sizes         StringList         `bson:"sizes,omitempty" json:"sizes,omitempty"`
	Colors        StringList         `bson:"colors,omitempty" json:"colors,omitempty"`
	Images        StringList         `bson:"images,omitempty" json:"images,omitempty"`
	IsPublished   bool               `bson:"isPublished" json:"isPublished"`
	IsOnSale      bool               `bson:"-" json:"isOnSale"`
	InStock       bool               `bson:"-" json:"inStock"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// OnSale reports whether the discount price applies.
func (p Product) OnSale() bool {
	return p.DiscountPrice > 0 && p.DiscountPrice < p.Price
}

// EffectivePrice is the unit price a new cart line gets.
func (p Product) EffectivePrice() float64 {
	if p.OnSale() {
		return p.DiscountPrice
	}
	return p.Price
}

// PrimaryImage is the first image URL, or "".
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Decorate fills the computed, non-persisted fields.
func (p *Product) Decorate() {
	p.IsOnSale = p.OnSale()
	p.InStock = p.CountInStock > 0
}
