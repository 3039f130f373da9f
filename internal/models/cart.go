package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LineItem is one product entry in a cart, a checkout session or an order.
// The same shape is copied from cart to checkout to order, so each stage keeps
// its own snapshot.
type LineItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Image     string             `bson:"image" json:"image"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Size      string             `bson:"size,omitempty" json:"size,omitempty"`
	Color     string             `bson:"color,omitempty" json:"color,omitempty"`
}

// LineKey identifies a line inside a cart. Two additions of the same product
// in different sizes or colors are different lines.
type LineKey struct {
	ProductID primitive.ObjectID
	Size      string
	Color     string
}

func (i LineItem) Key() LineKey {
	return LineKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// CartOwner is either a registered user or a guest identifier. Nothing stops
// both from being set; lookups prefer the user.
type CartOwner struct {
	UserID  *primitive.ObjectID
	GuestID string
}

func UserOwner(id primitive.ObjectID) CartOwner {
	return CartOwner{UserID: &id}
}

func GuestOwner(guestID string) CartOwner {
	return CartOwner{GuestID: guestID}
}

func (o CartOwner) IsZero() bool {
	return o.UserID == nil && o.GuestID == ""
}

// CacheKey is the stable string form used for cache entries.
func (o CartOwner) CacheKey() string {
	if o.UserID != nil {
		return "user:" + o.UserID.Hex()
	}
	return "guest:" + o.GuestID
}

type Cart struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	User       *primitive.ObjectID `bson:"user,omitempty" json:"user,omitempty"`
	GuestID    string              `bson:"guestId,omitempty" json:"guestId,omitempty"`
	Products   []LineItem          `bson:"products" json:"products"`
	TotalPrice float64             `bson:"totalPrice" json:"totalPrice"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// NewCart returns an empty cart for owner.
func NewCart(owner CartOwner) *Cart {
	return &Cart{
		User:     owner.UserID,
		GuestID:  owner.GuestID,
		Products: []LineItem{},
	}
}

func (c *Cart) Owner() CartOwner {
	return CartOwner{UserID: c.User, GuestID: c.GuestID}
}

// Find returns the index of the line matching key, or -1.
func (c *Cart) Find(key LineKey) int {
	for i, item := range c.Products {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// Add merges item into the cart. An existing line with the same key has its
// quantity increased; otherwise the item is appended.
func (c *Cart) Add(item LineItem) {
	if idx := c.Find(item.Key()); idx >= 0 {
		c.Products[idx].Quantity += item.Quantity
	} else {
		c.Products = append(c.Products, item)
	}
	c.Recalculate()
}

// SetQuantity updates the line quantity; zero removes the line.
// It reports whether the line existed.
func (c *Cart) SetQuantity(key LineKey, quantity int) bool {
	idx := c.Find(key)
	if idx < 0 {
		return false
	}
	if quantity <= 0 {
		c.Products = append(c.Products[:idx], c.Products[idx+1:]...)
	} else {
		c.Products[idx].Quantity = quantity
	}
	c.Recalculate()
	return true
}

func (c *Cart) Remove(key LineKey) bool {
	return c.SetQuantity(key, 0)
}

// Recalculate recomputes TotalPrice with decimal arithmetic so that sums like
// 0.1 + 0.2 come out exact to the cent.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, item := range c.Products {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	c.TotalPrice = total.Round(2).InexactFloat64()
}
