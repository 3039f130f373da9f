package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// PaymentStatusPaid is the only payment status accepted as a confirmation.
	PaymentStatusPaid = "paid"
	// PaymentStatusPending is written when a checkout session is created.
	PaymentStatusPending = "Pending"
)

type ShippingAddress struct {
	Address    string `bson:"address" json:"address"`
	City       string `bson:"city" json:"city"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	Country    string `bson:"country" json:"country"`
}

// Checkout is a captured purchase intent. Items are a snapshot taken when the
// session was created and do not follow later cart edits.
type Checkout struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	User            primitive.ObjectID  `bson:"user" json:"user"`
	CheckoutItems   []LineItem          `bson:"checkoutItems" json:"checkoutItems"`
	ShippingAddress ShippingAddress     `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   string              `bson:"paymentMethod" json:"paymentMethod"`
	TotalPrice      float64             `bson:"totalPrice" json:"totalPrice"`
	IsPaid          bool                `bson:"isPaid" json:"isPaid"`
	PaidAt          *time.Time          `bson:"paidAt" json:"paidAt"`
	PaymentStatus   string              `bson:"paymentStatus" json:"paymentStatus"`
	PaymentDetails  *PaymentDetails     `bson:"paymentDetails,omitempty" json:"paymentDetails,omitempty"`
	IsFinalized     bool                `bson:"isFinalized" json:"isFinalized"`
	FinalizedAt     *time.Time          `bson:"finalizedAt" json:"finalizedAt"`
	OrderID         *primitive.ObjectID `bson:"orderId,omitempty" json:"orderId,omitempty"`
	FinalizeKey     string              `bson:"finalizeKey,omitempty" json:"-"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// CanFinalize reports whether the session is paid and not yet converted.
func (c *Checkout) CanFinalize() bool {
	return c.IsPaid && !c.IsFinalized
}
