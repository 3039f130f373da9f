package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PaymentKind tags the shape stored in PaymentDetails.
type PaymentKind string

const (
	PaymentKindPayPal  PaymentKind = "paypal"
	PaymentKindCard    PaymentKind = "card"
	PaymentKindGeneric PaymentKind = "generic"
)

// ErrPaymentDetailsNotObject is returned when the payload is not a JSON object.
var ErrPaymentDetailsNotObject = errors.New("payment details must be a JSON object")

// PayPalCapture holds the fields of a captured PayPal order that are worth
// keeping next to the order.
type PayPalCapture struct {
	OrderID    string `bson:"orderId" json:"orderId"`
	Status     string `bson:"status" json:"status"`
	CaptureID  string `bson:"captureId,omitempty" json:"captureId,omitempty"`
	PayerID    string `bson:"payerId,omitempty" json:"payerId,omitempty"`
	PayerEmail string `bson:"payerEmail,omitempty" json:"payerEmail,omitempty"`
	Amount     string `bson:"amount,omitempty" json:"amount,omitempty"`
	Currency   string `bson:"currency,omitempty" json:"currency,omitempty"`
}

type CardPayment struct {
	Brand         string `bson:"brand,omitempty" json:"brand,omitempty"`
	Last4         string `bson:"last4" json:"last4"`
	TransactionID string `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
}

// PaymentDetails is the provider payload attached to a paid checkout. Exactly
// one of PayPal, Card or Raw is set, matching Kind.
type PaymentDetails struct {
	Kind   PaymentKind            `bson:"kind" json:"kind"`
	PayPal *PayPalCapture         `bson:"paypal,omitempty" json:"paypal,omitempty"`
	Card   *CardPayment           `bson:"card,omitempty" json:"card,omitempty"`
	Raw    map[string]interface{} `bson:"raw,omitempty" json:"raw,omitempty"`
}

type paypalOrderPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  *struct {
		PayerID      string `json:"payer_id"`
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Amount struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type cardPayload struct {
	Brand         string `json:"brand"`
	Last4         string `json:"last4"`
	TransactionID string `json:"transactionId"`
}

// ParsePaymentDetails decodes a provider payload. A missing or null payload
// yields nil. Payloads carrying an explicit "kind" are decoded as that
// variant; otherwise the shape is sniffed: a PayPal order has purchase_units
// or a payer alongside id and status, a card payment has last4. Anything else
// is kept verbatim as the generic variant.
func ParsePaymentDetails(raw json.RawMessage) (*PaymentDetails, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, ErrPaymentDetailsNotObject
	}

	if kindRaw, ok := fields["kind"]; ok {
		var details PaymentDetails
		if err := json.Unmarshal(trimmed, &details); err != nil {
			return nil, fmt.Errorf("decode payment details: %w", err)
		}
		var kind PaymentKind
		_ = json.Unmarshal(kindRaw, &kind)
		switch kind {
		case PaymentKindPayPal:
			if details.PayPal == nil {
				return nil, errors.New("paypal payment details require a paypal object")
			}
			details.Card, details.Raw = nil, nil
			return &details, nil
		case PaymentKindCard:
			if details.Card == nil || details.Card.Last4 == "" {
				return nil, errors.New("card payment details require last4")
			}
			details.PayPal, details.Raw = nil, nil
			return &details, nil
		}
	}

	_, hasUnits := fields["purchase_units"]
	_, hasPayer := fields["payer"]
	_, hasID := fields["id"]
	_, hasStatus := fields["status"]
	if hasUnits || (hasPayer && hasID && hasStatus) {
		var payload paypalOrderPayload
		if err := json.Unmarshal(trimmed, &payload); err == nil && payload.ID != "" {
			return &PaymentDetails{Kind: PaymentKindPayPal, PayPal: payload.capture()}, nil
		}
	}

	if _, ok := fields["last4"]; ok {
		var payload cardPayload
		if err := json.Unmarshal(trimmed, &payload); err == nil && payload.Last4 != "" {
			return &PaymentDetails{Kind: PaymentKindCard, Card: &CardPayment{
				Brand:         payload.Brand,
				Last4:         payload.Last4,
				TransactionID: payload.TransactionID,
			}}, nil
		}
	}

	generic := map[string]interface{}{}
	if err := json.Unmarshal(trimmed, &generic); err != nil {
		return nil, ErrPaymentDetailsNotObject
	}
	return &PaymentDetails{Kind: PaymentKindGeneric, Raw: generic}, nil
}

func (p paypalOrderPayload) capture() *PayPalCapture {
	out := &PayPalCapture{OrderID: p.ID, Status: p.Status}
	if p.Payer != nil {
		out.PayerID = p.Payer.PayerID
		out.PayerEmail = p.Payer.EmailAddress
	}
	if len(p.PurchaseUnits) > 0 {
		unit := p.PurchaseUnits[0]
		out.Amount = unit.Amount.Value
		out.Currency = unit.Amount.CurrencyCode
		if len(unit.Payments.Captures) > 0 {
			out.CaptureID = unit.Payments.Captures[0].ID
		}
	}
	return out
}
