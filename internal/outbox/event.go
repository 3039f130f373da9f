package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront/internal/models"
)

type orderFinalizedPayload struct {
	EventID     string            `json:"event_id"`
	OrderID     string            `json:"order_id"`
	CheckoutID  string            `json:"checkout_id"`
	UserID      string            `json:"user_id"`
	Items       []models.LineItem `json:"items"`
	TotalPrice  float64           `json:"total_price"`
	FinalizedAt time.Time         `json:"finalized_at"`
}

// OrderFinalizedEvent builds the outbox record written alongside a new order.
func OrderFinalizedEvent(order *models.Order, at time.Time) (*models.OutboxEvent, error) {
	eventID := uuid.NewString()
	payload, err := json.Marshal(orderFinalizedPayload{
		EventID:     eventID,
		OrderID:     order.ID.Hex(),
		CheckoutID:  order.CheckoutID.Hex(),
		UserID:      order.User.Hex(),
		Items:       order.OrderItems,
		TotalPrice:  order.TotalPrice,
		FinalizedAt: at,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}

	return &models.OutboxEvent{
		EventID:     eventID,
		EventType:   models.EventTypeOrderFinalized,
		AggregateID: order.ID.Hex(),
		Payload:     payload,
		CreatedAt:   at,
	}, nil
}
