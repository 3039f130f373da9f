package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const EventTypeOrderFinalized = "order.finalized"

// OutboxEvent is written in the same transaction as the state change it
// describes and published to the broker later by the poller.
type OutboxEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID     string             `bson:"eventId" json:"eventId"`
	EventType   string             `bson:"eventType" json:"eventType"`
	AggregateID string             `bson:"aggregateId" json:"aggregateId"`
	Payload     []byte             `bson:"payload" json:"payload"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	PublishedAt *time.Time         `bson:"publishedAt" json:"publishedAt,omitempty"`
}
