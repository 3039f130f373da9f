package outbox

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

const defaultBatchSize = 100

type Store interface {
	FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// Writer is the subset of *kafka.Writer the poller needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Poller struct {
	store     Store
	writer    Writer
	tick      time.Duration
	batchSize int
	now       func() time.Time
}

func NewPoller(store Store, writer Writer) *Poller {
	return &Poller{
		store:     store,
		writer:    writer,
		tick:      time.Second,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run publishes pending events every tick until ctx is cancelled, then
// closes the writer.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			log.Printf("[OUTBOX] [WARN] writer close error: %v", err)
		}
	}()

	log.Printf("[OUTBOX] [INFO] poller started tick=%s batch=%d", p.tick, p.batchSize)
	for {
		select {
		case <-ticker.C:
			p.PublishPending(ctx)
		case <-ctx.Done():
			log.Println("[OUTBOX] [INFO] poller stopped")
			return
		}
	}
}

// PublishPending sends one batch. Failed events stay pending and are retried
// on the next call. It returns the number of events marked published.
func (p *Poller) PublishPending(ctx context.Context) int {
	events, err := p.store.FetchPending(ctx, p.batchSize)
	if err != nil {
		log.Printf("[OUTBOX] [ERROR] fetch pending events: %v", err)
		return 0
	}

	published := 0
	for _, event := range events {
		msg := kafka.Message{
			Key:   []byte(event.AggregateID),
			Value: event.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "event_id", Value: []byte(event.EventID)},
			},
			Time: event.CreatedAt,
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("[OUTBOX] [ERROR] publish event id=%s: %v", event.ID.Hex(), err)
			continue
		}
		if err := p.store.MarkPublished(ctx, event.ID, p.now()); err != nil {
			log.Printf("[OUTBOX] [ERROR] mark event published id=%s: %v", event.ID.Hex(), err)
			continue
		}
		published++
	}
	return published
}
