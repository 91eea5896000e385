package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

// EventType represents the type of order event.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderUpdated       EventType = "order.updated"
	EventTypeOrderDeleted       EventType = "order.deleted"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderPaymentFailed EventType = "order.payment_failed"
)

// OrderEvent is the envelope published for every order change.
type OrderEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OrderID       int64             `json:"order_id"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// Publisher delivers outbox messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, msg models.OutboxMessage) error
	Close() error
}

// NewOutboxMessage wraps an order snapshot in an OrderEvent ready to be
// stored in the outbox.
func NewOutboxMessage(ctx context.Context, eventType EventType, order *models.Order, metadata map[string]string) (models.OutboxMessage, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return models.OutboxMessage{}, err
	}

	event := OrderEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		OrderID:       order.ID,
		Data:          data,
		Metadata:      metadata,
		Timestamp:     time.Now().UTC(),
		CorrelationID: logging.RequestID(ctx),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return models.OutboxMessage{}, err
	}

	return models.OutboxMessage{
		EventID:     event.ID,
		EventType:   string(eventType),
		AggregateID: strconv.FormatInt(order.ID, 10),
		Payload:     payload,
	}, nil
}
