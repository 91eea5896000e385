package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes order events to Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *logging.Logger
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		topic:  cfg.OrdersTopic,
		logger: logger,
	}
}

// Publish writes one message keyed by order id so events of an order stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, msg models.OutboxMessage) error {
	kmsg := kafka.Message{
		Key:   []byte(msg.AggregateID),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "event_id", Value: []byte(msg.EventID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, kmsg); err != nil {
		p.logger.Error("Failed to publish event", logging.Fields{
			"event_id":   msg.EventID,
			"event_type": msg.EventType,
			"order_id":   msg.AggregateID,
			"error":      err.Error(),
		})
		return err
	}

	p.logger.Info("Event published", logging.Fields{
		"event_id":   msg.EventID,
		"event_type": msg.EventType,
		"order_id":   msg.AggregateID,
		"topic":      p.topic,
	})
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}
