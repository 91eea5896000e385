package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

var _ Publisher = (*AMQPPublisher)(nil)

// AMQPPublisher publishes order events to a RabbitMQ topic exchange, using
// the event type as routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	logger   *logging.Logger
}

// NewAMQPPublisher dials RabbitMQ and declares the exchange.
func NewAMQPPublisher(cfg config.RabbitMQConfig, logger *logging.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("RabbitMQ connected", logging.Fields{"exchange": cfg.Exchange})

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

// Publish sends one persistent message. amqp channels are not safe for
// concurrent publishing.
func (p *AMQPPublisher) Publish(ctx context.Context, msg models.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.Publish(p.exchange, msg.EventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.EventID,
		Type:         msg.EventType,
		Body:         msg.Payload,
		Headers:      amqp.Table{"order_id": msg.AggregateID},
	})
	if err != nil {
		p.logger.Error("Failed to publish event", logging.Fields{
			"event_id":   msg.EventID,
			"event_type": msg.EventType,
			"error":      err.Error(),
		})
		return err
	}
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
