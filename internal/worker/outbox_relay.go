package worker

import (
	"context"
	"math"
	"time"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/events"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
	baseRetryDelay      = 5 * time.Second
	defaultMaxBackoff   = 5 * time.Minute
)

// OutboxRelay publishes outbox messages to the event broker and removes them
// once delivered. Delivery is at least once; consumers dedupe on event_id.
type OutboxRelay struct {
	outbox       repository.OutboxRepository
	publisher    events.Publisher
	metrics      *metrics.Metrics
	logger       *logging.Logger
	pollInterval time.Duration
	batchSize    int
	maxBackoff   time.Duration
	now          func() time.Time
}

func NewOutboxRelay(
	outbox repository.OutboxRepository,
	publisher events.Publisher,
	cfg config.OutboxConfig,
	m *metrics.Metrics,
	logger *logging.Logger,
) *OutboxRelay {
	r := &OutboxRelay{
		outbox:       outbox,
		publisher:    publisher,
		metrics:      m,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxBackoff:   cfg.MaxBackoff,
		now:          time.Now,
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = defaultMaxBackoff
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("Outbox relay started", logging.Fields{
		"poll_interval": r.pollInterval.String(),
		"batch_size":    r.batchSize,
	})

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			r.RelayBatch(ctx)
		}
	}
}

// RelayBatch publishes one batch of due messages and returns how many were delivered.
func (r *OutboxRelay) RelayBatch(ctx context.Context) int {
	messages, err := r.outbox.FetchPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("Failed to fetch outbox messages", logging.Fields{"error": err.Error()})
		return 0
	}

	delivered := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}

		if err := r.publisher.Publish(ctx, msg); err != nil {
			attempts := msg.Attempts + 1
			next := r.now().Add(r.backoff(attempts))
			r.observe("error")
			r.logger.Warn("Failed to publish outbox message, will retry", logging.Fields{
				"outbox_id":  msg.ID,
				"event_type": msg.EventType,
				"attempts":   attempts,
				"next_retry": next.Format(time.RFC3339),
				"error":      err.Error(),
			})
			if err := r.outbox.MarkFailed(ctx, msg.ID, attempts, err.Error(), next); err != nil {
				r.logger.Error("Failed to record outbox retry", logging.Fields{
					"outbox_id": msg.ID,
					"error":     err.Error(),
				})
			}
			continue
		}

		r.observe("success")
		delivered++
		if err := r.outbox.Delete(ctx, msg.ID); err != nil {
			r.logger.Error("Failed to delete published outbox message", logging.Fields{
				"outbox_id": msg.ID,
				"error":     err.Error(),
			})
		}
	}
	return delivered
}

// backoff doubles the delay per attempt up to maxBackoff.
func (r *OutboxRelay) backoff(attempts int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempts-1))
	if delay > float64(r.maxBackoff) {
		return r.maxBackoff
	}
	return time.Duration(delay)
}

func (r *OutboxRelay) observe(result string) {
	if r.metrics != nil {
		r.metrics.OutboxPublished.WithLabelValues(result).Inc()
	}
}
