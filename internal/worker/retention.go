package worker

import (
	"context"
	"time"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
)

// RetentionSweeper bounds the processed webhook event ledger. Events older
// than the retention window may be reprocessed; the payment status state
// machine turns such replays into no-ops.
type RetentionSweeper struct {
	events    repository.WebhookEventRepository
	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewRetentionSweeper(
	events repository.WebhookEventRepository,
	cfg config.WebhookConfig,
	m *metrics.Metrics,
	logger *logging.Logger,
) *RetentionSweeper {
	s := &RetentionSweeper{
		events:    events,
		retention: cfg.EventRetention,
		interval:  cfg.SweepInterval,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
	if s.retention <= 0 {
		s.retention = 24 * time.Hour
	}
	if s.interval <= 0 {
		s.interval = time.Hour
	}
	return s
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (s *RetentionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes ledger entries older than the retention window.
func (s *RetentionSweeper) Sweep(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.retention)
	n, err := s.events.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to purge processed webhook events", logging.Fields{"error": err.Error()})
		return 0
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.WebhookEventsPurged.Add(float64(n))
		}
		s.logger.Info("Purged processed webhook events", logging.Fields{
			"count":  n,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return n
}
