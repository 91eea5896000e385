package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

// PostgresWebhookEventRepository is the processed-event ledger used to make
// webhook handling idempotent.
type PostgresWebhookEventRepository struct {
	db dbtx
}

// Record claims the event id. A concurrent delivery of the same id blocks on
// the primary key until the first transaction ends, then sees a conflict.
func (r *PostgresWebhookEventRepository) Record(ctx context.Context, event models.ProcessedWebhookEvent) (bool, error) {
	outcome := event.Outcome
	if outcome == "" {
		outcome = models.WebhookOutcomeProcessing
	}

	query, args, err := psql.Insert("processed_webhook_events").
		Columns("event_id", "event_type", "order_id", "outcome", "processed_at").
		Values(event.EventID, event.EventType, event.OrderID, outcome, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (event_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build insert query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresWebhookEventRepository) SetOutcome(ctx context.Context, eventID string, orderID *int64, outcome models.WebhookOutcome) error {
	query, args, err := psql.Update("processed_webhook_events").
		Set("order_id", orderID).
		Set("outcome", outcome).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes ledger entries processed before cutoff.
func (r *PostgresWebhookEventRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete("processed_webhook_events").
		Where(sq.Lt{"processed_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge webhook events: %w", err)
	}
	return res.RowsAffected()
}
