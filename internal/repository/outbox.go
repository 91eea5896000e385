package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

// PostgresOutboxRepository stores events written in the same transaction as
// the order change they describe.
type PostgresOutboxRepository struct {
	db dbtx
}

func (r *PostgresOutboxRepository) Insert(ctx context.Context, msg models.OutboxMessage) error {
	query, args, err := psql.Insert("outbox").
		Columns("event_id", "event_type", "aggregate_id", "payload", "attempts", "next_attempt_at").
		Values(msg.EventID, msg.EventType, msg.AggregateID, string(msg.Payload), 0, sq.Expr("NOW()")).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}
	return nil
}

// FetchPending returns messages whose next attempt is due, oldest first.
func (r *PostgresOutboxRepository) FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	query, args, err := psql.Select(
		"id",
		"event_id",
		"event_type",
		"aggregate_id",
		"payload",
		"attempts",
		"last_error",
		"next_attempt_at",
		"created_at",
	).
		From("outbox").
		Where(sq.Expr("next_attempt_at <= NOW()")).
		OrderBy("id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []models.OutboxMessage
	for rows.Next() {
		var msg models.OutboxMessage
		var payload []byte
		err := rows.Scan(
			&msg.ID,
			&msg.EventID,
			&msg.EventType,
			&msg.AggregateID,
			&payload,
			&msg.Attempts,
			&msg.LastError,
			&msg.NextAttemptAt,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.Payload = payload
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox messages: %w", err)
	}
	return messages, nil
}

// Delete removes a message once it has been published.
func (r *PostgresOutboxRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete("outbox").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete outbox message: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastErr string, nextAttemptAt time.Time) error {
	query, args, err := psql.Update("outbox").
		Set("attempts", attempts).
		Set("last_error", lastErr).
		Set("next_attempt_at", nextAttemptAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox message: %w", err)
	}
	return nil
}
