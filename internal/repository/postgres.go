package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore implements Store on top of database/sql and lib/pq.
type PostgresStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewPostgresStore creates a store bound to the connection pool.
func NewPostgresStore(db *sql.DB, logger *logging.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStore) Orders() OrderRepository {
	return &PostgresOrderRepository{db: s.db}
}

func (s *PostgresStore) LineItems() LineItemRepository {
	return &PostgresLineItemRepository{db: s.db}
}

func (s *PostgresStore) Products() ProductRepository {
	return &PostgresProductRepository{db: s.db}
}

func (s *PostgresStore) Outbox() OutboxRepository {
	return &PostgresOutboxRepository{db: s.db}
}

func (s *PostgresStore) WebhookEvents() WebhookEventRepository {
	return &PostgresWebhookEventRepository{db: s.db}
}

// Ping checks database connectivity for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTransaction runs fn inside one transaction. The transaction commits
// when fn returns nil and rolls back otherwise, including on panic.
func (s *PostgresStore) WithinTransaction(ctx context.Context, fn func(uow UnitOfWork) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txUnitOfWork{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back transaction", logging.Fields{"error": rbErr.Error()})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txUnitOfWork struct {
	tx *sql.Tx
}

func (u *txUnitOfWork) Orders() OrderRepository {
	return &PostgresOrderRepository{db: u.tx}
}

func (u *txUnitOfWork) LineItems() LineItemRepository {
	return &PostgresLineItemRepository{db: u.tx}
}

func (u *txUnitOfWork) Products() ProductRepository {
	return &PostgresProductRepository{db: u.tx}
}

func (u *txUnitOfWork) Outbox() OutboxRepository {
	return &PostgresOutboxRepository{db: u.tx}
}

func (u *txUnitOfWork) WebhookEvents() WebhookEventRepository {
	return &PostgresWebhookEventRepository{db: u.tx}
}

// mapError converts driver errors into application errors.
func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Wrap(apperrors.KindNotFound, err, "%s not found", entity)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return apperrors.Wrap(apperrors.KindConflict, err, "%s already exists", entity)
		case pqForeignKeyViolation:
			return apperrors.Wrap(apperrors.KindInvalidArgument, err, "%s references a missing row", entity)
		}
	}
	return err
}

func requireRow(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("%s not found", entity)
	}
	return nil
}
