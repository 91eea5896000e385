package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

// Store gives access to the repositories, either directly on the pool or
// scoped to a single transaction.
type Store interface {
	UnitOfWork
	WithinTransaction(ctx context.Context, fn func(uow UnitOfWork) error) error
}

// UnitOfWork groups the repositories that share one connection or transaction.
type UnitOfWork interface {
	Orders() OrderRepository
	LineItems() LineItemRepository
	Products() ProductRepository
	Outbox() OutboxRepository
	WebhookEvents() WebhookEventRepository
}

// OrderRepository persists order rows. It never computes prices.
type OrderRepository interface {
	Insert(ctx context.Context, fields models.OrderFields, totalCents int64, currency string) (*models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Order, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Order, error)
	UpdateFields(ctx context.Context, id int64, update models.OrderFieldsUpdate) (*models.Order, error)
	SetTotalPrice(ctx context.Context, id int64, totalCents int64) error
	Delete(ctx context.Context, id int64) error
	// TransitionPaymentStatus moves the status from one value to another and
	// reports false when the row no longer holds from.
	TransitionPaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error)
	SetCheckoutSession(ctx context.Context, id int64, sessionID string) error
	FindIDByCheckoutSession(ctx context.Context, sessionID string) (int64, error)
}

// LineItemRepository persists the line items owned by orders.
type LineItemRepository interface {
	// Replace deletes every line item of the order and inserts items in order.
	Replace(ctx context.Context, orderID int64, items []models.LineItemInput) ([]models.LineItem, error)
	DeleteByOrderID(ctx context.Context, orderID int64) error
	ListByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.LineItem, error)
}

// ProductRepository is the read-only price lookup over the catalog.
type ProductRepository interface {
	GetUnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, msg models.OutboxMessage) error
	FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	Delete(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, lastErr string, nextAttemptAt time.Time) error
}

// WebhookEventRepository tracks processed processor event ids.
type WebhookEventRepository interface {
	// Record inserts the event id and reports false if it was already recorded.
	Record(ctx context.Context, event models.ProcessedWebhookEvent) (bool, error)
	SetOutcome(ctx context.Context, eventID string, orderID *int64, outcome models.WebhookOutcome) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrderCache defines caching operations for orders. Version is read before
// loading an order from the database; Set stores it only if no Delete
// happened since, so a slow reader cannot cache a snapshot older than a write.
type OrderCache interface {
	Get(ctx context.Context, id int64) (*models.Order, error)
	Version(ctx context.Context, id int64) (int64, error)
	Set(ctx context.Context, order *models.Order, version int64) error
	Delete(ctx context.Context, id int64) error
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
