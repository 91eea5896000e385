package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

var orderColumns = []string{
	"id",
	"first_name",
	"last_name",
	"company_name",
	"country",
	"city",
	"address",
	"postal_code",
	"phone_number",
	"email",
	"additional_info",
	"total_price_cents",
	"currency",
	"payment_status",
	"checkout_session_id",
	"created_at",
	"updated_at",
}

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db dbtx
}

// Insert creates an order row in pending payment status.
func (r *PostgresOrderRepository) Insert(ctx context.Context, fields models.OrderFields, totalCents int64, currency string) (*models.Order, error) {
	query, args, err := psql.Insert("orders").
		Columns(
			"first_name",
			"last_name",
			"company_name",
			"country",
			"city",
			"address",
			"postal_code",
			"phone_number",
			"email",
			"additional_info",
			"total_price_cents",
			"currency",
			"payment_status",
		).
		Values(
			fields.FirstName,
			fields.LastName,
			fields.CompanyName,
			fields.Country,
			fields.City,
			fields.Address,
			fields.PostalCode,
			fields.PhoneNumber,
			fields.Email,
			fields.AdditionalInfo,
			totalCents,
			currency,
			models.PaymentStatusPending,
		).
		Suffix(returning(orderColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, "order")
	}
	return order, nil
}

// GetByID retrieves an order by its identifier.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, id, "")
}

// GetByIDForUpdate retrieves an order and locks its row.
func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *PostgresOrderRepository) get(ctx context.Context, id int64, suffix string) (*models.Order, error) {
	builder := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id})
	if suffix != "" {
		builder = builder.Suffix(suffix)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("order %d", id))
	}
	return order, nil
}

// List returns orders newest first.
func (r *PostgresOrderRepository) List(ctx context.Context, filter models.ListFilter) ([]*models.Order, error) {
	builder := psql.Select(orderColumns...).
		From("orders").
		OrderBy("id DESC")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// UpdateFields writes only the supplied customer fields. It never touches
// payment_status or the total.
func (r *PostgresOrderRepository) UpdateFields(ctx context.Context, id int64, update models.OrderFieldsUpdate) (*models.Order, error) {
	if update.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	set := map[string]interface{}{"updated_at": sq.Expr("NOW()")}
	put := func(column string, value *string) {
		if value != nil {
			set[column] = *value
		}
	}
	put("first_name", update.FirstName)
	put("last_name", update.LastName)
	put("company_name", update.CompanyName)
	put("country", update.Country)
	put("city", update.City)
	put("address", update.Address)
	put("postal_code", update.PostalCode)
	put("phone_number", update.PhoneNumber)
	put("email", update.Email)
	put("additional_info", update.AdditionalInfo)

	query, args, err := psql.Update("orders").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		Suffix(returning(orderColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("order %d", id))
	}
	return order, nil
}

// SetTotalPrice stores a re-quoted total.
func (r *PostgresOrderRepository) SetTotalPrice(ctx context.Context, id int64, totalCents int64) error {
	query, args, err := psql.Update("orders").
		Set("total_price_cents", totalCents).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order total: %w", err)
	}
	return requireRow(res, fmt.Sprintf("order %d", id))
}

// Delete removes the order row. Line items must already be gone.
func (r *PostgresOrderRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete("orders").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, fmt.Sprintf("order %d", id))
	}
	return requireRow(res, fmt.Sprintf("order %d", id))
}

// TransitionPaymentStatus is a compare-and-set on payment_status.
func (r *PostgresOrderRepository) TransitionPaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error) {
	query, args, err := psql.Update("orders").
		Set("payment_status", to).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "payment_status": from}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// SetCheckoutSession stores the processor session id used to correlate webhooks.
func (r *PostgresOrderRepository) SetCheckoutSession(ctx context.Context, id int64, sessionID string) error {
	query, args, err := psql.Update("orders").
		Set("checkout_session_id", sessionID).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "checkout session")
	}
	return requireRow(res, fmt.Sprintf("order %d", id))
}

// FindIDByCheckoutSession resolves a processor session id to an order id.
func (r *PostgresOrderRepository) FindIDByCheckoutSession(ctx context.Context, sessionID string) (int64, error) {
	query, args, err := psql.Select("id").
		From("orders").
		Where(sq.Eq{"checkout_session_id": sessionID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build select query: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapError(err, "order for checkout session")
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var companyName, additionalInfo, sessionID sql.NullString

	err := row.Scan(
		&order.ID,
		&order.FirstName,
		&order.LastName,
		&companyName,
		&order.Country,
		&order.City,
		&order.Address,
		&order.PostalCode,
		&order.PhoneNumber,
		&order.Email,
		&additionalInfo,
		&order.TotalPriceCents,
		&order.Currency,
		&order.PaymentStatus,
		&sessionID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.CompanyName = nullableString(companyName)
	order.AdditionalInfo = nullableString(additionalInfo)
	order.CheckoutSessionID = nullableString(sessionID)
	order.LineItems = []models.LineItem{}
	return &order, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func returning(columns []string) string {
	return "RETURNING " + strings.Join(columns, ", ")
}
