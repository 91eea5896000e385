package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

var lineItemColumns = []string{"id", "order_id", "product_id", "quantity", "unit_price_cents"}

// PostgresLineItemRepository implements LineItemRepository using PostgreSQL.
type PostgresLineItemRepository struct {
	db dbtx
}

// Replace removes all line items of the order and inserts the given set.
// Callers run it inside a transaction together with the order mutation.
func (r *PostgresLineItemRepository) Replace(ctx context.Context, orderID int64, items []models.LineItemInput) ([]models.LineItem, error) {
	if err := r.DeleteByOrderID(ctx, orderID); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []models.LineItem{}, nil
	}

	builder := psql.Insert("order_line_items").
		Columns("order_id", "product_id", "quantity", "unit_price_cents")
	for _, item := range items {
		builder = builder.Values(orderID, item.ProductID, item.Quantity, item.UnitPriceCents)
	}

	query, args, err := builder.Suffix(returning(lineItemColumns)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "line item")
	}
	defer rows.Close()

	out := make([]models.LineItem, 0, len(items))
	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.Quantity, &li.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		out = append(out, li)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "line item")
	}
	return out, nil
}

// DeleteByOrderID removes every line item owned by the order.
func (r *PostgresLineItemRepository) DeleteByOrderID(ctx context.Context, orderID int64) error {
	query, args, err := psql.Delete("order_line_items").
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete line items: %w", err)
	}
	return nil
}

// ListByOrderIDs loads the line items of several orders in one query.
func (r *PostgresLineItemRepository) ListByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.LineItem, error) {
	if len(orderIDs) == 0 {
		return []models.LineItem{}, nil
	}

	query, args, err := psql.Select(lineItemColumns...).
		From("order_line_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("order_id", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	items := make([]models.LineItem, 0)
	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.Quantity, &li.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate line items: %w", err)
	}
	return items, nil
}
