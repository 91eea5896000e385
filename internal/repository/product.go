package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

// PostgresProductRepository reads current unit prices from the catalog table.
type PostgresProductRepository struct {
	db dbtx
}

func (r *PostgresProductRepository) GetUnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	query, args, err := psql.Select("price").
		From("products").
		Where(sq.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build select query: %w", err)
	}

	var price decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&price); err != nil {
		return decimal.Zero, mapError(err, fmt.Sprintf("product %d", productID))
	}
	return price, nil
}
