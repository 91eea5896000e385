package service

import (
	"context"
	"fmt"
	"math"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
)

// Quote is the server-side price of a set of line items.
type Quote struct {
	Items      []models.LineItemInput
	TotalCents int64
}

// QuoteLineItems snapshots the current unit price of every product and sums
// price times amount. Prices are looked up once per distinct product.
func QuoteLineItems(ctx context.Context, products repository.ProductRepository, productIDs []int64, amounts []int) (*Quote, error) {
	prices := make(map[int64]int64, len(productIDs))
	quote := &Quote{Items: make([]models.LineItemInput, 0, len(productIDs))}

	for i, productID := range productIDs {
		unitCents, ok := prices[productID]
		if !ok {
			price, err := products.GetUnitPrice(ctx, productID)
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidationError("product_ids",
					fmt.Sprintf("Product with ID %d not found", productID))
			}
			if err != nil {
				return nil, fmt.Errorf("failed to look up price of product %d: %w", productID, err)
			}
			unitCents = models.ToMinorUnits(price)
			prices[productID] = unitCents
		}

		amount := int64(amounts[i])
		if unitCents > 0 && amount > (math.MaxInt64-quote.TotalCents)/unitCents {
			return nil, apperrors.NewValidationError("amounts",
				fmt.Sprintf("order total exceeds the supported maximum at product %d", productID))
		}

		quote.Items = append(quote.Items, models.LineItemInput{
			ProductID:      productID,
			Quantity:       amounts[i],
			UnitPriceCents: unitCents,
		})
		quote.TotalCents += unitCents * amount
	}

	return quote, nil
}
