package service

import (
	"fmt"
	"strings"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

const (
	maxAdditionalInfoLength = 1024
	maxLineItemAmount       = 10000
)

// ValidateOrderID rejects non-positive identifiers.
func ValidateOrderID(id int64) error {
	if id <= 0 {
		return apperrors.NewValidationError("id", fmt.Sprintf("invalid order id %d", id))
	}
	return nil
}

// ValidateLineItems checks the parallel product/amount arrays supplied by a client.
func ValidateLineItems(productIDs []int64, amounts []int) error {
	if len(productIDs) != len(amounts) {
		return apperrors.NewValidationError("amounts", fmt.Sprintf(
			"product_ids and amounts must have the same length (got %d and %d)", len(productIDs), len(amounts)))
	}
	if len(productIDs) == 0 {
		return apperrors.NewValidationError("product_ids", "at least one product is required")
	}

	for i, productID := range productIDs {
		if productID <= 0 {
			return apperrors.NewValidationError("product_ids", fmt.Sprintf("invalid product id %d", productID))
		}
		if amounts[i] < 1 {
			return apperrors.NewValidationError("amounts", fmt.Sprintf("amount for product %d must be at least 1", productID))
		}
		if amounts[i] > maxLineItemAmount {
			return apperrors.NewValidationError("amounts", fmt.Sprintf(
				"amount for product %d must be at most %d", productID, maxLineItemAmount))
		}
	}
	return nil
}

// ValidateOrderFields checks the customer fields of a new order.
func ValidateOrderFields(f models.OrderFields) error {
	required := []struct {
		field string
		value string
	}{
		{"first_name", f.FirstName},
		{"last_name", f.LastName},
		{"country", f.Country},
		{"city", f.City},
		{"address", f.Address},
		{"postal_code", f.PostalCode},
		{"phone_number", f.PhoneNumber},
		{"email", f.Email},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return apperrors.NewValidationError(r.field, r.field+" is required")
		}
	}
	return validateAdditionalInfo(f.AdditionalInfo)
}

// ValidateOrderFieldsUpdate checks that supplied fields do not blank out required values.
func ValidateOrderFieldsUpdate(u models.OrderFieldsUpdate) error {
	set := []struct {
		field string
		value *string
	}{
		{"first_name", u.FirstName},
		{"last_name", u.LastName},
		{"country", u.Country},
		{"city", u.City},
		{"address", u.Address},
		{"postal_code", u.PostalCode},
		{"phone_number", u.PhoneNumber},
		{"email", u.Email},
	}
	for _, s := range set {
		if s.value != nil && strings.TrimSpace(*s.value) == "" {
			return apperrors.NewValidationError(s.field, s.field+" must not be empty")
		}
	}
	return validateAdditionalInfo(u.AdditionalInfo)
}

func validateAdditionalInfo(info *string) error {
	if info != nil && len(*info) > maxAdditionalInfoLength {
		return apperrors.NewValidationError("additional_info",
			fmt.Sprintf("additional_info must be at most %d characters", maxAdditionalInfoLength))
	}
	return nil
}
