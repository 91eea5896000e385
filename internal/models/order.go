package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

var allowedPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
}

// CanTransitionTo reports whether s may move to next. Paid and failed are terminal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range allowedPaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return len(allowedPaymentTransitions[s]) == 0
}

// OrderFields are the customer-supplied attributes of an order.
type OrderFields struct {
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	CompanyName    *string `json:"company_name,omitempty"`
	Country        string  `json:"country"`
	City           string  `json:"city"`
	Address        string  `json:"address"`
	PostalCode     string  `json:"postal_code"`
	PhoneNumber    string  `json:"phone_number"`
	Email          string  `json:"email"`
	AdditionalInfo *string `json:"additional_info,omitempty"`
}

// OrderFieldsUpdate is a partial update; nil fields are left unchanged.
type OrderFieldsUpdate struct {
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	CompanyName    *string `json:"company_name,omitempty"`
	Country        *string `json:"country,omitempty"`
	City           *string `json:"city,omitempty"`
	Address        *string `json:"address,omitempty"`
	PostalCode     *string `json:"postal_code,omitempty"`
	PhoneNumber    *string `json:"phone_number,omitempty"`
	Email          *string `json:"email,omitempty"`
	AdditionalInfo *string `json:"additional_info,omitempty"`
}

// IsEmpty reports whether the update sets no field.
func (u OrderFieldsUpdate) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.CompanyName == nil &&
		u.Country == nil && u.City == nil && u.Address == nil &&
		u.PostalCode == nil && u.PhoneNumber == nil && u.Email == nil &&
		u.AdditionalInfo == nil
}

// Apply copies the set fields of u onto f.
func (u OrderFieldsUpdate) Apply(f *OrderFields) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&f.FirstName, u.FirstName)
	set(&f.LastName, u.LastName)
	set(&f.Country, u.Country)
	set(&f.City, u.City)
	set(&f.Address, u.Address)
	set(&f.PostalCode, u.PostalCode)
	set(&f.PhoneNumber, u.PhoneNumber)
	set(&f.Email, u.Email)
	if u.CompanyName != nil {
		v := *u.CompanyName
		f.CompanyName = &v
	}
	if u.AdditionalInfo != nil {
		v := *u.AdditionalInfo
		f.AdditionalInfo = &v
	}
}

// Order is a customer purchase with a server-computed total.
type Order struct {
	ID int64 `json:"id"`
	OrderFields
	TotalPriceCents   int64         `json:"total_price_cents"`
	Currency          string        `json:"currency"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	CheckoutSessionID *string       `json:"checkout_session_id,omitempty"`
	LineItems         []LineItem    `json:"line_items"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// TotalPrice returns the total in major currency units.
func (o *Order) TotalPrice() decimal.Decimal {
	return FromMinorUnits(o.TotalPriceCents)
}

// MarshalJSON adds total_price in major units next to total_price_cents.
func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		TotalPrice string `json:"total_price"`
	}{order(o), o.TotalPrice().StringFixed(2)})
}

// LineItem is a product/quantity pair owned by exactly one order.
type LineItem struct {
	ID             int64 `json:"id"`
	OrderID        int64 `json:"order_id"`
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// LineItemInput is a requested product/quantity pair with its quoted unit price.
type LineItemInput struct {
	ProductID      int64
	Quantity       int
	UnitPriceCents int64
}

// ListFilter pages through orders, newest first.
type ListFilter struct {
	Limit  int
	Offset int
}

// ToMinorUnits converts a major-unit amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts cents to a major-unit amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
