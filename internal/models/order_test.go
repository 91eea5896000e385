package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusPaid, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusPending, false},
		{PaymentStatusPaid, PaymentStatusFailed, false},
		{PaymentStatusPaid, PaymentStatusPending, false},
		{PaymentStatusFailed, PaymentStatusPaid, false},
		{PaymentStatusFailed, PaymentStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	assert.False(t, PaymentStatusPending.IsTerminal())
	assert.True(t, PaymentStatusPaid.IsTerminal())
	assert.True(t, PaymentStatusFailed.IsTerminal())
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"10.00", 1000},
		{"5", 500},
		{"19.99", 1999},
		{"0.005", 1},
		{"0.004", 0},
		{"1234.5", 123450},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMinorUnits(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestOrder_MarshalJSON(t *testing.T) {
	company := "Acme"
	order := Order{
		ID: 7,
		OrderFields: OrderFields{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			CompanyName: &company,
			Email:       "ada@example.com",
		},
		TotalPriceCents: 2500,
		Currency:        "usd",
		PaymentStatus:   PaymentStatusPending,
		LineItems:       []LineItem{{ID: 1, OrderID: 7, ProductID: 1, Quantity: 2, UnitPriceCents: 1000}},
	}

	data, err := json.Marshal(order)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "25.00", decoded["total_price"])
	assert.Equal(t, float64(2500), decoded["total_price_cents"])
	assert.Equal(t, "Ada", decoded["first_name"])
	assert.Equal(t, "Acme", decoded["company_name"])
	assert.Equal(t, "pending", decoded["payment_status"])
	assert.Len(t, decoded["line_items"], 1)

	var back Order
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, order.TotalPriceCents, back.TotalPriceCents)
	assert.Equal(t, order.FirstName, back.FirstName)
}

func TestOrderFieldsUpdate_Apply(t *testing.T) {
	city := "Oslo"
	info := "ring twice"
	fields := OrderFields{FirstName: "Ada", City: "Bergen"}

	update := OrderFieldsUpdate{City: &city, AdditionalInfo: &info}
	assert.False(t, update.IsEmpty())
	update.Apply(&fields)

	assert.Equal(t, "Ada", fields.FirstName)
	assert.Equal(t, "Oslo", fields.City)
	require.NotNil(t, fields.AdditionalInfo)
	assert.Equal(t, "ring twice", *fields.AdditionalInfo)
	assert.True(t, OrderFieldsUpdate{}.IsEmpty())
}
