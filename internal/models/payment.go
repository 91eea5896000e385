package models

import (
	"encoding/json"
	"time"
)

// CheckoutSession is a processor-hosted payment page opened for an order.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CheckoutSessionRequest is what the payment client sends to the processor.
type CheckoutSessionRequest struct {
	OrderID     int64
	AmountCents int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

// Processor event types handled by the reconciler.
const (
	EventCheckoutSessionCompleted          = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentOK     = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventPaymentIntentFailed               = "payment_intent.payment_failed"
)

// PaymentEvent is a verified webhook payload.
type PaymentEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    PaymentEventData `json:"data"`
}

type PaymentEventData struct {
	Object PaymentEventObject `json:"object"`
}

// PaymentEventObject holds the fields of a checkout session or payment intent used for correlation.
type PaymentEventObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Amount            int64             `json:"amount"`
}

func (e *PaymentEvent) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// WebhookOutcome records what the reconciler did with an event.
type WebhookOutcome string

const (
	WebhookOutcomeApplied      WebhookOutcome = "applied"
	WebhookOutcomeDuplicate    WebhookOutcome = "duplicate"
	WebhookOutcomeIgnored      WebhookOutcome = "ignored"
	WebhookOutcomeUnexpected   WebhookOutcome = "unexpected"
	WebhookOutcomeUncorrelated WebhookOutcome = "uncorrelated"
	WebhookOutcomeProcessing   WebhookOutcome = "processing"
)

// ProcessedWebhookEvent is the idempotency record for one processor event id.
type ProcessedWebhookEvent struct {
	EventID     string
	EventType   string
	OrderID     *int64
	Outcome     WebhookOutcome
	ProcessedAt time.Time
}

// OutboxMessage is an event waiting to be relayed to the broker.
type OutboxMessage struct {
	ID            int64
	EventID       string
	EventType     string
	AggregateID   string
	Payload       json.RawMessage
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}
