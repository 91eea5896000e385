package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
)

// PaymentProcessor opens hosted checkout sessions.
type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error)
}

// PaymentService starts payment for an order through the processor.
type PaymentService struct {
	store     repository.Store
	cache     repository.OrderCache
	processor PaymentProcessor
	config    *config.Config
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewPaymentService creates a payment service. cache may be nil.
func NewPaymentService(
	store repository.Store,
	cache repository.OrderCache,
	processor PaymentProcessor,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *logging.Logger,
) *PaymentService {
	return &PaymentService{
		store:     store,
		cache:     cache,
		processor: processor,
		config:    cfg,
		metrics:   m,
		logger:    logger,
	}
}

// CreateCheckoutSession asks the processor for a session charging the order
// total. The order is not modified before the processor answers, so a failed
// or timed-out call leaves it untouched and the client may try again.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, orderID int64) (session *models.CheckoutSession, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.CreateCheckoutSession", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer func() {
		if s.metrics != nil {
			s.metrics.CheckoutSessions.WithLabelValues(resultLabel(err)).Inc()
		}
		endSpan(span, err)
	}()

	if err := ValidateOrderID(orderID); err != nil {
		return nil, err
	}

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		return nil, apperrors.Conflict("order %d is already %s", orderID, order.PaymentStatus)
	}

	callCtx := ctx
	if s.config.Payment.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.config.Payment.Timeout)
		defer cancel()
	}

	session, err = s.processor.CreateCheckoutSession(callCtx, models.CheckoutSessionRequest{
		OrderID:     order.ID,
		AmountCents: order.TotalPriceCents,
		Currency:    order.Currency,
		ProductName: fmt.Sprintf("Order #%d", order.ID),
		SuccessURL:  s.config.Payment.SuccessURL,
		CancelURL:   s.config.Payment.CancelURL,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create checkout session", logging.Fields{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return nil, err
	}

	// Webhooks also carry the order id in metadata, so a failure here only
	// loses the session-id fallback used for correlation.
	if err := s.store.Orders().SetCheckoutSession(ctx, order.ID, session.SessionID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to store checkout session id", logging.Fields{
			"order_id":   orderID,
			"session_id": session.SessionID,
			"error":      err.Error(),
		})
	} else {
		invalidateOrder(ctx, s.cache, s.config, s.logger, orderID)
	}

	s.logger.InfoContext(ctx, "Checkout session created", logging.Fields{
		"order_id":     orderID,
		"session_id":   session.SessionID,
		"amount_cents": order.TotalPriceCents,
	})
	return session, nil
}
