package service

import (
	"context"
	"encoding/json"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/events"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
)

// SignatureVerifier authenticates a raw webhook body against its signature header.
type SignatureVerifier interface {
	Verify(payload []byte, header string) error
}

// WebhookResult describes how a delivery was reconciled.
type WebhookResult struct {
	EventID   string
	EventType string
	OrderID   *int64
	Outcome   models.WebhookOutcome
}

// WebhookService reconciles processor callbacks with order payment status.
type WebhookService struct {
	store    repository.Store
	cache    repository.OrderCache
	verifier SignatureVerifier
	config   *config.Config
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewWebhookService creates a webhook reconciler. cache may be nil.
func NewWebhookService(
	store repository.Store,
	cache repository.OrderCache,
	verifier SignatureVerifier,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *logging.Logger,
) *WebhookService {
	return &WebhookService{
		store:    store,
		cache:    cache,
		verifier: verifier,
		config:   cfg,
		metrics:  m,
		logger:   logger,
	}
}

// HandleWebhook verifies rawBody, which must be the unparsed request body,
// then applies the event at most once per event id. Business no-ops
// (unknown types, unknown orders, repeated events) succeed.
func (s *WebhookService) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (result *WebhookResult, err error) {
	ctx, span := tracer.Start(ctx, "WebhookService.HandleWebhook")
	defer func() { endSpan(span, err) }()

	if err := s.verifier.Verify(rawBody, signatureHeader); err != nil {
		if s.metrics != nil {
			s.metrics.WebhookSignatureFailures.Inc()
		}
		s.logger.WarnContext(ctx, "Rejected webhook signature", logging.Fields{
			"reason":     err.Error(),
			"body_bytes": len(rawBody),
		})
		if apperrors.KindOf(err) != apperrors.KindSignatureInvalid {
			return nil, apperrors.Wrap(apperrors.KindSignatureInvalid, err, "signature verification failed")
		}
		return nil, err
	}

	var event models.PaymentEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, err, "malformed webhook payload")
	}
	if event.ID == "" || event.Type == "" {
		return nil, apperrors.InvalidArgument("webhook payload has no event id or type")
	}
	span.SetAttributes(attribute.String("webhook.event_id", event.ID), attribute.String("webhook.event_type", event.Type))

	if s.config.Webhook.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Webhook.Timeout)
		defer cancel()
	}

	result = &WebhookResult{EventID: event.ID, EventType: event.Type}
	err = s.store.WithinTransaction(ctx, func(uow repository.UnitOfWork) error {
		fresh, err := uow.WebhookEvents().Record(ctx, models.ProcessedWebhookEvent{
			EventID:   event.ID,
			EventType: event.Type,
		})
		if err != nil {
			return err
		}
		if !fresh {
			result.Outcome = models.WebhookOutcomeDuplicate
			return nil
		}

		outcome, orderID, err := s.apply(ctx, uow, &event)
		if err != nil {
			return err
		}
		result.Outcome, result.OrderID = outcome, orderID

		return uow.WebhookEvents().SetOutcome(ctx, event.ID, orderID, outcome)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to reconcile webhook event", logging.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"error":      err.Error(),
		})
		return nil, err
	}

	if result.Outcome == models.WebhookOutcomeApplied && result.OrderID != nil {
		invalidateOrder(ctx, s.cache, s.config, s.logger, *result.OrderID)
	}
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(event.Type, string(result.Outcome)).Inc()
	}

	fields := logging.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"outcome":    result.Outcome,
	}
	if result.OrderID != nil {
		fields["order_id"] = *result.OrderID
	}
	s.logger.InfoContext(ctx, "Webhook event reconciled", fields)
	return result, nil
}

func (s *WebhookService) apply(ctx context.Context, uow repository.UnitOfWork, event *models.PaymentEvent) (models.WebhookOutcome, *int64, error) {
	target, handled := targetPaymentStatus(event)
	if !handled {
		return models.WebhookOutcomeIgnored, nil, nil
	}

	orderID, found, err := correlate(ctx, uow, &event.Data.Object)
	if err != nil {
		return "", nil, err
	}
	if !found {
		s.logger.WarnContext(ctx, "Webhook event does not reference a known order", logging.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"object_id":  event.Data.Object.ID,
		})
		return models.WebhookOutcomeUncorrelated, nil, nil
	}

	order, err := uow.Orders().GetByIDForUpdate(ctx, orderID)
	if apperrors.IsNotFound(err) {
		s.logger.WarnContext(ctx, "Webhook event references a missing order", logging.Fields{
			"event_id": event.ID,
			"order_id": orderID,
		})
		return models.WebhookOutcomeUncorrelated, nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	if order.PaymentStatus == target {
		return models.WebhookOutcomeIgnored, &orderID, nil
	}
	if !order.PaymentStatus.CanTransitionTo(target) {
		s.logger.WarnContext(ctx, "Unexpected payment event", logging.Fields{
			"event_id":       event.ID,
			"event_type":     event.Type,
			"order_id":       orderID,
			"payment_status": order.PaymentStatus,
			"target_status":  target,
		})
		return models.WebhookOutcomeUnexpected, &orderID, nil
	}

	// The session may have been opened for a total that changed since.
	if target == models.PaymentStatusPaid && event.Data.Object.AmountTotal != order.TotalPriceCents {
		s.logger.WarnContext(ctx, "Paid amount differs from order total", logging.Fields{
			"event_id":          event.ID,
			"order_id":          orderID,
			"amount_total":      event.Data.Object.AmountTotal,
			"total_price_cents": order.TotalPriceCents,
		})
		return models.WebhookOutcomeUnexpected, &orderID, nil
	}

	changed, err := uow.Orders().TransitionPaymentStatus(ctx, orderID, order.PaymentStatus, target)
	if err != nil {
		return "", nil, err
	}
	if !changed {
		return models.WebhookOutcomeUnexpected, &orderID, nil
	}

	previous := order.PaymentStatus
	order.PaymentStatus = target
	eventType := events.EventTypeOrderPaid
	if target == models.PaymentStatusFailed {
		eventType = events.EventTypeOrderPaymentFailed
	}
	err = enqueueOrderEvent(ctx, s.config, uow, eventType, order, map[string]string{
		"processor_event_id": event.ID,
		"processor_object":   event.Data.Object.ID,
		"previous_status":    string(previous),
	})
	if err != nil {
		return "", nil, err
	}

	s.logger.InfoContext(ctx, "Order payment status changed", logging.Fields{
		"order_id": orderID,
		"from":     previous,
		"to":       target,
	})
	return models.WebhookOutcomeApplied, &orderID, nil
}

// targetPaymentStatus maps a processor event to the status it moves an order to.
func targetPaymentStatus(event *models.PaymentEvent) (models.PaymentStatus, bool) {
	switch event.Type {
	case models.EventCheckoutSessionCompleted:
		// Delayed payment methods complete the session before funds arrive;
		// the async_payment_* events settle those.
		if event.Data.Object.PaymentStatus == "unpaid" {
			return "", false
		}
		return models.PaymentStatusPaid, true
	case models.EventCheckoutSessionAsyncPaymentOK:
		return models.PaymentStatusPaid, true
	case models.EventCheckoutSessionAsyncPaymentFailed, models.EventPaymentIntentFailed:
		return models.PaymentStatusFailed, true
	default:
		return "", false
	}
}

// correlate finds the order an event belongs to: metadata first, then the
// client reference, then the stored checkout session id.
func correlate(ctx context.Context, uow repository.UnitOfWork, obj *models.PaymentEventObject) (int64, bool, error) {
	if id, ok := parseOrderID(obj.Metadata["order_id"]); ok {
		return id, true, nil
	}
	if id, ok := parseOrderID(obj.ClientReferenceID); ok {
		return id, true, nil
	}
	if obj.Object == "checkout.session" && obj.ID != "" {
		id, err := uow.Orders().FindIDByCheckoutSession(ctx, obj.ID)
		if apperrors.IsNotFound(err) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}
	return 0, false, nil
}

func parseOrderID(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
