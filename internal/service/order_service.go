package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/events"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var tracer = otel.Tracer("github.com/tm-acme-shop/acme-shop-storefront-orders/internal/service")

// CreateOrderInput is a new order with parallel product and amount arrays.
type CreateOrderInput struct {
	Fields     models.OrderFields
	ProductIDs []int64
	Amounts    []int
}

// UpdateOrderInput is a partial field update plus an optional full
// replacement of the line items. Nil slices mean "keep the line items".
type UpdateOrderInput struct {
	Fields     models.OrderFieldsUpdate
	ProductIDs []int64
	Amounts    []int
}

func (in UpdateOrderInput) replacesLineItems() bool {
	return in.ProductIDs != nil || in.Amounts != nil
}

// OrderService manages the order aggregate. Every multi-step write runs in a
// single transaction.
type OrderService struct {
	store   repository.Store
	cache   repository.OrderCache
	config  *config.Config
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewOrderService creates a new order service. cache may be nil.
func NewOrderService(
	store repository.Store,
	cache repository.OrderCache,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *logging.Logger,
) *OrderService {
	return &OrderService{
		store:   store,
		cache:   cache,
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

// CreateOrder prices the requested products and stores the order with its line items.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (order *models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer func() { s.finish(span, "create", err) }()

	if err := ValidateOrderFields(in.Fields); err != nil {
		return nil, err
	}
	if err := ValidateLineItems(in.ProductIDs, in.Amounts); err != nil {
		return nil, err
	}

	err = s.store.WithinTransaction(ctx, func(uow repository.UnitOfWork) error {
		quote, err := QuoteLineItems(ctx, uow.Products(), in.ProductIDs, in.Amounts)
		if err != nil {
			return err
		}

		created, err := uow.Orders().Insert(ctx, in.Fields, quote.TotalCents, s.config.Payment.Currency)
		if err != nil {
			return err
		}

		items, err := uow.LineItems().Replace(ctx, created.ID, quote.Items)
		if err != nil {
			return err
		}
		created.LineItems = items

		if err := s.enqueueEvent(ctx, uow, events.EventTypeOrderCreated, created); err != nil {
			return err
		}

		order = created
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to create order", logging.Fields{"error": err.Error()})
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.logger.InfoContext(ctx, "Order created", logging.Fields{
		"order_id":          order.ID,
		"line_items":        len(order.LineItems),
		"total_price_cents": order.TotalPriceCents,
	})
	return order, nil
}

// GetOrder returns an order with its line items.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (order *models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.GetOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { s.finish(span, "get", err) }()

	if err := ValidateOrderID(id); err != nil {
		return nil, err
	}

	var (
		version   int64
		cacheable bool
	)
	if s.cachingEnabled() {
		cached, err := s.cache.Get(ctx, id)
		if err == nil && cached != nil {
			return cached, nil
		}
		// Read before the database so a concurrent invalidation is noticed.
		if version, err = s.cache.Version(ctx, id); err == nil {
			cacheable = true
		}
	}

	order, err = s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachLineItems(ctx, s.store, []*models.Order{order}); err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, order, version); err != nil {
			s.logger.Warn("Failed to cache order", logging.Fields{
				"order_id": id,
				"error":    err.Error(),
			})
		}
	}
	return order, nil
}

// ListOrders returns a page of orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, filter models.ListFilter) (orders []*models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.ListOrders")
	defer func() { s.finish(span, "list", err) }()

	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	orders, err = s.store.Orders().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.attachLineItems(ctx, s.store, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrder applies a partial field update and, when line items are
// supplied, replaces all of them and re-quotes the total.
func (s *OrderService) UpdateOrder(ctx context.Context, id int64, in UpdateOrderInput) (order *models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { s.finish(span, "update", err) }()

	if err := ValidateOrderID(id); err != nil {
		return nil, err
	}
	replace := in.replacesLineItems()
	if !replace && in.Fields.IsEmpty() {
		return nil, apperrors.NewValidationError("orderData", "nothing to update")
	}
	if err := ValidateOrderFieldsUpdate(in.Fields); err != nil {
		return nil, err
	}
	if replace {
		if err := ValidateLineItems(in.ProductIDs, in.Amounts); err != nil {
			return nil, err
		}
	}

	err = s.store.WithinTransaction(ctx, func(uow repository.UnitOfWork) error {
		current, err := uow.Orders().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		var items []models.LineItem
		if replace {
			if current.PaymentStatus != models.PaymentStatusPending {
				return apperrors.Conflict("line items of order %d cannot change once payment is %s", id, current.PaymentStatus)
			}
			if current.CheckoutSessionID != nil {
				return apperrors.Conflict("line items of order %d cannot change after checkout has started", id)
			}

			quote, err := QuoteLineItems(ctx, uow.Products(), in.ProductIDs, in.Amounts)
			if err != nil {
				return err
			}
			if items, err = uow.LineItems().Replace(ctx, id, quote.Items); err != nil {
				return err
			}
			if err := uow.Orders().SetTotalPrice(ctx, id, quote.TotalCents); err != nil {
				return err
			}
		}

		updated, err := uow.Orders().UpdateFields(ctx, id, in.Fields)
		if err != nil {
			return err
		}

		if replace {
			updated.LineItems = items
		} else if err := s.attachLineItems(ctx, uow, []*models.Order{updated}); err != nil {
			return err
		}

		if err := s.enqueueEvent(ctx, uow, events.EventTypeOrderUpdated, updated); err != nil {
			return err
		}

		order = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.logger.InfoContext(ctx, "Order updated", logging.Fields{
		"order_id":            id,
		"line_items_replaced": replace,
		"total_price_cents":   order.TotalPriceCents,
	})
	return order, nil
}

// DeleteOrder removes the order's line items and then the order, returning
// the deleted snapshot.
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) (order *models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.DeleteOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { s.finish(span, "delete", err) }()

	if err := ValidateOrderID(id); err != nil {
		return nil, err
	}

	err = s.store.WithinTransaction(ctx, func(uow repository.UnitOfWork) error {
		current, err := uow.Orders().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.attachLineItems(ctx, uow, []*models.Order{current}); err != nil {
			return err
		}

		if err := uow.LineItems().DeleteByOrderID(ctx, id); err != nil {
			return err
		}
		if err := uow.Orders().Delete(ctx, id); err != nil {
			return err
		}

		if err := s.enqueueEvent(ctx, uow, events.EventTypeOrderDeleted, current); err != nil {
			return err
		}

		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.logger.InfoContext(ctx, "Order deleted", logging.Fields{"order_id": id})
	return order, nil
}

func (s *OrderService) attachLineItems(ctx context.Context, uow repository.UnitOfWork, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.LineItems = []models.LineItem{}
	}

	items, err := uow.LineItems().ListByOrderIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.LineItems = append(o.LineItems, item)
		}
	}
	return nil
}

func (s *OrderService) enqueueEvent(ctx context.Context, uow repository.UnitOfWork, eventType events.EventType, order *models.Order) error {
	return enqueueOrderEvent(ctx, s.config, uow, eventType, order, nil)
}

func enqueueOrderEvent(ctx context.Context, cfg *config.Config, uow repository.UnitOfWork, eventType events.EventType, order *models.Order, metadata map[string]string) error {
	if !cfg.Features.EnableOrderEvents {
		return nil
	}
	msg, err := events.NewOutboxMessage(ctx, eventType, order, metadata)
	if err != nil {
		return err
	}
	return uow.Outbox().Insert(ctx, msg)
}

func (s *OrderService) cachingEnabled() bool {
	return s.cache != nil && s.config.Features.EnableOrderCaching
}

func (s *OrderService) invalidate(ctx context.Context, id int64) {
	invalidateOrder(ctx, s.cache, s.config, s.logger, id)
}

func invalidateOrder(ctx context.Context, cache repository.OrderCache, cfg *config.Config, logger *logging.Logger, id int64) {
	if cache == nil || !cfg.Features.EnableOrderCaching {
		return
	}
	if err := cache.Delete(ctx, id); err != nil {
		logger.Warn("Failed to invalidate cached order", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
	}
}

func (s *OrderService) finish(span trace.Span, operation string, err error) {
	if s.metrics != nil {
		s.metrics.OrderOperations.WithLabelValues(operation, resultLabel(err)).Inc()
	}
	endSpan(span, err)
}

// resultLabel distinguishes client errors from failures in metrics.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperrors.KindOf(err))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
