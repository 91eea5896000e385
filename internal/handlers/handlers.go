package handlers

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/service"
)

// OrderService is the order lifecycle used by the HTTP layer.
type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.ListFilter) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, id int64, in service.UpdateOrderInput) (*models.Order, error)
	DeleteOrder(ctx context.Context, id int64) (*models.Order, error)
}

// PaymentService opens checkout sessions.
type PaymentService interface {
	CreateCheckoutSession(ctx context.Context, orderID int64) (*models.CheckoutSession, error)
}

// WebhookReconciler handles signed processor callbacks.
type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*service.WebhookResult, error)
}

// ReadinessCheck is a named dependency probe used by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds all HTTP handlers for the service.
type Handlers struct {
	orderService   OrderService
	paymentService PaymentService
	webhooks       WebhookReconciler
	checks         []ReadinessCheck
	maxWebhookBody int64
	config         *config.Config
	logger         *logging.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	orderService OrderService,
	paymentService PaymentService,
	webhooks WebhookReconciler,
	cfg *config.Config,
	logger *logging.Logger,
	checks ...ReadinessCheck,
) *Handlers {
	maxBody := cfg.Webhook.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		orderService:   orderService,
		paymentService: paymentService,
		webhooks:       webhooks,
		checks:         checks,
		maxWebhookBody: maxBody,
		config:         cfg,
		logger:         logger,
	}
}
