package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

const maxResponseBytes = 1 << 20

// HTTPPaymentClient opens hosted checkout sessions on a Stripe-compatible API.
type HTTPPaymentClient struct {
	baseURL    string
	httpClient *http.Client
	secretKey  string
	logger     *logging.Logger
}

// NewHTTPPaymentClient creates a client whose every request is bounded by cfg.Timeout.
func NewHTTPPaymentClient(cfg config.PaymentConfig, logger *logging.Logger) *HTTPPaymentClient {
	return &HTTPPaymentClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		secretKey: cfg.SecretKey,
		logger:    logger,
	}
}

type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type processorErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession requests a payment-mode session for the exact amount
// and tags it with the order id. It is never retried.
func (c *HTTPPaymentClient) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	orderID := strconv.FormatInt(req.OrderID, 10)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", orderID)
	form.Set("metadata[order_id]", orderID)
	form.Set("payment_intent_data[metadata][order_id]", orderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build checkout request: %w", err)
	}
	c.setHeaders(ctx, httpReq)

	c.logger.Debug("Creating checkout session", logging.Fields{
		"order_id":     req.OrderID,
		"amount_cents": req.AmountCents,
		"currency":     req.Currency,
	})

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Checkout session request failed", logging.Fields{
			"order_id": req.OrderID,
			"error":    err.Error(),
		})
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, err, "payment processor unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, err, "failed to read payment processor response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		message := processorMessage(body, resp.StatusCode)
		c.logger.Error("Checkout session rejected", logging.Fields{
			"order_id":    req.OrderID,
			"status_code": resp.StatusCode,
			"message":     message,
		})
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.New(apperrors.KindUpstreamUnavailable, "payment processor: %s", message)
		}
		return nil, apperrors.New(apperrors.KindUpstream, "payment processor: %s", message)
	}

	var result checkoutSessionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, err, "malformed payment processor response")
	}
	if result.ID == "" || result.URL == "" {
		return nil, apperrors.New(apperrors.KindUpstreamUnavailable, "payment processor returned no checkout url")
	}

	c.logger.Info("Checkout session created", logging.Fields{
		"order_id":   req.OrderID,
		"session_id": result.ID,
	})

	return &models.CheckoutSession{SessionID: result.ID, URL: result.URL}, nil
}

func (c *HTTPPaymentClient) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if requestID := logging.RequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
}

func processorMessage(body []byte, status int) string {
	var perr processorErrorResponse
	if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
		return perr.Error.Message
	}
	return fmt.Sprintf("unexpected status %d", status)
}
