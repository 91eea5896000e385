package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/clients"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
)

// CreateCheckoutSession handles POST /api/v1/payments/checkout/:orderId
func (h *Handlers) CreateCheckoutSession(c *gin.Context) {
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return
	}

	session, err := h.paymentService.CreateCheckoutSession(c.Request.Context(), orderID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        session.URL,
		"session_id": session.SessionID,
	})
}

// PaymentWebhook handles POST /api/v1/payments/webhook.
// The signature covers the exact bytes sent, so the body is read as-is and
// never bound or re-encoded before verification.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	signature := c.GetHeader(clients.SignatureHeader)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   apperrors.KindInvalidArgument,
				"message": "webhook payload too large",
			})
			return
		}
		handleError(c, apperrors.Wrap(apperrors.KindInvalidArgument, err, "failed to read webhook body"))
		return
	}

	result, err := h.webhooks.HandleWebhook(c.Request.Context(), body, signature)
	if err != nil {
		handleError(c, err)
		return
	}

	h.logger.Debug("Webhook acknowledged", logging.Fields{
		"event_id": result.EventID,
		"outcome":  result.Outcome,
	})
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// PaymentSuccess handles GET /api/v1/payments/success
func (h *Handlers) PaymentSuccess(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Payment successful"})
}

// PaymentCancel handles GET /api/v1/payments/cancel
func (h *Handlers) PaymentCancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Payment cancelled"})
}
