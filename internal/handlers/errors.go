package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
)

var errorLogger = logging.New("handlers")

// handleError writes the error kind and a human message. Internal errors are
// logged and reported without detail.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	status := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)

	var appErr *apperrors.Error
	if kind == apperrors.KindInternal || !errors.As(err, &appErr) {
		ctx := context.Background()
		if c.Request != nil {
			ctx = c.Request.Context()
		}
		errorLogger.ErrorContext(ctx, "Request failed", logging.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   apperrors.KindInternal,
			"message": "internal server error",
		})
		return
	}

	body := gin.H{
		"error":   kind,
		"message": appErr.Message,
	}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	c.JSON(status, body)
}

func bindError(c *gin.Context, err error) {
	handleError(c, apperrors.Wrap(apperrors.KindInvalidArgument, err, "invalid request body: %s", err.Error()))
}
