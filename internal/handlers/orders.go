package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/service"
)

type createOrderRequest struct {
	FirstName      string  `json:"first_name" binding:"required,min=2,max=256"`
	LastName       string  `json:"last_name" binding:"required,min=2,max=256"`
	CompanyName    *string `json:"company_name" binding:"omitempty,max=256"`
	Country        string  `json:"country" binding:"required,min=2,max=256"`
	City           string  `json:"city" binding:"required,min=2,max=256"`
	Address        string  `json:"address" binding:"required,min=2,max=512"`
	PostalCode     string  `json:"postal_code" binding:"required,numeric,len=4"`
	PhoneNumber    string  `json:"phone_number" binding:"required,min=5,max=32"`
	Email          string  `json:"email" binding:"required,email"`
	AdditionalInfo *string `json:"additional_info" binding:"omitempty,max=1024"`
	ProductIDs     []int64 `json:"product_ids" binding:"required,min=1"`
	Amounts        []int   `json:"amounts" binding:"required,min=1,dive,min=1,max=10000"`
}

func (r createOrderRequest) toInput() service.CreateOrderInput {
	return service.CreateOrderInput{
		Fields: models.OrderFields{
			FirstName:      r.FirstName,
			LastName:       r.LastName,
			CompanyName:    r.CompanyName,
			Country:        r.Country,
			City:           r.City,
			Address:        r.Address,
			PostalCode:     r.PostalCode,
			PhoneNumber:    r.PhoneNumber,
			Email:          r.Email,
			AdditionalInfo: r.AdditionalInfo,
		},
		ProductIDs: r.ProductIDs,
		Amounts:    r.Amounts,
	}
}

type orderDataUpdate struct {
	FirstName      *string `json:"first_name" binding:"omitempty,min=2,max=256"`
	LastName       *string `json:"last_name" binding:"omitempty,min=2,max=256"`
	CompanyName    *string `json:"company_name" binding:"omitempty,max=256"`
	Country        *string `json:"country" binding:"omitempty,min=2,max=256"`
	City           *string `json:"city" binding:"omitempty,min=2,max=256"`
	Address        *string `json:"address" binding:"omitempty,min=2,max=512"`
	PostalCode     *string `json:"postal_code" binding:"omitempty,numeric,len=4"`
	PhoneNumber    *string `json:"phone_number" binding:"omitempty,min=5,max=32"`
	Email          *string `json:"email" binding:"omitempty,email"`
	AdditionalInfo *string `json:"additional_info" binding:"omitempty,max=1024"`
}

// updateOrderRequest carries total_price or payment_status nowhere: neither
// can be set by a client.
type updateOrderRequest struct {
	OrderData  orderDataUpdate `json:"orderData"`
	ProductIDs []int64         `json:"productIds"`
	Amounts    []int           `json:"amounts" binding:"omitempty,dive,min=1,max=10000"`
}

func (r updateOrderRequest) toInput() service.UpdateOrderInput {
	d := r.OrderData
	return service.UpdateOrderInput{
		Fields: models.OrderFieldsUpdate{
			FirstName:      d.FirstName,
			LastName:       d.LastName,
			CompanyName:    d.CompanyName,
			Country:        d.Country,
			City:           d.City,
			Address:        d.Address,
			PostalCode:     d.PostalCode,
			PhoneNumber:    d.PhoneNumber,
			Email:          d.Email,
			AdditionalInfo: d.AdditionalInfo,
		},
		ProductIDs: r.ProductIDs,
		Amounts:    r.Amounts,
	}
}

// CreateOrder handles POST /api/v1/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req.toInput())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder handles GET /api/v1/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/v1/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		handleError(c, apperrors.NewValidationError("limit", "limit must be an integer"))
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		handleError(c, apperrors.NewValidationError("offset", "offset must be an integer"))
		return
	}

	orders, err := h.orderService.ListOrders(c.Request.Context(), models.ListFilter{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// UpdateOrder handles PUT /api/v1/orders/:id
func (h *Handlers) UpdateOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.orderService.UpdateOrder(c.Request.Context(), id, req.toInput())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// DeleteOrder handles DELETE /api/v1/orders/:id
func (h *Handlers) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.DeleteOrder(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// parseID reads a positive integer path parameter, writing a 400 if it is malformed.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		handleError(c, apperrors.NewValidationError(name, "invalid id "+strconv.Quote(raw)))
		return 0, false
	}
	return id, true
}
