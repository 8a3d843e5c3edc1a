package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/service"
)

// CreateOrderInput defines the JSON for POST /api/orders
type CreateOrderInput struct {
	OrderItems      []service.OrderLine    `json:"orderItems" binding:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress" binding:"required"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod" binding:"required,oneof=paystack cash_on_delivery"`
	PromoCode       string                 `json:"promoCode"`
}

// CreateOrder is the handler for POST /api/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	// 1. --- Bind Input ---
	var input CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Price And Persist ---
	order, err := h.Orders.Create(c.Request.Context(), service.CreateOrderInput{
		UserID:          middleware.UserID(c),
		Items:           input.OrderItems,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		PromoCode:       input.PromoCode,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	// 3. --- Success ---
	c.JSON(http.StatusCreated, order)
}

// GetMyOrders is the handler for GET /api/orders/myorders
func (h *Handlers) GetMyOrders(c *gin.Context) {
	orders, err := h.Orders.ListMine(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder is the handler for GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders is the admin handler for GET /api/orders
// Query: status, isPaid, userId, from, to, page, limit
func (h *Handlers) ListOrders(c *gin.Context) {
	// 1. --- Parse Filters ---
	filter, page, err := parseOrderFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Query ---
	orders, total, err := h.Orders.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"page":   page,
		"pages":  (total + limit - 1) / limit,
		"total":  total,
	})
}

func parseOrderFilter(c *gin.Context) (models.OrderFilter, int, error) {
	var f models.OrderFilter

	if s := strings.TrimSpace(c.Query("status")); s != "" {
		status := models.OrderStatus(s)
		f.Status = &status
	}
	if s := c.Query("isPaid"); s != "" {
		paid, err := strconv.ParseBool(s)
		if err != nil {
			return f, 0, errors.New("isPaid must be true or false")
		}
		f.IsPaid = &paid
	}
	if s := c.Query("userId"); s != "" {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil || uid <= 0 {
			return f, 0, errors.New("invalid userId")
		}
		f.UserID = &uid
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		s := c.Query(q.name)
		if s == "" {
			continue
		}
		t, dateOnly, err := parseTime(s)
		if err != nil {
			return f, 0, errors.New(q.name + " must be a date (2006-01-02) or RFC3339 time")
		}
		// "to" is exclusive, so a bare date covers the whole day.
		if dateOnly && q.name == "to" {
			t = t.AddDate(0, 0, 1)
		}
		*q.dst = &t
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	f.Limit = limit
	f.Offset = (page - 1) * limit
	return f, page, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	return t, true, err
}

// PayOrderInput defines the JSON for PUT /api/orders/:id/pay
type PayOrderInput struct {
	Reference string `json:"reference"`
}

// PayOrder is the handler for PUT /api/orders/:id/pay
// A reference is verified with the gateway; admins may omit it to record a
// cash-on-delivery collection.
func (h *Handlers) PayOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var input PayOrderInput
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reference := strings.TrimSpace(input.Reference)

	if reference == "" {
		if !middleware.IsAdmin(c) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payment reference is required"})
			return
		}
		order, err := h.Orders.MarkPaidManually(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
		return
	}

	settlement, err := h.Payments.PayOrder(c.Request.Context(), actorFrom(c), id, reference)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement.Order)
}

// UpdateOrderStatusInput defines the JSON for PUT /api/orders/:id/status
type UpdateOrderStatusInput struct {
	Status         models.OrderStatus `json:"status" binding:"required"`
	TrackingNumber string             `json:"trackingNumber"`
	Reason         string             `json:"reason"`
}

// UpdateOrderStatus is the admin handler for PUT /api/orders/:id/status
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input UpdateOrderStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.Orders.UpdateStatus(c.Request.Context(), id, service.StatusUpdate{
		Status:         input.Status,
		TrackingNumber: input.TrackingNumber,
		Reason:         input.Reason,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrderInput defines the JSON for PUT /api/orders/:id/cancel
type CancelOrderInput struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelOrder is the handler for PUT /api/orders/:id/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input CancelOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A cancellation reason is required"})
		return
	}

	order, err := h.Orders.Cancel(c.Request.Context(), actorFrom(c), id, input.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ConfirmDelivery is the handler for PUT /api/orders/:id/confirm-delivery
func (h *Handlers) ConfirmDelivery(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.ConfirmDelivery(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
