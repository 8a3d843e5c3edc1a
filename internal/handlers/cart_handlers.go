package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/pricing"
	"github.com/01moynul/storefront-api/internal/repo"
)

// EstimateInput defines the JSON for POST /api/cart/estimate.
// Prices are the client's cart prices; the order endpoint reprices from the
// catalogue.
type EstimateInput struct {
	CartItems []models.CartItem `json:"cartItems" binding:"dive"`
	Location  string            `json:"location"`
	Weight    float64           `json:"weight" binding:"gte=0"`
	PromoCode string            `json:"promoCode"`
}

// EstimateCart is the handler for POST /api/cart/estimate
func (h *Handlers) EstimateCart(c *gin.Context) {
	var input EstimateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// An empty cart owes nothing.
	if len(input.CartItems) == 0 {
		c.JSON(http.StatusOK, pricing.Quote{})
		return
	}

	lines := make([]pricing.Line, 0, len(input.CartItems))
	for _, it := range input.CartItems {
		lines = append(lines, pricing.Line{Price: it.Price, Qty: it.Qty})
	}
	quote, err := h.Pricing.Quote(pricing.QuoteInput{
		Items:     lines,
		Location:  input.Location,
		Weight:    input.Weight,
		PromoCode: input.PromoCode,
		Now:       time.Now(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// GetCart is the handler for GET /api/cart
func (h *Handlers) GetCart(c *gin.Context) {
	userID := middleware.UserID(c)
	cart, err := h.Carts.Get(c.Request.Context(), userID)
	if errors.Is(err, repo.ErrNotFound) {
		c.JSON(http.StatusOK, &models.SavedCart{UserID: userID, Items: []models.CartItem{}})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// SaveCartInput defines the JSON for PUT /api/cart. The address may be
// partial while the shopper is still filling it in.
type SaveCartInput struct {
	CartItems       []models.CartItem       `json:"cartItems" binding:"dive"`
	ShippingAddress *models.ShippingAddress `json:"shippingAddress" binding:"-"`
	PaymentMethod   models.PaymentMethod    `json:"paymentMethod" binding:"omitempty,oneof=paystack cash_on_delivery"`
	PromoCode       string                  `json:"promoCode"`
}

// SaveCart is the handler for PUT /api/cart
func (h *Handlers) SaveCart(c *gin.Context) {
	var input SaveCartInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.CartItems == nil {
		input.CartItems = []models.CartItem{}
	}

	cart := &models.SavedCart{
		UserID:          middleware.UserID(c),
		Items:           input.CartItems,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		PromoCode:       strings.ToUpper(strings.TrimSpace(input.PromoCode)),
	}
	if err := h.Carts.Save(c.Request.Context(), cart); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// ClearCart is the handler for DELETE /api/cart
func (h *Handlers) ClearCart(c *gin.Context) {
	if err := h.Carts.Delete(c.Request.Context(), middleware.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}
