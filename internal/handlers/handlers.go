package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/auth"
	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/orderstate"
	"github.com/01moynul/storefront-api/internal/paystack"
	"github.com/01moynul/storefront-api/internal/pricing"
	"github.com/01moynul/storefront-api/internal/repo"
	"github.com/01moynul/storefront-api/internal/service"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	Orders   service.OrderService
	Payments service.PaymentService
	Webhooks service.WebhookService

	Users    repo.UserRepo
	Products repo.ProductRepo
	Carts    repo.CartRepo
	Stats    repo.StatsRepo

	Pricing *pricing.Calculator
	Tokens  *auth.TokenManager
	Log     *slog.Logger

	// Webhook settings; an empty secret makes the webhook answer 500.
	WebhookSecret  string
	WebhookTimeout time.Duration
	WebhookMaxBody int64

	// Uploaded images are written to UploadDir and linked under PublicURL.
	UploadDir     string
	PublicURL     string
	MaxUploadSize int64

	// Ping reports storage health for GET /health.
	Ping func(ctx context.Context) error
}

// respondError maps a domain error onto the {"error": ...} response shape.
func (h *Handlers) respondError(c *gin.Context, err error) {
	if pe, ok := paystack.AsError(err); ok {
		c.JSON(gatewayStatus(pe.Kind), gin.H{
			"error":      pe.UserMessage(),
			"code":       pe.Kind,
			"retryable":  pe.Retryable(),
			"nextAction": pe.NextAction(),
		})
		return
	}

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, pricing.ErrPromoNotFound),
		errors.Is(err, pricing.ErrPromoInactive),
		errors.Is(err, pricing.ErrPromoExpired),
		errors.Is(err, pricing.ErrPromoMinimumNotMet):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "promoCode"})
	case errors.Is(err, pricing.ErrNoItems),
		errors.Is(err, pricing.ErrInvalidLine),
		errors.Is(err, orderstate.ErrReasonRequired),
		errors.Is(err, service.ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to access this resource"})
	case errors.Is(err, orderstate.ErrInvalidTransition),
		errors.Is(err, orderstate.ErrAlreadyPaid),
		errors.Is(err, orderstate.ErrPaymentRequired),
		errors.Is(err, service.ErrOutOfStock),
		errors.Is(err, repo.ErrConflict),
		errors.Is(err, repo.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrReconciliation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "We could not match this payment to your order. Please contact support.",
			"nextAction": "contact_support",
		})
	default:
		h.Log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func gatewayStatus(kind paystack.Kind) int {
	switch kind {
	case paystack.KindValidation:
		return http.StatusBadRequest
	case paystack.KindDeclined, paystack.KindInsufficientFunds, paystack.KindAbandoned:
		return http.StatusPaymentRequired
	case paystack.KindPending:
		return http.StatusAccepted
	case paystack.KindNotFound:
		return http.StatusNotFound
	case paystack.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// idParam parses a positive integer path parameter, answering 400 itself
// when it is not one.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// Health is the handler for GET /api/health
func (h *Handlers) Health(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			h.Log.ErrorContext(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func actorFrom(c *gin.Context) service.Actor {
	return service.Actor{UserID: middleware.UserID(c), Admin: middleware.IsAdmin(c)}
}
