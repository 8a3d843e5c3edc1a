package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/paystack"
	"github.com/01moynul/storefront-api/internal/service"
)

// InitializePaymentInput defines the JSON for POST /api/payments/paystack/initialize
type InitializePaymentInput struct {
	OrderID int64  `json:"orderId" binding:"required,gt=0"`
	Email   string `json:"email" binding:"omitempty,email"`
}

// InitializePaystack is the handler for POST /api/payments/paystack/initialize
func (h *Handlers) InitializePaystack(c *gin.Context) {
	// 1. --- Bind Input ---
	var input InitializePaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Resolve Payer Email ---
	email, err := h.payerEmail(c, input.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// 3. --- Open Gateway Session ---
	session, err := h.Payments.Initialize(c.Request.Context(), actorFrom(c), input.OrderID, email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// RetryPaymentInput defines the optional JSON for POST /api/payments/retry/:orderId
type RetryPaymentInput struct {
	Email string `json:"email" binding:"omitempty,email"`
}

// RetryPayment is the handler for POST /api/payments/retry/:orderId
func (h *Handlers) RetryPayment(c *gin.Context) {
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	var input RetryPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email, err := h.payerEmail(c, input.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}

	session, err := h.Payments.Retry(c.Request.Context(), actorFrom(c), orderID, email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// VerifyPaystack is the handler for GET /api/payments/paystack/verify/:reference
func (h *Handlers) VerifyPaystack(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment reference is required"})
		return
	}

	settlement, err := h.Payments.Verify(c.Request.Context(), actorFrom(c), reference)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

// payerEmail falls back to the account email when the client sends none.
func (h *Handlers) payerEmail(c *gin.Context, email string) (string, error) {
	if email = strings.TrimSpace(email); email != "" {
		return email, nil
	}
	user, err := h.Users.FindByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// PaystackWebhook is the handler for POST /api/webhooks/paystack
func (h *Handlers) PaystackWebhook(c *gin.Context) {
	// 1. --- Check Configuration ---
	if h.WebhookSecret == "" {
		h.Log.ErrorContext(c.Request.Context(), "paystack webhook received but no secret key is configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment gateway is not configured"})
		return
	}

	// 2. --- Read Raw Body ---
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.WebhookMaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read request body"})
		return
	}

	// 3. --- Verify Signature ---
	if !paystack.VerifySignature(h.WebhookSecret, body, c.GetHeader(paystack.SignatureHeader)) {
		h.Log.WarnContext(c.Request.Context(), "paystack webhook signature rejected", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	// 4. --- Process Within Deadline ---
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.WebhookTimeout)
	defer cancel()

	type result struct {
		out service.WebhookOutcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.Webhooks.Handle(ctx, body)
		done <- result{out, err}
	}()

	var res result
	timedOut := false
	select {
	case res = <-done:
		timedOut = res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
	case <-ctx.Done():
		timedOut = true
	}
	if timedOut {
		h.Log.WarnContext(c.Request.Context(), "paystack webhook processing timed out", "timeout", h.WebhookTimeout)
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Webhook processing timed out"})
		return
	}

	// 5. --- Respond ---
	switch {
	case errors.Is(res.err, service.ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": res.err.Error()})
	case res.err != nil:
		h.Log.ErrorContext(c.Request.Context(), "paystack webhook failed", "event", res.out.Event, "error", res.err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"received":  true,
			"event":     res.out.Event,
			"processed": res.out.Processed,
			"duplicate": res.out.Duplicate,
		})
	}
}
