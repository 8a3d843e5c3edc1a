// Package paystack is the adapter for the Paystack hosted-checkout API:
// session initialization, server-side verification and webhook signatures.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/01moynul/storefront-api/internal/pricing"
)

const (
	DefaultBaseURL = "https://api.paystack.co"
	Currency       = "NGN"

	maxResponseBody = 1 << 20
)

type Config struct {
	SecretKey   string
	PublicKey   string
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
	MinAmount   float64
	MaxAmount   float64
	HTTPClient  *http.Client
}

type Client struct {
	cfg      Config
	http     *http.Client
	validate *validator.Validate
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MinAmount <= 0 {
		cfg.MinAmount = 100
	}
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = 10_000_000
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: httpClient, validate: validator.New()}
}

// Configured is false when no secret key is set; every gateway call and
// webhook check fails in that state.
func (c *Client) Configured() bool { return c.cfg.SecretKey != "" }

func (c *Client) SecretKey() string { return c.cfg.SecretKey }

// InitializeRequest describes one payment attempt. Amount is in naira.
type InitializeRequest struct {
	Email       string
	Amount      float64
	OrderID     int64
	Reference   string
	CallbackURL string
}

// Session is what the storefront needs to open the hosted checkout.
type Session struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	PublicKey        string `json:"publicKey"`
	Amount           int64  `json:"amount"` // kobo
}

// Transaction is the gateway's view of a reference.
type Transaction struct {
	ID              int64
	Reference       string
	Status          string
	Amount          int64 // kobo
	Currency        string
	Channel         string
	GatewayResponse string
	PaidAt          *time.Time
	OrderID         int64
}

func (t *Transaction) Succeeded() bool { return t.Status == "success" }

// ValidateInitialize checks a request before any network call.
func (c *Client) ValidateInitialize(req InitializeRequest) error {
	if err := c.validate.Var(strings.TrimSpace(req.Email), "required,email"); err != nil {
		return validationError("a valid email address is required")
	}
	switch {
	case req.Amount <= 0:
		return validationError("amount must be greater than zero")
	case req.Amount < c.cfg.MinAmount:
		return validationError("amount must be at least ₦%s", strconv.FormatFloat(c.cfg.MinAmount, 'f', -1, 64))
	case req.Amount > c.cfg.MaxAmount:
		return validationError("amount must not exceed ₦%s", strconv.FormatFloat(c.cfg.MaxAmount, 'f', -1, 64))
	}
	if req.OrderID <= 0 {
		return validationError("order id is required")
	}
	return nil
}

// Initialize opens a hosted payment session for one order.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	if err := c.ValidateInitialize(req); err != nil {
		return nil, err
	}
	if !c.Configured() {
		return nil, &Error{Kind: KindUnknown, Message: "payment gateway is not configured"}
	}

	reference := req.Reference
	if reference == "" {
		reference = NewReference(req.OrderID)
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = c.cfg.CallbackURL
	}
	kobo := pricing.ToKobo(req.Amount)

	payload := map[string]any{
		"email":     strings.TrimSpace(req.Email),
		"amount":    kobo,
		"currency":  Currency,
		"reference": reference,
		"metadata": map[string]any{
			"order_id": strconv.FormatInt(req.OrderID, 10),
		},
	}
	if callback != "" {
		payload["callback_url"] = callback
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}
	if data.Reference == "" {
		data.Reference = reference
	}

	return &Session{
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		PublicKey:        c.cfg.PublicKey,
		Amount:           kobo,
	}, nil
}

// Verify asks the gateway for the authoritative state of reference. A
// non-success transaction is returned without error; use Classify.
func (c *Client) Verify(ctx context.Context, reference string) (*Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, validationError("payment reference is required")
	}
	if !c.Configured() {
		return nil, &Error{Kind: KindUnknown, Message: "payment gateway is not configured"}
	}

	var data TransactionData
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	return data.Transaction(), nil
}

// Classify turns a non-successful transaction into a tagged error.
func Classify(tx *Transaction) error {
	if tx == nil || tx.Succeeded() {
		return nil
	}
	e := &Error{Message: "payment " + tx.Status, GatewayResponse: tx.GatewayResponse}
	switch strings.ToLower(tx.Status) {
	case "failed", "reversed":
		e.Kind = KindDeclined
		if strings.Contains(strings.ToLower(tx.GatewayResponse), "insufficient") {
			e.Kind = KindInsufficientFunds
		}
	case "abandoned":
		e.Kind = KindAbandoned
	case "ongoing", "pending", "processing", "queued", "send_otp", "send_pin", "send_birthday", "send_phone":
		e.Kind = KindPending
	default:
		e.Kind = KindUnknown
	}
	return e
}

// NewReference builds a unique reference for one attempt on an order.
func NewReference(orderID int64) string {
	return fmt.Sprintf("PSK-%d-%s", orderID, strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// TransactionData is the transaction object shared by the verify endpoint
// and charge.* webhook events.
type TransactionData struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	PaidAt          *time.Time      `json:"paid_at"`
	Metadata        json.RawMessage `json:"metadata"`
}

func (d TransactionData) Transaction() *Transaction {
	return &Transaction{
		ID:              d.ID,
		Reference:       d.Reference,
		Status:          strings.ToLower(d.Status),
		Amount:          d.Amount,
		Currency:        d.Currency,
		Channel:         d.Channel,
		GatewayResponse: d.GatewayResponse,
		PaidAt:          d.PaidAt,
		OrderID:         metadataOrderID(d.Metadata),
	}
}

// metadataOrderID reads metadata.order_id, which may be a string or number;
// metadata itself may be an object, a JSON string or empty.
func metadataOrderID(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = json.RawMessage(asString)
	}
	var meta struct {
		OrderID json.RawMessage `json:"order_id"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil || len(meta.OrderID) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(meta.OrderID, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(meta.OrderID, &s); err == nil {
		n, _ = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	return n
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paystack: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return transportError(ctx, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: messageOr(env.Message, "transaction not found")}
	case resp.StatusCode >= 500:
		return &Error{Kind: KindNetwork, Message: fmt.Sprintf("gateway returned %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusBadRequest:
		return &Error{Kind: KindValidation, Message: messageOr(env.Message, "gateway rejected the request")}
	case resp.StatusCode >= 400:
		return &Error{Kind: KindUnknown, Message: messageOr(env.Message, fmt.Sprintf("gateway returned %d", resp.StatusCode))}
	}

	if decodeErr != nil {
		return &Error{Kind: KindUnknown, Message: "malformed gateway response", Err: decodeErr}
	}
	if !env.Status {
		return &Error{Kind: KindUnknown, Message: messageOr(env.Message, "gateway reported failure")}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Kind: KindUnknown, Message: "malformed gateway data", Err: err}
		}
	}
	return nil
}

func transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "gateway request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "gateway request timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: "gateway unreachable", Err: err}
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
