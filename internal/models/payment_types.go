package models

import "time"

// PaymentStatus mirrors the gateway's transaction states.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentAbandoned PaymentStatus = "abandoned"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Terminal statuses never change again.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed || s == PaymentRefunded
}

// Payment is the model for the 'payments' table: one row per gateway attempt.
type Payment struct {
	ID              int64         `json:"id" db:"id"`
	OrderID         int64         `json:"orderId" db:"order_id"`
	UserID          int64         `json:"userId" db:"user_id"`
	Reference       string        `json:"reference" db:"reference"`
	Amount          int64         `json:"amount" db:"amount"` // kobo
	Currency        string        `json:"currency" db:"currency"`
	Status          PaymentStatus `json:"status" db:"status"`
	Channel         *string       `json:"channel,omitempty" db:"channel"`
	GatewayResponse *string       `json:"gatewayResponse,omitempty" db:"gateway_response"`
	PaidAt          *time.Time    `json:"paidAt,omitempty" db:"paid_at"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

// WebhookEvent is the model for the 'webhook_events' table, used to drop
// redelivered gateway callbacks.
type WebhookEvent struct {
	ID         int64     `json:"id" db:"id"`
	EventKey   string    `json:"eventKey" db:"event_key"`
	Event      string    `json:"event" db:"event"`
	Reference  string    `json:"reference" db:"reference"`
	ReceivedAt time.Time `json:"receivedAt" db:"received_at"`
}
