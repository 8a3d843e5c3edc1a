package paystack

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every failure the adapter can return. Callers switch on the
// kind; they never inspect message text.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindDeclined          Kind = "declined"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindAbandoned         Kind = "abandoned"
	KindPending           Kind = "pending"
	KindNetwork           Kind = "network"
	KindTimeout           Kind = "timeout"
	KindNotFound          Kind = "not_found"
	KindUnknown           Kind = "unknown"
)

// Error is the adapter's tagged error.
type Error struct {
	Kind            Kind
	Message         string
	GatewayResponse string
	Err             error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "paystack %s: %s", e.Kind, e.Message)
	if e.GatewayResponse != "" {
		fmt.Fprintf(&b, " (%s)", e.GatewayResponse)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindPending:
		return true
	}
	return false
}

// Terminal reports whether the charge attempt is over and a new payment
// session is needed.
func (e *Error) Terminal() bool {
	switch e.Kind {
	case KindDeclined, KindInsufficientFunds, KindAbandoned:
		return true
	}
	return false
}

func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindValidation:
		return e.Message
	case KindDeclined:
		return "Your card was declined. Please try another card or payment method."
	case KindInsufficientFunds:
		return "Insufficient funds. Please fund your account or use another card."
	case KindAbandoned:
		return "The payment was not completed. You can retry the payment."
	case KindPending:
		return "Your payment is still being processed. Please check again shortly."
	case KindNetwork:
		return "We could not reach the payment provider. Please try again."
	case KindTimeout:
		return "The payment provider took too long to respond. Please try again."
	case KindNotFound:
		return "We could not find that payment."
	}
	return "Payment could not be processed. Please contact support if you were charged."
}

// NextAction is the suggestion shown next to the message.
func (e *Error) NextAction() string {
	switch e.Kind {
	case KindValidation:
		return "correct_details"
	case KindDeclined, KindInsufficientFunds, KindAbandoned:
		return "retry_payment"
	case KindNetwork, KindTimeout, KindPending:
		return "try_again"
	}
	return "contact_support"
}

// AsError unwraps err to the adapter's tagged error.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}
