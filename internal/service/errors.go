// Package service holds the order, payment and webhook business rules. It
// talks to storage through the repo interfaces and to the gateway through
// the Gateway interface, so every rule is testable without MySQL or Paystack.
package service

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden  = errors.New("not allowed to act on this resource")
	ErrOutOfStock = errors.New("not enough stock")
	// ErrReconciliation means the gateway's account of a charge does not
	// line up with local records; the order is left untouched.
	ErrReconciliation = errors.New("payment could not be reconciled")
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// ValidationError is bad caller input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalidField(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Actor is the authenticated caller.
type Actor struct {
	UserID int64
	Admin  bool
}

func (a Actor) owns(userID int64) bool {
	return a.Admin || a.UserID == userID
}
