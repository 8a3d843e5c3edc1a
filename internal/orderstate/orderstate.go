// Package orderstate owns every change to an order's status and paid flag.
// Handlers and services never assign those fields directly; they ask
// Transition for the next state and persist what it returns.
package orderstate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/01moynul/storefront-api/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrAlreadyPaid       = errors.New("order is already paid")
	ErrPaymentRequired   = errors.New("order must be paid first")
	ErrReasonRequired    = errors.New("a cancellation reason is required")
	ErrUnknownEvent      = errors.New("unknown order event")
)

// State is the part of an order the lifecycle rules look at.
type State struct {
	Status            models.OrderStatus
	IsPaid            bool
	PaymentMethod     models.PaymentMethod
	DeliveryConfirmed bool
}

func FromOrder(o *models.Order) State {
	return State{
		Status:            o.Status,
		IsPaid:            o.IsPaid,
		PaymentMethod:     o.PaymentMethod,
		DeliveryConfirmed: o.DeliveryConfirmedAt != nil,
	}
}

type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventMarkProcessing   EventKind = "mark_processing"
	EventShip             EventKind = "ship"
	EventDeliver          EventKind = "deliver"
	EventCancel           EventKind = "cancel"
	EventConfirmDelivery  EventKind = "confirm_delivery"
)

type Event struct {
	Kind   EventKind
	Reason string
}

func PaymentSucceeded() Event { return Event{Kind: EventPaymentSucceeded} }
func MarkProcessing() Event   { return Event{Kind: EventMarkProcessing} }
func Ship() Event             { return Event{Kind: EventShip} }
func Deliver() Event          { return Event{Kind: EventDeliver} }
func ConfirmDelivery() Event  { return Event{Kind: EventConfirmDelivery} }
func Cancel(reason string) Event {
	return Event{Kind: EventCancel, Reason: reason}
}

// EventForStatus maps an admin's requested target status to the event that
// reaches it.
func EventForStatus(target models.OrderStatus, reason string) (Event, error) {
	switch target {
	case models.OrderProcessing:
		return MarkProcessing(), nil
	case models.OrderShipped:
		return Ship(), nil
	case models.OrderDelivered:
		return Deliver(), nil
	case models.OrderCancelled:
		return Cancel(reason), nil
	}
	return Event{}, fmt.Errorf("%w: cannot move an order to %q", ErrInvalidTransition, target)
}

// Transition returns the state after applying e to s, or an error when the
// lifecycle does not allow it. s is never modified.
func Transition(s State, e Event) (State, error) {
	next := s

	switch e.Kind {
	case EventPaymentSucceeded:
		if s.IsPaid {
			return s, ErrAlreadyPaid
		}
		if s.Status == models.OrderCancelled {
			return s, invalid(s, e)
		}
		next.IsPaid = true
		if s.Status == models.OrderPending {
			next.Status = models.OrderProcessing
		}

	case EventMarkProcessing:
		if s.Status != models.OrderPending {
			return s, invalid(s, e)
		}
		if !s.IsPaid && s.PaymentMethod != models.PaymentMethodCashOnDelivery {
			return s, ErrPaymentRequired
		}
		next.Status = models.OrderProcessing

	case EventShip:
		if s.Status != models.OrderProcessing {
			return s, invalid(s, e)
		}
		next.Status = models.OrderShipped

	case EventDeliver:
		if s.Status != models.OrderShipped {
			return s, invalid(s, e)
		}
		next.Status = models.OrderDelivered

	case EventConfirmDelivery:
		if s.Status != models.OrderDelivered || s.DeliveryConfirmed {
			return s, invalid(s, e)
		}
		next.DeliveryConfirmed = true

	case EventCancel:
		if !CanCancel(s.Status) {
			return s, invalid(s, e)
		}
		if strings.TrimSpace(e.Reason) == "" {
			return s, ErrReasonRequired
		}
		next.Status = models.OrderCancelled

	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Kind)
	}

	return next, nil
}

// CanCancel reports whether an order in status may still be cancelled.
func CanCancel(status models.OrderStatus) bool {
	return status == models.OrderPending || status == models.OrderProcessing
}

// Terminal reports whether no status change can follow.
func Terminal(status models.OrderStatus) bool {
	return status == models.OrderDelivered || status == models.OrderCancelled
}

func invalid(s State, e Event) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, e.Kind, s.Status)
}
