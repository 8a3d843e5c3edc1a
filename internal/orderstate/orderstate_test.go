package orderstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/storefront-api/internal/models"
)

func paystackState(status models.OrderStatus, paid bool) State {
	return State{Status: status, IsPaid: paid, PaymentMethod: models.PaymentMethodPaystack}
}

func TestTransition_HappyPath(t *testing.T) {
	s := paystackState(models.OrderPending, false)

	s, err := Transition(s, PaymentSucceeded())
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, s.Status)
	assert.True(t, s.IsPaid)

	s, err = Transition(s, Ship())
	require.NoError(t, err)
	assert.Equal(t, models.OrderShipped, s.Status)

	s, err = Transition(s, Deliver())
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, s.Status)

	s, err = Transition(s, ConfirmDelivery())
	require.NoError(t, err)
	assert.True(t, s.DeliveryConfirmed)

	_, err = Transition(s, ConfirmDelivery())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_PaymentIsIdempotent(t *testing.T) {
	paid := paystackState(models.OrderProcessing, true)

	next, err := Transition(paid, PaymentSucceeded())
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, paid, next)
}

func TestTransition_PaymentOnCancelledOrder(t *testing.T) {
	_, err := Transition(paystackState(models.OrderCancelled, false), PaymentSucceeded())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_CashOnDelivery(t *testing.T) {
	s := State{Status: models.OrderPending, PaymentMethod: models.PaymentMethodCashOnDelivery}

	s, err := Transition(s, MarkProcessing())
	require.NoError(t, err)
	s, err = Transition(s, Ship())
	require.NoError(t, err)
	s, err = Transition(s, Deliver())
	require.NoError(t, err)
	assert.False(t, s.IsPaid)

	s, err = Transition(s, PaymentSucceeded())
	require.NoError(t, err)
	assert.True(t, s.IsPaid)
	assert.Equal(t, models.OrderDelivered, s.Status, "collecting cash does not move the status back")
}

func TestTransition_ProcessingRequiresPayment(t *testing.T) {
	_, err := Transition(paystackState(models.OrderPending, false), MarkProcessing())
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestTransition_Cancel(t *testing.T) {
	for _, status := range []models.OrderStatus{models.OrderPending, models.OrderProcessing} {
		next, err := Transition(paystackState(status, false), Cancel("changed my mind"))
		require.NoError(t, err, status)
		assert.Equal(t, models.OrderCancelled, next.Status)
	}

	for _, status := range []models.OrderStatus{models.OrderShipped, models.OrderDelivered, models.OrderCancelled} {
		_, err := Transition(paystackState(status, true), Cancel("too late"))
		assert.ErrorIs(t, err, ErrInvalidTransition, status)
	}

	_, err := Transition(paystackState(models.OrderPending, false), Cancel("   "))
	assert.ErrorIs(t, err, ErrReasonRequired)
}

func TestTransition_SkippingStatesIsRejected(t *testing.T) {
	cases := []struct {
		from  models.OrderStatus
		event Event
	}{
		{models.OrderPending, Ship()},
		{models.OrderPending, Deliver()},
		{models.OrderProcessing, Deliver()},
		{models.OrderShipped, Ship()},
		{models.OrderDelivered, Ship()},
		{models.OrderCancelled, MarkProcessing()},
		{models.OrderShipped, ConfirmDelivery()},
	}
	for _, tc := range cases {
		_, err := Transition(paystackState(tc.from, true), tc.event)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", tc.event.Kind, tc.from)
	}
}

func TestTransition_UnknownEvent(t *testing.T) {
	_, err := Transition(paystackState(models.OrderPending, false), Event{Kind: "refund"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEventForStatus(t *testing.T) {
	e, err := EventForStatus(models.OrderShipped, "")
	require.NoError(t, err)
	assert.Equal(t, EventShip, e.Kind)

	e, err = EventForStatus(models.OrderCancelled, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, "out of stock", e.Reason)

	_, err = EventForStatus(models.OrderPending, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(models.OrderDelivered))
	assert.True(t, Terminal(models.OrderCancelled))
	assert.False(t, Terminal(models.OrderShipped))
}
