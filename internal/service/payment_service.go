package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/orderstate"
	"github.com/01moynul/storefront-api/internal/paystack"
	"github.com/01moynul/storefront-api/internal/pricing"
	"github.com/01moynul/storefront-api/internal/repo"
)

// Gateway is the part of the Paystack client the payment rules need.
type Gateway interface {
	ValidateInitialize(req paystack.InitializeRequest) error
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.Session, error)
	Verify(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// Settlement is the outcome of reconciling one successful charge.
type Settlement struct {
	Order   *models.Order   `json:"order"`
	Payment *models.Payment `json:"payment"`
	// AlreadyPaid is set when the order had been paid before this charge
	// was applied; nothing changed.
	AlreadyPaid bool `json:"alreadyPaid"`
}

type PaymentService interface {
	Initialize(ctx context.Context, actor Actor, orderID int64, email string) (*paystack.Session, error)
	Retry(ctx context.Context, actor Actor, orderID int64, email string) (*paystack.Session, error)
	// Verify asks the gateway about reference and applies a successful
	// charge. Non-successful charges come back as *paystack.Error.
	Verify(ctx context.Context, actor Actor, reference string) (*Settlement, error)
	// PayOrder is Verify restricted to a reference that belongs to orderID.
	PayOrder(ctx context.Context, actor Actor, orderID int64, reference string) (*Settlement, error)
	// ApplyCharge reconciles a charge reported by a signed webhook.
	ApplyCharge(ctx context.Context, tx *paystack.Transaction) (*Settlement, error)
}

type paymentService struct {
	orders   repo.OrderRepo
	payments repo.PaymentRepo
	gateway  Gateway
	log      *slog.Logger
	now      func() time.Time
}

func NewPaymentService(orders repo.OrderRepo, payments repo.PaymentRepo, gateway Gateway, logger *slog.Logger) PaymentService {
	return &paymentService{
		orders:   orders,
		payments: payments,
		gateway:  gateway,
		log:      logger,
		now:      time.Now,
	}
}

func (s *paymentService) Initialize(ctx context.Context, actor Actor, orderID int64, email string) (*paystack.Session, error) {
	return s.start(ctx, actor, orderID, email, false)
}

func (s *paymentService) Retry(ctx context.Context, actor Actor, orderID int64, email string) (*paystack.Session, error) {
	return s.start(ctx, actor, orderID, email, true)
}

// start opens a new payment attempt. The pending record is written before
// the gateway call so a webhook can never arrive for an unknown reference.
func (s *paymentService) start(ctx context.Context, actor Actor, orderID int64, email string, retry bool) (*paystack.Session, error) {
	if orderID <= 0 {
		return nil, invalidField("orderId", "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	if !actor.owns(order.UserID) {
		return nil, ErrForbidden
	}
	if order.IsPaid {
		return nil, orderstate.ErrAlreadyPaid
	}
	if order.Status == models.OrderCancelled {
		return nil, fmt.Errorf("%w: order %d is cancelled", orderstate.ErrInvalidTransition, order.ID)
	}
	if order.PaymentMethod != models.PaymentMethodPaystack {
		return nil, invalidField("paymentMethod", "order %d is not payable online", order.ID)
	}

	req := paystack.InitializeRequest{
		Email:     email,
		Amount:    order.TotalPrice,
		OrderID:   order.ID,
		Reference: paystack.NewReference(order.ID),
	}
	if err := s.gateway.ValidateInitialize(req); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reference: req.Reference,
		Amount:    pricing.ToKobo(order.TotalPrice),
		Currency:  paystack.Currency,
		Status:    models.PaymentPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("record payment attempt: %w", err)
	}

	session, err := s.gateway.Initialize(ctx, req)
	if err != nil {
		if uerr := s.payments.UpdateStatus(ctx, payment.Reference, repo.PaymentUpdate{
			Status:          models.PaymentFailed,
			GatewayResponse: truncate(err.Error(), 255),
		}); uerr != nil {
			s.log.ErrorContext(ctx, "could not mark payment attempt failed", "reference", payment.Reference, "error", uerr)
		}
		s.log.WarnContext(ctx, "payment initialization failed", "order_id", order.ID, "reference", payment.Reference, "error", err)
		return nil, err
	}

	if retry {
		n, err := s.payments.AbandonPending(ctx, order.ID, payment.Reference)
		if err != nil {
			s.log.WarnContext(ctx, "could not abandon earlier attempts", "order_id", order.ID, "error", err)
		} else if n > 0 {
			s.log.InfoContext(ctx, "earlier payment attempts abandoned", "order_id", order.ID, "count", n)
		}
	}

	s.log.InfoContext(ctx, "payment session opened",
		"order_id", order.ID, "reference", session.Reference, "amount_kobo", session.Amount, "retry", retry)
	return session, nil
}

func (s *paymentService) Verify(ctx context.Context, actor Actor, reference string) (*Settlement, error) {
	return s.verify(ctx, actor, 0, reference)
}

func (s *paymentService) PayOrder(ctx context.Context, actor Actor, orderID int64, reference string) (*Settlement, error) {
	if orderID <= 0 {
		return nil, invalidField("orderId", "order id is required")
	}
	return s.verify(ctx, actor, orderID, reference)
}

func (s *paymentService) verify(ctx context.Context, actor Actor, orderID int64, reference string) (*Settlement, error) {
	if reference == "" {
		return nil, invalidField("reference", "payment reference is required")
	}

	// ownership is checked before the gateway is asked anything
	payment, err := s.payments.FindByReference(ctx, reference)
	switch {
	case err == nil:
		if !actor.owns(payment.UserID) {
			return nil, ErrForbidden
		}
		if orderID != 0 && payment.OrderID != orderID {
			return nil, invalidField("reference", "reference does not belong to order %d", orderID)
		}
	case errors.Is(err, repo.ErrNotFound):
		payment = nil
	default:
		return nil, err
	}

	tx, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.Reference == "" {
		tx.Reference = reference
	}

	if payment == nil {
		return s.reconcileUnrecorded(ctx, &actor, orderID, tx)
	}
	return s.reconcile(ctx, payment, tx)
}

func (s *paymentService) ApplyCharge(ctx context.Context, tx *paystack.Transaction) (*Settlement, error) {
	if tx == nil || tx.Reference == "" {
		return nil, fmt.Errorf("%w: charge without reference", ErrMalformedEvent)
	}
	payment, err := s.payments.FindByReference(ctx, tx.Reference)
	if errors.Is(err, repo.ErrNotFound) {
		return s.reconcileUnrecorded(ctx, nil, 0, tx)
	}
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, payment, tx)
}

// reconcile applies the gateway's answer to a known payment attempt.
func (s *paymentService) reconcile(ctx context.Context, payment *models.Payment, tx *paystack.Transaction) (*Settlement, error) {
	if !tx.Succeeded() {
		gerr := paystack.Classify(tx)
		if status, ok := paymentStatusFor(tx.Status); ok && !payment.Status.Terminal() && payment.Status != status {
			if err := s.payments.UpdateStatus(ctx, payment.Reference, repo.PaymentUpdate{
				Status:          status,
				Channel:         tx.Channel,
				GatewayResponse: tx.GatewayResponse,
			}); err != nil {
				return nil, err
			}
		}
		s.log.InfoContext(ctx, "payment not successful",
			"reference", payment.Reference, "order_id", payment.OrderID, "gateway_status", tx.Status)
		return nil, gerr
	}

	if tx.Currency != paystack.Currency || tx.Amount < payment.Amount {
		s.log.WarnContext(ctx, "charge does not match payment attempt",
			"reference", payment.Reference, "order_id", payment.OrderID,
			"expected_kobo", payment.Amount, "charged_kobo", tx.Amount, "currency", tx.Currency)
		if payment.Status != models.PaymentSuccess {
			if err := s.payments.UpdateStatus(ctx, payment.Reference, repo.PaymentUpdate{
				Status:          models.PaymentFailed,
				GatewayResponse: "amount or currency mismatch",
			}); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: charged %d %s, expected %d %s",
			ErrReconciliation, tx.Amount, tx.Currency, payment.Amount, paystack.Currency)
	}

	paidAt := s.paidAt(tx)
	if payment.Status != models.PaymentSuccess {
		if payment.Status.Terminal() {
			s.log.WarnContext(ctx, "terminal payment corrected to success",
				"reference", payment.Reference, "previous_status", payment.Status, "order_id", payment.OrderID)
		}
		if err := s.payments.UpdateStatus(ctx, payment.Reference, repo.PaymentUpdate{
			Status:          models.PaymentSuccess,
			Channel:         tx.Channel,
			GatewayResponse: tx.GatewayResponse,
			PaidAt:          &paidAt,
		}); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentSuccess
		payment.PaidAt = &paidAt
		if tx.Channel != "" {
			payment.Channel = &tx.Channel
		}
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", payment.OrderID, err)
	}
	return s.settle(ctx, order, payment, paidAt)
}

// reconcileUnrecorded handles a reference with no local attempt. The order
// is marked paid only when the gateway's charge names an existing order in
// its metadata and covers that order's total in naira.
func (s *paymentService) reconcileUnrecorded(ctx context.Context, actor *Actor, orderID int64, tx *paystack.Transaction) (*Settlement, error) {
	if !tx.Succeeded() {
		return nil, paystack.Classify(tx)
	}

	reject := func(reason string, args ...any) (*Settlement, error) {
		msg := fmt.Sprintf(reason, args...)
		s.log.WarnContext(ctx, "unrecorded charge rejected",
			"reference", tx.Reference, "metadata_order_id", tx.OrderID, "reason", msg)
		return nil, fmt.Errorf("%w: %s", ErrReconciliation, msg)
	}

	if tx.OrderID <= 0 {
		return reject("charge carries no order id")
	}
	if orderID != 0 && tx.OrderID != orderID {
		return reject("charge is for order %d", tx.OrderID)
	}
	order, err := s.orders.FindByID(ctx, tx.OrderID)
	if errors.Is(err, repo.ErrNotFound) {
		return reject("order %d does not exist", tx.OrderID)
	}
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.owns(order.UserID) {
		return nil, ErrForbidden
	}
	if tx.Currency != paystack.Currency {
		return reject("currency %q", tx.Currency)
	}
	if due := pricing.ToKobo(order.TotalPrice); tx.Amount < due {
		return reject("charged %d kobo against %d due", tx.Amount, due)
	}

	paidAt := s.paidAt(tx)
	payment := &models.Payment{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reference: tx.Reference,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Status:    models.PaymentSuccess,
		PaidAt:    &paidAt,
	}
	if tx.Channel != "" {
		payment.Channel = &tx.Channel
	}
	if tx.GatewayResponse != "" {
		payment.GatewayResponse = &tx.GatewayResponse
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("record reconciled payment: %w", err)
		}
		// a concurrent verify or webhook recorded it first
		if payment, err = s.payments.FindByReference(ctx, tx.Reference); err != nil {
			return nil, err
		}
	}

	s.log.WarnContext(ctx, "payment record missing, reconciled from gateway",
		"reference", tx.Reference, "order_id", order.ID, "amount_kobo", tx.Amount)
	return s.settle(ctx, order, payment, paidAt)
}

// settle marks the order paid once. A successful charge on an order that is
// already paid through another reference is a duplicate charge and is left
// for a manual refund.
func (s *paymentService) settle(ctx context.Context, order *models.Order, payment *models.Payment, paidAt time.Time) (*Settlement, error) {
	result := &Settlement{Order: order, Payment: payment}

	applied, err := markOrderPaid(ctx, s.orders, order, paidAt, payment.Reference)
	if errors.Is(err, orderstate.ErrInvalidTransition) {
		s.log.WarnContext(ctx, "charge on a cancelled order needs a manual refund",
			"order_id", order.ID, "reference", payment.Reference, "amount_kobo", payment.Amount)
		return nil, fmt.Errorf("%w: order %d is %s", ErrReconciliation, order.ID, order.Status)
	}
	if err != nil {
		return nil, err
	}

	if !applied {
		result.AlreadyPaid = true
		if order.PaymentReference != nil && *order.PaymentReference != payment.Reference {
			s.log.WarnContext(ctx, "duplicate charge on a paid order needs a manual refund",
				"order_id", order.ID, "paid_reference", *order.PaymentReference,
				"duplicate_reference", payment.Reference, "amount_kobo", payment.Amount)
		}
		return result, nil
	}

	s.log.InfoContext(ctx, "order paid",
		"order_id", order.ID, "reference", payment.Reference, "status", order.Status)
	return result, nil
}

func (s *paymentService) paidAt(tx *paystack.Transaction) time.Time {
	if tx.PaidAt != nil && !tx.PaidAt.IsZero() {
		return tx.PaidAt.UTC()
	}
	return s.now().UTC()
}

// paymentStatusFor maps a non-success gateway status onto the local record.
// In-flight statuses leave the record pending.
func paymentStatusFor(gatewayStatus string) (models.PaymentStatus, bool) {
	switch gatewayStatus {
	case "failed", "reversed":
		return models.PaymentFailed, true
	case "abandoned":
		return models.PaymentAbandoned, true
	case "cancelled":
		return models.PaymentCancelled, true
	}
	return "", false
}

// truncate caps s at n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
