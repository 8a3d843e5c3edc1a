package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/paystack"
	"github.com/01moynul/storefront-api/internal/repo"
)

const EventChargeSuccess = "charge.success"

// handledEvents are acted upon; anything else is acknowledged and dropped so
// the sender stops retrying.
var handledEvents = map[string]bool{
	EventChargeSuccess:       true,
	"charge.dispute.create":  true,
	"charge.dispute.remind":  true,
	"charge.dispute.resolve": true,
	"transfer.success":       true,
	"transfer.failed":        true,
	"transfer.reversed":      true,
}

// WebhookOutcome tells the handler what happened to a verified delivery.
type WebhookOutcome struct {
	Event     string `json:"event"`
	Processed bool   `json:"processed"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type WebhookService interface {
	// Handle processes a body whose signature has already been checked.
	Handle(ctx context.Context, body []byte) (WebhookOutcome, error)
}

type webhookService struct {
	payments PaymentService
	events   repo.WebhookEventRepo
	log      *slog.Logger
}

func NewWebhookService(payments PaymentService, events repo.WebhookEventRepo, logger *slog.Logger) WebhookService {
	return &webhookService{payments: payments, events: events, log: logger}
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// eventRef is the subset of fields shared by charge, dispute and transfer
// payloads that identifies the delivery.
type eventRef struct {
	ID           json.RawMessage `json:"id"`
	Reference    string          `json:"reference"`
	TransferCode string          `json:"transfer_code"`
	Transaction  *struct {
		Reference string `json:"reference"`
	} `json:"transaction"`
}

func (r eventRef) reference() string {
	switch {
	case r.Reference != "":
		return r.Reference
	case r.Transaction != nil && r.Transaction.Reference != "":
		return r.Transaction.Reference
	}
	return r.TransferCode
}

func (s *webhookService) Handle(ctx context.Context, body []byte) (WebhookOutcome, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookOutcome{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	env.Event = strings.TrimSpace(env.Event)
	if env.Event == "" {
		return WebhookOutcome{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}

	out := WebhookOutcome{Event: env.Event}
	if !handledEvents[env.Event] {
		s.log.InfoContext(ctx, "webhook event ignored", "event", env.Event)
		return out, nil
	}

	var ref eventRef
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &ref) != nil {
		return out, fmt.Errorf("%w: %s without data", ErrMalformedEvent, env.Event)
	}
	key := eventKey(env.Event, ref)
	if key == "" {
		return out, fmt.Errorf("%w: %s without id or reference", ErrMalformedEvent, env.Event)
	}

	seen, err := s.events.Seen(ctx, key)
	if err != nil {
		return out, err
	}
	if seen {
		out.Duplicate = true
		s.log.InfoContext(ctx, "webhook redelivery dropped", "event", env.Event, "key", key)
		return out, nil
	}

	if env.Event == EventChargeSuccess {
		if err := s.applyCharge(ctx, env.Data); err != nil {
			return out, err
		}
	} else {
		s.log.InfoContext(ctx, "webhook event recorded", "event", env.Event, "reference", ref.reference())
	}

	fresh, err := s.events.Record(ctx, &models.WebhookEvent{EventKey: key, Event: env.Event, Reference: ref.reference()})
	if err != nil {
		return out, err
	}
	out.Duplicate = !fresh
	out.Processed = true
	return out, nil
}

// applyCharge settles a charge.success payload. Reconciliation failures are
// logged and swallowed: a redelivery cannot fix them.
func (s *webhookService) applyCharge(ctx context.Context, data json.RawMessage) error {
	var td paystack.TransactionData
	if err := json.Unmarshal(data, &td); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	tx := td.Transaction()
	if tx.Status == "" {
		tx.Status = "success"
	}

	result, err := s.payments.ApplyCharge(ctx, tx)
	switch {
	case errors.Is(err, ErrReconciliation):
		s.log.WarnContext(ctx, "webhook charge not applied", "reference", tx.Reference, "error", err)
		return nil
	case err != nil:
		if _, ok := paystack.AsError(err); ok {
			s.log.WarnContext(ctx, "webhook charge not successful", "reference", tx.Reference, "error", err)
			return nil
		}
		return err
	}
	s.log.InfoContext(ctx, "webhook charge applied",
		"reference", tx.Reference, "order_id", result.Order.ID, "already_paid", result.AlreadyPaid)
	return nil
}

// eventKey prefers the gateway's numeric object id and falls back to the
// reference.
func eventKey(event string, ref eventRef) string {
	if id, err := strconv.ParseInt(strings.Trim(string(ref.ID), `"`), 10, 64); err == nil && id > 0 {
		return event + ":" + strconv.FormatInt(id, 10)
	}
	if r := ref.reference(); r != "" {
		return event + ":" + r
	}
	return ""
}
