package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/01moynul/storefront-api/internal/models"
)

type WebhookEventRepo interface {
	Seen(ctx context.Context, eventKey string) (bool, error)
	// Record stores the event and reports false when its key was already seen.
	Record(ctx context.Context, e *models.WebhookEvent) (bool, error)
}

type webhookEventRepo struct {
	db *sql.DB
}

func NewWebhookEventRepo(db *sql.DB) WebhookEventRepo {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) Seen(ctx context.Context, eventKey string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_events WHERE event_key = ?", eventKey).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup webhook event: %w", err)
	}
	return n > 0, nil
}

func (r *webhookEventRepo) Record(ctx context.Context, e *models.WebhookEvent) (bool, error) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT IGNORE INTO webhook_events (event_key, event, reference, received_at)
		VALUES (?, ?, ?, ?)`, e.EventKey, e.Event, nullString(e.Reference), e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	e.ID, _ = res.LastInsertId()
	return true, nil
}
