package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/01moynul/storefront-api/internal/models"
)

// PaymentUpdate carries the gateway's answer for one reference.
type PaymentUpdate struct {
	Status          models.PaymentStatus
	Channel         string
	GatewayResponse string
	PaidAt          *time.Time
}

type PaymentRepo interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.Payment, error)
	UpdateStatus(ctx context.Context, reference string, u PaymentUpdate) error
	// AbandonPending marks every other pending attempt of the order abandoned.
	AbandonPending(ctx context.Context, orderID int64, keepReference string) (int64, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, order_id, user_id, reference, amount, currency, status, channel,
	gateway_response, paid_at, created_at, updated_at`

func scanPayment(s rowScanner) (*models.Payment, error) {
	var p models.Payment
	err := s.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Reference, &p.Amount, &p.Currency, &p.Status,
		&p.Channel, &p.GatewayResponse, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	now := time.Now().UTC()
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (order_id, user_id, reference, amount, currency, status, channel,
			gateway_response, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.UserID, p.Reference, p.Amount, p.Currency, p.Status, p.Channel,
		p.GatewayResponse, p.PaidAt, now, now,
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID, p.CreatedAt, p.UpdatedAt = id, now, now
	return nil
}

func (r *paymentRepo) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE reference = ?", reference)
	p, err := scanPayment(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderID int64) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE order_id = ? ORDER BY created_at, id", orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, reference string, u PaymentUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = ?, channel = COALESCE(?, channel),
			gateway_response = COALESCE(?, gateway_response), paid_at = COALESCE(?, paid_at), updated_at = ?
		WHERE reference = ?`,
		u.Status, nullString(u.Channel), nullString(u.GatewayResponse), u.PaidAt, time.Now().UTC(), reference,
	)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", reference, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *paymentRepo) AbandonPending(ctx context.Context, orderID int64, keepReference string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = ?, updated_at = ?
		WHERE order_id = ? AND status = ? AND reference <> ?`,
		models.PaymentAbandoned, time.Now().UTC(), orderID, models.PaymentPending, keepReference,
	)
	if err != nil {
		return 0, fmt.Errorf("abandon pending payments: %w", err)
	}
	return res.RowsAffected()
}
