package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/01moynul/storefront-api/internal/models"
)

type CartRepo interface {
	Get(ctx context.Context, userID int64) (*models.SavedCart, error)
	Save(ctx context.Context, cart *models.SavedCart) error
	Delete(ctx context.Context, userID int64) error
}

type cartRepo struct {
	db *sql.DB
}

func NewCartRepo(db *sql.DB) CartRepo {
	return &cartRepo{db: db}
}

func (r *cartRepo) Get(ctx context.Context, userID int64) (*models.SavedCart, error) {
	var payload []byte
	var updated time.Time
	err := r.db.QueryRowContext(ctx, "SELECT payload, updated_at FROM carts WHERE user_id = ?", userID).
		Scan(&payload, &updated)
	if err != nil {
		return nil, notFound(err)
	}

	var cart models.SavedCart
	if err := json.Unmarshal(payload, &cart); err != nil {
		return nil, fmt.Errorf("decode cart of user %d: %w", userID, err)
	}
	cart.UserID, cart.UpdatedAt = userID, updated
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return &cart, nil
}

func (r *cartRepo) Save(ctx context.Context, cart *models.SavedCart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, payload, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`,
		cart.UserID, payload, now)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	cart.UpdatedAt = now
	return nil
}

func (r *cartRepo) Delete(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM carts WHERE user_id = ?", userID)
	return err
}
