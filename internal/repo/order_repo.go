package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/01moynul/storefront-api/internal/models"
)

type OrderRepo interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
	List(ctx context.Context, f models.OrderFilter) ([]models.Order, int, error)
	// MarkPaid flips is_paid only while the order is still unpaid and in
	// status from, and takes the ordered quantities out of stock. It reports
	// false when no row matched.
	MarkPaid(ctx context.Context, id int64, from, to models.OrderStatus, paidAt time.Time, reference string) (bool, error)
	// UpdateLifecycle persists status and lifecycle columns, guarded on the
	// status the caller read.
	UpdateLifecycle(ctx context.Context, order *models.Order, from models.OrderStatus) error
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, user_id, shipping_address, payment_method, items_price, shipping_price,
	tax_price, discount, total_price, promo_code, is_paid, paid_at, payment_reference, status,
	tracking_number, cancel_reason, cancelled_at, delivered_at, delivery_confirmed_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*models.Order, error) {
	var o models.Order
	var address []byte
	err := s.Scan(
		&o.ID, &o.UserID, &address, &o.PaymentMethod, &o.ItemsPrice, &o.ShippingPrice,
		&o.TaxPrice, &o.Discount, &o.TotalPrice, &o.PromoCode, &o.IsPaid, &o.PaidAt,
		&o.PaymentReference, &o.Status, &o.TrackingNumber, &o.CancelReason, &o.CancelledAt,
		&o.DeliveredAt, &o.DeliveryConfirmedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address of order %d: %w", o.ID, err)
	}
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if order.Status == "" {
		order.Status = models.OrderPending
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO orders (user_id, shipping_address, payment_method, items_price, shipping_price,
				tax_price, discount, total_price, promo_code, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.UserID, address, order.PaymentMethod, order.ItemsPrice, order.ShippingPrice,
			order.TaxPrice, order.Discount, order.TotalPrice, order.PromoCode, order.Status, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			res, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, name, image, price, qty, size, color, is_custom_design)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, item.ProductID, item.Name, item.Image, item.Price, item.Qty, item.Size, item.Color, item.IsCustomDesign,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			itemID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			item.ID, item.OrderID = itemID, id
		}

		order.ID = id
		order.CreatedAt, order.UpdatedAt = now, now
		return nil
	})
}

func (r *orderRepo) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.attachItems(ctx, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, _, err := r.List(ctx, models.OrderFilter{UserID: &userID})
	return orders, err
}

func (r *orderRepo) List(ctx context.Context, f models.OrderFilter) ([]models.Order, int, error) {
	var where []string
	var args []any
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.IsPaid != nil {
		where = append(where, "is_paid = ?")
		args = append(args, *f.IsPaid)
	}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "created_at < ?")
		args = append(args, *f.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := "SELECT " + orderColumns + " FROM orders" + clause + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachItems(ctx, ptrs); err != nil {
		return nil, 0, err
	}

	orders := make([]models.Order, 0, len(ptrs))
	for _, o := range ptrs {
		orders = append(orders, *o)
	}
	return orders, total, nil
}

func (r *orderRepo) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Order, len(orders))
	args := make([]any, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
		args = append(args, o.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, image, price, qty, size, color, is_custom_design
		FROM order_items WHERE order_id IN (`+placeholders(len(args))+`) ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Image, &it.Price,
			&it.Qty, &it.Size, &it.Color, &it.IsCustomDesign); err != nil {
			return err
		}
		if o := byID[it.OrderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func (r *orderRepo) MarkPaid(ctx context.Context, id int64, from, to models.OrderStatus, paidAt time.Time, reference string) (bool, error) {
	applied := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET is_paid = 1, paid_at = ?, payment_reference = COALESCE(?, payment_reference),
				status = ?, updated_at = ?
			WHERE id = ? AND is_paid = 0 AND status = ?`,
			paidAt.UTC(), nullString(reference), to, time.Now().UTC(), id, from,
		)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		// a product may appear on several lines (sizes, colours)
		_, err = tx.ExecContext(ctx, `
			UPDATE products p
			JOIN (SELECT product_id, SUM(qty) AS qty FROM order_items WHERE order_id = ? GROUP BY product_id) oi
				ON oi.product_id = p.id
			SET p.count_in_stock = GREATEST(p.count_in_stock - oi.qty, 0)`, id)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *orderRepo) UpdateLifecycle(ctx context.Context, o *models.Order, from models.OrderStatus) error {
	o.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, tracking_number = ?, cancel_reason = ?, cancelled_at = ?,
			delivered_at = ?, delivery_confirmed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		o.Status, o.TrackingNumber, o.CancelReason, o.CancelledAt,
		o.DeliveredAt, o.DeliveryConfirmedAt, o.UpdatedAt, o.ID, from,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
