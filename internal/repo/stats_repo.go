package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/01moynul/storefront-api/internal/models"
)

// StatsRepo answers the read-only aggregate queries behind the admin
// dashboard.
type StatsRepo interface {
	Dashboard(ctx context.Context, lowStockBelow int) (*models.DashboardStats, error)
}

type statsRepo struct {
	db *sql.DB
}

func NewStatsRepo(db *sql.DB) StatsRepo {
	return &statsRepo{db: db}
}

func (r *statsRepo) Dashboard(ctx context.Context, lowStockBelow int) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{OrdersByStatus: map[models.OrderStatus]int{}}

	// 1. Orders per status
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.OrdersByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 2. Paid vs unpaid, and revenue from paid orders
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(is_paid = 1), 0),
		       COALESCE(SUM(is_paid = 0 AND status <> 'Cancelled'), 0),
		       COALESCE(SUM(CASE WHEN is_paid = 1 THEN total_price ELSE 0 END), 0)
		FROM orders`).Scan(&stats.PaidOrders, &stats.UnpaidOrders, &stats.Revenue)
	if err != nil {
		return nil, fmt.Errorf("sum paid orders: %w", err)
	}

	// 3. Payment attempts still open or failed
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(status = 'pending'), 0), COALESCE(SUM(status = 'failed'), 0)
		FROM payments`).Scan(&stats.PendingPayments, &stats.FailedPayments)
	if err != nil {
		return nil, fmt.Errorf("count payments: %w", err)
	}

	// 4. Low stock
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE count_in_stock < ?`, lowStockBelow,
	).Scan(&stats.LowStockCount)
	if err != nil {
		return nil, fmt.Errorf("count low stock: %w", err)
	}

	return stats, nil
}
