package models

// DashboardStats is the admin overview of sales and stock.
type DashboardStats struct {
	OrdersByStatus  map[OrderStatus]int `json:"ordersByStatus"`
	PaidOrders      int                 `json:"paidOrders"`
	UnpaidOrders    int                 `json:"unpaidOrders"`
	Revenue         float64             `json:"revenue"` // sum of paid order totals, naira
	PendingPayments int                 `json:"pendingPayments"`
	FailedPayments  int                 `json:"failedPayments"`
	LowStockCount   int                 `json:"lowStockCount"`
}
