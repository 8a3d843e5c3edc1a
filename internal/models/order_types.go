package models

import "time"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderDelivered  OrderStatus = "Delivered"
	OrderCancelled  OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// PaymentMethod is how the customer chose to pay at checkout.
type PaymentMethod string

const (
	PaymentMethodPaystack       PaymentMethod = "paystack"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodPaystack || m == PaymentMethodCashOnDelivery
}

// ShippingAddress is stored inline on the 'orders' table.
type ShippingAddress struct {
	FullName   string `json:"fullName" binding:"required"`
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone" binding:"required"`
}

// Order is the model for the 'orders' table.
// Nullable columns are pointers so they serialise as absent instead of zero values.
type Order struct {
	ID     int64 `json:"id" db:"id"`
	UserID int64 `json:"userId" db:"user_id"`

	Items           []OrderItem     `json:"orderItems" db:"-"`
	ShippingAddress ShippingAddress `json:"shippingAddress" db:"-"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" db:"payment_method"`

	// --- Pricing (server-computed, authoritative) ---
	ItemsPrice    float64 `json:"itemsPrice" db:"items_price"`
	ShippingPrice float64 `json:"shippingPrice" db:"shipping_price"`
	TaxPrice      float64 `json:"taxPrice" db:"tax_price"`
	Discount      float64 `json:"discount" db:"discount"`
	TotalPrice    float64 `json:"totalPrice" db:"total_price"`
	PromoCode     *string `json:"promoCode,omitempty" db:"promo_code"`

	// --- Payment ---
	IsPaid           bool       `json:"isPaid" db:"is_paid"`
	PaidAt           *time.Time `json:"paidAt,omitempty" db:"paid_at"`
	PaymentReference *string    `json:"paymentReference,omitempty" db:"payment_reference"`

	// --- Lifecycle ---
	Status              OrderStatus `json:"status" db:"status"`
	TrackingNumber      *string     `json:"trackingNumber,omitempty" db:"tracking_number"`
	CancelReason        *string     `json:"cancelReason,omitempty" db:"cancel_reason"`
	CancelledAt         *time.Time  `json:"cancelledAt,omitempty" db:"cancelled_at"`
	DeliveredAt         *time.Time  `json:"deliveredAt,omitempty" db:"delivered_at"`
	DeliveryConfirmedAt *time.Time  `json:"deliveryConfirmedAt,omitempty" db:"delivery_confirmed_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// OrderItem is the model for the 'order_items' table.
// Name, image and price are snapshots taken at checkout.
type OrderItem struct {
	ID             int64   `json:"id" db:"id"`
	OrderID        int64   `json:"orderId" db:"order_id"`
	ProductID      int64   `json:"product" db:"product_id"`
	Name           string  `json:"name" db:"name"`
	Image          string  `json:"image" db:"image"`
	Price          float64 `json:"price" db:"price"`
	Qty            int     `json:"qty" db:"qty"`
	Size           string  `json:"size,omitempty" db:"size"`
	Color          string  `json:"color,omitempty" db:"color"`
	IsCustomDesign bool    `json:"isCustomDesign" db:"is_custom_design"`
}

// OrderFilter narrows the admin order listing.
type OrderFilter struct {
	Status *OrderStatus
	IsPaid *bool
	UserID *int64
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
