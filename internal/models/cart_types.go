package models

import "time"

// CartItem is one line of the shopper's cart.
type CartItem struct {
	ProductID      int64   `json:"product" binding:"required,gt=0"`
	Name           string  `json:"name"`
	Image          string  `json:"image"`
	Price          float64 `json:"price" binding:"gte=0"`
	Qty            int     `json:"qty" binding:"required,gt=0"`
	Size           string  `json:"size,omitempty"`
	Color          string  `json:"color,omitempty"`
	IsCustomDesign bool    `json:"isCustomDesign"`
}

// SavedCart is the 'carts' table: the server copy of a logged-in shopper's
// cart, stored as one JSON payload per user.
type SavedCart struct {
	UserID          int64            `json:"userId" db:"user_id"`
	Items           []CartItem       `json:"cartItems"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod,omitempty"`
	PromoCode       string           `json:"promoCode,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt" db:"updated_at"`
}
