package models

import "time"

// Product is the model for the 'products' table.
type Product struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Slug         string    `json:"slug" db:"slug"`
	Description  string    `json:"description" db:"description"`
	Category     string    `json:"category" db:"category"`
	Price        float64   `json:"price" db:"price"`
	Image        string    `json:"image" db:"image"`
	Weight       float64   `json:"weight" db:"weight"` // kg, drives the shipping surcharge
	CountInStock int       `json:"countInStock" db:"count_in_stock"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
