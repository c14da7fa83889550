package shop

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID         int64           `json:"id"`
	CategoryID int64           `json:"category_id"`
	Shop       string          `json:"shop"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	ImageURL   string          `json:"image_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CartLine is keyed by (UserID, ProductID, Shop).
type CartLine struct {
	UserID    string `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Shop      string `json:"shop"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID              int64           `json:"order_id"`
	UserID          string          `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	Status          Status          `json:"status"` // lihat status.go
	Action          string          `json:"action"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []OrderLine     `json:"lines"`
}

// OrderLine.Price is the product price at checkout time, never re-derived.
type OrderLine struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns Quantity × Price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
