package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type ShopGroup struct {
	Shop  string `json:"shop"`
	Items []Item `json:"items"`
}

type Request struct {
	UserID          string      `json:"userId"`
	CartItems       []ShopGroup `json:"cartItems"`
	PaymentMethodID string      `json:"paymentMethodId"`
	Action          string      `json:"action"`
	TraceID         string      `json:"-"`
}

type Receipt struct {
	OrderID         int64           `json:"orderId"`
	Total           decimal.Decimal `json:"total"`
	Amount          int64           `json:"amount"`
	PaymentIntentID string          `json:"paymentIntentId"`
}

var errEmptyField = errors.New("required field is empty")

func (r Request) validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("userId: %w", errEmptyField)
	case len(r.CartItems) == 0:
		return fmt.Errorf("cartItems: %w", errEmptyField)
	case strings.TrimSpace(r.PaymentMethodID) == "":
		return fmt.Errorf("paymentMethodId: %w", errEmptyField)
	case strings.TrimSpace(r.Action) == "":
		return fmt.Errorf("action: %w", errEmptyField)
	}
	for gi, g := range r.CartItems {
		if len(g.Items) == 0 {
			return fmt.Errorf("cartItems[%d].items: %w", gi, errEmptyField)
		}
		for ii, it := range g.Items {
			if it.ProductID <= 0 {
				return fmt.Errorf("cartItems[%d].items[%d]: invalid product_id %d", gi, ii, it.ProductID)
			}
			if it.Quantity <= 0 {
				return fmt.Errorf("cartItems[%d].items[%d]: invalid quantity %d", gi, ii, it.Quantity)
			}
		}
	}
	return nil
}

// productIDs returns every referenced product once, in first-seen order.
func (r Request) productIDs() []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, g := range r.CartItems {
		for _, it := range g.Items {
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				ids = append(ids, it.ProductID)
			}
		}
	}
	return ids
}

// MinorUnits converts a decimal amount to the gateway's smallest unit.
func MinorUnits(total decimal.Decimal, factor int64) int64 {
	return total.Mul(decimal.NewFromInt(factor)).Round(0).IntPart()
}
