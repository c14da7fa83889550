// Package cart manages cart lines and the shop-grouped cart view.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart       = errors.New("no items in cart")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

type Store interface {
	GetProduct(ctx context.Context, id int64) (shop.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]shop.Product, error)
	GetCartLines(ctx context.Context, userID string) ([]shop.CartLine, error)
	UpsertCartLine(ctx context.Context, l shop.CartLine) error
	UpdateCartLine(ctx context.Context, l shop.CartLine) error
	DeleteCartLine(ctx context.Context, userID string, productID int64, shopName string) error
}

type Service struct {
	store       Store
	deliveryFee decimal.Decimal
}

func NewService(s Store, deliveryFee decimal.Decimal) *Service {
	return &Service{store: s, deliveryFee: deliveryFee}
}

type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Stock     int             `json:"stock"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Summary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discounts   decimal.Decimal `json:"discounts"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

type ShopCart struct {
	Shop    string  `json:"shop"`
	Items   []Item  `json:"items"`
	Summary Summary `json:"summary"`
}

type Total struct {
	Items       decimal.Decimal `json:"items_total"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Shops       int             `json:"shops"`
	Total       decimal.Decimal `json:"totalAmount"`
}

// Add puts qty more of a product into the cart. The resulting quantity may
// not exceed the product's current stock.
func (s *Service) Add(ctx context.Context, l shop.CartLine) error {
	if l.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	p, err := s.store.GetProduct(ctx, l.ProductID)
	if err != nil {
		return err
	}
	if l.Shop == "" {
		l.Shop = p.Shop
	}

	lines, err := s.store.GetCartLines(ctx, l.UserID)
	if err != nil {
		return err
	}
	want := l.Quantity
	for _, cur := range lines {
		if cur.ProductID == l.ProductID && cur.Shop == l.Shop {
			want += cur.Quantity
		}
	}
	if want > p.Stock {
		return fmt.Errorf("product %d: want %d, have %d: %w", p.ID, want, p.Stock, shop.ErrInsufficientStock)
	}
	return s.store.UpsertCartLine(ctx, l)
}

// Update sets the quantity of a line already in the cart.
func (s *Service) Update(ctx context.Context, l shop.CartLine) error {
	if l.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	p, err := s.store.GetProduct(ctx, l.ProductID)
	if err != nil {
		return err
	}
	if l.Shop == "" {
		l.Shop = p.Shop
	}
	if l.Quantity > p.Stock {
		return fmt.Errorf("product %d: want %d, have %d: %w", p.ID, l.Quantity, p.Stock, shop.ErrInsufficientStock)
	}
	return s.store.UpdateCartLine(ctx, l)
}

func (s *Service) Remove(ctx context.Context, userID string, productID int64, shopName string) error {
	return s.store.DeleteCartLine(ctx, userID, productID, shopName)
}

// View groups the user's cart by shop, in the order the store returns lines.
// Each shop carries its own delivery fee.
func (s *Service) View(ctx context.Context, userID string) ([]ShopCart, error) {
	lines, products, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := []ShopCart{}
	index := map[string]int{}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue // product removed from the catalog
		}
		i, seen := index[l.Shop]
		if !seen {
			i = len(out)
			index[l.Shop] = i
			out = append(out, ShopCart{Shop: l.Shop, Items: []Item{}})
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		out[i].Items = append(out[i].Items, Item{
			ProductID: p.ID, Name: p.Name, ImageURL: p.ImageURL, Price: p.Price,
			Quantity: l.Quantity, Stock: p.Stock, Subtotal: sub,
		})
		out[i].Summary.Subtotal = out[i].Summary.Subtotal.Add(sub)
	}
	for i := range out {
		sm := &out[i].Summary
		sm.Discounts = decimal.Zero
		sm.DeliveryFee = s.deliveryFee
		sm.Total = sm.Subtotal.Sub(sm.Discounts).Add(sm.DeliveryFee)
	}
	return out, nil
}

// Total is the items total plus one delivery fee per distinct shop.
func (s *Service) Total(ctx context.Context, userID string) (Total, error) {
	lines, products, err := s.load(ctx, userID)
	if err != nil {
		return Total{}, err
	}
	if len(lines) == 0 {
		return Total{}, ErrEmptyCart
	}

	items := decimal.Zero
	shops := map[string]bool{}
	for _, l := range lines {
		shops[l.Shop] = true
		if p, ok := products[l.ProductID]; ok {
			items = items.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	fee := s.deliveryFee.Mul(decimal.NewFromInt(int64(len(shops))))
	return Total{Items: items, DeliveryFee: fee, Shops: len(shops), Total: items.Add(fee)}, nil
}

func (s *Service) load(ctx context.Context, userID string) ([]shop.CartLine, map[int64]shop.Product, error) {
	lines, err := s.store.GetCartLines(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return lines, products, nil
}
