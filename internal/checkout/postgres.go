package checkout

import (
	"context"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/ariefcatur/go-shop-checkout/internal/store"
	"github.com/shopspring/decimal"
)

// PostgresStore adapts store.Store to the checkout Store.
type PostgresStore struct{ S *store.Store }

func (p PostgresStore) GetProducts(ctx context.Context, ids []int64) (map[int64]shop.Product, error) {
	return p.S.Inventory.GetProducts(ctx, ids)
}

func (p PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return p.S.InTx(ctx, func(ctx context.Context, r *store.Repos) error {
		return fn(ctx, pgTx{r})
	})
}

type pgTx struct{ r *store.Repos }

func (t pgTx) CreateOrder(ctx context.Context, in store.NewOrder) (shop.Order, error) {
	return t.r.Ledger.CreateOrder(ctx, in)
}

func (t pgTx) AddOrderLine(ctx context.Context, orderID, productID int64, qty int, price decimal.Decimal) (shop.OrderLine, error) {
	return t.r.Ledger.AddOrderLine(ctx, orderID, productID, qty, price)
}

func (t pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	return t.r.Inventory.DecrementStock(ctx, productID, qty)
}

func (t pgTx) DeleteCartLines(ctx context.Context, userID string) (int64, error) {
	return t.r.Inventory.DeleteCartLines(ctx, userID)
}

func (t pgTx) EnqueueEvent(ctx context.Context, eventID, topic, key string, payload []byte) error {
	return t.r.Outbox.Insert(ctx, eventID, topic, key, payload)
}
