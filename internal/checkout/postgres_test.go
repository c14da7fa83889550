package checkout_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/payment"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres/pgtest"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/ariefcatur/go-shop-checkout/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// okGateway approves every intent and counts refunds.
type okGateway struct {
	n       atomic.Int64
	refunds atomic.Int64
}

func (g *okGateway) CreatePaymentIntent(_ context.Context, _ payment.IntentRequest) (payment.Intent, error) {
	id := fmt.Sprintf("pi_%d", g.n.Add(1))
	return payment.Intent{ID: id, Status: payment.StatusSucceeded}, nil
}

func (g *okGateway) Refund(_ context.Context, _ string) error {
	g.refunds.Add(1)
	return nil
}

func request(userID string, productID int64, qty int) checkout.Request {
	return checkout.Request{
		UserID:          userID,
		CartItems:       []checkout.ShopGroup{{Shop: "shop-a", Items: []checkout.Item{{ProductID: productID, Quantity: qty}}}},
		PaymentMethodID: "pm_card_visa",
		Action:          "purchase",
	}
}

func TestPlaceOrderPostgres(t *testing.T) {
	pool := pgtest.New(t)
	st := store.New(pool)
	ctx := context.Background()
	gw := &okGateway{}
	svc := checkout.NewService(checkout.PostgresStore{S: st}, gw, checkout.Config{Currency: "mur", MinorUnitFactor: 100, ServiceName: "test"})

	pid := pgtest.SeedProduct(t, pool, "shop-a", "kopi", "100.00", 5)
	require.NoError(t, st.Inventory.UpsertCartLine(ctx, shop.CartLine{UserID: "u1", ProductID: pid, Shop: "shop-a", Quantity: 3}))

	rc, err := svc.PlaceOrder(ctx, request("u1", pid, 3))
	require.NoError(t, err)
	assert.EqualValues(t, 30000, rc.Amount)

	o, err := st.Ledger.GetOrder(ctx, "u1", rc.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300).Equal(o.Total))
	assert.Equal(t, shop.StatusPending, o.Status)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 3, o.Lines[0].Quantity)

	assert.Equal(t, 2, pgtest.Stock(t, pool, pid))
	lines, err := st.Inventory.GetCartLines(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, 1, pgtest.Count(t, pool, "outbox"))

	// Out of stock leaves every table untouched.
	_, err = svc.PlaceOrder(ctx, request("u1", pid, 3))
	assert.Equal(t, checkout.KindStockUnavailable, checkout.KindOf(err))
	assert.Equal(t, 2, pgtest.Stock(t, pool, pid))
	assert.Equal(t, 1, pgtest.Count(t, pool, "orders"))
}

func TestPlaceOrderPostgresNoOversell(t *testing.T) {
	pool := pgtest.New(t)
	gw := &okGateway{}
	svc := checkout.NewService(checkout.PostgresStore{S: store.New(pool)}, gw, checkout.Config{Currency: "mur"})

	const stock, buyers = 5, 12
	pid := pgtest.SeedProduct(t, pool, "shop-a", "teh", "10.00", stock)

	var wg sync.WaitGroup
	var placed, short atomic.Int64
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), request(fmt.Sprintf("buyer-%d", i), pid, 1))
			switch {
			case err == nil:
				placed.Add(1)
			case checkout.KindOf(err) == checkout.KindStockUnavailable:
				short.Add(1)
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, stock, placed.Load())
	assert.EqualValues(t, buyers-stock, short.Load())
	assert.Equal(t, 0, pgtest.Stock(t, pool, pid))
	assert.Equal(t, stock, pgtest.Count(t, pool, "orders"))
	// Losers that were already charged got their money back.
	assert.Equal(t, gw.n.Load()-int64(stock), gw.refunds.Load())
}
