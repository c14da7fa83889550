package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/ariefcatur/go-shop-checkout/internal/store"
	"github.com/shopspring/decimal"
)

type memState struct {
	products map[int64]shop.Product
	cart     map[string][]shop.CartLine
	orders   []shop.Order
	lines    []shop.OrderLine
	outbox   [][]byte
	nextID   int64
}

func (s memState) clone() memState {
	c := memState{
		products: make(map[int64]shop.Product, len(s.products)),
		cart:     make(map[string][]shop.CartLine, len(s.cart)),
		orders:   append([]shop.Order(nil), s.orders...),
		lines:    append([]shop.OrderLine(nil), s.lines...),
		outbox:   append([][]byte(nil), s.outbox...),
		nextID:   s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.cart {
		c.cart[k] = append([]shop.CartLine(nil), v...)
	}
	return c
}

// memStore keeps committed state and applies a transaction only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state memState

	failOn         string
	getProductsErr error
	beforeTx       func(s *memState)
	productReads   int
}

func newMemStore(products ...shop.Product) *memStore {
	st := memState{products: map[int64]shop.Product{}, cart: map[string][]shop.CartLine{}}
	for _, p := range products {
		st.products[p.ID] = p
	}
	return &memStore{state: st}
}

func (m *memStore) addToCart(l shop.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.cart[l.UserID] = append(m.state.cart[l.UserID], l)
}

func (m *memStore) GetProducts(_ context.Context, ids []int64) (map[int64]shop.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productReads++
	if m.getProductsErr != nil {
		return nil, m.getProductsErr
	}
	out := map[int64]shop.Product{}
	for _, id := range ids {
		if p, ok := m.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeTx != nil {
		m.beforeTx(&m.state)
	}
	work := m.state.clone()
	if err := fn(ctx, &memTx{st: &work, failOn: m.failOn}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memTx struct {
	st     *memState
	failOn string
}

var errInjected = errors.New("injected failure")

func (t *memTx) check(op string) error {
	if t.failOn == op {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, in store.NewOrder) (shop.Order, error) {
	if err := t.check("CreateOrder"); err != nil {
		return shop.Order{}, err
	}
	t.st.nextID++
	now := time.Now()
	o := shop.Order{
		ID: t.st.nextID, UserID: in.UserID, Total: in.Total, Status: in.Status, Action: in.Action,
		PaymentIntentID: in.PaymentIntentID, CreatedAt: now, UpdatedAt: now,
	}
	t.st.orders = append(t.st.orders, o)
	return o, nil
}

func (t *memTx) AddOrderLine(_ context.Context, orderID, productID int64, qty int, price decimal.Decimal) (shop.OrderLine, error) {
	if err := t.check("AddOrderLine"); err != nil {
		return shop.OrderLine{}, err
	}
	l := shop.OrderLine{ID: int64(len(t.st.lines) + 1), OrderID: orderID, ProductID: productID, Quantity: qty, Price: price}
	t.st.lines = append(t.st.lines, l)
	return l, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	if err := t.check("DecrementStock"); err != nil {
		return err
	}
	p, ok := t.st.products[productID]
	if !ok || p.Stock < qty {
		return fmt.Errorf("product %d: %w", productID, shop.ErrInsufficientStock)
	}
	p.Stock -= qty
	t.st.products[productID] = p
	return nil
}

func (t *memTx) DeleteCartLines(_ context.Context, userID string) (int64, error) {
	if err := t.check("DeleteCartLines"); err != nil {
		return 0, err
	}
	n := int64(len(t.st.cart[userID]))
	delete(t.st.cart, userID)
	return n, nil
}

func (t *memTx) EnqueueEvent(_ context.Context, _, _, _ string, payload []byte) error {
	if err := t.check("EnqueueEvent"); err != nil {
		return err
	}
	t.st.outbox = append(t.st.outbox, payload)
	return nil
}
