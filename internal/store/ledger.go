package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type LedgerRepo struct{ DB DBTX }

const orderColumns = `id, user_id, total, status, action, payment_intent_id, created_at, updated_at`

func scanOrder(row pgx.Row) (shop.Order, error) {
	var o shop.Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.Action, &o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	o.Status = shop.Status(status)
	return o, err
}

type NewOrder struct {
	UserID          string
	Total           decimal.Decimal
	Status          shop.Status
	Action          string
	PaymentIntentID string
}

func (r *LedgerRepo) CreateOrder(ctx context.Context, in NewOrder) (shop.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		INSERT INTO orders (user_id, total, status, action, payment_intent_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+orderColumns,
		in.UserID, in.Total, string(in.Status), in.Action, in.PaymentIntentID))
	if err != nil {
		return shop.Order{}, fmt.Errorf("insert order: %w", err)
	}
	o.Lines = []shop.OrderLine{}
	return o, nil
}

func (r *LedgerRepo) AddOrderLine(ctx context.Context, orderID, productID int64, qty int, price decimal.Decimal) (shop.OrderLine, error) {
	l := shop.OrderLine{OrderID: orderID, ProductID: productID, Quantity: qty, Price: price}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO order_lines (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		orderID, productID, qty, price).Scan(&l.ID)
	if err != nil {
		return shop.OrderLine{}, fmt.Errorf("insert order line: %w", err)
	}
	return l, nil
}

// GetOrdersForUser returns the user's orders, newest first, each with its lines.
func (r *LedgerRepo) GetOrdersForUser(ctx context.Context, userID string) ([]shop.Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []shop.Order{}
	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		o.Lines = []shop.OrderLine{}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if ls, ok := lines[out[i].ID]; ok {
			out[i].Lines = ls
		}
	}
	return out, nil
}

// ListOrders returns the newest orders across all users, each with its lines.
func (r *LedgerRepo) ListOrders(ctx context.Context, limit int) ([]shop.Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []shop.Order{}
	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		o.Lines = []shop.OrderLine{}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if ls, ok := lines[out[i].ID]; ok {
			out[i].Lines = ls
		}
	}
	return out, nil
}

// ListOrderLines returns the newest order lines across all orders.
func (r *LedgerRepo) ListOrderLines(ctx context.Context, limit int) ([]shop.OrderLine, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price FROM order_lines
		ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []shop.OrderLine{}
	for rows.Next() {
		var l shop.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LedgerRepo) GetOrder(ctx context.Context, userID string, orderID int64) (shop.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 AND id=$2`, userID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Order{}, fmt.Errorf("order %d: %w", orderID, shop.ErrOrderNotFound)
	}
	if err != nil {
		return shop.Order{}, err
	}
	lines, err := r.linesFor(ctx, []int64{o.ID})
	if err != nil {
		return shop.Order{}, err
	}
	o.Lines = lines[o.ID]
	if o.Lines == nil {
		o.Lines = []shop.OrderLine{}
	}
	return o, nil
}

// UpdateStatus moves an order along the status graph; the row is locked so
// two concurrent updates cannot both pass the transition check.
func (r *LedgerRepo) UpdateStatus(ctx context.Context, orderID int64, to shop.Status) (shop.Order, error) {
	var current string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Order{}, fmt.Errorf("order %d: %w", orderID, shop.ErrOrderNotFound)
	}
	if err != nil {
		return shop.Order{}, err
	}
	if !shop.CanTransition(shop.Status(current), to) {
		return shop.Order{}, fmt.Errorf("%s -> %s: %w", current, to, shop.ErrInvalidTransition)
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
		RETURNING `+orderColumns, orderID, string(to)))
	if err != nil {
		return shop.Order{}, err
	}
	return o, nil
}

func (r *LedgerRepo) linesFor(ctx context.Context, orderIDs []int64) (map[int64][]shop.OrderLine, error) {
	out := map[int64][]shop.OrderLine{}
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price FROM order_lines
		WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l shop.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}
