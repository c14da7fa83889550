package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/jackc/pgx/v5"
)

type InventoryRepo struct{ DB DBTX }

const productColumns = `id, COALESCE(category_id, 0), shop, name, price, stock, image_url, created_at, updated_at`

func scanProduct(row pgx.Row) (shop.Product, error) {
	var p shop.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Shop, &p.Name, &p.Price, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *InventoryRepo) GetProduct(ctx context.Context, id int64) (shop.Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Product{}, fmt.Errorf("product %d: %w", id, shop.ErrProductNotFound)
	}
	return p, err
}

// GetProducts loads all ids in one round trip. Missing ids are absent from the map.
func (r *InventoryRepo) GetProducts(ctx context.Context, ids []int64) (map[int64]shop.Product, error) {
	out := make(map[int64]shop.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *InventoryRepo) ListProducts(ctx context.Context) ([]shop.Product, error) {
	return r.listProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

func (r *InventoryRepo) ListProductsByCategory(ctx context.Context, categoryID int64) ([]shop.Product, error) {
	return r.listProducts(ctx, `SELECT `+productColumns+` FROM products WHERE category_id=$1 ORDER BY id`, categoryID)
}

func (r *InventoryRepo) listProducts(ctx context.Context, sql string, args ...any) ([]shop.Product, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []shop.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *InventoryRepo) ListCategories(ctx context.Context) ([]shop.Category, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []shop.Category{}
	for rows.Next() {
		var c shop.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DecrementStock is a conditional update: it never drives stock below zero,
// so a concurrent checkout that already took the stock makes it fail here.
func (r *InventoryRepo) DecrementStock(ctx context.Context, productID int64, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product %d qty %d: %w", productID, qty, shop.ErrInsufficientStock)
	}
	return nil
}

func (r *InventoryRepo) GetCartLines(ctx context.Context, userID string) ([]shop.CartLine, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT user_id, product_id, shop, quantity FROM cart_lines
		WHERE user_id=$1 ORDER BY shop, product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []shop.CartLine{}
	for rows.Next() {
		var l shop.CartLine
		if err := rows.Scan(&l.UserID, &l.ProductID, &l.Shop, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertCartLine adds l.Quantity to an existing (user, product, shop) line or creates it.
func (r *InventoryRepo) UpsertCartLine(ctx context.Context, l shop.CartLine) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_lines (user_id, product_id, shop, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id, shop)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
		l.UserID, l.ProductID, l.Shop, l.Quantity)
	return err
}

// UpdateCartLine sets the quantity of an existing line.
func (r *InventoryRepo) UpdateCartLine(ctx context.Context, l shop.CartLine) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE cart_lines SET quantity=$4
		WHERE user_id=$1 AND product_id=$2 AND shop=$3`,
		l.UserID, l.ProductID, l.Shop, l.Quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return shop.ErrCartLineNotFound
	}
	return nil
}

func (r *InventoryRepo) DeleteCartLine(ctx context.Context, userID string, productID int64, shopName string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_lines WHERE user_id=$1 AND product_id=$2 AND shop=$3`,
		userID, productID, shopName)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return shop.ErrCartLineNotFound
	}
	return nil
}

// DeleteCartLines clears the user's cart and reports how many lines went.
func (r *InventoryRepo) DeleteCartLines(ctx context.Context, userID string) (int64, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_lines WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
