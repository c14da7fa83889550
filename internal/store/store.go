// Package store holds the pgx-backed Inventory Store, Order Ledger and outbox.
package store

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos groups repositories bound to one DBTX.
type Repos struct {
	Inventory *InventoryRepo
	Ledger    *LedgerRepo
	Outbox    *OutboxRepo
}

func NewRepos(db DBTX) *Repos {
	return &Repos{
		Inventory: &InventoryRepo{DB: db},
		Ledger:    &LedgerRepo{DB: db},
		Outbox:    &OutboxRepo{DB: db},
	}
}

type Store struct {
	*Repos
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Repos: NewRepos(pool), pool: pool}
}

// InTx runs fn inside one transaction. fn's error, a panic, or a failed
// commit roll everything back; the connection goes back to the pool on
// every path.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, NewRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SetOrderStatus runs LedgerRepo.UpdateStatus in its own transaction so the
// row lock covers the transition check.
func (s *Store) SetOrderStatus(ctx context.Context, orderID int64, to shop.Status) (shop.Order, error) {
	var o shop.Order
	err := s.InTx(ctx, func(ctx context.Context, r *Repos) error {
		var err error
		o, err = r.Ledger.UpdateStatus(ctx, orderID, to)
		return err
	})
	return o, err
}
