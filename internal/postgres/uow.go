package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookmart/orders/internal/books"
	"github.com/bookmart/orders/internal/cart"
	"github.com/bookmart/orders/internal/fulfillment"
	"github.com/bookmart/orders/internal/orders"
)

// UnitOfWork implements orders.UnitOfWork over a pgx pool. Until Begin is
// called the repositories read through the pool; Begin rebinds them to one
// transaction so every write commits or rolls back together.
type UnitOfWork struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	books  *books.Repo
	carts  *cart.Repo
	orders *orders.Repo
	jobs   *fulfillment.JobRepo
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{
		pool:   pool,
		books:  books.NewRepo(pool),
		carts:  cart.NewRepo(pool),
		orders: orders.NewRepo(pool),
		jobs:   fulfillment.NewJobRepo(pool),
	}
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return err
	}
	u.tx = tx
	u.books = books.NewRepo(tx)
	u.carts = cart.NewRepo(tx)
	u.orders = orders.NewRepo(tx)
	u.jobs = fulfillment.NewJobRepo(tx)
	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Commit(ctx)
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Rollback(ctx)
}

func (u *UnitOfWork) Books() orders.BookStore   { return u.books }
func (u *UnitOfWork) Carts() orders.CartStore   { return u.carts }
func (u *UnitOfWork) Orders() orders.OrderStore { return u.orders }
func (u *UnitOfWork) Jobs() orders.JobStore     { return u.jobs }
