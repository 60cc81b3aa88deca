package orders

import (
	"context"
	"time"

	"github.com/bookmart/orders/internal/books"
)

// BookStore is the inventory side of the placement transaction.
type BookStore interface {
	GetForUpdate(ctx context.Context, id string) (*books.Book, error)
	DecrementCount(ctx context.Context, id string, qty int) (bool, error)
	Restock(ctx context.Context, id string, qty int) error
	RecordPurchase(ctx context.Context, bookID, userID string, at time.Time) error
}

// CartStore is the only cart operation the order core needs.
type CartStore interface {
	RemoveBooks(ctx context.Context, userID string, bookIDs []string) error
}

type OrderStore interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	SetStatus(ctx context.Context, id string, to Status, at time.Time) error
}

// JobStore schedules durable delayed status transitions.
type JobStore interface {
	Schedule(ctx context.Context, orderID string, next Status, runAt time.Time) error
	CancelPending(ctx context.Context, orderID string) error
}

// UnitOfWork binds the collaborating repositories to one transaction.
// Before Begin the repositories read through the plain pool; after Begin
// every access goes through the transaction until Commit or Rollback.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Books() BookStore
	Carts() CartStore
	Orders() OrderStore
	Jobs() JobStore
}
