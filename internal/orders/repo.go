package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct{ db Querier }

func NewRepo(db Querier) *Repo { return &Repo{db: db} }

const orderColumns = `id, user_id, status, total_cents, placed_at, return_till,
	shipped_at, delivered_at, cancelled_at, returned_at`

func (r *Repo) Insert(ctx context.Context, o *Order) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total_cents, placed_at, return_till)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.UserID, o.Status, o.TotalCents, o.PlacedAt, o.ReturnTill)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		_, err = r.db.Exec(ctx, `
			INSERT INTO order_items (order_id, book_id, title, price_cents, qty)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, it.BookID, it.Title, it.PriceCents, it.Qty)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	return r.get(ctx, id, false)
}

func (r *Repo) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return r.get(ctx, id, true)
}

func (r *Repo) get(ctx context.Context, id string, forUpdate bool) (*Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var o Order
	err := r.db.QueryRow(ctx, q, id).Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.PlacedAt, &o.ReturnTill,
		&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.ReturnedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := r.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY placed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []string
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.PlacedAt, &o.ReturnTill,
			&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.ReturnedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return []Order{}, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *Repo) itemsFor(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_id, book_id, title, price_cents, qty
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var orderID string
		var it Item
		if err := rows.Scan(&orderID, &it.BookID, &it.Title, &it.PriceCents, &it.Qty); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

// statusColumn maps a lifecycle status to the timestamp column it stamps.
var statusColumn = map[Status]string{
	StatusShipped:   "shipped_at",
	StatusDelivered: "delivered_at",
	StatusCancelled: "cancelled_at",
	StatusReturned:  "returned_at",
}

// SetStatus overwrites the order status and stamps the matching timestamp.
// Callers are expected to have checked the transition under a row lock.
func (r *Repo) SetStatus(ctx context.Context, id string, to Status, at time.Time) error {
	col, ok := statusColumn[to]
	if !ok {
		return fmt.Errorf("no timestamp column for status %s", to)
	}
	ct, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, `+col+` = $3 WHERE id = $1`,
		id, to, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

// TransitionStatus moves the order to the given status only if it is still
// in from. It reports whether the transition was applied, so a stale
// fulfillment job can never resurrect a cancelled order.
func (r *Repo) TransitionStatus(ctx context.Context, id string, from, to Status, at time.Time) (bool, error) {
	col, ok := statusColumn[to]
	if !ok {
		return false, fmt.Errorf("no timestamp column for status %s", to)
	}
	ct, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $3, `+col+` = $4 WHERE id = $1 AND status = $2`,
		id, from, to, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
