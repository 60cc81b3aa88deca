package books

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository works inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct{ db Querier }

func NewRepo(db Querier) *Repo { return &Repo{db: db} }

// GetForUpdate loads a book and locks its row until the surrounding
// transaction commits, so the availability check and the decrement cannot
// be separated by a concurrent writer.
func (r *Repo) GetForUpdate(ctx context.Context, id string) (*Book, error) {
	var b Book
	err := r.db.QueryRow(ctx, `
		SELECT id, title, author, price_cents, count, created_at, updated_at
		FROM books WHERE id = $1 FOR UPDATE`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Count, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DecrementCount takes qty copies off the shelf. The decrement is
// conditional on enough stock remaining; it reports false instead of
// driving count negative.
func (r *Repo) DecrementCount(ctx context.Context, id string, qty int) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE books SET count = count - $2, updated_at = now()
		WHERE id = $1 AND count >= $2`, id, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Restock returns qty copies after a cancellation or return.
func (r *Repo) Restock(ctx context.Context, id string, qty int) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE books SET count = count + $2, updated_at = now()
		WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// RecordPurchase appends the buyer to the book's purchase log. The log is
// a multiset: one row per line item, never deduplicated.
func (r *Repo) RecordPurchase(ctx context.Context, bookID, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO book_buyers (book_id, user_id, purchased_at)
		VALUES ($1, $2, $3)`, bookID, userID, at)
	return err
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Book, error) {
	qb := sq.Select("id", "title", "author", "price_cents", "count", "created_at", "updated_at").
		From("books").
		OrderBy("title ASC").
		PlaceholderFormat(sq.Dollar)
	if f.Author != "" {
		qb = qb.Where(sq.Eq{"author": f.Author})
	}
	if f.TitleQuery != "" {
		qb = qb.Where(sq.ILike{"title": "%" + f.TitleQuery + "%"})
	}
	if f.InStockOnly {
		qb = qb.Where(sq.Gt{"count": 0})
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Count, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
