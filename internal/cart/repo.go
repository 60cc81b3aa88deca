package cart

import (
	"context"

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

func (r *Repo) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, book_id, qty, added_at
		FROM cart_items WHERE user_id = $1 ORDER BY added_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.UserID, &it.BookID, &it.Qty, &it.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) Add(ctx context.Context, userID, bookID string, qty int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cart_items (user_id, book_id, qty)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book_id) DO UPDATE SET qty = cart_items.qty + $3`,
		userID, bookID, qty)
	return err
}

// RemoveBooks drops the user's cart entries for exactly the given book ids.
// Entries for other books are untouched.
func (r *Repo) RemoveBooks(ctx context.Context, userID string, bookIDs []string) error {
	if len(bookIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND book_id = ANY($2::uuid[])`, userID, bookIDs)
	return err
}
