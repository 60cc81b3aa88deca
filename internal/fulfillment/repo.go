package fulfillment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bookmart/orders/internal/orders"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepo persists fulfillment jobs. It implements orders.JobStore for the
// placement transaction and feeds the polling worker.
type JobRepo struct{ db Querier }

func NewJobRepo(db Querier) *JobRepo { return &JobRepo{db: db} }

func (r *JobRepo) Schedule(ctx context.Context, orderID string, next orders.Status, runAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO fulfillment_jobs (order_id, next_status, run_at, status)
		VALUES ($1, $2, $3, $4)`, orderID, next, runAt, JobPending)
	return err
}

// CancelPending invalidates every not-yet-run job for the order, so a
// cancelled order cannot be advanced by a job that was already scheduled.
func (r *JobRepo) CancelPending(ctx context.Context, orderID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE fulfillment_jobs SET status = $2, updated_at = now()
		WHERE order_id = $1 AND status = $3`, orderID, JobCancelled, JobPending)
	return err
}

// Due returns pending jobs whose run time has passed, locked so that
// concurrent workers never pick up the same job.
func (r *JobRepo) Due(ctx context.Context, limit int) ([]Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, next_status, run_at, status
		FROM fulfillment_jobs
		WHERE status = $1 AND run_at <= now()
		ORDER BY run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, JobPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.OrderID, &j.NextStatus, &j.RunAt, &j.Status); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *JobRepo) MarkDone(ctx context.Context, id int64) error {
	return r.mark(ctx, id, JobDone)
}

func (r *JobRepo) MarkSkipped(ctx context.Context, id int64) error {
	return r.mark(ctx, id, JobSkipped)
}

func (r *JobRepo) mark(ctx context.Context, id int64, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE fulfillment_jobs SET status = $2, updated_at = now()
		WHERE id = $1`, id, status)
	return err
}
