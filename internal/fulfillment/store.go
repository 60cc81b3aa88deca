package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookmart/orders/internal/orders"
)

// Store is what the worker needs from persistence: the due jobs and an
// atomic apply for each of them.
type Store interface {
	Due(ctx context.Context, limit int) ([]Job, error)
	// Apply runs one job inside a transaction and reports whether the
	// status transition actually happened.
	Apply(ctx context.Context, job Job, now time.Time) (bool, error)
}

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

func (s *PGStore) Due(ctx context.Context, limit int) ([]Job, error) {
	return NewJobRepo(s.pool).Due(ctx, limit)
}

// Apply transitions the order conditionally and settles the job in the
// same transaction. A job whose precondition no longer holds is marked
// skipped; on error everything rolls back and the job stays pending for
// the next tick.
func (s *PGStore) Apply(ctx context.Context, job Job, now time.Time) (bool, error) {
	from, ok := sourceStatus[job.NextStatus]
	if !ok {
		return false, fmt.Errorf("job %d has no transition to %s", job.ID, job.NextStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	applied, err := orders.NewRepo(tx).TransitionStatus(ctx, job.OrderID, from, job.NextStatus, now)
	if err != nil {
		return false, err
	}

	jobs := NewJobRepo(tx)
	if applied {
		err = jobs.MarkDone(ctx, job.ID)
	} else {
		err = jobs.MarkSkipped(ctx, job.ID)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return applied, nil
}
