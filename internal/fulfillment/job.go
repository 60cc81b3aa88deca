package fulfillment

import (
	"time"

	"github.com/bookmart/orders/internal/orders"
)

const (
	JobPending   = "pending"
	JobDone      = "done"
	JobSkipped   = "skipped"
	JobCancelled = "cancelled"
)

// Job is one durable delayed status transition. Jobs are written in the
// same transaction that creates the order, so a process restart never
// loses a pending transition.
type Job struct {
	ID         int64
	OrderID    string
	NextStatus orders.Status
	RunAt      time.Time
	Status     string
}

// sourceStatus is the status a job's transition is conditioned on. A job
// whose order has moved elsewhere (cancelled, already advanced) is
// skipped, never applied.
var sourceStatus = map[orders.Status]orders.Status{
	orders.StatusShipped:   orders.StatusPlaced,
	orders.StatusDelivered: orders.StatusShipped,
}
