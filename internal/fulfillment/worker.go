package fulfillment

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/bookmart/orders/internal/kafka"
	"github.com/bookmart/orders/internal/orders"
)

type statusCache interface {
	SetStatus(ctx context.Context, orderID, status string) error
}

// Worker drains due fulfillment jobs and advances orders through the
// simulated shipping pipeline. It replaces in-process timers: jobs live in
// the database, so restarts lose nothing and cancellations win races.
type Worker struct {
	store        Store
	producer     orders.EventPublisher
	cache        statusCache
	serviceName  string
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
	stopCh       chan struct{}
}

type workerOption func(*Worker)

func NewWorker(store Store, opts ...workerOption) *Worker {
	w := &Worker{
		store:        store,
		serviceName:  "order-fulfillment",
		pollInterval: time.Second,
		batchSize:    100,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func WithProducer(p orders.EventPublisher) workerOption {
	return func(w *Worker) { w.producer = p }
}

func WithStatusCache(c statusCache) workerOption {
	return func(w *Worker) { w.cache = c }
}

func WithServiceName(name string) workerOption {
	return func(w *Worker) { w.serviceName = name }
}

func WithPollInterval(d time.Duration) workerOption {
	return func(w *Worker) { w.pollInterval = d }
}

func WithBatchSize(n int) workerOption {
	return func(w *Worker) { w.batchSize = n }
}

func WithClock(now func() time.Time) workerOption {
	return func(w *Worker) { w.now = now }
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("fulfillment worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("fulfillment worker shutting down")
			return
		case <-w.stopCh:
			slog.Info("fulfillment worker stopped")
			return
		case <-ticker.C:
			w.processDue(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) processDue(ctx context.Context) {
	jobs, err := w.store.Due(ctx, w.batchSize)
	if err != nil {
		slog.Error("failed to fetch due fulfillment jobs", "error", err)
		return
	}

	for _, job := range jobs {
		applied, err := w.store.Apply(ctx, job, w.now())
		if err != nil {
			// The job stays pending and is retried next tick.
			slog.Error("fulfillment job failed", "job_id", job.ID, "order_id", job.OrderID, "error", err)
			continue
		}
		if !applied {
			slog.Info("fulfillment job skipped, order moved on",
				"job_id", job.ID, "order_id", job.OrderID, "next_status", job.NextStatus)
			continue
		}
		w.announce(ctx, job)
	}
}

// announce publishes the status event and refreshes the status cache.
// Both are best-effort: the transition is already committed.
func (w *Worker) announce(ctx context.Context, job Job) {
	slog.Info("order advanced", "order_id", job.OrderID, "status", job.NextStatus)

	if w.producer != nil {
		eventType, topic := statusEvent(job.NextStatus)
		ev := orders.NewEnvelope(eventType, w.serviceName, job.OrderID, orders.OrderStatusPayload{
			OrderID: job.OrderID,
			Status:  job.NextStatus,
			At:      w.now(),
		})
		w.producer.Publish(topic, orders.PartitionKey(job.OrderID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	if w.cache != nil {
		if err := w.cache.SetStatus(ctx, job.OrderID, string(job.NextStatus)); err != nil {
			slog.Warn("order status cache update failed", "order_id", job.OrderID, "error", err)
		}
	}
}

func statusEvent(s orders.Status) (eventType, topic string) {
	switch s {
	case orders.StatusShipped:
		return orders.EventOrderShipped, orders.TopicOrderShipped
	case orders.StatusDelivered:
		return orders.EventOrderDelivered, orders.TopicOrderDelivered
	default:
		return "", ""
	}
}
