package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/bookmart/orders/internal/books"
	kafkax "github.com/bookmart/orders/internal/kafka"
)

// EventPublisher is the post-commit event bus. Publishing is
// fire-and-forget; a lost event never fails an already committed order.
type EventPublisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type statusCache interface {
	SetStatus(ctx context.Context, orderID, status string) error
}

// Service owns the order lifecycle: placement, cancellation, return and
// reads. All multi-record writes go through one unit of work.
type Service struct {
	newUOW       func() UnitOfWork
	producer     EventPublisher
	cache        statusCache
	serviceName  string
	shipAfter    time.Duration
	deliverAfter time.Duration
	now          func() time.Time
}

type option func(*Service)

// MustNewService creates a new order Service.
func MustNewService(opts ...option) *Service {
	s := &Service{
		serviceName:  "order-api",
		shipAfter:    10 * time.Second,
		deliverAfter: 20 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newUOW == nil {
		panic("orders: unit of work factory is required")
	}
	return s
}

func WithUnitOfWork(factory func() UnitOfWork) option {
	return func(s *Service) { s.newUOW = factory }
}

func WithProducer(p EventPublisher) option {
	return func(s *Service) { s.producer = p }
}

func WithStatusCache(c statusCache) option {
	return func(s *Service) { s.cache = c }
}

func WithServiceName(name string) option {
	return func(s *Service) { s.serviceName = name }
}

// WithFulfillmentDelays sets how long after placement the order moves to
// shipped and to delivered.
func WithFulfillmentDelays(shipAfter, deliverAfter time.Duration) option {
	return func(s *Service) {
		s.shipAfter = shipAfter
		s.deliverAfter = deliverAfter
	}
}

func WithClock(now func() time.Time) option {
	return func(s *Service) { s.now = now }
}

// PlaceOrder converts a purchase intent into stock decrements plus an
// order record, atomically. The buy-now item is processed first, then the
// cart-derived list in the order given; the first failure aborts the whole
// transaction and is returned as-is.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	entries, err := mergeEntries(in)
	if err != nil {
		return nil, err
	}

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, fmt.Errorf("begin placement: %w", err)
	}
	defer func() { _ = work.Rollback(ctx) }()

	now := s.now()

	var items []Item
	var total int64
	for _, e := range entries {
		b, err := work.Books().GetForUpdate(ctx, e.BookID)
		if errors.Is(err, books.ErrNotFound) {
			return nil, &NotFoundError{BookID: e.BookID}
		}
		if err != nil {
			return nil, fmt.Errorf("load book %s: %w", e.BookID, err)
		}
		if e.Qty > b.Count {
			return nil, &InsufficientStockError{
				BookID:    b.ID,
				Title:     b.Title,
				Requested: e.Qty,
				Available: b.Count,
			}
		}
		ok, err := work.Books().DecrementCount(ctx, b.ID, e.Qty)
		if err != nil {
			return nil, fmt.Errorf("decrement stock of %s: %w", b.ID, err)
		}
		if !ok {
			return nil, &InsufficientStockError{
				BookID:    b.ID,
				Title:     b.Title,
				Requested: e.Qty,
				Available: b.Count,
			}
		}
		if err := work.Books().RecordPurchase(ctx, b.ID, in.UserID, now); err != nil {
			return nil, fmt.Errorf("record purchase of %s: %w", b.ID, err)
		}
		items = append(items, Item{
			BookID:     b.ID,
			Title:      b.Title,
			PriceCents: b.PriceCents,
			Qty:        e.Qty,
		})
		total += b.PriceCents * int64(e.Qty)
	}

	// Only the cart-derived entries leave the cart; the buy-now item may
	// never have been in it.
	if len(in.Items) > 0 {
		ids := make([]string, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.BookID)
		}
		if err := work.Carts().RemoveBooks(ctx, in.UserID, ids); err != nil {
			return nil, fmt.Errorf("remove ordered items from cart: %w", err)
		}
	}

	o := &Order{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		Status:     StatusPlaced,
		TotalCents: total,
		Items:      items,
		PlacedAt:   now,
		ReturnTill: now.Add(ReturnWindow),
	}
	if err := work.Orders().Insert(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := work.Jobs().Schedule(ctx, o.ID, StatusShipped, now.Add(s.shipAfter)); err != nil {
		return nil, fmt.Errorf("schedule shipment: %w", err)
	}
	if err := work.Jobs().Schedule(ctx, o.ID, StatusDelivered, now.Add(s.deliverAfter)); err != nil {
		return nil, fmt.Errorf("schedule delivery: %w", err)
	}

	if err := work.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit placement: %w", err)
	}

	s.publish(TopicOrderPlaced, EventOrderPlaced, o.ID, OrderPlacedPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Items:      o.Items,
		TotalCents: o.TotalCents,
		ReturnTill: o.ReturnTill,
	})
	s.cacheStatus(ctx, o.ID, o.Status)

	return o, nil
}

func mergeEntries(in PlaceOrderInput) ([]ItemInput, error) {
	var entries []ItemInput
	if in.BookID != "" {
		entries = append(entries, ItemInput{BookID: in.BookID, Qty: in.Quantity})
	}
	entries = append(entries, in.Items...)
	if len(entries) == 0 {
		return nil, &ValidationError{Reason: "at least one item is required"}
	}
	for _, e := range entries {
		if e.BookID == "" {
			return nil, &ValidationError{Reason: "item is missing a book id"}
		}
		if e.Qty < 1 {
			return nil, &ValidationError{Reason: fmt.Sprintf("invalid quantity for book %s", e.BookID)}
		}
	}
	return entries, nil
}

// Cancel aborts a not-yet-shipped order: flips the status, restores every
// line item's stock and invalidates the pending fulfillment jobs, all in
// one transaction.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (*Order, error) {
	return s.transition(ctx, orderID, userID, StatusCancelled, TopicOrderCancelled, EventOrderCancelled, nil)
}

// Return takes a delivered order back within the return window and
// restores its stock.
func (s *Service) Return(ctx context.Context, orderID, userID string) (*Order, error) {
	check := func(o *Order, now time.Time) error {
		if now.After(o.ReturnTill) {
			return ErrReturnWindowClosed
		}
		return nil
	}
	return s.transition(ctx, orderID, userID, StatusReturned, TopicOrderReturned, EventOrderReturned, check)
}

func (s *Service) transition(
	ctx context.Context,
	orderID, userID string,
	to Status,
	topic, eventType string,
	check func(*Order, time.Time) error,
) (*Order, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = work.Rollback(ctx) }()

	o, err := work.Orders().GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if !CanTransition(o.Status, to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	now := s.now()
	if check != nil {
		if err := check(o, now); err != nil {
			return nil, err
		}
	}

	for _, it := range o.Items {
		if err := work.Books().Restock(ctx, it.BookID, it.Qty); err != nil {
			return nil, fmt.Errorf("restock %s: %w", it.BookID, err)
		}
	}
	if err := work.Orders().SetStatus(ctx, o.ID, to, now); err != nil {
		return nil, err
	}
	if err := work.Jobs().CancelPending(ctx, o.ID); err != nil {
		return nil, fmt.Errorf("cancel pending fulfillment: %w", err)
	}

	if err := work.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	o.Status = to
	at := now
	switch to {
	case StatusCancelled:
		o.CancelledAt = &at
	case StatusReturned:
		o.ReturnedAt = &at
	}

	s.publish(topic, eventType, o.ID, OrderStatusPayload{
		OrderID: o.ID,
		Status:  to,
		At:      now,
	})
	s.cacheStatus(ctx, o.ID, to)

	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.newUOW().Orders().Get(ctx, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.newUOW().Orders().ListByUser(ctx, userID)
}

func (s *Service) publish(topic, eventType, orderID string, payload any) {
	if s.producer == nil {
		return
	}
	ev := NewEnvelope(eventType, s.serviceName, orderID, payload)
	s.producer.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, status Status) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetStatus(ctx, orderID, string(status)); err != nil {
		slog.Warn("order status cache update failed", "order_id", orderID, "error", err)
	}
}
