package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmart/orders/internal/books"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory unit of work. Begin snapshots the state and
// Rollback without Commit restores it, mirroring transactional semantics.
type fakeStore struct {
	books  map[string]*books.Book
	buyers map[string][]string
	carts  map[string]map[string]int
	orders map[string]*Order
	jobs   []scheduledJob

	cancelledJobs []string

	began      bool
	committed  bool
	rolledBack bool
	snapshot   *fakeStore

	failDecrement bool
}

type scheduledJob struct {
	orderID string
	next    Status
	runAt   time.Time
}

func newFakeStore(bs ...*books.Book) *fakeStore {
	s := &fakeStore{
		books:  make(map[string]*books.Book),
		buyers: make(map[string][]string),
		carts:  make(map[string]map[string]int),
		orders: make(map[string]*Order),
	}
	for _, b := range bs {
		cp := *b
		s.books[b.ID] = &cp
	}
	return s
}

func (s *fakeStore) copyState() *fakeStore {
	cp := &fakeStore{
		books:  make(map[string]*books.Book, len(s.books)),
		buyers: make(map[string][]string, len(s.buyers)),
		carts:  make(map[string]map[string]int, len(s.carts)),
		orders: make(map[string]*Order, len(s.orders)),
		jobs:   append([]scheduledJob(nil), s.jobs...),

		cancelledJobs: append([]string(nil), s.cancelledJobs...),
	}
	for id, b := range s.books {
		b2 := *b
		cp.books[id] = &b2
	}
	for id, us := range s.buyers {
		cp.buyers[id] = append([]string(nil), us...)
	}
	for u, c := range s.carts {
		c2 := make(map[string]int, len(c))
		for k, v := range c {
			c2[k] = v
		}
		cp.carts[u] = c2
	}
	for id, o := range s.orders {
		cp.orders[id] = copyOrder(o)
	}
	return cp
}

func copyOrder(o *Order) *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}

func (s *fakeStore) Begin(ctx context.Context) error {
	s.began = true
	s.committed = false
	s.snapshot = s.copyState()
	return nil
}

func (s *fakeStore) Commit(ctx context.Context) error {
	s.committed = true
	s.snapshot = nil
	return nil
}

func (s *fakeStore) Rollback(ctx context.Context) error {
	if s.committed || s.snapshot == nil {
		return nil
	}
	s.rolledBack = true
	snap := s.snapshot
	s.books = snap.books
	s.buyers = snap.buyers
	s.carts = snap.carts
	s.orders = snap.orders
	s.jobs = snap.jobs
	s.cancelledJobs = snap.cancelledJobs
	s.snapshot = nil
	return nil
}

func (s *fakeStore) Books() BookStore   { return &fakeBooks{s} }
func (s *fakeStore) Carts() CartStore   { return &fakeCarts{s} }
func (s *fakeStore) Orders() OrderStore { return &fakeOrders{s} }
func (s *fakeStore) Jobs() JobStore     { return &fakeJobs{s} }

type fakeBooks struct{ s *fakeStore }

func (f *fakeBooks) GetForUpdate(ctx context.Context, id string) (*books.Book, error) {
	b, ok := f.s.books[id]
	if !ok {
		return nil, books.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBooks) DecrementCount(ctx context.Context, id string, qty int) (bool, error) {
	if f.s.failDecrement {
		return false, nil
	}
	b, ok := f.s.books[id]
	if !ok || b.Count < qty {
		return false, nil
	}
	b.Count -= qty
	return true, nil
}

func (f *fakeBooks) Restock(ctx context.Context, id string, qty int) error {
	b, ok := f.s.books[id]
	if !ok {
		return books.ErrNotFound
	}
	b.Count += qty
	return nil
}

func (f *fakeBooks) RecordPurchase(ctx context.Context, bookID, userID string, at time.Time) error {
	f.s.buyers[bookID] = append(f.s.buyers[bookID], userID)
	return nil
}

type fakeCarts struct{ s *fakeStore }

func (f *fakeCarts) RemoveBooks(ctx context.Context, userID string, bookIDs []string) error {
	c := f.s.carts[userID]
	for _, id := range bookIDs {
		delete(c, id)
	}
	return nil
}

type fakeOrders struct{ s *fakeStore }

func (f *fakeOrders) Insert(ctx context.Context, o *Order) error {
	f.s.orders[o.ID] = copyOrder(o)
	return nil
}

func (f *fakeOrders) Get(ctx context.Context, id string) (*Order, error) {
	o, ok := f.s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (f *fakeOrders) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return f.Get(ctx, id)
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range f.s.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (f *fakeOrders) SetStatus(ctx context.Context, id string, to Status, at time.Time) error {
	o, ok := f.s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = to
	ts := at
	switch to {
	case StatusShipped:
		o.ShippedAt = &ts
	case StatusDelivered:
		o.DeliveredAt = &ts
	case StatusCancelled:
		o.CancelledAt = &ts
	case StatusReturned:
		o.ReturnedAt = &ts
	}
	return nil
}

type fakeJobs struct{ s *fakeStore }

func (f *fakeJobs) Schedule(ctx context.Context, orderID string, next Status, runAt time.Time) error {
	f.s.jobs = append(f.s.jobs, scheduledJob{orderID: orderID, next: next, runAt: runAt})
	return nil
}

func (f *fakeJobs) CancelPending(ctx context.Context, orderID string) error {
	f.s.cancelledJobs = append(f.s.cancelledJobs, orderID)
	return nil
}

type published struct {
	topic string
	key   []byte
	value []byte
}

type fakePublisher struct {
	msgs []published
}

func (p *fakePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value})
}

func (p *fakePublisher) envelope(t *testing.T, i int) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(p.msgs[i].value, &env))
	return env
}

type fakeCache struct {
	statuses map[string]string
}

func (c *fakeCache) SetStatus(ctx context.Context, orderID, status string) error {
	if c.statuses == nil {
		c.statuses = make(map[string]string)
	}
	c.statuses[orderID] = status
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestService(s *fakeStore) (*Service, *fakePublisher, *fakeCache, *fakeClock) {
	pub := &fakePublisher{}
	cache := &fakeCache{}
	clock := &fakeClock{t: t0}
	svc := MustNewService(
		WithUnitOfWork(func() UnitOfWork { return s }),
		WithProducer(pub),
		WithStatusCache(cache),
		WithServiceName("order-api-test"),
		WithFulfillmentDelays(10*time.Second, 20*time.Second),
		WithClock(clock.now),
	)
	return svc, pub, cache, clock
}

func testBook(id, title string, price int64, count int) *books.Book {
	return &books.Book{ID: id, Title: title, Author: "someone", PriceCents: price, Count: count}
}

func TestPlaceOrder_BuyNow(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, pub, cache, _ := newTestService(store)

	o, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:   "u1",
		BookID:   "b1",
		Quantity: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, int64(3000), o.TotalCents)
	require.Len(t, o.Items, 1)
	assert.Equal(t, Item{BookID: "b1", Title: "Dune", PriceCents: 1500, Qty: 2}, o.Items[0])
	assert.Equal(t, t0, o.PlacedAt)
	assert.Equal(t, t0.Add(ReturnWindow), o.ReturnTill)

	assert.Equal(t, 1, store.books["b1"].Count)
	assert.Equal(t, []string{"u1"}, store.buyers["b1"])
	assert.True(t, store.committed)

	require.Len(t, store.jobs, 2)
	assert.Equal(t, scheduledJob{orderID: o.ID, next: StatusShipped, runAt: t0.Add(10 * time.Second)}, store.jobs[0])
	assert.Equal(t, scheduledJob{orderID: o.ID, next: StatusDelivered, runAt: t0.Add(20 * time.Second)}, store.jobs[1])

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, TopicOrderPlaced, pub.msgs[0].topic)
	assert.Equal(t, []byte(o.ID), pub.msgs[0].key)
	env := pub.envelope(t, 0)
	assert.Equal(t, EventOrderPlaced, env.EventType)
	assert.Equal(t, o.ID, env.CorrelationID)

	assert.Equal(t, "placed", cache.statuses[o.ID])
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 1))
	svc, pub, _, _ := newTestService(store)

	o, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:   "u1",
		BookID:   "b1",
		Quantity: 5,
	})
	require.Error(t, err)
	assert.Nil(t, o)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "b1", stockErr.BookID)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)
	assert.Contains(t, err.Error(), "Only 1 copies available")

	assert.Equal(t, 1, store.books["b1"].Count)
	assert.Empty(t, store.orders)
	assert.Empty(t, store.jobs)
	assert.Empty(t, store.buyers)
	assert.Empty(t, pub.msgs)
	assert.True(t, store.rolledBack)
}

func TestPlaceOrder_CartItems(t *testing.T) {
	store := newFakeStore(
		testBook("b1", "Dune", 1500, 5),
		testBook("b2", "Solaris", 900, 5),
		testBook("b3", "Hyperion", 1200, 5),
	)
	store.carts["u1"] = map[string]int{"b1": 1, "b2": 2, "b3": 1}
	svc, _, _, _ := newTestService(store)

	o, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items: []ItemInput{
			{BookID: "b1", Qty: 1},
			{BookID: "b2", Qty: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(1500+2*900), o.TotalCents)

	// Ordered entries left the cart, the rest stayed.
	assert.NotContains(t, store.carts["u1"], "b1")
	assert.NotContains(t, store.carts["u1"], "b2")
	assert.Contains(t, store.carts["u1"], "b3")
}

func TestPlaceOrder_MergesBuyNowAndCart(t *testing.T) {
	store := newFakeStore(
		testBook("b1", "Dune", 1500, 5),
		testBook("b2", "Solaris", 900, 5),
	)
	store.carts["u1"] = map[string]int{"b1": 1, "b2": 1}
	svc, _, _, _ := newTestService(store)

	o, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:   "u1",
		BookID:   "b1",
		Quantity: 1,
		Items:    []ItemInput{{BookID: "b2", Qty: 1}},
	})
	require.NoError(t, err)

	// Buy-now entry comes first, then the cart-derived list.
	require.Len(t, o.Items, 2)
	assert.Equal(t, "b1", o.Items[0].BookID)
	assert.Equal(t, "b2", o.Items[1].BookID)

	// Only the listed entry is removed from the cart; the buy-now book
	// stays even though it happens to be in there.
	assert.Contains(t, store.carts["u1"], "b1")
	assert.NotContains(t, store.carts["u1"], "b2")
}

func TestPlaceOrder_NoItems(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{UserID: "u1"})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	// Rejected before any store access.
	assert.False(t, store.began)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, _, _, _ := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:   "u1",
		BookID:   "b1",
		Quantity: 0,
	})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.False(t, store.began)
}

func TestPlaceOrder_BookNotFound(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, _, _, _ := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items: []ItemInput{
			{BookID: "b1", Qty: 1},
			{BookID: "nope", Qty: 1},
		},
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.BookID)

	// The decrement of b1 was rolled back with everything else.
	assert.Equal(t, 3, store.books["b1"].Count)
	assert.Empty(t, store.orders)
	assert.True(t, store.rolledBack)
}

func TestPlaceOrder_FirstFailureWins(t *testing.T) {
	store := newFakeStore(
		testBook("b1", "Dune", 1500, 0),
		testBook("b2", "Solaris", 900, 0),
	)
	svc, _, _, _ := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items: []ItemInput{
			{BookID: "b1", Qty: 1},
			{BookID: "b2", Qty: 1},
		},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "b1", stockErr.BookID)
}

func TestPlaceOrder_ConditionalDecrementGuards(t *testing.T) {
	// Even if the availability check passed, a failed conditional
	// decrement must surface as insufficient stock, not a partial write.
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	store.failDecrement = true
	svc, _, _, _ := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:   "u1",
		BookID:   "b1",
		Quantity: 1,
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, store.books["b1"].Count)
	assert.True(t, store.rolledBack)
}

func TestPlaceOrder_SnapshotImmutable(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, _, _, _ := newTestService(store)

	o, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:   "u1",
		BookID:   "b1",
		Quantity: 1,
	})
	require.NoError(t, err)

	// The book changes after placement; the order keeps its snapshot.
	store.books["b1"].Title = "Dune (2nd ed.)"
	store.books["b1"].PriceCents = 9900

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Dune", got.Items[0].Title)
	assert.Equal(t, int64(1500), got.Items[0].PriceCents)
}

func placeTestOrder(t *testing.T, svc *Service, store *fakeStore) *Order {
	t.Helper()
	o, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:   "u1",
		BookID:   "b1",
		Quantity: 2,
	})
	require.NoError(t, err)
	return o
}

func TestCancel(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, pub, cache, _ := newTestService(store)
	o := placeTestOrder(t, svc, store)

	got, err := svc.Cancel(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, t0, *got.CancelledAt)

	// Stock is restored and pending fulfillment is invalidated.
	assert.Equal(t, 3, store.books["b1"].Count)
	assert.Contains(t, store.cancelledJobs, o.ID)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, TopicOrderCancelled, pub.msgs[1].topic)
	assert.Equal(t, "cancelled", cache.statuses[o.ID])
}

func TestCancel_AfterShipment(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, _, _, _ := newTestService(store)
	o := placeTestOrder(t, svc, store)
	store.orders[o.ID].Status = StatusShipped

	_, err := svc.Cancel(context.Background(), o.ID, "u1")

	var it *InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, StatusShipped, it.From)
	assert.Equal(t, StatusCancelled, it.To)
	assert.Equal(t, 1, store.books["b1"].Count)
}

func TestCancel_WrongUser(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, _, _, _ := newTestService(store)
	o := placeTestOrder(t, svc, store)

	_, err := svc.Cancel(context.Background(), o.ID, "somebody-else")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancel_UnknownOrder(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)

	_, err := svc.Cancel(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestReturn(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, pub, _, clock := newTestService(store)
	o := placeTestOrder(t, svc, store)
	store.orders[o.ID].Status = StatusDelivered

	clock.t = t0.Add(3 * 24 * time.Hour) // inside the window

	got, err := svc.Return(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, got.Status)
	require.NotNil(t, got.ReturnedAt)

	assert.Equal(t, 3, store.books["b1"].Count)
	assert.Equal(t, TopicOrderReturned, pub.msgs[len(pub.msgs)-1].topic)
}

func TestReturn_WindowClosed(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, _, _, clock := newTestService(store)
	o := placeTestOrder(t, svc, store)
	store.orders[o.ID].Status = StatusDelivered

	clock.t = t0.Add(ReturnWindow + time.Hour)

	_, err := svc.Return(context.Background(), o.ID, "u1")
	assert.ErrorIs(t, err, ErrReturnWindowClosed)

	// Nothing changed.
	assert.Equal(t, StatusDelivered, store.orders[o.ID].Status)
	assert.Equal(t, 1, store.books["b1"].Count)
}

func TestReturn_NotDelivered(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 3))
	svc, _, _, _ := newTestService(store)
	o := placeTestOrder(t, svc, store)

	_, err := svc.Return(context.Background(), o.ID, "u1")

	var it *InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, StatusPlaced, it.From)
}

func TestListByUser(t *testing.T) {
	store := newFakeStore(testBook("b1", "Dune", 1500, 10))
	svc, _, _, _ := newTestService(store)
	placeTestOrder(t, svc, store)
	placeTestOrder(t, svc, store)

	out, err := svc.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = svc.ListByUser(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, out)
}
