package notifier

import (
	"context"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/bookmart/orders/internal/kafka"
	"github.com/bookmart/orders/internal/orders"
)

type fakeCache struct {
	seen     map[string]bool
	statuses map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{seen: make(map[string]bool), statuses: make(map[string]string)}
}

func (c *fakeCache) MarkSeen(ctx context.Context, service, eventID string) (bool, error) {
	key := service + ":" + eventID
	if c.seen[key] {
		return false, nil
	}
	c.seen[key] = true
	return true, nil
}

func (c *fakeCache) SetStatus(ctx context.Context, orderID, status string) error {
	c.statuses[orderID] = status
	return nil
}

func message(t *testing.T, env orders.Envelope) kafkago.Message {
	t.Helper()
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestHandleOrderEvent(t *testing.T) {
	cache := newFakeCache()
	svc := &Service{Cache: cache, ServiceName: "notifier-test"}

	env := orders.NewEnvelope(orders.EventOrderShipped, "worker", "o1", orders.OrderStatusPayload{
		OrderID: "o1",
		Status:  orders.StatusShipped,
	})

	require.NoError(t, svc.HandleOrderEvent(context.Background(), message(t, env)))
	assert.Equal(t, "shipped", cache.statuses["o1"])
}

func TestHandleOrderEvent_Duplicate(t *testing.T) {
	cache := newFakeCache()
	svc := &Service{Cache: cache, ServiceName: "notifier-test"}

	env := orders.NewEnvelope(orders.EventOrderDelivered, "worker", "o1", orders.OrderStatusPayload{
		OrderID: "o1",
		Status:  orders.StatusDelivered,
	})
	msg := message(t, env)

	require.NoError(t, svc.HandleOrderEvent(context.Background(), msg))
	cache.statuses = map[string]string{} // forget, then redeliver

	require.NoError(t, svc.HandleOrderEvent(context.Background(), msg))
	assert.Empty(t, cache.statuses, "redelivered event must not be reapplied")
}

func TestHandleOrderEvent_UnknownType(t *testing.T) {
	cache := newFakeCache()
	svc := &Service{Cache: cache, ServiceName: "notifier-test"}

	env := orders.NewEnvelope("SomethingElse", "worker", "o1", struct{}{})

	require.NoError(t, svc.HandleOrderEvent(context.Background(), message(t, env)))
	assert.Empty(t, cache.seen, "foreign events are not marked seen")
	assert.Empty(t, cache.statuses)
}

func TestHandleOrderEvent_OrderIDFromPayload(t *testing.T) {
	cache := newFakeCache()
	svc := &Service{Cache: cache, ServiceName: "notifier-test"}

	env := orders.NewEnvelope(orders.EventOrderCancelled, "api", "", orders.OrderStatusPayload{
		OrderID: "o9",
		Status:  orders.StatusCancelled,
	})

	require.NoError(t, svc.HandleOrderEvent(context.Background(), message(t, env)))
	assert.Equal(t, "cancelled", cache.statuses["o9"])
}

func TestHandleOrderEvent_BadJSON(t *testing.T) {
	svc := &Service{Cache: newFakeCache(), ServiceName: "notifier-test"}
	err := svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}
