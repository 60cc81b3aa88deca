package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/bookmart/orders/internal/kafka"
	"github.com/bookmart/orders/internal/orders"
)

type Cache interface {
	MarkSeen(ctx context.Context, service, eventID string) (bool, error)
	SetStatus(ctx context.Context, orderID, status string) error
}

// Service follows the order lifecycle topics and keeps the Redis status
// cache warm, so status reads rarely touch Postgres.
type Service struct {
	Cache       Cache
	ServiceName string
}

var eventStatus = map[string]orders.Status{
	orders.EventOrderPlaced:    orders.StatusPlaced,
	orders.EventOrderShipped:   orders.StatusShipped,
	orders.EventOrderDelivered: orders.StatusDelivered,
	orders.EventOrderCancelled: orders.StatusCancelled,
	orders.EventOrderReturned:  orders.StatusReturned,
}

// HandleOrderEvent is the consumer handler for every lifecycle topic.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	status, ok := eventStatus[env.EventType]
	if !ok {
		return nil // not ours
	}

	first, err := s.Cache.MarkSeen(ctx, s.ServiceName, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	orderID := env.CorrelationID
	if orderID == "" {
		p, err := kafkax.UnwrapPayload[orders.OrderStatusPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = p.OrderID
	}

	if err := s.Cache.SetStatus(ctx, orderID, string(status)); err != nil {
		return err
	}
	slog.Info("order status cached", "order_id", orderID, "status", status)
	return nil
}
