package orders

const (
	TopicOrderPlaced    = "order.placed"
	TopicOrderShipped   = "order.shipped"
	TopicOrderDelivered = "order.delivered"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderReturned  = "order.returned"
)

// StatusTopics lists every lifecycle topic, for consumers that follow the
// whole order stream.
var StatusTopics = []string{
	TopicOrderPlaced,
	TopicOrderShipped,
	TopicOrderDelivered,
	TopicOrderCancelled,
	TopicOrderReturned,
}

// PartitionKey keys every event of one order to the same partition so its
// lifecycle stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
