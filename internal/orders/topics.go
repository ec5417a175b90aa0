package orders

const (
	TopicOrderPlaced   = "order.placed"
	TopicOrderPaid     = "order.paid"
	TopicStatusChanged = "order.status.changed"
)

// Partition key = order_id so every event for one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
