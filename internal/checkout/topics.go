package checkout

const (
	TopicOrderCreated  = "order.created"
	TopicStatusChanged = "order.status.changed"
	TopicStockReleased = "order.stock.released"
)

// PartitionKey keeps all events for one order on one partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
