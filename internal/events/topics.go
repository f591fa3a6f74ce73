package events

// Messages are keyed by order_id, so every event for one order lands on the
// same partition and stays in order.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
)
