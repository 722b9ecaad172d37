package orders

import "strconv"

const (
	TopicOrderPlaced     = "orders.placed"
	TopicOrderCancelled  = "orders.cancelled"
	TopicOrderStatus     = "orders.status"
	TopicPaymentRecorded = "payments.recorded"
)

// AllTopics is what the events consumer subscribes to.
var AllTopics = []string{TopicOrderPlaced, TopicOrderCancelled, TopicOrderStatus, TopicPaymentRecorded}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID int64) string { return strconv.FormatInt(orderID, 10) }

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderPlaced:
		return TopicOrderPlaced
	case EventOrderCancelled:
		return TopicOrderCancelled
	case EventOrderStatusChanged:
		return TopicOrderStatus
	case EventPaymentRecorded:
		return TopicPaymentRecorded
	}
	return ""
}
