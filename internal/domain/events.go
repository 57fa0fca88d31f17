package domain

import "time"

// OrderEventType names the lifecycle notifications fanned out to subscribers.
type OrderEventType string

const (
	// OrderEventCreated is published when a new order is placed.
	OrderEventCreated OrderEventType = "order.created"
	// OrderEventStatusChanged is published on every status transition.
	OrderEventStatusChanged OrderEventType = "order.status_changed"
	// OrderEventCancelled is published when an order is cancelled.
	OrderEventCancelled OrderEventType = "order.cancelled"
	// OrderEventPaymentUpdated is published when the payment status changes.
	OrderEventPaymentUpdated OrderEventType = "order.payment_updated"
)

// OrderEvent is the payload delivered to order and restaurant topic
// subscribers. Delivery is at-least-once; consumers key on EventID to
// deduplicate.
type OrderEvent struct {
	EventID      string         `json:"event_id"`
	Type         OrderEventType `json:"type"`
	OrderID      string         `json:"order_id"`
	RestaurantID string         `json:"restaurant_id"`
	UserID       string         `json:"user_id"`
	Status       OrderStatus    `json:"status"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// OrderTopic is the per-order notification topic name.
func OrderTopic(orderID string) string { return "order:" + orderID }

// RestaurantTopic is the per-restaurant notification topic name.
func RestaurantTopic(restaurantID string) string { return "restaurant:" + restaurantID }
