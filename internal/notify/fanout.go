package notify

import (
	"context"

	"github.com/foodies-app/api/internal/domain"
)

// BridgePublisher is the out-of-process half of the fan-out. *PubSubBridge
// satisfies it; tests substitute a capture implementation.
type BridgePublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) (string, error)
}

// Logger matches the logging callback used across services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Fanout routes one order event to every relevant hub topic and to the
// optional Pub/Sub bridge. Publishing never returns an error: failures are
// logged and swallowed so order mutations cannot be failed by delivery.
type Fanout struct {
	hub    *Hub
	bridge BridgePublisher
	logger Logger
}

// NewFanout wires the hub and optional bridge together. hub is required.
func NewFanout(hub *Hub, bridge BridgePublisher, logger Logger) *Fanout {
	f := &Fanout{hub: hub, bridge: bridge, logger: logger}
	if f.logger == nil {
		f.logger = func(context.Context, string, map[string]any) {}
	}
	return f
}

// PublishOrderEvent delivers the event to its order topic, its restaurant
// topic, and the bridge. The order topic is skipped for creation events
// since no subscriber can know the order ID before the create call returns.
func (f *Fanout) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) {
	if f == nil || f.hub == nil {
		return
	}

	topics := topicsFor(event)
	for _, topic := range topics {
		f.hub.Publish(topic, event)
	}

	if f.bridge == nil {
		return
	}
	// Bridge publishes ride on a detached context so an aborted request
	// cannot cancel the delivery mid-flight.
	go func() {
		id, err := f.bridge.PublishOrderEvent(context.WithoutCancel(ctx), event)
		if err != nil {
			f.logger(ctx, "notify.bridge_publish_failed", map[string]any{
				"event_type": string(event.Type),
				"order_id":   event.OrderID,
				"error":      err.Error(),
			})
			return
		}
		f.logger(ctx, "notify.bridge_published", map[string]any{
			"event_type": string(event.Type),
			"order_id":   event.OrderID,
			"message_id": id,
		})
	}()
}

func topicsFor(event domain.OrderEvent) []string {
	switch event.Type {
	case domain.OrderEventCreated:
		return []string{domain.RestaurantTopic(event.RestaurantID)}
	case domain.OrderEventCancelled:
		return []string{domain.OrderTopic(event.OrderID), domain.RestaurantTopic(event.RestaurantID)}
	default:
		return []string{domain.OrderTopic(event.OrderID)}
	}
}
