package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/foodies-app/api/internal/domain"
)

// PubSubBridge publishes order events to a Pub/Sub topic so consumers
// outside this process (notification workers, analytics) observe the same
// stream the in-process hub delivers.
type PubSubBridge struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubBridge constructs a Pub/Sub backed order event publisher.
func NewPubSubBridge(topic *pubsub.Topic) (*PubSubBridge, error) {
	if topic == nil {
		return nil, errors.New("pubsub bridge: topic is required")
	}
	return &PubSubBridge{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues the event on the configured topic and returns
// the server-assigned message ID.
func (p *PubSubBridge) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub bridge: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "eventType", string(event.Type))
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "restaurantId", event.RestaurantID)
	setAttr(attrs, "status", string(event.Status))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
