package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foodies-app/api/internal/domain"
)

type captureBridge struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
	done   chan struct{}
}

func newCaptureBridge(err error) *captureBridge {
	return &captureBridge{err: err, done: make(chan struct{}, 8)}
}

func (b *captureBridge) PublishOrderEvent(_ context.Context, event domain.OrderEvent) (string, error) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	b.done <- struct{}{}
	if b.err != nil {
		return "", b.err
	}
	return "msg_1", nil
}

func (b *captureBridge) wait(t *testing.T) {
	t.Helper()
	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge publish never happened")
	}
}

func TestFanoutRoutesStatusChangeToOrderTopic(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	orderSub := hub.Subscribe(domain.OrderTopic("ord_1"))
	restaurantSub := hub.Subscribe(domain.RestaurantTopic("rest_1"))

	fanout := NewFanout(hub, nil, nil)
	fanout.PublishOrderEvent(context.Background(), testEvent(domain.OrderEventStatusChanged))

	select {
	case event := <-orderSub.Events():
		if event.Type != domain.OrderEventStatusChanged {
			t.Fatalf("unexpected event type %s", event.Type)
		}
	default:
		t.Fatal("expected event on order topic")
	}
	select {
	case <-restaurantSub.Events():
		t.Fatal("status change must not reach the restaurant topic")
	default:
	}
}

func TestFanoutRoutesCreationToRestaurantTopic(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	orderSub := hub.Subscribe(domain.OrderTopic("ord_1"))
	restaurantSub := hub.Subscribe(domain.RestaurantTopic("rest_1"))

	fanout := NewFanout(hub, nil, nil)
	fanout.PublishOrderEvent(context.Background(), testEvent(domain.OrderEventCreated))

	select {
	case event := <-restaurantSub.Events():
		if event.Type != domain.OrderEventCreated {
			t.Fatalf("unexpected event type %s", event.Type)
		}
	default:
		t.Fatal("expected event on restaurant topic")
	}
	select {
	case <-orderSub.Events():
		t.Fatal("creation must not reach the order topic")
	default:
	}
}

func TestFanoutRoutesCancellationToBothTopics(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	orderSub := hub.Subscribe(domain.OrderTopic("ord_1"))
	restaurantSub := hub.Subscribe(domain.RestaurantTopic("rest_1"))

	fanout := NewFanout(hub, nil, nil)
	fanout.PublishOrderEvent(context.Background(), testEvent(domain.OrderEventCancelled))

	for name, sub := range map[string]*Subscription{"order": orderSub, "restaurant": restaurantSub} {
		select {
		case event := <-sub.Events():
			if event.Type != domain.OrderEventCancelled {
				t.Fatalf("%s topic: unexpected event type %s", name, event.Type)
			}
		default:
			t.Fatalf("expected cancellation on %s topic", name)
		}
	}
}

func TestFanoutForwardsToBridge(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	bridge := newCaptureBridge(nil)
	fanout := NewFanout(hub, bridge, nil)
	fanout.PublishOrderEvent(context.Background(), testEvent(domain.OrderEventStatusChanged))

	bridge.wait(t)
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if len(bridge.events) != 1 {
		t.Fatalf("expected 1 bridged event, got %d", len(bridge.events))
	}
	if bridge.events[0].OrderID != "ord_1" {
		t.Fatalf("unexpected order id %s", bridge.events[0].OrderID)
	}
}

func TestFanoutSurvivesBridgeFailure(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	orderSub := hub.Subscribe(domain.OrderTopic("ord_1"))

	var mu sync.Mutex
	var logged []string
	logger := func(_ context.Context, event string, _ map[string]any) {
		mu.Lock()
		logged = append(logged, event)
		mu.Unlock()
	}

	bridge := newCaptureBridge(errors.New("topic unavailable"))
	fanout := NewFanout(hub, bridge, logger)
	fanout.PublishOrderEvent(context.Background(), testEvent(domain.OrderEventStatusChanged))

	bridge.wait(t)

	// Hub delivery must not be affected by the failed bridge publish.
	select {
	case <-orderSub.Events():
	default:
		t.Fatal("expected hub delivery despite bridge failure")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(logged)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected bridge failure to be logged")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if logged[0] != "notify.bridge_publish_failed" {
		t.Fatalf("unexpected log event %s", logged[0])
	}
}

func TestFanoutCancelledRequestStillBridges(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bridge := newCaptureBridge(nil)
	fanout := NewFanout(hub, bridge, nil)
	fanout.PublishOrderEvent(ctx, testEvent(domain.OrderEventStatusChanged))

	bridge.wait(t)
}
