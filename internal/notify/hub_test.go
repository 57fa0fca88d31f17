package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/foodies-app/api/internal/domain"
)

func testEvent(eventType domain.OrderEventType) domain.OrderEvent {
	return domain.OrderEvent{
		EventID:      "evt_1",
		Type:         eventType,
		OrderID:      "ord_1",
		RestaurantID: "rest_1",
		UserID:       "user_1",
		Status:       domain.OrderStatusPending,
		OccurredAt:   time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	first := hub.Subscribe("order:ord_1")
	second := hub.Subscribe("order:ord_1")
	other := hub.Subscribe("order:ord_2")

	delivered := hub.Publish("order:ord_1", testEvent(domain.OrderEventStatusChanged))
	if delivered != 2 {
		t.Fatalf("expected delivery to 2 subscribers, got %d", delivered)
	}

	for _, sub := range []*Subscription{first, second} {
		select {
		case event := <-sub.Events():
			if event.OrderID != "ord_1" {
				t.Fatalf("unexpected order id %s", event.OrderID)
			}
		default:
			t.Fatal("expected buffered event")
		}
	}

	select {
	case <-other.Events():
		t.Fatal("subscriber on another topic should not receive the event")
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	var drops int
	hub := NewHub(WithSubscriberBuffer(1), WithDropObserver(func(string) { drops++ }))
	defer hub.Close()

	sub := hub.Subscribe("restaurant:rest_1")

	hub.Publish("restaurant:rest_1", testEvent(domain.OrderEventCreated))
	delivered := hub.Publish("restaurant:rest_1", testEvent(domain.OrderEventCreated))

	if delivered != 0 {
		t.Fatalf("expected overflow publish to deliver to nobody, got %d", delivered)
	}
	if drops != 1 {
		t.Fatalf("expected 1 drop, got %d", drops)
	}

	// The first event is still intact.
	select {
	case event := <-sub.Events():
		if event.Type != domain.OrderEventCreated {
			t.Fatalf("unexpected event type %s", event.Type)
		}
	default:
		t.Fatal("expected first event to remain buffered")
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub := hub.Subscribe("order:ord_1")
	sub.Cancel()
	sub.Cancel() // cancelling twice must be safe

	if delivered := hub.Publish("order:ord_1", testEvent(domain.OrderEventStatusChanged)); delivered != 0 {
		t.Fatalf("expected no delivery after cancel, got %d", delivered)
	}

	if _, open := <-sub.Events(); open {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("order:ord_1")
	hub.Close()

	if _, open := <-sub.Events(); open {
		t.Fatal("expected channel closed after hub close")
	}
	if delivered := hub.Publish("order:ord_1", testEvent(domain.OrderEventStatusChanged)); delivered != 0 {
		t.Fatalf("expected no delivery after close, got %d", delivered)
	}
}

func TestHubConcurrentCancelAndClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		hub := NewHub()
		subs := make([]*Subscription, 8)
		for j := range subs {
			subs[j] = hub.Subscribe("order:ord_1")
		}

		var wg sync.WaitGroup
		for _, sub := range subs {
			wg.Add(1)
			go func(s *Subscription) {
				defer wg.Done()
				s.Cancel()
			}(sub)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Close()
		}()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("cancel and close blocked each other")
		}

		for _, sub := range subs {
			if _, open := <-sub.Events(); open {
				t.Fatal("expected every channel closed")
			}
		}
	}
}
