package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/notify"
	"github.com/foodies-app/api/internal/platform/auth"
	"github.com/foodies-app/api/internal/platform/httpx"
	"github.com/foodies-app/api/internal/services"
)

const sseHeartbeatInterval = 25 * time.Second

// EventHandlers streams order lifecycle events over server-sent events.
// Subscribers authorise against the same rules as order reads: a caller who
// cannot see an order cannot watch its stream either.
type EventHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	catalog   services.CatalogService
	hub       *notify.Hub
	heartbeat time.Duration
}

// EventHandlersOption customises EventHandlers construction.
type EventHandlersOption func(*EventHandlers)

// WithHeartbeatInterval overrides the SSE keep-alive cadence.
func WithHeartbeatInterval(interval time.Duration) EventHandlersOption {
	return func(h *EventHandlers) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// NewEventHandlers constructs a new EventHandlers instance.
func NewEventHandlers(authn *auth.Authenticator, orders services.OrderService, catalog services.CatalogService, hub *notify.Hub, opts ...EventHandlersOption) *EventHandlers {
	h := &EventHandlers{
		authn:     authn,
		orders:    orders,
		catalog:   catalog,
		hub:       hub,
		heartbeat: sseHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /events endpoints.
func (h *EventHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/orders/{orderID}", h.streamOrder)
	r.Get("/restaurants/{restaurantID}", h.streamRestaurant)
}

func (h *EventHandlers) streamOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireStreamActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	// The read check doubles as the subscription check.
	if _, err := h.orders.Get(ctx, orderID, actor); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.stream(w, r, domain.OrderTopic(orderID))
}

func (h *EventHandlers) streamRestaurant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireStreamActor(ctx, w)
	if !ok {
		return
	}

	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantID"))
	if restaurantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "restaurant id is required", http.StatusBadRequest))
		return
	}

	if !actor.HasRole(string(domain.RoleAdmin)) {
		restaurant, err := h.catalog.GetRestaurant(ctx, restaurantID)
		if err != nil {
			writeCatalogError(ctx, w, err)
			return
		}
		if restaurant.OwnerID != actor.ID {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to watch this restaurant", http.StatusForbidden))
			return
		}
	}

	h.stream(w, r, domain.RestaurantTopic(restaurantID))
}

func (h *EventHandlers) requireStreamActor(ctx context.Context, w http.ResponseWriter) (services.Actor, bool) {
	if h.hub == nil || h.orders == nil || h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("events_unavailable", "event streaming unavailable", http.StatusServiceUnavailable))
		return services.Actor{}, false
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", unauthenticatedErrMsg, http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return actor, true
}

func (h *EventHandlers) stream(w http.ResponseWriter, r *http.Request, topic string) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "response writer does not support streaming", http.StatusInternalServerError))
		return
	}

	sub := h.hub.Subscribe(topic)
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// First flush commits the headers so the client sees the stream open.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event domain.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.EventID, event.Type, data)
	return err
}
