package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foodies-app/api/internal/payments"
	"github.com/foodies-app/api/internal/platform/httpx"
	"github.com/foodies-app/api/internal/services"
)

const (
	maxWebhookBodySize = 256 * 1024
	stripeSignatureKey = "Stripe-Signature"
	webhookRateWindow  = time.Minute
)

// WebhookHandlers receives gateway notifications. Stripe retries deliveries
// until it sees a 2xx, so handlers acknowledge everything they cannot act on
// and reserve 5xx for genuinely transient failures.
type WebhookHandlers struct {
	gateway payments.Provider
	orders  services.OrderService
	limiter rateLimiter
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// WebhookHandlersOption customises WebhookHandlers construction.
type WebhookHandlersOption func(*WebhookHandlers)

// WithWebhookRateLimit throttles webhook deliveries per source IP.
func WithWebhookRateLimit(limit int) WebhookHandlersOption {
	return func(h *WebhookHandlers) {
		h.limiter = newSimpleRateLimiter(limit, webhookRateWindow, nil)
	}
}

// WithWebhookLogger sets the structured event logger.
func WithWebhookLogger(logger func(ctx context.Context, event string, fields map[string]any)) WebhookHandlersOption {
	return func(h *WebhookHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(gateway payments.Provider, orders services.OrderService, opts ...WebhookHandlersOption) *WebhookHandlers {
	h := &WebhookHandlers{
		gateway: gateway,
		orders:  orders,
		logger:  func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handlePaymentWebhook)
}

func (h *WebhookHandlers) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gateway == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		httpx.WriteError(ctx, w, httpx.NewError(rateLimitedErrorCode, "too many webhook deliveries", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	event, err := h.gateway.VerifyAndParse(body, r.Header.Get(stripeSignatureKey))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed webhook payload", http.StatusBadRequest))
		return
	}

	cmd := services.PaymentWebhookCommand{
		EventID:       event.EventID,
		OrderID:       event.OrderID,
		IntentID:      event.IntentID,
		TransactionID: event.TransactionID,
		Amount:        event.Amount,
		Currency:      event.Currency,
		OccurredAt:    event.OccurredAt,
	}

	switch event.Kind {
	case payments.WebhookPaymentSucceeded:
		err = h.orders.ApplyPaymentSucceeded(ctx, cmd)
	case payments.WebhookPaymentFailed:
		err = h.orders.ApplyPaymentFailed(ctx, cmd)
	default:
		h.logger(ctx, "webhook.ignored", map[string]any{"eventId": event.EventID})
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
		return
	}
	if err != nil {
		// A 5xx tells the gateway to retry the delivery later.
		h.logger(ctx, "webhook.apply_failed", map[string]any{
			"eventId": event.EventID,
			"kind":    string(event.Kind),
			"error":   err.Error(),
		})
		httpx.WriteError(ctx, w, httpx.NewError("webhook_failed", "failed to apply webhook event", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
}

type webhookAckResponse struct {
	Received bool `json:"received"`
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
