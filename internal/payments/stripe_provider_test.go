package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newParams *stripe.PaymentIntentParams
	newResult *stripe.PaymentIntent
	newErr    error
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.newParams = params
	if s.newErr != nil {
		return nil, s.newErr
	}
	return s.newResult, nil
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newResult, nil
}

type stubRefundAPI struct {
	params *stripe.RefundParams
	result *stripe.Refund
	err    error
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestProvider(t *testing.T, intents *stubIntentAPI, refunds *stubRefundAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: "whsec_test",
		Clients: &stripeClients{
			intents: intents,
			refunds: refunds,
		},
		Clock: func() time.Time {
			return time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider returned error: %v", err)
	}
	return provider
}

func TestCreateIntentConvertsAmountAndCarriesOrderID(t *testing.T) {
	intents := &stubIntentAPI{
		newResult: &stripe.PaymentIntent{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret",
			Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
			Amount:       2918,
			Currency:     "usd",
		},
	}
	provider := newTestProvider(t, intents, &stubRefundAPI{})

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:        "ord_1",
		UserID:         "user_1",
		Amount:         29.178,
		Currency:       "USD",
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}

	if got := *intents.newParams.Amount; got != 2918 {
		t.Fatalf("expected amount rounded to 2918 minor units, got %d", got)
	}
	if got := intents.newParams.Metadata["orderId"]; got != "ord_1" {
		t.Fatalf("expected orderId metadata, got %q", got)
	}
	if got := intents.newParams.Metadata["userId"]; got != "user_1" {
		t.Fatalf("expected userId metadata, got %q", got)
	}
	if intent.ID != "pi_123" {
		t.Fatalf("unexpected intent id %s", intent.ID)
	}
	if intent.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", intent.Status)
	}
	if intent.Amount != 29.18 {
		t.Fatalf("unexpected round-tripped amount %v", intent.Amount)
	}
}

func TestRefundFullAmount(t *testing.T) {
	refunds := &stubRefundAPI{
		result: &stripe.Refund{
			ID:       "re_1",
			Amount:   2918,
			Currency: "usd",
			Created:  time.Date(2025, time.March, 2, 9, 30, 0, 0, time.UTC).Unix(),
		},
	}
	provider := newTestProvider(t, &stubIntentAPI{}, refunds)

	result, err := provider.Refund(context.Background(), RefundRequest{
		IntentID: "pi_123",
		Amount:   29.18,
		Reason:   "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}

	if got := *refunds.params.PaymentIntent; got != "pi_123" {
		t.Fatalf("unexpected intent reference %s", got)
	}
	if got := *refunds.params.Amount; got != 2918 {
		t.Fatalf("unexpected refund amount %d", got)
	}
	if got := *refunds.params.Reason; got != string(stripe.RefundReasonRequestedByCustomer) {
		t.Fatalf("unexpected refund reason %s", got)
	}
	if result.RefundID != "re_1" {
		t.Fatalf("unexpected refund id %s", result.RefundID)
	}
	if result.ProcessedAt.IsZero() {
		t.Fatal("expected processed timestamp")
	}
}

func TestRefundGatewayError(t *testing.T) {
	refunds := &stubRefundAPI{err: errors.New("insufficient balance")}
	provider := newTestProvider(t, &stubIntentAPI{}, refunds)

	if _, err := provider.Refund(context.Background(), RefundRequest{IntentID: "pi_123"}); err == nil {
		t.Fatal("expected gateway error to surface")
	}
}

func signWebhookPayload(t *testing.T, secret string, payload []byte, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func webhookEventPayload(t *testing.T, eventType string, intent map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data": map[string]any{
			"object": json.RawMessage(raw),
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func TestVerifyAndParseSucceededEvent(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	payload := webhookEventPayload(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_123",
		"amount":   2918,
		"currency": "usd",
		"metadata": map[string]string{"orderId": "ord_1"},
		"latest_charge": map[string]any{
			"id": "ch_9",
		},
	})
	header := signWebhookPayload(t, "whsec_test", payload, time.Now())

	event, err := provider.VerifyAndParse(payload, header)
	if err != nil {
		t.Fatalf("VerifyAndParse returned error: %v", err)
	}

	if event.Kind != WebhookPaymentSucceeded {
		t.Fatalf("unexpected kind %s", event.Kind)
	}
	if event.OrderID != "ord_1" {
		t.Fatalf("expected order id from metadata, got %q", event.OrderID)
	}
	if event.IntentID != "pi_123" {
		t.Fatalf("unexpected intent id %s", event.IntentID)
	}
	if event.TransactionID != "ch_9" {
		t.Fatalf("unexpected transaction id %s", event.TransactionID)
	}
	if event.Amount != 29.18 {
		t.Fatalf("unexpected amount %v", event.Amount)
	}
	if event.Currency != "USD" {
		t.Fatalf("unexpected currency %s", event.Currency)
	}
}

func TestVerifyAndParseFailedEvent(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	payload := webhookEventPayload(t, "payment_intent.payment_failed", map[string]any{
		"id":       "pi_456",
		"amount":   1099,
		"currency": "usd",
		"metadata": map[string]string{"orderId": "ord_2"},
	})
	header := signWebhookPayload(t, "whsec_test", payload, time.Now())

	event, err := provider.VerifyAndParse(payload, header)
	if err != nil {
		t.Fatalf("VerifyAndParse returned error: %v", err)
	}
	if event.Kind != WebhookPaymentFailed {
		t.Fatalf("unexpected kind %s", event.Kind)
	}
	if event.OrderID != "ord_2" {
		t.Fatalf("unexpected order id %q", event.OrderID)
	}
}

func TestVerifyAndParseRejectsBadSignature(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	payload := webhookEventPayload(t, "payment_intent.succeeded", map[string]any{"id": "pi_123"})
	header := signWebhookPayload(t, "whsec_wrong", payload, time.Now())

	_, err := provider.VerifyAndParse(payload, header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyAndParseIgnoresUnknownEventTypes(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	payload := webhookEventPayload(t, "charge.updated", map[string]any{"id": "ch_1"})
	header := signWebhookPayload(t, "whsec_test", payload, time.Now())

	event, err := provider.VerifyAndParse(payload, header)
	if err != nil {
		t.Fatalf("VerifyAndParse returned error: %v", err)
	}
	if event.Kind != WebhookIgnored {
		t.Fatalf("expected ignored kind, got %s", event.Kind)
	}
}
