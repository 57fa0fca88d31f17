package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	AccountID     string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api           stripeClients
	webhookSecret string
	account       string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}

	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		account:       strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a Payment Intent carrying the order reference in its metadata.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Metadata: map[string]string{
			"orderId": req.OrderID,
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.UserID != "" {
		params.Metadata["userId"] = req.UserID
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       stripeIntentStatus(intent.Status),
		Amount:       FromMinorUnits(intent.Amount),
		Currency:     strings.ToUpper(string(intent.Currency)),
	}, nil
}

// Refund creates a full or partial refund for the provided Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(ToMinorUnits(req.Amount))
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.IntentID,
		"refund":        refund.ID,
		"amount":        refund.Amount,
	})

	processedAt := p.clock()
	if refund.Created != 0 {
		processedAt = time.Unix(refund.Created, 0).UTC()
	}

	return RefundResult{
		RefundID:    refund.ID,
		IntentID:    req.IntentID,
		Amount:      FromMinorUnits(refund.Amount),
		Currency:    strings.ToUpper(string(refund.Currency)),
		ProcessedAt: processedAt,
	}, nil
}

// VerifyAndParse checks the webhook signature and decodes the event payload.
// Event types outside the payment intent lifecycle come back as WebhookIgnored
// so callers can acknowledge them without acting.
func (p *StripeProvider) VerifyAndParse(payload []byte, signatureHeader string) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("stripe: provider is nil")
	}

	event, err := webhook.ConstructEvent(payload, signatureHeader, p.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	occurredAt := time.Unix(event.Created, 0).UTC()

	var kind WebhookEventKind
	switch event.Type {
	case "payment_intent.succeeded":
		kind = WebhookPaymentSucceeded
	case "payment_intent.payment_failed":
		kind = WebhookPaymentFailed
	default:
		return WebhookEvent{
			Kind:       WebhookIgnored,
			EventID:    event.ID,
			OccurredAt: occurredAt,
		}, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode webhook payment intent: %w", err)
	}

	transactionID := ""
	if intent.LatestCharge != nil {
		transactionID = intent.LatestCharge.ID
	}

	return WebhookEvent{
		Kind:          kind,
		EventID:       event.ID,
		IntentID:      intent.ID,
		OrderID:       intent.Metadata["orderId"],
		TransactionID: transactionID,
		Amount:        FromMinorUnits(intent.Amount),
		Currency:      strings.ToUpper(string(intent.Currency)),
		OccurredAt:    occurredAt,
	}, nil
}

func stripeIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
