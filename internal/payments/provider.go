// Package payments adapts the card gateway. Amounts cross this boundary in
// currency units and convert to the gateway's integer minor units here.
package payments

import (
	"context"
	"errors"
	"math"
	"time"
)

// Status enumerates the normalised payment states reported by the gateway.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been fully refunded.
	StatusRefunded Status = "refunded"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// IntentRequest captures the payload required to open a payment intent for an order.
type IntentRequest struct {
	OrderID        string
	UserID         string
	Amount         float64
	Currency       string
	IdempotencyKey string
	Description    string
}

// Intent is the gateway-side handle returned when an intent is created.
type Intent struct {
	ID           string
	ClientSecret string
	Status       Status
	Amount       float64
	Currency     string
}

// RefundRequest asks the gateway to return captured funds for an intent.
type RefundRequest struct {
	IntentID       string
	Amount         float64
	Reason         string
	IdempotencyKey string
}

// RefundResult reports the gateway's refund outcome.
type RefundResult struct {
	RefundID    string
	IntentID    string
	Amount      float64
	Currency    string
	ProcessedAt time.Time
}

// WebhookEventKind distinguishes the gateway notifications the platform reacts to.
type WebhookEventKind string

const (
	// WebhookPaymentSucceeded maps the gateway's payment success notification.
	WebhookPaymentSucceeded WebhookEventKind = "payment_succeeded"
	// WebhookPaymentFailed maps the gateway's payment failure notification.
	WebhookPaymentFailed WebhookEventKind = "payment_failed"
	// WebhookIgnored covers event types the platform acknowledges without acting on.
	WebhookIgnored WebhookEventKind = "ignored"
)

// WebhookEvent is the verified, decoded gateway notification.
type WebhookEvent struct {
	Kind          WebhookEventKind
	EventID       string
	IntentID      string
	OrderID       string
	TransactionID string
	Amount        float64
	Currency      string
	OccurredAt    time.Time
}

// Provider defines the contract the order flow needs from a gateway adapter.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	VerifyAndParse(payload []byte, signatureHeader string) (WebhookEvent, error)
}

// ToMinorUnits converts a currency-unit amount to the gateway's integer
// minor units, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts gateway minor units back to currency units.
func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
