package adapter

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain/model"
)

// ChargeRequest is what a provider needs to open a charge.
type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	Metadata model.CustomMetadata
}

// ChargeResult is a provider-agnostic view of an opened charge.
type ChargeResult struct {
	ReferenceID  string // payment intent id / order id
	ClientSecret string // Stripe only
	ApprovalURL  string // PayPal only
	Status       model.PaymentStatus
}

type RefundRequest struct {
	// Reference is the capture id (PayPal) or payment intent id (Stripe).
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Metadata  model.CustomMetadata
}

type RefundResult struct {
	ProviderID string
	Status     model.RefundStatus
}

// StatusResult is the provider's current view of a charge, used by reconciliation.
type StatusResult struct {
	Outcome   model.Outcome
	Final     bool
	CaptureID string
}

// PaymentStrategy is the hex port for payment providers.
type PaymentStrategy interface {
	Method() model.Method
	ProcessPayment(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	ProcessRefund(ctx context.Context, req RefundRequest) (RefundResult, error)
	FetchStatus(ctx context.Context, referenceID string) (StatusResult, error)
}

// PayPalCapturer is implemented by strategies that need an explicit capture step.
type PayPalCapturer interface {
	Capture(ctx context.Context, orderID string) (captureID string, err error)
}

// WebhookRequest is the raw delivery: the unparsed body and its headers.
type WebhookRequest struct {
	Body   []byte
	Header http.Header
}

// WebhookVerifier authenticates one provider's webhook and normalizes it.
// A nil event with a nil error means the kind is acknowledged but ignored.
type WebhookVerifier interface {
	Provider() model.Provider
	Verify(ctx context.Context, req WebhookRequest) (*model.PaymentEvent, error)
}
