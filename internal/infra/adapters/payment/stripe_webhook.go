package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
)

var _ adapter.WebhookVerifier = (*StripeWebhook)(nil)

// StripeWebhook checks the Stripe-Signature header against the raw body.
type StripeWebhook struct {
	secret    string
	tolerance time.Duration
}

func NewStripeWebhook(secret string) *StripeWebhook {
	return &StripeWebhook{secret: secret, tolerance: webhook.DefaultTolerance}
}

func (w *StripeWebhook) Provider() model.Provider { return model.MethodStripe }

func (w *StripeWebhook) Verify(_ context.Context, req adapter.WebhookRequest) (*model.PaymentEvent, error) {
	sig := req.Header.Get("Stripe-Signature")
	if sig == "" {
		return nil, fmt.Errorf("%w: missing Stripe-Signature", domain.ErrSignatureInvalid)
	}
	ev, err := webhook.ConstructEventWithOptions(req.Body, sig, w.secret, webhook.ConstructEventOptions{
		Tolerance:                w.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isStripeSignatureErr(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: event %s without data", domain.ErrMalformedPayload, ev.ID)
	}

	switch ev.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		return stripeIntentEvent(ev, model.OutcomeSuccess)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return stripeIntentEvent(ev, model.OutcomeFailed)
	case stripe.EventTypeRefundUpdated:
		return stripeRefundEvent(ev)
	default:
		return nil, nil
	}
}

func isStripeSignatureErr(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func stripeIntentEvent(ev stripe.Event, outcome model.Outcome) (*model.PaymentEvent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", domain.ErrMalformedPayload, err)
	}
	md, err := model.CustomMetadataFromStripe(pi.Metadata)
	if err != nil {
		return nil, err
	}
	amount := model.FromMinorUnits(pi.Amount)
	e := model.PaymentEvent{
		DeliveryID:          ev.ID,
		ProviderReferenceID: pi.ID,
		Outcome:             outcome,
		Provider:            model.MethodStripe,
		BusinessType:        md.Type,
		UserID:              md.UserID,
		RentalID:            md.RentalID,
		Amount:              &amount,
		AuthContext:         md.Metadata.AuthContext,
	}
	if pi.LatestCharge != nil {
		e.ProviderCaptureID = pi.LatestCharge.ID
	}
	out, err := model.NewPaymentEvent(e)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func stripeRefundEvent(ev stripe.Event) (*model.PaymentEvent, error) {
	var rf stripe.Refund
	if err := json.Unmarshal(ev.Data.Raw, &rf); err != nil {
		return nil, fmt.Errorf("%w: refund: %v", domain.ErrMalformedPayload, err)
	}
	var outcome model.Outcome
	switch rf.Status {
	case stripe.RefundStatusSucceeded:
		outcome = model.OutcomeSuccess
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		outcome = model.OutcomeFailed
	default:
		return nil, nil
	}
	if rf.PaymentIntent == nil || rf.PaymentIntent.ID == "" {
		return nil, fmt.Errorf("%w: refund %s without payment intent", domain.ErrMalformedPayload, rf.ID)
	}
	md, err := model.CustomMetadataFromStripe(rf.Metadata)
	if err != nil {
		return nil, err
	}
	amount := model.FromMinorUnits(rf.Amount)
	out, err := model.NewPaymentEvent(model.PaymentEvent{
		DeliveryID:          ev.ID,
		ProviderReferenceID: rf.PaymentIntent.ID,
		ProviderCaptureID:   rf.ID,
		Outcome:             outcome,
		Provider:            model.MethodStripe,
		IsRefund:            true,
		BusinessType:        md.Type,
		UserID:              md.UserID,
		RentalID:            md.RentalID,
		Amount:              &amount,
		AuthContext:         md.Metadata.AuthContext,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
