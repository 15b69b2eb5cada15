package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentStrategy = (*StripeGateway)(nil)

// StripeGateway opens payment intents and refunds through the Stripe API.
type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, backends)}
}

func (g *StripeGateway) Method() model.Method { return model.MethodStripe }

func (g *StripeGateway) ProcessPayment(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(model.ToMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata.StripeMetadata() {
		params.AddMetadata(k, v)
	}
	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return adapter.ChargeResult{}, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return adapter.ChargeResult{
		ReferenceID:  pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       model.PaymentStatusPending,
	}, nil
}

func (g *StripeGateway) ProcessRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
		Amount:        stripe.Int64(model.ToMinorUnits(req.Amount)),
	}
	params.Context = ctx
	for k, v := range req.Metadata.StripeMetadata() {
		params.AddMetadata(k, v)
	}
	rf, err := g.sc.Refunds.New(params)
	if err != nil {
		return adapter.RefundResult{}, fmt.Errorf("stripe create refund: %w", err)
	}
	return adapter.RefundResult{ProviderID: rf.ID, Status: stripeRefundStatus(rf.Status)}, nil
}

func (g *StripeGateway) FetchStatus(ctx context.Context, referenceID string) (adapter.StatusResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.sc.PaymentIntents.Get(referenceID, params)
	if err != nil {
		return adapter.StatusResult{}, fmt.Errorf("stripe get payment intent: %w", err)
	}
	var res adapter.StatusResult
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Outcome, res.Final = model.OutcomeSuccess, true
	case stripe.PaymentIntentStatusCanceled:
		res.Outcome, res.Final = model.OutcomeFailed, true
	}
	if pi.LatestCharge != nil {
		res.CaptureID = pi.LatestCharge.ID
	}
	return res, nil
}

func stripeRefundStatus(s stripe.RefundStatus) model.RefundStatus {
	switch s {
	case stripe.RefundStatusSucceeded:
		return model.RefundStatusCompleted
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return model.RefundStatusFailed
	default:
		return model.RefundStatusPending
	}
}
