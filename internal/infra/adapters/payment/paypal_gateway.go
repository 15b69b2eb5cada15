package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentStrategy = (*PayPalGateway)(nil)
	_ adapter.PayPalCapturer  = (*PayPalGateway)(nil)
)

// PayPalGateway drives the orders v2 API: create, capture, refund, lookup.
type PayPalGateway struct {
	api       *PayPalClient
	returnURL string
	cancelURL string
	log       *zerolog.Logger
}

func NewPayPalGateway(api *PayPalClient, returnURL, cancelURL string, logger *zerolog.Logger) *PayPalGateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PayPalGateway{api: api, returnURL: returnURL, cancelURL: cancelURL, log: logger}
}

func (g *PayPalGateway) Method() model.Method { return model.MethodPayPal }

type paypalCapture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o paypalOrder) capture() (paypalCapture, bool) {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0], true
		}
	}
	return paypalCapture{}, false
}

func (o paypalOrder) link(rels ...string) string {
	for _, l := range o.Links {
		for _, r := range rels {
			if l.Rel == r {
				return l.Href
			}
		}
	}
	return ""
}

func (g *PayPalGateway) ProcessPayment(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	custom, trimmed, err := customID(req.Metadata)
	if err != nil {
		return adapter.ChargeResult{}, err
	}
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"amount": paypalAmount{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        req.Amount.StringFixed(2),
			},
			"custom_id": custom,
		}},
		"application_context": map[string]string{
			"return_url": g.returnURL,
			"cancel_url": g.cancelURL,
		},
	}
	var out paypalOrder
	if err := g.api.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return adapter.ChargeResult{}, fmt.Errorf("paypal create order: %w", err)
	}
	if trimmed {
		g.log.Warn().Str("reference_id", out.ID).Msg("auth context dropped from paypal custom_id")
	}
	return adapter.ChargeResult{
		ReferenceID: out.ID,
		ApprovalURL: out.link("approve", "payer-action"),
		Status:      model.PaymentStatusPending,
	}, nil
}

// Capture collects an approved order and returns the capture id refunds are issued against.
func (g *PayPalGateway) Capture(ctx context.Context, orderID string) (string, error) {
	var out paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := g.api.do(ctx, http.MethodPost, path, map[string]string{}, &out); err != nil {
		return "", fmt.Errorf("paypal capture order: %w", err)
	}
	c, ok := out.capture()
	if !ok || c.ID == "" {
		return "", fmt.Errorf("%w: order %s", domain.ErrCaptureMissing, orderID)
	}
	return c.ID, nil
}

func (g *PayPalGateway) ProcessRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	body := map[string]interface{}{
		"amount": paypalAmount{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        req.Amount.StringFixed(2),
		},
	}
	custom, trimmed, err := customID(req.Metadata)
	switch {
	case err != nil:
		g.log.Warn().Err(err).Str("reference_id", req.Reference).Msg("refund sent without custom_id")
	case trimmed:
		g.log.Warn().Str("reference_id", req.Reference).Msg("auth context dropped from paypal custom_id")
		fallthrough
	default:
		body["custom_id"] = custom
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := "/v2/payments/captures/" + url.PathEscape(req.Reference) + "/refund"
	if err := g.api.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return adapter.RefundResult{}, fmt.Errorf("paypal refund capture: %w", err)
	}
	return adapter.RefundResult{ProviderID: out.ID, Status: paypalRefundStatus(out.Status)}, nil
}

func (g *PayPalGateway) FetchStatus(ctx context.Context, referenceID string) (adapter.StatusResult, error) {
	var out paypalOrder
	if err := g.api.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(referenceID), nil, &out); err != nil {
		return adapter.StatusResult{}, fmt.Errorf("paypal get order: %w", err)
	}
	var res adapter.StatusResult
	c, captured := out.capture()
	if captured {
		res.CaptureID = c.ID
	}
	switch {
	case captured && c.Status == "COMPLETED":
		res.Outcome, res.Final = model.OutcomeSuccess, true
	case captured && (c.Status == "DECLINED" || c.Status == "FAILED"):
		res.Outcome, res.Final = model.OutcomeFailed, true
	case out.Status == "VOIDED":
		res.Outcome, res.Final = model.OutcomeFailed, true
	}
	return res, nil
}

// customID encodes md for a PayPal custom_id, which is capped at 127
// characters. The auth context goes first when the blob does not fit.
func customID(md model.CustomMetadata) (custom string, trimmed bool, err error) {
	custom, err = md.Encode()
	if err != nil {
		return "", false, err
	}
	if len(custom) <= paypalCustomIDMax {
		return custom, false, nil
	}
	md.Metadata.AuthContext = ""
	custom, err = md.Encode()
	if err != nil {
		return "", false, err
	}
	if len(custom) > paypalCustomIDMax {
		return "", false, fmt.Errorf("%w: paypal custom_id is %d characters, limit %d",
			domain.ErrInvalidArgument, len(custom), paypalCustomIDMax)
	}
	return custom, true, nil
}

const paypalCustomIDMax = 127

func paypalRefundStatus(s string) model.RefundStatus {
	switch s {
	case "COMPLETED":
		return model.RefundStatusCompleted
	case "FAILED", "CANCELLED":
		return model.RefundStatusFailed
	default:
		return model.RefundStatusPending
	}
}
