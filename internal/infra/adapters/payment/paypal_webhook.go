package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
)

var _ adapter.WebhookVerifier = (*PayPalWebhook)(nil)

// PayPal transmission headers, as sent (Go canonicalizes on lookup).
const (
	hdrTransmissionID   = "Paypal-Transmission-Id"
	hdrTransmissionTime = "Paypal-Transmission-Time"
	hdrTransmissionSig  = "Paypal-Transmission-Sig"
	hdrCertURL          = "Paypal-Cert-Url"
	hdrAuthAlgo         = "Paypal-Auth-Algo"
)

const (
	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	eventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	eventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

// PayPalWebhook asks PayPal to verify each delivery against the configured webhook id.
type PayPalWebhook struct {
	api       *PayPalClient
	webhookID string
}

func NewPayPalWebhook(api *PayPalClient, webhookID string) *PayPalWebhook {
	return &PayPalWebhook{api: api, webhookID: webhookID}
}

func (w *PayPalWebhook) Provider() model.Provider { return model.MethodPayPal }

type paypalEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type paypalResource struct {
	ID                string        `json:"id"`
	Status            string        `json:"status"`
	CustomID          string        `json:"custom_id"`
	Amount            *paypalAmount `json:"amount"`
	Links             []paypalLink  `json:"links"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

func (w *PayPalWebhook) Verify(ctx context.Context, req adapter.WebhookRequest) (*model.PaymentEvent, error) {
	var ev paypalEvent
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if err := w.verifySignature(ctx, req.Header, req.Body); err != nil {
		return nil, err
	}

	switch ev.EventType {
	case eventCaptureCompleted:
		return paypalCaptureEvent(ev, model.OutcomeSuccess)
	case eventCaptureDenied:
		return paypalCaptureEvent(ev, model.OutcomeFailed)
	case eventCaptureRefunded:
		return paypalRefundEvent(ev)
	default:
		return nil, nil
	}
}

func (w *PayPalWebhook) verifySignature(ctx context.Context, h http.Header, body []byte) error {
	in := map[string]interface{}{
		"transmission_id":   h.Get(hdrTransmissionID),
		"transmission_time": h.Get(hdrTransmissionTime),
		"transmission_sig":  h.Get(hdrTransmissionSig),
		"cert_url":          h.Get(hdrCertURL),
		"auth_algo":         h.Get(hdrAuthAlgo),
		"webhook_id":        w.webhookID,
		"webhook_event":     json.RawMessage(body),
	}
	for _, k := range []string{"transmission_id", "transmission_time", "transmission_sig", "cert_url", "auth_algo"} {
		if in[k] == "" {
			return fmt.Errorf("%w: missing %s header", domain.ErrSignatureInvalid, k)
		}
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := w.api.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", in, &out); err != nil {
		var apiErr *PayPalAPIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
		}
		return fmt.Errorf("paypal verify signature: %w", err)
	}
	if out.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: verification status %q", domain.ErrSignatureInvalid, out.VerificationStatus)
	}
	return nil
}

func decodeResource(ev paypalEvent) (paypalResource, model.CustomMetadata, *decimal.Decimal, error) {
	var res paypalResource
	if err := json.Unmarshal(ev.Resource, &res); err != nil {
		return res, model.CustomMetadata{}, nil, fmt.Errorf("%w: resource: %v", domain.ErrMalformedPayload, err)
	}
	if res.ID == "" {
		return res, model.CustomMetadata{}, nil, fmt.Errorf("%w: resource without id", domain.ErrMalformedPayload)
	}
	md, err := model.DecodeCustomMetadata(res.CustomID)
	if err != nil {
		return res, md, nil, err
	}
	var amount *decimal.Decimal
	if res.Amount != nil && res.Amount.Value != "" {
		d, err := decimal.NewFromString(res.Amount.Value)
		if err != nil {
			return res, md, nil, fmt.Errorf("%w: amount %q", domain.ErrMalformedPayload, res.Amount.Value)
		}
		amount = &d
	}
	return res, md, amount, nil
}

func paypalCaptureEvent(ev paypalEvent, outcome model.Outcome) (*model.PaymentEvent, error) {
	res, md, amount, err := decodeResource(ev)
	if err != nil {
		return nil, err
	}
	ref := res.SupplementaryData.RelatedIDs.OrderID
	if ref == "" {
		ref = res.ID
	}
	out, err := model.NewPaymentEvent(model.PaymentEvent{
		DeliveryID:          ev.ID,
		ProviderReferenceID: ref,
		ProviderCaptureID:   res.ID,
		Outcome:             outcome,
		Provider:            model.MethodPayPal,
		BusinessType:        md.Type,
		UserID:              md.UserID,
		RentalID:            md.RentalID,
		Amount:              amount,
		AuthContext:         md.Metadata.AuthContext,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// paypalRefundEvent reads a refund resource. The refunded capture is only reachable
// through the "up" link.
func paypalRefundEvent(ev paypalEvent) (*model.PaymentEvent, error) {
	res, md, amount, err := decodeResource(ev)
	if err != nil {
		return nil, err
	}
	captureID := ""
	for _, l := range res.Links {
		if l.Rel == "up" {
			captureID = lastPathSegment(l.Href)
			break
		}
	}
	if captureID == "" {
		return nil, fmt.Errorf("%w: refund %s without capture link", domain.ErrMalformedPayload, res.ID)
	}
	outcome := model.OutcomeSuccess
	if res.Status == "FAILED" || res.Status == "CANCELLED" {
		outcome = model.OutcomeFailed
	}
	out, err := model.NewPaymentEvent(model.PaymentEvent{
		DeliveryID:          ev.ID,
		ProviderReferenceID: captureID,
		ProviderCaptureID:   res.ID,
		Outcome:             outcome,
		Provider:            model.MethodPayPal,
		IsRefund:            true,
		BusinessType:        md.Type,
		UserID:              md.UserID,
		RentalID:            md.RentalID,
		Amount:              amount,
		AuthContext:         md.Metadata.AuthContext,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func lastPathSegment(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
