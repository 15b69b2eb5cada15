package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Provider is the webhook source. It shares its values with Method.
type Provider = Method

// PaymentEvent is the canonical form of one verified webhook delivery.
// It is built once by a provider adapter and then passed by value.
type PaymentEvent struct {
	DeliveryID          string // provider event id / transmission id
	ProviderReferenceID string
	ProviderCaptureID   string
	Outcome             Outcome
	Provider            Provider
	IsRefund            bool
	BusinessType        BusinessType
	UserID              string
	RentalID            string
	Amount              *decimal.Decimal
	AuthContext         string
}

// NewPaymentEvent validates the fields every consumer relies on.
func NewPaymentEvent(e PaymentEvent) (PaymentEvent, error) {
	if strings.TrimSpace(e.ProviderReferenceID) == "" {
		return PaymentEvent{}, fmt.Errorf("%w: missing reference id", domain.ErrMalformedPayload)
	}
	if strings.TrimSpace(e.UserID) == "" {
		return PaymentEvent{}, fmt.Errorf("%w: missing userId", domain.ErrMalformedPayload)
	}
	if e.Outcome != OutcomeSuccess && e.Outcome != OutcomeFailed {
		return PaymentEvent{}, fmt.Errorf("%w: unknown outcome %q", domain.ErrMalformedPayload, e.Outcome)
	}
	if !e.Provider.Valid() {
		return PaymentEvent{}, fmt.Errorf("%w: unknown provider %q", domain.ErrMalformedPayload, e.Provider)
	}
	if e.BusinessType == "" {
		e.BusinessType = BusinessSubscription
	}
	if !e.BusinessType.Valid() {
		return PaymentEvent{}, fmt.Errorf("%w: unknown type %q", domain.ErrMalformedPayload, e.BusinessType)
	}
	if e.Amount != nil {
		a := *e.Amount
		e.Amount = &a
	}
	return e, nil
}

// HasRental reports whether the event carries a rental id.
func (e PaymentEvent) HasRental() bool { return e.RentalID != "" }

// CustomMetadata is embedded into provider objects at charge time (PayPal custom_id,
// Stripe metadata) and read back from the webhook.
//
// The auth context travels through the provider as-is. Product owners have been told
// this puts a session credential into third-party held metadata.
type CustomMetadata struct {
	UserID   string       `json:"userId"`
	Type     BusinessType `json:"type"`
	RentalID string       `json:"rentalId,omitempty"`
	Metadata struct {
		AuthContext string `json:"authContext"`
	} `json:"metadata"`
}

func NewCustomMetadata(userID string, typ BusinessType, rentalID, authContext string) CustomMetadata {
	m := CustomMetadata{UserID: userID, Type: typ, RentalID: rentalID}
	m.Metadata.AuthContext = authContext
	return m
}

func (m CustomMetadata) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeCustomMetadata parses the blob; a missing or malformed blob is ErrMalformedPayload.
func DecodeCustomMetadata(raw string) (CustomMetadata, error) {
	var m CustomMetadata
	if strings.TrimSpace(raw) == "" {
		return m, fmt.Errorf("%w: empty custom_id", domain.ErrMalformedPayload)
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return m, fmt.Errorf("%w: invalid custom_id: %v", domain.ErrMalformedPayload, err)
	}
	if m.UserID == "" {
		return m, fmt.Errorf("%w: custom_id without userId", domain.ErrMalformedPayload)
	}
	return m, nil
}

// StripeMetadata flattens the blob into the string map Stripe objects carry.
func (m CustomMetadata) StripeMetadata() map[string]string {
	out := map[string]string{
		"userId":      m.UserID,
		"type":        string(m.Type),
		"authContext": m.Metadata.AuthContext,
	}
	if m.RentalID != "" {
		out["rentalId"] = m.RentalID
	}
	return out
}

func CustomMetadataFromStripe(md map[string]string) (CustomMetadata, error) {
	if md["userId"] == "" {
		return CustomMetadata{}, fmt.Errorf("%w: metadata without userId", domain.ErrMalformedPayload)
	}
	return NewCustomMetadata(md["userId"], BusinessType(md["type"]), md["rentalId"], md["authContext"]), nil
}
