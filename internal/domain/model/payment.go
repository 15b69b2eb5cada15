package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // charge created on provider side, awaiting webhook
	PaymentStatusCaptured PaymentStatus = "captured" // PayPal order captured by the return URL, webhook not seen yet
	PaymentStatusSuccess  PaymentStatus = "success"  // provider confirmed the charge
	PaymentStatusFailed   PaymentStatus = "failed"   // provider declined / denied
)

// Terminal reports whether webhook reconciliation may still change the status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

func (s RefundStatus) Terminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusFailed
}

// Method is the payment provider a charge went through.
type Method string

const (
	MethodStripe Method = "stripe"
	MethodPayPal Method = "paypal"
)

func (m Method) Valid() bool { return m == MethodStripe || m == MethodPayPal }

// BusinessType tells which owning service a payment belongs to.
type BusinessType string

const (
	BusinessSubscription  BusinessType = "subscription"
	BusinessCycleRental   BusinessType = "cycle_rental"
	BusinessDepositRefund BusinessType = "deposit_refund"
)

func (t BusinessType) Valid() bool {
	switch t {
	case BusinessSubscription, BusinessCycleRental, BusinessDepositRefund:
		return true
	}
	return false
}

// Payment records a provider charge. ReferenceID is the provider order/intent id and
// the idempotency key for webhook reconciliation.
type Payment struct {
	ID          string
	UserID      string
	Method      Method
	Amount      decimal.Decimal
	Currency    string
	Type        BusinessType
	ReferenceID string
	CaptureID   *string // PayPal capture id, set once
	Status      PaymentStatus
	RentalID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Refund always points at an existing Payment that has a capture reference.
type Refund struct {
	ID          string
	PaymentID   string
	Amount      decimal.Decimal
	Status      RefundStatus
	ReferenceID string // capture id (PayPal) or payment intent id (Stripe)
	ProviderID  *string
	RentalID    *string
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RefundReference returns the provider handle a refund must be issued against.
// PayPal refunds go to the capture, Stripe refunds to the payment intent.
func (p *Payment) RefundReference() string {
	if p.Method == MethodPayPal {
		if p.CaptureID == nil {
			return ""
		}
		return *p.CaptureID
	}
	return p.ReferenceID
}
