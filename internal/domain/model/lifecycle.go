package model

import (
	"fmt"

	"cycle-rental-payments/internal/domain"
)

// PaymentState is the lifecycle position of a single payment. It is derived from the
// stored Payment status plus whether a refund has completed against it.
type PaymentState string

const (
	StatePending  PaymentState = "pending"
	StateApproved PaymentState = "approved"
	StateCaptured PaymentState = "captured"
	StateRefunded PaymentState = "refunded"
	StateFailed   PaymentState = "failed"
)

// transitions is the complete lifecycle table.
//
//	pending  -> approved | captured | failed
//	captured -> approved | refunded | failed
//	approved -> refunded
//	refunded, failed: terminal
var transitions = map[PaymentState][]PaymentState{
	StatePending:  {StateApproved, StateCaptured, StateFailed},
	StateCaptured: {StateApproved, StateRefunded, StateFailed},
	StateApproved: {StateRefunded},
	StateRefunded: nil,
	StateFailed:   nil,
}

// StateOf maps a stored payment onto the lifecycle.
func StateOf(p *Payment, refunded bool) PaymentState {
	switch p.Status {
	case PaymentStatusFailed:
		return StateFailed
	case PaymentStatusPending:
		return StatePending
	}
	if refunded {
		return StateRefunded
	}
	if p.Status == PaymentStatusCaptured {
		return StateCaptured
	}
	return StateApproved
}

// CheckTransition returns ErrInvalidStateTransition when to is not reachable from from.
func CheckTransition(from, to PaymentState) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, from, to)
}

// CanProcessPayment allows charging only a payment that is still pending.
func CanProcessPayment(s PaymentState) error {
	if s != StatePending {
		return fmt.Errorf("%w: cannot process payment in %s state", domain.ErrInvalidStateTransition, s)
	}
	return nil
}

// CanProcessRefund allows refunds only once the money was collected.
func CanProcessRefund(s PaymentState) error {
	if s != StateApproved && s != StateCaptured {
		return fmt.Errorf("%w: cannot process refund in %s state", domain.ErrInvalidStateTransition, s)
	}
	return nil
}

// TargetState is the lifecycle state a webhook outcome moves a charge to.
func TargetState(o Outcome) PaymentState {
	if o == OutcomeSuccess {
		return StateApproved
	}
	return StateFailed
}

// StatusFor maps an outcome onto the stored payment status.
func StatusFor(o Outcome) PaymentStatus {
	if o == OutcomeSuccess {
		return PaymentStatusSuccess
	}
	return PaymentStatusFailed
}

// RefundStatusFor maps an outcome onto the stored refund status.
func RefundStatusFor(o Outcome) RefundStatus {
	if o == OutcomeSuccess {
		return RefundStatusCompleted
	}
	return RefundStatusFailed
}
