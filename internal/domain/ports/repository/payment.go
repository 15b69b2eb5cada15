package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Create inserts the payment unless one with the same reference id exists.
	// created is false for a duplicate; the stored row is left untouched.
	Create(ctx context.Context, tx Tx, p *model.Payment) (created bool, err error)
	FindByReferenceID(ctx context.Context, tx Tx, referenceID string) (*model.Payment, error)
	// FindByReferenceOrRental matches reference_id OR rental_id, newest first.
	FindByReferenceOrRental(ctx context.Context, tx Tx, referenceID, rentalID string) (*model.Payment, error)
	// UpdateStatus moves a non-terminal payment to status and sets capture_id once.
	// It returns false when the row was already terminal.
	UpdateStatus(ctx context.Context, tx Tx, referenceID string, status model.PaymentStatus, captureID *string) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}

// -----------------------------
// Refunds
// -----------------------------

type RefundRepository interface {
	Create(ctx context.Context, tx Tx, r *model.Refund) error
	// FindByReferenceID returns the newest refund issued against a capture / intent.
	FindByReferenceID(ctx context.Context, tx Tx, referenceID string) (*model.Refund, error)
	FindByProviderID(ctx context.Context, tx Tx, providerID string) (*model.Refund, error)
	SetProviderID(ctx context.Context, tx Tx, id, providerID string) error
	// UpdateStatusIfPending returns false when the refund was already terminal.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.RefundStatus, providerID *string) (bool, error)
	HasCompleted(ctx context.Context, tx Tx, paymentID string) (bool, error)
	// SumOpen totals the pending and completed refunds of a payment.
	SumOpen(ctx context.Context, tx Tx, paymentID string) (decimal.Decimal, error)
}
