// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/repository"
	"cycle-rental-payments/internal/infra/logging"
	"cycle-rental-payments/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase owns Payment and Refund records. Reference ids are the idempotency
// keys: replaying an outcome never changes a terminal record twice.
type LedgerUseCase interface {
	RecordCharge(ctx context.Context, p *model.Payment) (created bool, err error)
	// ApplyOutcome reconciles a charge webhook. applied is false when the record was
	// already terminal (redelivery or a losing concurrent delivery).
	ApplyOutcome(ctx context.Context, referenceID string, outcome model.Outcome, captureID string) (p *model.Payment, applied bool, err error)
	ApplyCapture(ctx context.Context, referenceID, captureID string) (*model.Payment, error)
	// RecordRefund stores a pending refund against p. It fails when the amount is
	// more than what is left once pending and completed refunds are taken off.
	RecordRefund(ctx context.Context, p *model.Payment, r *model.Refund) error
	// FailRefund marks one pending refund failed by its id.
	FailRefund(ctx context.Context, refundID string) (bool, error)
	// ApplyRefundOutcome reconciles a refund webhook, matching by provider refund id
	// first and by the capture / intent reference second.
	ApplyRefundOutcome(ctx context.Context, referenceID, providerRefundID string, status model.RefundStatus) (r *model.Refund, applied bool, err error)
	// AttachProviderRefund records the provider's refund id on a pending refund so
	// later webhooks can match it exactly.
	AttachProviderRefund(ctx context.Context, refundID, providerRefundID string) error
	FindByReference(ctx context.Context, referenceID string) (*model.Payment, error)
	FindForRefund(ctx context.Context, referenceID, rentalID string) (*model.Payment, error)
	State(ctx context.Context, p *model.Payment) (model.PaymentState, error)
}

type ledgerUC struct {
	payments repository.PaymentRepository
	refunds  repository.RefundRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewLedgerUseCase(payments repository.PaymentRepository, refunds repository.RefundRepository, tm repository.TransactionManager, logger *zerolog.Logger) *ledgerUC {
	return &ledgerUC{payments: payments, refunds: refunds, tm: tm, log: logger}
}

func (u *ledgerUC) RecordCharge(ctx context.Context, p *model.Payment) (bool, error) {
	if p.ReferenceID == "" || p.UserID == "" || !p.Amount.IsPositive() {
		return false, domain.ErrInvalidArgument
	}
	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}
	p.CreatedAt, p.UpdatedAt = now, now

	created, err := u.payments.Create(ctx, repository.NoTX, p)
	if err != nil {
		return false, fmt.Errorf("record charge %s: %w", p.ReferenceID, err)
	}
	if !created {
		logging.With(ctx, u.log).Info().Str("reference_id", p.ReferenceID).Msg("charge already recorded")
		return false, nil
	}
	metrics.IncPayment(string(p.Status))
	return true, nil
}

func (u *ledgerUC) ApplyOutcome(ctx context.Context, referenceID string, outcome model.Outcome, captureID string) (*model.Payment, bool, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.ApplyOutcome")()
	log := logging.With(ctx, u.log).With().Str("reference_id", referenceID).Logger()

	target := model.StatusFor(outcome)
	var (
		out     *model.Payment
		applied bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByReferenceID(ctx, tx, referenceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: reference %s", domain.ErrPaymentNotFound, referenceID)
			}
			return err
		}
		out = p

		if p.Status.Terminal() {
			if p.Status != target {
				log.Warn().Str("stored", string(p.Status)).Str("incoming", string(target)).
					Msg("conflicting outcome for terminal payment ignored")
			}
			return nil
		}
		if err := model.CheckTransition(model.StateOf(p, false), model.TargetState(outcome)); err != nil {
			return err
		}

		var capture *string
		if captureID != "" {
			capture = &captureID
		}
		ok, err := u.payments.UpdateStatus(ctx, tx, referenceID, target, capture)
		if err != nil {
			return err
		}
		if !ok {
			// lost the race against a concurrent delivery for the same reference
			return nil
		}
		applied = true
		p.Status = target
		if p.CaptureID == nil && capture != nil {
			p.CaptureID = capture
		}
		p.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return out, false, err
	}
	if applied {
		metrics.IncPayment(string(target))
		log.Info().Str("status", string(target)).Msg("payment reconciled")
	} else {
		log.Debug().Msg("payment already terminal; outcome not re-applied")
	}
	return out, applied, nil
}

func (u *ledgerUC) ApplyCapture(ctx context.Context, referenceID, captureID string) (*model.Payment, error) {
	if captureID == "" {
		return nil, domain.ErrCaptureMissing
	}
	var out *model.Payment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByReferenceID(ctx, tx, referenceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: reference %s", domain.ErrPaymentNotFound, referenceID)
			}
			return err
		}
		out = p
		if err := model.CheckTransition(model.StateOf(p, false), model.StateCaptured); err != nil {
			return err
		}
		ok, err := u.payments.UpdateStatus(ctx, tx, referenceID, model.PaymentStatusCaptured, &captureID)
		if err != nil {
			return err
		}
		if ok {
			p.Status = model.PaymentStatusCaptured
			p.CaptureID = &captureID
			p.UpdatedAt = time.Now()
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	metrics.IncPayment(string(model.PaymentStatusCaptured))
	return out, nil
}

func (u *ledgerUC) RecordRefund(ctx context.Context, p *model.Payment, r *model.Refund) error {
	if p == nil || r.ReferenceID == "" || !r.Amount.IsPositive() {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.PaymentID = p.ID
	r.Status = model.RefundStatusPending
	r.CreatedAt, r.UpdatedAt = now, now

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// The payment row lock orders concurrent refunds of the same charge.
		locked, err := u.payments.FindByReferenceID(ctx, tx, p.ReferenceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: reference %s", domain.ErrPaymentNotFound, p.ReferenceID)
			}
			return err
		}
		open, err := u.refunds.SumOpen(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		left := locked.Amount.Sub(open)
		if r.Amount.GreaterThan(left) {
			return fmt.Errorf("%w: refund amount %s exceeds the %s left on %s",
				domain.ErrInvalidArgument, r.Amount.StringFixed(2), left.StringFixed(2), locked.ReferenceID)
		}
		return u.refunds.Create(ctx, tx, r)
	})
	if err != nil {
		return fmt.Errorf("record refund for %s: %w", r.ReferenceID, err)
	}
	metrics.IncRefund(string(r.Status))
	return nil
}

func (u *ledgerUC) FailRefund(ctx context.Context, refundID string) (bool, error) {
	if refundID == "" {
		return false, domain.ErrInvalidArgument
	}
	ok, err := u.refunds.UpdateStatusIfPending(ctx, repository.NoTX, refundID, model.RefundStatusFailed, nil)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.IncRefund(string(model.RefundStatusFailed))
	}
	return ok, nil
}

func (u *ledgerUC) ApplyRefundOutcome(ctx context.Context, referenceID, providerRefundID string, status model.RefundStatus) (*model.Refund, bool, error) {
	log := logging.With(ctx, u.log).With().Str("reference_id", referenceID).Str("refund_id", providerRefundID).Logger()

	var (
		out     *model.Refund
		applied bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		r, err := u.findRefund(ctx, tx, referenceID, providerRefundID)
		if err != nil {
			return err
		}
		out = r
		if r.Status.Terminal() {
			if r.Status != status {
				log.Warn().Str("stored", string(r.Status)).Str("incoming", string(status)).
					Msg("conflicting outcome for terminal refund ignored")
			}
			return nil
		}
		var pid *string
		if providerRefundID != "" && r.ProviderID == nil {
			pid = &providerRefundID
		}
		ok, err := u.refunds.UpdateStatusIfPending(ctx, tx, r.ID, status, pid)
		if err != nil {
			return err
		}
		if ok {
			applied = true
			r.Status = status
			if pid != nil {
				r.ProviderID = pid
			}
			r.UpdatedAt = time.Now()
		}
		return nil
	})
	if err != nil {
		return out, false, err
	}
	if applied {
		metrics.IncRefund(string(status))
		log.Info().Str("status", string(status)).Msg("refund reconciled")
	}
	return out, applied, nil
}

func (u *ledgerUC) findRefund(ctx context.Context, tx repository.Tx, referenceID, providerRefundID string) (*model.Refund, error) {
	if providerRefundID != "" {
		r, err := u.refunds.FindByProviderID(ctx, tx, providerRefundID)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	r, err := u.refunds.FindByReferenceID(ctx, tx, referenceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: reference %s", domain.ErrRefundNotFound, referenceID)
		}
		return nil, err
	}
	return r, nil
}

func (u *ledgerUC) AttachProviderRefund(ctx context.Context, refundID, providerRefundID string) error {
	if refundID == "" || providerRefundID == "" {
		return domain.ErrInvalidArgument
	}
	return u.refunds.SetProviderID(ctx, repository.NoTX, refundID, providerRefundID)
}

func (u *ledgerUC) FindByReference(ctx context.Context, referenceID string) (*model.Payment, error) {
	p, err := u.payments.FindByReferenceID(ctx, repository.NoTX, referenceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: reference %s", domain.ErrPaymentNotFound, referenceID)
	}
	return p, err
}

func (u *ledgerUC) FindForRefund(ctx context.Context, referenceID, rentalID string) (*model.Payment, error) {
	if referenceID == "" && rentalID == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.payments.FindByReferenceOrRental(ctx, repository.NoTX, referenceID, rentalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: reference %q rental %q", domain.ErrPaymentNotFound, referenceID, rentalID)
	}
	return p, err
}

func (u *ledgerUC) State(ctx context.Context, p *model.Payment) (model.PaymentState, error) {
	refunded, err := u.refunds.HasCompleted(ctx, repository.NoTX, p.ID)
	if err != nil {
		return "", err
	}
	return model.StateOf(p, refunded), nil
}
