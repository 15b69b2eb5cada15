// File: internal/usecase/rental_return_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/domain/ports/repository"
	"cycle-rental-payments/internal/domain/settlement"
	"cycle-rental-payments/internal/infra/logging"
	"cycle-rental-payments/internal/infra/metrics"
)

// Compile-time check
var _ RentalReturnUseCase = (*rentalReturnUC)(nil)

type ReturnCommand struct {
	RentalID    string
	UserID      string
	AuthContext string
	At          time.Time
}

type ReturnResult struct {
	Rental     *model.Rental
	Settlement settlement.Result
	Refund     *model.Refund
	// RefundError is set when the deposit refund could not be issued. The return
	// itself is already recorded.
	RefundError error
}

type RentalReturnUseCase interface {
	Return(ctx context.Context, cmd ReturnCommand) (*ReturnResult, error)
}

type rentalReturnUC struct {
	rentals   repository.RentalRepository
	inspector adapter.DamageInspector
	payments  PaymentUseCase
	alerter   adapter.OperatorAlerter
	log       *zerolog.Logger
}

func NewRentalReturnUseCase(rentals repository.RentalRepository, inspector adapter.DamageInspector, payments PaymentUseCase, alerter adapter.OperatorAlerter, logger *zerolog.Logger) *rentalReturnUC {
	return &rentalReturnUC{rentals: rentals, inspector: inspector, payments: payments, alerter: alerter, log: logger}
}

func (u *rentalReturnUC) Return(ctx context.Context, cmd ReturnCommand) (*ReturnResult, error) {
	defer logging.TraceDuration(u.log, "RentalReturnUC.Return")()
	if cmd.RentalID == "" {
		return nil, domain.ErrInvalidArgument
	}
	r, err := u.rentals.FindByID(ctx, repository.NoTX, cmd.RentalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRentalNotFound, cmd.RentalID)
		}
		return nil, err
	}
	if cmd.UserID != "" && r.UserID != cmd.UserID {
		return nil, fmt.Errorf("%w: %s", domain.ErrRentalNotFound, cmd.RentalID)
	}
	if r.Returned() {
		return nil, domain.ErrRentalAlreadyReturned
	}

	undamaged, err := u.inspector.Inspect(ctx, r.CycleID)
	if err != nil {
		return nil, fmt.Errorf("inspect cycle %s: %w", r.CycleID, err)
	}

	at := cmd.At
	if at.IsZero() {
		at = time.Now()
	}
	res := settlement.Settle(settlement.FromRental(r, at), undamaged)

	r.ActualReturnTime = &at
	r.TotalFare = res.TotalFare
	r.BalanceDue = res.BalanceDue
	r.PaymentStatus = res.PaymentStatus
	r.DamageStatus = res.DamageStatus
	r.CycleStatus = res.CycleStatus
	r.UpdatedAt = time.Now()
	if err := u.rentals.SaveReturn(ctx, repository.NoTX, r); err != nil {
		return nil, err
	}

	branch := "deposit_covers"
	if res.AdditionalPaymentDue.IsPositive() {
		branch = "balance_due"
	}
	metrics.IncSettlement(branch, !undamaged)

	log := logging.With(ctx, u.log).With().Str("rental_id", r.ID).Logger()
	log.Info().
		Str("late_fees", res.LateFees.StringFixed(2)).
		Str("refundable", res.RefundableDeposit.StringFixed(2)).
		Str("balance_due", res.BalanceDue.StringFixed(2)).
		Bool("undamaged", undamaged).
		Msg("rental returned")

	out := &ReturnResult{Rental: r, Settlement: res}
	if !res.IssueRefund {
		return out, nil
	}

	amount := res.RefundableDeposit
	ref, err := u.payments.Refund(ctx, RefundCommand{
		ReferenceID: r.PaymentReferenceID,
		RentalID:    r.ID,
		Amount:      &amount,
		UserID:      r.UserID,
		Type:        model.BusinessDepositRefund,
		AuthContext: cmd.AuthContext,
	})
	out.Refund = ref
	if err != nil {
		out.RefundError = err
		log.Error().Err(err).Str("reference_id", r.PaymentReferenceID).Msg("deposit refund not issued")
		if uerr := u.rentals.UpdatePaymentStatus(ctx, repository.NoTX, r.ID, model.RentalPaymentFailed); uerr != nil {
			log.Warn().Err(uerr).Msg("mark rental refund failed")
		} else {
			r.PaymentStatus = model.RentalPaymentFailed
		}
		if u.alerter != nil {
			text := fmt.Sprintf("deposit refund of %s for rental %s failed: %v", amount.StringFixed(2), r.ID, err)
			if aerr := u.alerter.Alert(ctx, text); aerr != nil {
				log.Warn().Err(aerr).Msg("operator alert failed")
			}
		}
	}
	return out, nil
}
