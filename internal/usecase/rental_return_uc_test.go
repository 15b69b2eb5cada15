//go:build !integration

package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/usecase"
)

type returnEnv struct {
	*paymentEnv
	rentals   *memRentals
	inspector *fakeInspector
	alerter   *fakeAlerter
	uc        usecase.RentalReturnUseCase
}

var expected = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// newReturnEnv seeds one rental with a settled charge behind it.
func newReturnEnv(t *testing.T, rate, deposit int64) *returnEnv {
	t.Helper()
	pe := newPaymentEnv()
	p := pe.charge(t, model.MethodStripe, model.BusinessCycleRental, "rent-1")
	_, _, err := pe.ledger.ApplyOutcome(context.Background(), p.ReferenceID, model.OutcomeSuccess, "")
	require.NoError(t, err)

	e := &returnEnv{
		paymentEnv: pe,
		rentals: newMemRentals(&model.Rental{
			ID:                 "rent-1",
			CycleID:            "cycle-9",
			UserID:             "user-1",
			StartTime:          expected.Add(-2 * time.Hour),
			ExpectedReturnTime: expected,
			HourlyRate:         decimal.NewFromInt(rate),
			Deposit:            decimal.NewFromInt(deposit),
			TotalFare:          decimal.NewFromInt(2 * rate),
			PaymentStatus:      model.RentalPaymentPending,
			DamageStatus:       model.DamageUnchecked,
			CycleStatus:        model.CycleRented,
			PaymentMethod:      model.MethodStripe,
			PaymentReferenceID: p.ReferenceID,
		}),
		inspector: &fakeInspector{Undamaged: true},
		alerter:   &fakeAlerter{},
	}
	e.uc = usecase.NewRentalReturnUseCase(e.rentals, e.inspector, pe.uc, e.alerter, nopLogger())
	return e
}

func TestRentalReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("should refund the remaining deposit after late fees", func(t *testing.T) {
		e := newReturnEnv(t, 2, 15)

		res, err := e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1", AuthContext: "token=abc", At: expected.Add(3 * time.Hour)})
		require.NoError(t, err)

		assert.Equal(t, "6.00", res.Settlement.LateFees.StringFixed(2))
		assert.Equal(t, "9.00", res.Settlement.RefundableDeposit.StringFixed(2))
		require.NotNil(t, res.Refund)
		assert.NoError(t, res.RefundError)
		assert.True(t, res.Refund.Amount.Equal(decimal.NewFromInt(9)))

		calls := e.stripe.refundCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, model.BusinessDepositRefund, calls[0].Metadata.Type)
		assert.Equal(t, "token=abc", calls[0].Metadata.Metadata.AuthContext)

		stored := e.rentals.get("rent-1")
		require.NotNil(t, stored.ActualReturnTime)
		assert.Equal(t, model.RentalPaymentSettled, stored.PaymentStatus)
		assert.Equal(t, model.CycleAvailable, stored.CycleStatus)
		assert.Equal(t, model.DamageNone, stored.DamageStatus)
		assert.Equal(t, []string{"cycle-9"}, e.inspector.seen)
	})

	t.Run("should leave a balance due when fees exceed the deposit", func(t *testing.T) {
		e := newReturnEnv(t, 10, 15)

		res, err := e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1", At: expected.Add(5 * time.Hour)})
		require.NoError(t, err)

		assert.Equal(t, "50.00", res.Settlement.LateFees.StringFixed(2))
		assert.Equal(t, "35.00", res.Settlement.AdditionalPaymentDue.StringFixed(2))
		assert.Nil(t, res.Refund)
		assert.Empty(t, e.stripe.refundCalls())
		stored := e.rentals.get("rent-1")
		assert.Equal(t, model.RentalPaymentUnsettled, stored.PaymentStatus)
		assert.Equal(t, "35.00", stored.BalanceDue.StringFixed(2))
	})

	t.Run("should hold the deposit of a damaged cycle for manual release", func(t *testing.T) {
		e := newReturnEnv(t, 2, 15)
		e.inspector.Undamaged = false

		res, err := e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1", At: expected})
		require.NoError(t, err)

		assert.Equal(t, "15.00", res.Settlement.RefundableDeposit.StringFixed(2))
		assert.Contains(t, res.Settlement.Message, "manual release")
		assert.Nil(t, res.Refund, "deposit is held for manual release")
		assert.Empty(t, e.stripe.refundCalls())
		stored := e.rentals.get("rent-1")
		assert.Equal(t, model.CycleMaintenance, stored.CycleStatus)
		assert.Equal(t, model.DamageFound, stored.DamageStatus)
	})

	t.Run("should keep the return when the refund fails", func(t *testing.T) {
		e := newReturnEnv(t, 2, 15)
		e.stripe.RefundErr = errors.New("provider unavailable")

		res, err := e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1", At: expected})
		require.NoError(t, err)

		assert.Error(t, res.RefundError)
		stored := e.rentals.get("rent-1")
		assert.NotNil(t, stored.ActualReturnTime)
		assert.Equal(t, model.RentalPaymentFailed, stored.PaymentStatus)
		assert.Equal(t, 1, e.alerter.count())
	})

	t.Run("should log an alert that could not be sent and still return", func(t *testing.T) {
		e := newReturnEnv(t, 2, 15)
		e.stripe.RefundErr = errors.New("provider unavailable")
		e.alerter.Err = errors.New("telegram down")
		var logs bytes.Buffer
		logger := zerolog.New(&logs)
		uc := usecase.NewRentalReturnUseCase(e.rentals, e.inspector, e.paymentEnv.uc, e.alerter, &logger)

		res, err := uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1", At: expected})
		require.NoError(t, err)

		assert.Error(t, res.RefundError)
		assert.Equal(t, 1, e.alerter.count())
		assert.Contains(t, logs.String(), "operator alert failed")
		assert.Contains(t, logs.String(), "telegram down")
	})

	t.Run("should refuse a second return", func(t *testing.T) {
		e := newReturnEnv(t, 2, 15)
		_, err := e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1", At: expected})
		require.NoError(t, err)

		_, err = e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1", At: expected})
		assert.ErrorIs(t, err, domain.ErrRentalAlreadyReturned)
		assert.Len(t, e.stripe.refundCalls(), 1)
	})

	t.Run("should not return rentals of other users", func(t *testing.T) {
		e := newReturnEnv(t, 2, 15)
		_, err := e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-2"})
		assert.ErrorIs(t, err, domain.ErrRentalNotFound)

		_, err = e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "missing", UserID: "user-1"})
		assert.ErrorIs(t, err, domain.ErrRentalNotFound)
	})

	t.Run("should not record a return when inspection fails", func(t *testing.T) {
		e := newReturnEnv(t, 2, 15)
		e.inspector.Err = errors.New("inspection timeout")

		_, err := e.uc.Return(ctx, usecase.ReturnCommand{RentalID: "rent-1", UserID: "user-1"})
		require.Error(t, err)
		assert.Nil(t, e.rentals.get("rent-1").ActualReturnTime)
	})
}
