//go:build !integration

package settlement_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/settlement"
)

var due = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func input(rate, deposit int64, late time.Duration) settlement.Input {
	return settlement.Input{
		ExpectedReturn: due,
		ActualReturn:   due.Add(late),
		HourlyRate:     decimal.NewFromInt(rate),
		Deposit:        decimal.NewFromInt(deposit),
		TotalFare:      decimal.NewFromInt(4),
	}
}

func TestSettle(t *testing.T) {
	t.Run("should deduct late fees from the deposit", func(t *testing.T) {
		res := settlement.Settle(input(2, 15, 3*time.Hour), true)

		assert.Equal(t, "3", res.ExtraHours.String())
		assert.Equal(t, "6.00", res.LateFees.StringFixed(2))
		assert.Equal(t, "9.00", res.RefundableDeposit.StringFixed(2))
		assert.True(t, res.AdditionalPaymentDue.IsZero())
		assert.Equal(t, "10.00", res.TotalFare.StringFixed(2))
		assert.Equal(t, model.RentalPaymentSettled, res.PaymentStatus)
		assert.True(t, res.IssueRefund)
		assert.Contains(t, res.Message, "9.00 has been issued")
	})

	t.Run("should ask for the difference when fees exceed the deposit", func(t *testing.T) {
		res := settlement.Settle(input(10, 15, 5*time.Hour), true)

		assert.Equal(t, "50.00", res.LateFees.StringFixed(2))
		assert.Equal(t, "35.00", res.AdditionalPaymentDue.StringFixed(2))
		assert.Equal(t, "35.00", res.BalanceDue.StringFixed(2))
		assert.True(t, res.RefundableDeposit.IsZero())
		assert.False(t, res.IssueRefund)
		assert.Equal(t, model.RentalPaymentUnsettled, res.PaymentStatus)
		assert.Contains(t, res.Message, "35.00 is due")
	})

	t.Run("should return the full deposit for an early or on-time return", func(t *testing.T) {
		for _, late := range []time.Duration{0, -time.Hour} {
			res := settlement.Settle(input(2, 15, late), true)
			assert.True(t, res.LateFees.IsZero())
			assert.Equal(t, "15.00", res.RefundableDeposit.StringFixed(2))
			assert.True(t, res.IssueRefund)
			assert.Equal(t, model.CycleAvailable, res.CycleStatus)
			assert.Equal(t, model.DamageNone, res.DamageStatus)
		}
	})

	t.Run("should settle without refund when fees equal the deposit", func(t *testing.T) {
		res := settlement.Settle(input(5, 15, 3*time.Hour), true)
		assert.True(t, res.RefundableDeposit.IsZero())
		assert.False(t, res.IssueRefund)
		assert.Equal(t, model.RentalPaymentSettled, res.PaymentStatus)
		assert.Contains(t, res.Message, "fully covers")
	})

	t.Run("should hold the deposit of a damaged cycle", func(t *testing.T) {
		clean := settlement.Settle(input(2, 15, 3*time.Hour), true)
		damaged := settlement.Settle(input(2, 15, 3*time.Hour), false)

		assert.True(t, clean.LateFees.Equal(damaged.LateFees))
		assert.True(t, clean.RefundableDeposit.Equal(damaged.RefundableDeposit))
		assert.False(t, damaged.IssueRefund)
		assert.Equal(t, model.CycleMaintenance, damaged.CycleStatus)
		assert.Equal(t, model.DamageFound, damaged.DamageStatus)
		assert.Contains(t, damaged.Message, "damage detected")
		assert.Contains(t, damaged.Message, "manual release")
	})

	t.Run("should charge fractional hours rounded to cents", func(t *testing.T) {
		res := settlement.Settle(input(3, 15, 20*time.Minute), true)
		assert.Equal(t, "1.00", res.LateFees.StringFixed(2))
		assert.Equal(t, "14.00", res.RefundableDeposit.StringFixed(2))

		res = settlement.Settle(input(1, 15, 10*time.Minute), true)
		assert.Equal(t, "0.17", res.LateFees.StringFixed(2))
	})
}

func TestFromRental(t *testing.T) {
	t.Run("should copy the pricing fields", func(t *testing.T) {
		r := &model.Rental{
			ExpectedReturnTime: due,
			HourlyRate:         decimal.NewFromInt(2),
			Deposit:            decimal.NewFromInt(15),
			TotalFare:          decimal.NewFromInt(4),
		}
		in := settlement.FromRental(r, due.Add(time.Hour))
		assert.Equal(t, due, in.ExpectedReturn)
		assert.Equal(t, time.Hour, in.ActualReturn.Sub(in.ExpectedReturn))
		assert.True(t, in.Deposit.Equal(r.Deposit))
	})
}
