// Package settlement computes what a rider owes or gets back when a rental is returned.
// Everything here is pure and safe to call concurrently.
package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain/model"
)

// Input is the slice of a rental the calculation depends on.
type Input struct {
	ExpectedReturn time.Time
	ActualReturn   time.Time
	HourlyRate     decimal.Decimal
	Deposit        decimal.Decimal
	TotalFare      decimal.Decimal
}

// Result carries the amounts and the rental fields to write back.
type Result struct {
	ExtraHours           decimal.Decimal
	LateFees             decimal.Decimal
	RefundableDeposit    decimal.Decimal
	AdditionalPaymentDue decimal.Decimal
	BalanceDue           decimal.Decimal
	TotalFare            decimal.Decimal
	PaymentStatus        model.RentalPaymentStatus
	CycleStatus          model.CycleStatus
	DamageStatus         model.DamageStatus
	IssueRefund          bool
	Message              string
}

var hour = decimal.NewFromInt(int64(time.Hour))

// FromRental builds the calculation input for a return happening at actual.
func FromRental(r *model.Rental, actual time.Time) Input {
	return Input{
		ExpectedReturn: r.ExpectedReturnTime,
		ActualReturn:   actual,
		HourlyRate:     r.HourlyRate,
		Deposit:        r.Deposit,
		TotalFare:      r.TotalFare,
	}
}

// Settle applies the late-fee policy. The amounts do not depend on undamaged; it decides
// the cycle status and whether the deposit refund is issued right away.
func Settle(in Input, undamaged bool) Result {
	var res Result

	late := in.ActualReturn.Sub(in.ExpectedReturn)
	if late < 0 {
		late = 0
	}
	res.ExtraHours = decimal.NewFromInt(int64(late)).Div(hour)
	res.LateFees = model.RoundCents(res.ExtraHours.Mul(in.HourlyRate))
	res.TotalFare = model.RoundCents(in.TotalFare.Add(res.LateFees))

	deposit := model.RoundCents(in.Deposit)
	if res.LateFees.LessThanOrEqual(deposit) {
		res.RefundableDeposit = deposit.Sub(res.LateFees)
		res.BalanceDue = decimal.Zero
		res.PaymentStatus = model.RentalPaymentSettled
		// a damaged cycle's deposit is held for manual release
		res.IssueRefund = res.RefundableDeposit.IsPositive() && undamaged
	} else {
		res.AdditionalPaymentDue = res.LateFees.Sub(deposit)
		res.BalanceDue = res.AdditionalPaymentDue
		res.PaymentStatus = model.RentalPaymentUnsettled
	}

	if undamaged {
		res.CycleStatus = model.CycleAvailable
		res.DamageStatus = model.DamageNone
	} else {
		res.CycleStatus = model.CycleMaintenance
		res.DamageStatus = model.DamageFound
	}
	res.Message = message(res, undamaged)
	return res
}

func message(res Result, undamaged bool) string {
	var msg string
	if undamaged {
		msg = "Cycle returned successfully."
	} else {
		msg = "Cycle returned with damage detected. The company will contact you for follow-up."
	}
	if res.LateFees.IsPositive() {
		msg += fmt.Sprintf(" Late fees: %s.", res.LateFees.StringFixed(2))
	}
	switch {
	case res.AdditionalPaymentDue.IsPositive():
		msg += fmt.Sprintf(" Late fees exceed the deposit; %s is due and will be collected in hand.", res.AdditionalPaymentDue.StringFixed(2))
	case res.IssueRefund:
		msg += fmt.Sprintf(" A deposit refund of %s has been issued.", res.RefundableDeposit.StringFixed(2))
	case res.RefundableDeposit.IsPositive():
		msg += fmt.Sprintf(" A deposit refund of %s has been calculated and needs manual release by the company.", res.RefundableDeposit.StringFixed(2))
	default:
		msg += " The deposit fully covers the late fees."
	}
	return msg
}
