package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type RentalPaymentStatus string

const (
	RentalPaymentSettled   RentalPaymentStatus = "settled"
	RentalPaymentUnsettled RentalPaymentStatus = "unsettled"
	RentalPaymentPending   RentalPaymentStatus = "pending"
	RentalPaymentFailed    RentalPaymentStatus = "failed"
)

type DamageStatus string

const (
	DamageUnchecked DamageStatus = "unchecked"
	DamageNone      DamageStatus = "undamaged"
	DamageFound     DamageStatus = "damaged"
)

type CycleStatus string

const (
	CycleRented      CycleStatus = "rented"
	CycleAvailable   CycleStatus = "available"
	CycleMaintenance CycleStatus = "maintenance"
)

// Rental is owned by the cycle service. Settlement reads the pricing fields and
// writes back the return fields.
type Rental struct {
	ID                 string
	CycleID            string
	UserID             string
	StartTime          time.Time
	ExpectedReturnTime time.Time
	ActualReturnTime   *time.Time
	HourlyRate         decimal.Decimal
	Deposit            decimal.Decimal
	TotalFare          decimal.Decimal
	BalanceDue         decimal.Decimal
	PaymentStatus      RentalPaymentStatus
	DamageStatus       DamageStatus
	CycleStatus        CycleStatus
	PaymentMethod      Method
	PaymentReferenceID string // the charge that collected fare + deposit
	UpdatedAt          time.Time
}

func (r *Rental) Returned() bool { return r.ActualReturnTime != nil }
