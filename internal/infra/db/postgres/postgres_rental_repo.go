package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/repository"
)

var _ repository.RentalRepository = (*rentalRepo)(nil)

type rentalRepo struct{ pool *pgxpool.Pool }

func NewRentalRepo(pool *pgxpool.Pool) *rentalRepo {
	return &rentalRepo{pool: pool}
}

func (r *rentalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Rental, error) {
	q := forUpdate(`
SELECT id, cycle_id, user_id, start_time, expected_return_time, actual_return_time,
       hourly_rate, deposit, total_fare, balance_due, payment_status, damage_status, cycle_status,
       payment_method, payment_reference_id, updated_at
FROM rentals WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	x := &model.Rental{}
	if err := row.Scan(&x.ID, &x.CycleID, &x.UserID, &x.StartTime, &x.ExpectedReturnTime, &x.ActualReturnTime,
		&x.HourlyRate, &x.Deposit, &x.TotalFare, &x.BalanceDue, &x.PaymentStatus, &x.DamageStatus, &x.CycleStatus,
		&x.PaymentMethod, &x.PaymentReferenceID, &x.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return x, nil
}

func (r *rentalRepo) SaveReturn(ctx context.Context, tx repository.Tx, x *model.Rental) error {
	// actual_return_time IS NULL keeps a concurrent second return from overwriting the first
	const q = `
UPDATE rentals
SET actual_return_time=$2, total_fare=$3, balance_due=$4, payment_status=$5, damage_status=$6, cycle_status=$7, updated_at=NOW()
WHERE id=$1 AND actual_return_time IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, x.ID, x.ActualReturnTime, x.TotalFare, x.BalanceDue, x.PaymentStatus, x.DamageStatus, x.CycleStatus)
	if err != nil {
		return execErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRentalAlreadyReturned
	}
	return nil
}

func (r *rentalRepo) UpdatePaymentStatus(ctx context.Context, tx repository.Tx, id string, status model.RentalPaymentStatus) error {
	const q = `UPDATE rentals SET payment_status=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status)
	if err != nil {
		return execErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
