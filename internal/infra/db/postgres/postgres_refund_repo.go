package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/repository"
)

var _ repository.RefundRepository = (*refundRepo)(nil)

const refundCols = `id, payment_id, amount, status, reference_id, provider_id, rental_id, user_id, created_at, updated_at`

type refundRepo struct{ pool *pgxpool.Pool }

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

func scanRefund(row scanner) (*model.Refund, error) {
	f := &model.Refund{}
	if err := row.Scan(&f.ID, &f.PaymentID, &f.Amount, &f.Status, &f.ReferenceID, &f.ProviderID, &f.RentalID, &f.UserID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return f, nil
}

func (r *refundRepo) Create(ctx context.Context, tx repository.Tx, f *model.Refund) error {
	const q = `INSERT INTO refunds (` + refundCols + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q, f.ID, f.PaymentID, f.Amount, f.Status, f.ReferenceID, f.ProviderID, f.RentalID, f.UserID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return execErr(err)
	}
	return nil
}

func (r *refundRepo) FindByReferenceID(ctx context.Context, tx repository.Tx, referenceID string) (*model.Refund, error) {
	q := forUpdate(`SELECT `+refundCols+` FROM refunds WHERE reference_id=$1 ORDER BY created_at DESC LIMIT 1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, referenceID)
	if err != nil {
		return nil, err
	}
	return scanRefund(row)
}

func (r *refundRepo) FindByProviderID(ctx context.Context, tx repository.Tx, providerID string) (*model.Refund, error) {
	q := forUpdate(`SELECT `+refundCols+` FROM refunds WHERE provider_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, providerID)
	if err != nil {
		return nil, err
	}
	return scanRefund(row)
}

func (r *refundRepo) SetProviderID(ctx context.Context, tx repository.Tx, id, providerID string) error {
	const q = `UPDATE refunds SET provider_id=$2, updated_at=NOW() WHERE id=$1 AND provider_id IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, providerID)
	if err != nil {
		return execErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *refundRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.RefundStatus, providerID *string) (bool, error) {
	const q = `
UPDATE refunds
SET status=$2, provider_id=COALESCE(provider_id, $3), updated_at=NOW()
WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, providerID)
	if err != nil {
		return false, execErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *refundRepo) HasCompleted(ctx context.Context, tx repository.Tx, paymentID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM refunds WHERE payment_id=$1 AND status='completed');`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *refundRepo) SumOpen(ctx context.Context, tx repository.Tx, paymentID string) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id=$1 AND status IN ('pending','completed');`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
