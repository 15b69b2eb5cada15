package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

const paymentCols = `id, user_id, method, amount, currency, type, reference_id, capture_id, status, rental_id, created_at, updated_at`

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

func scanPayment(row scanner) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Method, &p.Amount, &p.Currency, &p.Type, &p.ReferenceID, &p.CaptureID, &p.Status, &p.RentalID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	const q = `
INSERT INTO payments (` + paymentCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (reference_id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.Method, p.Amount, p.Currency, p.Type, p.ReferenceID, p.CaptureID, p.Status, p.RentalID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return false, execErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) FindByReferenceID(ctx context.Context, tx repository.Tx, referenceID string) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentCols+` FROM payments WHERE reference_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, referenceID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByReferenceOrRental(ctx context.Context, tx repository.Tx, referenceID, rentalID string) (*model.Payment, error) {
	if referenceID == "" && rentalID == "" {
		return nil, domain.ErrInvalidArgument
	}
	// an exact reference match wins over a rental match
	q := forUpdate(`
SELECT `+paymentCols+` FROM payments
WHERE ($1 <> '' AND reference_id=$1) OR ($2 <> '' AND rental_id=$2)
ORDER BY (reference_id=$1) DESC, created_at DESC
LIMIT 1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, referenceID, rentalID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, referenceID string, status model.PaymentStatus, captureID *string) (bool, error) {
	const q = `
UPDATE payments
SET status=$2, capture_id=COALESCE(capture_id, $3), updated_at=NOW()
WHERE reference_id=$1 AND status IN ('pending','captured');`
	tag, err := execSQL(ctx, r.pool, tx, q, referenceID, status, captureID)
	if err != nil {
		return false, execErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE status IN ('pending','captured') AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
