package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn inside one database transaction and hands the
// transaction handle to repositories through tx.
//
// Repositories accept a nil tx and then run on the pool. With a pgx.Tx they lock the
// rows they read (SELECT ... FOR UPDATE), which is what serializes concurrent webhook
// deliveries for the same reference id.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		p, err := payments.FindByReferenceID(ctx, tx, ref)
//		...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
