package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain/ports/adapter"
)

var _ adapter.OperatorAlerter = (*AsyncAlerter)(nil)

// AsyncAlerter hands alerts to the pool so the caller never waits on the chat API.
type AsyncAlerter struct {
	pool    *Pool
	inner   adapter.OperatorAlerter
	timeout time.Duration
	log     *zerolog.Logger
}

func NewAsyncAlerter(pool *Pool, inner adapter.OperatorAlerter, logger *zerolog.Logger) *AsyncAlerter {
	return &AsyncAlerter{pool: pool, inner: inner, timeout: 10 * time.Second, log: logger}
}

func (a *AsyncAlerter) Alert(_ context.Context, text string) error {
	err := a.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.inner.Alert(ctx, text)
	})
	if err != nil {
		a.log.Error().Err(err).Str("alert", text).Msg("operator alert dropped")
	}
	return err
}
