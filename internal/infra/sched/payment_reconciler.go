package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain/ports/repository"
	"cycle-rental-payments/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending payments and asks the provider
// about them. This covers webhooks that never arrived. A reconciled payment is fanned
// out through the bus exactly like a webhook would be.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	payments   repository.PaymentRepository
	bus        *usecase.EventBus
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	batch      int
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, payments repository.PaymentRepository, bus *usecase.EventBus, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, payments: payments, bus: bus, interval: interval, staleAfter: staleAfter, batch: 200, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one scan and returns how many payments changed.
func (w *PaymentReconciler) Tick(ctx context.Context) int {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending payments")
		return 0
	}
	n := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return n
		}
		ev, err := w.uc.Reconcile(ctx, p)
		if err != nil {
			w.log.Warn().Err(err).Str("reference_id", p.ReferenceID).Msg("reconcile failed")
			continue
		}
		if ev == nil {
			continue
		}
		n++
		rep := w.bus.Publish(ctx, *ev)
		w.log.Info().
			Str("reference_id", p.ReferenceID).
			Str("outcome", string(ev.Outcome)).
			Int("consumer_failures", len(rep.Failures)).
			Msg("reconciled payment")
	}
	return n
}
