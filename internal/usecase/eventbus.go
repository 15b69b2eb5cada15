// File: internal/usecase/eventbus.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/infra/logging"
	"cycle-rental-payments/internal/infra/metrics"
)

// EventConsumer is one business reaction to a verified payment event.
type EventConsumer interface {
	Name() string
	// Accepts filters by business type. A consumer that does not accept an event
	// is never called for it.
	Accepts(t model.BusinessType) bool
	Handle(ctx context.Context, ev model.PaymentEvent) error
}

type ConsumerFailure struct {
	Consumer string
	Err      error
}

// PublishReport summarizes one fan-out.
type PublishReport struct {
	Delivered []string
	Failures  []ConsumerFailure
}

// NotFoundOnly reports whether every failure was a missing ledger row, i.e. the
// delivery can never succeed and the provider should be told so.
func (r PublishReport) NotFoundOnly() bool {
	if len(r.Failures) == 0 {
		return false
	}
	for _, f := range r.Failures {
		if !IsTerminalDeliveryError(f.Err) {
			return false
		}
	}
	return true
}

func (r PublishReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// EventBus fans a PaymentEvent out to a fixed set of consumers, sequentially and in
// registration order. The consumer list is set at construction and never changes.
type EventBus struct {
	consumers []EventConsumer
	log       *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger, consumers ...EventConsumer) *EventBus {
	cs := make([]EventConsumer, len(consumers))
	copy(cs, consumers)
	return &EventBus{consumers: cs, log: logger}
}

// Publish waits for every accepting consumer. A failing consumer is logged and
// recorded; the remaining consumers still run.
func (b *EventBus) Publish(ctx context.Context, ev model.PaymentEvent) PublishReport {
	var rep PublishReport
	log := logging.With(ctx, b.log)
	for _, c := range b.consumers {
		if !c.Accepts(ev.BusinessType) {
			continue
		}
		if err := b.handle(ctx, c, ev); err != nil {
			metrics.IncConsumerError(c.Name())
			log.Error().Err(err).
				Str("consumer", c.Name()).
				Str("reference_id", ev.ProviderReferenceID).
				Str("type", string(ev.BusinessType)).
				Bool("refund", ev.IsRefund).
				Msg("payment event consumer failed")
			rep.Failures = append(rep.Failures, ConsumerFailure{Consumer: c.Name(), Err: err})
			continue
		}
		rep.Delivered = append(rep.Delivered, c.Name())
	}
	return rep
}

func (b *EventBus) handle(ctx context.Context, c EventConsumer, ev model.PaymentEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("consumer panic")
			b.log.Error().Interface("panic", r).Str("consumer", c.Name()).Msg("recovered consumer panic")
		}
	}()
	return c.Handle(ctx, ev)
}
