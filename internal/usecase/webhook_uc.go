// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/infra/logging"
	"cycle-rental-payments/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookOutcome describes what happened to one delivery that was acknowledged.
type WebhookOutcome struct {
	Ignored bool // verified, but not an event kind we act on
	Event   *model.PaymentEvent
	Report  PublishReport
}

// WebhookUseCase is the single entry point for provider deliveries. A returned error
// means the provider must be answered with a client error so it redelivers later.
type WebhookUseCase interface {
	Handle(ctx context.Context, provider model.Provider, req adapter.WebhookRequest) (WebhookOutcome, error)
}

type webhookUC struct {
	verifiers map[model.Provider]adapter.WebhookVerifier
	bus       *EventBus
	locker    adapter.Locker
	log       *zerolog.Logger
}

// NewWebhookUseCase wires verifiers to the bus. locker may be nil.
func NewWebhookUseCase(bus *EventBus, locker adapter.Locker, logger *zerolog.Logger, verifiers ...adapter.WebhookVerifier) *webhookUC {
	m := make(map[model.Provider]adapter.WebhookVerifier, len(verifiers))
	for _, v := range verifiers {
		m[v.Provider()] = v
	}
	return &webhookUC{verifiers: m, bus: bus, locker: locker, log: logger}
}

func (u *webhookUC) Handle(ctx context.Context, provider model.Provider, req adapter.WebhookRequest) (WebhookOutcome, error) {
	start := time.Now()
	defer func() { metrics.ObserveWebhook(string(provider), time.Since(start)) }()

	ctx = logging.WithProvider(ctx, string(provider))
	log := logging.With(ctx, u.log)

	v, ok := u.verifiers[provider]
	if !ok {
		metrics.IncWebhook(string(provider), "unsupported")
		return WebhookOutcome{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedPaymentMethod, provider)
	}

	ev, err := v.Verify(ctx, req)
	if err != nil {
		metrics.IncWebhook(string(provider), "rejected")
		log.Warn().Err(err).Msg("webhook rejected")
		return WebhookOutcome{}, err
	}
	if ev == nil {
		metrics.IncWebhook(string(provider), "ignored")
		log.Debug().Msg("webhook kind ignored")
		return WebhookOutcome{Ignored: true}, nil
	}

	ctx = logging.WithReferenceID(ctx, ev.ProviderReferenceID)
	ctx = logging.WithUserID(ctx, ev.UserID)
	log = logging.With(ctx, u.log)

	if u.locker != nil {
		key := fmt.Sprintf("webhook:%s:%s", provider, ev.ProviderReferenceID)
		token, lerr := u.locker.TryLock(ctx, key)
		if lerr != nil {
			// the ledger's row locks still serialize the update
			log.Info().Err(lerr).Str("delivery", ev.DeliveryID).Msg("concurrent delivery in flight")
		} else {
			defer func() {
				if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					log.Warn().Err(err).Msg("release delivery lock")
				}
			}()
		}
	}

	rep := u.bus.Publish(ctx, *ev)
	out := WebhookOutcome{Event: ev, Report: rep}
	switch {
	case rep.NotFoundOnly():
		metrics.IncWebhook(string(provider), "not_found")
		return out, rep.Err()
	case len(rep.Failures) > 0:
		metrics.IncWebhook(string(provider), "partial")
		log.Error().Err(rep.Err()).
			Str("delivery", ev.DeliveryID).
			Msg("webhook acknowledged with consumer failures")
	default:
		metrics.IncWebhook(string(provider), "ok")
	}
	return out, nil
}
