// File: internal/usecase/consumers.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/infra/logging"
)

var (
	_ EventConsumer = (*SubscriptionConsumer)(nil)
	_ EventConsumer = (*RentalChargeConsumer)(nil)
	_ EventConsumer = (*DepositRefundConsumer)(nil)
)

// reconciler holds what every consumer needs: apply the event to the ledger, then
// tell the owning service.
type reconciler struct {
	ledger   LedgerUseCase
	notifier adapter.ServiceNotifier
	alerter  adapter.OperatorAlerter
	log      *zerolog.Logger
}

// apply writes the event to the ledger and returns the status to forward. ok is false
// when the stored terminal status disagrees with the event, in which case nothing is
// forwarded.
func (r reconciler) apply(ctx context.Context, ev model.PaymentEvent) (status string, ok bool, err error) {
	log := logging.With(ctx, r.log).With().Str("reference_id", ev.ProviderReferenceID).Logger()
	if ev.IsRefund {
		want := model.RefundStatusFor(ev.Outcome)
		ref, applied, err := r.ledger.ApplyRefundOutcome(ctx, ev.ProviderReferenceID, ev.ProviderCaptureID, want)
		if err != nil {
			return "", false, err
		}
		if !applied {
			log.Debug().Msg("refund outcome already recorded")
		}
		return string(ref.Status), ref.Status == want, nil
	}
	want := model.StatusFor(ev.Outcome)
	p, applied, err := r.ledger.ApplyOutcome(ctx, ev.ProviderReferenceID, ev.Outcome, ev.ProviderCaptureID)
	if err != nil {
		return "", false, err
	}
	if !applied {
		log.Debug().Msg("payment outcome already recorded")
	}
	return string(p.Status), p.Status == want, nil
}

// delivered logs and alerts on a final notification failure. The error is swallowed:
// the provider still gets its acknowledgement.
func (r reconciler) delivered(ctx context.Context, ev model.PaymentEvent, target string, err error) {
	if err == nil {
		return
	}
	logging.With(ctx, r.log).Error().Err(err).
		Str("reference_id", ev.ProviderReferenceID).
		Str("target", target).
		Str("user_id", ev.UserID).
		Msg("cross-service notification gave up")
	if r.alerter == nil {
		return
	}
	text := fmt.Sprintf("notify %s failed for %s payment %s (user %s, rental %q): %v",
		target, ev.Provider, ev.ProviderReferenceID, ev.UserID, ev.RentalID, err)
	if aerr := r.alerter.Alert(ctx, text); aerr != nil {
		r.log.Warn().Err(aerr).Msg("operator alert failed")
	}
}

// -----------------------------
// Subscription
// -----------------------------

type SubscriptionConsumer struct{ reconciler }

func NewSubscriptionConsumer(ledger LedgerUseCase, notifier adapter.ServiceNotifier, alerter adapter.OperatorAlerter, logger *zerolog.Logger) *SubscriptionConsumer {
	return &SubscriptionConsumer{reconciler{ledger: ledger, notifier: notifier, alerter: alerter, log: logger}}
}

func (c *SubscriptionConsumer) Name() string { return "subscription" }

func (c *SubscriptionConsumer) Accepts(t model.BusinessType) bool {
	return t == model.BusinessSubscription
}

func (c *SubscriptionConsumer) Handle(ctx context.Context, ev model.PaymentEvent) error {
	status, ok, err := c.apply(ctx, ev)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	err = c.notifier.NotifySubscription(ctx, adapter.SubscriptionUpdate{UserID: ev.UserID, Status: status}, ev.AuthContext)
	c.delivered(ctx, ev, "subscription", err)
	return nil
}

// -----------------------------
// Rentals
// -----------------------------

type RentalChargeConsumer struct{ reconciler }

func NewRentalChargeConsumer(ledger LedgerUseCase, notifier adapter.ServiceNotifier, alerter adapter.OperatorAlerter, logger *zerolog.Logger) *RentalChargeConsumer {
	return &RentalChargeConsumer{reconciler{ledger: ledger, notifier: notifier, alerter: alerter, log: logger}}
}

func (c *RentalChargeConsumer) Name() string { return "cycle_rental" }

func (c *RentalChargeConsumer) Accepts(t model.BusinessType) bool {
	return t == model.BusinessCycleRental
}

func (c *RentalChargeConsumer) Handle(ctx context.Context, ev model.PaymentEvent) error {
	return handleRental(ctx, c.reconciler, ev)
}

type DepositRefundConsumer struct{ reconciler }

func NewDepositRefundConsumer(ledger LedgerUseCase, notifier adapter.ServiceNotifier, alerter adapter.OperatorAlerter, logger *zerolog.Logger) *DepositRefundConsumer {
	return &DepositRefundConsumer{reconciler{ledger: ledger, notifier: notifier, alerter: alerter, log: logger}}
}

func (c *DepositRefundConsumer) Name() string { return "deposit_refund" }

func (c *DepositRefundConsumer) Accepts(t model.BusinessType) bool {
	return t == model.BusinessDepositRefund
}

func (c *DepositRefundConsumer) Handle(ctx context.Context, ev model.PaymentEvent) error {
	return handleRental(ctx, c.reconciler, ev)
}

func handleRental(ctx context.Context, r reconciler, ev model.PaymentEvent) error {
	status, ok, err := r.apply(ctx, ev)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if !ev.HasRental() {
		logging.With(ctx, r.log).Warn().
			Str("reference_id", ev.ProviderReferenceID).
			Str("type", string(ev.BusinessType)).
			Msg("rental event without rental id; cycle service not notified")
		return nil
	}
	upd := adapter.RentalUpdate{
		UserID:   ev.UserID,
		Status:   status,
		RentalID: ev.RentalID,
		Type:     string(ev.BusinessType),
		IsRefund: ev.IsRefund,
	}
	if ev.Amount != nil {
		m := model.NewMoney(model.RoundCents(*ev.Amount))
		upd.Amount = &m
	}
	err = r.notifier.NotifyRental(ctx, upd, ev.AuthContext)
	r.delivered(ctx, ev, "cycle", err)
	return nil
}

// IsTerminalDeliveryError reports whether a consumer error means the delivery can
// never succeed.
func IsTerminalDeliveryError(err error) bool {
	return errors.Is(err, domain.ErrPaymentNotFound) || errors.Is(err, domain.ErrRefundNotFound)
}
