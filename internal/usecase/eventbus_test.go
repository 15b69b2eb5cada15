//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/usecase"
)

type busEnv struct {
	*ledgerEnv
	notifier *fakeNotifier
	alerter  *fakeAlerter
	bus      *usecase.EventBus
}

func newBusEnv(extra ...usecase.EventConsumer) *busEnv {
	e := &busEnv{ledgerEnv: newLedgerEnv(), notifier: &fakeNotifier{}, alerter: &fakeAlerter{}}
	consumers := []usecase.EventConsumer{
		usecase.NewSubscriptionConsumer(e.ledger, e.notifier, e.alerter, nopLogger()),
		usecase.NewRentalChargeConsumer(e.ledger, e.notifier, e.alerter, nopLogger()),
		usecase.NewDepositRefundConsumer(e.ledger, e.notifier, e.alerter, nopLogger()),
	}
	e.bus = usecase.NewEventBus(nopLogger(), append(consumers, extra...)...)
	return e
}

func chargeEvent(ref string, typ model.BusinessType, rentalID string, o model.Outcome) model.PaymentEvent {
	amt := decimal.RequireFromString("25")
	return model.PaymentEvent{
		DeliveryID:          "evt_" + ref,
		ProviderReferenceID: ref,
		Outcome:             o,
		Provider:            model.MethodStripe,
		BusinessType:        typ,
		UserID:              "user-1",
		RentalID:            rentalID,
		Amount:              &amt,
		AuthContext:         "token=abc",
	}
}

type panicConsumer struct{}

func (panicConsumer) Name() string                                     { return "panicky" }
func (panicConsumer) Accepts(model.BusinessType) bool                  { return true }
func (panicConsumer) Handle(context.Context, model.PaymentEvent) error { panic("boom") }

func TestEventBus_Routing(t *testing.T) {
	ctx := context.Background()

	t.Run("should notify only the subscription service for subscription events", func(t *testing.T) {
		e := newBusEnv()
		e.seedPayment(t, "pi_sub", model.MethodStripe, model.BusinessSubscription, "")

		rep := e.bus.Publish(ctx, chargeEvent("pi_sub", model.BusinessSubscription, "", model.OutcomeSuccess))

		require.NoError(t, rep.Err())
		assert.Equal(t, []string{"subscription"}, rep.Delivered)
		subs, rentals := e.notifier.counts()
		assert.Equal(t, 1, subs)
		assert.Equal(t, 0, rentals)
		assert.Equal(t, "success", e.notifier.subs[0].Update.Status)
		assert.Equal(t, "token=abc", e.notifier.subs[0].Auth)
	})

	t.Run("should notify only the cycle service for rental charges", func(t *testing.T) {
		e := newBusEnv()
		e.seedPayment(t, "pi_rent", model.MethodStripe, model.BusinessCycleRental, "rent-7")

		rep := e.bus.Publish(ctx, chargeEvent("pi_rent", model.BusinessCycleRental, "rent-7", model.OutcomeSuccess))

		require.NoError(t, rep.Err())
		assert.Equal(t, []string{"cycle_rental"}, rep.Delivered)
		subs, rentals := e.notifier.counts()
		assert.Equal(t, 0, subs)
		require.Equal(t, 1, rentals)
		upd := e.notifier.rentals[0].Update
		assert.Equal(t, "rent-7", upd.RentalID)
		assert.Equal(t, "cycle_rental", upd.Type)
		assert.False(t, upd.IsRefund)
		require.NotNil(t, upd.Amount)
		assert.True(t, upd.Amount.Decimal().Equal(decimal.NewFromInt(25)))
	})

	t.Run("should reconcile deposit refunds against the refund record", func(t *testing.T) {
		e := newBusEnv()
		p := e.seedPayment(t, "pi_dep", model.MethodStripe, model.BusinessCycleRental, "rent-7")
		_, _, err := e.ledger.ApplyOutcome(ctx, "pi_dep", model.OutcomeSuccess, "")
		require.NoError(t, err)
		require.NoError(t, e.ledger.RecordRefund(ctx, p, &model.Refund{Amount: decimal.NewFromInt(9), ReferenceID: "pi_dep", UserID: "user-1"}))

		ev := chargeEvent("pi_dep", model.BusinessDepositRefund, "rent-7", model.OutcomeSuccess)
		ev.IsRefund = true
		ev.ProviderCaptureID = "re_1"
		rep := e.bus.Publish(ctx, ev)

		require.NoError(t, rep.Err())
		assert.Equal(t, []string{"deposit_refund"}, rep.Delivered)
		_, rentals := e.notifier.counts()
		require.Equal(t, 1, rentals)
		assert.True(t, e.notifier.rentals[0].Update.IsRefund)
		assert.Equal(t, "completed", e.notifier.rentals[0].Update.Status)
		assert.Equal(t, model.RefundStatusCompleted, e.refunds.all()[0].Status)
	})

	t.Run("should forward a redelivered outcome but not a conflicting one", func(t *testing.T) {
		e := newBusEnv()
		e.seedPayment(t, "pi_sub", model.MethodStripe, model.BusinessSubscription, "")

		e.bus.Publish(ctx, chargeEvent("pi_sub", model.BusinessSubscription, "", model.OutcomeSuccess))
		e.bus.Publish(ctx, chargeEvent("pi_sub", model.BusinessSubscription, "", model.OutcomeSuccess))
		e.bus.Publish(ctx, chargeEvent("pi_sub", model.BusinessSubscription, "", model.OutcomeFailed))

		subs, _ := e.notifier.counts()
		assert.Equal(t, 2, subs)
		assert.Equal(t, model.PaymentStatusSuccess, e.payments.get("pi_sub").Status)
	})

	t.Run("should skip the cycle service when the rental id is missing", func(t *testing.T) {
		e := newBusEnv()
		e.seedPayment(t, "pi_rent", model.MethodStripe, model.BusinessCycleRental, "rent-7")

		rep := e.bus.Publish(ctx, chargeEvent("pi_rent", model.BusinessCycleRental, "", model.OutcomeSuccess))

		require.NoError(t, rep.Err())
		_, rentals := e.notifier.counts()
		assert.Equal(t, 0, rentals)
		assert.Equal(t, model.PaymentStatusSuccess, e.payments.get("pi_rent").Status)
	})
}

func TestEventBus_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("should report a missing payment as not found only", func(t *testing.T) {
		e := newBusEnv()
		rep := e.bus.Publish(ctx, chargeEvent("ghost", model.BusinessSubscription, "", model.OutcomeSuccess))

		require.Len(t, rep.Failures, 1)
		assert.True(t, rep.NotFoundOnly())
		assert.ErrorIs(t, rep.Err(), domain.ErrPaymentNotFound)
		assert.True(t, usecase.IsTerminalDeliveryError(rep.Err()))
	})

	t.Run("should swallow a notification failure and alert an operator", func(t *testing.T) {
		e := newBusEnv()
		e.notifier.Err = errors.New("cycle service down")
		e.seedPayment(t, "pi_rent", model.MethodStripe, model.BusinessCycleRental, "rent-7")

		rep := e.bus.Publish(ctx, chargeEvent("pi_rent", model.BusinessCycleRental, "rent-7", model.OutcomeSuccess))

		assert.NoError(t, rep.Err())
		assert.Equal(t, 1, e.alerter.count())
		assert.Equal(t, model.PaymentStatusSuccess, e.payments.get("pi_rent").Status)
	})

	t.Run("should keep running after a panicking consumer", func(t *testing.T) {
		e := newBusEnv(panicConsumer{})
		e.seedPayment(t, "pi_sub", model.MethodStripe, model.BusinessSubscription, "")

		rep := e.bus.Publish(ctx, chargeEvent("pi_sub", model.BusinessSubscription, "", model.OutcomeSuccess))

		assert.Equal(t, []string{"subscription"}, rep.Delivered)
		require.Len(t, rep.Failures, 1)
		assert.Equal(t, "panicky", rep.Failures[0].Consumer)
		assert.False(t, rep.NotFoundOnly())
	})

	t.Run("should report nothing for an empty bus", func(t *testing.T) {
		bus := usecase.NewEventBus(nopLogger())
		rep := bus.Publish(ctx, chargeEvent("x", model.BusinessSubscription, "", model.OutcomeSuccess))
		assert.Empty(t, rep.Delivered)
		assert.NoError(t, rep.Err())
		assert.False(t, rep.NotFoundOnly())
	})
}
