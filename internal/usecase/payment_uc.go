// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/infra/logging"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type ChargeCommand struct {
	UserID      string
	Method      model.Method
	Amount      decimal.Decimal
	Type        model.BusinessType
	RentalID    string
	AuthContext string
}

type RefundCommand struct {
	ReferenceID string
	RentalID    string
	// Amount nil refunds the whole payment.
	Amount      *decimal.Decimal
	UserID      string
	Type        model.BusinessType
	AuthContext string
}

type PaymentUseCase interface {
	// Initiate opens a charge with the provider and records it Pending.
	Initiate(ctx context.Context, cmd ChargeCommand) (*model.Payment, adapter.ChargeResult, error)
	// CapturePayPal captures an approved PayPal order and stores the capture id.
	CapturePayPal(ctx context.Context, orderID string) (*model.Payment, error)
	// Refund issues a refund against a payment found by reference or rental id.
	Refund(ctx context.Context, cmd RefundCommand) (*model.Refund, error)
	Get(ctx context.Context, referenceID string) (*model.Payment, model.PaymentState, error)
	// Reconcile asks the provider about a pending payment and applies a final answer.
	// It returns the event to fan out when the answer changed the ledger.
	Reconcile(ctx context.Context, p *model.Payment) (*model.PaymentEvent, error)
}

type paymentUC struct {
	ledger     LedgerUseCase
	strategies map[model.Method]adapter.PaymentStrategy
	currency   string
	log        *zerolog.Logger
}

func NewPaymentUseCase(ledger LedgerUseCase, currency string, logger *zerolog.Logger, strategies ...adapter.PaymentStrategy) *paymentUC {
	m := make(map[model.Method]adapter.PaymentStrategy, len(strategies))
	for _, s := range strategies {
		m[s.Method()] = s
	}
	return &paymentUC{ledger: ledger, strategies: m, currency: strings.ToUpper(currency), log: logger}
}

func (u *paymentUC) strategy(m model.Method) (adapter.PaymentStrategy, error) {
	s, ok := u.strategies[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPaymentMethod, m)
	}
	return s, nil
}

func (u *paymentUC) Initiate(ctx context.Context, cmd ChargeCommand) (*model.Payment, adapter.ChargeResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()
	if cmd.UserID == "" || !cmd.Type.Valid() || !cmd.Amount.IsPositive() {
		return nil, adapter.ChargeResult{}, domain.ErrInvalidArgument
	}
	if cmd.Type != model.BusinessSubscription && cmd.RentalID == "" {
		return nil, adapter.ChargeResult{}, fmt.Errorf("%w: rental id required for %s", domain.ErrInvalidArgument, cmd.Type)
	}
	s, err := u.strategy(cmd.Method)
	if err != nil {
		return nil, adapter.ChargeResult{}, err
	}

	// a rental is charged once; a second charge is only allowed while the first is still open
	if cmd.Type == model.BusinessCycleRental {
		if prev, err := u.ledger.FindForRefund(ctx, "", cmd.RentalID); err == nil {
			st, err := u.ledger.State(ctx, prev)
			if err != nil {
				return nil, adapter.ChargeResult{}, err
			}
			if err := model.CanProcessPayment(st); err != nil {
				return nil, adapter.ChargeResult{}, err
			}
		} else if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, adapter.ChargeResult{}, err
		}
	}

	amount := model.RoundCents(cmd.Amount)
	res, err := s.ProcessPayment(ctx, adapter.ChargeRequest{
		Amount:   amount,
		Currency: u.currency,
		Metadata: model.NewCustomMetadata(cmd.UserID, cmd.Type, cmd.RentalID, cmd.AuthContext),
	})
	if err != nil {
		return nil, adapter.ChargeResult{}, fmt.Errorf("%s charge: %w", cmd.Method, err)
	}

	p := &model.Payment{
		UserID:      cmd.UserID,
		Method:      cmd.Method,
		Amount:      amount,
		Currency:    u.currency,
		Type:        cmd.Type,
		ReferenceID: res.ReferenceID,
		Status:      model.PaymentStatusPending,
	}
	if cmd.RentalID != "" {
		rid := cmd.RentalID
		p.RentalID = &rid
	}
	if _, err := u.ledger.RecordCharge(ctx, p); err != nil {
		return nil, res, err
	}
	logging.With(ctx, u.log).Info().
		Str("reference_id", p.ReferenceID).
		Str("method", string(p.Method)).
		Str("type", string(p.Type)).
		Msg("charge initiated")
	return p, res, nil
}

func (u *paymentUC) CapturePayPal(ctx context.Context, orderID string) (*model.Payment, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.strategy(model.MethodPayPal)
	if err != nil {
		return nil, err
	}
	capturer, ok := s.(adapter.PayPalCapturer)
	if !ok {
		return nil, fmt.Errorf("%w: paypal strategy cannot capture", domain.ErrUnsupportedPaymentMethod)
	}
	p, err := u.ledger.FindByReference(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := model.CheckTransition(model.StateOf(p, false), model.StateCaptured); err != nil {
		return p, err
	}
	captureID, err := capturer.Capture(ctx, orderID)
	if err != nil {
		return p, fmt.Errorf("paypal capture %s: %w", orderID, err)
	}
	return u.ledger.ApplyCapture(ctx, orderID, captureID)
}

func (u *paymentUC) Refund(ctx context.Context, cmd RefundCommand) (*model.Refund, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Refund")()
	p, err := u.ledger.FindForRefund(ctx, cmd.ReferenceID, cmd.RentalID)
	if err != nil {
		return nil, err
	}
	if cmd.UserID != "" && cmd.UserID != p.UserID {
		return nil, fmt.Errorf("%w: reference %q rental %q", domain.ErrPaymentNotFound, cmd.ReferenceID, cmd.RentalID)
	}
	st, err := u.ledger.State(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := model.CanProcessRefund(st); err != nil {
		return nil, err
	}

	amount := p.Amount
	if cmd.Amount != nil {
		amount = model.RoundCents(*cmd.Amount)
	}
	if !amount.IsPositive() || amount.GreaterThan(p.Amount) {
		return nil, fmt.Errorf("%w: refund amount %s of %s", domain.ErrInvalidArgument, amount.StringFixed(2), p.Amount.StringFixed(2))
	}
	ref := p.RefundReference()
	if ref == "" {
		return nil, domain.ErrCaptureMissing
	}
	s, err := u.strategy(p.Method)
	if err != nil {
		return nil, err
	}

	typ := cmd.Type
	if typ == "" {
		typ = model.BusinessDepositRefund
	}
	userID := cmd.UserID
	if userID == "" {
		userID = p.UserID
	}
	r := &model.Refund{
		PaymentID:   p.ID,
		Amount:      amount,
		ReferenceID: ref,
		RentalID:    p.RentalID,
		UserID:      userID,
	}
	if r.RentalID == nil && cmd.RentalID != "" {
		rid := cmd.RentalID
		r.RentalID = &rid
	}
	if err := u.ledger.RecordRefund(ctx, p, r); err != nil {
		return nil, err
	}

	rentalID := ""
	if r.RentalID != nil {
		rentalID = *r.RentalID
	}
	log := logging.With(ctx, u.log).With().Str("reference_id", ref).Str("refund", r.ID).Logger()
	res, err := s.ProcessRefund(ctx, adapter.RefundRequest{
		Reference: ref,
		Amount:    amount,
		Currency:  p.Currency,
		Metadata:  model.NewCustomMetadata(userID, typ, rentalID, cmd.AuthContext),
	})
	if err != nil {
		log.Error().Err(err).Msg("provider refund failed")
		if _, ferr := u.ledger.FailRefund(ctx, r.ID); ferr != nil {
			log.Error().Err(ferr).Msg("mark refund failed")
		}
		r.Status = model.RefundStatusFailed
		return r, fmt.Errorf("%s refund: %w", p.Method, err)
	}

	if res.ProviderID != "" {
		if err := u.ledger.AttachProviderRefund(ctx, r.ID, res.ProviderID); err != nil {
			log.Warn().Err(err).Msg("attach provider refund id")
		} else {
			r.ProviderID = &res.ProviderID
		}
	}
	if res.Status.Terminal() {
		if out, _, err := u.ledger.ApplyRefundOutcome(ctx, ref, res.ProviderID, res.Status); err != nil {
			log.Error().Err(err).Msg("apply synchronous refund outcome")
		} else if out != nil {
			r = out
		}
	}
	log.Info().Str("status", string(r.Status)).Msg("refund issued")
	return r, nil
}

func (u *paymentUC) Get(ctx context.Context, referenceID string) (*model.Payment, model.PaymentState, error) {
	p, err := u.ledger.FindByReference(ctx, referenceID)
	if err != nil {
		return nil, "", err
	}
	st, err := u.ledger.State(ctx, p)
	if err != nil {
		return p, "", err
	}
	return p, st, nil
}

func (u *paymentUC) Reconcile(ctx context.Context, p *model.Payment) (*model.PaymentEvent, error) {
	s, err := u.strategy(p.Method)
	if err != nil {
		return nil, err
	}
	res, err := s.FetchStatus(ctx, p.ReferenceID)
	if err != nil {
		return nil, err
	}
	if !res.Final {
		if p.Method == model.MethodPayPal && res.CaptureID != "" && p.Status == model.PaymentStatusPending {
			_, err := u.ledger.ApplyCapture(ctx, p.ReferenceID, res.CaptureID)
			return nil, err
		}
		return nil, nil
	}
	if _, applied, err := u.ledger.ApplyOutcome(ctx, p.ReferenceID, res.Outcome, res.CaptureID); err != nil || !applied {
		return nil, err
	}

	// the provider never told us, so nobody downstream knows either
	rentalID := ""
	if p.RentalID != nil {
		rentalID = *p.RentalID
	}
	amount := p.Amount
	ev, err := model.NewPaymentEvent(model.PaymentEvent{
		DeliveryID:          "reconcile",
		ProviderReferenceID: p.ReferenceID,
		ProviderCaptureID:   res.CaptureID,
		Outcome:             res.Outcome,
		Provider:            p.Method,
		BusinessType:        p.Type,
		UserID:              p.UserID,
		RentalID:            rentalID,
		Amount:              &amount,
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
