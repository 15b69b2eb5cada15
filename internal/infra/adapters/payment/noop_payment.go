package payment

import (
	"context"
	"fmt"
	"sync"

	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentStrategy = (*NoopStrategy)(nil)
	_ adapter.PayPalCapturer  = (*NoopStrategy)(nil)
)

// NoopStrategy is an in-memory provider for dev runs without credentials.
// Charges stay pending until a webhook (or MarkPaid) settles them.
type NoopStrategy struct {
	method  model.Method
	mu      sync.Mutex
	seq     int64
	intents map[string]model.Outcome
}

func NewNoopStrategy(method model.Method) *NoopStrategy {
	return &NoopStrategy{method: method, intents: make(map[string]model.Outcome)}
}

func (g *NoopStrategy) Method() model.Method { return g.method }

func (g *NoopStrategy) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("noop-%s-%s-%d", g.method, prefix, g.seq)
}

func (g *NoopStrategy) ProcessPayment(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.next("pay")
	g.intents[ref] = ""
	return adapter.ChargeResult{
		ReferenceID:  ref,
		ClientSecret: ref + "_secret",
		ApprovalURL:  "https://example.test/pay/" + ref,
		Status:       model.PaymentStatusPending,
	}, nil
}

func (g *NoopStrategy) Capture(ctx context.Context, orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.intents[orderID]; !ok {
		return "", fmt.Errorf("noop: order %s not found", orderID)
	}
	return "cap-" + orderID, nil
}

func (g *NoopStrategy) ProcessRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return adapter.RefundResult{ProviderID: g.next("refund"), Status: model.RefundStatusPending}, nil
}

// MarkPaid records the outcome FetchStatus reports for ref.
func (g *NoopStrategy) MarkPaid(ref string, o model.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[ref] = o
}

func (g *NoopStrategy) FetchStatus(ctx context.Context, referenceID string) (adapter.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.intents[referenceID]
	if !ok {
		return adapter.StatusResult{}, fmt.Errorf("noop: reference %s not found", referenceID)
	}
	if o == "" {
		return adapter.StatusResult{}, nil
	}
	return adapter.StatusResult{Outcome: o, Final: true}, nil
}
