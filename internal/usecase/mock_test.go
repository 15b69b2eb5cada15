//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/domain/ports/repository"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// =============================
// Repositories
// =============================

// ---- memPayments ----

type memPayments struct {
	mu    sync.Mutex
	byRef map[string]*model.Payment

	updates int // successful UpdateStatus calls
}

var _ repository.PaymentRepository = (*memPayments)(nil)

func newMemPayments() *memPayments {
	return &memPayments{byRef: map[string]*model.Payment{}}
}

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	if p.CaptureID != nil {
		c := *p.CaptureID
		cp.CaptureID = &c
	}
	if p.RentalID != nil {
		r := *p.RentalID
		cp.RentalID = &r
	}
	return &cp
}

func (m *memPayments) Create(_ context.Context, _ repository.Tx, p *model.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[p.ReferenceID]; ok {
		return false, nil
	}
	m.byRef[p.ReferenceID] = clonePayment(p)
	return true, nil
}

func (m *memPayments) FindByReferenceID(_ context.Context, _ repository.Tx, ref string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(p), nil
}

func (m *memPayments) FindByReferenceOrRental(_ context.Context, _ repository.Tx, ref, rentalID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byRef[ref]; ok && ref != "" {
		return clonePayment(p), nil
	}
	var matches []*model.Payment
	for _, p := range m.byRef {
		if rentalID != "" && p.RentalID != nil && *p.RentalID == rentalID {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return clonePayment(matches[0]), nil
}

func (m *memPayments) UpdateStatus(_ context.Context, _ repository.Tx, ref string, status model.PaymentStatus, captureID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byRef[ref]
	if !ok || p.Status.Terminal() {
		return false, nil
	}
	p.Status = status
	if p.CaptureID == nil && captureID != nil {
		c := *captureID
		p.CaptureID = &c
	}
	p.UpdatedAt = time.Now()
	m.updates++
	return true, nil
}

func (m *memPayments) ListPendingOlderThan(_ context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.byRef {
		if !p.Status.Terminal() && p.CreatedAt.Before(olderThan) {
			out = append(out, clonePayment(p))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPayments) get(ref string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byRef[ref]; ok {
		return clonePayment(p)
	}
	return nil
}

// ---- memRefunds ----

type memRefunds struct {
	mu   sync.Mutex
	rows []*model.Refund
}

var _ repository.RefundRepository = (*memRefunds)(nil)

func (m *memRefunds) Create(_ context.Context, _ repository.Tx, r *model.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memRefunds) FindByReferenceID(_ context.Context, _ repository.Tx, ref string) (*model.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].ReferenceID == ref {
			cp := *m.rows[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRefunds) FindByProviderID(_ context.Context, _ repository.Tx, pid string) (*model.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ProviderID != nil && *r.ProviderID == pid {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRefunds) SetProviderID(_ context.Context, _ repository.Tx, id, pid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id && r.ProviderID == nil {
			r.ProviderID = &pid
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memRefunds) UpdateStatusIfPending(_ context.Context, _ repository.Tx, id string, status model.RefundStatus, pid *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID != id {
			continue
		}
		if r.Status.Terminal() {
			return false, nil
		}
		r.Status = status
		if pid != nil && r.ProviderID == nil {
			p := *pid
			r.ProviderID = &p
		}
		return true, nil
	}
	return false, nil
}

func (m *memRefunds) HasCompleted(_ context.Context, _ repository.Tx, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.PaymentID == paymentID && r.Status == model.RefundStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRefunds) SumOpen(_ context.Context, _ repository.Tx, paymentID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, r := range m.rows {
		if r.PaymentID == paymentID && r.Status != model.RefundStatusFailed {
			sum = sum.Add(r.Amount)
		}
	}
	return sum, nil
}

func (m *memRefunds) all() []model.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Refund, len(m.rows))
	for i, r := range m.rows {
		out[i] = *r
	}
	return out
}

// ---- memRentals ----

type memRentals struct {
	mu   sync.Mutex
	byID map[string]*model.Rental

	SaveErr error
}

var _ repository.RentalRepository = (*memRentals)(nil)

func newMemRentals(rs ...*model.Rental) *memRentals {
	m := &memRentals{byID: map[string]*model.Rental{}}
	for _, r := range rs {
		cp := *r
		m.byID[r.ID] = &cp
	}
	return m
}

func (m *memRentals) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRentals) SaveReturn(_ context.Context, _ repository.Tx, r *model.Rental) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Returned() {
		return domain.ErrRentalAlreadyReturned
	}
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memRentals) UpdatePaymentStatus(_ context.Context, _ repository.Tx, id string, status model.RentalPaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.PaymentStatus = status
	return nil
}

func (m *memRentals) get(id string) model.Rental {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

// ---- txManager ----

// memTx serializes transactions, standing in for the row locks Postgres takes.
type memTx struct{ mu sync.Mutex }

func (m *memTx) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}

// =============================
// Adapters
// =============================

// ---- fakeStrategy ----

type fakeStrategy struct {
	mu     sync.Mutex
	method model.Method
	seq    int

	charges []adapter.ChargeRequest
	refunds []adapter.RefundRequest

	RefundErr    error
	RefundStatus model.RefundStatus
	Status       adapter.StatusResult
	StatusErr    error
}

var (
	_ adapter.PaymentStrategy = (*fakeStrategy)(nil)
	_ adapter.PayPalCapturer  = (*fakeStrategy)(nil)
)

func newFakeStrategy(m model.Method) *fakeStrategy {
	return &fakeStrategy{method: m, RefundStatus: model.RefundStatusPending}
}

func (f *fakeStrategy) Method() model.Method { return f.method }

func (f *fakeStrategy) ProcessPayment(_ context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.charges = append(f.charges, req)
	return adapter.ChargeResult{ReferenceID: fmt.Sprintf("%s_ref_%d", f.method, f.seq), Status: model.PaymentStatusPending}, nil
}

func (f *fakeStrategy) Capture(_ context.Context, orderID string) (string, error) {
	return "CAP-" + orderID, nil
}

func (f *fakeStrategy) ProcessRefund(_ context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, req)
	if f.RefundErr != nil {
		return adapter.RefundResult{}, f.RefundErr
	}
	return adapter.RefundResult{ProviderID: fmt.Sprintf("re_%d", len(f.refunds)), Status: f.RefundStatus}, nil
}

func (f *fakeStrategy) FetchStatus(context.Context, string) (adapter.StatusResult, error) {
	return f.Status, f.StatusErr
}

func (f *fakeStrategy) refundCalls() []adapter.RefundRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adapter.RefundRequest(nil), f.refunds...)
}

// ---- fakeNotifier ----

type rentalCall struct {
	Update adapter.RentalUpdate
	Auth   string
}

type subCall struct {
	Update adapter.SubscriptionUpdate
	Auth   string
}

type fakeNotifier struct {
	mu      sync.Mutex
	subs    []subCall
	rentals []rentalCall

	Err error
}

var _ adapter.ServiceNotifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) NotifySubscription(_ context.Context, u adapter.SubscriptionUpdate, auth string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, subCall{Update: u, Auth: auth})
	return f.Err
}

func (f *fakeNotifier) NotifyRental(_ context.Context, u adapter.RentalUpdate, auth string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rentals = append(f.rentals, rentalCall{Update: u, Auth: auth})
	return f.Err
}

func (f *fakeNotifier) counts() (subs, rentals int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs), len(f.rentals)
}

// ---- fakeAlerter ----

type fakeAlerter struct {
	mu   sync.Mutex
	sent []string

	Err error
}

func (f *fakeAlerter) Alert(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.Err
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// ---- fakeInspector ----

type fakeInspector struct {
	Undamaged bool
	Err       error
	seen      []string
}

func (f *fakeInspector) Inspect(_ context.Context, cycleID string) (bool, error) {
	f.seen = append(f.seen, cycleID)
	return f.Undamaged, f.Err
}

// ---- fakeVerifier ----

type fakeVerifier struct {
	provider model.Provider
	Event    *model.PaymentEvent
	Err      error
}

func (f *fakeVerifier) Provider() model.Provider { return f.provider }

func (f *fakeVerifier) Verify(context.Context, adapter.WebhookRequest) (*model.PaymentEvent, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Event == nil {
		return nil, nil
	}
	ev := *f.Event
	return &ev, nil
}

// ---- fakeLocker ----

var errHeld = errors.New("lock held")

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked int
}

func (f *fakeLocker) TryLock(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]string{}
	}
	if _, ok := f.held[key]; ok {
		return "", errHeld
	}
	f.held[key] = "tok-" + key
	return f.held[key], nil
}

func (f *fakeLocker) Unlock(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
		f.unlocked++
	}
	return nil
}

// =============================
// Fixtures
// =============================

func strptr(s string) *string { return &s }
