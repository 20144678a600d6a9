package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"cryptodesk/internal/provider"
)

// ============ Фейковые часы ============

// fakeClock - часы без реальных sleep'ов. Sleep записывает задержку,
// продвигает время и возвращается мгновенно.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) bool {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

func (c *fakeClock) recordedSleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// ============ Фейковый платёжный провайдер ============

type fakeInvoices struct {
	mu sync.Mutex

	createErr   error
	createCalls int

	// Сценарий ответов GetInvoiceStatus; после исчерпания повторяется
	// последний элемент
	statusScript []statusStep
	statusCalls  int
}

type statusStep struct {
	status *provider.InvoiceStatus
	err    error
}

func (f *fakeInvoices) CreateInvoice(ctx context.Context, orderID string, amountMinor int64, method string) (*provider.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &provider.Invoice{
		PaymentRef:  "inv-" + orderID,
		PayURL:      "https://pay.example.com/inv-" + orderID,
		AmountMinor: amountMinor,
		ExpiresAt:   time.Now().Add(2 * time.Hour),
	}, nil
}

func (f *fakeInvoices) GetInvoiceStatus(ctx context.Context, paymentRef string) (*provider.InvoiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.statusScript) == 0 {
		return &provider.InvoiceStatus{Status: provider.InvoiceStatusPending}, nil
	}
	idx := f.statusCalls - 1
	if idx >= len(f.statusScript) {
		idx = len(f.statusScript) - 1
	}
	step := f.statusScript[idx]
	return step.status, step.err
}

func (f *fakeInvoices) calls() (create, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.statusCalls
}

// ============ Фейковый резолвер алиасов ============

type fakeResolver struct {
	mu         sync.Mutex
	resolveErr error
	calls      int
}

func (f *fakeResolver) Resolve(ctx context.Context, alias string, amountMinor int64) (*provider.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &provider.PaymentRequest{
		Request:     "lnbc-resolved-" + alias,
		AmountMinor: amountMinor,
	}, nil
}

// ============ Фейковый кошелёк ============

type fakeWallet struct {
	mu sync.Mutex

	balance    int64
	balanceErr error

	payErr   error
	payCalls int

	// Сценарий GetPaymentStatus
	statusScript []payoutStep
	statusCalls  int
}

type payoutStep struct {
	payout *provider.Payout
	err    error
}

func (f *fakeWallet) GetBalance(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeWallet) Pay(ctx context.Context, req *provider.PaymentRequest) (*provider.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payCalls++
	if f.payErr != nil {
		return nil, f.payErr
	}
	return &provider.Payout{PaymentID: "pay-001", Status: provider.PayoutStatusPending}, nil
}

func (f *fakeWallet) GetPaymentStatus(ctx context.Context, paymentID string) (*provider.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusScript) == 0 {
		return &provider.Payout{PaymentID: paymentID, Status: provider.PayoutStatusSettled}, nil
	}
	idx := f.statusCalls
	if idx >= len(f.statusScript) {
		idx = len(f.statusScript) - 1
	}
	f.statusCalls++
	step := f.statusScript[idx]
	return step.payout, step.err
}

func (f *fakeWallet) paySubmissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payCalls
}

// ============ Фейковый источник курсов ============

type fakeRates struct {
	mu       sync.Mutex
	priceMap map[string]int64
	err      error
}

func newFakeRates() *fakeRates {
	return &fakeRates{priceMap: map[string]int64{
		"BTC":  600_000_000, // 6 000 000 руб за BTC в копейках
		"USDT": 8_000,       // 80 руб за USDT
	}}
}

func (f *fakeRates) AssetPriceMinor(ctx context.Context, currency string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	price, ok := f.priceMap[currency]
	if !ok {
		return 0, errors.New("unknown currency")
	}
	return price, nil
}
