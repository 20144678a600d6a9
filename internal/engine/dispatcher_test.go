package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cryptodesk/internal/models"
	"cryptodesk/internal/provider"
)

// ============ Dispatcher Tests ============

// readyOrder создаёт заявку в статусе DESTINATION_SET с суммой выплаты
func readyOrder(t *testing.T, store *Store, destination string, payoutMinor int64) *models.Order {
	t.Helper()
	order, err := store.Create(1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	order, err = store.Mutate(order.ID, func(o *models.Order) error {
		o.Status = models.StatusDestinationSet
		o.Currency = models.CurrencyBTC
		o.Network = models.NetworkLightning
		o.PayoutDestination = destination
		o.NetPayoutMinor = payoutMinor
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return order
}

func newDispatcherFixture(resolver *fakeResolver, wallet *fakeWallet) (*Store, *Dispatcher, chan Event) {
	clock := newFakeClock()
	store := NewStore(clock)
	events := make(chan Event, 32)
	d := NewDispatcher(store, busRecorder(events), resolver, wallet, clock, 5, time.Second, zap.NewNop())
	return store, d, events
}

func TestDispatcherHappyPath(t *testing.T) {
	resolver := &fakeResolver{}
	wallet := &fakeWallet{balance: 1_000_000}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "satoshi@wallet.example.com", 24_000)

	d.Dispatch(context.Background(), order.ID)

	evt := awaitEvent(t, events, models.EventPayoutSettled)
	if evt.Payload.(PayoutSettledPayload).PaymentID != "pay-001" {
		t.Errorf("payment id = %s", evt.Payload.(PayoutSettledPayload).PaymentID)
	}
	if wallet.paySubmissions() != 1 {
		t.Errorf("pay calls = %d, want 1", wallet.paySubmissions())
	}

	got, _ := store.Get(order.ID)
	if got.Status != models.StatusPayoutDispatched {
		t.Errorf("status = %s, want %s", got.Status, models.StatusPayoutDispatched)
	}
	if !got.PayoutDispatched {
		t.Error("dispatched flag not set")
	}
	if got.PayoutPaymentID != "pay-001" {
		t.Errorf("payout payment id = %s", got.PayoutPaymentID)
	}
}

func TestDispatcherResolutionFailureIsRetryable(t *testing.T) {
	resolver := &fakeResolver{resolveErr: &provider.DestinationResolutionError{
		Destination: "ghost@nowhere.example.com",
		Err:         errors.New("alias not found"),
	}}
	wallet := &fakeWallet{balance: 1_000_000}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "ghost@nowhere.example.com", 24_000)

	d.Dispatch(context.Background(), order.ID)

	evt := awaitEvent(t, events, models.EventDestinationRejected)
	payload := evt.Payload.(DestinationRejectedPayload)
	if payload.Destination != "ghost@nowhere.example.com" {
		t.Errorf("destination = %s", payload.Destination)
	}

	// Деньги не трогали, заявка ждёт другой адрес
	if wallet.paySubmissions() != 0 {
		t.Errorf("pay calls = %d, want 0", wallet.paySubmissions())
	}
	got, _ := store.Get(order.ID)
	if got.Status != models.StatusDestinationSet {
		t.Errorf("status = %s, want %s", got.Status, models.StatusDestinationSet)
	}
	if got.PayoutDispatched {
		t.Error("dispatched flag set after resolution failure")
	}
}

func TestDispatcherInsufficientBalance(t *testing.T) {
	resolver := &fakeResolver{}
	wallet := &fakeWallet{balance: 100} // меньше суммы выплаты

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "satoshi@wallet.example.com", 24_000)

	d.Dispatch(context.Background(), order.ID)

	evt := awaitEvent(t, events, models.EventPayoutFailed)
	if evt.Payload.(PayoutFailedPayload).Reason != ErrInsufficientBalance.Error() {
		t.Errorf("reason = %s", evt.Payload.(PayoutFailedPayload).Reason)
	}
	if wallet.paySubmissions() != 0 {
		t.Errorf("pay calls = %d, want 0", wallet.paySubmissions())
	}
	_ = store
}

func TestDispatcherAtMostOnceSend(t *testing.T) {
	// Конкурентные дубли диспатча: флаг ставится до внешнего вызова,
	// отправить платёж может только один
	resolver := &fakeResolver{}
	wallet := &fakeWallet{balance: 1_000_000}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "satoshi@wallet.example.com", 24_000)

	const dups = 8
	var wg sync.WaitGroup
	for i := 0; i < dups; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), order.ID)
		}()
	}
	wg.Wait()

	if got := wallet.paySubmissions(); got != 1 {
		t.Fatalf("pay submissions = %d, want exactly 1", got)
	}
	awaitEvent(t, events, models.EventPayoutSettled)
}

func TestDispatcherDuplicateWhilePaymentInFlight(t *testing.T) {
	// Guard-флаг уже закоммичен, но payment_id ещё не записан: первый
	// диспетчер не вернулся из кошелька. Дубль выходит без отправки,
	// без верификации и без событий
	resolver := &fakeResolver{}
	wallet := &fakeWallet{balance: 1_000_000}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "satoshi@wallet.example.com", 24_000)

	_, err := store.Mutate(order.ID, func(o *models.Order) error {
		o.Status = models.StatusPayoutDispatched
		o.PayoutDispatched = true
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	d.Dispatch(context.Background(), order.ID)

	if got := wallet.paySubmissions(); got != 0 {
		t.Errorf("pay submissions = %d, want 0", got)
	}
	if len(events) != 0 {
		t.Errorf("published %d events, want none", len(events))
	}
	got, _ := store.Get(order.ID)
	if got.Status != models.StatusPayoutDispatched {
		t.Errorf("status = %s, want %s", got.Status, models.StatusPayoutDispatched)
	}
}

func TestDispatcherSubmissionFailureIsTerminal(t *testing.T) {
	resolver := &fakeResolver{}
	wallet := &fakeWallet{
		balance: 1_000_000,
		payErr:  &provider.ProviderError{Provider: "wallet", Permanent: false, Err: errors.New("timeout")},
	}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "satoshi@wallet.example.com", 24_000)

	d.Dispatch(context.Background(), order.ID)

	// Судьба платежа неизвестна - повторная отправка рискует двойной
	// выплатой, поэтому payout_failed даже на сетевой ошибке
	awaitEvent(t, events, models.EventPayoutFailed)
	if wallet.paySubmissions() != 1 {
		t.Errorf("pay calls = %d, want 1 (no blind retry)", wallet.paySubmissions())
	}

	got, _ := store.Get(order.ID)
	if !got.PayoutDispatched {
		t.Error("dispatched flag must stay set after failed submission")
	}
}

func TestDispatcherVerifyFailure(t *testing.T) {
	resolver := &fakeResolver{}
	wallet := &fakeWallet{
		balance: 1_000_000,
		statusScript: []payoutStep{
			{payout: &provider.Payout{PaymentID: "pay-001", Status: provider.PayoutStatusPending}},
			{payout: &provider.Payout{PaymentID: "pay-001", Status: provider.PayoutStatusFailed, Error: "no route"}},
		},
	}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "satoshi@wallet.example.com", 24_000)

	d.Dispatch(context.Background(), order.ID)

	evt := awaitEvent(t, events, models.EventPayoutFailed)
	if evt.Payload.(PayoutFailedPayload).Reason != "no route" {
		t.Errorf("reason = %s", evt.Payload.(PayoutFailedPayload).Reason)
	}
	_ = store
}

func TestDispatcherVerifyCeiling(t *testing.T) {
	resolver := &fakeResolver{}
	wallet := &fakeWallet{
		balance: 1_000_000,
		statusScript: []payoutStep{
			{payout: &provider.Payout{PaymentID: "pay-001", Status: provider.PayoutStatusPending}},
		},
	}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "satoshi@wallet.example.com", 24_000)

	d.Dispatch(context.Background(), order.ID)

	evt := awaitEvent(t, events, models.EventPayoutFailed)
	if evt.Payload.(PayoutFailedPayload).Reason != "payout verification timed out" {
		t.Errorf("reason = %s", evt.Payload.(PayoutFailedPayload).Reason)
	}
	_ = store
}

func TestDispatcherDirectPaymentRequest(t *testing.T) {
	// bolt11 и адреса базовой сети не проходят через резолвер
	resolver := &fakeResolver{}
	wallet := &fakeWallet{balance: 1_000_000}

	store, d, events := newDispatcherFixture(resolver, wallet)
	order := readyOrder(t, store, "lnbc2500u1pvjluezsp5zyg3zyg3zyg3zyg3zyg3zyg3zyg3", 24_000)

	d.Dispatch(context.Background(), order.ID)

	awaitEvent(t, events, models.EventPayoutSettled)
	resolver.mu.Lock()
	calls := resolver.calls
	resolver.mu.Unlock()
	if calls != 0 {
		t.Errorf("resolver calls = %d, want 0 for direct payment request", calls)
	}
	_ = store
}
