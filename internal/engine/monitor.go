package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cryptodesk/internal/models"
	"cryptodesk/internal/provider"
)

// Monitor отслеживает поступление оплаты по выставленным счетам.
//
// Наивный опрос с фиксированным интервалом тратит запросы в начале
// (когда оплата маловероятна) и опаздывает в конце. Вместо этого -
// стратегическое расписание: короткая первая задержка, затем
// прогрессивно растущие, с потолком числа попыток.
//
// Одна горутина на заявку, задачи отслеживаются по order_id и
// отменяются кооперативно: на каждом пробуждении задача проверяет
// текущий статус заявки и выходит, если мониторинг больше не нужен.
type Monitor struct {
	store    *Store
	bus      *Bus
	invoices provider.InvoiceProvider
	clock    Clock
	log      *zap.Logger

	// Расписание задержек; после исчерпания повторяется последняя
	delays      []time.Duration
	maxAttempts int

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// DefaultDelays - расписание опроса по умолчанию.
// Итоговое окно ожидания ~2 часа при 12 попытках.
var DefaultDelays = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
}

// ConfirmationPayload - payload события payment_confirmed
type ConfirmationPayload struct {
	SettlementRef string
	Attempts      int
}

// MonitorErrorPayload - payload событий confirmation_error
type MonitorErrorPayload struct {
	Reason string
}

// NewMonitor создаёт монитор подтверждения
func NewMonitor(store *Store, bus *Bus, invoices provider.InvoiceProvider, clock Clock, delays []time.Duration, maxAttempts int, log *zap.Logger) *Monitor {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	if maxAttempts < 1 {
		maxAttempts = 12
	}
	return &Monitor{
		store:       store,
		bus:         bus,
		invoices:    invoices,
		clock:       clock,
		log:         log,
		delays:      delays,
		maxAttempts: maxAttempts,
		tasks:       make(map[string]context.CancelFunc),
	}
}

// Start запускает задачу мониторинга заявки.
// Инвариант: не больше одной задачи на order_id.
func (m *Monitor) Start(ctx context.Context, orderID, paymentRef string) {
	m.mu.Lock()
	if _, exists := m.tasks[orderID]; exists {
		m.mu.Unlock()
		m.log.Warn("monitor task already running", zap.String("order_id", orderID))
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	m.tasks[orderID] = cancel
	m.mu.Unlock()

	ActiveMonitors.Inc()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ActiveMonitors.Dec()
		defer m.remove(orderID)
		m.run(taskCtx, orderID, paymentRef)
	}()
}

// Cancel останавливает задачу мониторинга заявки, если она есть.
// Вызывается при достижении терминального статуса другим путём
// (отмена пользователем, подтверждение через webhook).
func (m *Monitor) Cancel(orderID string) {
	m.mu.Lock()
	cancel, ok := m.tasks[orderID]
	m.mu.Unlock()

	if ok {
		cancel()
	}
}

// Wait блокируется до завершения всех задач (graceful shutdown)
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) remove(orderID string) {
	m.mu.Lock()
	delete(m.tasks, orderID)
	m.mu.Unlock()
}

// run - цикл опроса одной заявки
func (m *Monitor) run(ctx context.Context, orderID, paymentRef string) {
	log := m.log.With(zap.String("order_id", orderID), zap.String("payment_ref", paymentRef))
	started := m.clock.Now()

	attempt := 1
	for attempt <= m.maxAttempts {
		if !m.clock.Sleep(ctx, m.delayFor(attempt)) {
			log.Info("monitor cancelled during sleep")
			return
		}

		// Кооперативная проверка на каждом пробуждении: если заявка
		// ушла из INVOICE_GENERATED другим путём - выходим молча
		order, err := m.store.Get(orderID)
		if err != nil || order.Status != models.StatusInvoiceGenerated {
			log.Info("order no longer awaiting payment, monitor exits")
			return
		}

		status, err := m.invoices.GetInvoiceStatus(ctx, paymentRef)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if provider.IsPermanent(err) {
				log.Error("unrecoverable provider error", zap.Error(err))
				m.bus.Publish(models.EventConfirmationError, orderID, MonitorErrorPayload{Reason: err.Error()})
				return
			}
			// Временная ошибка не расходует бюджет попыток
			log.Warn("transient provider error, attempt not counted",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		m.recordAttempt(orderID)

		switch status.Status {
		case provider.InvoiceStatusReceived:
			if status.SettlementRef == "" {
				// Статус без подтверждающей ссылки не переводит заявку:
				// ждём, пока провайдер рассчитает settlement reference
				log.Warn("received status without settlement reference",
					zap.Int("attempt", attempt))
				attempt++
				continue
			}
			log.Info("payment confirmed",
				zap.Int("attempt", attempt),
				zap.String("settlement_ref", status.SettlementRef))
			ConfirmationAttempts.Observe(float64(attempt))
			ConfirmationDuration.Observe(m.clock.Now().Sub(started).Seconds())
			m.bus.Publish(models.EventPaymentConfirmed, orderID, ConfirmationPayload{
				SettlementRef: status.SettlementRef,
				Attempts:      attempt,
			})
			return

		case provider.InvoiceStatusExpired:
			log.Info("invoice expired on provider side", zap.Int("attempt", attempt))
			m.bus.Publish(models.EventConfirmationTimeout, orderID, nil)
			return

		default: // pending
			attempt++
		}
	}

	log.Info("confirmation attempt ceiling reached", zap.Int("attempts", m.maxAttempts))
	m.bus.Publish(models.EventConfirmationTimeout, orderID, nil)
}

// delayFor возвращает задержку перед попыткой attempt (с 1).
// После конца таблицы повторяется последняя задержка.
func (m *Monitor) delayFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(m.delays) {
		idx = len(m.delays) - 1
	}
	return m.delays[idx]
}

// recordAttempt обновляет служебные поля заявки
func (m *Monitor) recordAttempt(orderID string) {
	_, err := m.store.Mutate(orderID, func(o *models.Order) error {
		o.AttemptCount++
		o.LastCheckedAt = m.clock.Now()
		return nil
	})
	if err != nil && !errors.Is(err, ErrOrderTerminal) && !errors.Is(err, ErrOrderNotFound) {
		m.log.Warn("failed to record monitor attempt", zap.String("order_id", orderID), zap.Error(err))
	}
}
