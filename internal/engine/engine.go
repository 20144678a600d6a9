package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cryptodesk/internal/config"
	"cryptodesk/internal/models"
	"cryptodesk/internal/provider"
	"cryptodesk/pkg/utils"
)

// errDuplicateConfirmation - повторное payment_confirmed по заявке,
// у которой ссылка расчёта уже записана. Не ошибка: webhook и монитор
// могут сработать оба, побеждает первый.
var errDuplicateConfirmation = errors.New("payment already confirmed")

// RejectedPayload - payload события event_rejected.
// Подписчик (чат) показывает пользователю причину, заявка не изменилась.
type RejectedPayload struct {
	Kind   string // вид отклонённого события
	Reason string
}

// Engine - движок жизненного цикла заявок. Единственная точка, где
// изменяются состояния: все события проходят через шину и применяются
// воркером шарда заявки, поэтому внутри handleEvent нет гонок по
// одной заявке.
type Engine struct {
	cfg   config.EngineConfig
	store *Store
	bus   *Bus

	monitor    *Monitor
	dispatcher *Dispatcher

	invoices provider.InvoiceProvider
	rates    provider.RateSource
	clock    Clock

	// Контекст Run, передаётся фоновым задачам (монитор, выплата)
	runCtx context.Context

	log *zap.Logger
}

// NewEngine собирает движок и его фоновые компоненты
func NewEngine(cfg config.EngineConfig, invoices provider.InvoiceProvider, resolver provider.AliasResolver, wallet provider.WalletProvider, rates provider.RateSource, clock Clock, log *zap.Logger) *Engine {
	if clock == nil {
		clock = NewRealClock()
	}

	e := &Engine{
		cfg:      cfg,
		invoices: invoices,
		rates:    rates,
		clock:    clock,
		runCtx:   context.Background(),
		log:      log,
	}

	e.store = NewStore(clock)
	e.bus = NewBus(cfg.NumShards, cfg.BusBuffer, e.handleEvent, log)
	e.monitor = NewMonitor(e.store, e.bus, invoices, clock, cfg.MonitorDelays, cfg.MonitorMaxAttempts, log)
	e.dispatcher = NewDispatcher(e.store, e.bus, resolver, wallet, clock, cfg.PayoutVerifyAttempts, cfg.PayoutVerifyInterval, log)

	return e
}

// Run запускает воркеры шины и фоновую очистку, блокируется до отмены
// контекста. После отмены дожидается завершения задач монитора.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx

	go e.sweepLoop(ctx)

	e.bus.Run(ctx)

	// Воркеры остановлены, даём задачам монитора завершиться
	e.monitor.Wait()
	return ctx.Err()
}

// StartOrder создаёт заявку для владельца. У владельца может быть
// только одна активная заявка.
func (e *Engine) StartOrder(ownerID int64) (*models.Order, error) {
	order, err := e.store.Create(ownerID)
	if err != nil {
		return nil, err
	}

	OrdersStarted.Inc()
	e.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.Int64("owner_id", ownerID))

	e.bus.Notify(models.EventStateChanged, order, Event{Kind: models.EventStateChanged, OrderID: order.ID})
	return order, nil
}

// Order возвращает копию заявки
func (e *Engine) Order(orderID string) (*models.Order, error) {
	return e.store.Get(orderID)
}

// OrderByOwner возвращает активную заявку владельца
func (e *Engine) OrderByOwner(ownerID int64) (*models.Order, error) {
	return e.store.GetByOwner(ownerID)
}

// ActiveOrders возвращает копии всех нетерминальных заявок
func (e *Engine) ActiveOrders() []*models.Order {
	return e.store.Active()
}

// ConfirmByPaymentRef обрабатывает webhook провайдера: находит заявку
// по payment_reference и публикует payment_confirmed.
func (e *Engine) ConfirmByPaymentRef(paymentRef, settlementRef string) error {
	order, err := e.store.FindByPaymentRef(paymentRef)
	if err != nil {
		return err
	}

	e.bus.Publish(models.EventPaymentConfirmed, order.ID, ConfirmationPayload{SettlementRef: settlementRef})
	return nil
}

// Publish публикует событие жизненного цикла в шину
func (e *Engine) Publish(kind, orderID string, payload interface{}) bool {
	return e.bus.Publish(kind, orderID, payload)
}

// Subscribe регистрирует подписчика на вид события
func (e *Engine) Subscribe(kind string, h Handler) {
	e.bus.Subscribe(kind, h)
}

// sweepLoop периодически выгружает давно завершённые заявки из памяти
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := e.store.Sweep(e.cfg.Retention)
			OrdersInMemory.Set(float64(e.store.Len()))
			if removed > 0 {
				e.log.Debug("swept terminal orders", zap.Int("removed", removed))
			}
		}
	}
}

// handleEvent применяет событие к заявке. Вызывается воркером шарда,
// для одной заявки всегда последовательно.
func (e *Engine) handleEvent(evt Event) {
	var order *models.Order
	var err error

	switch evt.Kind {
	case models.EventCurrencySelected:
		order, err = e.applyCurrencySelected(evt)
	case models.EventNetworkSelected:
		order, err = e.applyNetworkSelected(evt)
	case models.EventAmountEntered:
		order, err = e.applyAmountEntered(evt)
	case models.EventMethodSelected:
		order, err = e.applyMethodSelected(evt)
	case models.EventPaymentConfirmed:
		order, err = e.applyPaymentConfirmed(evt)
	case models.EventDestinationProvided:
		order, err = e.applyDestinationProvided(evt)
	case models.EventConfirmationTimeout:
		order, err = e.applyTerminal(evt, models.StatusExpired, "")
	case models.EventConfirmationError:
		reason := ""
		if p, ok := evt.Payload.(MonitorErrorPayload); ok {
			reason = p.Reason
		}
		order, err = e.applyTerminal(evt, models.StatusFailed, reason)
	case models.EventPayoutSettled:
		order, err = e.applyPayoutSettled(evt)
	case models.EventPayoutFailed:
		reason := ""
		if p, ok := evt.Payload.(PayoutFailedPayload); ok {
			reason = p.Reason
		}
		order, err = e.applyTerminal(evt, models.StatusFailed, reason)
	case models.EventCancel:
		order, err = e.applyTerminal(evt, models.StatusCancelled, "")
	case models.EventDestinationRejected:
		// Состояние не меняется, только уведомление для чата
		if o, gerr := e.store.Get(evt.OrderID); gerr == nil {
			e.bus.Notify(evt.Kind, o, evt)
		}
		return
	default:
		e.log.Warn("unknown event kind",
			zap.String("kind", evt.Kind),
			zap.String("order_id", evt.OrderID))
		return
	}

	if errors.Is(err, errDuplicateConfirmation) {
		// Гонка webhook/монитор, тихий no-op
		e.log.Debug("duplicate payment confirmation ignored", zap.String("order_id", evt.OrderID))
		return
	}
	if err != nil {
		e.reject(evt, err)
		return
	}

	e.log.Info("order state changed",
		zap.String("order_id", order.ID),
		zap.String("event", evt.Kind),
		zap.String("status", order.Status))

	e.bus.Notify(models.EventStateChanged, order, evt)
	e.bus.Notify(evt.Kind, order, evt)

	if models.IsTerminal(order.Status) {
		RecordOutcome(order.Status)
		// Монитор мог ещё опрашивать счёт (отмена, ошибка выплаты)
		e.monitor.Cancel(order.ID)
	}
}

// reject фиксирует отклонённое событие: метрика, лог, уведомление чата
func (e *Engine) reject(evt Event, err error) {
	reason := "validation"
	var transErr *StateTransitionError
	switch {
	case errors.As(err, &transErr):
		reason = "invalid_transition"
	case errors.Is(err, ErrOrderNotFound):
		reason = "not_found"
	case errors.Is(err, ErrOrderTerminal):
		reason = "terminal"
	}

	RecordRejected(evt.Kind, reason)
	e.log.Warn("event rejected",
		zap.String("kind", evt.Kind),
		zap.String("order_id", evt.OrderID),
		zap.String("reason", reason),
		zap.Error(err))

	// Заявки может не быть (not_found) - подписчики обязаны принять nil
	order, _ := e.store.Get(evt.OrderID)
	e.bus.Notify(models.EventRejected, order, Event{
		Kind:    models.EventRejected,
		OrderID: evt.OrderID,
		Payload: RejectedPayload{Kind: evt.Kind, Reason: err.Error()},
	})
}

func (e *Engine) applyCurrencySelected(evt Event) (*models.Order, error) {
	currency, ok := evt.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("currency_selected: unexpected payload %T", evt.Payload)
	}
	if !models.IsSupportedCurrency(currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrencyNetwork, currency)
	}

	return e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		if err := TryTransition(o, models.StatusCurrencySelected); err != nil {
			return err
		}
		o.Currency = currency
		return nil
	})
}

func (e *Engine) applyNetworkSelected(evt Event) (*models.Order, error) {
	network, ok := evt.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("network_selected: unexpected payload %T", evt.Payload)
	}

	return e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		if models.NetworkSpecFor(o.Currency, network) == nil {
			return fmt.Errorf("%w: %s/%s", ErrUnsupportedCurrencyNetwork, o.Currency, network)
		}
		if err := TryTransition(o, models.StatusNetworkSelected); err != nil {
			return err
		}
		o.Network = network
		return nil
	})
}

// applyAmountEntered проверяет лимиты сети, считает комиссии и объём
// выплаты по текущему курсу. Сумма вне лимитов - заявка остаётся в
// NETWORK_SELECTED, пользователь вводит заново.
func (e *Engine) applyAmountEntered(evt Event) (*models.Order, error) {
	amountMinor, ok := evt.Payload.(int64)
	if !ok {
		return nil, fmt.Errorf("amount_entered: unexpected payload %T", evt.Payload)
	}

	order, err := e.store.Get(evt.OrderID)
	if err != nil {
		return nil, err
	}

	spec := models.NetworkSpecFor(order.Currency, order.Network)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedCurrencyNetwork, order.Currency, order.Network)
	}
	if amountMinor < spec.MinAmountMinor || amountMinor > spec.MaxAmountMinor {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrAmountOutOfRange,
			amountMinor, spec.MinAmountMinor, spec.MaxAmountMinor)
	}

	// Курс берём до мутации: сетевой вызов не должен держать заявку
	priceMinor, err := e.rates.AssetPriceMinor(e.runCtx, order.Currency)
	if err != nil {
		return nil, fmt.Errorf("rate unavailable: %w", err)
	}
	if priceMinor <= 0 {
		return nil, fmt.Errorf("rate unavailable: non-positive price %d", priceMinor)
	}

	quote := models.QuoteFor(amountMinor, spec)
	netPayout := utils.ConvertMinor(quote.NetFiatMinor, models.AssetMinorPerUnit(order.Currency), priceMinor)

	return e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		if err := TryTransition(o, models.StatusAmountEntered); err != nil {
			return err
		}
		o.FiatAmountMinor = quote.FiatAmountMinor
		o.CommissionMinor = quote.CommissionMinor
		o.PartnerFeeMinor = quote.PartnerFeeMinor
		o.NetPayoutMinor = netPayout
		return nil
	})
}

// applyMethodSelected фиксирует способ оплаты и синхронно выставляет
// счёт у провайдера. Ошибка выставления - заявка остаётся в
// METHOD_SELECTED, событие можно повторить.
func (e *Engine) applyMethodSelected(evt Event) (*models.Order, error) {
	method, ok := evt.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("method_selected: unexpected payload %T", evt.Payload)
	}
	if method != models.MethodSBP && method != models.MethodCard {
		return nil, fmt.Errorf("unsupported payment method: %s", method)
	}

	order, err := e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		// Повторный выбор в METHOD_SELECTED допустим: путь после
		// неудачного выставления счёта
		if o.Status == models.StatusMethodSelected {
			o.Method = method
			return nil
		}
		if err := TryTransition(o, models.StatusMethodSelected); err != nil {
			return err
		}
		o.Method = method
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv, err := e.invoices.CreateInvoice(e.runCtx, order.ID, order.FiatAmountMinor, method)
	if err != nil {
		return nil, fmt.Errorf("invoice creation failed: %w", err)
	}

	order, err = e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		if err := TryTransition(o, models.StatusInvoiceGenerated); err != nil {
			return err
		}
		o.PaymentRef = inv.PaymentRef
		o.PayURL = inv.PayURL
		return nil
	})
	if err != nil {
		// Счёт выставлен, но заявка ушла (отмена в гонке) - оплату по
		// нему монитор не запустит, счёт истечёт у провайдера
		e.log.Error("invoice created but order not transitioned",
			zap.String("order_id", evt.OrderID),
			zap.String("payment_ref", inv.PaymentRef),
			zap.Error(err))
		return nil, err
	}

	e.monitor.Start(e.runCtx, order.ID, order.PaymentRef)
	return order, nil
}

// applyPaymentConfirmed записывает ссылку расчёта. Источник - монитор
// либо webhook; повторное подтверждение игнорируется.
func (e *Engine) applyPaymentConfirmed(evt Event) (*models.Order, error) {
	payload, ok := evt.Payload.(ConfirmationPayload)
	if !ok {
		return nil, fmt.Errorf("payment_confirmed: unexpected payload %T", evt.Payload)
	}
	if payload.SettlementRef == "" {
		return nil, fmt.Errorf("payment confirmation without settlement reference")
	}

	order, err := e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		if o.SettlementRef != "" {
			return errDuplicateConfirmation
		}
		if err := TryTransition(o, models.StatusPaymentConfirmed); err != nil {
			return err
		}
		o.SettlementRef = payload.SettlementRef
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Подтверждение могло прийти webhook'ом - опрос больше не нужен
	e.monitor.Cancel(order.ID)
	return order, nil
}

// applyDestinationProvided проверяет синтаксис адреса и запускает
// выплату. Повторный ввод в DESTINATION_SET перезаписывает адрес:
// путь после destination_rejected.
func (e *Engine) applyDestinationProvided(evt Event) (*models.Order, error) {
	destination, ok := evt.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("destination_provided: unexpected payload %T", evt.Payload)
	}

	current, err := e.store.Get(evt.OrderID)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateDestination(current.Network, destination); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}

	order, err := e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		if o.Status == models.StatusDestinationSet {
			o.PayoutDestination = destination
			return nil
		}
		if err := TryTransition(o, models.StatusDestinationSet); err != nil {
			return err
		}
		o.PayoutDestination = destination
		return nil
	})
	if err != nil {
		return nil, err
	}

	go e.dispatcher.Dispatch(e.runCtx, order.ID)
	return order, nil
}

func (e *Engine) applyPayoutSettled(evt Event) (*models.Order, error) {
	return e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		return TryTransition(o, models.StatusCompleted)
	})
}

// applyTerminal переводит заявку в терминальный статус с причиной
func (e *Engine) applyTerminal(evt Event, status, reason string) (*models.Order, error) {
	return e.store.Mutate(evt.OrderID, func(o *models.Order) error {
		if err := TryTransition(o, status); err != nil {
			return err
		}
		if reason != "" {
			o.ErrorMessage = reason
		}
		return nil
	})
}
