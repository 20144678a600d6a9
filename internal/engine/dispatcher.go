package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cryptodesk/internal/models"
	"cryptodesk/internal/provider"
	"cryptodesk/pkg/retry"
)

// Dispatcher выполняет выплату после подтверждения оплаты и
// получения адреса.
//
// Порядок шагов жёсткий:
//  1. резолвинг получателя (алиас → платёжный запрос)
//  2. проверка баланса кошелька
//  3. идемпотентный guard: флаг payout_dispatched ставится ДО
//     внешнего вызова - повтор диспатча после рестарта или дубля
//     события не отправит деньги второй раз
//  4. отправка платежа
//  5. верификация с коротким потолком попыток
type Dispatcher struct {
	store    *Store
	bus      *Bus
	resolver provider.AliasResolver
	wallet   provider.WalletProvider
	clock    Clock
	log      *zap.Logger

	// Верификация короткая: быстрая сеть рассчитывается за секунды
	verifyAttempts int
	verifyInterval time.Duration
}

// PayoutSettledPayload - payload события payout_settled
type PayoutSettledPayload struct {
	PaymentID string
}

// PayoutFailedPayload - payload события payout_failed
type PayoutFailedPayload struct {
	Reason string
}

// DestinationRejectedPayload - payload события destination_rejected
type DestinationRejectedPayload struct {
	Destination string
	Reason      string
}

// NewDispatcher создаёт диспетчер выплат
func NewDispatcher(store *Store, bus *Bus, resolver provider.AliasResolver, wallet provider.WalletProvider, clock Clock, verifyAttempts int, verifyInterval time.Duration, log *zap.Logger) *Dispatcher {
	if verifyAttempts < 1 {
		verifyAttempts = 10
	}
	if verifyInterval <= 0 {
		verifyInterval = 3 * time.Second
	}
	return &Dispatcher{
		store:          store,
		bus:            bus,
		resolver:       resolver,
		wallet:         wallet,
		clock:          clock,
		log:            log,
		verifyAttempts: verifyAttempts,
		verifyInterval: verifyInterval,
	}
}

// Dispatch выполняет выплату по заявке в статусе DESTINATION_SET.
// Запускается движком в отдельной горутине.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID string) {
	log := d.log.With(zap.String("order_id", orderID))

	order, err := d.store.Get(orderID)
	if err != nil {
		log.Error("dispatch: order not found", zap.Error(err))
		return
	}
	if order.Status != models.StatusDestinationSet && order.Status != models.StatusPayoutDispatched {
		log.Warn("dispatch: unexpected order status", zap.String("status", order.Status))
		return
	}

	// --- Шаг 1: резолвинг получателя ---
	payReq, err := d.resolveDestination(ctx, order)
	if err != nil {
		// Не терминально: пользователь укажет другой адрес.
		// Баланс не проверяем, платёж не отправляем.
		log.Warn("destination resolution failed", zap.Error(err))
		d.bus.Publish(models.EventDestinationRejected, orderID, DestinationRejectedPayload{
			Destination: order.PayoutDestination,
			Reason:      err.Error(),
		})
		return
	}

	// Если выплата уже была отправлена (дубль события или рестарт),
	// пропускаем баланс и отправку - сразу верификация
	if order.PayoutDispatched {
		if order.PayoutPaymentID == "" {
			// Окно между коммитом guard-флага и записью payment_id:
			// первый диспетчер ещё не вернулся из кошелька
			log.Warn("payout dispatched but payment id not yet recorded, duplicate trigger ignored")
			return
		}
		log.Info("payout already dispatched, verifying only")
		d.verify(ctx, orderID, order.PayoutPaymentID)
		return
	}

	// --- Шаг 2: проверка баланса ---
	balance, err := d.checkBalance(ctx)
	if err != nil {
		log.Error("balance check failed", zap.Error(err))
		d.bus.Publish(models.EventPayoutFailed, orderID, PayoutFailedPayload{Reason: "balance check failed: " + err.Error()})
		return
	}
	WalletBalance.Set(float64(balance))

	if balance < order.NetPayoutMinor {
		// Фатально для заявки: не ретраим, нужен оператор
		log.Error("insufficient wallet balance",
			zap.Int64("balance", balance),
			zap.Int64("required", order.NetPayoutMinor))
		d.bus.Publish(models.EventPayoutFailed, orderID, PayoutFailedPayload{Reason: ErrInsufficientBalance.Error()})
		return
	}

	// --- Шаг 3: идемпотентный guard ---
	// Флаг и переход PAYOUT_DISPATCHED коммитятся до внешнего вызова.
	// Проигравший гонку получает errAlreadyDispatched и выходит.
	_, err = d.store.Mutate(orderID, func(o *models.Order) error {
		if o.PayoutDispatched {
			return errAlreadyDispatched
		}
		if err := TryTransition(o, models.StatusPayoutDispatched); err != nil {
			return err
		}
		o.PayoutDispatched = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyDispatched) {
			log.Info("payout already dispatched by concurrent trigger, skipping send")
		} else {
			log.Error("dispatch guard failed", zap.Error(err))
		}
		return
	}
	PayoutsDispatched.Inc()

	// --- Шаг 4: отправка ---
	payout, err := d.wallet.Pay(ctx, payReq)
	if err != nil {
		// Повторная отправка без подтверждения судьбы первой рискует
		// двойной выплатой - фиксируем FAILED для разбора оператором
		log.Error("payout submission failed", zap.Error(err))
		d.bus.Publish(models.EventPayoutFailed, orderID, PayoutFailedPayload{Reason: err.Error()})
		return
	}

	log.Info("payout submitted", zap.String("payment_id", payout.PaymentID))
	if _, err := d.store.Mutate(orderID, func(o *models.Order) error {
		o.PayoutPaymentID = payout.PaymentID
		return nil
	}); err != nil {
		log.Warn("failed to record payout payment id", zap.Error(err))
	}

	// --- Шаг 5: верификация ---
	d.verify(ctx, orderID, payout.PaymentID)
}

// errAlreadyDispatched - внутренний сигнал guard'а
var errAlreadyDispatched = errors.New("payout already dispatched")

// resolveDestination превращает получателя в платёжный запрос.
// Алиас name@domain проходит двухшаговый резолвинг, прямой
// платёжный запрос передаётся как есть.
func (d *Dispatcher) resolveDestination(ctx context.Context, order *models.Order) (*provider.PaymentRequest, error) {
	if provider.IsAlias(order.PayoutDestination) {
		return d.resolver.Resolve(ctx, order.PayoutDestination, order.NetPayoutMinor)
	}
	return &provider.PaymentRequest{
		Request:     order.PayoutDestination,
		AmountMinor: order.NetPayoutMinor,
	}, nil
}

// checkBalance запрашивает баланс с retry на временных ошибках
func (d *Dispatcher) checkBalance(ctx context.Context) (int64, error) {
	cfg := retry.NetworkConfig()
	cfg.RetryIf = retry.IsRetryable

	return retry.DoWithResult(ctx, func() (int64, error) {
		return d.wallet.GetBalance(ctx)
	}, cfg)
}

// verify опрашивает статус платежа до расчёта, ошибки или потолка.
// Потолок короткий: быстрая сеть либо рассчитывается за секунды,
// либо платёж завис и нужен оператор.
func (d *Dispatcher) verify(ctx context.Context, orderID, paymentID string) {
	log := d.log.With(zap.String("order_id", orderID), zap.String("payment_id", paymentID))

	for attempt := 1; attempt <= d.verifyAttempts; attempt++ {
		payout, err := d.wallet.GetPaymentStatus(ctx, paymentID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Временные ошибки верификации ретраим внутри бюджета
			log.Warn("payment status check failed",
				zap.Int("attempt", attempt), zap.Error(err))
		} else {
			switch payout.Status {
			case provider.PayoutStatusSettled:
				log.Info("payout settled", zap.Int("attempt", attempt))
				d.bus.Publish(models.EventPayoutSettled, orderID, PayoutSettledPayload{PaymentID: paymentID})
				return
			case provider.PayoutStatusFailed:
				log.Error("payout failed on provider side", zap.String("provider_error", payout.Error))
				d.bus.Publish(models.EventPayoutFailed, orderID, PayoutFailedPayload{Reason: payout.Error})
				return
			}
			// pending - ждём следующую попытку
		}

		if attempt < d.verifyAttempts {
			if !d.clock.Sleep(ctx, d.verifyInterval) {
				return
			}
		}
	}

	log.Error("payout verification ceiling reached")
	d.bus.Publish(models.EventPayoutFailed, orderID, PayoutFailedPayload{Reason: "payout verification timed out"})
}
