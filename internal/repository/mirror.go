package repository

import (
	"context"

	"go.uber.org/zap"

	"cryptodesk/internal/models"
	"cryptodesk/pkg/utils"
)

// mirrorJob - снимок заявки на запись
type mirrorJob struct {
	order *models.Order
	kind  string
}

// Mirror - асинхронное зеркалирование заявок в Postgres.
//
// Подписывается на смены состояния и пишет их в БД в фоне.
// Контракт: запись НИКОГДА не блокирует и не роняет обработку событий.
// При переполнении очереди или ошибке БД снимок теряется, остаётся
// только лог - следующая смена состояния перезапишет строку целиком,
// поэтому потеря промежуточного снимка не критична.
type Mirror struct {
	orders        *OrderRepository
	notifications *NotificationRepository
	jobs          chan mirrorJob
	log           *zap.Logger

	// onJournal вызывается после успешной записи в журнал
	onJournal func(*models.Notification)
}

// NewMirror создает Mirror с буфером очереди записи
func NewMirror(orders *OrderRepository, notifications *NotificationRepository, buffer int, log *zap.Logger) *Mirror {
	if buffer < 1 {
		buffer = 256
	}
	return &Mirror{
		orders:        orders,
		notifications: notifications,
		jobs:          make(chan mirrorJob, buffer),
		log:           log.With(utils.Component("mirror")),
	}
}

// Handle принимает снимок заявки после события kind.
// Вызывается из воркера шины, поэтому только кладёт в очередь.
func (m *Mirror) Handle(order *models.Order, kind string) {
	if order == nil {
		return
	}
	select {
	case m.jobs <- mirrorJob{order: order, kind: kind}:
	default:
		m.log.Warn("mirror queue full, snapshot dropped",
			utils.OrderID(order.ID),
			utils.EventKind(kind))
	}
}

// OnJournal регистрирует обработчик новых записей журнала
// (рассылка операторской панели). Вызывать до Run.
func (m *Mirror) OnJournal(fn func(*models.Notification)) {
	m.onJournal = fn
}

// Run обрабатывает очередь записи до отмены контекста
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.jobs:
			m.persist(job)
		}
	}
}

func (m *Mirror) persist(job mirrorJob) {
	if err := m.orders.Upsert(job.order); err != nil {
		m.log.Error("order mirror write failed",
			utils.OrderID(job.order.ID),
			utils.State(job.order.Status),
			utils.Err(err))
		return
	}

	if notifyType, message := notificationFor(job); notifyType != "" {
		n := &models.Notification{
			OrderID: job.order.ID,
			Type:    notifyType,
			Message: message,
		}
		if err := m.notifications.Create(n); err != nil {
			m.log.Error("notification write failed",
				utils.OrderID(job.order.ID),
				utils.Err(err))
			return
		}
		if m.onJournal != nil {
			m.onJournal(n)
		}
	}
}

// notificationFor решает, какие события попадают в операторский журнал.
// Рутинные шаги анкеты журнал не засоряют.
func notificationFor(job mirrorJob) (string, string) {
	switch job.kind {
	case models.EventPaymentConfirmed:
		return models.NotifyPayment, "payment confirmed, settlement " + job.order.SettlementRef
	case models.EventPayoutSettled:
		return models.NotifyPayout, "payout settled, payment id " + job.order.PayoutPaymentID
	case models.EventConfirmationTimeout:
		return models.NotifyTimeout, "payment not received in time"
	case models.EventPayoutFailed:
		return models.NotifyError, "payout failed: " + job.order.ErrorMessage
	case models.EventConfirmationError:
		return models.NotifyError, "confirmation failed: " + job.order.ErrorMessage
	}
	return "", ""
}
