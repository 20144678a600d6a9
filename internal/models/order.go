package models

import "time"

// Order представляет заявку на покупку криптовалюты.
// Центральная сущность: создаётся при старте покупки в чате и
// проходит через state machine до терминального статуса.
type Order struct {
	ID       string `json:"id" db:"id"`             // корреляционный ключ (UUID)
	OwnerID  int64  `json:"owner_id" db:"owner_id"` // пользователь/чат-сессия
	Currency string `json:"currency" db:"currency"` // BTC, USDT
	Network  string `json:"network" db:"network"`   // lightning, onchain, trc20
	Method   string `json:"method" db:"method"`     // способ оплаты (sbp, card)

	// Денежные значения в минорных единицах (копейки) - без float
	FiatAmountMinor int64 `json:"fiat_amount_minor" db:"fiat_amount_minor"`
	CommissionMinor int64 `json:"commission_minor" db:"commission_minor"`
	PartnerFeeMinor int64 `json:"partner_fee_minor" db:"partner_fee_minor"`
	NetPayoutMinor  int64 `json:"net_payout_minor" db:"net_payout_minor"` // к выплате, в минорных единицах актива (sat)

	// Внешние идентификаторы
	PaymentRef    string `json:"payment_ref" db:"payment_ref"`       // id счёта у платёжного провайдера
	SettlementRef string `json:"settlement_ref" db:"settlement_ref"` // подтверждение поступления (tx id)

	// Выплата
	PayoutDestination string `json:"payout_destination" db:"payout_destination"` // адрес или алиас name@domain
	PayoutPaymentID   string `json:"payout_payment_id" db:"payout_payment_id"`   // id платежа у кошелька
	PayoutDispatched  bool   `json:"payout_dispatched" db:"payout_dispatched"`   // guard: выплата отправлена

	// Ссылка на оплату счёта, отдаётся в чат после выставления
	PayURL string `json:"pay_url" db:"pay_url"`

	Status string `json:"status" db:"status"`
	// Причина терминальной ошибки для разбора оператором
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	// Служебные поля монитора подтверждения
	AttemptCount  int       `json:"attempt_count" db:"attempt_count"`
	LastCheckedAt time.Time `json:"last_checked_at" db:"last_checked_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы заявки (state machine)
const (
	StatusCreated           = "CREATED"            // заявка создана
	StatusCurrencySelected  = "CURRENCY_SELECTED"  // выбрана валюта
	StatusNetworkSelected   = "NETWORK_SELECTED"   // выбрана сеть
	StatusAmountEntered     = "AMOUNT_ENTERED"     // введена сумма
	StatusMethodSelected    = "METHOD_SELECTED"    // выбран способ оплаты
	StatusInvoiceGenerated  = "INVOICE_GENERATED"  // счёт выставлен, ожидание оплаты
	StatusPaymentConfirmed  = "PAYMENT_CONFIRMED"  // поступление подтверждено
	StatusDestinationSet    = "DESTINATION_SET"    // указан адрес выплаты
	StatusPayoutDispatched  = "PAYOUT_DISPATCHED"  // выплата отправлена
	StatusCompleted         = "COMPLETED"          // выплата доставлена
	StatusFailed            = "FAILED"             // ошибка, требуется оператор
	StatusExpired           = "EXPIRED"            // оплата не поступила в срок
	StatusCancelled         = "CANCELLED"          // отменена пользователем
)

// IsTerminal возвращает true для терминальных статусов.
// Терминальная заявка неизменяема.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Виды событий, проходящих через Event Bus
const (
	EventCurrencySelected    = "currency_selected"
	EventNetworkSelected     = "network_selected"
	EventAmountEntered       = "amount_entered"
	EventMethodSelected      = "method_selected"
	EventDestinationProvided = "destination_provided"
	EventDestinationRejected = "destination_rejected"
	EventPaymentConfirmed    = "payment_confirmed"
	EventConfirmationTimeout = "confirmation_timeout"
	EventConfirmationError   = "confirmation_error"
	EventPayoutSettled       = "payout_settled"
	EventPayoutFailed        = "payout_failed"
	EventCancel              = "cancel"
	EventRejected            = "event_rejected" // событие отклонено (валидация/переход)
	EventStateChanged        = "state_changed" // служебное: уведомление подписчиков после перехода
)
