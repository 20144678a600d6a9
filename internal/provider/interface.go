// Package provider содержит клиентов внешних сервисов: платёжный
// провайдер (приём фиата), кошелёк выплат и разрешение алиасов.
// Клиенты stateless относительно заявок и безопасно разделяются
// между горутинами.
package provider

import (
	"context"
	"time"
)

// Статусы счёта у платёжного провайдера
const (
	InvoiceStatusPending  = "pending"  // оплата не поступила
	InvoiceStatusReceived = "received" // средства получены
	InvoiceStatusExpired  = "expired"  // счёт истёк на стороне провайдера
)

// Invoice - выставленный счёт на оплату
type Invoice struct {
	PaymentRef  string    // внешний id счёта (payment_reference заявки)
	PayURL      string    // ссылка/реквизиты для оплаты, отдаётся в чат
	AmountMinor int64     // сумма в копейках
	ExpiresAt   time.Time
}

// InvoiceStatus - результат опроса статуса счёта
type InvoiceStatus struct {
	Status        string // pending, received, expired
	SettlementRef string // подтверждение поступления; пустой, пока не рассчитан
}

// InvoiceProvider - платёжный провайдер входящих переводов (СБП/карта).
// Ошибки сети оборачиваются как transient ProviderError, ошибки
// авторизации и некорректные ответы - как permanent.
type InvoiceProvider interface {
	// CreateInvoice выставляет счёт на сумму в минорных единицах
	CreateInvoice(ctx context.Context, orderID string, amountMinor int64, method string) (*Invoice, error)

	// GetInvoiceStatus опрашивает статус счёта по payment_reference
	GetInvoiceStatus(ctx context.Context, paymentRef string) (*InvoiceStatus, error)
}

// PaymentRequest - одноразовый платёжный запрос для выплаты
type PaymentRequest struct {
	Request     string // bolt11 invoice либо адрес в базовой сети
	AmountMinor int64  // сумма в минорных единицах актива (sat)
}

// AliasResolver разрешает человекочитаемый алиас name@domain в
// одноразовый платёжный запрос на точную сумму (двухшаговый
// HTTP-обмен: метаданные → callback с суммой).
type AliasResolver interface {
	Resolve(ctx context.Context, alias string, amountMinor int64) (*PaymentRequest, error)
}

// PayoutStatus - статус исходящего платежа
const (
	PayoutStatusPending = "pending"
	PayoutStatusSettled = "settled"
	PayoutStatusFailed  = "failed"
)

// Payout - принятый кошельком исходящий платёж
type Payout struct {
	PaymentID string // id платежа у кошелька
	Status    string
	Error     string // текст ошибки провайдера при failed
}

// WalletProvider - кошелёк выплат
type WalletProvider interface {
	// GetBalance возвращает доступный к трате баланс в минорных единицах актива
	GetBalance(ctx context.Context) (int64, error)

	// Pay отправляет платёж по платёжному запросу
	Pay(ctx context.Context, req *PaymentRequest) (*Payout, error)

	// GetPaymentStatus опрашивает статус платежа по его id
	GetPaymentStatus(ctx context.Context, paymentID string) (*Payout, error)
}
