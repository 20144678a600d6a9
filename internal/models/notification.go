package models

import "time"

// Notification - запись журнала событий заявки для оператора.
// Пишется зеркалированием в БД и рассылается через websocket hub.
type Notification struct {
	ID        int       `json:"id" db:"id"`
	OrderID   string    `json:"order_id" db:"order_id"`
	Type      string    `json:"type" db:"type"`       // payment, payout, error, timeout
	Message   string    `json:"message" db:"message"` // диагностика для оператора
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Типы уведомлений
const (
	NotifyPayment = "payment"
	NotifyPayout  = "payout"
	NotifyError   = "error"
	NotifyTimeout = "timeout"
)
