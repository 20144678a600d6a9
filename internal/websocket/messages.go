package websocket

import (
	"time"

	"cryptodesk/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений операторской панели
const (
	// MessageTypeOrderUpdate - смена состояния заявки.
	// Отправляется после каждого успешного перехода state machine.
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeNotification - новая запись операторского журнала
	MessageTypeNotification MessageType = "notification"

	// MessageTypeStatsUpdate - обновление статистики после
	// завершения заявки
	MessageTypeStatsUpdate MessageType = "statsUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateMessage - сообщение о смене состояния заявки
type OrderUpdateMessage struct {
	BaseMessage
	OrderID string           `json:"order_id"`
	Data    *OrderUpdateData `json:"data"`
}

// OrderUpdateData - снимок заявки для панели.
// Только то, что панель реально показывает: полная заявка доступна
// через GET /api/v1/orders/{id}.
type OrderUpdateData struct {
	Status            string    `json:"status"`
	Currency          string    `json:"currency,omitempty"`
	Network           string    `json:"network,omitempty"`
	Method            string    `json:"method,omitempty"`
	FiatAmountMinor   int64     `json:"fiat_amount_minor"`
	NetPayoutMinor    int64     `json:"net_payout_minor"`
	PaymentRef        string    `json:"payment_ref,omitempty"`
	PayoutDestination string    `json:"payout_destination,omitempty"`
	AttemptCount      int       `json:"attempt_count"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NotificationMessage - сообщение о новой записи журнала
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// StatsUpdateMessage - сообщение с обновлённой статистикой
type StatsUpdateMessage struct {
	BaseMessage
	Data interface{} `json:"data"`
}

// NewOrderUpdateMessage создает сообщение смены состояния заявки
func NewOrderUpdateMessage(order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		Data: &OrderUpdateData{
			Status:            order.Status,
			Currency:          order.Currency,
			Network:           order.Network,
			Method:            order.Method,
			FiatAmountMinor:   order.FiatAmountMinor,
			NetPayoutMinor:    order.NetPayoutMinor,
			PaymentRef:        order.PaymentRef,
			PayoutDestination: order.PayoutDestination,
			AttemptCount:      order.AttemptCount,
			ErrorMessage:      order.ErrorMessage,
			UpdatedAt:         order.UpdatedAt,
		},
	}
}

// NewNotificationMessage создает сообщение записи журнала
func NewNotificationMessage(n *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: n,
	}
}

// NewStatsUpdateMessage создает сообщение обновления статистики
func NewStatsUpdateMessage(stats interface{}) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatsUpdate,
			Timestamp: time.Now(),
		},
		Data: stats,
	}
}
