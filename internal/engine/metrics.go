package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики движка заявок
// ============================================================
//
// Использование:
// - Grafana дашборды (воронка заявок, время подтверждения)
// - Alertmanager: алерты на рост FAILED и переполнение буферов шины

// ============ Счётчики событий ============

// EventsProcessed - обработанные события шины по видам
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptodesk",
		Subsystem: "engine",
		Name:      "events_processed_total",
		Help:      "Total number of processed bus events",
	},
	[]string{"kind"},
)

// EventsRejected - события, отклонённые state machine
var EventsRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptodesk",
		Subsystem: "engine",
		Name:      "events_rejected_total",
		Help:      "Events rejected by the state machine or validation",
	},
	[]string{"kind", "reason"}, // reason: invalid_transition, validation, not_found
)

// OrdersTotal - завершённые заявки по исходам
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptodesk",
		Subsystem: "engine",
		Name:      "orders_total",
		Help:      "Orders reaching a terminal state",
	},
	[]string{"outcome"}, // completed, failed, expired, cancelled
)

// OrdersStarted - созданные заявки
var OrdersStarted = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "cryptodesk",
		Subsystem: "engine",
		Name:      "orders_started_total",
		Help:      "Orders created through the chat flow",
	},
)

// PayoutsDispatched - отправленные выплаты
var PayoutsDispatched = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "cryptodesk",
		Subsystem: "payout",
		Name:      "dispatched_total",
		Help:      "Total number of payouts submitted to the wallet provider",
	},
)

// ============ Метрики мониторинга ============

// ConfirmationAttempts - число опросов до подтверждения
var ConfirmationAttempts = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "cryptodesk",
		Subsystem: "monitor",
		Name:      "confirmation_attempts",
		Help:      "Polling attempts until payment confirmation",
		Buckets:   []float64{1, 2, 3, 5, 8, 12, 16, 20},
	},
)

// ConfirmationDuration - время от счёта до подтверждения, секунды
var ConfirmationDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "cryptodesk",
		Subsystem: "monitor",
		Name:      "confirmation_duration_seconds",
		Help:      "Time from invoice generation to payment confirmation",
		Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
	},
)

// ActiveMonitors - число активных мониторов подтверждения
var ActiveMonitors = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "cryptodesk",
		Subsystem: "monitor",
		Name:      "active",
		Help:      "Currently running confirmation monitor tasks",
	},
)

// ============ Метрики состояния ============

// OrdersInMemory - заявки в Store
var OrdersInMemory = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "cryptodesk",
		Subsystem: "engine",
		Name:      "orders_in_memory",
		Help:      "Orders currently held in the in-memory store",
	},
)

// WalletBalance - баланс кошелька выплат (sat)
var WalletBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "cryptodesk",
		Subsystem: "payout",
		Name:      "wallet_balance",
		Help:      "Spendable wallet balance in asset minor units",
	},
)

// ============ Метрики шины ============

// BufferOverflows - переполнения буферов шины (события отброшены)
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cryptodesk",
		Subsystem: "bus",
		Name:      "buffer_overflows_total",
		Help:      "Number of bus channel buffer overflows (events dropped)",
	},
	[]string{"shard"},
)

// ============ Вспомогательные функции ============

// RecordEvent фиксирует обработанное событие
func RecordEvent(kind string) {
	EventsProcessed.WithLabelValues(kind).Inc()
}

// RecordRejected фиксирует отклонённое событие
func RecordRejected(kind, reason string) {
	EventsRejected.WithLabelValues(kind, reason).Inc()
}

// RecordOutcome фиксирует терминальный исход заявки
func RecordOutcome(outcome string) {
	OrdersTotal.WithLabelValues(outcome).Inc()
}

// RecordBufferOverflow фиксирует переполнение буфера шарда
func RecordBufferOverflow(shard string) {
	BufferOverflows.WithLabelValues(shard).Inc()
}
