package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptodesk/internal/api/handlers"
	"cryptodesk/internal/api/middleware"
	"cryptodesk/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine        handlers.OrderEngine
	Confirmer     handlers.PaymentConfirmer
	Stats         handlers.StatsSource
	Notifications handlers.NotificationSource
	Hub           *websocket.Hub

	// APITokenHash - bcrypt хэш операторского токена
	APITokenHash string
	// WebhookSecret - ключ HMAC подписи webhook'ов провайдера
	WebhookSecret string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /webhooks/
//	│   └── POST /payment - уведомление провайдера об оплате (HMAC)
//	├── /orders/           (Bearer auth)
//	│   ├── GET / - активные заявки
//	│   ├── GET /{id} - заявка по id
//	│   └── POST /{id}/cancel - отмена заявки
//	├── /notifications/    (Bearer auth)
//	│   ├── GET / - журнал событий
//	│   └── DELETE / - очистка журнала
//	└── /stats/            (Bearer auth)
//	    ├── GET / - статистика за период
//	    └── GET /daily - оборот по дням
//
// /ws/orders - WebSocket поток смен состояния заявок
// /metrics - Prometheus метрики
// /health - проверка живости
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только операторские маршруты; webhook защищён подписью)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Webhook провайдера: вне Bearer auth, подлинность по HMAC подписи
	if deps != nil && deps.Confirmer != nil {
		webhookHandler := handlers.NewWebhookHandler(deps.Confirmer, deps.WebhookSecret)
		api.HandleFunc("/webhooks/payment", webhookHandler.PaymentWebhook).Methods("POST")
	}

	// Операторские маршруты за Bearer auth
	operator := api.NewRoute().Subrouter()
	if deps != nil && deps.APITokenHash != "" {
		operator.Use(middleware.Auth(deps.APITokenHash))
	}

	if deps != nil && deps.Engine != nil {
		orderHandler := handlers.NewOrderHandler(deps.Engine)
		operator.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		operator.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")
		operator.HandleFunc("/orders/{id}/cancel", orderHandler.CancelOrder).Methods("POST")
	}

	if deps != nil && deps.Notifications != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
		operator.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		operator.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	if deps != nil && deps.Stats != nil {
		statsHandler := handlers.NewStatsHandler(deps.Stats)
		operator.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")
		operator.HandleFunc("/stats/daily", statsHandler.GetDailyVolume).Methods("GET")
	}

	// WebSocket поток для панели
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
