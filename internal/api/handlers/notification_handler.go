package handlers

import (
	"net/http"
	"strconv"

	"cryptodesk/internal/models"
)

// NotificationSource - журнал событий заявок
type NotificationSource interface {
	GetRecent(orderID string, limit int) ([]*models.Notification, error)
	Clear() error
}

// NotificationHandler отвечает за журнал событий заявок
//
// Endpoints:
// - GET /api/v1/notifications - журнал (последние 100)
// - GET /api/v1/notifications?order_id=...&limit=50 - с фильтрацией
// - DELETE /api/v1/notifications - очистка журнала
type NotificationHandler struct {
	notifications NotificationSource
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимости
func NewNotificationHandler(notifications NotificationSource) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// GetNotifications возвращает журнал событий
//
// GET /api/v1/notifications
//
// Query параметры:
// - order_id (string): только записи одной заявки
// - limit (int): количество записей (по умолчанию 100, максимум 500)
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")

	limit := 100
	if param := r.URL.Query().Get("limit"); param != "" {
		if parsed, ok := parsePositiveInt(param); ok {
			limit = parsed
		}
	}
	if limit > 500 {
		limit = 500
	}

	notifications, err := h.notifications.GetRecent(orderID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
		return
	}

	if notifications == nil {
		notifications = []*models.Notification{}
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}

// ClearNotifications очищает журнал событий
//
// DELETE /api/v1/notifications
//
// Действие необратимо.
//
// HTTP коды:
// - 200 OK: журнал очищен
// - 500 Internal Server Error: ошибка БД
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Clear(); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to clear notifications: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Notifications cleared successfully"})
}

// parsePositiveInt парсит положительное целое из query параметра
func parsePositiveInt(s string) (int, bool) {
	parsed, err := strconv.Atoi(s)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}
