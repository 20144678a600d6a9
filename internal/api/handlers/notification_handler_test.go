package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptodesk/internal/models"
)

// ============ NotificationHandler Tests ============

func TestNotificationHandler_GetNotifications(t *testing.T) {
	t.Run("returns empty list when journal is empty", func(t *testing.T) {
		handler := NewNotificationHandler(&MockNotificationSource{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()
		handler.GetNotifications(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 0 {
			t.Errorf("expected total 0, got %d", response.Total)
		}
		if response.Notifications == nil {
			t.Error("notifications must be an empty array, not null")
		}
	})

	t.Run("returns journal entries", func(t *testing.T) {
		mockSource := &MockNotificationSource{}
		mockSource.AddNotification("ord-1", models.NotifyPayment, "payment confirmed")
		mockSource.AddNotification("ord-2", models.NotifyPayout, "payout settled")
		handler := NewNotificationHandler(mockSource)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()
		handler.GetNotifications(w, req)

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 2 {
			t.Errorf("expected total 2, got %d", response.Total)
		}
	})

	t.Run("filters by order id", func(t *testing.T) {
		mockSource := &MockNotificationSource{}
		mockSource.AddNotification("ord-1", models.NotifyPayment, "payment confirmed")
		mockSource.AddNotification("ord-2", models.NotifyPayout, "payout settled")
		handler := NewNotificationHandler(mockSource)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?order_id=ord-1", nil)
		w := httptest.NewRecorder()
		handler.GetNotifications(w, req)

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 1 {
			t.Errorf("expected total 1, got %d", response.Total)
		}
		if response.Notifications[0].OrderID != "ord-1" {
			t.Errorf("order id = %s", response.Notifications[0].OrderID)
		}
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		mockSource := &MockNotificationSource{}
		for i := 0; i < 10; i++ {
			mockSource.AddNotification("ord-1", models.NotifyPayment, "entry")
		}
		handler := NewNotificationHandler(mockSource)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=5", nil)
		w := httptest.NewRecorder()
		handler.GetNotifications(w, req)

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 5 {
			t.Errorf("expected total 5 (limited), got %d", response.Total)
		}
	})

	t.Run("returns 500 on database error", func(t *testing.T) {
		handler := NewNotificationHandler(&MockNotificationSource{getErr: ErrMockDatabase})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()
		handler.GetNotifications(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestNotificationHandler_ClearNotifications(t *testing.T) {
	t.Run("clears journal", func(t *testing.T) {
		mockSource := &MockNotificationSource{}
		mockSource.AddNotification("ord-1", models.NotifyPayment, "entry")
		handler := NewNotificationHandler(mockSource)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()
		handler.ClearNotifications(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if got, _ := mockSource.GetRecent("", 100); len(got) != 0 {
			t.Errorf("journal not cleared, %d entries left", len(got))
		}
	})

	t.Run("returns 500 on database error", func(t *testing.T) {
		handler := NewNotificationHandler(&MockNotificationSource{clearErr: ErrMockDatabase})

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()
		handler.ClearNotifications(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
