package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"cryptodesk/internal/models"
)

// ============ OrderHandler Tests ============

func activeTestOrder(id string, createdAt time.Time) *models.Order {
	return &models.Order{
		ID:              id,
		OwnerID:         100,
		Currency:        models.CurrencyBTC,
		Network:         models.NetworkLightning,
		Status:          models.StatusInvoiceGenerated,
		FiatAmountMinor: 150000,
		NetPayoutMinor:  23500,
		PaymentRef:      "inv-" + id,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

// orderRouter прогоняет запрос через mux, чтобы работали path-переменные
func orderRouter(h *OrderHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/orders", h.GetOrders).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/orders/{id}/cancel", h.CancelOrder).Methods(http.MethodPost)
	return r
}

func TestOrderHandler_GetOrders(t *testing.T) {
	t.Run("returns active orders newest first", func(t *testing.T) {
		mockEngine := NewMockOrderEngine()
		now := time.Now()
		mockEngine.AddOrder(activeTestOrder("ord-old", now.Add(-time.Hour)))
		mockEngine.AddOrder(activeTestOrder("ord-new", now))

		terminal := activeTestOrder("ord-done", now)
		terminal.Status = models.StatusCompleted
		mockEngine.AddOrder(terminal)

		handler := NewOrderHandler(mockEngine)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response GetOrdersResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Total != 2 {
			t.Errorf("expected total 2, got %d", response.Total)
		}
		if response.Orders[0].ID != "ord-new" {
			t.Errorf("expected newest order first, got %s", response.Orders[0].ID)
		}
		if response.Orders[0].FiatAmount == "" {
			t.Error("expected formatted fiat amount")
		}
	})

	t.Run("empty store", func(t *testing.T) {
		handler := NewOrderHandler(NewMockOrderEngine())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		var response GetOrdersResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 0 || len(response.Orders) != 0 {
			t.Errorf("expected empty list, got %+v", response)
		}
	})
}

func TestOrderHandler_GetOrder(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mockEngine := NewMockOrderEngine()
		mockEngine.AddOrder(activeTestOrder("ord-1", time.Now()))
		handler := NewOrderHandler(mockEngine)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var dto OrderDTO
		if err := json.NewDecoder(w.Body).Decode(&dto); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if dto.ID != "ord-1" {
			t.Errorf("expected ord-1, got %s", dto.ID)
		}
		if dto.Status != models.StatusInvoiceGenerated {
			t.Errorf("status = %s", dto.Status)
		}
	})

	t.Run("not found", func(t *testing.T) {
		handler := NewOrderHandler(NewMockOrderEngine())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ghost", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestOrderHandler_CancelOrder(t *testing.T) {
	t.Run("accepted with reason from body", func(t *testing.T) {
		mockEngine := NewMockOrderEngine()
		mockEngine.AddOrder(activeTestOrder("ord-1", time.Now()))
		handler := NewOrderHandler(mockEngine)

		body := bytes.NewBufferString(`{"reason":"fraud suspected"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/cancel", body)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
		}

		events := mockEngine.publishedEvents()
		if len(events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(events))
		}
		if events[0].kind != models.EventCancel || events[0].orderID != "ord-1" {
			t.Errorf("published %+v", events[0])
		}
		if events[0].payload != "fraud suspected" {
			t.Errorf("payload = %v", events[0].payload)
		}
	})

	t.Run("default reason without body", func(t *testing.T) {
		mockEngine := NewMockOrderEngine()
		mockEngine.AddOrder(activeTestOrder("ord-1", time.Now()))
		handler := NewOrderHandler(mockEngine)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/cancel", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
		}

		events := mockEngine.publishedEvents()
		if len(events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(events))
		}
		if events[0].payload != "cancelled by operator" {
			t.Errorf("payload = %v", events[0].payload)
		}
	})

	t.Run("not found", func(t *testing.T) {
		handler := NewOrderHandler(NewMockOrderEngine())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ghost/cancel", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("conflict on terminal order", func(t *testing.T) {
		mockEngine := NewMockOrderEngine()
		done := activeTestOrder("ord-1", time.Now())
		done.Status = models.StatusCompleted
		mockEngine.AddOrder(done)
		handler := NewOrderHandler(mockEngine)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/cancel", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
		if len(mockEngine.publishedEvents()) != 0 {
			t.Error("no event should be published for terminal order")
		}
	})

	t.Run("queue full", func(t *testing.T) {
		mockEngine := NewMockOrderEngine()
		mockEngine.AddOrder(activeTestOrder("ord-1", time.Now()))
		mockEngine.queueFull = true
		handler := NewOrderHandler(mockEngine)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/cancel", nil)
		w := httptest.NewRecorder()
		orderRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})
}
