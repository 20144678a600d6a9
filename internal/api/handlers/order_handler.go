package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"cryptodesk/internal/engine"
	"cryptodesk/internal/models"
	"cryptodesk/pkg/utils"
)

// OrderEngine - операции движка, нужные операторскому API
type OrderEngine interface {
	Order(orderID string) (*models.Order, error)
	ActiveOrders() []*models.Order
	Publish(kind, orderID string, payload interface{}) bool
}

// OrderHandler отвечает за операторские endpoints заявок
//
// Endpoints:
// - GET /api/v1/orders - список активных заявок
// - GET /api/v1/orders/{id} - заявка по идентификатору
// - POST /api/v1/orders/{id}/cancel - отмена заявки оператором
type OrderHandler struct {
	engine OrderEngine
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимости
func NewOrderHandler(engine OrderEngine) *OrderHandler {
	return &OrderHandler{engine: engine}
}

// OrderDTO представляет заявку в API. Суммы отдаются и в минорных
// единицах, и в готовом для панели виде.
type OrderDTO struct {
	ID                string `json:"id"`
	OwnerID           int64  `json:"owner_id"`
	Status            string `json:"status"`
	Currency          string `json:"currency,omitempty"`
	Network           string `json:"network,omitempty"`
	Method            string `json:"method,omitempty"`
	FiatAmountMinor   int64  `json:"fiat_amount_minor"`
	FiatAmount        string `json:"fiat_amount,omitempty"`
	CommissionMinor   int64  `json:"commission_minor"`
	NetPayoutMinor    int64  `json:"net_payout_minor"`
	NetPayout         string `json:"net_payout,omitempty"`
	PaymentRef        string `json:"payment_ref,omitempty"`
	PayURL            string `json:"pay_url,omitempty"`
	PayoutDestination string `json:"payout_destination,omitempty"`
	AttemptCount      int    `json:"attempt_count"`
	ErrorMessage      string `json:"error_message,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toOrderDTO(o *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                o.ID,
		OwnerID:           o.OwnerID,
		Status:            o.Status,
		Currency:          o.Currency,
		Network:           o.Network,
		Method:            o.Method,
		FiatAmountMinor:   o.FiatAmountMinor,
		CommissionMinor:   o.CommissionMinor,
		NetPayoutMinor:    o.NetPayoutMinor,
		PaymentRef:        o.PaymentRef,
		PayURL:            o.PayURL,
		PayoutDestination: o.PayoutDestination,
		AttemptCount:      o.AttemptCount,
		ErrorMessage:      o.ErrorMessage,
		CreatedAt:         o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:         o.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if o.FiatAmountMinor > 0 {
		dto.FiatAmount = utils.FormatFiatMinor(o.FiatAmountMinor)
	}
	if o.NetPayoutMinor > 0 {
		dto.NetPayout = utils.FormatAssetMinor(o.NetPayoutMinor)
	}
	return dto
}

// GetOrdersResponse представляет ответ списка заявок
type GetOrdersResponse struct {
	Orders []OrderDTO `json:"orders"`
	Total  int        `json:"total"`
}

// GetOrders возвращает все активные (нетерминальные) заявки
//
// GET /api/v1/orders
//
// HTTP коды:
// - 200 OK: успешно, возвращает массив заявок (новые первыми)
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.engine.ActiveOrders()

	// Новые заявки первыми
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	dtos := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderDTO(o))
	}

	respondWithJSON(w, http.StatusOK, GetOrdersResponse{Orders: dtos, Total: len(dtos)})
}

// GetOrder возвращает заявку по идентификатору
//
// GET /api/v1/orders/{id}
//
// HTTP коды:
// - 200 OK: заявка найдена
// - 404 Not Found: заявки нет в памяти (не существовала или выгружена)
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := h.engine.Order(id)
	if err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found: "+id)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get order: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderDTO(order))
}

// CancelOrderRequest представляет тело запроса отмены
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelOrder отменяет заявку от имени оператора
//
// POST /api/v1/orders/{id}/cancel
//
// Отмена публикуется как событие и обрабатывается асинхронно в общем
// порядке событий заявки, поэтому ответ 202, а не 200.
//
// HTTP коды:
// - 202 Accepted: отмена принята в обработку
// - 404 Not Found: заявки нет
// - 409 Conflict: заявка уже в терминальном статусе
// - 503 Service Unavailable: очередь событий переполнена
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := h.engine.Order(id)
	if err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found: "+id)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get order: "+err.Error())
		return
	}
	if models.IsTerminal(order.Status) {
		respondWithError(w, http.StatusConflict, "Order already in terminal state: "+order.Status)
		return
	}

	var req CancelOrderRequest
	if r.Body != nil {
		// Тело опционально, ошибки парсинга игнорируем
		json.NewDecoder(r.Body).Decode(&req)
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by operator"
	}

	if !h.engine.Publish(models.EventCancel, id, reason) {
		respondWithError(w, http.StatusServiceUnavailable, "Event queue is full, try again")
		return
	}

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "Cancellation accepted"})
}
