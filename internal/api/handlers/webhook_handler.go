package handlers

import (
	"errors"
	"io"
	"net/http"

	"cryptodesk/internal/engine"
	"cryptodesk/pkg/crypto"
	"cryptodesk/pkg/utils"
)

// maxWebhookBody ограничивает размер тела webhook запроса
const maxWebhookBody = 64 * 1024

// PaymentConfirmer - операция движка для подтверждения оплаты
type PaymentConfirmer interface {
	ConfirmByPaymentRef(paymentRef, settlementRef string) error
}

// WebhookHandler принимает уведомления платёжного провайдера
//
// Endpoints:
// - POST /api/v1/webhooks/payment - оплата счёта
//
// Подлинность запроса проверяется HMAC-SHA256 подписью сырого тела
// (заголовок X-Webhook-Signature). Bearer аутентификация операторского
// API на webhook не распространяется.
type WebhookHandler struct {
	confirmer PaymentConfirmer
	secret    string
}

// NewWebhookHandler создает новый WebhookHandler
func NewWebhookHandler(confirmer PaymentConfirmer, secret string) *WebhookHandler {
	return &WebhookHandler{confirmer: confirmer, secret: secret}
}

// PaymentWebhookRequest представляет тело уведомления провайдера
type PaymentWebhookRequest struct {
	PaymentRef    string `json:"payment_ref"`
	SettlementRef string `json:"settlement_ref"`
	Status        string `json:"status"` // paid, expired
}

// PaymentWebhook обрабатывает уведомление об оплате счёта
//
// POST /api/v1/webhooks/payment
//
// Провайдер повторяет доставку до первого 2xx, поэтому все
// "неинтересные" исходы (не paid, заявка уже выгружена) отвечают 200,
// иначе повторы не прекратятся. Подтверждение публикуется в шину и
// обрабатывается асинхронно: гонка с монитором опроса безопасна,
// повторное подтверждение той же заявки игнорируется движком.
//
// HTTP коды:
// - 200 OK: принято (или осознанно проигнорировано)
// - 400 Bad Request: битое тело или отсутствуют обязательные поля
// - 401 Unauthorized: подпись не совпала
// - 503 Service Unavailable: очередь событий переполнена
func (h *WebhookHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if err := crypto.VerifySignature(body, signature, h.secret); err != nil {
		utils.L().Warn("webhook signature rejected",
			utils.String("remote", r.RemoteAddr))
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var req PaymentWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if req.PaymentRef == "" {
		respondWithError(w, http.StatusBadRequest, "payment_ref is required")
		return
	}

	// Интересует только факт оплаты. Статусы expired и прочие
	// обрабатывает монитор по своему расписанию.
	if req.Status != "paid" {
		respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Ignored: status " + req.Status})
		return
	}
	if req.SettlementRef == "" {
		respondWithError(w, http.StatusBadRequest, "settlement_ref is required for paid status")
		return
	}

	if err := h.confirmer.ConfirmByPaymentRef(req.PaymentRef, req.SettlementRef); err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			// Заявка выгружена или счёт не наш. 200, чтобы провайдер
			// перестал повторять доставку
			utils.L().Warn("webhook for unknown payment ref",
				utils.PaymentRef(req.PaymentRef))
			respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Ignored: unknown payment ref"})
			return
		}
		respondWithError(w, http.StatusServiceUnavailable, "Failed to process confirmation")
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Confirmation accepted"})
}
