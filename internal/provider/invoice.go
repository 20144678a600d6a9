package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// InvoiceClient - HTTP клиент платёжного провайдера входящих переводов
type InvoiceClient struct {
	baseURL    string
	apiKey     string
	httpClient *HTTPClient
}

// NewInvoiceClient создаёт клиента платёжного провайдера.
// Использует разделяемый HTTP клиент с connection pooling.
func NewInvoiceClient(baseURL, apiKey string) *InvoiceClient {
	return &InvoiceClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: GetGlobalHTTPClient(),
	}
}

// NewInvoiceClientWithHTTP создаёт клиента с кастомным HTTP клиентом (для тестов)
func NewInvoiceClientWithHTTP(baseURL, apiKey string, hc *HTTPClient) *InvoiceClient {
	return &InvoiceClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: hc,
	}
}

// createInvoiceRequest - тело запроса на выставление счёта
type createInvoiceRequest struct {
	ExternalID  string `json:"external_id"`
	AmountMinor int64  `json:"amount"`
	Method      string `json:"method"`
}

// createInvoiceResponse - ответ провайдера
type createInvoiceResponse struct {
	ID        string `json:"id"`
	PayURL    string `json:"pay_url"`
	Amount    int64  `json:"amount"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// invoiceStatusResponse - ответ на запрос статуса
type invoiceStatusResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	SettlementRef string `json:"settlement_ref,omitempty"`
}

// CreateInvoice выставляет счёт на оплату
func (c *InvoiceClient) CreateInvoice(ctx context.Context, orderID string, amountMinor int64, method string) (*Invoice, error) {
	body, err := json.Marshal(createInvoiceRequest{
		ExternalID:  orderID,
		AmountMinor: amountMinor,
		Method:      method,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "invoice", Permanent: true, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: "invoice", Permanent: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые ошибки и таймауты - временные
		return nil, &ProviderError{Provider: "invoice", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus("invoice", resp); err != nil {
		return nil, err
	}

	var out createInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Provider: "invoice", Permanent: true, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if out.ID == "" {
		return nil, &ProviderError{Provider: "invoice", Permanent: true, Err: fmt.Errorf("response without invoice id")}
	}

	return &Invoice{
		PaymentRef:  out.ID,
		PayURL:      out.PayURL,
		AmountMinor: out.Amount,
		ExpiresAt:   time.Unix(out.ExpiresAt, 0).UTC(),
	}, nil
}

// GetInvoiceStatus опрашивает статус счёта.
// Монитор подтверждения вызывает его по своему расписанию.
func (c *InvoiceClient) GetInvoiceStatus(ctx context.Context, paymentRef string) (*InvoiceStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/invoices/"+paymentRef, nil)
	if err != nil {
		return nil, &ProviderError{Provider: "invoice", Permanent: true, Err: err}
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "invoice", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus("invoice", resp); err != nil {
		return nil, err
	}

	var out invoiceStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Provider: "invoice", Permanent: true, Err: fmt.Errorf("malformed response: %w", err)}
	}

	return &InvoiceStatus{
		Status:        out.Status,
		SettlementRef: out.SettlementRef,
	}, nil
}

// classifyStatus переводит HTTP статус в ошибку таксономии.
// 5xx и 429 - временные (retry на стороне вызывающего),
// 401/403 и прочие 4xx - постоянные.
func classifyStatus(providerName string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Тело читаем для диагностики, но не больше 1KB
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &ProviderError{Provider: providerName, Err: err}
	}
	return &ProviderError{Provider: providerName, Permanent: true, Err: err}
}
