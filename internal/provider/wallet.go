package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// WalletClient - HTTP клиент кошелька выплат.
// API в стиле LNbits: баланс, отправка платежа, статус по id.
type WalletClient struct {
	baseURL    string
	adminKey   string
	httpClient *HTTPClient
}

// NewWalletClient создаёт клиента кошелька
func NewWalletClient(baseURL, adminKey string) *WalletClient {
	return &WalletClient{
		baseURL:    baseURL,
		adminKey:   adminKey,
		httpClient: GetGlobalHTTPClient(),
	}
}

// NewWalletClientWithHTTP создаёт клиента с кастомным HTTP клиентом (для тестов)
func NewWalletClientWithHTTP(baseURL, adminKey string, hc *HTTPClient) *WalletClient {
	return &WalletClient{baseURL: baseURL, adminKey: adminKey, httpClient: hc}
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // минорные единицы актива (sat)
}

type payRequestBody struct {
	Request string `json:"request"`
	Amount  int64  `json:"amount"`
}

type payResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// GetBalance возвращает доступный к трате баланс
func (c *WalletClient) GetBalance(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/wallet/balance", nil)
	if err != nil {
		return 0, &ProviderError{Provider: "wallet", Permanent: true, Err: err}
	}
	req.Header.Set("X-Api-Key", c.adminKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &ProviderError{Provider: "wallet", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus("wallet", resp); err != nil {
		return 0, err
	}

	var out balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, &ProviderError{Provider: "wallet", Permanent: true, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return out.Balance, nil
}

// Pay отправляет платёж по платёжному запросу.
// Вызывается ровно один раз на заявку - идемпотентность обеспечивает
// диспетчер выплат через guard в Store.
func (c *WalletClient) Pay(ctx context.Context, payReq *PaymentRequest) (*Payout, error) {
	body, err := json.Marshal(payRequestBody{
		Request: payReq.Request,
		Amount:  payReq.AmountMinor,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "wallet", Permanent: true, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: "wallet", Permanent: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.adminKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевая ошибка при отправке платежа НЕ ретраится вслепую:
		// судьба платежа неизвестна, повтор может отправить деньги дважды
		return nil, &ProviderError{Provider: "wallet", Permanent: true, Err: fmt.Errorf("payment submission failed, status unknown: %w", err)}
	}
	defer resp.Body.Close()

	if err := classifyStatus("wallet", resp); err != nil {
		return nil, err
	}

	var out payResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Provider: "wallet", Permanent: true, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if out.PaymentID == "" {
		return nil, &ProviderError{Provider: "wallet", Permanent: true, Err: fmt.Errorf("response without payment id")}
	}

	return &Payout{PaymentID: out.PaymentID, Status: out.Status, Error: out.Error}, nil
}

// GetPaymentStatus опрашивает статус исходящего платежа
func (c *WalletClient) GetPaymentStatus(ctx context.Context, paymentID string) (*Payout, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, &ProviderError{Provider: "wallet", Permanent: true, Err: err}
	}
	req.Header.Set("X-Api-Key", c.adminKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "wallet", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus("wallet", resp); err != nil {
		return nil, err
	}

	var out payResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Provider: "wallet", Permanent: true, Err: fmt.Errorf("malformed response: %w", err)}
	}

	return &Payout{PaymentID: out.PaymentID, Status: out.Status, Error: out.Error}, nil
}
