package provider

import (
	"context"
	"fmt"
	"net/http"
)

// RateSource отдаёт цену актива для пересчёта фиатной суммы в объём
// выплаты. Сами котировки - внешний сервис, здесь только клиент.
type RateSource interface {
	// AssetPriceMinor возвращает цену одной единицы актива в фиатных
	// минорных единицах (копейках)
	AssetPriceMinor(ctx context.Context, currency string) (int64, error)
}

// RatesClient - HTTP клиент сервиса котировок
type RatesClient struct {
	baseURL    string
	httpClient *HTTPClient
}

// NewRatesClient создаёт клиента котировок
func NewRatesClient(baseURL string) *RatesClient {
	return &RatesClient{baseURL: baseURL, httpClient: GetGlobalHTTPClient()}
}

// NewRatesClientWithHTTP создаёт клиента с кастомным HTTP клиентом (для тестов)
func NewRatesClientWithHTTP(baseURL string, hc *HTTPClient) *RatesClient {
	return &RatesClient{baseURL: baseURL, httpClient: hc}
}

type rateResponse struct {
	Currency   string `json:"currency"`
	PriceMinor int64  `json:"price_minor"`
}

// AssetPriceMinor запрашивает актуальную цену актива
func (c *RatesClient) AssetPriceMinor(ctx context.Context, currency string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/rates/"+currency, nil)
	if err != nil {
		return 0, &ProviderError{Provider: "rates", Permanent: true, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &ProviderError{Provider: "rates", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus("rates", resp); err != nil {
		return 0, err
	}

	var out rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, &ProviderError{Provider: "rates", Permanent: true, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if out.PriceMinor <= 0 {
		return 0, &ProviderError{Provider: "rates", Permanent: true, Err: fmt.Errorf("non-positive price for %s", currency)}
	}
	return out.PriceMinor, nil
}
