package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// LNURLResolver разрешает lightning-алиасы вида name@domain в
// одноразовый платёжный запрос (LNURL-pay).
//
// Протокол двухшаговый:
//  1. GET https://domain/.well-known/lnurlp/name → метаданные с callback URL
//  2. GET callback?amount=<msat> → bolt11 инвойс на точную сумму
//
// Ошибки резолвинга не терминальны для заявки: пользователь может
// указать другой адрес.
type LNURLResolver struct {
	httpClient *HTTPClient
	// Схема для тестов (httptest отдаёт http, боевой протокол требует https)
	scheme string
}

// NewLNURLResolver создаёт резолвер алиасов
func NewLNURLResolver() *LNURLResolver {
	return &LNURLResolver{
		httpClient: GetGlobalHTTPClient(),
		scheme:     "https",
	}
}

// NewLNURLResolverWithHTTP создаёт резолвер с кастомным клиентом и схемой (для тестов)
func NewLNURLResolverWithHTTP(hc *HTTPClient, scheme string) *LNURLResolver {
	return &LNURLResolver{httpClient: hc, scheme: scheme}
}

// lnurlMetadata - ответ первого шага
type lnurlMetadata struct {
	Tag         string `json:"tag"` // должен быть payRequest
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"` // msat
	MaxSendable int64  `json:"maxSendable"` // msat
}

// lnurlCallbackResponse - ответ второго шага
type lnurlCallbackResponse struct {
	PR     string `json:"pr"` // bolt11 инвойс
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// IsAlias проверяет, что получатель имеет форму алиаса name@domain
func IsAlias(destination string) bool {
	parts := strings.Split(destination, "@")
	return len(parts) == 2 && parts[0] != "" && strings.Contains(parts[1], ".")
}

// Resolve выполняет двухшаговый обмен и возвращает платёжный запрос
// на точную сумму amountMinor (в сатоши).
func (r *LNURLResolver) Resolve(ctx context.Context, alias string, amountMinor int64) (*PaymentRequest, error) {
	if !IsAlias(alias) {
		return nil, &DestinationResolutionError{Destination: alias, Err: fmt.Errorf("not a name@domain alias")}
	}

	parts := strings.SplitN(alias, "@", 2)
	name, domain := parts[0], parts[1]

	meta, err := r.fetchMetadata(ctx, name, domain)
	if err != nil {
		return nil, &DestinationResolutionError{Destination: alias, Err: err}
	}

	amountMsat := amountMinor * 1000
	if amountMsat < meta.MinSendable || amountMsat > meta.MaxSendable {
		return nil, &DestinationResolutionError{
			Destination: alias,
			Err:         fmt.Errorf("amount %d msat outside [%d, %d]", amountMsat, meta.MinSendable, meta.MaxSendable),
		}
	}

	pr, err := r.fetchInvoice(ctx, meta.Callback, amountMsat)
	if err != nil {
		return nil, &DestinationResolutionError{Destination: alias, Err: err}
	}

	return &PaymentRequest{Request: pr, AmountMinor: amountMinor}, nil
}

// fetchMetadata - шаг 1: метаданные получателя
func (r *LNURLResolver) fetchMetadata(ctx context.Context, name, domain string) (*lnurlMetadata, error) {
	endpoint := fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", r.scheme, domain, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch: HTTP %d", resp.StatusCode)
	}

	var meta lnurlMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("malformed metadata: %w", err)
	}
	if meta.Tag != "payRequest" || meta.Callback == "" {
		return nil, fmt.Errorf("alias does not support pay requests")
	}
	return &meta, nil
}

// fetchInvoice - шаг 2: одноразовый инвойс на точную сумму
func (r *LNURLResolver) fetchInvoice(ctx context.Context, callback string, amountMsat int64) (string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", fmt.Errorf("bad callback url: %w", err)
	}
	q := u.Query()
	q.Set("amount", fmt.Sprintf("%d", amountMsat))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("callback fetch: HTTP %d", resp.StatusCode)
	}

	var out lnurlCallbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("malformed callback response: %w", err)
	}
	if strings.EqualFold(out.Status, "ERROR") {
		return "", fmt.Errorf("callback rejected: %s", out.Reason)
	}
	if out.PR == "" {
		return "", fmt.Errorf("callback response without payment request")
	}
	return out.PR, nil
}
