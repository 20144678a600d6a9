package provider

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"cryptodesk/pkg/ratelimit"
)

// HTTPClientConfig - настройки HTTP клиента для внешних провайдеров
type HTTPClientConfig struct {
	ConnectTimeout time.Duration // таймаут установки TCP соединения
	ReadTimeout    time.Duration // таймаут чтения ответа
	TotalTimeout   time.Duration // общий таймаут операции

	// Connection pooling
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	TLSHandshakeTimeout time.Duration

	// Лимит запросов к провайдеру (req/sec, burst).
	// Платёжные провайдеры банят за частый опрос статусов.
	RateLimit float64
	RateBurst float64
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию.
// Таймауты консервативные: провайдеры медленнее биржевых API,
// а латентность здесь не критична.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    15 * time.Second,
		TotalTimeout:   30 * time.Second,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,

		RateLimit: 5,
		RateBurst: 10,
	}
}

// HTTPClient - HTTP клиент с connection pooling и rate limiting
// для запросов к платёжным провайдерам
type HTTPClient struct {
	client  *http.Client
	limiter *ratelimit.RateLimiter
	config  HTTPClientConfig
}

// globalClient переиспользует connection pool между всеми провайдерами
var (
	globalClient     *HTTPClient
	globalClientOnce sync.Once
)

// GetGlobalHTTPClient возвращает разделяемый HTTP клиент
func GetGlobalHTTPClient() *HTTPClient {
	globalClientOnce.Do(func() {
		globalClient = NewHTTPClient(DefaultHTTPClientConfig())
	})
	return globalClient
}

// NewHTTPClient создаёт HTTP клиент с заданной конфигурацией
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.TotalTimeout,
		},
		limiter: ratelimit.NewRateLimiter(config.RateLimit, config.RateBurst),
		config:  config,
	}
}

// Do выполняет запрос, дождавшись токена rate limiter'а
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := hc.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return hc.client.Do(req)
}

// DoWithTimeout выполняет запрос с нестандартным таймаутом
func (hc *HTTPClient) DoWithTimeout(req *http.Request, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	return hc.Do(req.WithContext(ctx))
}

// GetClient возвращает базовый http.Client
func (hc *HTTPClient) GetClient() *http.Client {
	return hc.client
}

// Close закрывает idle соединения при graceful shutdown
func (hc *HTTPClient) Close() {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// CloseGlobalClient закрывает разделяемый клиент при завершении приложения
func CloseGlobalClient() {
	if globalClient != nil {
		globalClient.Close()
	}
}
