package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// testHTTPClient - клиент без rate limit'а, чтобы таблицы кейсов не упирались в лимитер
func testHTTPClient() *HTTPClient {
	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 10000
	cfg.RateBurst = 10000
	return NewHTTPClient(cfg)
}

// ============ InvoiceClient Tests ============

func TestCreateInvoice(t *testing.T) {
	var gotBody createInvoiceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/invoices" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("api key header = %s", r.Header.Get("X-Api-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("body decode: %v", err)
		}

		json.NewEncoder(w).Encode(createInvoiceResponse{
			ID:        "inv-abc",
			PayURL:    "https://pay.example.com/inv-abc",
			Amount:    150000,
			ExpiresAt: 1750000000,
		})
	}))
	defer server.Close()

	client := NewInvoiceClientWithHTTP(server.URL, "test-key", testHTTPClient())
	inv, err := client.CreateInvoice(context.Background(), "order-1", 150000, "sbp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.ExternalID != "order-1" || gotBody.AmountMinor != 150000 || gotBody.Method != "sbp" {
		t.Errorf("request body = %+v", gotBody)
	}
	if inv.PaymentRef != "inv-abc" {
		t.Errorf("payment ref = %s", inv.PaymentRef)
	}
	if inv.PayURL != "https://pay.example.com/inv-abc" {
		t.Errorf("pay url = %s", inv.PayURL)
	}
	if !inv.ExpiresAt.Equal(time.Unix(1750000000, 0).UTC()) {
		t.Errorf("expires at = %v", inv.ExpiresAt)
	}
}

func TestCreateInvoiceErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		wantPermanent bool
	}{
		{name: "server error is transient", statusCode: http.StatusInternalServerError, wantPermanent: false},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantPermanent: false},
		{name: "rate limited is transient", statusCode: http.StatusTooManyRequests, wantPermanent: false},
		{name: "unauthorized is permanent", statusCode: http.StatusUnauthorized, wantPermanent: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantPermanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "provider says no", tt.statusCode)
			}))
			defer server.Close()

			client := NewInvoiceClientWithHTTP(server.URL, "k", testHTTPClient())
			_, err := client.CreateInvoice(context.Background(), "order-1", 1000, "sbp")
			if err == nil {
				t.Fatal("expected error")
			}

			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if pe.Permanent != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v", pe.Permanent, tt.wantPermanent)
			}
			if pe.Retryable() == tt.wantPermanent {
				t.Error("Retryable() disagrees with Permanent")
			}
		})
	}
}

func TestCreateInvoiceMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewInvoiceClientWithHTTP(server.URL, "k", testHTTPClient())
	_, err := client.CreateInvoice(context.Background(), "order-1", 1000, "sbp")
	if !IsPermanent(err) {
		t.Errorf("malformed response should be permanent, got %v", err)
	}
}

func TestCreateInvoiceMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createInvoiceResponse{PayURL: "https://pay.example.com/x"})
	}))
	defer server.Close()

	client := NewInvoiceClientWithHTTP(server.URL, "k", testHTTPClient())
	_, err := client.CreateInvoice(context.Background(), "order-1", 1000, "sbp")
	if !IsPermanent(err) {
		t.Errorf("response without id should be permanent, got %v", err)
	}
}

func TestCreateInvoiceNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // соединение откажет

	client := NewInvoiceClientWithHTTP(server.URL, "k", testHTTPClient())
	_, err := client.CreateInvoice(context.Background(), "order-1", 1000, "sbp")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsPermanent(err) {
		t.Errorf("network error should be transient, got %v", err)
	}
}

func TestGetInvoiceStatus(t *testing.T) {
	tests := []struct {
		name     string
		response invoiceStatusResponse
		wantRef  string
	}{
		{
			name:     "pending without settlement",
			response: invoiceStatusResponse{ID: "inv-1", Status: InvoiceStatusPending},
		},
		{
			name:     "received carries settlement ref",
			response: invoiceStatusResponse{ID: "inv-1", Status: InvoiceStatusReceived, SettlementRef: "txn-77"},
			wantRef:  "txn-77",
		},
		{
			name:     "expired",
			response: invoiceStatusResponse{ID: "inv-1", Status: InvoiceStatusExpired},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/invoices/inv-1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := NewInvoiceClientWithHTTP(server.URL, "k", testHTTPClient())
			status, err := client.GetInvoiceStatus(context.Background(), "inv-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.Status != tt.response.Status {
				t.Errorf("status = %s, want %s", status.Status, tt.response.Status)
			}
			if status.SettlementRef != tt.wantRef {
				t.Errorf("settlement ref = %s, want %s", status.SettlementRef, tt.wantRef)
			}
		})
	}
}
