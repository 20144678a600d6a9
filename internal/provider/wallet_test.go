package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ============ WalletClient Tests ============

func TestGetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/wallet/balance" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "admin-key" {
			t.Errorf("api key = %s", r.Header.Get("X-Api-Key"))
		}
		json.NewEncoder(w).Encode(balanceResponse{Balance: 5_000_000})
	}))
	defer server.Close()

	client := NewWalletClientWithHTTP(server.URL, "admin-key", testHTTPClient())
	balance, err := client.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 5_000_000 {
		t.Errorf("balance = %d, want 5000000", balance)
	}
}

func TestPay(t *testing.T) {
	var gotBody payRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/payments" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("body decode: %v", err)
		}
		json.NewEncoder(w).Encode(payResponse{PaymentID: "pay-42", Status: PayoutStatusPending})
	}))
	defer server.Close()

	client := NewWalletClientWithHTTP(server.URL, "admin-key", testHTTPClient())
	payout, err := client.Pay(context.Background(), &PaymentRequest{Request: "lnbc-xyz", AmountMinor: 23500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.Request != "lnbc-xyz" || gotBody.Amount != 23500 {
		t.Errorf("request body = %+v", gotBody)
	}
	if payout.PaymentID != "pay-42" {
		t.Errorf("payment id = %s", payout.PaymentID)
	}
	if payout.Status != PayoutStatusPending {
		t.Errorf("status = %s", payout.Status)
	}
}

func TestPayNetworkErrorIsPermanent(t *testing.T) {
	// Судьба отправленного платежа неизвестна, вслепую его не повторяют
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewWalletClientWithHTTP(server.URL, "admin-key", testHTTPClient())
	_, err := client.Pay(context.Background(), &PaymentRequest{Request: "lnbc-xyz", AmountMinor: 100})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermanent(err) {
		t.Errorf("pay submission failure must be permanent, got %v", err)
	}
	if !strings.Contains(err.Error(), "status unknown") {
		t.Errorf("error = %v", err)
	}
}

func TestPayMissingPaymentID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payResponse{Status: PayoutStatusPending})
	}))
	defer server.Close()

	client := NewWalletClientWithHTTP(server.URL, "admin-key", testHTTPClient())
	_, err := client.Pay(context.Background(), &PaymentRequest{Request: "lnbc-xyz", AmountMinor: 100})
	if !IsPermanent(err) {
		t.Errorf("response without payment id should be permanent, got %v", err)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		response payResponse
	}{
		{name: "pending", response: payResponse{PaymentID: "pay-1", Status: PayoutStatusPending}},
		{name: "settled", response: payResponse{PaymentID: "pay-1", Status: PayoutStatusSettled}},
		{name: "failed with reason", response: payResponse{PaymentID: "pay-1", Status: PayoutStatusFailed, Error: "no route"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/payments/pay-1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := NewWalletClientWithHTTP(server.URL, "admin-key", testHTTPClient())
			payout, err := client.GetPaymentStatus(context.Background(), "pay-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payout.Status != tt.response.Status {
				t.Errorf("status = %s, want %s", payout.Status, tt.response.Status)
			}
			if payout.Error != tt.response.Error {
				t.Errorf("error field = %s, want %s", payout.Error, tt.response.Error)
			}
		})
	}
}

func TestGetPaymentStatusServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewWalletClientWithHTTP(server.URL, "admin-key", testHTTPClient())
	_, err := client.GetPaymentStatus(context.Background(), "pay-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsPermanent(err) {
		t.Errorf("503 should be transient, got %v", err)
	}
}
