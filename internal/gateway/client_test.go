package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/resilience"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		KeyID:     "key-id",
		KeySecret: "key-secret",
		Timeout:   time.Second,
		Retry: resilience.RetryPolicy{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			BackoffFactor: 2.0,
		},
		Breaker: resilience.BreakerPolicy{MaxFailures: 10, ResetTimeout: time.Second},
	}
}

func TestClient_CreateRemoteOrder(t *testing.T) {
	var gotPath, gotUser string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "order_remote_1"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	ref, err := client.CreateRemoteOrder(context.Background(), 1500, "USD", "order-1")
	if err != nil {
		t.Fatalf("create remote order failed: %v", err)
	}
	if ref != "order_remote_1" {
		t.Fatalf("expected order_remote_1, got %s", ref)
	}
	if gotPath != "/v1/orders" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotUser != "key-id" {
		t.Fatalf("expected basic auth key-id, got %s", gotUser)
	}
	if gotBody["amount"].(float64) != 1500 || gotBody["currency"] != "USD" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
}

func TestClient_Refund(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "rfnd_1"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	ref, err := client.Refund(context.Background(), "pay_1", 1500)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if ref != "rfnd_1" {
		t.Fatalf("expected rfnd_1, got %s", ref)
	}
	if gotPath != "/v1/payments/pay_1/refund" {
		t.Fatalf("unexpected path %s", gotPath)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "order_remote_1"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	ref, err := client.CreateRemoteOrder(context.Background(), 1500, "USD", "order-1")
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if ref != "order_remote_1" || calls.Load() != 3 {
		t.Fatalf("expected success on attempt 3, got ref=%s calls=%d", ref, calls.Load())
	}
}

func TestClient_ClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	_, err := client.CreateRemoteOrder(context.Background(), 1500, "USD", "order-1")
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("4xx is not unavailability: %v", err)
	}
	// Отказ по существу не ретраится.
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClient_UnreachableGateway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(testConfig(server.URL), nil)
	_, err := client.CreateRemoteOrder(context.Background(), 1500, "USD", "order-1")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Breaker = resilience.BreakerPolicy{MaxFailures: 3, ResetTimeout: time.Hour}
	client := NewClient(cfg, nil)

	// Первый вызов исчерпывает ретраи (3 попытки) и открывает breaker.
	if _, err := client.CreateRemoteOrder(context.Background(), 1500, "USD", "order-1"); err == nil {
		t.Fatal("expected failure")
	}
	before := calls.Load()

	_, err := client.CreateRemoteOrder(context.Background(), 1500, "USD", "order-2")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != before {
		t.Fatalf("open breaker must not reach the gateway, calls %d -> %d", before, calls.Load())
	}
}
