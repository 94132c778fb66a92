package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_AllHealthy(t *testing.T) {
	h := NewHandler("test-version")
	h.RegisterChecker("storage", CheckerFunc(func(ctx context.Context) error { return nil }))
	h.RegisterChecker("broker", CheckerFunc(func(ctx context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", resp.Status)
	}
	if resp.Version != "test-version" {
		t.Fatalf("unexpected version %q", resp.Version)
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	// Проверки отсортированы по имени компонента.
	if resp.Checks[0].Component != "broker" || resp.Checks[1].Component != "storage" {
		t.Fatalf("unexpected check order: %+v", resp.Checks)
	}
}

func TestHandler_UnhealthyDependency(t *testing.T) {
	h := NewHandler("test-version")
	h.RegisterChecker("storage", CheckerFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", resp.Status)
	}
	if resp.Checks[0].Error != "connection refused" {
		t.Fatalf("expected check error, got %+v", resp.Checks[0])
	}
}

func TestHandler_NoCheckersIsHealthy(t *testing.T) {
	h := NewHandler("")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no checkers, got %d", rec.Code)
	}
}

func TestReadinessHandler(t *testing.T) {
	h := NewHandler("test-version")
	var checkErr error = errors.New("not yet")
	h.RegisterChecker("storage", CheckerFunc(func(ctx context.Context) error { return checkErr }))

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while dependency is down, got %d", rec.Code)
	}

	checkErr = nil
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after recovery, got %d", rec.Code)
	}
	if rec.Body.String() != "ready" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("liveness must always be 200 ok, got %d %q", rec.Code, rec.Body.String())
	}
}
