package payment_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/gateway"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
)

func webhookRequest(t *testing.T, verifier *gateway.HMACVerifier, body string, sign bool) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	if sign {
		req.Header.Set(payment.SignatureHeader, verifier.SignWebhook([]byte(body)))
	}
	return req
}

func capturedBody(gatewayRef, paymentID string) string {
	return fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"order_id":%q,"id":%q,"method":"card"}}}`,
		gatewayRef, paymentID)
}

func TestWebhookHandler_Captured(t *testing.T) {
	boundary, store, _, verifier := newBoundary(t)
	handler := payment.NewWebhookHandler(boundary, verifier, nil)

	ref, err := boundary.CreateIntent(context.Background(), "order-1", 1000, "USD")
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, webhookRequest(t, verifier, capturedBody(ref, "pay_1"), true))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	p := getPayment(t, store, "order-1")
	if p.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", p.Status)
	}
}

func TestWebhookHandler_BadSignature(t *testing.T) {
	boundary, store, _, verifier := newBoundary(t)
	handler := payment.NewWebhookHandler(boundary, verifier, nil)

	ref, err := boundary.CreateIntent(context.Background(), "order-1", 1000, "USD")
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	req := webhookRequest(t, verifier, capturedBody(ref, "pay_1"), false)
	req.Header.Set(payment.SignatureHeader, "deadbeef")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// Отклонённый webhook не трогает платёж.
	p := getPayment(t, store, "order-1")
	if p.Status != domain.PaymentStatusCreated {
		t.Fatalf("rejected webhook must not change payment, got %s", p.Status)
	}
}

func TestWebhookHandler_UnknownEventAcked(t *testing.T) {
	boundary, _, _, verifier := newBoundary(t)
	handler := payment.NewWebhookHandler(boundary, verifier, nil)

	body := `{"event":"payment.dispute.created","payload":{}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, webhookRequest(t, verifier, body, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown events must be acked, got %d", rec.Code)
	}
}

func TestWebhookHandler_MalformedBody(t *testing.T) {
	boundary, _, _, verifier := newBoundary(t)
	handler := payment.NewWebhookHandler(boundary, verifier, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, webhookRequest(t, verifier, "{not json", true))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookHandler_MethodNotAllowed(t *testing.T) {
	boundary, _, _, verifier := newBoundary(t)
	handler := payment.NewWebhookHandler(boundary, verifier, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/payment", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestWebhookHandler_UnknownRefFails(t *testing.T) {
	boundary, _, _, verifier := newBoundary(t)
	handler := payment.NewWebhookHandler(boundary, verifier, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, webhookRequest(t, verifier, capturedBody("ghost_ref", "pay_1"), true))
	// Платёж по ссылке не найден: 500, шлюз повторит доставку.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
