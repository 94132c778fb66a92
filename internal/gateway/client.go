package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/resilience"
)

const defaultRequestTimeout = 5 * time.Second

// Config — явная конфигурация клиента платёжного шлюза; никакого глобального
// состояния, всё инжектится при конструировании.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	// WebhookSecret — общий секрет подписи входящих webhook'ов.
	WebhookSecret string
	Timeout       time.Duration

	Retry    resilience.RetryPolicy
	Breaker  resilience.BreakerPolicy
	// MaxConcurrent ограничивает одновременные вызовы шлюза (bulkhead).
	MaxConcurrent int
}

// Client — HTTP-клиент внешнего платёжного шлюза. Каждый вызов обёрнут в
// timeout + retry + circuit breaker + bulkhead, суммы на этой границе — только
// целые minor units.
type Client struct {
	cfg      Config
	http     *http.Client
	logger   *log.Entry
	breaker  *resilience.CircuitBreaker
	bulkhead *resilience.Bulkhead
}

// NewClient создаёт клиент шлюза.
func NewClient(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryPolicy()
	}
	// Ретраим только временную недоступность; открытый breaker и отказы
	// шлюза по существу не повторяем.
	cfg.Retry.Retryable = func(err error) bool {
		return errors.Is(err, domain.ErrGatewayUnavailable)
	}

	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		breaker:  resilience.NewCircuitBreaker(cfg.Breaker, logger),
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrent),
	}
}

// CreateRemoteOrder создаёт заказ на стороне шлюза и возвращает его ссылку.
func (c *Client) CreateRemoteOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	body := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}

	var ref string
	err := c.call(ctx, "create_order", func() error {
		resp, callErr := c.post(ctx, "/v1/orders", body)
		if callErr != nil {
			return callErr
		}
		ref = resp.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Refund инициирует возврат по платежу и возвращает ссылку возврата.
func (c *Client) Refund(ctx context.Context, paymentRef string, amountMinor int64) (string, error) {
	body := map[string]interface{}{
		"amount": amountMinor,
	}

	var ref string
	path := fmt.Sprintf("/v1/payments/%s/refund", url.PathEscape(paymentRef))
	err := c.call(ctx, "refund", func() error {
		resp, callErr := c.post(ctx, path, body)
		if callErr != nil {
			return callErr
		}
		ref = resp.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// call — композиция декораторов вокруг одного вызова шлюза:
// bulkhead → retry → circuit breaker.
func (c *Client) call(ctx context.Context, operation string, fn func() error) error {
	return c.bulkhead.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.cfg.Retry, func() error {
			return c.breaker.Execute(operation, fn)
		})
	})
}

type gatewayResponse struct {
	ID string `json:"id"`
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (gatewayResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return gatewayResponse{}, fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return gatewayResponse{}, fmt.Errorf("gateway rejected request: %d", resp.StatusCode)
	}

	var parsed gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return gatewayResponse{}, fmt.Errorf("decode gateway response: %w", err)
	}
	return parsed, nil
}

var _ domain.PaymentGateway = (*Client)(nil)
