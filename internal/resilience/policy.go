package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrCircuitOpen возвращается при fast-fail открытого circuit breaker'а.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrBulkheadFull возвращается, когда лимит конкурентных вызовов исчерпан.
var ErrBulkheadFull = errors.New("bulkhead concurrency limit reached")

// RetryPolicy конфигурация для retry логики.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable отделяет временные ошибки от бизнес-отказов; nil — ретраим всё.
	Retryable func(error) bool
}

// DefaultRetryPolicy возвращает конфигурацию по умолчанию.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry выполняет fn с ограниченным числом попыток и exponential backoff.
// Неретраябельная ошибка возвращается сразу.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}

// BreakerPolicy конфигурация circuit breaker'а.
type BreakerPolicy struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreaker отсекает вызовы внешней зависимости после серии сбоев,
// чтобы медленный сосед не выедал локальные ресурсы. Конфигурация передаётся
// явно при конструировании, глобального состояния нет.
type CircuitBreaker struct {
	policy BreakerPolicy
	logger *log.Entry

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       circuitState
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(policy BreakerPolicy, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	if policy.MaxFailures <= 0 {
		policy.MaxFailures = 5
	}
	if policy.ResetTimeout <= 0 {
		policy.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		policy: policy,
		logger: logger,
		state:  circuitClosed,
	}
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == circuitOpen {
		if time.Since(cb.lastFailure) > cb.policy.ResetTimeout {
			cb.state = circuitHalfOpen
			cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == circuitHalfOpen || cb.failures >= cb.policy.MaxFailures {
			cb.state = circuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}
		return err
	}

	if cb.state == circuitHalfOpen {
		cb.state = circuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0
	return nil
}

// Bulkhead ограничивает число одновременных вызовов внешней зависимости.
type Bulkhead struct {
	slots chan struct{}
}

// NewBulkhead создаёт bulkhead с заданным лимитом конкурентности.
func NewBulkhead(limit int) *Bulkhead {
	if limit <= 0 {
		limit = 8
	}
	return &Bulkhead{slots: make(chan struct{}, limit)}
}

// Execute выполняет fn, если есть свободный слот; иначе ждёт до отмены ctx.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.slots }()
	return fn()
}

// TryExecute выполняет fn только при наличии свободного слота, иначе
// возвращает ErrBulkheadFull, не блокируясь.
func (b *Bulkhead) TryExecute(fn func() error) error {
	select {
	case b.slots <- struct{}{}:
	default:
		return ErrBulkheadFull
	}
	defer func() { <-b.slots }()
	return fn()
}
