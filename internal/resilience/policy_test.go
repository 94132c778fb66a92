package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0}

	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0}
	want := errors.New("still broken")

	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableFailsFast(t *testing.T) {
	businessErr := errors.New("business rejection")
	policy := RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable: func(err error) bool {
			return !errors.Is(err, businessErr)
		},
	}

	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return businessErr
	})
	if !errors.Is(err, businessErr) {
		t.Fatalf("expected business error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("non-retryable error must fail fast, got %d attempts", attempts)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Retry(ctx, policy, func() error {
			attempts++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerPolicy{MaxFailures: 2, ResetTimeout: time.Hour}, nil)
	boom := errors.New("boom")
	fail := func() error { return boom }

	for i := 0; i < 2; i++ {
		if err := cb.Execute("op", fail); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}

	// Порог достигнут: дальше fast-fail без вызова fn.
	called := false
	err := cb.Execute("op", func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("open breaker must not call the operation")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(BreakerPolicy{MaxFailures: 1, ResetTimeout: 5 * time.Millisecond}, nil)

	if err := cb.Execute("op", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	if err := cb.Execute("op", func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	// После reset timeout breaker пропускает пробный вызов и закрывается.
	if err := cb.Execute("op", func() error { return nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if err := cb.Execute("op", func() error { return nil }); err != nil {
		t.Fatalf("closed breaker rejected a call: %v", err)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerPolicy{MaxFailures: 1, ResetTimeout: 5 * time.Millisecond}, nil)

	if err := cb.Execute("op", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	time.Sleep(10 * time.Millisecond)

	if err := cb.Execute("op", func() error { return errors.New("still down") }); err == nil {
		t.Fatal("expected probe failure")
	}
	if err := cb.Execute("op", func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("failed probe must reopen the breaker, got %v", err)
	}
}

func TestBulkhead_TryExecuteFull(t *testing.T) {
	b := NewBulkhead(1)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.TryExecute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.TryExecute(func() error { return nil }); !errors.Is(err, ErrBulkheadFull) {
		t.Fatalf("expected ErrBulkheadFull, got %v", err)
	}

	close(release)
	wg.Wait()

	if err := b.TryExecute(func() error { return nil }); err != nil {
		t.Fatalf("released slot must be reusable: %v", err)
	}
}

func TestBulkhead_ExecuteWaitsForContext(t *testing.T) {
	b := NewBulkhead(1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := b.Execute(ctx, func() error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
