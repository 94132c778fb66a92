package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// FakeGateway — конфигурируемая заглушка платёжного шлюза для тестов и
// локального запуска без внешней зависимости.
type FakeGateway struct {
	mu sync.Mutex

	CreateErr error
	RefundErr error

	CreateCalls int
	RefundCalls int

	seq int
}

// NewFakeGateway возвращает заглушку с успешным сценарием по умолчанию.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// CreateRemoteOrder возвращает синтетическую ссылку заказа и считает вызовы.
func (f *FakeGateway) CreateRemoteOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.seq++
	return fmt.Sprintf("fake_order_%d", f.seq), nil
}

// Refund возвращает синтетическую ссылку возврата и считает вызовы.
func (f *FakeGateway) Refund(ctx context.Context, paymentRef string, amountMinor int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefundCalls++
	if f.RefundErr != nil {
		return "", f.RefundErr
	}
	f.seq++
	return fmt.Sprintf("fake_refund_%d", f.seq), nil
}

var _ domain.PaymentGateway = (*FakeGateway)(nil)
