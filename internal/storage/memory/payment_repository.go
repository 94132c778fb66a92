package memory

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// paymentRepositoryInMemory хранит платежи: основной ключ — заказ, вторичный
// индекс — ссылка заказа на стороне шлюза.
type paymentRepositoryInMemory struct {
	state *storeState
}

// Create сохраняет платёж; по заказу допускается не более одного.
func (r *paymentRepositoryInMemory) Create(p domain.Payment) error {
	if _, exists := r.state.payments[p.OrderID]; exists {
		return domain.ErrPaymentAlreadyExists
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.state.payments[p.OrderID] = p
	if p.GatewayOrderRef != "" {
		r.state.paymentsByRef[p.GatewayOrderRef] = p.OrderID
	}
	return nil
}

// GetByOrderID возвращает платёж по заказу или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) GetByOrderID(orderID string) (domain.Payment, error) {
	p, ok := r.state.payments[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

// GetByGatewayRef возвращает платёж по ссылке шлюза или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) GetByGatewayRef(gatewayRef string) (domain.Payment, error) {
	orderID, ok := r.state.paymentsByRef[gatewayRef]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.GetByOrderID(orderID)
}

// Save перезаписывает платёж.
func (r *paymentRepositoryInMemory) Save(p domain.Payment) error {
	current, ok := r.state.payments[p.OrderID]
	if !ok {
		return domain.ErrPaymentNotFound
	}

	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	r.state.payments[p.OrderID] = p
	if p.GatewayOrderRef != "" {
		r.state.paymentsByRef[p.GatewayOrderRef] = p.OrderID
	}
	return nil
}

// ClaimRefund переводит платёж в refunded, если он ещё не refunded. Глобальный
// замок хранилища делает проверку и переход атомарными.
func (r *paymentRepositoryInMemory) ClaimRefund(orderID string) (domain.Payment, bool, error) {
	p, ok := r.state.payments[orderID]
	if !ok {
		return domain.Payment{}, false, domain.ErrPaymentNotFound
	}
	if p.Status == domain.PaymentStatusRefunded {
		return p, false, nil
	}

	prev := p
	p.Status = domain.PaymentStatusRefunded
	p.UpdatedAt = time.Now().UTC()
	r.state.payments[orderID] = p
	return prev, true, nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
