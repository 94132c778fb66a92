package domain

import "time"

// PaymentStatus описывает состояние платежа. Статус движется только вперёд:
// created → verified → paid → refunded.
type PaymentStatus string

const (
	// PaymentStatusCreated — intent создан у шлюза, деньги ещё не получены.
	PaymentStatusCreated PaymentStatus = "created"
	// PaymentStatusVerified — клиентское подтверждение прошло проверку подписи.
	PaymentStatusVerified PaymentStatus = "verified"
	// PaymentStatusPaid — шлюз подтвердил получение денег webhook'ом.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentRank = map[PaymentStatus]int{
	PaymentStatusCreated:  0,
	PaymentStatusVerified: 1,
	PaymentStatusPaid:     2,
	PaymentStatusRefunded: 3,
}

// Before сообщает, находится ли статус строго раньше other.
func (s PaymentStatus) Before(other PaymentStatus) bool {
	return paymentRank[s] < paymentRank[other]
}

// Payment описывает платёж, связанный с заказом. Уникален и по внутреннему
// order_id, и по ссылке заказа на стороне шлюза.
type Payment struct {
	ID              string
	OrderID         string
	GatewayOrderRef string
	// GatewayPaymentID пустой, пока шлюз не подтвердит платёж.
	GatewayPaymentID string
	Status           PaymentStatus
	AmountMinor      int64
	Currency         string
	// Method — метаданные способа оплаты из webhook'а шлюза.
	Method    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}
