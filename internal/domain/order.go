package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в сервисе fulfillment.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, резерв и платёжный intent ещё не подтверждены.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaymentReady — платёжный intent создан у шлюза, ждём подтверждение оплаты.
	OrderStatusPaymentReady OrderStatus = "payment_ready"
	// OrderStatusPlaced — оплата подтверждена webhook'ом, заказ принят в исполнение.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusPacked — заказ собран на складе.
	OrderStatusPacked OrderStatus = "packed"
	// OrderStatusShipped — заказ передан в доставку; отмена больше невозможна.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelRequested — покупатель запросил отмену, идут компенсации.
	OrderStatusCancelRequested OrderStatus = "cancel_requested"
	// OrderStatusCancelled — заказ отменён: резерв снят, деньги возвращены.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// forwardRank задаёт порядок статусов на основной ветке исполнения.
// Статусы отмены в ранжировании не участвуют.
var forwardRank = map[OrderStatus]int{
	OrderStatusPending:      0,
	OrderStatusPaymentReady: 1,
	OrderStatusPlaced:       2,
	OrderStatusPacked:       3,
	OrderStatusShipped:      4,
	OrderStatusDelivered:    5,
}

// Before сообщает, находится ли статус строго раньше other на основной ветке.
func (s OrderStatus) Before(other OrderStatus) bool {
	a, okA := forwardRank[s]
	b, okB := forwardRank[other]
	return okA && okB && a < b
}

// Cancellable сообщает, допускает ли статус запрос отмены.
// После передачи в доставку отмена запрещена.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaymentReady, OrderStatusPlaced, OrderStatusPacked:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// OrderItem представляет одну позицию заказа. Позиции фиксируются при создании
// заказа и не изменяются; Name и ImageURL — денормализованный снимок товара на
// момент оформления, а не живая ссылка на каталог.
type OrderItem struct {
	SKU        string
	Name       string
	ImageURL   string
	PriceMinor int64
	Qty        int32
}

// Order агрегирует состояние заказа и его позиции. Статус движется только
// вперёд по графу переходов, позиции после создания не мутируются.
type Order struct {
	ID              string
	CustomerID      string
	Status          OrderStatus
	Currency        string
	AmountMinor     int64
	ShippingAddress string
	// PaymentID заполняется после подтверждения оплаты шлюзом.
	PaymentID string
	// GatewayOrderRef — идентификатор заказа на стороне платёжного шлюза.
	GatewayOrderRef string
	Items           []OrderItem
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.ShippingAddress == "" {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.SKU == "" {
			errs = append(errs, ErrItemSKURequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
