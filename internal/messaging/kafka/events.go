package kafka

import (
	"encoding/json"
	"time"
)

// Topics сервиса. События кейсятся по order id (для inventory — тоже по order id),
// поэтому порядок в пределах одного агрегата сохраняется на уровне партиции.
const (
	TopicOrderCommands      = "fulfillment.order.commands"
	TopicOrderEvents        = "fulfillment.order.events"
	TopicInventoryEvents    = "fulfillment.inventory.events"
	TopicPaymentEvents      = "fulfillment.payment.events"
	TopicNotificationEvents = "fulfillment.notification.events"
)

// Типы событий и команд.
const (
	// Команды (входящие).
	EventTypeOrderCreateCommand    = "order.create_command"
	EventTypeOrderCancelCommand    = "order.cancel_command"
	EventTypeOrderSetStatusCommand = "order.set_status_command"

	// События заказа.
	EventTypeOrderCreated         = "order.created"
	EventTypeOrderCancelRequested = "order.cancel_requested"

	// События склада.
	EventTypeInventoryLockRequested = "inventory.lock_requested"
	EventTypeInventoryUpdated       = "inventory.updated"
	EventTypeInventoryReleased      = "inventory.released"
	EventTypeInventoryLockFailed    = "inventory.lock_failed"

	// События платежей.
	EventTypePaymentInitiated = "payment.initiated"
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentRefunded  = "payment.refunded"

	// Уведомления для внешних потребителей.
	EventTypeNotifyOrderPlaced    = "notification.order_placed"
	EventTypeNotifyOrderCancelled = "notification.order_cancelled"
	EventTypeNotifyOrderDelivered = "notification.order_delivered"
	EventTypeNotifyOrderRefunded  = "notification.order_refunded"
)

// Envelope — общий конверт публикуемых событий. Тело конкретного события
// лежит в Payload.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// CommandItem — позиция заказа в команде создания. Цена — десятичная строка,
// в minor units она переводится на входе в домен.
type CommandItem struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitPrice string `json:"unit_price"`
	Qty       int32  `json:"qty"`
}

// CreateOrderCommand — команда оформления заказа. OrderID назначается источником
// команды, что делает создание идемпотентным при повторной доставке.
type CreateOrderCommand struct {
	OrderID         string        `json:"order_id"`
	CustomerID      string        `json:"customer_id"`
	Items           []CommandItem `json:"items"`
	TotalAmount     string        `json:"total_amount"`
	Currency        string        `json:"currency"`
	ShippingAddress string        `json:"shipping_address"`
}

// CancelOrderCommand — команда отмены заказа покупателем.
type CancelOrderCommand struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason,omitempty"`
}

// SetStatusCommand — административный перевод заказа (packed/shipped/delivered).
type SetStatusCommand struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ReserveLine — строка резервирования/снятия резерва.
type ReserveLine struct {
	SKU string `json:"sku"`
	Qty int32  `json:"qty"`
}

// OrderCreatedEvent уходит платёжной границе для создания intent'а.
type OrderCreatedEvent struct {
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// OrderCancelRequestedEvent запускает сагу отмены; несёт позиции заказа,
// чтобы склад мог снять резерв, не обращаясь к агрегату заказа.
type OrderCancelRequestedEvent struct {
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	Items      []ReserveLine `json:"items"`
	Reason     string        `json:"reason,omitempty"`
}

// InventoryLockRequestedEvent — запрос резервирования позиций под заказ.
type InventoryLockRequestedEvent struct {
	OrderID string        `json:"order_id"`
	Items   []ReserveLine `json:"items"`
}

// InventoryUpdatedEvent — успешное изменение резерва по одному SKU.
type InventoryUpdatedEvent struct {
	OrderID   string `json:"order_id"`
	SKU       string `json:"sku"`
	Qty       int32  `json:"qty"`
	Available int32  `json:"available"`
}

// InventoryReleasedEvent — резерв по заказу снят; именно его ждёт сага отмены.
// Lines содержит фактически снятые количества (0 — резерва не было).
type InventoryReleasedEvent struct {
	OrderID string        `json:"order_id"`
	Lines   []ReserveLine `json:"lines,omitempty"`
}

// InventoryLockFailedEvent — резервирование не удалось, заказ будет отменён.
type InventoryLockFailedEvent struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentInitiatedEvent — intent создан у шлюза.
type PaymentInitiatedEvent struct {
	OrderID    string `json:"order_id"`
	GatewayRef string `json:"gateway_ref"`
}

// PaymentSuccessEvent — шлюз подтвердил получение денег.
type PaymentSuccessEvent struct {
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_ref"`
	Method     string `json:"method,omitempty"`
}

// PaymentRefundedEvent — возврат подтверждён (или пропущен, если денег не было).
type PaymentRefundedEvent struct {
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_ref,omitempty"`
	RefundRef  string `json:"refund_ref,omitempty"`
}

// OrderNotificationEvent — исходящее уведомление о смене статуса заказа.
// Amount — десятичная строка: за пределы домена minor units не выходят.
type OrderNotificationEvent struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Amount     string `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
