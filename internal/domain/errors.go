package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствующего адреса доставки.
	ErrShippingAddressRequired = errors.New("shipping_address is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка отсутствующего SKU в позиции заказа.
	ErrItemSKURequired = errors.New("item sku is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists возвращается при повторном создании заказа с тем же ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrIllegalTransition — запрошенный переход статуса запрещён графом переходов.
	ErrIllegalTransition = errors.New("illegal order status transition")
	// ErrCancelAfterShipping — отмена после передачи в доставку запрещена.
	ErrCancelAfterShipping = errors.New("cannot cancel after shipping")

	// ErrSKUNotFound — на складе нет записи о таком SKU.
	ErrSKUNotFound = errors.New("sku not found")
	// ErrInsufficientStock — доступного остатка не хватает для резерва (бизнес-отказ, без retry).
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationNotFound — резерв по паре (order, sku) не найден.
	ErrReservationNotFound = errors.New("stock reservation not found")

	// ErrPaymentNotFound — платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAlreadyExists — по заказу уже создан платёжный intent.
	ErrPaymentAlreadyExists = errors.New("payment already exists for order")
	// ErrSignatureMismatch — подпись подтверждения не совпала с ожидаемой (без retry).
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrGatewayUnavailable — временная недоступность платёжного шлюза, можно повторить.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrSagaNotFound — состояние саги отмены по заказу не найдено.
	ErrSagaNotFound = errors.New("cancellation saga state not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// businessRejections — закрытый список бизнес-отказов: доменные запреты и
// ошибки валидации команд. Повтор такой команды даст тот же результат, поэтому
// retry по ним запрещён.
var businessRejections = []error{
	ErrInsufficientStock,
	ErrSKUNotFound,
	ErrIllegalTransition,
	ErrCancelAfterShipping,
	ErrPaymentAlreadyExists,
	ErrSignatureMismatch,
	ErrCustomerRequired,
	ErrCurrencyRequired,
	ErrShippingAddressRequired,
	ErrItemsRequired,
	ErrAmountNegative,
	ErrItemSKURequired,
	ErrItemQtyInvalid,
	ErrItemPriceInvalid,
	ErrAmountMismatch,
	ErrOrderIDRequired,
	ErrAmountInvalid,
}

// IsBusinessRejection отделяет бизнес-отказы от временных инфраструктурных ошибок:
// такие ошибки не ретраятся и возвращаются источнику команды как есть.
func IsBusinessRejection(err error) bool {
	for _, rejection := range businessRejections {
		if errors.Is(err, rejection) {
			return true
		}
	}
	return false
}
