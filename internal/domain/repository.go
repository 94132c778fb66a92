package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// InventoryRepository хранит остатки по SKU.
type InventoryRepository interface {
	// Get возвращает остаток по SKU или ErrSKUNotFound.
	Get(sku string) (Inventory, error)
	// Save перезаписывает остаток (upsert). Для конкурентных мутаций резерва не
	// годится: там только Reserve/ReleaseReserved.
	Save(inv Inventory) error
	// Reserve атомарно увеличивает reserved на qty, если доступного остатка
	// хватает. Проверка и инкремент — одна операция: два конкурентных резерва
	// не могут оба пройти гейт по одному и тому же остатку. Возвращает остаток
	// после мутации; ErrSKUNotFound или ErrInsufficientStock.
	Reserve(sku string, qty int32) (Inventory, error)
	// ReleaseReserved атомарно уменьшает reserved на qty с clamp'ом в ноль.
	// Возвращает остаток после мутации и reserved до неё (для детекции дрейфа).
	ReleaseReserved(sku string, qty int32) (Inventory, int32, error)
}

// ReservationRepository хранит резервы позиций по естественному ключу (order, sku).
type ReservationRepository interface {
	// Get возвращает резерв или ErrReservationNotFound.
	Get(orderID, sku string) (StockReservation, error)
	// Create сохраняет новый резерв.
	Create(res StockReservation) error
	// Save применяет переход статуса reserved → released.
	Save(res StockReservation) error
}

// PaymentRepository хранит платежи, уникальные по order_id и по ссылке шлюза.
type PaymentRepository interface {
	// Create сохраняет платёж; ErrPaymentAlreadyExists, если по заказу платёж уже есть.
	Create(p Payment) error
	// GetByOrderID возвращает платёж по внутреннему заказу или ErrPaymentNotFound.
	GetByOrderID(orderID string) (Payment, error)
	// GetByGatewayRef возвращает платёж по ссылке заказа у шлюза или ErrPaymentNotFound.
	GetByGatewayRef(gatewayRef string) (Payment, error)
	// Save перезаписывает платёж.
	Save(p Payment) error
	// ClaimRefund атомарно переводит платёж заказа в refunded. Возвращает платёж
	// в состоянии до перехода и true, если переход произвёл именно этот вызов;
	// false — платёж уже refunded. ErrPaymentNotFound, если платежа нет.
	ClaimRefund(orderID string) (Payment, bool, error)
}

// SagaRepository хранит состояние саги отмены по заказу.
type SagaRepository interface {
	// Get возвращает состояние или ErrSagaNotFound.
	Get(orderID string) (CancellationState, error)
	// Upsert сохраняет состояние, монотонно сливая флаги с уже записанными:
	// поднятый флаг опустить нельзя даже при конкурентных апдейтах.
	Upsert(state CancellationState) (CancellationState, error)
	// ListStale возвращает незавершённые саги, не обновлявшиеся после cutoff.
	ListStale(cutoff time.Time, limit int) ([]CancellationState, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit необработанных записей в порядке создания.
	PullPending(limit int) ([]OutboxMessage, error)
	// MarkProcessed идемпотентно помечает запись обработанной.
	MarkProcessed(id string) error
	Stats() (OutboxStats, error)
	// DeleteProcessedBefore удаляет обработанные записи старше cutoff (retention sweep).
	DeleteProcessedBefore(cutoff time.Time, limit int) (int, error)
}

// Repositories — набор репозиториев, видимый бизнес-коду внутри единицы работы.
type Repositories struct {
	Orders       OrderRepository
	Inventory    InventoryRepository
	Reservations ReservationRepository
	Payments     PaymentRepository
	Sagas        SagaRepository
	Outbox       OutboxRepository
}
