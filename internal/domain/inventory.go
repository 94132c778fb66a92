package domain

import "time"

// Inventory хранит остаток и резерв по одному SKU. Мутируется только движком
// резервирования. Инвариант reserved <= quantity не форсируется жёстко: гонки
// release могут кратковременно его нарушать, но резерв сверх доступного остатка
// (quantity - reserved) на момент резервирования не выдаётся никогда.
type Inventory struct {
	SKU       string
	Quantity  int32
	Reserved  int32
	UpdatedAt time.Time
}

// Available возвращает остаток, доступный для новых резервов.
func (i Inventory) Available() int32 {
	return i.Quantity - i.Reserved
}

// ReservationStatus отражает статус резерва товара под заказ.
type ReservationStatus string

const (
	// ReservationStatusReserved — товар зарезервирован под заказ.
	ReservationStatusReserved ReservationStatus = "reserved"
	// ReservationStatusReleased — резерв снят; переход монотонный, обратно не откатывается.
	ReservationStatusReleased ReservationStatus = "released"
)

// StockReservation — резерв одной позиции заказа с естественным ключом (order, sku).
// Запись используется как idempotency-гейт и как источник точного количества при
// снятии резерва: количеству из запроса на release доверять нельзя.
type StockReservation struct {
	OrderID   string
	SKU       string
	Qty       int32
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет, корректно ли заполнены ключевые поля резерва.
func (r *StockReservation) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.SKU == "" {
		errs = append(errs, ErrItemSKURequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrItemQtyInvalid)
	}

	return errs
}
