package memory

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// reservationRepositoryInMemory хранит резервы по естественному ключу (order, sku).
type reservationRepositoryInMemory struct {
	state *storeState
}

// Get возвращает резерв или ErrReservationNotFound.
func (r *reservationRepositoryInMemory) Get(orderID, sku string) (domain.StockReservation, error) {
	res, ok := r.state.reservations[reservationKey{orderID: orderID, sku: sku}]
	if !ok {
		return domain.StockReservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

// Create сохраняет новый резерв.
func (r *reservationRepositoryInMemory) Create(res domain.StockReservation) error {
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	r.state.reservations[reservationKey{orderID: res.OrderID, sku: res.SKU}] = res
	return nil
}

// Save применяет переход статуса резерва.
func (r *reservationRepositoryInMemory) Save(res domain.StockReservation) error {
	key := reservationKey{orderID: res.OrderID, sku: res.SKU}
	current, ok := r.state.reservations[key]
	if !ok {
		return domain.ErrReservationNotFound
	}

	res.CreatedAt = current.CreatedAt
	res.UpdatedAt = time.Now().UTC()
	r.state.reservations[key] = res
	return nil
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
