package memory

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// inventoryRepositoryInMemory хранит остатки по SKU.
type inventoryRepositoryInMemory struct {
	state *storeState
}

// Get возвращает остаток по SKU или ErrSKUNotFound.
func (r *inventoryRepositoryInMemory) Get(sku string) (domain.Inventory, error) {
	inv, ok := r.state.inventory[sku]
	if !ok {
		return domain.Inventory{}, domain.ErrSKUNotFound
	}
	return inv, nil
}

// Save перезаписывает остаток (upsert).
func (r *inventoryRepositoryInMemory) Save(inv domain.Inventory) error {
	inv.UpdatedAt = time.Now().UTC()
	r.state.inventory[inv.SKU] = inv
	return nil
}

// Reserve увеличивает reserved под глобальным замком хранилища: проверка
// доступного остатка и инкремент неразделимы.
func (r *inventoryRepositoryInMemory) Reserve(sku string, qty int32) (domain.Inventory, error) {
	inv, ok := r.state.inventory[sku]
	if !ok {
		return domain.Inventory{}, domain.ErrSKUNotFound
	}
	if inv.Available() < qty {
		return domain.Inventory{}, domain.ErrInsufficientStock
	}

	inv.Reserved += qty
	inv.UpdatedAt = time.Now().UTC()
	r.state.inventory[sku] = inv
	return inv, nil
}

// ReleaseReserved уменьшает reserved с clamp'ом в ноль и возвращает значение
// до мутации.
func (r *inventoryRepositoryInMemory) ReleaseReserved(sku string, qty int32) (domain.Inventory, int32, error) {
	inv, ok := r.state.inventory[sku]
	if !ok {
		return domain.Inventory{}, 0, domain.ErrSKUNotFound
	}

	prev := inv.Reserved
	inv.Reserved -= qty
	if inv.Reserved < 0 {
		inv.Reserved = 0
	}
	inv.UpdatedAt = time.Now().UTC()
	r.state.inventory[sku] = inv
	return inv, prev, nil
}

var _ domain.InventoryRepository = (*inventoryRepositoryInMemory)(nil)
