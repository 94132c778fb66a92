package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type inventoryRepository struct {
	q   queryer
	ctx context.Context
}

// Get возвращает остаток по SKU или ErrSKUNotFound.
func (r *inventoryRepository) Get(sku string) (domain.Inventory, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var inv domain.Inventory
	err := r.q.QueryRowContext(ctx, `
		SELECT sku, quantity, reserved, updated_at
		FROM inventory
		WHERE sku = $1
	`, sku).Scan(&inv.SKU, &inv.Quantity, &inv.Reserved, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Inventory{}, domain.ErrSKUNotFound
		}
		return domain.Inventory{}, fmt.Errorf("select inventory: %w", err)
	}

	return inv, nil
}

// Save перезаписывает остаток (upsert).
func (r *inventoryRepository) Save(inv domain.Inventory) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO inventory (sku, quantity, reserved, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sku) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    reserved = EXCLUDED.reserved,
		    updated_at = EXCLUDED.updated_at
	`, inv.SKU, inv.Quantity, inv.Reserved, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}

	return nil
}

// Reserve — один условный UPDATE: предикат доступности перепроверяется под
// блокировкой строки, поэтому два конкурентных резерва не могут оба пройти
// гейт по одному остатку, а инкремент не теряется при гонке транзакций.
func (r *inventoryRepository) Reserve(sku string, qty int32) (domain.Inventory, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var inv domain.Inventory
	err := r.q.QueryRowContext(ctx, `
		UPDATE inventory
		SET reserved = reserved + $1, updated_at = $2
		WHERE sku = $3 AND quantity - reserved >= $1
		RETURNING sku, quantity, reserved, updated_at
	`, qty, time.Now().UTC(), sku).Scan(&inv.SKU, &inv.Quantity, &inv.Reserved, &inv.UpdatedAt)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Inventory{}, fmt.Errorf("reserve inventory: %w", err)
	}

	// Ноль строк: SKU нет либо не хватило доступного остатка.
	if _, getErr := r.Get(sku); getErr != nil {
		return domain.Inventory{}, getErr
	}
	return domain.Inventory{}, domain.ErrInsufficientStock
}

// ReleaseReserved — атомарный декремент с clamp'ом в ноль. Self-join отдаёт
// reserved до мутации: по нему выше детектируется дрейф счётчика.
func (r *inventoryRepository) ReleaseReserved(sku string, qty int32) (domain.Inventory, int32, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var inv domain.Inventory
	var prev int32
	err := r.q.QueryRowContext(ctx, `
		UPDATE inventory i
		SET reserved = GREATEST(i.reserved - $1, 0), updated_at = $2
		FROM inventory old
		WHERE old.sku = i.sku AND i.sku = $3
		RETURNING i.sku, i.quantity, i.reserved, i.updated_at, old.reserved
	`, qty, time.Now().UTC(), sku).Scan(&inv.SKU, &inv.Quantity, &inv.Reserved, &inv.UpdatedAt, &prev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Inventory{}, 0, domain.ErrSKUNotFound
		}
		return domain.Inventory{}, 0, fmt.Errorf("release reserved inventory: %w", err)
	}

	return inv, prev, nil
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
