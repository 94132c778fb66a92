package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type reservationRepository struct {
	q   queryer
	ctx context.Context
}

// Get возвращает резерв по ключу (order, sku) или ErrReservationNotFound.
func (r *reservationRepository) Get(orderID, sku string) (domain.StockReservation, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var res domain.StockReservation
	var status string
	err := r.q.QueryRowContext(ctx, `
		SELECT order_id, sku, qty, status, created_at, updated_at
		FROM stock_reservations
		WHERE order_id = $1 AND sku = $2
	`, orderID, sku).Scan(&res.OrderID, &res.SKU, &res.Qty, &status, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockReservation{}, domain.ErrReservationNotFound
		}
		return domain.StockReservation{}, fmt.Errorf("select reservation: %w", err)
	}
	res.Status = domain.ReservationStatus(status)

	return res, nil
}

// Create сохраняет новый резерв.
func (r *reservationRepository) Create(res domain.StockReservation) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO stock_reservations (order_id, sku, qty, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, res.OrderID, res.SKU, res.Qty, string(res.Status), res.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	return nil
}

// Save применяет переход статуса резерва.
func (r *reservationRepository) Save(res domain.StockReservation) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	result, err := r.q.ExecContext(ctx, `
		UPDATE stock_reservations
		SET status = $1, updated_at = $2
		WHERE order_id = $3 AND sku = $4
	`, string(res.Status), time.Now().UTC(), res.OrderID, res.SKU)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReservationNotFound
	}

	return nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
