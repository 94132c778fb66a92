package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type sagaRepository struct {
	q   queryer
	ctx context.Context
}

// Get возвращает состояние саги или ErrSagaNotFound.
func (r *sagaRepository) Get(orderID string) (domain.CancellationState, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var state domain.CancellationState
	err := r.q.QueryRowContext(ctx, `
		SELECT order_id, inventory_released, payment_refunded, created_at, updated_at
		FROM cancellation_sagas
		WHERE order_id = $1
	`, orderID).Scan(
		&state.OrderID, &state.InventoryReleased, &state.PaymentRefunded,
		&state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CancellationState{}, domain.ErrSagaNotFound
		}
		return domain.CancellationState{}, fmt.Errorf("select cancellation saga: %w", err)
	}

	return state, nil
}

// Upsert сохраняет состояние саги. Монотонность флагов обеспечивается OR'ом
// прямо в SQL: поднятый флаг невозможно опустить даже при конкурентной записи.
func (r *sagaRepository) Upsert(state domain.CancellationState) (domain.CancellationState, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}

	var merged domain.CancellationState
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO cancellation_sagas (
			order_id, inventory_released, payment_refunded, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE
		SET inventory_released = cancellation_sagas.inventory_released OR EXCLUDED.inventory_released,
		    payment_refunded = cancellation_sagas.payment_refunded OR EXCLUDED.payment_refunded,
		    updated_at = GREATEST(cancellation_sagas.updated_at, EXCLUDED.updated_at)
		RETURNING order_id, inventory_released, payment_refunded, created_at, updated_at
	`,
		state.OrderID, state.InventoryReleased, state.PaymentRefunded,
		state.CreatedAt, state.UpdatedAt,
	).Scan(
		&merged.OrderID, &merged.InventoryReleased, &merged.PaymentRefunded,
		&merged.CreatedAt, &merged.UpdatedAt,
	)
	if err != nil {
		return domain.CancellationState{}, fmt.Errorf("upsert cancellation saga: %w", err)
	}

	return merged, nil
}

// ListStale возвращает незавершённые саги, не обновлявшиеся после cutoff,
// старые вперёд.
func (r *sagaRepository) ListStale(cutoff time.Time, limit int) ([]domain.CancellationState, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, inventory_released, payment_refunded, created_at, updated_at
		FROM cancellation_sagas
		WHERE NOT (inventory_released AND payment_refunded)
		  AND updated_at < $1
		ORDER BY updated_at ASC, order_id ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale sagas: %w", err)
	}
	defer rows.Close()

	result := make([]domain.CancellationState, 0, limit)
	for rows.Next() {
		var state domain.CancellationState
		if err := rows.Scan(
			&state.OrderID, &state.InventoryReleased, &state.PaymentRefunded,
			&state.CreatedAt, &state.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stale saga: %w", err)
		}
		result = append(result, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale sagas: %w", err)
	}

	return result, nil
}

var _ domain.SagaRepository = (*sagaRepository)(nil)
