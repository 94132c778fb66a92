package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type paymentRepository struct {
	q   queryer
	ctx context.Context
}

// Create сохраняет платёж; по заказу допускается не более одного.
func (r *paymentRepository) Create(p domain.Payment) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, gateway_order_ref, gateway_payment_id,
			status, amount_minor, currency, method, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		p.ID, p.OrderID, p.GatewayOrderRef, p.GatewayPaymentID,
		string(p.Status), p.AmountMinor, p.Currency, p.Method, p.CreatedAt, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentAlreadyExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// GetByOrderID возвращает платёж по заказу или ErrPaymentNotFound.
func (r *paymentRepository) GetByOrderID(orderID string) (domain.Payment, error) {
	return r.getBy(`order_id = $1`, orderID)
}

// GetByGatewayRef возвращает платёж по ссылке заказа у шлюза или ErrPaymentNotFound.
func (r *paymentRepository) GetByGatewayRef(gatewayRef string) (domain.Payment, error) {
	return r.getBy(`gateway_order_ref = $1`, gatewayRef)
}

// Save перезаписывает платёж.
func (r *paymentRepository) Save(p domain.Payment) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	result, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET gateway_order_ref = $1,
		    gateway_payment_id = $2,
		    status = $3,
		    method = $4,
		    updated_at = $5
		WHERE id = $6
	`, p.GatewayOrderRef, p.GatewayPaymentID, string(p.Status), p.Method, time.Now().UTC(), p.ID)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}

	return nil
}

// ClaimRefund переводит платёж в refunded одним условным UPDATE: предикат
// перепроверяется под блокировкой строки, поэтому из конкурентных claim'ов
// строку получает ровно один. Self-join отдаёт значения до перехода.
func (r *paymentRepository) ClaimRefund(orderID string) (domain.Payment, bool, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var p domain.Payment
	var status string
	err := r.q.QueryRowContext(ctx, `
		UPDATE payments p
		SET status = $1, updated_at = $2
		FROM payments old
		WHERE old.id = p.id AND p.order_id = $3 AND p.status <> $1
		RETURNING p.id, p.order_id, p.gateway_order_ref, p.gateway_payment_id,
		          old.status, p.amount_minor, p.currency, p.method, p.created_at, old.updated_at
	`, string(domain.PaymentStatusRefunded), time.Now().UTC(), orderID).Scan(
		&p.ID, &p.OrderID, &p.GatewayOrderRef, &p.GatewayPaymentID,
		&status, &p.AmountMinor, &p.Currency, &p.Method, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == nil {
		p.Status = domain.PaymentStatus(status)
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, false, fmt.Errorf("claim refund: %w", err)
	}

	// Ноль строк: платежа нет либо он уже refunded.
	p, getErr := r.GetByOrderID(orderID)
	if getErr != nil {
		return domain.Payment{}, false, getErr
	}
	return p, false, nil
}

func (r *paymentRepository) getBy(where string, arg any) (domain.Payment, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var p domain.Payment
	var status string
	err := r.q.QueryRowContext(ctx, `
		SELECT id, order_id, gateway_order_ref, gateway_payment_id,
		       status, amount_minor, currency, method, created_at, updated_at
		FROM payments
		WHERE `+where, arg).Scan(
		&p.ID, &p.OrderID, &p.GatewayOrderRef, &p.GatewayPaymentID,
		&status, &p.AmountMinor, &p.Currency, &p.Method, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	p.Status = domain.PaymentStatus(status)

	return p, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
