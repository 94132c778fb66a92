package saga

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Виды компенсаций для метрик и логов.
const (
	CompensationInventory = "inventory_released"
	CompensationRefund    = "payment_refunded"
)

// Finalizer — машина состояний заказа в объёме, нужном саге: финализация
// отмены после завершения обеих компенсаций.
type Finalizer interface {
	FinalizeCancellation(ctx context.Context, orderID string) error
}

// Orchestrator ведёт сагу отмены по заказу. Сага управляется двумя
// независимыми событиями (inventory.released, payment.refunded), которые могут
// прийти в любом порядке, конкурентно и с дубликатами; оба флага монотонны.
// Заказ финализируется в cancelled ровно один раз, когда подняты оба.
type Orchestrator struct {
	uow     domain.UnitOfWork
	machine Finalizer
	logger  *log.Entry
	metrics *metrics.SagaMetrics
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(uow domain.UnitOfWork, machine Finalizer, logger *log.Entry) *Orchestrator {
	if logger == nil {
		logger = log.WithField("component", "saga")
	}
	return &Orchestrator{
		uow:     uow,
		machine: machine,
		logger:  logger,
		metrics: metrics.NewSagaMetrics(),
	}
}

// NewOrchestratorWithMetrics создаёт оркестратор с метриками на изолированном
// registerer (для тестов).
func NewOrchestratorWithMetrics(uow domain.UnitOfWork, machine Finalizer, m *metrics.SagaMetrics, logger *log.Entry) *Orchestrator {
	if logger == nil {
		logger = log.WithField("component", "saga")
	}
	return &Orchestrator{uow: uow, machine: machine, logger: logger, metrics: m}
}

// OnInventoryReleased фиксирует компенсацию склада по заказу.
func (o *Orchestrator) OnInventoryReleased(ctx context.Context, orderID string) error {
	return o.apply(ctx, orderID, CompensationInventory)
}

// OnPaymentRefunded фиксирует компенсацию оплаты по заказу.
func (o *Orchestrator) OnPaymentRefunded(ctx context.Context, orderID string) error {
	return o.apply(ctx, orderID, CompensationRefund)
}

// apply поднимает флаг компенсации и, если обе завершены, финализирует заказ.
// Состояние сначала персистится, потом перечитывается на полноту: падение
// между персистом и финализацией лечится дубликатом события, потому что
// финализация идемпотентна.
func (o *Orchestrator) apply(ctx context.Context, orderID, kind string) error {
	var state domain.CancellationState
	var created, duplicate bool

	err := o.uow.Within(ctx, func(r domain.Repositories) error {
		existing, getErr := r.Sagas.Get(orderID)
		if getErr != nil {
			if !errors.Is(getErr, domain.ErrSagaNotFound) {
				return getErr
			}
			// Ленивое создание при первом событии компенсации.
			created = true
			existing = domain.CancellationState{
				OrderID:   orderID,
				CreatedAt: time.Now().UTC(),
			}
		}

		switch kind {
		case CompensationInventory:
			duplicate = existing.InventoryReleased
			existing.InventoryReleased = true
		case CompensationRefund:
			duplicate = existing.PaymentRefunded
			existing.PaymentRefunded = true
		}
		existing.UpdatedAt = time.Now().UTC()

		saved, upsertErr := r.Sagas.Upsert(existing)
		if upsertErr != nil {
			return upsertErr
		}
		state = saved
		return nil
	})
	if err != nil {
		return err
	}

	if o.metrics != nil {
		if created {
			o.metrics.RecordPendingStarted()
		}
		if duplicate {
			o.metrics.RecordDuplicate()
		} else {
			o.metrics.RecordCompensation(kind)
		}
	}

	if !state.Completed() {
		o.logger.WithFields(log.Fields{
			"order_id": orderID,
			"kind":     kind,
		}).Debug("compensation recorded, waiting for the other one")
		return nil
	}

	if err := o.machine.FinalizeCancellation(ctx, orderID); err != nil {
		return err
	}
	if o.metrics != nil && !duplicate {
		o.metrics.RecordCompleted()
	}
	o.logger.WithField("order_id", orderID).Info("cancellation saga completed")
	return nil
}
