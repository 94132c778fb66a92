package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// Engine владеет инвариантами остатков и резервов по SKU. Все операции
// идемпотентны относительно пары (order, sku): повторная доставка команды
// разрешается в no-op с тем же исходом, что у первой.
type Engine struct {
	uow    domain.UnitOfWork
	logger *log.Entry
}

// NewEngine создаёт движок резервирования.
func NewEngine(uow domain.UnitOfWork, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.WithField("component", "inventory-engine")
	}
	return &Engine{uow: uow, logger: logger}
}

// Reserve резервирует qty единиц sku под заказ. Существующий резерв по
// (order, sku) — признак дубликата команды: успех без повторной мутации.
// Нехватка доступного остатка — бизнес-отказ ErrInsufficientStock, слепой
// retry по нему запрещён.
func (e *Engine) Reserve(ctx context.Context, orderID, sku string, qty int32) error {
	return e.uow.Within(ctx, func(r domain.Repositories) error {
		return e.reserveLine(r, orderID, sku, qty)
	})
}

// ReserveOrder резервирует все позиции заказа атомарно: отказ по любой строке
// откатывает весь батч и конвертируется в событие inventory.lock_failed,
// которое отменит заказ.
func (e *Engine) ReserveOrder(ctx context.Context, orderID string, lines []kafka.ReserveLine) error {
	err := e.uow.Within(ctx, func(r domain.Repositories) error {
		for _, line := range lines {
			if lineErr := e.reserveLine(r, orderID, line.SKU, line.Qty); lineErr != nil {
				return lineErr
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrSKUNotFound) {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("reserve batch rejected")
		if emitErr := e.emitLockFailed(ctx, orderID, err.Error()); emitErr != nil {
			return emitErr
		}
	}
	return err
}

// Release снимает резерв одной позиции. Отсутствующий резерв — no-op успех
// с нулевым количеством: сага ждёт сигнал и не должна зависнуть из-за того,
// что резерва никогда не было. Уже снятый резерв не мутирует остаток повторно.
func (e *Engine) Release(ctx context.Context, orderID, sku string) (int32, error) {
	var released int32
	err := e.uow.Within(ctx, func(r domain.Repositories) error {
		var relErr error
		released, relErr = e.releaseLine(r, orderID, sku)
		return relErr
	})
	return released, err
}

// ReleaseOrder снимает резерв по всем позициям заказа и эмитит
// inventory.released — сигнал, который ждёт сага отмены. Событие эмитится
// всегда, в том числе повторно для уже снятых резервов: потребитель обязан
// быть идемпотентным.
func (e *Engine) ReleaseOrder(ctx context.Context, orderID string, lines []kafka.ReserveLine) error {
	return e.uow.Within(ctx, func(r domain.Repositories) error {
		releasedLines := make([]kafka.ReserveLine, 0, len(lines))
		for _, line := range lines {
			released, relErr := e.releaseLine(r, orderID, line.SKU)
			if relErr != nil {
				return relErr
			}
			releasedLines = append(releasedLines, kafka.ReserveLine{SKU: line.SKU, Qty: released})
		}

		event := kafka.InventoryReleasedEvent{OrderID: orderID, Lines: releasedLines}
		return e.enqueue(r, orderID, kafka.EventTypeInventoryReleased, event)
	})
}

// SeedStock задаёт остаток по SKU. Используется при инициализации и в тестах.
func (e *Engine) SeedStock(ctx context.Context, sku string, quantity int32) error {
	return e.uow.Within(ctx, func(r domain.Repositories) error {
		inv, err := r.Inventory.Get(sku)
		if err != nil {
			if !errors.Is(err, domain.ErrSKUNotFound) {
				return err
			}
			inv = domain.Inventory{SKU: sku}
		}
		inv.Quantity = quantity
		inv.UpdatedAt = time.Now().UTC()
		return r.Inventory.Save(inv)
	})
}

func (e *Engine) reserveLine(r domain.Repositories, orderID, sku string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	// Idempotency-гейт: резерв по (order, sku) уже есть — дубликат команды.
	if _, err := r.Reservations.Get(orderID, sku); err == nil {
		e.logger.WithFields(log.Fields{
			"order_id": orderID,
			"sku":      sku,
		}).Debug("duplicate reserve, reservation already recorded")
		return nil
	} else if !errors.Is(err, domain.ErrReservationNotFound) {
		return err
	}

	// Гейт доступности и инкремент — одна атомарная операция репозитория:
	// конкурентная транзакция по тому же SKU не может пройти гейт по уже
	// устаревшему остатку.
	inv, err := r.Inventory.Reserve(sku, qty)
	if err != nil {
		if errors.Is(err, domain.ErrSKUNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrSKUNotFound, sku)
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			cur, getErr := r.Inventory.Get(sku)
			if getErr != nil {
				return getErr
			}
			return fmt.Errorf("%w: sku %s available %d, requested %d",
				domain.ErrInsufficientStock, sku, cur.Available(), qty)
		}
		return err
	}

	now := time.Now().UTC()
	res := domain.StockReservation{
		OrderID:   orderID,
		SKU:       sku,
		Qty:       qty,
		Status:    domain.ReservationStatusReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Reservations.Create(res); err != nil {
		return err
	}

	event := kafka.InventoryUpdatedEvent{
		OrderID:   orderID,
		SKU:       sku,
		Qty:       qty,
		Available: inv.Available(),
	}
	return e.enqueue(r, orderID, kafka.EventTypeInventoryUpdated, event)
}

// releaseLine возвращает фактически снятое количество. Количество берётся из
// записанного резерва: количеству из запроса доверять нельзя.
func (e *Engine) releaseLine(r domain.Repositories, orderID, sku string) (int32, error) {
	res, err := r.Reservations.Get(orderID, sku)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			e.logger.WithFields(log.Fields{
				"order_id": orderID,
				"sku":      sku,
			}).Debug("release for missing reservation, emitting zero-quantity signal")
			return 0, nil
		}
		return 0, err
	}

	if res.Status == domain.ReservationStatusReleased {
		// Повторный release: остаток не трогаем, но сигнал переподтверждаем —
		// предыдущая публикация могла не дойти.
		return res.Qty, nil
	}

	inv, prevReserved, err := r.Inventory.ReleaseReserved(sku, res.Qty)
	if err != nil {
		if errors.Is(err, domain.ErrSKUNotFound) {
			return 0, fmt.Errorf("%w: %s", domain.ErrSKUNotFound, sku)
		}
		return 0, err
	}
	if prevReserved < res.Qty {
		// Дрейф счётчика резерва: сигнал для операторов, не падение.
		e.logger.WithFields(log.Fields{
			"order_id": orderID,
			"sku":      sku,
			"reserved": prevReserved,
			"release":  res.Qty,
		}).Warn("reserved counter drift, clamping release at zero")
	}

	res.Status = domain.ReservationStatusReleased
	res.UpdatedAt = inv.UpdatedAt
	if err := r.Reservations.Save(res); err != nil {
		return 0, err
	}

	return res.Qty, nil
}

// emitLockFailed пишет событие отказа в отдельной единице работы: резервирующая
// транзакция уже откатилась.
func (e *Engine) emitLockFailed(ctx context.Context, orderID, reason string) error {
	return e.uow.Within(ctx, func(r domain.Repositories) error {
		event := kafka.InventoryLockFailedEvent{OrderID: orderID, Reason: reason}
		return e.enqueue(r, orderID, kafka.EventTypeInventoryLockFailed, event)
	})
}

func (e *Engine) enqueue(r domain.Repositories, orderID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	_, err = r.Outbox.Enqueue(domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "inventory",
		AggregateID:   orderID,
		EventType:     eventType,
		Topic:         kafka.TopicInventoryEvents,
		Payload:       data,
	})
	return err
}
