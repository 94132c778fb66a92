package order

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

const (
	maxSaveAttempts = 3
	saveRetryDelay  = 10 * time.Millisecond
)

// IntentCreator — синхронная часть платёжной границы: создание intent'а у шлюза
// при оформлении заказа.
type IntentCreator interface {
	CreateIntent(ctx context.Context, orderID string, amountMinor int64, currency string) (string, error)
}

// Machine владеет жизненным циклом агрегата заказа и валидирует переходы.
// Каждая операция — одна атомарная единица работы: мутация заказа и записи
// в outbox коммитятся вместе.
type Machine struct {
	uow     domain.UnitOfWork
	intents IntentCreator
	logger  *log.Entry
}

// NewMachine создаёт машину состояний заказа.
func NewMachine(uow domain.UnitOfWork, intents IntentCreator, logger *log.Entry) *Machine {
	if logger == nil {
		logger = log.WithField("component", "order-machine")
	}
	return &Machine{uow: uow, intents: intents, logger: logger}
}

// Create создаёт заказ в статусе pending, эмитит запрос резервирования и событие
// для платёжной границы, затем синхронно запрашивает платёжный intent. Повторная
// доставка команды с тем же order id разрешается в no-op. Возвращает заказ и
// ссылку шлюза (пустую, если синхронный вызов не удался — intent будет создан
// асинхронно по событию order.created).
func (m *Machine) Create(ctx context.Context, cmd kafka.CreateOrderCommand) (domain.Order, string, error) {
	ord, err := m.orderFromCommand(cmd)
	if err != nil {
		return domain.Order{}, "", err
	}

	var duplicate bool
	err = m.uow.Within(ctx, func(r domain.Repositories) error {
		if createErr := r.Orders.Create(ord); createErr != nil {
			if errors.Is(createErr, domain.ErrOrderAlreadyExists) {
				duplicate = true
				return nil
			}
			return createErr
		}

		lock := kafka.InventoryLockRequestedEvent{OrderID: ord.ID, Items: reserveLines(ord.Items)}
		if enqErr := m.enqueue(r, ord.ID, kafka.EventTypeInventoryLockRequested, kafka.TopicInventoryEvents, lock); enqErr != nil {
			return enqErr
		}

		created := kafka.OrderCreatedEvent{
			OrderID:     ord.ID,
			CustomerID:  ord.CustomerID,
			AmountMinor: ord.AmountMinor,
			Currency:    ord.Currency,
		}
		return m.enqueue(r, ord.ID, kafka.EventTypeOrderCreated, kafka.TopicPaymentEvents, created)
	})
	if err != nil {
		return domain.Order{}, "", err
	}
	if duplicate {
		m.logger.WithField("order_id", ord.ID).Debug("duplicate create command, order already exists")
		existing, getErr := m.get(ctx, ord.ID)
		if getErr != nil {
			return domain.Order{}, "", getErr
		}
		return existing, existing.GatewayOrderRef, nil
	}

	// Gateway-вызов выполняется после коммита: intent нельзя создавать внутри
	// транзакции. При временном сбое intent создаст асинхронный путь через
	// событие order.created, гейт идемпотентности в платёжной границе снимет дубль.
	gatewayRef := ""
	if m.intents != nil {
		ref, intentErr := m.intents.CreateIntent(ctx, ord.ID, ord.AmountMinor, ord.Currency)
		if intentErr != nil {
			m.logger.WithError(intentErr).WithField("order_id", ord.ID).
				Warn("synchronous payment intent failed, deferring to async path")
		} else {
			gatewayRef = ref
		}
	}

	return ord, gatewayRef, nil
}

// OnPaymentIntentCreated переводит заказ pending → payment_ready. Повторное
// уведомление для заказа, уже ушедшего дальше, игнорируется.
func (m *Machine) OnPaymentIntentCreated(ctx context.Context, orderID, gatewayRef string) error {
	return m.withOrder(ctx, orderID, func(r domain.Repositories, ord *domain.Order) error {
		if ord.Status != domain.OrderStatusPending {
			m.logger.WithFields(log.Fields{
				"order_id": orderID,
				"status":   ord.Status,
			}).Debug("intent notification ignored, order already past pending")
			return nil
		}
		ord.Status = domain.OrderStatusPaymentReady
		ord.GatewayOrderRef = gatewayRef
		return r.Orders.Save(*ord)
	})
}

// OnPaymentConfirmed переводит заказ в placed, только если текущий статус строго
// раньше placed. Дубликаты подтверждений и заказы на поздних стадиях — no-op.
func (m *Machine) OnPaymentConfirmed(ctx context.Context, orderID, paymentRef string) error {
	return m.withOrder(ctx, orderID, func(r domain.Repositories, ord *domain.Order) error {
		if !ord.Status.Before(domain.OrderStatusPlaced) {
			m.logger.WithFields(log.Fields{
				"order_id": orderID,
				"status":   ord.Status,
			}).Debug("duplicate payment confirmation ignored")
			return nil
		}
		ord.Status = domain.OrderStatusPlaced
		ord.PaymentID = paymentRef
		if err := r.Orders.Save(*ord); err != nil {
			return err
		}
		return m.notify(r, ord, kafka.EventTypeNotifyOrderPlaced, "")
	})
}

// OnInventoryLockFailed отменяет заказ независимо от текущего статуса и эмитит
// уведомление об отмене.
func (m *Machine) OnInventoryLockFailed(ctx context.Context, orderID, reason string) error {
	return m.withOrder(ctx, orderID, func(r domain.Repositories, ord *domain.Order) error {
		if ord.Status == domain.OrderStatusCancelled {
			return nil
		}
		ord.Status = domain.OrderStatusCancelled
		if err := r.Orders.Save(*ord); err != nil {
			return err
		}
		return m.notify(r, ord, kafka.EventTypeNotifyOrderCancelled, reason)
	})
}

// RequestCancellation переводит заказ в cancel_requested и эмитит событие старта
// саги отмены с позициями заказа. После shipped отмена отклоняется доменной
// ошибкой, а не ретраится.
func (m *Machine) RequestCancellation(ctx context.Context, orderID, reason string) error {
	return m.withOrder(ctx, orderID, func(r domain.Repositories, ord *domain.Order) error {
		switch {
		case ord.Status == domain.OrderStatusCancelRequested || ord.Status == domain.OrderStatusCancelled:
			// Дубликат команды отмены: компенсации уже запущены или завершены.
			return nil
		case !ord.Status.Cancellable():
			return fmt.Errorf("%w: order %s is %s", domain.ErrCancelAfterShipping, orderID, ord.Status)
		}

		ord.Status = domain.OrderStatusCancelRequested
		if err := r.Orders.Save(*ord); err != nil {
			return err
		}

		event := kafka.OrderCancelRequestedEvent{
			OrderID:    ord.ID,
			CustomerID: ord.CustomerID,
			Items:      reserveLines(ord.Items),
			Reason:     reason,
		}
		return m.enqueue(r, ord.ID, kafka.EventTypeOrderCancelRequested, kafka.TopicOrderEvents, event)
	})
}

// SetStatus — административный перевод packed/shipped/delivered. Переход
// допускается только вперёд по основной ветке; delivered дополнительно эмитит
// уведомление о доставке.
func (m *Machine) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	switch status {
	case domain.OrderStatusPacked, domain.OrderStatusShipped, domain.OrderStatusDelivered:
	default:
		return fmt.Errorf("%w: %s is not an administrative status", domain.ErrIllegalTransition, status)
	}

	return m.withOrder(ctx, orderID, func(r domain.Repositories, ord *domain.Order) error {
		if ord.Status == status {
			return nil
		}
		if !ord.Status.Before(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, ord.Status, status)
		}
		ord.Status = status
		if err := r.Orders.Save(*ord); err != nil {
			return err
		}
		if status == domain.OrderStatusDelivered {
			return m.notify(r, ord, kafka.EventTypeNotifyOrderDelivered, "")
		}
		return nil
	})
}

// FinalizeCancellation вызывается оркестратором саги после завершения обеих
// компенсаций: cancel_requested → cancelled плюс уведомление о возврате.
func (m *Machine) FinalizeCancellation(ctx context.Context, orderID string) error {
	return m.withOrder(ctx, orderID, func(r domain.Repositories, ord *domain.Order) error {
		if ord.Status == domain.OrderStatusCancelled {
			return nil
		}
		if ord.Status != domain.OrderStatusCancelRequested {
			return fmt.Errorf("%w: finalize from %s", domain.ErrIllegalTransition, ord.Status)
		}
		ord.Status = domain.OrderStatusCancelled
		if err := r.Orders.Save(*ord); err != nil {
			return err
		}
		return m.notify(r, ord, kafka.EventTypeNotifyOrderRefunded, "")
	})
}

// Get возвращает заказ по идентификатору.
func (m *Machine) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return m.get(ctx, orderID)
}

func (m *Machine) get(ctx context.Context, orderID string) (domain.Order, error) {
	var ord domain.Order
	err := m.uow.Within(ctx, func(r domain.Repositories) error {
		var getErr error
		ord, getErr = r.Orders.Get(orderID)
		return getErr
	})
	return ord, err
}

// withOrder выполняет мутацию заказа в единице работы с retry по конфликту
// версий: при конфликте транзакция откатывается и повторяется на свежей копии.
func (m *Machine) withOrder(ctx context.Context, orderID string, fn func(r domain.Repositories, ord *domain.Order) error) error {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err := m.uow.Within(ctx, func(r domain.Repositories) error {
			ord, getErr := r.Orders.Get(orderID)
			if getErr != nil {
				return getErr
			}
			ord.UpdatedAt = time.Now().UTC()
			return fn(r, &ord)
		})
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return err
		}

		lastErr = err
		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
		}).Warn("version conflict detected, retrying")
		time.Sleep(saveRetryDelay * time.Duration(1<<uint(attempt)))
	}
	return lastErr
}

func (m *Machine) orderFromCommand(cmd kafka.CreateOrderCommand) (domain.Order, error) {
	if cmd.OrderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	total, err := domain.ParseAmountMinor(cmd.TotalAmount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("total_amount %q: %w", cmd.TotalAmount, err)
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		price, priceErr := domain.ParseAmountMinor(it.UnitPrice)
		if priceErr != nil {
			return domain.Order{}, fmt.Errorf("unit_price %q for sku %s: %w", it.UnitPrice, it.SKU, priceErr)
		}
		items = append(items, domain.OrderItem{
			SKU:        it.SKU,
			Name:       it.Name,
			ImageURL:   it.ImageURL,
			PriceMinor: price,
			Qty:        it.Qty,
		})
	}

	now := time.Now().UTC()
	ord := domain.Order{
		ID:              cmd.OrderID,
		CustomerID:      cmd.CustomerID,
		Status:          domain.OrderStatusPending,
		Currency:        cmd.Currency,
		AmountMinor:     total,
		ShippingAddress: cmd.ShippingAddress,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := ord.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}
	return ord, nil
}

func (m *Machine) notify(r domain.Repositories, ord *domain.Order, eventType, reason string) error {
	event := kafka.OrderNotificationEvent{
		OrderID:    ord.ID,
		CustomerID: ord.CustomerID,
		Status:     string(ord.Status),
		Amount:     domain.FormatAmountMinor(ord.AmountMinor),
		Currency:   ord.Currency,
		Reason:     reason,
	}
	return m.enqueue(r, ord.ID, eventType, kafka.TopicNotificationEvents, event)
}

func (m *Machine) enqueue(r domain.Repositories, orderID, eventType, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	_, err = r.Outbox.Enqueue(domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Topic:         topic,
		Payload:       data,
	})
	return err
}

func reserveLines(items []domain.OrderItem) []kafka.ReserveLine {
	lines := make([]kafka.ReserveLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, kafka.ReserveLine{SKU: it.SKU, Qty: it.Qty})
	}
	return lines
}
