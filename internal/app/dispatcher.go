package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// Dispatcher разбирает конверт события и вызывает обработчик нужного сервиса.
// Все обработчики идемпотентны, поэтому повторная доставка безопасна.
type Dispatcher struct {
	deps   *Dependencies
	logger *log.Entry
}

// NewDispatcher создаёт маршрутизатор событий.
func NewDispatcher(deps *Dependencies, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "dispatcher")
	}
	return &Dispatcher{deps: deps, logger: logger}
}

// Topics возвращает список топиков, которые слушает сервис.
func (d *Dispatcher) Topics() []string {
	return []string{
		kafka.TopicOrderCommands,
		kafka.TopicOrderEvents,
		kafka.TopicInventoryEvents,
		kafka.TopicPaymentEvents,
	}
}

// Handle обрабатывает одно сообщение из Kafka.
func (d *Dispatcher) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseEnvelope(message)
	if err != nil {
		return err
	}

	d.logger.WithFields(log.Fields{
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
		"topic":        message.Topic,
	}).Debug("dispatching event")

	switch envelope.EventType {
	case kafka.EventTypeOrderCreateCommand:
		var cmd kafka.CreateOrderCommand
		if err := unmarshalPayload(envelope, &cmd); err != nil {
			return err
		}
		_, _, err := d.deps.Machine.Create(ctx, cmd)
		return err

	case kafka.EventTypeOrderCancelCommand:
		var cmd kafka.CancelOrderCommand
		if err := unmarshalPayload(envelope, &cmd); err != nil {
			return err
		}
		return d.deps.Machine.RequestCancellation(ctx, cmd.OrderID, cmd.Reason)

	case kafka.EventTypeOrderSetStatusCommand:
		var cmd kafka.SetStatusCommand
		if err := unmarshalPayload(envelope, &cmd); err != nil {
			return err
		}
		return d.deps.Machine.SetStatus(ctx, cmd.OrderID, domain.OrderStatus(cmd.Status))

	case kafka.EventTypeOrderCreated:
		var event kafka.OrderCreatedEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		// Резервный путь создания intent'а: синхронная попытка при создании
		// заказа могла не дойти до шлюза. Повтор разрешается в no-op.
		_, err := d.deps.Boundary.CreateIntent(ctx, event.OrderID, event.AmountMinor, event.Currency)
		if errors.Is(err, domain.ErrPaymentAlreadyExists) {
			return nil
		}
		return err

	case kafka.EventTypeOrderCancelRequested:
		var event kafka.OrderCancelRequestedEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		return d.handleCancelRequested(ctx, event)

	case kafka.EventTypeInventoryLockRequested:
		var event kafka.InventoryLockRequestedEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		return d.deps.Engine.ReserveOrder(ctx, event.OrderID, event.Items)

	case kafka.EventTypeInventoryLockFailed:
		var event kafka.InventoryLockFailedEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		return d.deps.Machine.OnInventoryLockFailed(ctx, event.OrderID, event.Reason)

	case kafka.EventTypeInventoryReleased:
		var event kafka.InventoryReleasedEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		return d.deps.Orchestrator.OnInventoryReleased(ctx, event.OrderID)

	case kafka.EventTypePaymentInitiated:
		var event kafka.PaymentInitiatedEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		return d.deps.Machine.OnPaymentIntentCreated(ctx, event.OrderID, event.GatewayRef)

	case kafka.EventTypePaymentConfirmed:
		var event kafka.PaymentSuccessEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		return d.deps.Machine.OnPaymentConfirmed(ctx, event.OrderID, event.PaymentRef)

	case kafka.EventTypePaymentRefunded:
		var event kafka.PaymentRefundedEvent
		if err := unmarshalPayload(envelope, &event); err != nil {
			return err
		}
		return d.deps.Orchestrator.OnPaymentRefunded(ctx, event.OrderID)

	case kafka.EventTypeInventoryUpdated:
		// Информационное событие, обработчика нет.
		return nil

	default:
		d.logger.WithField("event_type", envelope.EventType).Debug("event type has no handler, skipping")
		return nil
	}
}

// handleCancelRequested запускает обе ветки компенсаций. Ветки независимы:
// ошибка одной не должна блокировать вторую, повтор доставки доведёт обе.
func (d *Dispatcher) handleCancelRequested(ctx context.Context, event kafka.OrderCancelRequestedEvent) error {
	releaseErr := d.deps.Engine.ReleaseOrder(ctx, event.OrderID, event.Items)
	refundErr := d.deps.Boundary.Refund(ctx, event.OrderID)

	if releaseErr != nil && refundErr != nil {
		return fmt.Errorf("release: %v; refund: %w", releaseErr, refundErr)
	}
	if releaseErr != nil {
		return releaseErr
	}
	return refundErr
}

func unmarshalPayload(envelope kafka.Envelope, target interface{}) error {
	if err := json.Unmarshal(envelope.Payload, target); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", envelope.EventType, err)
	}
	return nil
}
