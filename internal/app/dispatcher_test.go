package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Dependencies) {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	deps, err := NewDependencies(context.Background(), DefaultConfig(), logger.WithField("component", "test"))
	if err != nil {
		t.Fatalf("build dependencies failed: %v", err)
	}
	return NewDispatcher(deps, nil), deps
}

func envelopeMessage(t *testing.T, eventType string, payload interface{}) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	value, err := json.Marshal(kafka.Envelope{
		ID:        "msg-1",
		EventType: eventType,
		Payload:   data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: kafka.TopicOrderCommands, Value: value}
}

func TestDispatcher_CreateOrderCommand(t *testing.T) {
	dispatcher, deps := newTestDispatcher(t)

	cmd := kafka.CreateOrderCommand{
		OrderID:    "order-1",
		CustomerID: "customer-1",
		Items: []kafka.CommandItem{
			{SKU: "SKU-A", Name: "Mug", UnitPrice: "10.00", Qty: 1},
		},
		TotalAmount:     "10.00",
		Currency:        "USD",
		ShippingAddress: "10 Main st",
	}
	if err := dispatcher.Handle(context.Background(), envelopeMessage(t, kafka.EventTypeOrderCreateCommand, cmd)); err != nil {
		t.Fatalf("create command failed: %v", err)
	}

	ord, err := deps.Machine.Get(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("order not created: %v", err)
	}
	if ord.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", ord.Status)
	}

	// Повторная доставка команды — no-op без ошибки.
	if err := dispatcher.Handle(context.Background(), envelopeMessage(t, kafka.EventTypeOrderCreateCommand, cmd)); err != nil {
		t.Fatalf("redelivered command failed: %v", err)
	}
}

func TestDispatcher_SetStatusRejectsBackwardMove(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	cmd := kafka.CreateOrderCommand{
		OrderID:    "order-1",
		CustomerID: "customer-1",
		Items: []kafka.CommandItem{
			{SKU: "SKU-A", Name: "Mug", UnitPrice: "10.00", Qty: 1},
		},
		TotalAmount:     "10.00",
		Currency:        "USD",
		ShippingAddress: "10 Main st",
	}
	if err := dispatcher.Handle(context.Background(), envelopeMessage(t, kafka.EventTypeOrderCreateCommand, cmd)); err != nil {
		t.Fatalf("create command failed: %v", err)
	}

	status := kafka.SetStatusCommand{OrderID: "order-1", Status: string(domain.OrderStatusPending)}
	err := dispatcher.Handle(context.Background(), envelopeMessage(t, kafka.EventTypeOrderSetStatusCommand, status))
	if !domain.IsBusinessRejection(err) {
		t.Fatalf("expected business rejection, got %v", err)
	}
}

func TestDispatcher_UnknownEventSkipped(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	msg := envelopeMessage(t, "order.totally_new_event", map[string]string{"order_id": "order-1"})
	if err := dispatcher.Handle(context.Background(), msg); err != nil {
		t.Fatalf("unknown event must be acked, got %v", err)
	}
}

func TestDispatcher_MalformedEnvelope(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicOrderCommands, Value: []byte("{broken")}
	if err := dispatcher.Handle(context.Background(), msg); err == nil {
		t.Fatal("malformed envelope must fail")
	}
}

func TestDispatcher_Topics(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	topics := dispatcher.Topics()
	want := map[string]bool{
		kafka.TopicOrderCommands:   false,
		kafka.TopicOrderEvents:     false,
		kafka.TopicInventoryEvents: false,
		kafka.TopicPaymentEvents:   false,
	}
	for _, topic := range topics {
		if _, ok := want[topic]; !ok {
			t.Fatalf("unexpected topic %s", topic)
		}
		want[topic] = true
	}
	for topic, seen := range want {
		if !seen {
			t.Fatalf("topic %s is not consumed", topic)
		}
	}
}
