package saga_test

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/saga"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func seedStuckSaga(t *testing.T, store *memory.Store, orderID string, status domain.OrderStatus) {
	t.Helper()
	now := time.Now().UTC()
	stale := now.Add(-time.Hour)
	err := store.Within(context.Background(), func(r domain.Repositories) error {
		if err := r.Orders.Create(domain.Order{
			ID:          orderID,
			CustomerID:  "customer-1",
			Status:      status,
			Currency:    "USD",
			AmountMinor: 500,
			Items: []domain.OrderItem{
				{SKU: "SKU-A", Name: "Item A", PriceMinor: 500, Qty: 1},
			},
			CreatedAt: stale,
			UpdatedAt: stale,
		}); err != nil {
			return err
		}
		_, err := r.Sagas.Upsert(domain.CancellationState{
			OrderID:           orderID,
			InventoryReleased: true,
			CreatedAt:         stale,
			UpdatedAt:         stale,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed stuck saga failed: %v", err)
	}
}

func pendingEvents(t *testing.T, store *memory.Store) []domain.OutboxMessage {
	t.Helper()
	pending, err := store.Outbox().PullPending(100)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	return pending
}

func TestSweeper_RequeuesStuckSaga(t *testing.T) {
	store := memory.NewStore()
	seedStuckSaga(t, store, "order-1", domain.OrderStatusCancelRequested)

	sweeper := saga.NewSweeper(store, saga.WithStuckAfter(10*time.Minute))
	sweeper.SweepOnce(context.Background())

	pending := pendingEvents(t, store)
	if len(pending) != 1 {
		t.Fatalf("expected 1 requeued event, got %d", len(pending))
	}
	msg := pending[0]
	if msg.EventType != kafka.EventTypeOrderCancelRequested {
		t.Fatalf("expected cancel_requested, got %s", msg.EventType)
	}
	if msg.Topic != kafka.TopicOrderEvents {
		t.Fatalf("expected topic %s, got %s", kafka.TopicOrderEvents, msg.Topic)
	}
	if msg.AggregateID != "order-1" {
		t.Fatalf("expected aggregate order-1, got %s", msg.AggregateID)
	}

	// Повторный проход сразу после requeue ничего не находит: updated_at продвинут.
	sweeper.SweepOnce(context.Background())
	if got := len(pendingEvents(t, store)); got != 1 {
		t.Fatalf("immediate re-sweep must not requeue again, got %d events", got)
	}
}

func TestSweeper_SkipsResolvedOrder(t *testing.T) {
	store := memory.NewStore()
	// Сага зависла, но заказ уже отменён другим путём.
	seedStuckSaga(t, store, "order-1", domain.OrderStatusCancelled)

	sweeper := saga.NewSweeper(store, saga.WithStuckAfter(10*time.Minute))
	sweeper.SweepOnce(context.Background())

	if got := len(pendingEvents(t, store)); got != 0 {
		t.Fatalf("resolved order must not be requeued, got %d events", got)
	}
}

func TestSweeper_IgnoresFreshSagas(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	err := store.Within(context.Background(), func(r domain.Repositories) error {
		_, upsertErr := r.Sagas.Upsert(domain.CancellationState{
			OrderID:           "order-1",
			InventoryReleased: true,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		return upsertErr
	})
	if err != nil {
		t.Fatalf("seed saga failed: %v", err)
	}

	sweeper := saga.NewSweeper(store, saga.WithStuckAfter(10*time.Minute))
	sweeper.SweepOnce(context.Background())

	if got := len(pendingEvents(t, store)); got != 0 {
		t.Fatalf("fresh saga must not be requeued, got %d events", got)
	}
}
