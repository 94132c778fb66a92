package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/outbox"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

// stubPublisher записывает публикации и отдаёт заранее заданные ошибки.
type stubPublisher struct {
	mu        sync.Mutex
	published []domain.OutboxMessage
	errs      map[string]error
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{errs: make(map[string]error)}
}

func (p *stubPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[msg.ID]; ok && err != nil {
		return err
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func enqueue(t *testing.T, store *memory.Store, id, eventType string) {
	t.Helper()
	enqueueFor(t, store, id, "order-1", eventType)
}

func enqueueFor(t *testing.T, store *memory.Store, id, aggregateID, eventType string) {
	t.Helper()
	err := store.Within(context.Background(), func(r domain.Repositories) error {
		_, enqueueErr := r.Outbox.Enqueue(domain.OutboxMessage{
			ID:            id,
			AggregateType: "order",
			AggregateID:   aggregateID,
			EventType:     eventType,
			Topic:         "fulfillment.order.events",
			Payload:       []byte(`{}`),
		})
		return enqueueErr
	})
	if err != nil {
		t.Fatalf("enqueue %s failed: %v", id, err)
	}
}

func pendingCount(t *testing.T, store *memory.Store) int {
	t.Helper()
	stats, err := store.Outbox().Stats()
	if err != nil {
		t.Fatalf("outbox stats failed: %v", err)
	}
	return stats.PendingCount
}

func TestWorker_PublishesAndMarksProcessed(t *testing.T) {
	store := memory.NewStore()
	publisher := newStubPublisher()
	enqueue(t, store, "m1", "order.created")
	enqueue(t, store, "m2", "payment.initiated")

	worker := outbox.NewWorker(store.Outbox(), publisher)
	worker.ProcessOnce(context.Background())

	if publisher.count() != 2 {
		t.Fatalf("expected 2 published messages, got %d", publisher.count())
	}
	if got := pendingCount(t, store); got != 0 {
		t.Fatalf("expected empty backlog, got %d pending", got)
	}

	// Повторный цикл над пустым backlog'ом ничего не публикует.
	worker.ProcessOnce(context.Background())
	if publisher.count() != 2 {
		t.Fatalf("re-poll re-published messages, got %d", publisher.count())
	}
}

func TestWorker_FailedMessageStaysPending(t *testing.T) {
	store := memory.NewStore()
	publisher := newStubPublisher()
	publisher.errs["m1"] = errors.New("broker down")
	enqueueFor(t, store, "m1", "order-1", "order.created")
	enqueueFor(t, store, "m2", "order-2", "order.created")

	worker := outbox.NewWorker(store.Outbox(), publisher,
		outbox.WithMaxAttempts(2), outbox.WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	// m1 не ушёл и остался pending; m2 другого агрегата публикуется независимо.
	if publisher.count() != 1 {
		t.Fatalf("expected 1 published message, got %d", publisher.count())
	}
	if got := pendingCount(t, store); got != 1 {
		t.Fatalf("failed message must stay pending, got %d", got)
	}

	// Брокер ожил: следующий цикл доводит запись до processed.
	delete(publisher.errs, "m1")
	worker.ProcessOnce(context.Background())
	if publisher.count() != 2 {
		t.Fatalf("expected recovery publish, got %d", publisher.count())
	}
	if got := pendingCount(t, store); got != 0 {
		t.Fatalf("expected empty backlog after recovery, got %d", got)
	}
}

func TestWorker_HoldsAggregateAfterFailure(t *testing.T) {
	store := memory.NewStore()
	publisher := newStubPublisher()
	publisher.errs["m1"] = errors.New("broker down")
	enqueueFor(t, store, "m1", "order-1", "order.created")
	enqueueFor(t, store, "m2", "order-1", "order.cancel_requested")
	enqueueFor(t, store, "m3", "order-2", "order.created")

	worker := outbox.NewWorker(store.Outbox(), publisher,
		outbox.WithMaxAttempts(1), outbox.WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	// Поздняя запись order-1 придержана: уйди она сейчас, порядок внутри
	// агрегата инвертировался бы при ретрае m1 в следующем цикле.
	if publisher.count() != 1 {
		t.Fatalf("expected only the other aggregate published, got %d", publisher.count())
	}
	publisher.mu.Lock()
	onlyID := publisher.published[0].ID
	publisher.mu.Unlock()
	if onlyID != "m3" {
		t.Fatalf("expected m3 published, got %s", onlyID)
	}
	if got := pendingCount(t, store); got != 2 {
		t.Fatalf("held records must stay pending, got %d", got)
	}

	// После восстановления брокера записи уходят в исходном порядке.
	delete(publisher.errs, "m1")
	worker.ProcessOnce(context.Background())
	publisher.mu.Lock()
	order1 := make([]string, 0, 2)
	for _, msg := range publisher.published {
		if msg.AggregateID == "order-1" {
			order1 = append(order1, msg.ID)
		}
	}
	publisher.mu.Unlock()
	if len(order1) != 2 || order1[0] != "m1" || order1[1] != "m2" {
		t.Fatalf("expected order-1 records in creation order, got %v", order1)
	}
	if got := pendingCount(t, store); got != 0 {
		t.Fatalf("expected empty backlog after recovery, got %d", got)
	}
}

func TestWorker_RespectsBatchSize(t *testing.T) {
	store := memory.NewStore()
	publisher := newStubPublisher()
	for _, id := range []string{"m1", "m2", "m3"} {
		enqueue(t, store, id, "order.created")
	}

	worker := outbox.NewWorker(store.Outbox(), publisher, outbox.WithBatchSize(2))
	worker.ProcessOnce(context.Background())

	if publisher.count() != 2 {
		t.Fatalf("expected batch of 2, got %d", publisher.count())
	}
	if got := pendingCount(t, store); got != 1 {
		t.Fatalf("expected 1 message left for the next poll, got %d", got)
	}
}

func TestWorker_CancelledContextStops(t *testing.T) {
	store := memory.NewStore()
	publisher := newStubPublisher()
	enqueue(t, store, "m1", "order.created")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := outbox.NewWorker(store.Outbox(), publisher)
	worker.ProcessOnce(ctx)

	if publisher.count() != 0 {
		t.Fatalf("cancelled context must not publish, got %d", publisher.count())
	}
}

func TestRetention_DeletesOldProcessedOnly(t *testing.T) {
	store := memory.NewStore()
	publisher := newStubPublisher()
	enqueue(t, store, "m1", "order.created")
	enqueue(t, store, "m2", "payment.initiated")

	// m1 обработан, m2 остаётся pending.
	worker := outbox.NewWorker(store.Outbox(), publisher, outbox.WithBatchSize(1))
	worker.ProcessOnce(context.Background())
	time.Sleep(5 * time.Millisecond)

	retention := outbox.NewRetentionWorker(store.Outbox(),
		outbox.WithRetentionPeriod(time.Millisecond))
	retention.SweepOnce()

	if got := pendingCount(t, store); got != 1 {
		t.Fatalf("retention must never touch pending records, got %d", got)
	}
	pending, err := store.Outbox().PullPending(10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "m2" {
		t.Fatalf("expected m2 to survive, got %+v", pending)
	}
}

func TestRetention_KeepsRecentProcessed(t *testing.T) {
	store := memory.NewStore()
	publisher := newStubPublisher()
	enqueue(t, store, "m1", "order.created")

	worker := outbox.NewWorker(store.Outbox(), publisher)
	worker.ProcessOnce(context.Background())

	// Свежая processed-запись внутри окна хранения не удаляется.
	retention := outbox.NewRetentionWorker(store.Outbox(),
		outbox.WithRetentionPeriod(24*time.Hour))
	retention.SweepOnce()

	deleted, err := store.Outbox().DeleteProcessedBefore(time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("delete processed failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected record kept within retention window, deleted %d", deleted)
	}
}
