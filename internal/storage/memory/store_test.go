package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func newOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:              "order-1",
		CustomerID:      "customer-1",
		Status:          domain.OrderStatusPending,
		Currency:        "USD",
		AmountMinor:     500,
		ShippingAddress: "Some street 1",
		Items: []domain.OrderItem{
			{SKU: "SKU-A", Name: "Widget", PriceMinor: 100, Qty: 5},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_Within_Commit(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(r domain.Repositories) error {
		if err := r.Orders.Create(newOrder()); err != nil {
			return err
		}
		_, err := r.Outbox.Enqueue(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "order-1",
			EventType:     "order.created",
		})
		return err
	})
	if err != nil {
		t.Fatalf("within failed: %v", err)
	}

	err = store.Within(ctx, func(r domain.Repositories) error {
		if _, getErr := r.Orders.Get("order-1"); getErr != nil {
			return getErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("order not committed: %v", err)
	}

	pending, err := store.Outbox().PullPending(10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending outbox message, got %d", len(pending))
	}
}

func TestStore_Within_RollbackOnError(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Within(ctx, func(r domain.Repositories) error {
		if createErr := r.Orders.Create(newOrder()); createErr != nil {
			return createErr
		}
		if _, enqErr := r.Outbox.Enqueue(domain.OutboxMessage{AggregateID: "order-1", EventType: "order.created"}); enqErr != nil {
			return enqErr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// Ни заказ, ни outbox-запись не должны пережить откат.
	err = store.Within(ctx, func(r domain.Repositories) error {
		_, getErr := r.Orders.Get("order-1")
		return getErr
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound after rollback, got %v", err)
	}

	pending, err := store.Outbox().PullPending(10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending outbox messages after rollback, got %d", len(pending))
	}
}

func TestStore_OrderVersionConflict(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if err := store.Within(ctx, func(r domain.Repositories) error {
		return r.Orders.Create(newOrder())
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := store.Within(ctx, func(r domain.Repositories) error {
		stale, getErr := r.Orders.Get("order-1")
		if getErr != nil {
			return getErr
		}

		fresh := stale
		fresh.Status = domain.OrderStatusPaymentReady
		if saveErr := r.Orders.Save(fresh); saveErr != nil {
			return saveErr
		}

		// Повторное сохранение со старой версией должно отклониться.
		stale.Status = domain.OrderStatusPlaced
		return r.Orders.Save(stale)
	})
	if !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestStore_DuplicateOrderCreate(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if err := store.Within(ctx, func(r domain.Repositories) error {
		return r.Orders.Create(newOrder())
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := store.Within(ctx, func(r domain.Repositories) error {
		return r.Orders.Create(newOrder())
	})
	if !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}
}

func TestOutbox_MarkProcessedIdempotent(t *testing.T) {
	store := memory.NewStore()
	repo := store.Outbox()

	msg, err := repo.Enqueue(domain.OutboxMessage{AggregateID: "order-1", EventType: "order.created"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkProcessed(msg.ID); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}
	if err := repo.MarkProcessed(msg.ID); err != nil {
		t.Fatalf("repeated mark processed must be a no-op: %v", err)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}
}

func TestOutbox_PullPendingOrder(t *testing.T) {
	store := memory.NewStore()
	repo := store.Outbox()

	for _, id := range []string{"m1", "m2", "m3"} {
		if _, err := repo.Enqueue(domain.OutboxMessage{ID: id, AggregateID: "order-1", EventType: "e"}); err != nil {
			t.Fatalf("enqueue %s failed: %v", id, err)
		}
	}

	pending, err := repo.PullPending(2)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pending))
	}
	if pending[0].ID != "m1" || pending[1].ID != "m2" {
		t.Fatalf("expected creation order m1,m2, got %s,%s", pending[0].ID, pending[1].ID)
	}
}

func TestOutbox_RetentionKeepsPending(t *testing.T) {
	store := memory.NewStore()
	repo := store.Outbox()

	processed, err := repo.Enqueue(domain.OutboxMessage{ID: "old-processed", AggregateID: "o", EventType: "e"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := repo.Enqueue(domain.OutboxMessage{ID: "still-pending", AggregateID: "o", EventType: "e"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := repo.MarkProcessed(processed.ID); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}

	deleted, err := repo.DeleteProcessedBefore(time.Now().UTC().Add(time.Hour), 100)
	if err != nil {
		t.Fatalf("retention failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted record, got %d", deleted)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "still-pending" {
		t.Fatalf("pending record must survive retention, got %+v", pending)
	}
}

func TestInventory_ReserveGuard(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(r domain.Repositories) error {
		if saveErr := r.Inventory.Save(domain.Inventory{SKU: "SKU-A", Quantity: 5}); saveErr != nil {
			return saveErr
		}

		inv, resErr := r.Inventory.Reserve("SKU-A", 3)
		if resErr != nil {
			return resErr
		}
		if inv.Reserved != 3 {
			t.Fatalf("expected reserved 3, got %d", inv.Reserved)
		}

		// Гейт и инкремент неразделимы: второй резерв сверх остатка отклоняется,
		// счётчик не меняется.
		if _, resErr = r.Inventory.Reserve("SKU-A", 3); !errors.Is(resErr, domain.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", resErr)
		}
		inv, getErr := r.Inventory.Get("SKU-A")
		if getErr != nil {
			return getErr
		}
		if inv.Reserved != 3 {
			t.Fatalf("rejected reserve must not mutate, got reserved %d", inv.Reserved)
		}

		if _, resErr = r.Inventory.Reserve("SKU-missing", 1); !errors.Is(resErr, domain.ErrSKUNotFound) {
			t.Fatalf("expected ErrSKUNotFound, got %v", resErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within failed: %v", err)
	}
}

func TestInventory_ReleaseReservedClamps(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(r domain.Repositories) error {
		if saveErr := r.Inventory.Save(domain.Inventory{SKU: "SKU-A", Quantity: 5, Reserved: 2}); saveErr != nil {
			return saveErr
		}

		inv, prev, relErr := r.Inventory.ReleaseReserved("SKU-A", 3)
		if relErr != nil {
			return relErr
		}
		if prev != 2 {
			t.Fatalf("expected previous reserved 2, got %d", prev)
		}
		if inv.Reserved != 0 {
			t.Fatalf("release past zero must clamp, got %d", inv.Reserved)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within failed: %v", err)
	}
}

func TestPayment_ClaimRefundOnce(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(r domain.Repositories) error {
		p := domain.Payment{ID: "p1", OrderID: "order-1", Status: domain.PaymentStatusPaid, AmountMinor: 500, Currency: "USD"}
		if createErr := r.Payments.Create(p); createErr != nil {
			return createErr
		}

		prev, claimed, claimErr := r.Payments.ClaimRefund("order-1")
		if claimErr != nil {
			return claimErr
		}
		if !claimed || prev.Status != domain.PaymentStatusPaid {
			t.Fatalf("first claim must win with previous status paid, got claimed=%v status=%s", claimed, prev.Status)
		}

		if _, claimed, claimErr = r.Payments.ClaimRefund("order-1"); claimErr != nil || claimed {
			t.Fatalf("second claim must lose, got claimed=%v err=%v", claimed, claimErr)
		}

		if _, _, claimErr = r.Payments.ClaimRefund("order-ghost"); !errors.Is(claimErr, domain.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", claimErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within failed: %v", err)
	}
}

func TestSagaRepository_UpsertMonotonic(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(r domain.Repositories) error {
		if _, upErr := r.Sagas.Upsert(domain.CancellationState{OrderID: "order-1", InventoryReleased: true}); upErr != nil {
			return upErr
		}
		merged, upErr := r.Sagas.Upsert(domain.CancellationState{OrderID: "order-1", PaymentRefunded: true})
		if upErr != nil {
			return upErr
		}
		if !merged.InventoryReleased || !merged.PaymentRefunded {
			t.Fatalf("expected both flags raised, got %+v", merged)
		}

		// Запись без флагов не должна их сбросить.
		merged, upErr = r.Sagas.Upsert(domain.CancellationState{OrderID: "order-1"})
		if upErr != nil {
			return upErr
		}
		if !merged.Completed() {
			t.Fatalf("flags must stay raised, got %+v", merged)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within failed: %v", err)
	}
}

func TestSagaRepository_ListStale(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)

	err := store.Within(ctx, func(r domain.Repositories) error {
		if _, err := r.Sagas.Upsert(domain.CancellationState{OrderID: "stuck", InventoryReleased: true, UpdatedAt: old}); err != nil {
			return err
		}
		if _, err := r.Sagas.Upsert(domain.CancellationState{OrderID: "fresh", InventoryReleased: true, UpdatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		if _, err := r.Sagas.Upsert(domain.CancellationState{OrderID: "done", InventoryReleased: true, PaymentRefunded: true, UpdatedAt: old}); err != nil {
			return err
		}

		stale, err := r.Sagas.ListStale(time.Now().UTC().Add(-time.Minute), 10)
		if err != nil {
			return err
		}
		if len(stale) != 1 || stale[0].OrderID != "stuck" {
			t.Fatalf("expected only stuck saga, got %+v", stale)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within failed: %v", err)
	}
}
