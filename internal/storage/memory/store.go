package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Store — in-memory хранилище для локальной разработки и тестов. Все коллекции
// живут под одним мьютексом, что даёт сериализуемые единицы работы: Within
// снимает снапшот состояния и откатывает его при ошибке, поэтому бизнес-мутация
// и запись в outbox либо фиксируются вместе, либо не фиксируются вовсе.
type Store struct {
	mu    sync.Mutex
	state storeState
}

type storeState struct {
	orders        map[string]domain.Order
	inventory     map[string]domain.Inventory
	reservations  map[reservationKey]domain.StockReservation
	payments      map[string]domain.Payment
	paymentsByRef map[string]string
	sagas         map[string]domain.CancellationState
	outbox        map[string]outboxRecord
	outboxSeq     int64
}

type reservationKey struct {
	orderID string
	sku     string
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{state: newStoreState()}
}

func newStoreState() storeState {
	return storeState{
		orders:        make(map[string]domain.Order),
		inventory:     make(map[string]domain.Inventory),
		reservations:  make(map[reservationKey]domain.StockReservation),
		payments:      make(map[string]domain.Payment),
		paymentsByRef: make(map[string]string),
		sagas:         make(map[string]domain.CancellationState),
		outbox:        make(map[string]outboxRecord),
	}
}

// Within выполняет fn под общим замком хранилища. При ошибке fn всё состояние
// возвращается к снапшоту, снятому перед вызовом.
func (s *Store) Within(ctx context.Context, fn func(r domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(s.repositories()); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// Outbox возвращает потокобезопасный репозиторий outbox для фоновых воркеров,
// работающих вне единицы работы.
func (s *Store) Outbox() domain.OutboxRepository {
	return &lockedOutboxRepository{store: s}
}

func (s *Store) repositories() domain.Repositories {
	return domain.Repositories{
		Orders:       &orderRepositoryInMemory{state: &s.state},
		Inventory:    &inventoryRepositoryInMemory{state: &s.state},
		Reservations: &reservationRepositoryInMemory{state: &s.state},
		Payments:     &paymentRepositoryInMemory{state: &s.state},
		Sagas:        &sagaRepositoryInMemory{state: &s.state},
		Outbox:       &outboxRepositoryInMemory{state: &s.state},
	}
}

// clone делает глубокую копию состояния. Значения в картах копируются по
// значению; срезы внутри заказов копируются отдельно.
func (st storeState) clone() storeState {
	out := storeState{
		orders:        make(map[string]domain.Order, len(st.orders)),
		inventory:     make(map[string]domain.Inventory, len(st.inventory)),
		reservations:  make(map[reservationKey]domain.StockReservation, len(st.reservations)),
		payments:      make(map[string]domain.Payment, len(st.payments)),
		paymentsByRef: make(map[string]string, len(st.paymentsByRef)),
		sagas:         make(map[string]domain.CancellationState, len(st.sagas)),
		outbox:        make(map[string]outboxRecord, len(st.outbox)),
		outboxSeq:     st.outboxSeq,
	}
	for id, ord := range st.orders {
		out.orders[id] = cloneOrder(ord)
	}
	for sku, inv := range st.inventory {
		out.inventory[sku] = inv
	}
	for key, res := range st.reservations {
		out.reservations[key] = res
	}
	for id, p := range st.payments {
		out.payments[id] = p
	}
	for ref, id := range st.paymentsByRef {
		out.paymentsByRef[ref] = id
	}
	for id, saga := range st.sagas {
		out.sagas[id] = saga
	}
	for id, rec := range st.outbox {
		out.outbox[id] = rec
	}
	return out
}

func cloneOrder(ord domain.Order) domain.Order {
	if len(ord.Items) > 0 {
		items := make([]domain.OrderItem, len(ord.Items))
		copy(items, ord.Items)
		ord.Items = items
	}
	return ord
}

var _ domain.UnitOfWork = (*Store)(nil)
