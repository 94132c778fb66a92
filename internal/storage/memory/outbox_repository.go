package memory

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusProcessed = "processed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg         domain.OutboxMessage
	status      string
	seq         int64
	processedAt time.Time
}

// outboxRepositoryInMemory — in-memory хранилище для transactional outbox.
type outboxRepositoryInMemory struct {
	state *storeState
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с заполненными
// служебными полями.
func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	r.state.outboxSeq++
	r.state.outbox[msg.ID] = outboxRecord{
		msg:    msg,
		status: outboxStatusPending,
		seq:    r.state.outboxSeq,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке создания.
func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := make([]outboxRecord, 0, limit)
	for _, rec := range r.state.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		pending = append(pending, rec)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].seq < pending[j].seq
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// MarkProcessed идемпотентно переводит запись в `processed`.
func (r *outboxRepositoryInMemory) MarkProcessed(id string) error {
	rec, ok := r.state.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	if rec.status == outboxStatusProcessed {
		return nil
	}

	rec.status = outboxStatusProcessed
	rec.processedAt = time.Now().UTC()
	r.state.outbox[id] = rec
	return nil
}

// Stats возвращает размер backlog'а и возраст самой старой pending-записи.
func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	for _, rec := range r.state.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.msg.CreatedAt
		}
	}
	return stats, nil
}

// DeleteProcessedBefore удаляет обработанные записи старше cutoff. Pending-записи
// не удаляются никогда.
func (r *outboxRepositoryInMemory) DeleteProcessedBefore(cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	deleted := 0
	for id, rec := range r.state.outbox {
		if rec.status != outboxStatusProcessed {
			continue
		}
		if !rec.processedAt.Before(cutoff) {
			continue
		}
		delete(r.state.outbox, id)
		deleted++
		if deleted >= limit {
			break
		}
	}
	return deleted, nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)

// lockedOutboxRepository оборачивает outbox-репозиторий замком хранилища —
// для воркеров, работающих вне единицы работы.
type lockedOutboxRepository struct {
	store *Store
}

func (r *lockedOutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return (&outboxRepositoryInMemory{state: &r.store.state}).Enqueue(msg)
}

func (r *lockedOutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return (&outboxRepositoryInMemory{state: &r.store.state}).PullPending(limit)
}

func (r *lockedOutboxRepository) MarkProcessed(id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return (&outboxRepositoryInMemory{state: &r.store.state}).MarkProcessed(id)
}

func (r *lockedOutboxRepository) Stats() (domain.OutboxStats, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return (&outboxRepositoryInMemory{state: &r.store.state}).Stats()
}

func (r *lockedOutboxRepository) DeleteProcessedBefore(cutoff time.Time, limit int) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return (&outboxRepositoryInMemory{state: &r.store.state}).DeleteProcessedBefore(cutoff, limit)
}

var _ domain.OutboxRepository = (*lockedOutboxRepository)(nil)
