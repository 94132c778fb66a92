package memory

import (
	"sort"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// sagaRepositoryInMemory хранит состояния саги отмены по заказам.
type sagaRepositoryInMemory struct {
	state *storeState
}

// Get возвращает состояние саги или ErrSagaNotFound.
func (r *sagaRepositoryInMemory) Get(orderID string) (domain.CancellationState, error) {
	state, ok := r.state.sagas[orderID]
	if !ok {
		return domain.CancellationState{}, domain.ErrSagaNotFound
	}
	return state, nil
}

// Upsert сохраняет состояние, монотонно сливая флаги с уже записанными.
func (r *sagaRepositoryInMemory) Upsert(state domain.CancellationState) (domain.CancellationState, error) {
	now := time.Now().UTC()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}

	current, ok := r.state.sagas[state.OrderID]
	if !ok {
		if state.CreatedAt.IsZero() {
			state.CreatedAt = now
		}
		r.state.sagas[state.OrderID] = state
		return state, nil
	}

	merged := current.Merge(state)
	r.state.sagas[state.OrderID] = merged
	return merged, nil
}

// ListStale возвращает незавершённые саги, не обновлявшиеся после cutoff,
// старые вперёд.
func (r *sagaRepositoryInMemory) ListStale(cutoff time.Time, limit int) ([]domain.CancellationState, error) {
	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.CancellationState, 0, limit)
	for _, state := range r.state.sagas {
		if state.Completed() {
			continue
		}
		if !state.UpdatedAt.Before(cutoff) {
			continue
		}
		result = append(result, state)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].OrderID < result[j].OrderID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.SagaRepository = (*sagaRepositoryInMemory)(nil)
