package domain

import "time"

// CancellationState хранит прогресс компенсаций саги отмены по одному заказу.
// Булевы флаги монотонны (false → true) и независимы друг от друга: события
// компенсаций могут приходить в любом порядке и дублироваться. Запись создаётся
// лениво при первом событии компенсации.
type CancellationState struct {
	OrderID           string
	InventoryReleased bool
	PaymentRefunded   bool
	CreatedAt         time.Time
	// UpdatedAt используется sweep'ом для поиска зависших саг.
	UpdatedAt time.Time
}

// Completed сообщает, получены ли обе компенсации и можно ли финализировать заказ.
func (s CancellationState) Completed() bool {
	return s.InventoryReleased && s.PaymentRefunded
}

// Merge объединяет состояние с другим по монотонному правилу: флаг, однажды
// поднятый, не опускается.
func (s CancellationState) Merge(other CancellationState) CancellationState {
	s.InventoryReleased = s.InventoryReleased || other.InventoryReleased
	s.PaymentRefunded = s.PaymentRefunded || other.PaymentRefunded
	if other.UpdatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = other.UpdatedAt
	}
	return s
}
