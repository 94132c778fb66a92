package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	opTimeout = 5 * time.Second
	txTimeout = 10 * time.Second
)

// queryer абстрагирует *sql.DB и *sql.Tx: репозитории не знают, работают они
// внутри транзакции единицы работы или поверх пула напрямую.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Within выполняет fn в одной SQL-транзакции: бизнес-мутация и запись в outbox
// коммитятся вместе или откатываются вместе.
func (s *Store) Within(ctx context.Context, fn func(r domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	txCtx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(s.repositories(txCtx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// Outbox возвращает репозиторий outbox поверх пула — для фоновых воркеров,
// работающих вне единицы работы.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: s.db}
}

func (s *Store) repositories(ctx context.Context, tx *sql.Tx) domain.Repositories {
	return domain.Repositories{
		Orders:       &orderRepository{q: tx, ctx: ctx},
		Inventory:    &inventoryRepository{q: tx, ctx: ctx},
		Reservations: &reservationRepository{q: tx, ctx: ctx},
		Payments:     &paymentRepository{q: tx, ctx: ctx},
		Sagas:        &sagaRepository{q: tx, ctx: ctx},
		Outbox:       &outboxRepository{q: tx, ctx: ctx},
	}
}

// opCtx возвращает контекст операции: привязанный к транзакции, если он есть,
// иначе — самостоятельный с таймаутом.
func opCtx(bound context.Context) (context.Context, context.CancelFunc) {
	if bound != nil {
		return bound, func() {}
	}
	return context.WithTimeout(context.Background(), opTimeout)
}

var _ domain.UnitOfWork = (*Store)(nil)
