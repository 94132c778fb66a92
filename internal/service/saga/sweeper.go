package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

const (
	defaultSweepInterval = 1 * time.Minute
	defaultStuckAfter    = 10 * time.Minute
	defaultSweepBatch    = 100
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_saga_sweep_runs_total",
		Help: "Total number of stuck-saga sweep runs grouped by result.",
	}, []string{"result"})
	sweepStuckFound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_saga_sweep_stuck_found",
		Help: "Number of stuck sagas detected during the last sweep run.",
	})
	sweepRequeuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_saga_sweep_requeued_total",
		Help: "Total number of stuck sagas whose compensation request was re-emitted.",
	})
)

// SweeperOptions задаёт параметры sweep'а зависших саг.
type SweeperOptions struct {
	Logger     *log.Entry
	Interval   time.Duration
	StuckAfter time.Duration
	BatchSize  int
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithSweepLogger задаёт logger для sweep'а.
func WithSweepLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithSweepInterval задаёт частоту запуска sweep'а.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithStuckAfter задаёт порог, после которого незавершённая сага считается зависшей.
func WithStuckAfter(timeout time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.StuckAfter = timeout
	}
}

// WithSweepBatchSize задаёт размер выборки за один проход.
func WithSweepBatchSize(batchSize int) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.BatchSize = batchSize
	}
}

// Sweeper периодически ищет незавершённые саги, не обновлявшиеся дольше
// порога, и повторно эмитит сигнал старта компенсаций — восстановление после
// потерянного сообщения. Безопасен на нескольких репликах: повторная эмиссия
// разрешается идемпотентными потребителями в no-op.
type Sweeper struct {
	uow        domain.UnitOfWork
	logger     *log.Entry
	interval   time.Duration
	stuckAfter time.Duration
	batchSize  int
}

// NewSweeper создаёт sweep зависших саг.
func NewSweeper(uow domain.UnitOfWork, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		Interval:   defaultSweepInterval,
		StuckAfter: defaultStuckAfter,
		BatchSize:  defaultSweepBatch,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "saga-sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = defaultStuckAfter
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatch
	}

	return &Sweeper{
		uow:        uow,
		logger:     logger,
		interval:   opts.Interval,
		stuckAfter: opts.StuckAfter,
		batchSize:  opts.BatchSize,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один проход по зависшим сагам.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.stuckAfter)

	var stale []domain.CancellationState
	err := s.uow.Within(ctx, func(r domain.Repositories) error {
		var listErr error
		stale, listErr = r.Sagas.ListStale(cutoff, s.batchSize)
		return listErr
	})
	if err != nil {
		s.logger.WithError(err).Warn("failed to list stuck sagas")
		sweepRunsTotal.WithLabelValues("error").Inc()
		return
	}

	sweepStuckFound.Set(float64(len(stale)))
	if len(stale) == 0 {
		sweepRunsTotal.WithLabelValues("empty").Inc()
		return
	}

	for _, state := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := s.requeue(ctx, state); err != nil {
			s.logger.WithError(err).WithField("order_id", state.OrderID).
				Warn("failed to requeue stuck saga")
		}
	}
	sweepRunsTotal.WithLabelValues("ok").Inc()
}

// requeue повторно эмитит order.cancel_requested для зависшей саги. Если заказ
// уже ушёл из cancel_requested, сагу разрешил кто-то другой — пропускаем,
// повторный запуск компенсаций не нужен.
func (s *Sweeper) requeue(ctx context.Context, state domain.CancellationState) error {
	return s.uow.Within(ctx, func(r domain.Repositories) error {
		ord, err := r.Orders.Get(state.OrderID)
		if err != nil {
			return err
		}
		if ord.Status != domain.OrderStatusCancelRequested {
			s.logger.WithFields(log.Fields{
				"order_id": ord.ID,
				"status":   ord.Status,
			}).Debug("stuck saga skipped, order resolved elsewhere")
			return nil
		}

		items := make([]kafka.ReserveLine, 0, len(ord.Items))
		for _, it := range ord.Items {
			items = append(items, kafka.ReserveLine{SKU: it.SKU, Qty: it.Qty})
		}
		event := kafka.OrderCancelRequestedEvent{
			OrderID:    ord.ID,
			CustomerID: ord.CustomerID,
			Items:      items,
			Reason:     "stuck saga recovery",
		}
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal cancel_requested event: %w", err)
		}
		if _, err := r.Outbox.Enqueue(domain.OutboxMessage{
			ID:            uuid.NewString(),
			AggregateType: "order",
			AggregateID:   ord.ID,
			EventType:     kafka.EventTypeOrderCancelRequested,
			Topic:         kafka.TopicOrderEvents,
			Payload:       data,
		}); err != nil {
			return err
		}

		// Продвигаем updated_at, чтобы не перезапускать ту же сагу каждый проход.
		state.UpdatedAt = time.Now().UTC()
		if _, err := r.Sagas.Upsert(state); err != nil {
			return err
		}

		sweepRequeuedTotal.Inc()
		s.logger.WithField("order_id", ord.ID).Info("stuck saga requeued")
		return nil
	})
}
