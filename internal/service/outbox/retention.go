package outbox

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	defaultRetentionInterval = 1 * time.Hour
	defaultRetentionPeriod   = 24 * time.Hour
	retentionSweepBatch      = 500
)

var retentionDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fulfillment_outbox_retention_deleted_total",
	Help: "Total number of processed outbox records removed by retention sweep.",
})

// RetentionOptions задаёт параметры retention sweep.
type RetentionOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	Retention time.Duration
}

// RetentionOption настраивает RetentionWorker.
type RetentionOption func(*RetentionOptions)

// WithRetentionLogger задаёт logger для retention worker.
func WithRetentionLogger(logger *log.Entry) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Logger = logger
	}
}

// WithRetentionInterval задаёт частоту retention sweep.
func WithRetentionInterval(interval time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Interval = interval
	}
}

// WithRetentionPeriod задаёт срок хранения processed-записей.
func WithRetentionPeriod(retention time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Retention = retention
	}
}

// RetentionWorker периодически удаляет давно обработанные записи outbox.
// Pending-записи retention не трогает никогда.
type RetentionWorker struct {
	repo      domain.OutboxRepository
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
}

// NewRetentionWorker создаёт retention worker.
func NewRetentionWorker(repo domain.OutboxRepository, options ...RetentionOption) *RetentionWorker {
	opts := RetentionOptions{
		Interval:  defaultRetentionInterval,
		Retention: defaultRetentionPeriod,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-retention")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultRetentionInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetentionPeriod
	}

	return &RetentionWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
	}
}

// Run запускает периодический retention sweep до отмены ctx.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox retention is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce()
		}
	}
}

// SweepOnce выполняет один retention-цикл.
func (w *RetentionWorker) SweepOnce() {
	cutoff := time.Now().Add(-w.retention)

	deleted, err := w.repo.DeleteProcessedBefore(cutoff, retentionSweepBatch)
	if err != nil {
		w.logger.WithError(err).Warn("outbox retention sweep failed")
		return
	}
	if deleted == 0 {
		return
	}

	retentionDeletedTotal.Add(float64(deleted))
	w.logger.WithFields(log.Fields{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("outbox retention removed processed records")
}
