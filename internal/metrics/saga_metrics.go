package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики саги отмены.
type SagaMetrics struct {
	// Счётчики событий компенсаций по виду (inventory_released / payment_refunded).
	compensationEvents *prometheus.CounterVec
	// Завершённые саги (заказ финализирован в cancelled).
	sagaCompleted prometheus.Counter
	// Дубликаты событий компенсаций, разрешённые в no-op.
	duplicateEvents prometheus.Counter
	// Саги, ожидающие вторую компенсацию.
	pendingSagas prometheus.Gauge
}

// NewSagaMetrics создаёт метрики саги на default registerer.
func NewSagaMetrics() *SagaMetrics {
	return NewSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSagaMetricsWithRegisterer создаёт метрики на заданном registerer
// (в тестах — изолированный registry).
func NewSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		compensationEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_compensation_events_total",
			Help: "Total number of compensation events applied to cancellation sagas",
		}, []string{"kind"}),
		sagaCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_completed_total",
			Help: "Total number of cancellation sagas finalized",
		}),
		duplicateEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_duplicate_events_total",
			Help: "Total number of duplicate compensation events resolved as no-ops",
		}),
		pendingSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "fulfillment_saga_pending",
			Help: "Number of cancellation sagas waiting for a compensation",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCompensation увеличивает счётчик применённых компенсаций.
func (m *SagaMetrics) RecordCompensation(kind string) {
	m.compensationEvents.WithLabelValues(kind).Inc()
}

// RecordCompleted увеличивает счётчик завершённых саг.
func (m *SagaMetrics) RecordCompleted() {
	m.sagaCompleted.Inc()
	m.pendingSagas.Dec()
}

// RecordDuplicate увеличивает счётчик дубликатов компенсаций.
func (m *SagaMetrics) RecordDuplicate() {
	m.duplicateEvents.Inc()
}

// RecordPendingStarted увеличивает gauge ожидающих саг.
func (m *SagaMetrics) RecordPendingStarted() {
	m.pendingSagas.Inc()
}
