package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/gateway"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/order"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/saga"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

// Dependencies содержит собранный граф зависимостей приложения.
type Dependencies struct {
	UoW        domain.UnitOfWork
	OutboxRepo domain.OutboxRepository
	Gateway    domain.PaymentGateway
	Verifier   domain.SignatureVerifier

	Machine      *order.Machine
	Engine       *inventory.Engine
	Boundary     *payment.Boundary
	Orchestrator *saga.Orchestrator

	Logger *log.Entry

	pgStore *postgres.Store
}

// NewDependencies строит зависимости согласно конфигурации: хранилище,
// платёжный шлюз и доменные сервисы.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.pgStore = store
		deps.UoW = store
		deps.OutboxRepo = store.Outbox()
		logger.Info("postgres storage initialized")
	default:
		store := memory.NewStore()
		deps.UoW = store
		deps.OutboxRepo = store.Outbox()
		logger.Info("in-memory storage initialized")
	}

	verifier := gateway.NewHMACVerifier(cfg.GatewayKeySecret, cfg.GatewayWebhookSecret)
	deps.Verifier = verifier

	if cfg.GatewayBaseURL != "" {
		deps.Gateway = gateway.NewClient(gateway.Config{
			BaseURL:       cfg.GatewayBaseURL,
			KeyID:         cfg.GatewayKeyID,
			KeySecret:     cfg.GatewayKeySecret,
			WebhookSecret: cfg.GatewayWebhookSecret,
		}, logger.WithField("component", "payment-gateway"))
	} else {
		// Без настроенного шлюза работаем на фейке: intents и refunds
		// подтверждаются локально, удобно для разработки и тестов.
		deps.Gateway = gateway.NewFakeGateway()
		logger.Warn("payment gateway base url is empty, using fake gateway")
	}

	deps.Boundary = payment.NewBoundary(deps.UoW, deps.Gateway, verifier, logger.WithField("component", "payment-boundary"))
	deps.Machine = order.NewMachine(deps.UoW, deps.Boundary, logger.WithField("component", "order-machine"))
	deps.Engine = inventory.NewEngine(deps.UoW, logger.WithField("component", "inventory-engine"))
	deps.Orchestrator = saga.NewOrchestratorWithMetrics(
		deps.UoW,
		deps.Machine,
		metrics.NewSagaMetrics(),
		logger.WithField("component", "saga-orchestrator"),
	)

	return deps, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.pgStore != nil {
		if err := d.pgStore.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

// PingStorage проверяет доступность хранилища (для health check).
func (d *Dependencies) PingStorage(ctx context.Context) error {
	if d.pgStore != nil {
		return d.pgStore.Ping(ctx)
	}
	return nil
}
