package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "FULFILLMENT_"

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	// StorageDriver: memory | postgres.
	StorageDriver string
	PostgresDSN   string

	KafkaBrokers []string
	KafkaGroupID string

	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxRetention    time.Duration

	SagaSweepInterval time.Duration
	SagaStuckAfter    time.Duration
}

// DefaultConfig возвращает конфигурацию для локальной разработки.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:           ":50051",
		HTTPAddr:           ":8080",
		StorageDriver:      "memory",
		KafkaGroupID:       "fulfillment-service",
		OutboxPollInterval: 1 * time.Second,
		OutboxBatchSize:    100,
		OutboxRetention:    24 * time.Hour,
		SagaSweepInterval:  1 * time.Minute,
		SagaStuckAfter:     10 * time.Minute,
	}
}

// LoadConfig читает конфигурацию из переменных окружения. Файл .env, если он
// есть, подхватывается первым и не перекрывает уже установленные переменные.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg := DefaultConfig()
	cfg.GRPCAddr = envString("GRPC_ADDR", cfg.GRPCAddr)
	cfg.HTTPAddr = envString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.StorageDriver = strings.ToLower(envString("STORAGE_DRIVER", cfg.StorageDriver))
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.KafkaGroupID = envString("KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.GatewayBaseURL = envString("GATEWAY_BASE_URL", cfg.GatewayBaseURL)
	cfg.GatewayKeyID = envString("GATEWAY_KEY_ID", cfg.GatewayKeyID)
	cfg.GatewayKeySecret = envString("GATEWAY_KEY_SECRET", cfg.GatewayKeySecret)
	cfg.GatewayWebhookSecret = envString("GATEWAY_WEBHOOK_SECRET", cfg.GatewayWebhookSecret)
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxRetention = envDuration("OUTBOX_RETENTION", cfg.OutboxRetention)
	cfg.SagaSweepInterval = envDuration("SAGA_SWEEP_INTERVAL", cfg.SagaSweepInterval)
	cfg.SagaStuckAfter = envDuration("SAGA_STUCK_AFTER", cfg.SagaStuckAfter)

	if brokers := envString("KAFKA_BROKERS", ""); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("%sPOSTGRES_DSN is required for postgres storage", envPrefix)
		}
	default:
		return fmt.Errorf("unsupported storage driver: %s (use memory|postgres)", c.StorageDriver)
	}

	if c.GatewayBaseURL != "" && (c.GatewayKeyID == "" || c.GatewayKeySecret == "") {
		return fmt.Errorf("%sGATEWAY_KEY_ID and %sGATEWAY_KEY_SECRET are required when gateway base url is set", envPrefix, envPrefix)
	}

	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := envString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.WithField("key", envPrefix+key).WithError(err).Warn("invalid int env value, using default")
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := envString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.WithField("key", envPrefix+key).WithError(err).Warn("invalid duration env value, using default")
		return fallback
	}
	return v
}
