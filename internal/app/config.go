package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска crm-service.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	LogLevel string
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		HTTPAddr:            ":8000",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaTopic:          "crm.events",
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPending:    1000,
		LogLevel:            "info",
	}
}

// ConfigFromEnv накладывает переменные CRM_* на DefaultConfig.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("CRM_GRPC_ADDR"); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := get("CRM_HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := get("CRM_STORAGE_DRIVER"); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := get("CRM_POSTGRES_DSN"); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := get("CRM_POSTGRES_AUTO_MIGRATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("CRM_POSTGRES_AUTO_MIGRATE: %w", err)
		}
		cfg.PostgresAutoMigrate = b
	}
	if v, ok := get("CRM_KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = SplitBrokers(v)
	}
	if v, ok := get("CRM_KAFKA_TOPIC"); ok {
		cfg.KafkaTopic = v
	}
	if v, ok := get("CRM_KAFKA_DLQ_TOPIC"); ok {
		cfg.KafkaDLQTopic = v
	}
	if v, ok := get("CRM_OUTBOX_POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("CRM_OUTBOX_POLL_INTERVAL: %w", err)
		}
		cfg.OutboxPollInterval = d
	}
	if v, ok := get("CRM_OUTBOX_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("CRM_OUTBOX_BATCH_SIZE: %w", err)
		}
		cfg.OutboxBatchSize = n
	}
	if v, ok := get("CRM_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// SplitBrokers разбирает список брокеров через запятую, пропуская пустые.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
