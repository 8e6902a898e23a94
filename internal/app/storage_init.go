package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/crm/internal/health"
	"github.com/vladislavdragonenkov/crm/internal/storage/memory"
	"github.com/vladislavdragonenkov/crm/internal/storage/postgres"
)

type runtimeDependencies struct {
	store          domain.Store
	outbox         domain.OutboxRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies поднимает хранилище под выбранный драйвер.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			store:          store,
			outbox:         store.Outbox(),
			storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, errors.New("postgres storage requires CRM_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		logger.Info("using postgres storage")
		return runtimeDependencies{
			store:          store,
			outbox:         postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// OpenStore открывает хранилище под cfg.StorageDriver для утилит вне сервиса.
// closeFn закрывает соединение.
func OpenStore(ctx context.Context, cfg Config, logger *log.Entry) (store domain.Store, closeFn func(), err error) {
	if logger == nil {
		logger = log.WithField("component", "storage")
	}
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return deps.store, func() { deps.close(logger) }, nil
}
