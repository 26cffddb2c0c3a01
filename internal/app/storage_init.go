package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/myshop/internal/storage/postgres"
)

// runtimeDependencies хранит репозитории выбранного хранилища.
type runtimeDependencies struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository

	// store != nil только для postgres; используется readiness-проверкой.
	store *postgres.Store
	close func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.WithField("storage_driver", StorageDriverMemory).Info("using in-memory storage")
		return &runtimeDependencies{
			products: memory.NewProductRepository(),
			orders:   memory.NewOrderRepository(),
			timeline: memory.NewTimelineRepository(),
			close:    func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage requires " + EnvPostgresDSN)
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.WithField("storage_driver", StorageDriverPostgres).Info("using postgres storage")
		return &runtimeDependencies{
			products: postgres.NewProductRepository(store),
			orders:   postgres.NewOrderRepository(store),
			timeline: postgres.NewTimelineRepository(store),
			store:    store,
			close:    store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
