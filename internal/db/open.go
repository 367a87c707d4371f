package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/db/memory"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

// Драйверы хранилища
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open создает хранилище по STORE_DRIVER и применяет схему для PostgreSQL.
// Возвращаемая функция освобождает ресурсы хранилища.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.UnitOfWork, func(), error) {
	switch cfg.StoreDriver {
	case DriverMemory:
		log.Warn("⚠️ Используется хранилище в памяти, данные не сохраняются между запусками")
		return memory.New(), func() {}, nil

	case DriverPostgres, "":
		pool, err := NewPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewStore(pool, cfg.DatabaseConfig.QueryTimeout), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("неизвестный драйвер хранилища: %q", cfg.StoreDriver)
	}
}
