package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/storage/service"
	"trade_engine/pkg/db"
	"trade_engine/pkg/logger"
)

// Module provides the Store: Postgres when db_dsn is set, SQLite when
// sqlite_path is set, memory otherwise.
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(NewStore),
	)
}

func NewStore(lc fx.Lifecycle, cfg *config.Config) (service.Store, error) {
	if cfg.DB == "" && cfg.SQLitePath != "" {
		s, err := service.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return s.Close() },
		})
		logger.Info("[STORAGE] using sqlite %s", cfg.SQLitePath)
		return s, nil
	}
	if cfg.DB == "" {
		logger.Warn("[STORAGE] no database configured, keeping state in memory")
		return service.NewMemory(), nil
	}

	ctx := context.Background()
	poolMaster, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}
	if err = poolMaster.Ping(ctx); err != nil {
		poolMaster.Close()
		return nil, err
	}

	tx := db.NewPgTxManager(poolMaster)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			tx.Close()
			return nil
		},
	})
	return service.NewPostgres(tx), nil
}
