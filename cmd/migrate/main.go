package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"trade_engine/internal/modules/config"
	"trade_engine/pkg/db"
	"trade_engine/pkg/logger"
)

const defaultDir = "migrations"

func main() {
	if _, err := logger.Init("info"); err != nil {
		panic(err)
	}
	defer logger.Sync()

	dir := defaultDir
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatal("config: %v", err)
	}
	if cfg.DB == "" {
		logger.Fatal("db_dsn is empty, nothing to migrate")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB, MaxConns: 2})
	if err != nil {
		logger.Fatal("connect: %v", err)
	}
	tx := db.NewPgTxManager(pool)
	defer tx.Close()

	files, err := pending(dir)
	if err != nil {
		logger.Fatal("%v", err)
	}
	applied, err := apply(ctx, tx, files)
	if err != nil {
		logger.Fatal("%v", err)
	}
	logger.Info("applied %d of %d migrations", applied, len(files))
}

func pending(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, errors.Wrap(err, "list migrations")
	}
	sort.Strings(files)
	return files, nil
}

// apply runs every file not yet recorded, each in its own transaction.
func apply(ctx context.Context, tx *db.PgTxManager, files []string) (int, error) {
	const ensure = `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := tx.Conn().Exec(ctx, ensure); err != nil {
		return 0, errors.Wrap(err, "create schema_migrations")
	}

	applied := 0
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".sql")
		body, err := os.ReadFile(file)
		if err != nil {
			return applied, errors.Wrapf(err, "read %s", file)
		}
		done := false
		err = tx.RunMaster(ctx, func(ctxTx context.Context, t pgx.Tx) error {
			var exists bool
			if err := t.QueryRow(ctxTx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return nil
			}
			if _, err := t.Exec(ctxTx, string(body)); err != nil {
				return err
			}
			if _, err := t.Exec(ctxTx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
				return err
			}
			done = true
			return nil
		})
		if err != nil {
			return applied, errors.Wrapf(err, "migration %s", name)
		}
		if done {
			applied++
			logger.Info("migration %s applied", name)
		}
	}
	return applied, nil
}
