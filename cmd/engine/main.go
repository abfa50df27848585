package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"trade_engine/internal/modules/backtest"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/dispatcher"
	"trade_engine/internal/modules/health"
	"trade_engine/internal/modules/market_feed"
	"trade_engine/internal/modules/okx_client"
	"trade_engine/internal/modules/risk"
	"trade_engine/internal/modules/storage"
	"trade_engine/internal/modules/strategy"
	"trade_engine/internal/runner"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

func main() {
	logger.SetServiceName("trade_engine")

	app := fx.New(
		config.Module(),
		fx.Provide(func(cfg *config.Config) (*zap.Logger, error) {
			return logger.Init(cfg.LogLevel)
		}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l}
		}),
		fx.Invoke(initTracing),

		storage.Module(),
		okx_client.Module(),
		market_feed.Module(),
		strategy.Module(),
		risk.Module(),
		dispatcher.Module(),
		backtest.Module(),
		runner.Module(),
		health.Module(),
	)
	app.Run()
	logger.Sync()
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}
