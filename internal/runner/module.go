package runner

import (
	"context"

	"go.uber.org/fx"

	"trade_engine/internal/models"
	backtest "trade_engine/internal/modules/backtest/service"
	"trade_engine/internal/modules/config"
	dispatcher "trade_engine/internal/modules/dispatcher/service"
	feed "trade_engine/internal/modules/market_feed/service"
	risk "trade_engine/internal/modules/risk/service"
	storage "trade_engine/internal/modules/storage/service"
	strategy "trade_engine/internal/modules/strategy/service"
	"trade_engine/internal/notify"
	"trade_engine/pkg/logger"
)

// DefaultUser owns the strategies loaded from the strategies file.
const DefaultUser = "default"

type params struct {
	fx.In

	Config     *config.Config
	Feed       *feed.Feed
	Evaluator  *strategy.Evaluator
	Risk       *risk.Manager
	Dispatcher *dispatcher.Dispatcher
	Broker     *dispatcher.Broker
	Pool       *backtest.Pool
	Optimizer  *backtest.Optimizer
	Store      storage.Store
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(func(p params) *Manager {
			return NewManager(Deps{
				Config:     p.Config,
				Feed:       p.Feed,
				Evaluator:  p.Evaluator,
				Risk:       p.Risk,
				Dispatcher: p.Dispatcher,
				Broker:     p.Broker,
				Pool:       p.Pool,
				Optimizer:  p.Optimizer,
				Store:      p.Store,
			})
		}),
		fx.Invoke(run),
	)
}

func run(lc fx.Lifecycle, m *Manager, notifier notify.Notifier, configs []models.StrategyConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if len(configs) == 0 {
				logger.Warn("[RUNNER] no strategies configured")
			} else if _, err := m.Start(ctx, DefaultUser, configs); err != nil {
				return err
			}
			if tg, ok := notifier.(*notify.Telegram); ok {
				tg.Start(ctx, func() string { return notify.FormatStatus(m.Status()) })
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			m.Close()
			return nil
		},
	})
}
