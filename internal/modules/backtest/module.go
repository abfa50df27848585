package backtest

import (
	"context"

	"go.uber.org/fx"

	"trade_engine/internal/modules/backtest/service"
	"trade_engine/internal/modules/config"
	risk "trade_engine/internal/modules/risk/service"
	strategy "trade_engine/internal/modules/strategy/service"
)

// Module provides the simulator, its bounded worker pool and the optimizer.
func Module() fx.Option {
	return fx.Module("backtest",
		fx.Provide(
			func(cfg *config.Config, eval *strategy.Evaluator, rm *risk.Manager) *service.Simulator {
				return service.NewSimulator(eval, rm, service.Options{
					MaxDuration: cfg.Backtest.MaxDuration,
					WindowSize:  cfg.Feed.WindowSize,
				})
			},
			func(lc fx.Lifecycle, cfg *config.Config, sim *service.Simulator) *service.Pool {
				p := service.NewPool(sim, cfg.Backtest.MaxConcurrent)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						p.Close()
						return nil
					},
				})
				return p
			},
			func(cfg *config.Config, p *service.Pool) *service.Optimizer {
				return service.NewOptimizer(p, cfg.Backtest.MaxParameterCombinations)
			},
		),
	)
}
