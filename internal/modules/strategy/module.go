package strategy

import (
	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(cfg *config.Config) *service.Evaluator {
				return service.NewEvaluator(service.Defaults{
					StopLossPct:   cfg.Risk.DefaultStopPct,
					TakeProfitPct: cfg.Risk.DefaultTakeProfitPct,
				})
			},
		),
	)
}
