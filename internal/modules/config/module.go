package config

import (
	"go.uber.org/fx"

	"trade_engine/internal/models"
)

// Module provides *Config and the parsed strategy definitions.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			func(cfg *Config) ([]models.StrategyConfig, error) {
				return LoadStrategies(cfg.StrategiesFile)
			},
		),
	)
}
