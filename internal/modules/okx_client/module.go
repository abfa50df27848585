package okx_client

import (
	"go.uber.org/fx"

	"trade_engine/internal/exchange"
	"trade_engine/internal/modules/config"
)

// Module provides the signed OKX client. Without credentials it is still
// provided; callers check Configured.
func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(func(cfg *config.Config) *exchange.Client {
			return exchange.NewClient(exchange.Credentials{
				APIKey:     cfg.OKX.APIKey,
				APISecret:  cfg.OKX.APISecret,
				Passphrase: cfg.OKX.Passphrase,
			}, cfg.Feed.OKXBaseURL)
		}),
	)
}
