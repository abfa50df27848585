package market_feed

import (
	"context"

	"go.uber.org/fx"

	"trade_engine/internal/exchange"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/market_feed/service"
)

// Module provides the multi-exchange candle feed.
func Module() fx.Option {
	return fx.Module("market_feed",
		fx.Provide(NewFeed),
		fx.Invoke(func(lc fx.Lifecycle, f *service.Feed) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					f.Close()
					return nil
				},
			})
		}),
	)
}

func NewFeed(cfg *config.Config, okxAccount *exchange.Client) *service.Feed {
	okxOpts := service.OKXOptions{
		BaseURL: cfg.Feed.OKXBaseURL,
		WSURL:   cfg.Feed.OKXWSURL,
	}
	if rl, ok := cfg.Feed.RateLimits["okx"]; ok {
		okxOpts.PerSecond, okxOpts.Burst = rl.PerSecond, rl.Burst
	}
	if okxAccount != nil && okxAccount.Configured() {
		okxOpts.Account = okxAccount
	}

	binanceOpts := service.BinanceOptions{
		BaseURL: cfg.Feed.BinanceURL,
		WSURL:   cfg.Feed.BinanceWS,
	}
	if rl, ok := cfg.Feed.RateLimits["binance"]; ok {
		binanceOpts.PerSecond, binanceOpts.Burst = rl.PerSecond, rl.Burst
	}

	return service.NewFeed(service.Options{
		QueueDepth: cfg.Feed.QueueDepth,
		Backoff:    service.Backoff{Base: cfg.Feed.BackoffBase, Cap: cfg.Feed.BackoffCap},
	}, service.NewOKX(okxOpts), service.NewBinance(binanceOpts))
}
