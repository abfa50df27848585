package dispatcher

import (
	"context"

	"go.uber.org/fx"

	"trade_engine/internal/exchange"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/dispatcher/service"
	storage "trade_engine/internal/modules/storage/service"
	"trade_engine/internal/notify"
	"trade_engine/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("dispatcher",
		fx.Provide(
			func(cfg *config.Config) *service.Broker {
				return service.NewBroker(cfg.Dispatcher.StreamBuffer)
			},
			NewNotifier,
			NewDispatcher,
		),
	)
}

// NewNotifier returns the Telegram notifier when a token is configured and
// the log notifier otherwise.
func NewNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Telegram.Token == "" {
		return notify.NewLog()
	}
	tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		logger.Error("[DISPATCH] telegram unavailable, notifying to log: %v", err)
		return notify.NewLog()
	}
	return tg
}

func NewDispatcher(
	lc fx.Lifecycle,
	cfg *config.Config,
	store storage.Store,
	broker *service.Broker,
	notifier notify.Notifier,
	okx *exchange.Client,
) *service.Dispatcher {
	consumers := []service.Consumer{broker, notify.NewSignalConsumer(notifier)}
	if cfg.Dispatcher.ExecuteOrders {
		if okx != nil && okx.Configured() {
			consumers = append(consumers, exchange.NewOrderConsumer(okx))
		} else {
			logger.Warn("[DISPATCH] execute_orders is on but OKX credentials are missing")
		}
	}

	d := service.New(service.Options{
		Bucket:      cfg.Dispatcher.Bucket,
		TTL:         cfg.Dispatcher.DedupTTL,
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		RetryDelay:  cfg.Dispatcher.RetryDelay,
	}, store, consumers...)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return d.Close(ctx)
		},
	})
	return d
}
