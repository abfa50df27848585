package service

import (
	"context"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

var ErrNotFound = errors.New("not found")

type StrategyRepo interface {
	// SaveStrategy inserts a revision. Existing revisions are never overwritten.
	SaveStrategy(ctx context.Context, cfg models.StrategyConfig) error
	LatestStrategy(ctx context.Context, id string) (models.StrategyConfig, error)
	StrategyRevisions(ctx context.Context, id string) ([]models.StrategyConfig, error)
}

type TradeRepo interface {
	AppendTrade(ctx context.Context, t models.Trade) error
	Trades(ctx context.Context, strategyID string) ([]models.Trade, error)
}

type BacktestRepo interface {
	// SaveBacktest stores the run and its ledger together or not at all.
	SaveBacktest(ctx context.Context, run *models.BacktestRun) error
	Backtest(ctx context.Context, id string) (*models.BacktestRun, error)
}

type DeadLetterRepo interface {
	SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error
	DeadLetters(ctx context.Context, consumer string) ([]models.DeadLetter, error)
}

type Store interface {
	StrategyRepo
	TradeRepo
	BacktestRepo
	DeadLetterRepo
}
