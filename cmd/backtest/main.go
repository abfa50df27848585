package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trade_engine/internal/models"
	backtest "trade_engine/internal/modules/backtest/service"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/market_feed"
	"trade_engine/internal/modules/performance"
	risk "trade_engine/internal/modules/risk/service"
	strategy "trade_engine/internal/modules/strategy/service"
	"trade_engine/pkg/logger"
)

type result struct {
	Run    *models.BacktestRun        `json:"run,omitempty"`
	Trials []backtest.Trial           `json:"trials,omitempty"`
	Steps  []backtest.WalkForwardStep `json:"walk_forward,omitempty"`
	Failed []string                   `json:"failed_benchmarks,omitempty"`
}

func main() {
	flags := pflag.NewFlagSet("backtest", pflag.ExitOnError)
	flags.String("strategy", "", "strategy id from the strategies file")
	flags.String("from", "", "range start, RFC3339")
	flags.String("to", "", "range end, RFC3339 (default now)")
	flags.StringArray("grid", nil, "parameter sweep, name=v1,v2,... (repeatable)")
	flags.Int("walk-forward", 0, "split the range into N windows and validate each grid winner out of sample")
	flags.Float64("train-fraction", 0.7, "in-sample share of each walk-forward window")
	flags.Float64("min-return", 0, "fail when total return is below")
	flags.Float64("min-sharpe", 0, "fail when the Sharpe ratio is below")
	flags.Float64("max-drawdown", 0, "fail when max drawdown is above")
	_ = flags.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("BACKTEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = v.BindPFlags(flags)

	if _, err := logger.Init(getLevel()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gridEntries, _ := flags.GetStringArray("grid")
	res, err := execute(ctx, v, gridEntries)
	if err != nil {
		logger.Fatal("backtest: %v", err)
	}
	out, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
	if err != nil {
		logger.Fatal("encode report: %v", err)
	}
	fmt.Println(string(out))
	if len(res.Failed) > 0 {
		os.Exit(1)
	}
}

func getLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "warn"
}

func execute(ctx context.Context, v *viper.Viper, gridEntries []string) (*result, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	strat, err := pickStrategy(cfg.StrategiesFile, v.GetString("strategy"))
	if err != nil {
		return nil, err
	}
	rng, err := parseRange(v.GetString("from"), v.GetString("to"), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	grid, err := parseGrid(gridEntries)
	if err != nil {
		return nil, err
	}

	feed := market_feed.NewFeed(cfg, nil)
	defer feed.Close()

	eval := strategy.NewEvaluator(strategy.Defaults{
		StopLossPct:   cfg.Risk.DefaultStopPct,
		TakeProfitPct: cfg.Risk.DefaultTakeProfitPct,
	})
	sim := backtest.NewSimulator(eval, risk.NewManager(), backtest.Options{
		MaxDuration: cfg.Backtest.MaxDuration,
		WindowSize:  cfg.Feed.WindowSize,
	})
	pool := backtest.NewPool(sim, cfg.Backtest.MaxConcurrent)
	defer pool.Close()

	src := backtest.ExchangeSource{
		Loader: feed, Exchange: strat.Exchange, Symbol: strat.Symbol, Timeframe: strat.Timeframe, Range: rng,
	}
	windows := v.GetInt("walk-forward")
	if len(grid) > 0 || windows > 0 {
		candles, err := src.Load(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "load history")
		}
		opt := backtest.NewOptimizer(pool, cfg.Backtest.MaxParameterCombinations)
		if windows > 0 {
			steps, err := opt.WalkForward(ctx, strat, grid, candles, windows, v.GetFloat64("train-fraction"),
				cfg.Backtest.Execution, cfg.Backtest.StartingBalance)
			if err != nil {
				return nil, err
			}
			return &result{Steps: steps}, nil
		}
		trials, err := opt.GridSearch(ctx, strat, grid, backtest.SliceSource(candles), cfg.Backtest.Execution, cfg.Backtest.StartingBalance)
		if err != nil {
			return nil, err
		}
		return &result{Trials: trials}, nil
	}

	run, err := pool.Submit(ctx, backtest.Job{
		Config:          strat,
		Source:          src,
		Execution:       cfg.Backtest.Execution,
		StartingBalance: cfg.Backtest.StartingBalance,
	})
	if err != nil {
		return nil, err
	}
	failed := performance.Compare(run.Report, performance.Thresholds{
		MinTotalReturn: v.GetFloat64("min-return"),
		MinSharpe:      v.GetFloat64("min-sharpe"),
		MaxDrawdown:    v.GetFloat64("max-drawdown"),
	})
	return &result{Run: run, Failed: failed}, nil
}

func pickStrategy(path, id string) (models.StrategyConfig, error) {
	configs, err := config.LoadStrategies(path)
	if err != nil {
		return models.StrategyConfig{}, err
	}
	if id == "" && len(configs) == 1 {
		return configs[0], nil
	}
	var found *models.StrategyConfig
	for i := range configs {
		if configs[i].ID != id {
			continue
		}
		if found == nil || configs[i].Revision > found.Revision {
			found = &configs[i]
		}
	}
	if found == nil {
		return models.StrategyConfig{}, &models.ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("%q not found in %s", id, path)}
	}
	return *found, nil
}

func parseRange(from, to string, now time.Time) (models.DataRange, error) {
	var r models.DataRange
	if from == "" {
		return r, &models.ConfigurationError{Field: "from", Reason: "required"}
	}
	var err error
	if r.From, err = time.Parse(time.RFC3339, from); err != nil {
		return r, &models.ConfigurationError{Field: "from", Reason: err.Error()}
	}
	r.To = now
	if to != "" {
		if r.To, err = time.Parse(time.RFC3339, to); err != nil {
			return r, &models.ConfigurationError{Field: "to", Reason: err.Error()}
		}
	}
	if !r.From.Before(r.To) {
		return r, &models.ConfigurationError{Field: "range", Reason: "from must be before to"}
	}
	return r, nil
}

// parseGrid reads entries of the form name=v1,v2.
func parseGrid(entries []string) (map[string][]float64, error) {
	grid := make(map[string][]float64, len(entries))
	for _, e := range entries {
		name, list, ok := strings.Cut(e, "=")
		if !ok || name == "" || list == "" {
			return nil, &models.ConfigurationError{Field: "grid", Reason: fmt.Sprintf("bad entry %q", e)}
		}
		for _, raw := range strings.Split(list, ",") {
			val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, &models.ConfigurationError{Field: "grid." + name, Reason: err.Error()}
			}
			key := models.CanonicalParam(strings.TrimSpace(name))
			grid[key] = append(grid[key], val)
		}
	}
	return grid, nil
}
