package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"trade_engine/internal/models"
	strategy "trade_engine/internal/modules/strategy/service"
)

// Trial is one parameter combination of a sweep.
type Trial struct {
	Index  int                   `json:"index"`
	Config models.StrategyConfig `json:"config"`
	Run    *models.BacktestRun   `json:"run,omitempty"`
	Err    string                `json:"error,omitempty"`
}

// Optimizer sweeps parameters through the pool, so every combination runs
// on the same Simulator.Run as a single backtest.
type Optimizer struct {
	pool            *Pool
	maxCombinations int
}

func NewOptimizer(pool *Pool, maxCombinations int) *Optimizer {
	if maxCombinations <= 0 {
		maxCombinations = 100
	}
	return &Optimizer{pool: pool, maxCombinations: maxCombinations}
}

// Combinations expands grid into its cartesian product. Keys are taken in
// sorted order and values in the given order, so the sequence is stable.
func Combinations(grid map[string][]float64) []map[string]float64 {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]float64{{}}
	for _, k := range keys {
		var next []map[string]float64
		for _, base := range out {
			for _, v := range grid[k] {
				m := make(map[string]float64, len(base)+1)
				for bk, bv := range base {
					m[bk] = bv
				}
				m[k] = v
				next = append(next, m)
			}
		}
		out = next
	}
	return out
}

func (o *Optimizer) count(base models.StrategyConfig, grid map[string][]float64) error {
	n := 1
	for k, vs := range grid {
		if len(vs) == 0 {
			return &models.ConfigurationError{StrategyID: base.ID, Field: "grid." + k, Reason: "no values"}
		}
		n *= len(vs)
		if n > o.maxCombinations {
			return &models.ConfigurationError{
				StrategyID: base.ID,
				Field:      "grid",
				Reason:     fmt.Sprintf("more than %d parameter combinations", o.maxCombinations),
			}
		}
	}
	return nil
}

// GridSearch runs every combination and returns the trials ranked by Sharpe
// ratio, then total return, then enumeration order. Failed trials sort last.
func (o *Optimizer) GridSearch(
	ctx context.Context,
	base models.StrategyConfig,
	grid map[string][]float64,
	src CandleSource,
	model models.ExecutionModel,
	startingBalance float64,
) ([]Trial, error) {
	if err := o.count(base, grid); err != nil {
		return nil, err
	}
	combos := Combinations(grid)
	trials := make([]Trial, len(combos))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, combo := range combos {
		cfg := base.WithParameters(combo, base.CreatedAt)
		trials[i] = Trial{Index: i, Config: cfg}
		if err := strategy.Validate(cfg); err != nil {
			trials[i].Err = err.Error()
			continue
		}
		g.Go(func() error {
			run, err := o.pool.Submit(gctx, Job{Config: cfg, Source: src, Execution: model, StartingBalance: startingBalance})
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				trials[i].Err = err.Error()
				return nil
			}
			trials[i].Run = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rank(trials)
	return trials, nil
}

func rank(trials []Trial) {
	sort.SliceStable(trials, func(i, j int) bool {
		a, b := trials[i], trials[j]
		if (a.Run == nil) != (b.Run == nil) {
			return a.Run != nil
		}
		if a.Run != nil {
			if a.Run.Report.SharpeRatio != b.Run.Report.SharpeRatio {
				return a.Run.Report.SharpeRatio > b.Run.Report.SharpeRatio
			}
			if a.Run.Report.TotalReturn != b.Run.Report.TotalReturn {
				return a.Run.Report.TotalReturn > b.Run.Report.TotalReturn
			}
		}
		return a.Index < b.Index
	})
}

// WalkForwardStep is one rolling window: the grid winner in-sample and its
// replay on the following out-of-sample slice.
type WalkForwardStep struct {
	Window      int                   `json:"window"`
	Train       models.DataRange      `json:"train"`
	Test        models.DataRange      `json:"test"`
	Best        models.StrategyConfig `json:"best"`
	InSample    *models.BacktestRun   `json:"in_sample"`
	OutOfSample *models.BacktestRun   `json:"out_of_sample"`
}

// WalkForward splits candles into consecutive windows, optimises on the
// first trainFrac of each and validates the winner on the rest.
func (o *Optimizer) WalkForward(
	ctx context.Context,
	base models.StrategyConfig,
	grid map[string][]float64,
	candles []models.Candle,
	windows int,
	trainFrac float64,
	model models.ExecutionModel,
	startingBalance float64,
) ([]WalkForwardStep, error) {
	if windows <= 0 {
		return nil, &models.ConfigurationError{StrategyID: base.ID, Field: "windows", Reason: "must be positive"}
	}
	if trainFrac <= 0 || trainFrac >= 1 {
		return nil, &models.ConfigurationError{StrategyID: base.ID, Field: "train_fraction", Reason: "must be in (0, 1)"}
	}
	size := len(candles) / windows
	if size < 2 {
		return nil, &models.InsufficientDataError{Indicator: "walk_forward", Required: 2 * windows, Got: len(candles)}
	}

	var steps []WalkForwardStep
	for w := 0; w < windows; w++ {
		chunk := candles[w*size : (w+1)*size]
		split := int(float64(len(chunk)) * trainFrac)
		if split < 1 || split >= len(chunk) {
			return nil, &models.InsufficientDataError{Indicator: "walk_forward", Required: 2, Got: len(chunk)}
		}
		train, test := SliceSource(chunk[:split]), SliceSource(chunk[split:])

		trials, err := o.GridSearch(ctx, base, grid, train, model, startingBalance)
		if err != nil {
			return nil, err
		}
		if len(trials) == 0 || trials[0].Run == nil {
			return nil, fmt.Errorf("walk-forward window %d: no successful trial", w)
		}
		best := trials[0]
		oos, err := o.pool.Submit(ctx, Job{Config: best.Config, Source: test, Execution: model, StartingBalance: startingBalance})
		if err != nil {
			return nil, err
		}
		steps = append(steps, WalkForwardStep{
			Window:      w,
			Train:       models.DataRange{From: chunk[0].Start, To: chunk[split-1].End()},
			Test:        models.DataRange{From: chunk[split].Start, To: chunk[len(chunk)-1].End()},
			Best:        best.Config,
			InSample:    best.Run,
			OutOfSample: oos,
		})
	}
	return steps, nil
}
