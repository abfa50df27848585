package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trade_engine/internal/models"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(newSimulator(Options{}), 2)
	defer pool.Close()

	var active, peak atomic.Int32
	src := slowSource{candles: candles(scenario...), delay: time.Millisecond, active: &active, peak: &peak}

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := pool.Submit(context.Background(), Job{Config: momentumConfig(), Source: src, Execution: models.DefaultExecutionModel(), StartingBalance: 10000})
			if err == nil && run == nil {
				err = errors.New("nil run")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if p := peak.Load(); p > 2 || p < 1 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	pool := NewPool(newSimulator(Options{}), 1)
	pool.Close()
	_, err := pool.Submit(context.Background(), Job{Config: momentumConfig(), Source: SliceSource(candles(scenario...)), StartingBalance: 10000})
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestCombinationsOrder(t *testing.T) {
	got := Combinations(map[string][]float64{"b": {1, 2}, "a": {10, 20}})
	want := []map[string]float64{
		{"a": 10, "b": 1}, {"a": 10, "b": 2}, {"a": 20, "b": 1}, {"a": 20, "b": 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
}

func TestGridSearchRanksTrials(t *testing.T) {
	pool := NewPool(newSimulator(Options{}), 3)
	defer pool.Close()
	opt := NewOptimizer(pool, 100)

	grid := map[string][]float64{
		models.ParamLookbackPeriod:    {4, 5},
		models.ParamMomentumThreshold: {0.02, 0.5},
	}
	trials, err := opt.GridSearch(context.Background(), momentumConfig(), grid, SliceSource(candles(scenario...)), models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 4 {
		t.Fatalf("trials = %d", len(trials))
	}
	for i := 1; i < len(trials); i++ {
		a, b := trials[i-1].Run.Report, trials[i].Run.Report
		if a.SharpeRatio < b.SharpeRatio || (a.SharpeRatio == b.SharpeRatio && a.TotalReturn < b.TotalReturn) {
			t.Fatalf("trials not ranked at %d: %+v then %+v", i, a, b)
		}
	}
	for _, tr := range trials {
		if tr.Config.Revision != 2 || tr.Config.Parameters[models.ParamLookbackPeriod] == 0 {
			t.Fatalf("trial config = %+v", tr.Config)
		}
	}
}

func TestGridSearchRejectsTooManyCombinations(t *testing.T) {
	pool := NewPool(newSimulator(Options{}), 1)
	defer pool.Close()
	opt := NewOptimizer(pool, 3)
	grid := map[string][]float64{models.ParamLookbackPeriod: {3, 4}, models.ParamMomentumThreshold: {0.01, 0.02}}
	_, err := opt.GridSearch(context.Background(), momentumConfig(), grid, SliceSource(candles(scenario...)), models.DefaultExecutionModel(), 10000)
	if !models.IsConfiguration(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestGridSearchKeepsInvalidCombinationAsFailedTrial(t *testing.T) {
	pool := NewPool(newSimulator(Options{}), 1)
	defer pool.Close()
	opt := NewOptimizer(pool, 10)
	grid := map[string][]float64{models.ParamLookbackPeriod: {0, 4}}
	trials, err := opt.GridSearch(context.Background(), momentumConfig(), grid, SliceSource(candles(scenario...)), models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if trials[0].Run == nil || trials[1].Err == "" {
		t.Fatalf("trials = %+v", trials)
	}
}

func TestWalkForward(t *testing.T) {
	pool := NewPool(newSimulator(Options{}), 2)
	defer pool.Close()
	opt := NewOptimizer(pool, 10)

	var closes []float64
	for i := 0; i < 4; i++ {
		closes = append(closes, scenario...)
	}
	series := candles(closes...)
	steps, err := opt.WalkForward(context.Background(), momentumConfig(),
		map[string][]float64{models.ParamLookbackPeriod: {4, 5}},
		series, 2, 0.5, models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %d", len(steps))
	}
	for _, s := range steps {
		if s.InSample == nil || s.OutOfSample == nil || !s.Train.To.Equal(s.Test.From) {
			t.Fatalf("step = %+v", s)
		}
	}
	if _, err := opt.WalkForward(context.Background(), momentumConfig(), nil, series, 2, 1.5, models.DefaultExecutionModel(), 10000); !models.IsConfiguration(err) {
		t.Fatalf("bad train fraction err = %v", err)
	}
}
