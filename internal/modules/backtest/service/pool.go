package service

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

var ErrPoolClosed = errors.New("backtest pool closed")

type Job struct {
	Config          models.StrategyConfig
	Source          CandleSource
	Execution       models.ExecutionModel
	StartingBalance float64
}

type result struct {
	run *models.BacktestRun
	err error
}

type request struct {
	ctx   context.Context
	job   Job
	reply chan result
}

// Pool runs backtests on a fixed number of workers. Submissions beyond the
// worker count wait in the job channel.
type Pool struct {
	sim  *Simulator
	jobs chan request
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewPool(sim *Simulator, workers int) *Pool {
	if workers <= 0 {
		workers = 3
	}
	p := &Pool{
		sim:  sim,
		jobs: make(chan request),
		quit: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case req := <-p.jobs:
			logger.Debug("[BACKTEST] worker %d takes %s", id, req.job.Config.Key())
			run, err := p.sim.Run(req.ctx, req.job.Config, req.job.Source, req.job.Execution, req.job.StartingBalance)
			req.reply <- result{run: run, err: err}
		}
	}
}

// Submit queues job and blocks until a worker finishes it or ctx ends.
func (p *Pool) Submit(ctx context.Context, job Job) (*models.BacktestRun, error) {
	req := request{ctx: ctx, job: job, reply: make(chan result, 1)}
	select {
	case p.jobs <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolClosed
	}
	select {
	case res := <-req.reply:
		return res.run, res.err
	case <-ctx.Done():
		// the worker sees the same ctx and stops at the next candle
		return nil, ctx.Err()
	}
}

// Close stops the workers after their current run.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}
