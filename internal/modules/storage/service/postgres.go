package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"
)

// Postgres stores everything append-only; nothing is updated in place.
type Postgres struct {
	db *db.PgTxManager
}

func NewPostgres(m *db.PgTxManager) *Postgres {
	return &Postgres{db: m}
}

const insertStrategy = `
INSERT INTO strategies (id, revision, type, exchange, symbol, timeframe, parameters, risk, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (p *Postgres) SaveStrategy(ctx context.Context, cfg models.StrategyConfig) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SaveStrategy %s: %w", cfg.Key(), err)
		}
	}()
	params, err := sonic.Marshal(cfg.Parameters)
	if err != nil {
		return err
	}
	risk, err := sonic.Marshal(cfg.Risk)
	if err != nil {
		return err
	}
	_, err = p.db.Conn().Exec(ctx, insertStrategy,
		cfg.ID, cfg.Revision, string(cfg.Type), cfg.Exchange, cfg.Symbol, cfg.Timeframe,
		params, risk, cfg.CreatedAt)
	return err
}

const selectStrategies = `
SELECT id, revision, type, exchange, symbol, timeframe, parameters, risk, created_at
FROM strategies WHERE id = $1 ORDER BY revision`

func (p *Postgres) StrategyRevisions(ctx context.Context, id string) (out []models.StrategyConfig, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.StrategyRevisions %s: %w", id, err)
		}
	}()
	rows, err := p.db.Conn().Query(ctx, selectStrategies, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c            models.StrategyConfig
			typ          string
			params, risk []byte
		)
		if err = rows.Scan(&c.ID, &c.Revision, &typ, &c.Exchange, &c.Symbol, &c.Timeframe, &params, &risk, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Type = models.StrategyType(typ)
		if err = sonic.Unmarshal(params, &c.Parameters); err != nil {
			return nil, err
		}
		if err = sonic.Unmarshal(risk, &c.Risk); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestStrategy(ctx context.Context, id string) (models.StrategyConfig, error) {
	revs, err := p.StrategyRevisions(ctx, id)
	if err != nil {
		return models.StrategyConfig{}, err
	}
	if len(revs) == 0 {
		return models.StrategyConfig{}, ErrNotFound
	}
	return revs[len(revs)-1], nil
}

const insertTrade = `
INSERT INTO trades (id, run_id, strategy_id, symbol, side, quantity, quote_price, price, fees, slippage, reason, realized_pnl, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func tradeArgs(runID *string, t models.Trade) []any {
	var pnl *decimal.Decimal
	if t.RealizedPnL != nil {
		d := decimal.NewFromFloat(*t.RealizedPnL)
		pnl = &d
	}
	return []any{
		t.ID, runID, t.StrategyID, t.Symbol, string(t.Side),
		decimal.NewFromFloat(t.Quantity), decimal.NewFromFloat(t.QuotePrice),
		decimal.NewFromFloat(t.Price), decimal.NewFromFloat(t.Fees),
		decimal.NewFromFloat(t.Slippage), t.Reason, pnl, t.Timestamp,
	}
}

func (p *Postgres) AppendTrade(ctx context.Context, t models.Trade) error {
	if _, err := p.db.Conn().Exec(ctx, insertTrade, tradeArgs(nil, t)...); err != nil {
		return fmt.Errorf("pg.AppendTrade %s: %w", t.ID, err)
	}
	return nil
}

const selectTrades = `
SELECT id, strategy_id, symbol, side, quantity::text, quote_price::text, price::text,
       fees::text, slippage::text, reason, realized_pnl::text, ts
FROM trades WHERE %s ORDER BY seq`

func scanTrades(rows pgx.Rows) ([]models.Trade, error) {
	defer rows.Close()
	var out []models.Trade
	for rows.Next() {
		var (
			t                             models.Trade
			side                          string
			qty, quote, price, fees, slip string
			pnl                           *string
		)
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.Symbol, &side, &qty, &quote, &price, &fees, &slip, &t.Reason, &pnl, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		var err error
		if t.Quantity, err = toFloat(qty); err != nil {
			return nil, err
		}
		if t.QuotePrice, err = toFloat(quote); err != nil {
			return nil, err
		}
		if t.Price, err = toFloat(price); err != nil {
			return nil, err
		}
		if t.Fees, err = toFloat(fees); err != nil {
			return nil, err
		}
		if t.Slippage, err = toFloat(slip); err != nil {
			return nil, err
		}
		if pnl != nil {
			v, err := toFloat(*pnl)
			if err != nil {
				return nil, err
			}
			t.RealizedPnL = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) Trades(ctx context.Context, strategyID string) ([]models.Trade, error) {
	rows, err := p.db.Conn().Query(ctx, fmt.Sprintf(selectTrades, "strategy_id = $1 AND run_id IS NULL"), strategyID)
	if err != nil {
		return nil, fmt.Errorf("pg.Trades %s: %w", strategyID, err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("pg.Trades %s: %w", strategyID, err)
	}
	return out, nil
}

const insertRun = `
INSERT INTO backtest_runs (id, strategy_id, revision, strategy, range_from, range_to, execution,
    starting_balance, ending_balance, ending_equity, candles, skipped, report, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

func (p *Postgres) SaveBacktest(ctx context.Context, run *models.BacktestRun) error {
	strategy, err := sonic.Marshal(run.Strategy)
	if err != nil {
		return fmt.Errorf("pg.SaveBacktest marshal strategy: %w", err)
	}
	execution, err := sonic.Marshal(run.Execution)
	if err != nil {
		return fmt.Errorf("pg.SaveBacktest marshal execution: %w", err)
	}
	report, err := sonic.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("pg.SaveBacktest marshal report: %w", err)
	}

	err = p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx, insertRun,
			run.ID, run.Strategy.ID, run.Strategy.Revision, strategy,
			nullTime(run.Range.From), nullTime(run.Range.To), execution,
			decimal.NewFromFloat(run.StartingBalance), decimal.NewFromFloat(run.EndingBalance),
			decimal.NewFromFloat(run.EndingEquity), run.Candles, run.Skipped, report,
			run.StartedAt, run.CompletedAt,
		); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, t := range run.Ledger {
			batch.Queue(insertTrade, tradeArgs(&run.ID, t)...)
		}
		return tx.SendBatch(ctxTx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("pg.SaveBacktest %s: %w", run.ID, err)
	}
	return nil
}

const selectRun = `
SELECT id, strategy, range_from, range_to, execution, starting_balance::text, ending_balance::text,
       ending_equity::text, candles, skipped, report, started_at, completed_at
FROM backtest_runs WHERE id = $1`

func (p *Postgres) Backtest(ctx context.Context, id string) (run *models.BacktestRun, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Backtest %s: %w", id, err)
		}
	}()
	run = &models.BacktestRun{}
	err = p.db.RunReadOnly(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		var (
			strategy, execution, report []byte
			from, to                    *time.Time
			start, end, equity          string
		)
		err := tx.QueryRow(ctxTx, selectRun, id).Scan(&run.ID, &strategy, &from, &to, &execution,
			&start, &end, &equity, &run.Candles, &run.Skipped, &report, &run.StartedAt, &run.CompletedAt)
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if from != nil {
			run.Range.From = *from
		}
		if to != nil {
			run.Range.To = *to
		}
		for _, u := range []struct {
			b []byte
			v any
		}{{strategy, &run.Strategy}, {execution, &run.Execution}, {report, &run.Report}} {
			if err := sonic.Unmarshal(u.b, u.v); err != nil {
				return err
			}
		}
		if run.StartingBalance, err = toFloat(start); err != nil {
			return err
		}
		if run.EndingBalance, err = toFloat(end); err != nil {
			return err
		}
		if run.EndingEquity, err = toFloat(equity); err != nil {
			return err
		}
		rows, err := tx.Query(ctxTx, fmt.Sprintf(selectTrades, "run_id = $1"), id)
		if err != nil {
			return err
		}
		run.Ledger, err = scanTrades(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

const insertDeadLetter = `
INSERT INTO dead_letters (id, consumer, signal, error, attempts, failed_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (p *Postgres) SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	sig, err := sonic.Marshal(dl.Signal)
	if err != nil {
		return fmt.Errorf("pg.SaveDeadLetter marshal: %w", err)
	}
	if _, err := p.db.Conn().Exec(ctx, insertDeadLetter, dl.ID, dl.Consumer, sig, dl.Error, dl.Attempts, dl.FailedAt); err != nil {
		return fmt.Errorf("pg.SaveDeadLetter %s: %w", dl.ID, err)
	}
	return nil
}

const selectDeadLetters = `
SELECT id, consumer, signal, error, attempts, failed_at
FROM dead_letters WHERE $1 = '' OR consumer = $1 ORDER BY failed_at`

func (p *Postgres) DeadLetters(ctx context.Context, consumer string) (out []models.DeadLetter, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.DeadLetters: %w", err)
		}
	}()
	rows, err := p.db.Conn().Query(ctx, selectDeadLetters, consumer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			dl  models.DeadLetter
			sig []byte
		)
		if err = rows.Scan(&dl.ID, &dl.Consumer, &sig, &dl.Error, &dl.Attempts, &dl.FailedAt); err != nil {
			return nil, err
		}
		if err = sonic.Unmarshal(sig, &dl.Signal); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

func toFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
