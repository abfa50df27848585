package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	_ "github.com/glebarez/go-sqlite"

	"trade_engine/internal/models"
)

// SQLite is the single-node store: one file, same append-only rules as
// Postgres. Times are stored as unix nanoseconds.
type SQLite struct {
	db *sql.DB
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS strategies (
		id         TEXT    NOT NULL,
		revision   INTEGER NOT NULL,
		type       TEXT    NOT NULL,
		exchange   TEXT    NOT NULL,
		symbol     TEXT    NOT NULL,
		timeframe  TEXT    NOT NULL,
		parameters BLOB    NOT NULL,
		risk       BLOB    NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (id, revision)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT    NOT NULL,
		run_id       TEXT,
		strategy_id  TEXT    NOT NULL,
		symbol       TEXT    NOT NULL,
		side         TEXT    NOT NULL,
		quantity     REAL    NOT NULL,
		quote_price  REAL    NOT NULL,
		price        REAL    NOT NULL,
		fees         REAL    NOT NULL,
		slippage     REAL    NOT NULL,
		reason       TEXT    NOT NULL DEFAULT '',
		realized_pnl REAL,
		ts           INTEGER NOT NULL,
		UNIQUE (run_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS trades_strategy ON trades (strategy_id, seq)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id           TEXT    PRIMARY KEY,
		strategy_id  TEXT    NOT NULL,
		body         BLOB    NOT NULL,
		completed_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		id        TEXT    PRIMARY KEY,
		consumer  TEXT    NOT NULL,
		signal    BLOB    NOT NULL,
		error     TEXT    NOT NULL,
		attempts  INTEGER NOT NULL,
		failed_at INTEGER NOT NULL
	)`,
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer keeps run+ledger transactions from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, stmt := range append(pragmas, sqliteSchema...) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) SaveStrategy(ctx context.Context, cfg models.StrategyConfig) error {
	params, err := sonic.Marshal(cfg.Parameters)
	if err != nil {
		return err
	}
	risk, err := sonic.Marshal(cfg.Risk)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO strategies (id, revision, type, exchange, symbol, timeframe, parameters, risk, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Revision, string(cfg.Type), cfg.Exchange, cfg.Symbol, cfg.Timeframe,
		params, risk, cfg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite.SaveStrategy %s: %w", cfg.Key(), err)
	}
	return nil
}

func (s *SQLite) StrategyRevisions(ctx context.Context, id string) ([]models.StrategyConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, revision, type, exchange, symbol, timeframe, parameters, risk, created_at
		 FROM strategies WHERE id = ? ORDER BY revision`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite.StrategyRevisions %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.StrategyConfig
	for rows.Next() {
		var (
			c            models.StrategyConfig
			typ          string
			params, risk []byte
			created      int64
		)
		if err := rows.Scan(&c.ID, &c.Revision, &typ, &c.Exchange, &c.Symbol, &c.Timeframe, &params, &risk, &created); err != nil {
			return nil, err
		}
		c.Type = models.StrategyType(typ)
		c.CreatedAt = time.Unix(0, created).UTC()
		if err := sonic.Unmarshal(params, &c.Parameters); err != nil {
			return nil, err
		}
		if err := sonic.Unmarshal(risk, &c.Risk); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) LatestStrategy(ctx context.Context, id string) (models.StrategyConfig, error) {
	revs, err := s.StrategyRevisions(ctx, id)
	if err != nil {
		return models.StrategyConfig{}, err
	}
	if len(revs) == 0 {
		return models.StrategyConfig{}, ErrNotFound
	}
	return revs[len(revs)-1], nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLiteTrade(ctx context.Context, db execer, runID *string, t models.Trade) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO trades (id, run_id, strategy_id, symbol, side, quantity, quote_price, price, fees, slippage, reason, realized_pnl, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, runID, t.StrategyID, t.Symbol, string(t.Side), t.Quantity, t.QuotePrice, t.Price,
		t.Fees, t.Slippage, t.Reason, t.RealizedPnL, t.Timestamp.UnixNano())
	return err
}

func (s *SQLite) AppendTrade(ctx context.Context, t models.Trade) error {
	if err := insertSQLiteTrade(ctx, s.db, nil, t); err != nil {
		return fmt.Errorf("sqlite.AppendTrade %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLite) Trades(ctx context.Context, strategyID string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, symbol, side, quantity, quote_price, price, fees, slippage, reason, realized_pnl, ts
		 FROM trades WHERE strategy_id = ? AND run_id IS NULL ORDER BY seq`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Trades %s: %w", strategyID, err)
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var (
			t    models.Trade
			side string
			pnl  sql.NullFloat64
			ts   int64
		)
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.Symbol, &side, &t.Quantity, &t.QuotePrice, &t.Price,
			&t.Fees, &t.Slippage, &t.Reason, &pnl, &ts); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.Timestamp = time.Unix(0, ts).UTC()
		if pnl.Valid {
			v := pnl.Float64
			t.RealizedPnL = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveBacktest writes the run document and its ledger rows in one transaction.
func (s *SQLite) SaveBacktest(ctx context.Context, run *models.BacktestRun) (err error) {
	body, err := sonic.Marshal(run)
	if err != nil {
		return fmt.Errorf("sqlite.SaveBacktest marshal: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.SaveBacktest begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("sqlite.SaveBacktest %s: %w", run.ID, err)
			return
		}
		err = tx.Commit()
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO backtest_runs (id, strategy_id, body, completed_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Strategy.ID, body, run.CompletedAt.UnixNano()); err != nil {
		return err
	}
	for _, t := range run.Ledger {
		if err = insertSQLiteTrade(ctx, tx, &run.ID, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Backtest(ctx context.Context, id string) (*models.BacktestRun, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM backtest_runs WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.Backtest %s: %w", id, err)
	}
	run := &models.BacktestRun{}
	if err := sonic.Unmarshal(body, run); err != nil {
		return nil, fmt.Errorf("sqlite.Backtest %s: %w", id, err)
	}
	return run, nil
}

func (s *SQLite) SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	sig, err := sonic.Marshal(dl.Signal)
	if err != nil {
		return fmt.Errorf("sqlite.SaveDeadLetter marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, consumer, signal, error, attempts, failed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		dl.ID, dl.Consumer, sig, dl.Error, dl.Attempts, dl.FailedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite.SaveDeadLetter %s: %w", dl.ID, err)
	}
	return nil
}

func (s *SQLite) DeadLetters(ctx context.Context, consumer string) ([]models.DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, consumer, signal, error, attempts, failed_at
		 FROM dead_letters WHERE ? = '' OR consumer = ? ORDER BY failed_at`, consumer, consumer)
	if err != nil {
		return nil, fmt.Errorf("sqlite.DeadLetters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var (
			dl     models.DeadLetter
			sig    []byte
			failed int64
		)
		if err := rows.Scan(&dl.ID, &dl.Consumer, &sig, &dl.Error, &dl.Attempts, &failed); err != nil {
			return nil, err
		}
		dl.FailedAt = time.Unix(0, failed).UTC()
		if err := sonic.Unmarshal(sig, &dl.Signal); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}
