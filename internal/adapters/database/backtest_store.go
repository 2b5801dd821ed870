package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/internal/backtest"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// BacktestStore implements internal/backtest.Store against Postgres.
type BacktestStore struct {
	db *sqlx.DB
}

// NewBacktestStore wraps db for C11's run lifecycle and closed trades.
func NewBacktestStore(db *sqlx.DB) *BacktestStore {
	return &BacktestStore{db: db}
}

// CreateRun inserts a new backtest_runs row in the running state.
func (s *BacktestStore) CreateRun(ctx context.Context, cfg models.BacktestConfig) (*models.BacktestRun, error) {
	run := &models.BacktestRun{
		AgentName: cfg.AgentName, StrategyArchetype: cfg.StrategyArchetype, Timeframe: cfg.Timeframe,
		Symbol: cfg.Symbol, StartDate: cfg.StartDate, EndDate: cfg.EndDate,
		InitialBalance: decimal.NewFromFloat(cfg.InitialBalance), Status: models.BacktestRunning,
	}
	const query = `
		INSERT INTO backtest_runs (
			agent_name, strategy_archetype, timeframe, symbol, start_date, end_date,
			initial_balance, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id, started_at
	`
	err := s.db.QueryRowxContext(ctx, query,
		run.AgentName, run.StrategyArchetype, run.Timeframe, run.Symbol, run.StartDate, run.EndDate,
		run.InitialBalance, run.Status,
	).Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create backtest run for agent %s: %w", cfg.AgentName, err)
	}
	return run, nil
}

// CompleteRun records a completed run's final stats.
func (s *BacktestStore) CompleteRun(ctx context.Context, runID int, stats backtest.Stats) error {
	var sharpe float64
	if stats.SharpeRatio != nil {
		sharpe = *stats.SharpeRatio
	}
	const query = `
		UPDATE backtest_runs
		SET status = $2, final_equity = $3, total_pnl = $4, total_trades = $5,
		    winning_trades = $6, max_drawdown_pct = $7, sharpe_ratio = $8, completed_at = now()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query,
		runID, models.BacktestCompleted,
		decimal.NewFromFloat(stats.FinalEquity), decimal.NewFromFloat(stats.TotalPnL),
		stats.TotalTrades, stats.WinningTrades, stats.MaxDrawdownPct, sharpe,
	)
	if err != nil {
		return fmt.Errorf("complete backtest run %d: %w", runID, err)
	}
	return nil
}

// CancelRun marks a run cancelled, e.g. on context cancellation mid-replay.
func (s *BacktestStore) CancelRun(ctx context.Context, runID int) error {
	const query = `UPDATE backtest_runs SET status = $2, completed_at = now() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, runID, models.BacktestCancelled); err != nil {
		return fmt.Errorf("cancel backtest run %d: %w", runID, err)
	}
	return nil
}

// FailRun marks a run failed with an error message.
func (s *BacktestStore) FailRun(ctx context.Context, runID int, errMsg string) error {
	const query = `
		UPDATE backtest_runs SET status = $2, error_message = $3, completed_at = now() WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, runID, models.BacktestFailed, errMsg); err != nil {
		return fmt.Errorf("fail backtest run %d: %w", runID, err)
	}
	return nil
}

// SaveTrades inserts every trade the replay closed, scoped to runID.
func (s *BacktestStore) SaveTrades(ctx context.Context, runID int, trades []backtest.SimTrade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backtest trades tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO backtest_trades (
			run_id, symbol, direction, entry_price, exit_price, position_size,
			pnl, fees, exit_reason, entry_at, exit_at, duration_minutes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, t := range trades {
		if _, err := tx.ExecContext(ctx, query,
			runID, t.Symbol, t.Direction, decimal.NewFromFloat(t.EntryPrice), decimal.NewFromFloat(t.ExitPrice),
			decimal.NewFromFloat(t.PositionSize), decimal.NewFromFloat(t.PnL), decimal.NewFromFloat(t.Fees),
			t.ExitReason, t.OpenedAt, t.ClosedAt, t.DurationMinutes,
		); err != nil {
			return fmt.Errorf("insert backtest trade for run %d symbol %s: %w", runID, t.Symbol, err)
		}
	}
	return tx.Commit()
}
