package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestStatus is the lifecycle of a BacktestRun.
type BacktestStatus string

const (
	BacktestPending   BacktestStatus = "pending"
	BacktestRunning   BacktestStatus = "running"
	BacktestCompleted BacktestStatus = "completed"
	BacktestCancelled BacktestStatus = "cancelled"
	BacktestFailed    BacktestStatus = "failed"
)

// BacktestConfig parameterizes one backtest invocation.
type BacktestConfig struct {
	AgentName         string
	StrategyArchetype string
	Timeframe         string
	Symbol            string
	StartDate         time.Time
	EndDate           time.Time
	InitialBalance    float64
}

// BacktestRun is the persisted summary row for one backtest.
type BacktestRun struct {
	ID                int             `db:"id"`
	AgentName         string          `db:"agent_name"`
	StrategyArchetype string          `db:"strategy_archetype"`
	Timeframe         string          `db:"timeframe"`
	Symbol            string          `db:"symbol"`
	StartDate         time.Time       `db:"start_date"`
	EndDate           time.Time       `db:"end_date"`
	InitialBalance    decimal.Decimal `db:"initial_balance"`
	FinalEquity       decimal.Decimal `db:"final_equity"`
	TotalPnL          decimal.Decimal `db:"total_pnl"`
	TotalTrades       int             `db:"total_trades"`
	WinningTrades     int             `db:"winning_trades"`
	MaxDrawdownPct    float64         `db:"max_drawdown_pct"`
	SharpeRatio       float64         `db:"sharpe_ratio"`
	EquityCurve       []float64       `db:"-"`
	Status            BacktestStatus  `db:"status"`
	ErrorMessage      string          `db:"error_message"`
	StartedAt         time.Time       `db:"started_at"`
	CompletedAt       *time.Time      `db:"completed_at"`
}

// BacktestTrade mirrors AgentTrade but belongs to a backtest run, not a
// live agent.
type BacktestTrade struct {
	ID              int             `db:"id"`
	RunID           int             `db:"run_id"`
	Symbol          string          `db:"symbol"`
	Direction       PositionSide    `db:"direction"`
	EntryPrice      decimal.Decimal `db:"entry_price"`
	ExitPrice       decimal.Decimal `db:"exit_price"`
	PositionSize    decimal.Decimal `db:"position_size"`
	PnL             decimal.Decimal `db:"pnl"`
	Fees            decimal.Decimal `db:"fees"`
	ExitReason      ExitReason      `db:"exit_reason"`
	EntryAt         time.Time       `db:"entry_at"`
	ExitAt          time.Time       `db:"exit_at"`
	DurationMinutes int             `db:"duration_minutes"`
}
