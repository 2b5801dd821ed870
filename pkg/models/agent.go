package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentEngine selects the decision mechanism behind an agent.
type AgentEngine string

const (
	EngineRule AgentEngine = "rule"
	EngineLLM  AgentEngine = "llm"
)

// AgentSource marks which signal family an agent's archetype draws on.
type AgentSource string

const (
	SourceTechnical AgentSource = "technical"
	SourceTweet     AgentSource = "tweet"
	SourceHybrid    AgentSource = "hybrid"
)

// AgentStatus is the mutable lifecycle state of an agent's identity.
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentPaused    AgentStatus = "paused"
	AgentDiscarded AgentStatus = "discarded"
)

// Strategy archetypes. Cross-TF variants are matched by agent name first in
// the registry; these constants are also valid `strategy_archetype` column
// values for the rest.
const (
	ArchetypeMomentum             = "momentum"
	ArchetypeMeanReversion        = "mean_reversion"
	ArchetypeBreakout             = "breakout"
	ArchetypeSwing                = "swing"
	ArchetypeCrossConfluence      = "cross_confluence"
	ArchetypeCrossDivergence      = "cross_divergence"
	ArchetypeCrossCascade         = "cross_cascade"
	ArchetypeCrossRegime          = "cross_regime"
	ArchetypeHybridBreakout       = "hybrid_breakout"
	ArchetypeHybridMeanReversion  = "hybrid_mean_reversion"
	ArchetypeHybridMomentum       = "hybrid_momentum"
	ArchetypeHybridSwing          = "hybrid_swing"
	ArchetypeTweetMomentum        = "tweet_momentum"
	ArchetypeTweetContrarian      = "tweet_contrarian"
	ArchetypeTweetNarrative       = "tweet_narrative"
	ArchetypeTweetInsider         = "tweet_insider"
)

// Agent is an autonomous strategy instance.
type Agent struct {
	ID                       int         `db:"id"`
	Name                     string      `db:"name"`
	DisplayName              string      `db:"display_name"`
	StrategyArchetype        string      `db:"strategy_archetype"`
	Timeframe                string      `db:"timeframe"`
	Engine                   AgentEngine `db:"-"`
	Source                   AgentSource `db:"-"`
	Status                   AgentStatus `db:"status"`
	InitialBalance           decimal.Decimal `db:"initial_balance"`
	EvolutionTradeThreshold  int16       `db:"evolution_trade_threshold"`
	CreatedAt                time.Time   `db:"created_at"`
}

// AgentPortfolio is 1:1 with Agent.
type AgentPortfolio struct {
	AgentID          int             `db:"agent_id"`
	CashBalance      decimal.Decimal `db:"cash_balance"`
	TotalEquity      decimal.Decimal `db:"total_equity"`
	TotalRealizedPnL decimal.Decimal `db:"total_realized_pnl"`
	TotalFeesPaid    decimal.Decimal `db:"total_fees_paid"`
	PeakEquity       decimal.Decimal `db:"-"`
	TroughEquity     decimal.Decimal `db:"-"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// AgentPosition is an open, un-closed position.
type AgentPosition struct {
	ID             int             `db:"id"`
	AgentID        int             `db:"agent_id"`
	SymbolID       int             `db:"symbol_id"`
	Symbol         string          `db:"-"`
	Direction      PositionSide    `db:"direction"`
	EntryPrice     decimal.Decimal `db:"entry_price"`
	PositionSize   decimal.Decimal `db:"position_size"`
	StopLoss       *decimal.Decimal `db:"stop_loss"`
	TakeProfit     *decimal.Decimal `db:"take_profit"`
	OpenedAt       time.Time       `db:"opened_at"`
	UnrealizedPnL  decimal.Decimal `db:"unrealized_pnl"`
	DecisionID     *int64          `db:"-"`
}

// ExitReason is drawn from a closed set; consumers treat unknown values
// defensively.
type ExitReason string

const (
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitAgentDecision ExitReason = "agent_decision"
	ExitBacktestEnd   ExitReason = "backtest_end"
	ExitAgentPaused   ExitReason = "agent_paused"
)

// AgentTrade is an immutable record of a closed position.
type AgentTrade struct {
	ID               int64           `db:"id"`
	AgentID          int             `db:"agent_id"`
	SymbolID         int             `db:"symbol_id"`
	Symbol           string          `db:"-"`
	Direction        PositionSide    `db:"direction"`
	EntryPrice       decimal.Decimal `db:"entry_price"`
	ExitPrice        decimal.Decimal `db:"exit_price"`
	PositionSize     decimal.Decimal `db:"position_size"`
	PnL              decimal.Decimal `db:"pnl"`
	Fees             decimal.Decimal `db:"fees"`
	ExitReason       ExitReason      `db:"exit_reason"`
	OpenedAt         time.Time       `db:"opened_at"`
	ClosedAt         time.Time       `db:"closed_at"`
	DurationMinutes  int             `db:"duration_minutes"`
	DecisionID       *int64          `db:"decision_id"`
	CloseDecisionID  *int64          `db:"close_decision_id"`
}

// ActionType is the decision a strategy emits.
type ActionType string

const (
	ActionOpenLong  ActionType = "open_long"
	ActionOpenShort ActionType = "open_short"
	ActionClose     ActionType = "close"
	ActionHold      ActionType = "hold"
)

// TradeAction is the pure output of a strategy evaluation.
type TradeAction struct {
	Action          ActionType
	Symbol          string
	PositionSizePct float64
	StopLossPct     float64
	TakeProfitPct   float64
	Confidence      float64
}

func HoldAction(confidence float64) TradeAction {
	return TradeAction{Action: ActionHold, Confidence: confidence}
}

// AgentDecision is an immutable per-cycle log row.
type AgentDecision struct {
	ID                int64           `db:"id"`
	AgentID           int             `db:"agent_id"`
	Action            ActionType      `db:"action"`
	SymbolID          *int            `db:"symbol_id"`
	ReasoningFull     string          `db:"reasoning_full"`
	ReasoningSummary  string          `db:"reasoning_summary"`
	ActionParams      string          `db:"action_params"` // JSON
	ModelUsed         string          `db:"model_used"`
	InputTokens       int             `db:"input_tokens"`
	OutputTokens      int             `db:"output_tokens"`
	EstimatedCostUSD  decimal.Decimal `db:"estimated_cost_usd"`
	PromptVersion     int16           `db:"prompt_version"`
	DecidedAt         time.Time       `db:"decided_at"`
}

// AgentDecisionResult is the output of running a strategy (or the LLM
// executor) for one agent cycle.
type AgentDecisionResult struct {
	Action           TradeAction
	ReasoningFull    string
	ReasoningSummary string
	ModelUsed        string
	InputTokens      int
	OutputTokens     int
	EstimatedCostUSD decimal.Decimal
	PromptVersion    int
	DecidedAt        time.Time
}

// ExecutionResult is what C8 returns from validate/open/close.
type ExecutionResult struct {
	Success      bool
	ErrorMessage string
	Warnings     []string
	Trade        *AgentTrade
	Position     *AgentPosition
}
