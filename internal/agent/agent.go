// Package agent implements C10: the orchestrator that assembles one
// AgentContext per active agent per timeframe tick, invokes its strategy
// (C9) or LLM executor, and applies the resulting action through C8.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/internal/portfolio"
	"github.com/kieranvance/pulsetrader/internal/strategy"
	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

const maxAvailablePositionPct = 0.25

// defaultDrawdownAlertPct is how far equity can fall from its running peak
// before a cycle fires a SendEquityAlert, absent an explicit override.
const defaultDrawdownAlertPct = 20.0

// Store is C10's read/write contract against persisted agent state. It
// deliberately excludes portfolio/position/trade mutation — that stays
// behind PortfolioManager, the sole authority per C8.
type Store interface {
	ActiveAgents(ctx context.Context, timeframe models.Timeframe) ([]models.Agent, error)
	LatestRankings(ctx context.Context, timeframe models.Timeframe) ([]models.Ranking, error)
	CrossTFBundle(ctx context.Context, timeframe models.Timeframe) (*models.CrossTFBundle, error)
	TweetContext(ctx context.Context, timeframe models.Timeframe) (*models.TweetContext, error)
	RecentMemory(ctx context.Context, agentID int) ([]string, error)
	PerformanceStats(ctx context.Context, agentID int) (models.PerformanceStats, error)
	ActivePromptVersion(ctx context.Context, agentID int) (int, error)
	SaveDecision(ctx context.Context, decision models.AgentDecision) (int64, error)
	RecordTokenUsage(ctx context.Context, agentID int, model, taskType string, day time.Time, inputTokens, outputTokens int, costUSD decimal.Decimal) error
}

// PortfolioManager is C8's contract as consumed by the orchestrator —
// exactly the subset of *portfolio.Manager's exported methods a cycle
// needs, narrowed so tests can supply a fake.
type PortfolioManager interface {
	GetPortfolioSummary(ctx context.Context, agentID int, currentPrices map[string]decimal.Decimal) (*models.PortfolioSummary, error)
	CheckStopLossTakeProfit(ctx context.Context, agentID int, candleData map[string]portfolio.CandleExtremes) ([]models.ExecutionResult, error)
	UpdateUnrealizedPnl(ctx context.Context, agentID int, currentPrices map[string]decimal.Decimal) error
	Validate(ctx context.Context, agentID int, action models.TradeAction, currentPrices map[string]decimal.Decimal) (*portfolio.ValidationResult, error)
	OpenPosition(ctx context.Context, agentID int, action models.TradeAction, currentPrice decimal.Decimal, decisionID *int64) (models.ExecutionResult, error)
	ClosePosition(ctx context.Context, agentID int, symbol string, exitPrice decimal.Decimal, reason models.ExitReason, decisionID *int64) (models.ExecutionResult, error)
}

// LLMExecutor is the external collaborator for engine=llm agents. Timeouts
// or errors are the caller's responsibility to turn into a hold result —
// the orchestrator treats a returned error the same as a rule-engine panic.
type LLMExecutor interface {
	Decide(ctx context.Context, agentCtx models.AgentContext, systemPrompt, model string, promptVersion int) (models.AgentDecisionResult, error)
}

// Notifier fans out the trade-opened, trade-closed and equity-alert events C10 produces to
// whatever external channel is wired in (Telegram, SSE, ...).
type Notifier interface {
	SendTradeOpened(ctx context.Context, agentName, symbol, direction string, size, price decimal.Decimal) error
	SendTradeClosed(ctx context.Context, agentName, symbol string, pnl decimal.Decimal, reason models.ExitReason) error
	SendEquityAlert(ctx context.Context, agentName string, drawdownPct float64) error
}

// CandleData is the per-symbol OHLC extremes for one tick, reused for both
// SL/TP evaluation (C8) and current-price lookups.
type CandleData struct {
	Close decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
}

// Runner executes one orchestrator tick across every active agent for a
// timeframe.
type Runner struct {
	store            Store
	portfolio        PortfolioManager
	registry         *strategy.Registry
	llm              LLMExecutor
	notifier         Notifier
	drawdownAlertPct float64
}

// NewRunner wires C10's dependencies. llm and notifier may be nil — a nil
// llm fails engine=llm agents closed to a hold, a nil notifier silently
// skips event delivery.
func NewRunner(store Store, portfolioMgr PortfolioManager, registry *strategy.Registry, llm LLMExecutor, notifier Notifier) *Runner {
	return &Runner{store: store, portfolio: portfolioMgr, registry: registry, llm: llm, notifier: notifier, drawdownAlertPct: defaultDrawdownAlertPct}
}

// SetDrawdownAlertPct overrides the default percentage drop from peak
// equity that triggers a SendEquityAlert.
func (r *Runner) SetDrawdownAlertPct(pct float64) {
	r.drawdownAlertPct = pct
}

// AgentCycleResult is what one agent's cycle produced, for callers that
// want to inspect or count outcomes (e.g. backtest harnesses reusing this
// same code path per §4.11 step 4).
type AgentCycleResult struct {
	AgentID       int
	DecisionID    int64
	Action        models.TradeAction
	SLTPCloses    []models.ExecutionResult
	ActionResult  *models.ExecutionResult
	Err           error
}

// Run executes the §4.10 protocol for every active agent on timeframe.
// Errors inside one agent's cycle are caught and recorded on its result;
// they never abort the remaining agents.
func (r *Runner) Run(ctx context.Context, timeframe models.Timeframe, candles map[string]CandleData) ([]AgentCycleResult, error) {
	agents, err := r.store.ActiveAgents(ctx, timeframe)
	if err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}

	currentPrices := make(map[string]decimal.Decimal, len(candles))
	sltpCandles := make(map[string]portfolio.CandleExtremes, len(candles))
	for symbol, c := range candles {
		currentPrices[symbol] = c.Close
		sltpCandles[symbol] = portfolio.CandleExtremes{High: c.High, Low: c.Low, Close: c.Close}
	}

	results := make([]AgentCycleResult, 0, len(agents))
	for _, a := range agents {
		result := r.runAgentCycle(ctx, a, timeframe, sltpCandles, currentPrices)
		if result.Err != nil {
			logger.Error("agent cycle failed",
				zap.Int("agent_id", a.ID),
				zap.String("agent", a.Name),
				zap.Error(result.Err),
			)
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Runner) runAgentCycle(ctx context.Context, a models.Agent, timeframe models.Timeframe, sltpCandles map[string]portfolio.CandleExtremes, currentPrices map[string]decimal.Decimal) AgentCycleResult {
	result := AgentCycleResult{AgentID: a.ID}

	closes, err := r.portfolio.CheckStopLossTakeProfit(ctx, a.ID, sltpCandles)
	if err != nil {
		result.Err = fmt.Errorf("check stop loss / take profit: %w", err)
		return result
	}
	result.SLTPCloses = closes
	for _, c := range closes {
		if c.Success && c.Trade != nil && r.notifier != nil {
			_ = r.notifier.SendTradeClosed(ctx, a.Name, c.Trade.Symbol, c.Trade.PnL, c.Trade.ExitReason)
		}
	}

	if err := r.portfolio.UpdateUnrealizedPnl(ctx, a.ID, currentPrices); err != nil {
		result.Err = fmt.Errorf("update unrealized pnl: %w", err)
		return result
	}

	agentCtx, err := r.assembleContext(ctx, a, timeframe, currentPrices)
	if err != nil {
		result.Err = fmt.Errorf("assemble agent context: %w", err)
		return result
	}

	if agentCtx.Performance.MaxDrawdownPct >= r.drawdownAlertPct && r.notifier != nil {
		_ = r.notifier.SendEquityAlert(ctx, a.Name, agentCtx.Performance.MaxDrawdownPct)
	}

	decisionResult := r.decide(ctx, a, *agentCtx)
	result.Action = decisionResult.Action

	decision := buildDecisionRow(a.ID, decisionResult)
	decisionID, err := r.store.SaveDecision(ctx, decision)
	if err != nil {
		logger.Error("failed to save agent decision", zap.Int("agent_id", a.ID), zap.Error(err))
	}

	if decisionResult.InputTokens > 0 || decisionResult.OutputTokens > 0 {
		if err := r.store.RecordTokenUsage(ctx, a.ID, decisionResult.ModelUsed, "decision", time.Now(), decisionResult.InputTokens, decisionResult.OutputTokens, decisionResult.EstimatedCostUSD); err != nil {
			logger.Warn("failed to record token usage", zap.Int("agent_id", a.ID), zap.Error(err))
		}
	}

	if decisionResult.Action.Action == models.ActionHold {
		return result
	}

	var decisionIDPtr *int64
	if decisionID != 0 {
		decisionIDPtr = &decisionID
	}
	result.DecisionID = decisionID

	execResult, err := r.applyAction(ctx, a, decisionResult.Action, currentPrices, decisionIDPtr)
	if err != nil {
		result.Err = fmt.Errorf("apply action: %w", err)
		return result
	}
	result.ActionResult = execResult
	return result
}

// decide resolves and invokes the agent's decision source, isolating a
// strategy panic or LLM error to a hold — the same fallback
// rule_executor.decide() applies per archetype.
func (r *Runner) decide(ctx context.Context, a models.Agent, agentCtx models.AgentContext) (result models.AgentDecisionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("strategy evaluation panicked, falling back to hold",
				zap.Int("agent_id", a.ID), zap.Any("recover", rec))
			result = holdResult(a, "strategy panic recovered")
		}
	}()

	promptVersion, err := r.store.ActivePromptVersion(ctx, a.ID)
	if err != nil {
		logger.Warn("failed to resolve active prompt version, defaulting to 1", zap.Int("agent_id", a.ID), zap.Error(err))
		promptVersion = 1
	}

	if a.Engine == models.EngineLLM {
		if r.llm == nil {
			return holdResult(a, "no llm executor configured")
		}
		llmResult, err := r.llm.Decide(ctx, agentCtx, "", "", promptVersion)
		if err != nil {
			logger.Warn("llm decision failed, holding", zap.Int("agent_id", a.ID), zap.Error(err))
			return holdResult(a, fmt.Sprintf("llm error: %v", err))
		}
		return llmResult
	}

	s, ok := r.registry.Resolve(a.Name, a.StrategyArchetype)
	if !ok {
		logger.Error("no strategy resolved for agent", zap.Int("agent_id", a.ID), zap.String("archetype", a.StrategyArchetype))
		return holdResult(a, "no strategy resolved")
	}

	action := s.Evaluate(agentCtx)
	reasoning := s.Reasoning(agentCtx, action)
	return models.AgentDecisionResult{
		Action:           action,
		ReasoningFull:    reasoning,
		ReasoningSummary: truncate(reasoning, 500),
		ModelUsed:        "rule_engine",
		PromptVersion:    promptVersion,
		DecidedAt:        time.Now(),
	}
}

func holdResult(a models.Agent, reason string) models.AgentDecisionResult {
	return models.AgentDecisionResult{
		Action:           models.HoldAction(0.0),
		ReasoningFull:    reason,
		ReasoningSummary: truncate(reason, 500),
		ModelUsed:        "rule_engine",
		DecidedAt:        time.Now(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (r *Runner) assembleContext(ctx context.Context, a models.Agent, timeframe models.Timeframe, currentPrices map[string]decimal.Decimal) (*models.AgentContext, error) {
	summary, err := r.portfolio.GetPortfolioSummary(ctx, a.ID, currentPrices)
	if err != nil {
		return nil, fmt.Errorf("portfolio summary: %w", err)
	}

	openSlots := maxConcurrentPositionsFor(a) - len(summary.OpenPositions)
	available := decimal.Zero
	if openSlots > 0 {
		available = decimal.Min(summary.CashBalance, summary.TotalEquity.Mul(decimal.NewFromFloat(maxAvailablePositionPct)))
	}
	summary.AvailableForNewPosition = available

	performance, err := r.store.PerformanceStats(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("performance stats: %w", err)
	}

	rankings, err := r.store.LatestRankings(ctx, timeframe)
	if err != nil {
		return nil, fmt.Errorf("latest rankings: %w", err)
	}

	memory, err := r.store.RecentMemory(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("recent memory: %w", err)
	}

	agentCtx := &models.AgentContext{
		AgentID:       a.ID,
		AgentName:     a.Name,
		Archetype:     a.StrategyArchetype,
		Timeframe:     string(timeframe),
		Portfolio:     *summary,
		Performance:   performance,
		Rankings:      rankings,
		CurrentPrices: currentPrices,
		Memory:        memory,
	}

	if requiresCrossTF(a) {
		crossTF, err := r.store.CrossTFBundle(ctx, timeframe)
		if err != nil {
			return nil, fmt.Errorf("cross-tf bundle: %w", err)
		}
		agentCtx.CrossTF = crossTF
	}

	if a.Source == models.SourceTweet || a.Source == models.SourceHybrid {
		tweet, err := r.store.TweetContext(ctx, timeframe)
		if err != nil {
			return nil, fmt.Errorf("tweet context: %w", err)
		}
		agentCtx.Tweet = tweet
	}

	return agentCtx, nil
}

func requiresCrossTF(a models.Agent) bool {
	switch a.Name {
	case "rb-cross-confluence", "rb-cross-divergence", "rb-cross-cascade", "rb-cross-regime":
		return true
	default:
		return false
	}
}

// maxConcurrentPositionsFor mirrors each archetype's own concurrency cap
// (C9) so the orchestrator's "available for new position" figure matches
// what the strategy would itself allow.
func maxConcurrentPositionsFor(a models.Agent) int {
	switch a.StrategyArchetype {
	case models.ArchetypeBreakout:
		return 2
	case models.ArchetypeSwing, models.ArchetypeHybridMomentum, models.ArchetypeHybridSwing:
		return 3
	default:
		switch a.Name {
		case "rb-cross-confluence", "rb-cross-divergence", "rb-cross-cascade", "rb-cross-regime":
			return 3
		}
		return 5
	}
}

func (r *Runner) applyAction(ctx context.Context, a models.Agent, action models.TradeAction, currentPrices map[string]decimal.Decimal, decisionID *int64) (*models.ExecutionResult, error) {
	validation, err := r.portfolio.Validate(ctx, a.ID, action, currentPrices)
	if err != nil {
		return nil, fmt.Errorf("validate action: %w", err)
	}
	if !validation.Valid {
		logger.Info("agent action rejected by validation",
			zap.Int("agent_id", a.ID), zap.String("action", string(action.Action)),
			zap.String("reason", validation.ErrorMessage))
		return &models.ExecutionResult{Success: false, ErrorMessage: validation.ErrorMessage, Warnings: validation.Warnings}, nil
	}

	var result models.ExecutionResult
	switch action.Action {
	case models.ActionOpenLong, models.ActionOpenShort:
		price, ok := currentPrices[action.Symbol]
		if !ok {
			return nil, fmt.Errorf("no current price for %s", action.Symbol)
		}
		result, err = r.portfolio.OpenPosition(ctx, a.ID, action, price, decisionID)
		if err == nil && result.Success && r.notifier != nil {
			_ = r.notifier.SendTradeOpened(ctx, a.Name, action.Symbol, string(action.Action), result.Position.PositionSize, price)
		}
	case models.ActionClose:
		price, ok := currentPrices[action.Symbol]
		if !ok {
			return nil, fmt.Errorf("no current price for %s", action.Symbol)
		}
		result, err = r.portfolio.ClosePosition(ctx, a.ID, action.Symbol, price, models.ExitAgentDecision, decisionID)
		if err == nil && result.Success && r.notifier != nil {
			_ = r.notifier.SendTradeClosed(ctx, a.Name, action.Symbol, result.Trade.PnL, result.Trade.ExitReason)
		}
	default:
		return nil, fmt.Errorf("unexpected non-hold action type %q", action.Action)
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func buildDecisionRow(agentID int, r models.AgentDecisionResult) models.AgentDecision {
	params, _ := json.Marshal(r.Action)
	return models.AgentDecision{
		AgentID:          agentID,
		Action:           r.Action.Action,
		ReasoningFull:    r.ReasoningFull,
		ReasoningSummary: r.ReasoningSummary,
		ActionParams:     string(params),
		ModelUsed:        r.ModelUsed,
		InputTokens:      r.InputTokens,
		OutputTokens:     r.OutputTokens,
		EstimatedCostUSD: r.EstimatedCostUSD,
		PromptVersion:    int16(r.PromptVersion),
		DecidedAt:        r.DecidedAt,
	}
}
