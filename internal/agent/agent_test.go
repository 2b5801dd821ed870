package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/internal/portfolio"
	"github.com/kieranvance/pulsetrader/internal/strategy"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

type fakeStore struct {
	agents          []models.Agent
	rankings        []models.Ranking
	crossTF         *models.CrossTFBundle
	tweet           *models.TweetContext
	memory          []string
	performance     models.PerformanceStats
	promptVersion   int
	promptVersionErr error
	decisions       []models.AgentDecision
	nextDecisionID  int64
	tokenUsageCalls int
}

func (s *fakeStore) ActiveAgents(ctx context.Context, timeframe models.Timeframe) ([]models.Agent, error) {
	return s.agents, nil
}

func (s *fakeStore) LatestRankings(ctx context.Context, timeframe models.Timeframe) ([]models.Ranking, error) {
	return s.rankings, nil
}

func (s *fakeStore) CrossTFBundle(ctx context.Context, timeframe models.Timeframe) (*models.CrossTFBundle, error) {
	return s.crossTF, nil
}

func (s *fakeStore) TweetContext(ctx context.Context, timeframe models.Timeframe) (*models.TweetContext, error) {
	return s.tweet, nil
}

func (s *fakeStore) RecentMemory(ctx context.Context, agentID int) ([]string, error) {
	return s.memory, nil
}

func (s *fakeStore) PerformanceStats(ctx context.Context, agentID int) (models.PerformanceStats, error) {
	return s.performance, nil
}

func (s *fakeStore) ActivePromptVersion(ctx context.Context, agentID int) (int, error) {
	if s.promptVersionErr != nil {
		return 0, s.promptVersionErr
	}
	return s.promptVersion, nil
}

func (s *fakeStore) SaveDecision(ctx context.Context, decision models.AgentDecision) (int64, error) {
	s.nextDecisionID++
	decision.ID = s.nextDecisionID
	s.decisions = append(s.decisions, decision)
	return decision.ID, nil
}

func (s *fakeStore) RecordTokenUsage(ctx context.Context, agentID int, model, taskType string, day time.Time, inputTokens, outputTokens int, costUSD decimal.Decimal) error {
	s.tokenUsageCalls++
	return nil
}

type fakePortfolio struct {
	summary          *models.PortfolioSummary
	summaryErr       error
	sltpCloses       []models.ExecutionResult
	sltpErr          error
	updatePnlErr     error
	validation       *portfolio.ValidationResult
	validateErr      error
	openResult       models.ExecutionResult
	openErr          error
	closeResult      models.ExecutionResult
	closeErr         error
	openCalls        int
	closeCalls       int
}

func (p *fakePortfolio) GetPortfolioSummary(ctx context.Context, agentID int, currentPrices map[string]decimal.Decimal) (*models.PortfolioSummary, error) {
	if p.summaryErr != nil {
		return nil, p.summaryErr
	}
	if p.summary == nil {
		return &models.PortfolioSummary{AgentID: agentID, CashBalance: decimal.NewFromInt(10000), TotalEquity: decimal.NewFromInt(10000)}, nil
	}
	return p.summary, nil
}

func (p *fakePortfolio) CheckStopLossTakeProfit(ctx context.Context, agentID int, candleData map[string]portfolio.CandleExtremes) ([]models.ExecutionResult, error) {
	return p.sltpCloses, p.sltpErr
}

func (p *fakePortfolio) UpdateUnrealizedPnl(ctx context.Context, agentID int, currentPrices map[string]decimal.Decimal) error {
	return p.updatePnlErr
}

func (p *fakePortfolio) Validate(ctx context.Context, agentID int, action models.TradeAction, currentPrices map[string]decimal.Decimal) (*portfolio.ValidationResult, error) {
	if p.validateErr != nil {
		return nil, p.validateErr
	}
	if p.validation == nil {
		return &portfolio.ValidationResult{Valid: true}, nil
	}
	return p.validation, nil
}

func (p *fakePortfolio) OpenPosition(ctx context.Context, agentID int, action models.TradeAction, currentPrice decimal.Decimal, decisionID *int64) (models.ExecutionResult, error) {
	p.openCalls++
	return p.openResult, p.openErr
}

func (p *fakePortfolio) ClosePosition(ctx context.Context, agentID int, symbol string, exitPrice decimal.Decimal, reason models.ExitReason, decisionID *int64) (models.ExecutionResult, error) {
	p.closeCalls++
	return p.closeResult, p.closeErr
}

type fakeLLM struct {
	result models.AgentDecisionResult
	err    error
}

func (l *fakeLLM) Decide(ctx context.Context, agentCtx models.AgentContext, systemPrompt, model string, promptVersion int) (models.AgentDecisionResult, error) {
	return l.result, l.err
}

type panicStrategy struct{}

func (panicStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	panic("boom")
}

func (panicStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	return "unreachable"
}

func ruleAgent(id int, archetype string) models.Agent {
	return models.Agent{ID: id, Name: "rb-momentum", StrategyArchetype: archetype, Timeframe: "1h", Engine: models.EngineRule, Source: models.SourceTechnical, Status: models.AgentActive}
}

func TestRun_SLTPBeforeStrategyAction(t *testing.T) {
	store := &fakeStore{agents: []models.Agent{ruleAgent(1, models.ArchetypeMomentum)}}
	pf := &fakePortfolio{
		sltpCloses: []models.ExecutionResult{{Success: true, Trade: &models.AgentTrade{Symbol: "BTC", PnL: decimal.NewFromInt(5), ExitReason: models.ExitTakeProfit}}},
	}
	registry := strategy.DefaultRegistry()
	runner := NewRunner(store, pf, registry, nil, nil)

	results, err := runner.Run(context.Background(), models.Timeframe1h, map[string]CandleData{
		"BTC": {Close: decimal.NewFromInt(50000), High: decimal.NewFromInt(50500), Low: decimal.NewFromInt(49500)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if len(results[0].SLTPCloses) != 1 {
		t.Fatalf("expected sltp close to be recorded on the result")
	}
}

func TestRun_OneAgentErrorDoesNotAbortOthers(t *testing.T) {
	store := &fakeStore{agents: []models.Agent{
		ruleAgent(1, models.ArchetypeMomentum),
		ruleAgent(2, models.ArchetypeMomentum),
	}}
	calls := 0
	pf := &erroringOnFirstCallPortfolio{calls: &calls}
	registry := strategy.DefaultRegistry()
	runner := NewRunner(store, pf, registry, nil, nil)

	results, err := runner.Run(context.Background(), models.Timeframe1h, map[string]CandleData{})
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results even though the first agent errored, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatalf("expected first agent to carry an error")
	}
	if results[1].Err != nil {
		t.Fatalf("expected second agent to succeed, got %v", results[1].Err)
	}
}

type erroringOnFirstCallPortfolio struct {
	fakePortfolio
	calls *int
}

func (p *erroringOnFirstCallPortfolio) CheckStopLossTakeProfit(ctx context.Context, agentID int, candleData map[string]portfolio.CandleExtremes) ([]models.ExecutionResult, error) {
	*p.calls++
	if *p.calls == 1 {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func TestDecide_RecoversFromStrategyPanic(t *testing.T) {
	store := &fakeStore{}
	pf := &fakePortfolio{}
	registry := strategy.NewRegistry()
	registry.RegisterArchetype("panics", panicStrategy{})
	a := ruleAgent(1, "panics")
	a.Name = "not-a-cross-tf-agent"
	runner := NewRunner(store, pf, registry, nil, nil)

	result := runner.decide(context.Background(), a, models.AgentContext{})
	if result.Action.Action != models.ActionHold {
		t.Fatalf("expected hold after panic recovery, got %v", result.Action.Action)
	}
}

func TestDecide_RuleEngineReportsZeroTokensAndCost(t *testing.T) {
	store := &fakeStore{}
	registry := strategy.DefaultRegistry()
	a := ruleAgent(1, models.ArchetypeMomentum)
	runner := NewRunner(store, &fakePortfolio{}, registry, nil, nil)

	result := runner.decide(context.Background(), a, models.AgentContext{
		Portfolio: models.PortfolioSummary{AvailableForNewPosition: decimal.NewFromInt(1000)},
	})
	if result.InputTokens != 0 || result.OutputTokens != 0 {
		t.Fatalf("expected zero tokens for rule engine, got in=%d out=%d", result.InputTokens, result.OutputTokens)
	}
	if !result.EstimatedCostUSD.IsZero() {
		t.Fatalf("expected zero cost for rule engine, got %s", result.EstimatedCostUSD)
	}
	if result.ModelUsed != "rule_engine" {
		t.Fatalf("expected model_used=rule_engine, got %s", result.ModelUsed)
	}
}

func TestDecide_LLMHoldsWhenExecutorNil(t *testing.T) {
	store := &fakeStore{}
	a := ruleAgent(1, models.ArchetypeMomentum)
	a.Engine = models.EngineLLM
	runner := NewRunner(store, &fakePortfolio{}, strategy.DefaultRegistry(), nil, nil)

	result := runner.decide(context.Background(), a, models.AgentContext{})
	if result.Action.Action != models.ActionHold {
		t.Fatalf("expected hold with nil llm executor, got %v", result.Action.Action)
	}
}

func TestDecide_LLMHoldsOnExecutorError(t *testing.T) {
	store := &fakeStore{}
	a := ruleAgent(1, models.ArchetypeMomentum)
	a.Engine = models.EngineLLM
	llm := &fakeLLM{err: errors.New("timeout")}
	runner := NewRunner(store, &fakePortfolio{}, strategy.DefaultRegistry(), llm, nil)

	result := runner.decide(context.Background(), a, models.AgentContext{})
	if result.Action.Action != models.ActionHold {
		t.Fatalf("expected hold on llm error, got %v", result.Action.Action)
	}
}

func TestDecide_LLMReturnsExecutorResultOnSuccess(t *testing.T) {
	store := &fakeStore{}
	a := ruleAgent(1, models.ArchetypeMomentum)
	a.Engine = models.EngineLLM
	want := models.AgentDecisionResult{Action: models.HoldAction(0.5), ModelUsed: "gpt-test", InputTokens: 100, OutputTokens: 50}
	llm := &fakeLLM{result: want}
	runner := NewRunner(store, &fakePortfolio{}, strategy.DefaultRegistry(), llm, nil)

	result := runner.decide(context.Background(), a, models.AgentContext{})
	if result.ModelUsed != "gpt-test" || result.InputTokens != 100 {
		t.Fatalf("expected llm result to pass through unchanged, got %+v", result)
	}
}

func TestRequiresCrossTF(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"rb-cross-confluence", true},
		{"rb-cross-divergence", true},
		{"rb-cross-cascade", true},
		{"rb-cross-regime", true},
		{"rb-momentum", false},
	}
	for _, c := range cases {
		got := requiresCrossTF(models.Agent{Name: c.name})
		if got != c.want {
			t.Errorf("requiresCrossTF(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestMaxConcurrentPositionsFor(t *testing.T) {
	cases := []struct {
		agent models.Agent
		want  int
	}{
		{models.Agent{StrategyArchetype: models.ArchetypeBreakout}, 2},
		{models.Agent{StrategyArchetype: models.ArchetypeSwing}, 3},
		{models.Agent{StrategyArchetype: models.ArchetypeHybridMomentum}, 3},
		{models.Agent{StrategyArchetype: models.ArchetypeHybridSwing}, 3},
		{models.Agent{Name: "rb-cross-regime"}, 3},
		{models.Agent{StrategyArchetype: models.ArchetypeMomentum}, 5},
	}
	for _, c := range cases {
		got := maxConcurrentPositionsFor(c.agent)
		if got != c.want {
			t.Errorf("maxConcurrentPositionsFor(%+v) = %d, want %d", c.agent, got, c.want)
		}
	}
}

func TestAssembleContext_AvailableForNewPositionCapsToSlotsAndPct(t *testing.T) {
	store := &fakeStore{}
	pf := &fakePortfolio{
		summary: &models.PortfolioSummary{
			CashBalance: decimal.NewFromInt(10000),
			TotalEquity: decimal.NewFromInt(10000),
			OpenPositions: []models.AgentPosition{
				{Symbol: "BTC"}, {Symbol: "ETH"}, {Symbol: "SOL"}, {Symbol: "DOGE"}, {Symbol: "ADA"},
			},
		},
	}
	a := ruleAgent(1, models.ArchetypeMomentum)
	runner := NewRunner(store, pf, strategy.DefaultRegistry(), nil, nil)

	ctx, err := runner.assembleContext(context.Background(), a, models.Timeframe1h, map[string]decimal.Decimal{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ctx.Portfolio.AvailableForNewPosition.IsZero() {
		t.Fatalf("expected zero available when at max concurrent positions, got %s", ctx.Portfolio.AvailableForNewPosition)
	}
}

func TestAssembleContext_AvailableForNewPositionWhenSlotOpen(t *testing.T) {
	store := &fakeStore{}
	pf := &fakePortfolio{
		summary: &models.PortfolioSummary{
			CashBalance: decimal.NewFromInt(1000),
			TotalEquity: decimal.NewFromInt(10000),
		},
	}
	a := ruleAgent(1, models.ArchetypeMomentum)
	runner := NewRunner(store, pf, strategy.DefaultRegistry(), nil, nil)

	ctx, err := runner.assembleContext(context.Background(), a, models.Timeframe1h, map[string]decimal.Decimal{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.NewFromInt(1000)
	if !ctx.Portfolio.AvailableForNewPosition.Equal(want) {
		t.Fatalf("expected available to be min(cash, 0.25*equity) = %s, got %s", want, ctx.Portfolio.AvailableForNewPosition)
	}
}

func TestApplyAction_RejectsOnFailedValidation(t *testing.T) {
	pf := &fakePortfolio{validation: &portfolio.ValidationResult{Valid: false, ErrorMessage: "too large"}}
	runner := NewRunner(&fakeStore{}, pf, strategy.DefaultRegistry(), nil, nil)

	action := models.TradeAction{Action: models.ActionOpenLong, Symbol: "BTC", PositionSizePct: 0.1}
	result, err := runner.applyAction(context.Background(), ruleAgent(1, models.ArchetypeMomentum), action, map[string]decimal.Decimal{"BTC": decimal.NewFromInt(100)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failed validation to produce an unsuccessful result")
	}
	if pf.openCalls != 0 {
		t.Fatalf("expected open not to be attempted after failed validation")
	}
}

func TestApplyAction_OpensPosition(t *testing.T) {
	pf := &fakePortfolio{openResult: models.ExecutionResult{Success: true, Position: &models.AgentPosition{Symbol: "BTC", PositionSize: decimal.NewFromInt(1000)}}}
	runner := NewRunner(&fakeStore{}, pf, strategy.DefaultRegistry(), nil, nil)

	action := models.TradeAction{Action: models.ActionOpenLong, Symbol: "BTC", PositionSizePct: 0.1}
	result, err := runner.applyAction(context.Background(), ruleAgent(1, models.ArchetypeMomentum), action, map[string]decimal.Decimal{"BTC": decimal.NewFromInt(100)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || pf.openCalls != 1 {
		t.Fatalf("expected open to be attempted and succeed, got %+v calls=%d", result, pf.openCalls)
	}
}

func TestApplyAction_ClosesPosition(t *testing.T) {
	pf := &fakePortfolio{closeResult: models.ExecutionResult{Success: true, Trade: &models.AgentTrade{Symbol: "BTC", PnL: decimal.NewFromInt(10), ExitReason: models.ExitAgentDecision}}}
	runner := NewRunner(&fakeStore{}, pf, strategy.DefaultRegistry(), nil, nil)

	action := models.TradeAction{Action: models.ActionClose, Symbol: "BTC"}
	result, err := runner.applyAction(context.Background(), ruleAgent(1, models.ArchetypeMomentum), action, map[string]decimal.Decimal{"BTC": decimal.NewFromInt(100)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || pf.closeCalls != 1 {
		t.Fatalf("expected close to be attempted and succeed, got %+v calls=%d", result, pf.closeCalls)
	}
}
