package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/internal/indicators"
	"github.com/kieranvance/pulsetrader/internal/strategy"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

type fakeExchange struct {
	series models.CandleSeries
	err    error
}

func (f *fakeExchange) FetchHistoricalCandles(ctx context.Context, symbol, interval string, start, end time.Time) (models.CandleSeries, error) {
	if f.err != nil {
		return models.CandleSeries{}, f.err
	}
	return f.series, nil
}

type fakeBacktestStore struct {
	run          *models.BacktestRun
	completed    bool
	completedSt  Stats
	cancelled    bool
	failed       bool
	failMsg      string
	savedTrades  []SimTrade
}

func newFakeBacktestStore() *fakeBacktestStore {
	return &fakeBacktestStore{run: &models.BacktestRun{ID: 1, Status: models.BacktestPending}}
}

func (s *fakeBacktestStore) CreateRun(ctx context.Context, cfg models.BacktestConfig) (*models.BacktestRun, error) {
	run := *s.run
	run.AgentName = cfg.AgentName
	run.StrategyArchetype = cfg.StrategyArchetype
	run.Timeframe = cfg.Timeframe
	run.Symbol = cfg.Symbol
	return &run, nil
}

func (s *fakeBacktestStore) CompleteRun(ctx context.Context, runID int, stats Stats) error {
	s.completed = true
	s.completedSt = stats
	return nil
}

func (s *fakeBacktestStore) CancelRun(ctx context.Context, runID int) error {
	s.cancelled = true
	return nil
}

func (s *fakeBacktestStore) FailRun(ctx context.Context, runID int, errMsg string) error {
	s.failed = true
	s.failMsg = errMsg
	return nil
}

func (s *fakeBacktestStore) SaveTrades(ctx context.Context, runID int, trades []SimTrade) error {
	s.savedTrades = trades
	return nil
}

// buildCandles returns n hourly candles starting at start, closing flat at
// price with no wicks, so indicators compute without panicking and no
// stop-loss/take-profit trigger incidentally.
func buildCandles(n int, start time.Time, price float64) []models.Candle {
	candles := make([]models.Candle, n)
	p := decimal.NewFromFloat(price)
	for i := 0; i < n; i++ {
		t := start.Add(time.Duration(i) * time.Hour)
		candles[i] = models.Candle{
			OpenTime:  t,
			CloseTime: t.Add(time.Hour),
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Volume:    decimal.NewFromInt(100),
		}
	}
	return candles
}

// alwaysHoldStrategy never opens a position, exercising the no-trade path.
type alwaysHoldStrategy struct{}

func (alwaysHoldStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	return models.HoldAction(0)
}

func (alwaysHoldStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	return "hold"
}

// openOnceStrategy opens a long on the first bar it sees and then holds.
type openOnceStrategy struct {
	opened bool
}

func (s *openOnceStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if !s.opened {
		s.opened = true
		return models.TradeAction{Action: models.ActionOpenLong, Symbol: ctx.Symbol, PositionSizePct: 0.10}
	}
	return models.HoldAction(0)
}

func (s *openOnceStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	return "open once"
}

func newEngineWithStrategy(exchange ExchangeClient, store Store, archetype string, strat strategy.Strategy) *Engine {
	registry := strategy.NewRegistry()
	registry.RegisterArchetype(archetype, strat)
	return &Engine{exchange: exchange, indicators: indicators.DefaultRegistry(), strategies: registry, store: store}
}

func TestEngine_Run_InsufficientCandlesFails(t *testing.T) {
	exchange := &fakeExchange{series: models.CandleSeries{Symbol: "BTCUSDT", Candles: buildCandles(50, time.Now(), 100)}}
	store := newFakeBacktestStore()
	e := newEngineWithStrategy(exchange, store, "momentum", alwaysHoldStrategy{})

	cfg := models.BacktestConfig{
		AgentName: "a1", StrategyArchetype: "momentum", Timeframe: "1h",
		Symbol: "BTCUSDT", StartDate: time.Now(), EndDate: time.Now(), InitialBalance: 10000,
	}
	_, err := e.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error for insufficient candles")
	}
	if !store.failed {
		t.Fatal("expected the run to be marked failed")
	}
}

func TestEngine_Run_UnknownArchetypeFails(t *testing.T) {
	exchange := &fakeExchange{}
	store := newFakeBacktestStore()
	e := NewEngine(exchange, store)

	cfg := models.BacktestConfig{
		AgentName: "a1", StrategyArchetype: "does-not-exist", Timeframe: "1h",
		Symbol: "BTCUSDT", StartDate: time.Now(), EndDate: time.Now(), InitialBalance: 10000,
	}
	_, err := e.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error for an unknown archetype")
	}
	if !store.failed {
		t.Fatal("expected the run to be marked failed")
	}
}

func TestEngine_Run_UnknownTimeframeFails(t *testing.T) {
	exchange := &fakeExchange{}
	store := newFakeBacktestStore()
	e := newEngineWithStrategy(exchange, store, "momentum", alwaysHoldStrategy{})

	cfg := models.BacktestConfig{
		AgentName: "a1", StrategyArchetype: "momentum", Timeframe: "3m",
		Symbol: "BTCUSDT", StartDate: time.Now(), EndDate: time.Now(), InitialBalance: 10000,
	}
	_, err := e.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error for an unknown timeframe")
	}
	if !store.failed {
		t.Fatal("expected the run to be marked failed")
	}
}

func TestEngine_Run_ExchangeErrorFails(t *testing.T) {
	exchange := &fakeExchange{err: errors.New("boom")}
	store := newFakeBacktestStore()
	e := newEngineWithStrategy(exchange, store, "momentum", alwaysHoldStrategy{})

	cfg := models.BacktestConfig{
		AgentName: "a1", StrategyArchetype: "momentum", Timeframe: "1h",
		Symbol: "BTCUSDT", StartDate: time.Now(), EndDate: time.Now(), InitialBalance: 10000,
	}
	_, err := e.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected the exchange error to propagate")
	}
	if !store.failed {
		t.Fatal("expected the run to be marked failed")
	}
}

func TestEngine_Run_HappyPathWithNoTrades(t *testing.T) {
	start := time.Now().Add(-300 * time.Hour)
	exchange := &fakeExchange{series: models.CandleSeries{Symbol: "BTCUSDT", Candles: buildCandles(250, start, 100)}}
	store := newFakeBacktestStore()
	e := newEngineWithStrategy(exchange, store, "momentum", alwaysHoldStrategy{})

	cfg := models.BacktestConfig{
		AgentName: "a1", StrategyArchetype: "momentum", Timeframe: "1h",
		Symbol: "BTCUSDT", StartDate: start, EndDate: start.Add(250 * time.Hour), InitialBalance: 10000,
	}
	run, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != models.BacktestCompleted {
		t.Fatalf("expected completed status, got %s", run.Status)
	}
	if !store.completed {
		t.Fatal("expected CompleteRun to be called")
	}
	if store.completedSt.TotalTrades != 0 {
		t.Fatalf("expected zero trades, got %d", store.completedSt.TotalTrades)
	}
	if !run.FinalEquity.Equal(decimal.NewFromFloat(10000)) {
		t.Fatalf("expected flat equity with no trades, got %s", run.FinalEquity)
	}
}

func TestEngine_Run_ForceClosesOpenPositionAtEnd(t *testing.T) {
	start := time.Now().Add(-300 * time.Hour)
	exchange := &fakeExchange{series: models.CandleSeries{Symbol: "BTCUSDT", Candles: buildCandles(250, start, 100)}}
	store := newFakeBacktestStore()
	e := newEngineWithStrategy(exchange, store, "momentum", &openOnceStrategy{})

	cfg := models.BacktestConfig{
		AgentName: "a1", StrategyArchetype: "momentum", Timeframe: "1h",
		Symbol: "BTCUSDT", StartDate: start, EndDate: start.Add(250 * time.Hour), InitialBalance: 10000,
	}
	run, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != models.BacktestCompleted {
		t.Fatalf("expected completed status, got %s", run.Status)
	}
	if len(store.savedTrades) != 1 {
		t.Fatalf("expected exactly one forced-close trade, got %d", len(store.savedTrades))
	}
	if store.savedTrades[0].ExitReason != models.ExitBacktestEnd {
		t.Fatalf("expected backtest_end exit reason, got %s", store.savedTrades[0].ExitReason)
	}
}

func TestEngine_Run_CancelledContextCancelsRun(t *testing.T) {
	start := time.Now().Add(-300 * time.Hour)
	exchange := &fakeExchange{series: models.CandleSeries{Symbol: "BTCUSDT", Candles: buildCandles(250, start, 100)}}
	store := newFakeBacktestStore()
	e := newEngineWithStrategy(exchange, store, "momentum", alwaysHoldStrategy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := models.BacktestConfig{
		AgentName: "a1", StrategyArchetype: "momentum", Timeframe: "1h",
		Symbol: "BTCUSDT", StartDate: start, EndDate: start.Add(250 * time.Hour), InitialBalance: 10000,
	}
	run, err := e.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.cancelled {
		t.Fatal("expected CancelRun to be called")
	}
	if run.Status != models.BacktestCancelled {
		t.Fatalf("expected cancelled status, got %s", run.Status)
	}
}
