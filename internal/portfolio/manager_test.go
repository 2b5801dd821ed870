package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

type fakeStore struct {
	portfolio  *models.AgentPortfolio
	positions  []models.AgentPosition
	symbolIDs  map[string]int
	nextPosID  int
	nextTradeID int64
	trades     []models.AgentTrade
}

func newFakeStore(portfolio models.AgentPortfolio, symbols map[string]int) *fakeStore {
	return &fakeStore{portfolio: &portfolio, symbolIDs: symbols, nextPosID: 1, nextTradeID: 1}
}

func (s *fakeStore) GetPortfolio(ctx context.Context, agentID int) (*models.AgentPortfolio, error) {
	if s.portfolio == nil {
		return nil, nil
	}
	cp := *s.portfolio
	return &cp, nil
}

func (s *fakeStore) GetOpenPositions(ctx context.Context, agentID int) ([]models.AgentPosition, error) {
	out := make([]models.AgentPosition, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

func (s *fakeStore) SymbolID(ctx context.Context, symbol string) (int, bool, error) {
	id, ok := s.symbolIDs[symbol]
	return id, ok, nil
}

func (s *fakeStore) CreatePosition(ctx context.Context, position models.AgentPosition) (*models.AgentPosition, error) {
	for i, p := range s.positions {
		if p.ID == position.ID && position.ID != 0 {
			s.positions[i] = position
			cp := position
			return &cp, nil
		}
	}
	position.ID = s.nextPosID
	s.nextPosID++
	s.positions = append(s.positions, position)
	cp := position
	return &cp, nil
}

func (s *fakeStore) DeletePosition(ctx context.Context, positionID int) error {
	for i, p := range s.positions {
		if p.ID == positionID {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeStore) SavePortfolio(ctx context.Context, portfolio models.AgentPortfolio) error {
	cp := portfolio
	s.portfolio = &cp
	return nil
}

func (s *fakeStore) CreateTrade(ctx context.Context, trade models.AgentTrade) (*models.AgentTrade, error) {
	trade.ID = s.nextTradeID
	s.nextTradeID++
	s.trades = append(s.trades, trade)
	cp := trade
	return &cp, nil
}

func (s *fakeStore) SumTradePnL(ctx context.Context, agentID int) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range s.trades {
		sum = sum.Add(t.PnL)
	}
	return sum, nil
}

func basePortfolio() models.AgentPortfolio {
	return models.AgentPortfolio{
		AgentID:     1,
		CashBalance: decimal.NewFromInt(10000),
		TotalEquity: decimal.NewFromInt(10000),
	}
}

func TestValidate_RejectsOverMaxPositionSize(t *testing.T) {
	store := newFakeStore(basePortfolio(), map[string]int{"BTCUSDT": 1})
	m := NewManager(store)

	action := models.TradeAction{Action: models.ActionOpenLong, Symbol: "BTCUSDT", PositionSizePct: 0.30}
	result, err := m.Validate(context.Background(), 1, action, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected validation to fail for oversized position")
	}
}

func TestValidate_RejectsWhenAtMaxConcurrentPositions(t *testing.T) {
	portfolio := basePortfolio()
	store := newFakeStore(portfolio, map[string]int{"BTCUSDT": 1, "ETHUSDT": 2})
	for i := 0; i < maxConcurrentPositions; i++ {
		store.positions = append(store.positions, models.AgentPosition{ID: i + 1, Symbol: "SYM" + string(rune('A'+i))})
	}

	m := NewManager(store)
	action := models.TradeAction{Action: models.ActionOpenLong, Symbol: "BTCUSDT", PositionSizePct: 0.10}
	result, err := m.Validate(context.Background(), 1, action, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected validation to fail at max concurrent positions")
	}
}

func TestValidate_RejectsInsufficientCash(t *testing.T) {
	portfolio := basePortfolio()
	portfolio.CashBalance = decimal.NewFromInt(100)
	store := newFakeStore(portfolio, map[string]int{"BTCUSDT": 1})

	m := NewManager(store)
	action := models.TradeAction{Action: models.ActionOpenLong, Symbol: "BTCUSDT", PositionSizePct: 0.25}
	result, err := m.Validate(context.Background(), 1, action, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected validation to fail for insufficient cash")
	}
}

func TestOpenPosition_ReservesNotionalAndFeeFromCash(t *testing.T) {
	store := newFakeStore(basePortfolio(), map[string]int{"BTCUSDT": 1})
	m := NewManager(store)

	action := models.TradeAction{Action: models.ActionOpenLong, Symbol: "BTCUSDT", PositionSizePct: 0.25, StopLossPct: 0.05, TakeProfitPct: 0.10}
	result, err := m.OpenPosition(context.Background(), 1, action, decimal.NewFromInt(50000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %s", result.ErrorMessage)
	}

	wantNotional := decimal.NewFromInt(2500)
	wantFee := wantNotional.Mul(decimal.NewFromFloat(tradingFeePct))
	wantCash := decimal.NewFromInt(10000).Sub(wantNotional).Sub(wantFee)
	if !store.portfolio.CashBalance.Equal(wantCash) {
		t.Errorf("got cash %s want %s", store.portfolio.CashBalance, wantCash)
	}
	if len(store.positions) != 1 {
		t.Fatalf("expected 1 stored position, got %d", len(store.positions))
	}
	if store.positions[0].StopLoss == nil || store.positions[0].TakeProfit == nil {
		t.Fatal("expected stop loss and take profit to be set")
	}
}

func TestClosePosition_RealizesPnLAndCreditsCash(t *testing.T) {
	portfolio := basePortfolio()
	portfolio.CashBalance = decimal.NewFromInt(7475)
	store := newFakeStore(portfolio, map[string]int{"BTCUSDT": 1})
	store.positions = []models.AgentPosition{{
		ID: 1, AgentID: 1, SymbolID: 1, Symbol: "BTCUSDT",
		Direction: models.PositionLong, EntryPrice: decimal.NewFromInt(50000),
		PositionSize: decimal.NewFromInt(2500), OpenedAt: time.Now().Add(-time.Hour),
	}}

	m := NewManager(store)
	result, err := m.ClosePosition(context.Background(), 1, "BTCUSDT", decimal.NewFromInt(55000), models.ExitAgentDecision, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %s", result.ErrorMessage)
	}

	wantPnL := decimal.NewFromInt(5000).Mul(decimal.NewFromInt(2500)).Div(decimal.NewFromInt(50000))
	wantFee := decimal.NewFromInt(2500).Mul(decimal.NewFromFloat(tradingFeePct))
	wantNetPnL := wantPnL.Sub(wantFee)
	if !result.Trade.PnL.Equal(wantNetPnL) {
		t.Errorf("got pnl %s want %s", result.Trade.PnL, wantNetPnL)
	}
	if len(store.positions) != 0 {
		t.Error("expected position to be removed")
	}
}

func TestCheckStopLossTakeProfit_StopLossHitBeforeTakeProfitOnSameCandle(t *testing.T) {
	portfolio := basePortfolio()
	store := newFakeStore(portfolio, map[string]int{"BTCUSDT": 1})
	sl := decimal.NewFromInt(48000)
	tp := decimal.NewFromInt(55000)
	store.positions = []models.AgentPosition{{
		ID: 1, AgentID: 1, SymbolID: 1, Symbol: "BTCUSDT",
		Direction: models.PositionLong, EntryPrice: decimal.NewFromInt(50000),
		PositionSize: decimal.NewFromInt(1000), StopLoss: &sl, TakeProfit: &tp,
		OpenedAt: time.Now().Add(-time.Hour),
	}}

	m := NewManager(store)
	results, err := m.CheckStopLossTakeProfit(context.Background(), 1, map[string]CandleExtremes{
		"BTCUSDT": {High: decimal.NewFromInt(56000), Low: decimal.NewFromInt(47000), Close: decimal.NewFromInt(49000)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one close, got %d", len(results))
	}
	if results[0].Trade.ExitReason != models.ExitStopLoss {
		t.Errorf("expected stop loss to win, got %s", results[0].Trade.ExitReason)
	}
}

func TestReconcile_FlagsDiscrepancyBeyondEpsilon(t *testing.T) {
	portfolio := basePortfolio()
	portfolio.TotalRealizedPnL = decimal.NewFromFloat(10.00)
	store := newFakeStore(portfolio, nil)
	store.trades = []models.AgentTrade{{PnL: decimal.NewFromFloat(10.50)}}

	m := NewManager(store)
	report, err := m.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Consistent {
		t.Fatal("expected a 0.5 discrepancy to fail reconciliation")
	}
}

func TestReconcile_WithinEpsilonIsConsistent(t *testing.T) {
	portfolio := basePortfolio()
	portfolio.TotalRealizedPnL = decimal.NewFromFloat(10.00)
	store := newFakeStore(portfolio, nil)
	store.trades = []models.AgentTrade{{PnL: decimal.NewFromFloat(10.004)}}

	m := NewManager(store)
	report, err := m.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected consistency within epsilon, got discrepancy %s", report.RealizedDiscrepancy)
	}
}

func TestCloseAll_ClosesEveryOpenPositionWithAvailablePrice(t *testing.T) {
	store := newFakeStore(basePortfolio(), map[string]int{"BTCUSDT": 1, "ETHUSDT": 2})
	store.positions = []models.AgentPosition{
		{ID: 1, AgentID: 1, SymbolID: 1, Symbol: "BTCUSDT", Direction: models.PositionLong, EntryPrice: decimal.NewFromInt(100), PositionSize: decimal.NewFromInt(100), OpenedAt: time.Now()},
		{ID: 2, AgentID: 1, SymbolID: 2, Symbol: "ETHUSDT", Direction: models.PositionLong, EntryPrice: decimal.NewFromInt(100), PositionSize: decimal.NewFromInt(100), OpenedAt: time.Now()},
	}

	m := NewManager(store)
	results, err := m.CloseAll(context.Background(), 1, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(110)}, models.ExitAgentPaused)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the priced symbol to close, got %d", len(results))
	}
	if len(store.positions) != 1 || store.positions[0].Symbol != "ETHUSDT" {
		t.Errorf("expected ETHUSDT to remain open, got %+v", store.positions)
	}
}
