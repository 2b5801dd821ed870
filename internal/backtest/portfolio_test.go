package backtest

import (
	"testing"
	"time"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

func TestSimPortfolio_OpenAndCloseLong(t *testing.T) {
	p := NewSimPortfolio(10000)
	prices := map[string]float64{"BTCUSDT": 100}

	opened := p.OpenPosition("BTCUSDT", models.PositionLong, 100, 0.10, nil, nil, time.Now(), prices)
	if !opened {
		t.Fatal("expected position to open")
	}
	if _, exists := p.Positions["BTCUSDT"]; !exists {
		t.Fatal("expected open position to be tracked")
	}
	if p.Cash >= 10000 {
		t.Fatalf("expected cash to be drawn down, got %f", p.Cash)
	}

	trade := p.ClosePosition("BTCUSDT", 110, models.ExitAgentDecision, time.Now())
	if trade == nil {
		t.Fatal("expected a trade record")
	}
	if trade.PnL <= 0 {
		t.Fatalf("expected a winning trade, got pnl %f", trade.PnL)
	}
	if _, exists := p.Positions["BTCUSDT"]; exists {
		t.Fatal("expected position to be removed after close")
	}
}

func TestSimPortfolio_OpenPositionRejectsDuplicateSymbol(t *testing.T) {
	p := NewSimPortfolio(10000)
	prices := map[string]float64{"BTCUSDT": 100}
	p.OpenPosition("BTCUSDT", models.PositionLong, 100, 0.10, nil, nil, time.Now(), prices)

	if p.OpenPosition("BTCUSDT", models.PositionLong, 100, 0.10, nil, nil, time.Now(), prices) {
		t.Fatal("expected duplicate open to be rejected")
	}
}

func TestSimPortfolio_OpenPositionRejectsAtConcurrencyCap(t *testing.T) {
	p := NewSimPortfolio(100000)
	prices := map[string]float64{}
	symbols := []string{"A", "B", "C", "D", "E"}
	for _, s := range symbols {
		prices[s] = 100
		if !p.OpenPosition(s, models.PositionLong, 100, 0.05, nil, nil, time.Now(), prices) {
			t.Fatalf("expected %s to open under the cap", s)
		}
	}

	prices["F"] = 100
	if p.OpenPosition("F", models.PositionLong, 100, 0.05, nil, nil, time.Now(), prices) {
		t.Fatal("expected position beyond the concurrency cap to be rejected")
	}
}

func TestSimPortfolio_CheckStopLossTakeProfit_LongStopLoss(t *testing.T) {
	p := NewSimPortfolio(10000)
	prices := map[string]float64{"BTCUSDT": 100}
	sl := 0.05
	p.OpenPosition("BTCUSDT", models.PositionLong, 100, 0.10, &sl, nil, time.Now(), prices)

	closed := p.CheckStopLossTakeProfit(
		map[string]float64{"BTCUSDT": 101},
		map[string]float64{"BTCUSDT": 90},
		time.Now(),
	)

	if len(closed) != 1 {
		t.Fatalf("expected one stop-loss close, got %d", len(closed))
	}
	if closed[0].ExitReason != models.ExitStopLoss {
		t.Fatalf("expected stop_loss exit reason, got %s", closed[0].ExitReason)
	}
	if closed[0].PnL >= 0 {
		t.Fatalf("expected a losing trade, got pnl %f", closed[0].PnL)
	}
}

func TestSimPortfolio_CheckStopLossTakeProfit_ShortTakeProfit(t *testing.T) {
	p := NewSimPortfolio(10000)
	prices := map[string]float64{"BTCUSDT": 100}
	tp := 0.05
	p.OpenPosition("BTCUSDT", models.PositionShort, 100, 0.10, nil, &tp, time.Now(), prices)

	closed := p.CheckStopLossTakeProfit(
		map[string]float64{"BTCUSDT": 101},
		map[string]float64{"BTCUSDT": 94},
		time.Now(),
	)

	if len(closed) != 1 {
		t.Fatalf("expected one take-profit close, got %d", len(closed))
	}
	if closed[0].ExitReason != models.ExitTakeProfit {
		t.Fatalf("expected take_profit exit reason, got %s", closed[0].ExitReason)
	}
	if closed[0].PnL <= 0 {
		t.Fatalf("expected a winning trade, got pnl %f", closed[0].PnL)
	}
}

func TestSimPortfolio_CheckStopLossTakeProfit_NoTriggerLeavesPositionOpen(t *testing.T) {
	p := NewSimPortfolio(10000)
	prices := map[string]float64{"BTCUSDT": 100}
	sl, tp := 0.05, 0.05
	p.OpenPosition("BTCUSDT", models.PositionLong, 100, 0.10, &sl, &tp, time.Now(), prices)

	closed := p.CheckStopLossTakeProfit(
		map[string]float64{"BTCUSDT": 102},
		map[string]float64{"BTCUSDT": 98},
		time.Now(),
	)

	if len(closed) != 0 {
		t.Fatalf("expected no closes, got %d", len(closed))
	}
	if _, exists := p.Positions["BTCUSDT"]; !exists {
		t.Fatal("expected position to remain open")
	}
}

func TestSimPortfolio_Stats_WinRateAndDrawdown(t *testing.T) {
	p := NewSimPortfolio(10000)
	now := time.Now()

	p.UpdateEquity(map[string]float64{}, now)
	p.EquityCurve[0].Equity = 10000

	prices := map[string]float64{"BTCUSDT": 100}
	p.OpenPosition("BTCUSDT", models.PositionLong, 100, 0.20, nil, nil, now, prices)
	p.UpdateEquity(map[string]float64{"BTCUSDT": 80}, now.Add(time.Hour))
	p.ClosePosition("BTCUSDT", 80, models.ExitAgentDecision, now.Add(time.Hour))
	p.UpdateEquity(map[string]float64{"BTCUSDT": 80}, now.Add(2*time.Hour))

	stats := p.Stats()
	if stats.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", stats.TotalTrades)
	}
	if stats.WinningTrades != 0 {
		t.Fatalf("expected a losing trade, got %d winners", stats.WinningTrades)
	}
	if stats.MaxDrawdownPct <= 0 {
		t.Fatalf("expected positive drawdown, got %f", stats.MaxDrawdownPct)
	}
	if stats.TotalPnL >= 0 {
		t.Fatalf("expected negative total pnl, got %f", stats.TotalPnL)
	}
}

func TestSimPortfolio_Stats_SharpeNilUnderTwoPoints(t *testing.T) {
	p := NewSimPortfolio(10000)
	p.UpdateEquity(map[string]float64{}, time.Now())

	stats := p.Stats()
	if stats.SharpeRatio != nil {
		t.Fatalf("expected nil sharpe with a single equity point, got %v", *stats.SharpeRatio)
	}
}

func TestSimPortfolio_Stats_SharpeNilWhenFlat(t *testing.T) {
	p := NewSimPortfolio(10000)
	now := time.Now()
	for i := 0; i < 5; i++ {
		p.UpdateEquity(map[string]float64{}, now.Add(time.Duration(i)*time.Hour))
	}

	stats := p.Stats()
	if stats.SharpeRatio != nil {
		t.Fatalf("expected nil sharpe for a zero-variance equity curve, got %v", *stats.SharpeRatio)
	}
}

func TestSimPortfolio_AvailableForNewPosition_ZeroAtConcurrencyCap(t *testing.T) {
	p := NewSimPortfolio(100000)
	prices := map[string]float64{}
	for _, s := range []string{"A", "B", "C", "D", "E"} {
		prices[s] = 100
		p.OpenPosition(s, models.PositionLong, 100, 0.05, nil, nil, time.Now(), prices)
	}

	if avail := p.AvailableForNewPosition(prices); avail != 0 {
		t.Fatalf("expected zero availability at the concurrency cap, got %f", avail)
	}
}
