package backtest

import (
	"math"
	"time"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

const (
	tradingFeePct          = 0.001
	maxPositionSizePct     = 0.25
	maxConcurrentPositions = 5
)

// SimPosition is an open position inside a SimPortfolio.
type SimPosition struct {
	Symbol       string
	Direction    models.PositionSide
	EntryPrice   float64
	PositionSize float64
	StopLoss     *float64
	TakeProfit   *float64
	OpenedAt     time.Time
}

// SimTrade is a closed position's record.
type SimTrade struct {
	Symbol          string
	Direction       models.PositionSide
	EntryPrice      float64
	ExitPrice       float64
	PositionSize    float64
	PnL             float64
	Fees            float64
	ExitReason      models.ExitReason
	OpenedAt        time.Time
	ClosedAt        time.Time
	DurationMinutes int
}

// EquitySnapshot is one point on the backtest's equity curve.
type EquitySnapshot struct {
	Timestamp time.Time
	Equity    float64
}

// SimPortfolio mirrors internal/portfolio.Manager (C8) in memory, with no
// persistence — one portfolio, single-symbol, for the backtest engine.
type SimPortfolio struct {
	Cash           float64
	InitialBalance float64
	Positions      map[string]*SimPosition
	Trades         []SimTrade
	EquityCurve    []EquitySnapshot
	PeakEquity     float64
}

// NewSimPortfolio starts a portfolio with initialBalance cash and no
// positions.
func NewSimPortfolio(initialBalance float64) *SimPortfolio {
	return &SimPortfolio{
		Cash:           initialBalance,
		InitialBalance: initialBalance,
		Positions:      make(map[string]*SimPosition),
		PeakEquity:     initialBalance,
	}
}

func (p *SimPortfolio) equity(prices map[string]float64) float64 {
	equity := p.Cash
	for symbol, pos := range p.Positions {
		price, ok := prices[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		var unrealized float64
		if pos.Direction == models.PositionLong {
			unrealized = (price - pos.EntryPrice) / pos.EntryPrice * pos.PositionSize
		} else {
			unrealized = (pos.EntryPrice - price) / pos.EntryPrice * pos.PositionSize
		}
		equity += pos.PositionSize + unrealized
	}
	return equity
}

// AvailableForNewPosition is the cash a new position may draw on, capped by
// the concurrency limit and the max-position-size fraction of equity.
func (p *SimPortfolio) AvailableForNewPosition(prices map[string]float64) float64 {
	if len(p.Positions) >= maxConcurrentPositions {
		return 0
	}
	equity := p.equity(prices)
	maxSize := equity * maxPositionSizePct
	return math.Min(p.Cash, maxSize)
}

// OpenPosition opens symbol if there's no existing position in it, a free
// concurrency slot, and enough cash for the sized entry plus its fee.
func (p *SimPortfolio) OpenPosition(symbol string, direction models.PositionSide, price, sizePct float64, slPct, tpPct *float64, timestamp time.Time, prices map[string]float64) bool {
	if _, exists := p.Positions[symbol]; exists {
		return false
	}
	if len(p.Positions) >= maxConcurrentPositions {
		return false
	}

	equity := p.equity(prices)
	positionSize := equity * math.Min(sizePct, maxPositionSizePct)
	entryFee := positionSize * tradingFeePct
	if p.Cash < positionSize+entryFee {
		return false
	}

	var stopLoss, takeProfit *float64
	if slPct != nil {
		var sl float64
		if direction == models.PositionLong {
			sl = price * (1 - *slPct)
		} else {
			sl = price * (1 + *slPct)
		}
		stopLoss = &sl
	}
	if tpPct != nil {
		var tp float64
		if direction == models.PositionLong {
			tp = price * (1 + *tpPct)
		} else {
			tp = price * (1 - *tpPct)
		}
		takeProfit = &tp
	}

	p.Positions[symbol] = &SimPosition{
		Symbol:       symbol,
		Direction:    direction,
		EntryPrice:   price,
		PositionSize: positionSize,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		OpenedAt:     timestamp,
	}
	p.Cash -= positionSize + entryFee
	return true
}

// ClosePosition closes symbol at price, recording the trade. Returns nil if
// no position was open.
func (p *SimPortfolio) ClosePosition(symbol string, price float64, reason models.ExitReason, timestamp time.Time) *SimTrade {
	pos, ok := p.Positions[symbol]
	if !ok {
		return nil
	}
	delete(p.Positions, symbol)

	var pnl float64
	if pos.Direction == models.PositionLong {
		pnl = (price - pos.EntryPrice) / pos.EntryPrice * pos.PositionSize
	} else {
		pnl = (pos.EntryPrice - price) / pos.EntryPrice * pos.PositionSize
	}
	exitFee := pos.PositionSize * tradingFeePct
	netPnL := pnl - exitFee

	duration := int(timestamp.Sub(pos.OpenedAt).Minutes())
	if duration < 1 {
		duration = 1
	}

	trade := SimTrade{
		Symbol:          symbol,
		Direction:       pos.Direction,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       price,
		PositionSize:    pos.PositionSize,
		PnL:             netPnL,
		Fees:            exitFee,
		ExitReason:      reason,
		OpenedAt:        pos.OpenedAt,
		ClosedAt:        timestamp,
		DurationMinutes: duration,
	}
	p.Trades = append(p.Trades, trade)
	p.Cash += pos.PositionSize + netPnL
	return &trade
}

// CheckStopLossTakeProfit closes any position whose stop-loss or
// take-profit was crossed by the current candle's high/low, same semantics
// as internal/portfolio.Manager.CheckStopLossTakeProfit.
func (p *SimPortfolio) CheckStopLossTakeProfit(candleHigh, candleLow map[string]float64, timestamp time.Time) []SimTrade {
	var closed []SimTrade
	for symbol, pos := range p.Positions {
		high, hasHigh := candleHigh[symbol]
		low, hasLow := candleLow[symbol]
		if !hasHigh || !hasLow {
			continue
		}

		if pos.StopLoss != nil {
			if pos.Direction == models.PositionLong && low <= *pos.StopLoss {
				if t := p.ClosePosition(symbol, *pos.StopLoss, models.ExitStopLoss, timestamp); t != nil {
					closed = append(closed, *t)
				}
				continue
			}
			if pos.Direction == models.PositionShort && high >= *pos.StopLoss {
				if t := p.ClosePosition(symbol, *pos.StopLoss, models.ExitStopLoss, timestamp); t != nil {
					closed = append(closed, *t)
				}
				continue
			}
		}
		if pos.TakeProfit != nil {
			if pos.Direction == models.PositionLong && high >= *pos.TakeProfit {
				if t := p.ClosePosition(symbol, *pos.TakeProfit, models.ExitTakeProfit, timestamp); t != nil {
					closed = append(closed, *t)
				}
				continue
			}
			if pos.Direction == models.PositionShort && low <= *pos.TakeProfit {
				if t := p.ClosePosition(symbol, *pos.TakeProfit, models.ExitTakeProfit, timestamp); t != nil {
					closed = append(closed, *t)
				}
				continue
			}
		}
	}
	return closed
}

// UpdateEquity appends the current mark-to-market equity to the curve and
// advances the running peak.
func (p *SimPortfolio) UpdateEquity(prices map[string]float64, timestamp time.Time) {
	equity := p.equity(prices)
	if equity > p.PeakEquity {
		p.PeakEquity = equity
	}
	p.EquityCurve = append(p.EquityCurve, EquitySnapshot{Timestamp: timestamp, Equity: equity})
}

// Stats is the final summary a completed backtest run persists.
type Stats struct {
	FinalEquity    float64
	TotalPnL       float64
	TotalTrades    int
	WinningTrades  int
	MaxDrawdownPct float64
	SharpeRatio    *float64
	EquityCurve    []EquitySnapshot
}

// Stats computes the closing summary: PnL, win count, max drawdown from
// the running peak, and a Sharpe ratio over equity-curve returns (nil when
// fewer than two points or a degenerate zero-variance series).
func (p *SimPortfolio) Stats() Stats {
	finalEquity := p.InitialBalance
	if n := len(p.EquityCurve); n > 0 {
		finalEquity = p.EquityCurve[n-1].Equity
	}

	winning := 0
	for _, t := range p.Trades {
		if t.PnL > 0 {
			winning++
		}
	}

	peak := p.InitialBalance
	maxDD := 0.0
	for _, snap := range p.EquityCurve {
		if snap.Equity > peak {
			peak = snap.Equity
		}
		if peak > 0 {
			dd := (peak - snap.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return Stats{
		FinalEquity:    finalEquity,
		TotalPnL:       finalEquity - p.InitialBalance,
		TotalTrades:    len(p.Trades),
		WinningTrades:  winning,
		MaxDrawdownPct: maxDD * 100,
		SharpeRatio:    sharpeRatio(p.EquityCurve),
		EquityCurve:    p.EquityCurve,
	}
}

func sharpeRatio(curve []EquitySnapshot) *float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return nil
	}

	sharpe := (mean / stdDev) * math.Sqrt(float64(len(returns)))
	return &sharpe
}
