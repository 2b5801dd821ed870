package strategy

import (
	"fmt"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// MomentumStrategy follows the trend: strong moves tend to continue.
type MomentumStrategy struct{}

func (MomentumStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := momentumExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 5) {
		return hold(0.1)
	}

	for _, r := range ctx.Rankings {
		if hasPosition(ctx, r.Symbol) {
			continue
		}
		rsi, ok1 := raw(r, "rsi_14", "value")
		macdHist, ok2 := raw(r, "macd_12_26_9", "histogram")
		adx, ok3 := raw(r, "adx_14", "adx")
		plusDI, ok4 := raw(r, "adx_14", "plus_di")
		minusDI, ok5 := raw(r, "adx_14", "minus_di")
		obvSlope, ok6 := raw(r, "obv", "slope_normalized")
		pve50, ok7 := raw(r, "ema_50", "price_vs_ema_pct")
		pve200, ok8 := raw(r, "ema_200", "price_vs_ema_pct")
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
			continue
		}

		if r.BullishScore >= 0.70 && r.Confidence >= 60 &&
			rsi >= 50 && rsi <= 70 && macdHist > 0 && adx > 25 &&
			plusDI > minusDI && pve50 > 0 && pve200 > 0 && obvSlope > 0 &&
			regimeAllowsDirection(ctx, "long") {
			size := 0.08
			if r.Confidence >= 75 {
				size = 0.15
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.06, Confidence: r.BullishScore,
			}
		}

		if r.BullishScore <= 0.30 && r.Confidence >= 60 &&
			rsi >= 30 && rsi <= 50 && macdHist < 0 && adx > 25 &&
			minusDI > plusDI && pve50 < 0 && pve200 < 0 &&
			regimeAllowsDirection(ctx, "short") {
			size := 0.08
			if r.Confidence >= 75 {
				size = 0.15
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.06, Confidence: 1.0 - r.BullishScore,
			}
		}
	}
	return hold(0.2)
}

func momentumExit(ctx models.AgentContext) (models.TradeAction, bool) {
	for _, pos := range ctx.Portfolio.OpenPositions {
		r := ctx.RankingFor(pos.Symbol)
		if r == nil {
			continue
		}
		rsi, ok1 := raw(*r, "rsi_14", "value")
		pve20, ok2 := raw(*r, "ema_20", "price_vs_ema_pct")
		if !ok1 || !ok2 {
			continue
		}
		if pos.Direction == models.PositionLong && (rsi > 75 || pve20 < 0) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.8}, true
		}
		if pos.Direction == models.PositionShort && (rsi < 25 || pve20 > 0) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.8}, true
		}
	}
	return models.TradeAction{}, false
}

func (MomentumStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "Momentum: no entry/exit conditions met. Holding."
	case models.ActionClose:
		return fmt.Sprintf("Momentum: closing %s — exit signal triggered (RSI extreme or EMA20 cross).", action.Symbol)
	default:
		return fmt.Sprintf("Momentum: opening %s %s — score conditions met, size=%.2f, SL=%.2f, TP=%.2f, confidence=%.2f.",
			directionLabel(action.Action), action.Symbol, action.PositionSizePct, action.StopLossPct, action.TakeProfitPct, action.Confidence)
	}
}

// MeanReversionStrategy buys dips in uptrends, shorts rallies in downtrends.
type MeanReversionStrategy struct{}

func (MeanReversionStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := meanReversionExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 5) {
		return hold(0.1)
	}

	for _, r := range ctx.Rankings {
		if hasPosition(ctx, r.Symbol) {
			continue
		}
		rsi, ok1 := raw(r, "rsi_14", "value")
		pve200, ok2 := raw(r, "ema_200", "price_vs_ema_pct")
		pctB, ok3 := raw(r, "bbands_20_2", "percent_b")
		stochK, ok4 := raw(r, "stoch_14_3_3", "k")
		stochD, ok5 := raw(r, "stoch_14_3_3", "d")
		if !(ok1 && ok2 && ok3 && ok4 && ok5) {
			continue
		}

		if pve200 > 0 && (rsi < 30 || pctB < 0.05) && stochK < 20 && stochK > stochD &&
			r.BullishScore >= 0.20 && r.BullishScore <= 0.45 {
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: 0.10,
				StopLossPct: 0.03, TakeProfitPct: 0.04, Confidence: 0.6,
			}
		}

		if pve200 < 0 && (rsi > 70 || pctB > 0.95) && stochK > 80 && stochK < stochD {
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: 0.10,
				StopLossPct: 0.03, TakeProfitPct: 0.04, Confidence: 0.6,
			}
		}
	}
	return hold(0.2)
}

func meanReversionExit(ctx models.AgentContext) (models.TradeAction, bool) {
	for _, pos := range ctx.Portfolio.OpenPositions {
		r := ctx.RankingFor(pos.Symbol)
		if r == nil {
			continue
		}
		rsi, ok1 := raw(*r, "rsi_14", "value")
		pve20, ok2 := raw(*r, "ema_20", "price_vs_ema_pct")
		if !ok1 || !ok2 {
			continue
		}
		if pos.Direction == models.PositionLong && (absFloat(pve20) < 0.3 || (rsi >= 50 && rsi <= 60)) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionShort && (absFloat(pve20) < 0.3 || (rsi >= 40 && rsi <= 50)) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
	}
	return models.TradeAction{}, false
}

func (MeanReversionStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "MeanReversion: no oversold/overbought conditions in trending context. Holding."
	case models.ActionClose:
		return fmt.Sprintf("MeanReversion: closing %s — price reverted to mean (EMA20/RSI normalized).", action.Symbol)
	default:
		return fmt.Sprintf("MeanReversion: opening %s %s — extreme reading in trending context.", directionLabel(action.Action), action.Symbol)
	}
}

// BreakoutStrategy trades range breaks with volume confirmation.
type BreakoutStrategy struct{}

func (BreakoutStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := breakoutExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 5) || len(ctx.Portfolio.OpenPositions) >= 2 {
		return hold(0.1)
	}

	for _, r := range ctx.Rankings {
		if hasPosition(ctx, r.Symbol) {
			continue
		}
		bandwidth, ok1 := raw(r, "bbands_20_2", "bandwidth")
		pctB, ok2 := raw(r, "bbands_20_2", "percent_b")
		obvSlope, ok3 := raw(r, "obv", "slope_normalized")
		adx, ok4 := raw(r, "adx_14", "adx")
		plusDI, _ := raw(r, "adx_14", "plus_di")
		minusDI, _ := raw(r, "adx_14", "minus_di")
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		isSqueeze := bandwidth < 5

		if isSqueeze && pctB > 1.0 && obvSlope > 2.0 && adx < 25 &&
			r.BullishScore >= 0.55 && r.BullishScore <= 0.75 && regimeAllowsDirection(ctx, "long") {
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: 0.08,
				StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: 0.65,
			}
		}

		if isSqueeze && pctB < 0.0 && obvSlope < -2.0 && adx < 25 && minusDI > plusDI &&
			regimeAllowsDirection(ctx, "short") {
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: 0.08,
				StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: 0.65,
			}
		}
	}
	return hold(0.2)
}

func breakoutExit(ctx models.AgentContext) (models.TradeAction, bool) {
	for _, pos := range ctx.Portfolio.OpenPositions {
		r := ctx.RankingFor(pos.Symbol)
		if r == nil {
			continue
		}
		pctB, ok := raw(*r, "bbands_20_2", "percent_b")
		if !ok {
			continue
		}
		if pctB >= 0.0 && pctB <= 1.0 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.75}, true
		}
	}
	return models.TradeAction{}, false
}

func (BreakoutStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "Breakout: no BB squeeze + breakout conditions detected. Holding."
	case models.ActionClose:
		return fmt.Sprintf("Breakout: closing %s — false breakout, price re-entered Bollinger Bands.", action.Symbol)
	default:
		return fmt.Sprintf("Breakout: opening %s %s — BB squeeze breakout with volume confirmation.", directionLabel(action.Action), action.Symbol)
	}
}

// SwingStrategy captures multi-candle swings in trending markets.
type SwingStrategy struct{}

const swingMaxConcurrent = 3

func (SwingStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := swingExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, swingMaxConcurrent) {
		return hold(0.1)
	}

	for _, r := range ctx.Rankings {
		if hasPosition(ctx, r.Symbol) {
			continue
		}
		rsi, ok1 := raw(r, "rsi_14", "value")
		adx, ok2 := raw(r, "adx_14", "adx")
		pve50, ok3 := raw(r, "ema_50", "price_vs_ema_pct")
		pve200, ok4 := raw(r, "ema_200", "price_vs_ema_pct")
		ema50, ok5 := raw(r, "ema_50", "ema")
		ema200, ok6 := raw(r, "ema_200", "ema")
		stochK, ok7 := raw(r, "stoch_14_3_3", "k")
		stochD, ok8 := raw(r, "stoch_14_3_3", "d")
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
			continue
		}
		if adx < 20 {
			continue
		}

		if pve50 > 0 && pve200 > 0 && ema50 > ema200 &&
			r.BullishScore >= 0.55 && r.Confidence >= 65 &&
			rsi >= 40 && rsi <= 55 && stochK < 50 && stochK > stochD {
			size := 0.12
			if r.Confidence >= 70 {
				size = 0.20
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.08, Confidence: r.BullishScore,
			}
		}

		if pve50 < 0 && pve200 < 0 && ema50 < ema200 &&
			r.BullishScore <= 0.45 && r.Confidence >= 65 &&
			rsi >= 45 && rsi <= 60 && stochK > 50 && stochK < stochD {
			size := 0.12
			if r.Confidence >= 70 {
				size = 0.20
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.08, Confidence: 1.0 - r.BullishScore,
			}
		}
	}
	return hold(0.2)
}

func swingExit(ctx models.AgentContext) (models.TradeAction, bool) {
	for _, pos := range ctx.Portfolio.OpenPositions {
		r := ctx.RankingFor(pos.Symbol)
		if r == nil {
			continue
		}
		rsi, ok1 := raw(*r, "rsi_14", "value")
		pve200, ok2 := raw(*r, "ema_200", "price_vs_ema_pct")
		if !ok1 || !ok2 {
			continue
		}
		if pos.Direction == models.PositionLong && (rsi >= 70 || pve200 < 0) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.8}, true
		}
		if pos.Direction == models.PositionShort && (rsi <= 30 || pve200 > 0) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.8}, true
		}
	}
	return models.TradeAction{}, false
}

func (SwingStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "Swing: no pullback entry in trending market detected. Holding."
	case models.ActionClose:
		return fmt.Sprintf("Swing: closing %s — RSI extreme or trend break detected.", action.Symbol)
	default:
		return fmt.Sprintf("Swing: opening %s %s — pullback in trending market, size=%.2f.", directionLabel(action.Action), action.Symbol, action.PositionSizePct)
	}
}

func directionLabel(action models.ActionType) string {
	if action == models.ActionOpenLong {
		return "LONG"
	}
	return "SHORT"
}
