package strategy

import (
	"fmt"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// HybridMomentumStrategy layers tweet sentiment onto the momentum archetype:
// aligned sentiment relaxes entry thresholds and boosts size, opposing
// sentiment blocks entry or accelerates exit.
type HybridMomentumStrategy struct{}

func (HybridMomentumStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := momentumExit(ctx); ok {
		return close
	}
	if close, ok := tweetReversalExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 3) {
		return hold(0.1)
	}

	tc := ctx.Tweet
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

		longBoosted := tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment > 0.3 && tc.BullishCount >= 2
		longConflict := tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment < -0.2
		bullishThreshold := 0.70
		if longBoosted {
			bullishThreshold = 0.60
		}
		if r.BullishScore >= bullishThreshold && r.Confidence >= 60 &&
			rsi >= 50 && rsi <= 70 && macdHist > 0 && adx > 25 &&
			plusDI > minusDI && pve50 > 0 && pve200 > 0 && obvSlope > 0 &&
			regimeAllowsDirection(ctx, "long") && !longConflict {
			size := 0.08
			if r.Confidence >= 75 {
				size = 0.15
			}
			if longBoosted {
				size = 0.20
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.06, Confidence: r.BullishScore,
			}
		}

		shortBoosted := tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment < -0.3 && tc.BearishCount >= 2
		shortConflict := tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment > 0.2
		bearishThreshold := 0.30
		if shortBoosted {
			bearishThreshold = 0.40
		}
		if r.BullishScore <= bearishThreshold && r.Confidence >= 60 &&
			rsi >= 30 && rsi <= 50 && macdHist < 0 && adx > 25 &&
			minusDI > plusDI && pve50 < 0 && pve200 < 0 && obvSlope < 0 &&
			regimeAllowsDirection(ctx, "short") && !shortConflict {
			size := 0.08
			if r.Confidence >= 75 {
				size = 0.15
			}
			if shortBoosted {
				size = 0.20
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.06, Confidence: 1.0 - r.BullishScore,
			}
		}
	}
	return hold(0.2)
}

func (HybridMomentumStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "HybridMomentum: no sentiment-aligned momentum setup. Holding."
	case models.ActionClose:
		return fmt.Sprintf("HybridMomentum: closing %s — technical or tweet-reversal exit.", action.Symbol)
	default:
		return fmt.Sprintf("HybridMomentum: opening %s %s — momentum confirmed by sentiment, size=%.2f.", directionLabel(action.Action), action.Symbol, action.PositionSizePct)
	}
}

// HybridMeanReversionStrategy layers tweet sentiment onto the mean-reversion
// archetype: extreme crowd fear/greed boosts the contrarian entry, crowd
// agreement with the proposed direction blocks it.
type HybridMeanReversionStrategy struct{}

func (HybridMeanReversionStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := meanReversionExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 5) {
		return hold(0.1)
	}

	tc := ctx.Tweet
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
			r.BullishScore >= 0.20 && r.BullishScore <= 0.45 && regimeAllowsDirection(ctx, "long") {
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment >= 0.4 && tc.BullishCount >= 3 {
				continue
			}
			size := 0.10
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment <= -0.5 {
				size = 0.15
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.03, TakeProfitPct: 0.04, Confidence: 0.6,
			}
		}

		if pve200 < 0 && (rsi > 70 || pctB > 0.95) && stochK > 80 && stochK < stochD &&
			regimeAllowsDirection(ctx, "short") {
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment <= -0.4 && tc.BearishCount >= 3 {
				continue
			}
			size := 0.10
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment >= 0.5 {
				size = 0.15
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.03, TakeProfitPct: 0.04, Confidence: 0.6,
			}
		}
	}
	return hold(0.2)
}

func (HybridMeanReversionStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "HybridMeanReversion: no sentiment-confirmed reversal. Holding."
	case models.ActionClose:
		return fmt.Sprintf("HybridMeanReversion: closing %s — reversion technical exit.", action.Symbol)
	default:
		return fmt.Sprintf("HybridMeanReversion: opening %s %s — contrarian entry, size=%.2f.", directionLabel(action.Action), action.Symbol, action.PositionSizePct)
	}
}

// HybridBreakoutStrategy layers tweet mentions onto the breakout archetype:
// a mentioned symbol gets a larger base size, opposing sentiment halves it.
type HybridBreakoutStrategy struct{}

func (HybridBreakoutStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := breakoutExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 5) {
		return hold(0.1)
	}

	tc := ctx.Tweet
	for _, r := range ctx.Rankings {
		if hasPosition(ctx, r.Symbol) {
			continue
		}
		bandwidth, ok1 := raw(r, "bbands_20_2", "bandwidth")
		pctB, ok2 := raw(r, "bbands_20_2", "percent_b")
		obvSlope, ok3 := raw(r, "obv", "slope_normalized")
		adx, ok4 := raw(r, "adx_14", "adx")
		minusDI, ok5 := raw(r, "adx_14", "minus_di")
		plusDI, ok6 := raw(r, "adx_14", "plus_di")
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		isSqueeze := bandwidth < 5

		mentioned := tc != nil && contains(tc.MostMentionedSymbols, r.Symbol)

		if isSqueeze && pctB > 1.0 && obvSlope > 2.0 && adx < 25 &&
			r.BullishScore >= 0.55 && r.BullishScore <= 0.75 && regimeAllowsDirection(ctx, "long") {
			size := 0.08
			if mentioned {
				size = 0.12
			}
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment < -0.2 {
				size *= 0.5
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: 0.65,
			}
		}

		if !ok5 || !ok6 {
			continue
		}
		if isSqueeze && pctB < 0.0 && obvSlope < -2.0 && adx < 25 && minusDI > plusDI &&
			regimeAllowsDirection(ctx, "short") {
			size := 0.08
			if mentioned {
				size = 0.12
			}
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment > 0.2 {
				size *= 0.5
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: 0.65,
			}
		}
	}
	return hold(0.2)
}

func (HybridBreakoutStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "HybridBreakout: no squeeze breakout with sentiment support. Holding."
	case models.ActionClose:
		return fmt.Sprintf("HybridBreakout: closing %s — false breakout, price re-entered bands.", action.Symbol)
	default:
		return fmt.Sprintf("HybridBreakout: opening %s %s — squeeze breakout, size=%.2f.", directionLabel(action.Action), action.Symbol, action.PositionSizePct)
	}
}

// HybridSwingStrategy layers tweet sentiment onto the swing archetype: a
// confirming crowd boosts size up to a cap, an opposing crowd blocks entry
// and accelerates exit.
type HybridSwingStrategy struct{}

func (HybridSwingStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := swingExit(ctx); ok {
		return close
	}
	if close, ok := tweetReversalExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 3) {
		return hold(0.1)
	}

	tc := ctx.Tweet
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

		if pve50 > 0 && pve200 > 0 && ema50 > ema200 && r.BullishScore >= 0.55 && r.Confidence >= 65 &&
			rsi >= 40 && rsi <= 55 && stochK < 50 && stochK > stochD && regimeAllowsDirection(ctx, "long") {
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment < -0.2 && tc.BearishCount >= 2 {
				continue
			}
			size := 0.12
			if r.Confidence >= 70 {
				size = 0.20
			}
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment > 0.3 && tc.BullishCount >= 2 {
				size = minFloat(size+0.05, 0.25)
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.08, Confidence: r.BullishScore,
			}
		}

		if pve50 < 0 && pve200 < 0 && ema50 < ema200 && r.BullishScore <= 0.45 && r.Confidence >= 65 &&
			rsi >= 45 && rsi <= 60 && stochK > 50 && stochK < stochD && regimeAllowsDirection(ctx, "short") {
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment > 0.2 && tc.BullishCount >= 2 {
				continue
			}
			size := 0.12
			if r.Confidence >= 70 {
				size = 0.20
			}
			if tc != nil && len(tc.Signals) > 0 && tc.AvgSentiment < -0.3 && tc.BearishCount >= 2 {
				size = minFloat(size+0.05, 0.25)
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: r.Symbol, PositionSizePct: size,
				StopLossPct: 0.04, TakeProfitPct: 0.08, Confidence: 1.0 - r.BullishScore,
			}
		}
	}
	return hold(0.2)
}

func (HybridSwingStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "HybridSwing: no sentiment-confirmed swing setup in a trending regime. Holding."
	case models.ActionClose:
		return fmt.Sprintf("HybridSwing: closing %s — trend exhaustion or tweet reversal.", action.Symbol)
	default:
		return fmt.Sprintf("HybridSwing: opening %s %s — swing trend entry, size=%.2f.", directionLabel(action.Action), action.Symbol, action.PositionSizePct)
	}
}

// tweetReversalExit accelerates an exit when sentiment has sharply turned
// against an open position, shared by the momentum and swing hybrids.
func tweetReversalExit(ctx models.AgentContext) (models.TradeAction, bool) {
	tc := ctx.Tweet
	if tc == nil || len(tc.Signals) == 0 {
		return models.TradeAction{}, false
	}
	for _, pos := range ctx.Portfolio.OpenPositions {
		if pos.Direction == models.PositionLong && tc.AvgSentiment < -0.3 && tc.BearishCount >= 3 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionShort && tc.AvgSentiment > 0.3 && tc.BullishCount >= 3 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
	}
	return models.TradeAction{}, false
}
