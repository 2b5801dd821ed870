package strategy

import (
	"fmt"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

const crossMaxConcurrent = 3

// CrossConfluenceStrategy only trades when 3+ timeframes agree.
type CrossConfluenceStrategy struct{}

func (CrossConfluenceStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := crossConfluenceExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, crossMaxConcurrent) {
		return hold(0.1)
	}
	if ctx.CrossTF == nil {
		return hold(0.0)
	}

	trend, confidence, hasRegime := higherTFTrend(ctx)

	for _, symbol := range ctx.CrossTF.BullishConfluence {
		if hasPosition(ctx, symbol) {
			continue
		}
		if hasRegime && trend == "bear" && confidence >= 60 {
			continue
		}
		scale := 1.0
		switch {
		case hasRegime && trend == "bull" && confidence >= 60:
			scale = minFloat(1.5, 1.0+confidence/200)
		case hasRegime && trend == "mixed":
			scale = 0.7
		}
		size := minFloat(0.25, roundTo2(0.18*scale))
		return models.TradeAction{
			Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: size,
			StopLossPct: 0.06, TakeProfitPct: 0.12, Confidence: 0.8,
		}
	}

	for _, symbol := range ctx.CrossTF.BearishConfluence {
		if hasPosition(ctx, symbol) {
			continue
		}
		if hasRegime && trend == "bull" && confidence >= 60 {
			continue
		}
		scale := 1.0
		switch {
		case hasRegime && trend == "bear" && confidence >= 60:
			scale = minFloat(1.5, 1.0+confidence/200)
		case hasRegime && trend == "mixed":
			scale = 0.7
		}
		size := minFloat(0.25, roundTo2(0.18*scale))
		return models.TradeAction{
			Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: size,
			StopLossPct: 0.06, TakeProfitPct: 0.12, Confidence: 0.8,
		}
	}
	return hold(0.2)
}

func crossConfluenceExit(ctx models.AgentContext) (models.TradeAction, bool) {
	if ctx.CrossTF == nil {
		return models.TradeAction{}, false
	}
	for _, pos := range ctx.Portfolio.OpenPositions {
		if pos.Direction == models.PositionLong && !contains(ctx.CrossTF.BullishConfluence, pos.Symbol) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionShort && !contains(ctx.CrossTF.BearishConfluence, pos.Symbol) {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
	}
	return models.TradeAction{}, false
}

func (CrossConfluenceStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "CrossConfluence: no multi-TF agreement found. Holding."
	case models.ActionClose:
		return fmt.Sprintf("CrossConfluence: closing %s — dropped from confluence list.", action.Symbol)
	default:
		return fmt.Sprintf("CrossConfluence: opening %s %s — 3+ timeframes aligned, size=%.2f.", directionLabel(action.Action), action.Symbol, action.PositionSizePct)
	}
}

// CrossDivergenceStrategy trades short/long-term signal disagreement —
// the long-term trend wins.
type CrossDivergenceStrategy struct{}

func (CrossDivergenceStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := crossDivergenceExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, 5) {
		return hold(0.1)
	}
	if trend, confidence, ok := higherTFTrend(ctx); ok && trend == "mixed" && confidence >= 60 {
		return hold(0.2)
	}
	if ctx.CrossTF == nil || len(ctx.CrossTF.ScoreByTF) == 0 {
		return hold(0.0)
	}

	for symbol, scores := range ctx.CrossTF.ScoreByTF {
		if hasPosition(ctx, symbol) {
			continue
		}
		ltAvg, ltOK := averageScores(scores, "1d", "1w")
		stAvg, stOK := averageScores(scores, "15m", "1h")
		if !ltOK || !stOK {
			continue
		}

		if ltAvg >= 0.60 && stAvg <= 0.35 {
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: 0.10,
				StopLossPct: 0.05, TakeProfitPct: 0.08, Confidence: 0.6,
			}
		}
		if ltAvg <= 0.40 && stAvg >= 0.65 {
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: 0.10,
				StopLossPct: 0.05, TakeProfitPct: 0.08, Confidence: 0.6,
			}
		}
	}
	return hold(0.2)
}

func crossDivergenceExit(ctx models.AgentContext) (models.TradeAction, bool) {
	if ctx.CrossTF == nil {
		return models.TradeAction{}, false
	}
	for _, pos := range ctx.Portfolio.OpenPositions {
		scores, ok := ctx.CrossTF.ScoreByTF[pos.Symbol]
		if !ok {
			continue
		}
		ltAvg, ltOK := averageScores(scores, "1d", "1w")
		stAvg, stOK := averageScores(scores, "15m", "1h")
		if !ltOK || !stOK {
			continue
		}
		if pos.Direction == models.PositionLong && stAvg >= 0.55 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionShort && stAvg <= 0.45 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionLong && ltAvg < 0.50 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.9}, true
		}
		if pos.Direction == models.PositionShort && ltAvg > 0.50 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.9}, true
		}
	}
	return models.TradeAction{}, false
}

func (CrossDivergenceStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "CrossDivergence: no long/short-term divergence detected. Holding."
	case models.ActionClose:
		return fmt.Sprintf("CrossDivergence: closing %s — divergence resolved or long-term turned against.", action.Symbol)
	default:
		return fmt.Sprintf("CrossDivergence: opening %s %s — LT/ST timeframe divergence detected.", directionLabel(action.Action), action.Symbol)
	}
}

// CrossCascadeStrategy trades signals cascading from longer to shorter
// timeframes.
type CrossCascadeStrategy struct{}

func (CrossCascadeStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := crossCascadeExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, crossMaxConcurrent) {
		return hold(0.1)
	}
	if ctx.CrossTF == nil || len(ctx.CrossTF.ScoreByTF) == 0 {
		return hold(0.0)
	}

	regime1w, has1w := ctx.CrossTF.Regimes["1w"]
	regime1d, has1d := ctx.CrossTF.Regimes["1d"]

	for symbol, scores := range ctx.CrossTF.ScoreByTF {
		if hasPosition(ctx, symbol) {
			continue
		}
		wScore, wOK := scores["1w"]
		dScore, dOK := scores["1d"]
		if !wOK || !dOK {
			continue
		}
		shorter, shorterOK := scores["4h"]
		if !shorterOK {
			shorter, shorterOK = scores["1h"]
		}
		if !shorterOK {
			continue
		}

		if wScore >= 0.60 && dScore >= 0.55 && shorter <= 0.50 {
			confidence := 0.65
			if has1w && has1d {
				if regime1w.Regime == models.RegimeTrendingBull && regime1d.Regime == models.RegimeTrendingBull {
					confidence = 0.80
				} else if regime1w.Regime == models.RegimeTrendingBear || regime1d.Regime == models.RegimeTrendingBear {
					continue
				}
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: 0.12,
				StopLossPct: 0.06, TakeProfitPct: 0.10, Confidence: confidence,
			}
		}

		if wScore <= 0.40 && dScore <= 0.45 && shorter >= 0.50 {
			confidence := 0.65
			if has1w && has1d {
				if regime1w.Regime == models.RegimeTrendingBear && regime1d.Regime == models.RegimeTrendingBear {
					confidence = 0.80
				} else if regime1w.Regime == models.RegimeTrendingBull || regime1d.Regime == models.RegimeTrendingBull {
					continue
				}
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: 0.12,
				StopLossPct: 0.06, TakeProfitPct: 0.10, Confidence: confidence,
			}
		}
	}
	return hold(0.2)
}

func crossCascadeExit(ctx models.AgentContext) (models.TradeAction, bool) {
	if ctx.CrossTF == nil {
		return models.TradeAction{}, false
	}
	for _, pos := range ctx.Portfolio.OpenPositions {
		scores, ok := ctx.CrossTF.ScoreByTF[pos.Symbol]
		if !ok {
			continue
		}
		wScore, wOK := scores["1w"]
		h1Score, h1OK := scores["1h"]

		if pos.Direction == models.PositionLong && wOK && wScore < 0.50 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.85}, true
		}
		if pos.Direction == models.PositionShort && wOK && wScore > 0.50 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.85}, true
		}
		if pos.Direction == models.PositionLong && h1OK && h1Score >= 0.60 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionShort && h1OK && h1Score <= 0.40 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
	}
	return models.TradeAction{}, false
}

func (CrossCascadeStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "CrossCascade: no timeframe cascade pattern detected. Holding."
	case models.ActionClose:
		return fmt.Sprintf("CrossCascade: closing %s — cascade completed or 1W reverted.", action.Symbol)
	default:
		return fmt.Sprintf("CrossCascade: opening %s %s — 1W/1D aligned, shorter TFs lagging.", directionLabel(action.Action), action.Symbol)
	}
}

// CrossRegimeStrategy identifies market regime changes and positions
// accordingly.
type CrossRegimeStrategy struct{}

func (CrossRegimeStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	if close, ok := crossRegimeExit(ctx); ok {
		return close
	}
	if !canOpen(ctx, crossMaxConcurrent) {
		return hold(0.1)
	}

	trend, confidence, hasRegime := higherTFTrend(ctx)
	if hasRegime && (trend == "bull" || trend == "bear") {
		if confidence < 60 {
			return hold(0.3)
		}
		return crossRegimeEnterWithRegime(ctx, trend, confidence)
	}
	return crossRegimeFallback(ctx)
}

func crossRegimeEnterWithRegime(ctx models.AgentContext, trend string, confidence float64) models.TradeAction {
	if ctx.CrossTF == nil || len(ctx.CrossTF.ScoreByTF) == 0 {
		return hold(0.2)
	}
	confScale := minFloat(1.0, confidence/80)

	for symbol, scores := range ctx.CrossTF.ScoreByTF {
		if hasPosition(ctx, symbol) || len(scores) < 4 {
			continue
		}
		avg, bullCount, bearCount := summarizeScores(scores)
		if trend == "bull" && bullCount >= 3 && avg > 0.55 {
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: 0.15,
				StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: roundTo2(0.7 * confScale),
			}
		}
		if trend == "bear" && bearCount >= 3 && avg < 0.45 {
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: 0.15,
				StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: roundTo2(0.7 * confScale),
			}
		}
	}
	return hold(0.3)
}

func crossRegimeFallback(ctx models.AgentContext) models.TradeAction {
	if ctx.CrossTF == nil || len(ctx.CrossTF.ScoreByTF) == 0 {
		return hold(0.0)
	}
	var bestBullSymbol, bestBearSymbol string
	bestBullScore, bestBearScore := 0.0, 1.0

	for symbol, scores := range ctx.CrossTF.ScoreByTF {
		if hasPosition(ctx, symbol) || len(scores) < 4 {
			continue
		}
		avg, bullCount, bearCount := summarizeScores(scores)
		if bullCount >= 4 && avg > bestBullScore {
			bestBullScore, bestBullSymbol = avg, symbol
		}
		if bearCount >= 4 && avg < bestBearScore {
			bestBearScore, bestBearSymbol = avg, symbol
		}
	}

	if bestBullSymbol != "" {
		return models.TradeAction{
			Action: models.ActionOpenLong, Symbol: bestBullSymbol, PositionSizePct: 0.15,
			StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: 0.7,
		}
	}
	if bestBearSymbol != "" {
		return models.TradeAction{
			Action: models.ActionOpenShort, Symbol: bestBearSymbol, PositionSizePct: 0.15,
			StopLossPct: 0.05, TakeProfitPct: 0.10, Confidence: 0.7,
		}
	}
	return hold(0.3)
}

func crossRegimeExit(ctx models.AgentContext) (models.TradeAction, bool) {
	trend, confidence, hasRegime := higherTFTrend(ctx)
	for _, pos := range ctx.Portfolio.OpenPositions {
		if pos.UnrealizedPnL.IsNegative() && pos.PositionSize.IsPositive() {
			pnl, _ := pos.UnrealizedPnL.Float64()
			size, _ := pos.PositionSize.Float64()
			pnlPct := pnl / size * 100
			if pnlPct < -5.0 {
				return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.95}, true
			}
		}
		if hasRegime && (trend == "ranging" || trend == "mixed") && confidence > 60 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.8}, true
		}
	}
	if ctx.CrossTF == nil {
		return models.TradeAction{}, false
	}
	for _, pos := range ctx.Portfolio.OpenPositions {
		scores, ok := ctx.CrossTF.ScoreByTF[pos.Symbol]
		if !ok || len(scores) < 4 {
			continue
		}
		neutral := 0
		for _, s := range scores {
			if s >= 0.40 && s <= 0.60 {
				neutral++
			}
		}
		if neutral >= 4 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.8}, true
		}
	}
	return models.TradeAction{}, false
}

func (CrossRegimeStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "CrossRegime: market in ranging/transitioning regime. Holding cash."
	case models.ActionClose:
		return fmt.Sprintf("CrossRegime: closing %s — regime shift or hard stop.", action.Symbol)
	default:
		return fmt.Sprintf("CrossRegime: opening %s %s — trending regime detected.", directionLabel(action.Action), action.Symbol)
	}
}

func averageScores(scores map[string]float64, timeframes ...string) (float64, bool) {
	sum, count := 0.0, 0
	for _, tf := range timeframes {
		if v, ok := scores[tf]; ok {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func summarizeScores(scores map[string]float64) (avg float64, bullCount, bearCount int) {
	sum := 0.0
	for _, s := range scores {
		sum += s
		if s > 0.60 {
			bullCount++
		}
		if s < 0.40 {
			bearCount++
		}
	}
	return sum / float64(len(scores)), bullCount, bearCount
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
