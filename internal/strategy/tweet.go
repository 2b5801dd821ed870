package strategy

import (
	"fmt"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// TweetMomentumStrategy rides crowd enthusiasm: it only enters a symbol the
// crowd is both talking about and bullish on.
type TweetMomentumStrategy struct{}

func (TweetMomentumStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	tc := ctx.Tweet
	if tc == nil || len(tc.Signals) == 0 {
		return hold(0.0)
	}

	if close, ok := tweetMomentumExit(ctx); ok {
		return close
	}

	symbolBullish := map[string]int{}
	symbolBearish := map[string]int{}
	for _, sig := range tc.Signals {
		if sig.SentimentScore >= 0.3 {
			for _, sym := range sig.SymbolsMentioned {
				symbolBullish[sym]++
			}
		}
		if sig.SentimentScore <= -0.3 {
			for _, sym := range sig.SymbolsMentioned {
				symbolBearish[sym]++
			}
		}
	}

	if tc.AvgSentiment >= 0.4 && tc.BullishCount >= 3 {
		for _, symbol := range tc.MostMentionedSymbols {
			if hasPosition(ctx, symbol) {
				continue
			}
			if symbolBullish[symbol] >= 2 {
				return models.TradeAction{
					Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: 0.12,
					StopLossPct: 0.04, TakeProfitPct: 0.08, Confidence: minFloat(tc.AvgSentiment, 1.0),
				}
			}
		}
	}

	if tc.AvgSentiment <= -0.4 && tc.BearishCount >= 3 {
		for _, symbol := range tc.MostMentionedSymbols {
			if hasPosition(ctx, symbol) {
				continue
			}
			if symbolBearish[symbol] >= 2 {
				return models.TradeAction{
					Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: 0.12,
					StopLossPct: 0.04, TakeProfitPct: 0.08, Confidence: minFloat(absFloat(tc.AvgSentiment), 1.0),
				}
			}
		}
	}
	return hold(0.2)
}

func tweetMomentumExit(ctx models.AgentContext) (models.TradeAction, bool) {
	tc := ctx.Tweet
	if tc == nil || len(tc.Signals) == 0 {
		return models.TradeAction{}, false
	}
	avgConfidence := 0.0
	for _, sig := range tc.Signals {
		avgConfidence += sig.Confidence
	}
	avgConfidence /= float64(len(tc.Signals))

	for _, pos := range ctx.Portfolio.OpenPositions {
		if pos.Direction == models.PositionLong && tc.AvgSentiment < 0 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionShort && tc.AvgSentiment > 0 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if avgConfidence < 0.3 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.5}, true
		}
	}
	return models.TradeAction{}, false
}

func (TweetMomentumStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "TweetMomentum: crowd sentiment not strong enough to act on. Holding."
	case models.ActionClose:
		return fmt.Sprintf("TweetMomentum: closing %s — sentiment reversed or confidence collapsed.", action.Symbol)
	default:
		return fmt.Sprintf("TweetMomentum: opening %s %s — crowd piling in with aligned sentiment.", directionLabel(action.Action), action.Symbol)
	}
}

// TweetContrarianStrategy fades sentiment extremes: it buys panic and
// sells euphoria.
type TweetContrarianStrategy struct{}

func (TweetContrarianStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	tc := ctx.Tweet
	if tc == nil || len(tc.Signals) == 0 {
		return hold(0.0)
	}

	if tc.AvgSentiment >= -0.2 && tc.AvgSentiment <= 0.2 {
		for _, pos := range ctx.Portfolio.OpenPositions {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}
		}
	}

	if tc.AvgSentiment <= -0.6 && tc.BearishCount >= 4 {
		for _, symbol := range tc.MostMentionedSymbols {
			if hasPosition(ctx, symbol) {
				continue
			}
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: 0.10,
				StopLossPct: 0.05, TakeProfitPct: 0.06, Confidence: minFloat(absFloat(tc.AvgSentiment), 1.0),
			}
		}
	}

	if tc.AvgSentiment >= 0.6 && tc.BullishCount >= 4 {
		for _, symbol := range tc.MostMentionedSymbols {
			if hasPosition(ctx, symbol) {
				continue
			}
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: 0.10,
				StopLossPct: 0.05, TakeProfitPct: 0.06, Confidence: minFloat(tc.AvgSentiment, 1.0),
			}
		}
	}
	return hold(0.2)
}

func (TweetContrarianStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "TweetContrarian: sentiment not yet at an extreme. Holding."
	case models.ActionClose:
		return fmt.Sprintf("TweetContrarian: closing %s — sentiment normalized.", action.Symbol)
	default:
		return fmt.Sprintf("TweetContrarian: opening %s %s — fading a sentiment extreme.", directionLabel(action.Action), action.Symbol)
	}
}

var credibleCategories = map[string]bool{
	"analyst": true, "founder": true, "insider": true, "protocol": true,
}

// TweetNarrativeStrategy trades on credible-source narrative setups
// (analyst, founder, insider, protocol accounts), independent of raw
// sentiment volume.
type TweetNarrativeStrategy struct{}

func (TweetNarrativeStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	tc := ctx.Tweet
	if tc == nil || len(tc.Signals) == 0 {
		return hold(0.0)
	}

	if close, ok := tweetNarrativeExit(ctx); ok {
		return close
	}

	longSignals := map[string]int{}
	shortSignals := map[string]int{}
	for _, sig := range tc.Signals {
		if !credibleCategories[sig.Category] {
			continue
		}
		switch sig.SetupType {
		case "long_entry":
			for _, sym := range sig.SymbolsMentioned {
				longSignals[sym]++
			}
		case "short_entry":
			for _, sym := range sig.SymbolsMentioned {
				shortSignals[sym]++
			}
		}
	}

	if symbol, count, ok := bestCounted(longSignals, ctx); ok && count >= 3 {
		return models.TradeAction{
			Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: 0.15,
			StopLossPct: 0.04, TakeProfitPct: 0.10, Confidence: minFloat(float64(count)/5.0, 1.0),
		}
	}
	if symbol, count, ok := bestCounted(shortSignals, ctx); ok && count >= 3 {
		return models.TradeAction{
			Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: 0.15,
			StopLossPct: 0.04, TakeProfitPct: 0.10, Confidence: minFloat(float64(count)/5.0, 1.0),
		}
	}
	return hold(0.2)
}

// bestCounted returns the unheld symbol with the highest count, matching
// the reference's highest-count-first scan.
func bestCounted(counts map[string]int, ctx models.AgentContext) (string, int, bool) {
	best, bestCount := "", 0
	for symbol, count := range counts {
		if hasPosition(ctx, symbol) {
			continue
		}
		if count > bestCount {
			best, bestCount = symbol, count
		}
	}
	return best, bestCount, best != ""
}

func tweetNarrativeExit(ctx models.AgentContext) (models.TradeAction, bool) {
	tc := ctx.Tweet
	for _, pos := range ctx.Portfolio.OpenPositions {
		warningCount := 0
		for _, sig := range tc.Signals {
			if !credibleCategories[sig.Category] {
				continue
			}
			if sig.SetupType != "warning" && sig.SetupType != "take_profit" {
				continue
			}
			if contains(sig.SymbolsMentioned, pos.Symbol) || contains(sig.SymbolsMentioned, pos.Symbol+"USDT") {
				warningCount++
			}
		}
		if warningCount >= 2 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
	}
	return models.TradeAction{}, false
}

func (TweetNarrativeStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "TweetNarrative: no credible-source setup cleared the count threshold. Holding."
	case models.ActionClose:
		return fmt.Sprintf("TweetNarrative: closing %s — credible warnings accumulating.", action.Symbol)
	default:
		return fmt.Sprintf("TweetNarrative: opening %s %s — repeated credible-source setup.", directionLabel(action.Action), action.Symbol)
	}
}

var insiderCategories = map[string]bool{"founder": true, "insider": true}

// TweetInsiderStrategy weights founder/insider-category signals double and
// trades on the resulting weighted sentiment.
type TweetInsiderStrategy struct{}

func (TweetInsiderStrategy) Evaluate(ctx models.AgentContext) models.TradeAction {
	tc := ctx.Tweet
	if tc == nil || len(tc.Signals) == 0 {
		return hold(0.0)
	}

	if close, ok := tweetInsiderExit(ctx); ok {
		return close
	}

	weightedSum, weightSum := 0.0, 0.0
	longSymbolCounts := map[string]int{}
	shortSymbolCounts := map[string]int{}
	for _, sig := range tc.Signals {
		weight := 1.0
		if insiderCategories[sig.Category] {
			weight = 2.0
		}
		weightedSum += sig.SentimentScore * weight
		weightSum += weight
		if !insiderCategories[sig.Category] {
			continue
		}
		switch sig.SetupType {
		case "long_entry":
			for _, sym := range sig.SymbolsMentioned {
				longSymbolCounts[sym]++
			}
		case "short_entry":
			for _, sym := range sig.SymbolsMentioned {
				shortSymbolCounts[sym]++
			}
		}
	}
	if weightSum == 0 {
		return hold(0.0)
	}
	weightedSentiment := weightedSum / weightSum

	if weightedSentiment >= 0.3 && len(longSymbolCounts) > 0 {
		if symbol, _, ok := bestCounted(longSymbolCounts, ctx); ok {
			return models.TradeAction{
				Action: models.ActionOpenLong, Symbol: symbol, PositionSizePct: 0.10,
				StopLossPct: 0.03, TakeProfitPct: 0.06, Confidence: minFloat(weightedSentiment, 1.0),
			}
		}
	}
	if weightedSentiment <= -0.3 && len(shortSymbolCounts) > 0 {
		if symbol, _, ok := bestCounted(shortSymbolCounts, ctx); ok {
			return models.TradeAction{
				Action: models.ActionOpenShort, Symbol: symbol, PositionSizePct: 0.10,
				StopLossPct: 0.03, TakeProfitPct: 0.06, Confidence: minFloat(absFloat(weightedSentiment), 1.0),
			}
		}
	}
	return hold(0.2)
}

func tweetInsiderExit(ctx models.AgentContext) (models.TradeAction, bool) {
	tc := ctx.Tweet
	insiderSum, insiderCount := 0.0, 0
	for _, sig := range tc.Signals {
		if insiderCategories[sig.Category] {
			insiderSum += sig.SentimentScore
			insiderCount++
		}
	}
	if insiderCount == 0 {
		return models.TradeAction{}, false
	}
	insiderSentiment := insiderSum / float64(insiderCount)

	for _, pos := range ctx.Portfolio.OpenPositions {
		if pos.Direction == models.PositionLong && insiderSentiment < -0.1 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
		if pos.Direction == models.PositionShort && insiderSentiment > 0.1 {
			return models.TradeAction{Action: models.ActionClose, Symbol: pos.Symbol, Confidence: 0.7}, true
		}
	}
	return models.TradeAction{}, false
}

func (TweetInsiderStrategy) Reasoning(ctx models.AgentContext, action models.TradeAction) string {
	switch action.Action {
	case models.ActionHold:
		return "TweetInsider: insider-weighted sentiment inconclusive. Holding."
	case models.ActionClose:
		return fmt.Sprintf("TweetInsider: closing %s — insider sentiment turned against the position.", action.Symbol)
	default:
		return fmt.Sprintf("TweetInsider: opening %s %s — founder/insider-weighted sentiment signal.", directionLabel(action.Action), action.Symbol)
	}
}
