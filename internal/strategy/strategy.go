// Package strategy implements C9: deterministic rule-based trading
// archetypes. Each archetype is a pure function of an AgentContext,
// mirroring the original LLM-prompted decision it replaces.
package strategy

import (
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// Strategy evaluates one agent cycle and explains the result.
type Strategy interface {
	Evaluate(ctx models.AgentContext) models.TradeAction
	Reasoning(ctx models.AgentContext, action models.TradeAction) string
}

// Registry resolves the strategy for an agent by name first (for the
// cross-timeframe archetypes, which are singletons keyed by agent name),
// falling back to the agent's strategy_archetype column.
type Registry struct {
	byAgentName map[string]Strategy
	byArchetype map[string]Strategy
}

// DefaultRegistry wires every archetype.
func DefaultRegistry() *Registry {
	r := &Registry{
		byAgentName: map[string]Strategy{
			"rb-cross-confluence": CrossConfluenceStrategy{},
			"rb-cross-divergence": CrossDivergenceStrategy{},
			"rb-cross-cascade":    CrossCascadeStrategy{},
			"rb-cross-regime":     CrossRegimeStrategy{},
		},
		byArchetype: map[string]Strategy{
			models.ArchetypeMomentum:            MomentumStrategy{},
			models.ArchetypeMeanReversion:       MeanReversionStrategy{},
			models.ArchetypeBreakout:            BreakoutStrategy{},
			models.ArchetypeSwing:               SwingStrategy{},
			models.ArchetypeTweetMomentum:       TweetMomentumStrategy{},
			models.ArchetypeTweetContrarian:     TweetContrarianStrategy{},
			models.ArchetypeTweetNarrative:      TweetNarrativeStrategy{},
			models.ArchetypeTweetInsider:        TweetInsiderStrategy{},
			models.ArchetypeHybridMomentum:      HybridMomentumStrategy{},
			models.ArchetypeHybridMeanReversion: HybridMeanReversionStrategy{},
			models.ArchetypeHybridBreakout:      HybridBreakoutStrategy{},
			models.ArchetypeHybridSwing:         HybridSwingStrategy{},
		},
	}
	return r
}

// Resolve returns the strategy for an agent, checking the per-name registry
// (cross-timeframe archetypes) before the per-archetype one.
func (r *Registry) Resolve(agentName, archetype string) (Strategy, bool) {
	if s, ok := r.byAgentName[agentName]; ok {
		return s, true
	}
	s, ok := r.byArchetype[archetype]
	return s, ok
}

// NewRegistry returns an empty Registry. Most callers want DefaultRegistry;
// this is for composing a narrower set, e.g. in tests.
func NewRegistry() *Registry {
	return &Registry{byAgentName: map[string]Strategy{}, byArchetype: map[string]Strategy{}}
}

// RegisterArchetype adds or replaces the strategy resolved by archetype name.
func (r *Registry) RegisterArchetype(archetype string, s Strategy) {
	r.byArchetype[archetype] = s
}

// RegisterAgentName adds or replaces the strategy resolved by literal agent
// name, taking priority over RegisterArchetype in Resolve.
func (r *Registry) RegisterAgentName(name string, s Strategy) {
	r.byAgentName[name] = s
}

// ── shared helpers, mirroring BaseRuleStrategy ──────────────────────────

func hold(confidence float64) models.TradeAction {
	return models.HoldAction(confidence)
}

func indicator(ctx models.AgentContext, symbol, name string) *models.NamedIndicatorSignal {
	r := ctx.RankingFor(symbol)
	if r == nil {
		return nil
	}
	return findIndicator(r.IndicatorSignals, name)
}

func findIndicator(signals []models.NamedIndicatorSignal, name string) *models.NamedIndicatorSignal {
	for i := range signals {
		if signals[i].Name == name {
			return &signals[i]
		}
	}
	return nil
}

// raw returns a named raw field of an indicator attached to r, and whether
// it was present.
func raw(r models.Ranking, name, field string) (float64, bool) {
	ind := findIndicator(r.IndicatorSignals, name)
	if ind == nil || ind.Raw == nil {
		return 0, false
	}
	v, ok := ind.Raw[field]
	return v, ok
}

func hasPosition(ctx models.AgentContext, symbol string) bool {
	return ctx.Portfolio.HasPosition(symbol)
}

func canOpen(ctx models.AgentContext, maxPositions int) bool {
	return len(ctx.Portfolio.OpenPositions) < maxPositions && ctx.Portfolio.AvailableForNewPosition.IsPositive()
}

// higherTFTrend reports the bull/bear/mixed/ranging trend and confidence of
// the highest-order timeframe present in the cross-timeframe bundle, used
// as the "higher timeframe" reference for regime gates. Preference order
// follows coarsest-to-finest since a coarser trend is the more reliable
// context for gating finer-timeframe entries.
func higherTFTrend(ctx models.AgentContext) (trend string, confidence float64, ok bool) {
	if ctx.CrossTF == nil || len(ctx.CrossTF.Regimes) == 0 {
		return "", 0, false
	}
	for _, tf := range []string{"1w", "1d", "4h", "1h"} {
		regime, present := ctx.CrossTF.Regimes[tf]
		if !present {
			continue
		}
		return trendLabel(regime.Regime), float64(regime.Confidence), true
	}
	return "", 0, false
}

func trendLabel(regime string) string {
	switch regime {
	case models.RegimeTrendingBull:
		return "bull"
	case models.RegimeTrendingBear:
		return "bear"
	case models.RegimeVolatile:
		return "mixed"
	default:
		return "ranging"
	}
}

// regimeAllowsDirection gates an entry against the higher-timeframe trend:
// a clear opposing trend (confidence >= 60) blocks the entry.
func regimeAllowsDirection(ctx models.AgentContext, direction string) bool {
	trend, confidence, ok := higherTFTrend(ctx)
	if !ok || confidence < 60 {
		return true
	}
	if direction == "long" && trend == "bear" {
		return false
	}
	if direction == "short" && trend == "bull" {
		return false
	}
	return true
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
