// Package ranking implements C5: orders one run's scored symbols into a
// contiguous 1..N rank sequence and builds their persisted snapshot bundle.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// Rank orders symbols by (bullish desc, confidence desc), assigns a
// contiguous 1..N rank, and builds each snapshot's indicator_signals bundle
// including the reserved _market pseudo-indicator. Ties preserve input
// order, matching the spec's documented "any deterministic order" allowance.
func Rank(symbols []models.SymbolData, timeframe string, runID uuid.UUID, computedAt time.Time) []models.RankedSnapshot {
	ordered := make([]models.SymbolData, len(symbols))
	copy(ordered, symbols)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.BullishScore != b.BullishScore {
			return a.BullishScore > b.BullishScore
		}
		return a.Confidence > b.Confidence
	})

	snapshots := make([]models.RankedSnapshot, len(ordered))
	for i, sym := range ordered {
		signals := make(map[string]any, len(sym.Indicators)+1)
		for name, sig := range sym.Indicators {
			signals[name] = map[string]any{
				"signal":   sanitize(sig.Signal),
				"label":    sig.Label,
				"strength": sig.Strength,
				"weight":   sig.Weight,
				"category": sig.Category,
				"raw":      sanitizeRaw(sig.Raw),
			}
		}
		signals["_market"] = marketDelta(sym)

		snapshots[i] = models.RankedSnapshot{
			SymbolID:         sym.SymbolID,
			Symbol:           sym.Symbol,
			Timeframe:        timeframe,
			BullishScore:     models.NewDecimal(math.Round(sym.BullishScore*1000) / 1000),
			Confidence:       int16(sym.Confidence),
			Rank:             int16(i + 1),
			IndicatorSignals: signals,
			ComputedAt:       computedAt,
			RunID:            runID,
		}
	}
	return snapshots
}

func marketDelta(sym models.SymbolData) map[string]any {
	return map[string]any{
		"price_change_pct":  sanitizePtr(sym.PriceChangePct),
		"volume_change_pct": sanitizePtr(sym.VolumeChangePct),
		"price_change_abs":  sanitizePtr(sym.PriceChangeAbs),
		"volume_change_abs": sanitizePtr(sym.VolumeChangeAbs),
		"funding_rate":      sanitizePtr(sym.FundingRate),
	}
}

func sanitizeRaw(raw map[string]float64) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = sanitize(v)
	}
	return out
}

// sanitize turns NaN/+Inf/-Inf into an explicit null, returned here as a Go
// nil that the caller's JSON encoder renders as null.
func sanitize(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func sanitizePtr(v *float64) any {
	if v == nil {
		return nil
	}
	return sanitize(*v)
}
