// Package indicators hosts the C2 indicator registry: nine indicator
// definitions, each pairing a raw-field compute function over an OHLCV
// window with a normalize function that maps the raw bundle to a signal
// in [-1, +1].
package indicators

import "github.com/kieranvance/pulsetrader/pkg/models"

// Definition is one registry entry.
type Definition struct {
	Name     string
	Category models.IndicatorCategory
	Weight   float64
	Compute  func(window models.CandleSeries) map[string]float64
	Normalize func(raw map[string]float64) float64
}

// Registry hosts the default nine-indicator battery and their weights.
type Registry struct {
	defs  []Definition
	byName map[string]Definition
}

// DefaultRegistry builds the registry with the spec's nine indicators and
// weights (summing to 1.0).
func DefaultRegistry() *Registry {
	defs := []Definition{
		{Name: "rsi_14", Category: models.CategoryMomentum, Weight: 0.12, Compute: computeRSI(14), Normalize: normalizeRSI(30, 70)},
		{Name: "macd_12_26_9", Category: models.CategoryMomentum, Weight: 0.15, Compute: computeMACD(12, 26, 9), Normalize: normalizeMACD},
		{Name: "stoch_14_3_3", Category: models.CategoryMomentum, Weight: 0.10, Compute: computeStochastic(14, 3, 3), Normalize: normalizeStochastic(20, 80)},
		{Name: "adx_14", Category: models.CategoryTrend, Weight: 0.13, Compute: computeADX(14), Normalize: normalizeADX(25)},
		{Name: "obv", Category: models.CategoryVolume, Weight: 0.12, Compute: computeOBV(10), Normalize: normalizeOBV},
		{Name: "bbands_20_2", Category: models.CategoryVolatility, Weight: 0.10, Compute: computeBollinger(20, 2), Normalize: normalizeBollinger},
		{Name: "ema_20", Category: models.CategoryTrend, Weight: 0.08, Compute: computeEMA(20), Normalize: normalizeEMA(0.5)},
		{Name: "ema_50", Category: models.CategoryTrend, Weight: 0.10, Compute: computeEMA(50), Normalize: normalizeEMA(1.0)},
		{Name: "ema_200", Category: models.CategoryTrend, Weight: 0.10, Compute: computeEMA(200), Normalize: normalizeEMA(1.5)},
	}

	r := &Registry{defs: defs, byName: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.byName[d.Name] = d
	}
	return r
}

// Names returns the registered indicator names in default order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// TotalWeight sums the weight of every registered indicator.
func (r *Registry) TotalWeight() float64 {
	total := 0.0
	for _, d := range r.defs {
		total += d.Weight
	}
	return total
}

// ComputeAll runs every indicator's compute+normalize pair over window and
// returns the unordered name -> signal bundle.
func (r *Registry) ComputeAll(window models.CandleSeries) models.IndicatorSet {
	out := make(models.IndicatorSet, len(r.defs))
	for _, d := range r.defs {
		raw := d.Compute(window)
		signal := nan
		if !allNaN(raw) {
			signal = d.Normalize(raw)
			signal = models.Clip(signal, -1, 1)
		}
		out[d.Name] = models.IndicatorSignal{
			Name:     d.Name,
			Category: d.Category,
			Weight:   d.Weight,
			Signal:   signal,
			Label:    labelFor(signal),
			Strength: strengthFor(signal),
			Raw:      raw,
		}
	}
	return out
}

func labelFor(signal float64) models.SignalLabel {
	if isNaN(signal) {
		return models.LabelNeutral
	}
	return models.ClassifyLabel(signal)
}

func strengthFor(signal float64) models.SignalStrength {
	if isNaN(signal) {
		return models.StrengthWeak
	}
	return models.ClassifyStrength(signal)
}
