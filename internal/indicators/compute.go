package indicators

import (
	"math"

	"github.com/cinar/indicator"
	"gonum.org/v1/gonum/stat"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

var nan = math.NaN()

func isNaN(v float64) bool { return math.IsNaN(v) }

// allNaN reports whether every raw field computed for this indicator is
// NaN, the "insufficient history" case the registry skips during scoring.
func allNaN(raw map[string]float64) bool {
	if len(raw) == 0 {
		return true
	}
	for _, v := range raw {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

func nanBundle(fields ...string) map[string]float64 {
	m := make(map[string]float64, len(fields))
	for _, f := range fields {
		m[f] = nan
	}
	return m
}

// computeRSI needs at least period+1 closes; fewer rows yields an all-NaN
// bundle.
func computeRSI(period int) func(models.CandleSeries) map[string]float64 {
	return func(w models.CandleSeries) map[string]float64 {
		closes := w.Closes()
		if len(closes) < period+1 {
			return nanBundle("rsi")
		}
		_, rsi := indicator.Rsi(closes)
		if len(rsi) == 0 {
			return nanBundle("rsi")
		}
		return map[string]float64{"rsi": rsi[len(rsi)-1]}
	}
}

func computeMACD(fast, slow, signalPeriod int) func(models.CandleSeries) map[string]float64 {
	return func(w models.CandleSeries) map[string]float64 {
		closes := w.Closes()
		if len(closes) < slow+signalPeriod {
			return nanBundle("macd", "signal", "histogram")
		}
		macdLine, signalLine := indicator.Macd(closes)
		if len(macdLine) == 0 || len(signalLine) == 0 {
			return nanBundle("macd", "signal", "histogram")
		}
		macd := macdLine[len(macdLine)-1]
		sig := signalLine[len(signalLine)-1]
		return map[string]float64{"macd": macd, "signal": sig, "histogram": macd - sig}
	}
}

// computeStochastic hand-rolls %K/%D: the cinar library's stochastic
// oscillator is pinned to fixed (14,3) periods, but the registry needs
// configurable k/d/smooth, so this follows the same rolling-extremes
// definition directly.
func computeStochastic(kPeriod, dPeriod, smooth int) func(models.CandleSeries) map[string]float64 {
	return func(w models.CandleSeries) map[string]float64 {
		highs, lows, closes := w.Highs(), w.Lows(), w.Closes()
		n := len(closes)
		if n < kPeriod+smooth+dPeriod {
			return nanBundle("k", "d")
		}

		rawK := make([]float64, n)
		for i := 0; i < n; i++ {
			if i < kPeriod-1 {
				rawK[i] = nan
				continue
			}
			hh, ll := highs[i], lows[i]
			for j := i - kPeriod + 1; j <= i; j++ {
				if highs[j] > hh {
					hh = highs[j]
				}
				if lows[j] < ll {
					ll = lows[j]
				}
			}
			if hh == ll {
				rawK[i] = 50
			} else {
				rawK[i] = (closes[i] - ll) / (hh - ll) * 100
			}
		}

		smoothedK := sma(rawK, smooth)
		d := sma(smoothedK, dPeriod)

		k := smoothedK[len(smoothedK)-1]
		dVal := d[len(d)-1]
		if isNaN(k) || isNaN(dVal) {
			return nanBundle("k", "d")
		}
		return map[string]float64{"k": k, "d": dVal}
	}
}

// sma computes a simple moving average over v, leaving the first period-1
// entries (and any NaN-poisoned windows) as NaN.
func sma(v []float64, period int) []float64 {
	out := make([]float64, len(v))
	for i := range out {
		out[i] = nan
	}
	sum := 0.0
	count := 0
	for i, x := range v {
		if isNaN(x) {
			sum, count = 0, 0
			continue
		}
		sum += x
		count++
		if count > period {
			// drop the oldest in-window value
			sum -= v[i-period]
			count = period
		}
		if count == period {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// computeADX hand-rolls Wilder's directional movement system: +DI, -DI,
// and ADX over the smoothed directional indices.
func computeADX(period int) func(models.CandleSeries) map[string]float64 {
	return func(w models.CandleSeries) map[string]float64 {
		highs, lows, closes := w.Highs(), w.Lows(), w.Closes()
		n := len(closes)
		if n < period*2 {
			return nanBundle("adx", "plus_di", "minus_di")
		}

		plusDM := make([]float64, n)
		minusDM := make([]float64, n)
		tr := make([]float64, n)
		for i := 1; i < n; i++ {
			upMove := highs[i] - highs[i-1]
			downMove := lows[i-1] - lows[i]
			if upMove > downMove && upMove > 0 {
				plusDM[i] = upMove
			}
			if downMove > upMove && downMove > 0 {
				minusDM[i] = downMove
			}
			tr[i] = math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		}

		smTR := wilderSmooth(tr, period)
		smPlusDM := wilderSmooth(plusDM, period)
		smMinusDM := wilderSmooth(minusDM, period)

		dx := make([]float64, n)
		for i := range dx {
			dx[i] = nan
			if isNaN(smTR[i]) || smTR[i] == 0 {
				continue
			}
			plusDI := 100 * smPlusDM[i] / smTR[i]
			minusDI := 100 * smMinusDM[i] / smTR[i]
			sumDI := plusDI + minusDI
			if sumDI == 0 {
				dx[i] = 0
				continue
			}
			dx[i] = 100 * math.Abs(plusDI-minusDI) / sumDI
		}

		// ADX is Wilder's average of DX: seeded with the mean of the first
		// period DX values, then smoothed as (prev*(period-1) + dx) / period.
		adx := make([]float64, n)
		for i := range adx {
			adx[i] = nan
		}
		seedEnd := 2*period - 1
		seed := 0.0
		for i := period; i <= seedEnd; i++ {
			seed += dx[i]
		}
		adx[seedEnd] = seed / float64(period)
		for i := seedEnd + 1; i < n; i++ {
			adx[i] = (adx[i-1]*float64(period-1) + dx[i]) / float64(period)
		}

		last := n - 1
		if isNaN(adx[last]) || isNaN(smTR[last]) || smTR[last] == 0 {
			return nanBundle("adx", "plus_di", "minus_di")
		}
		return map[string]float64{
			"adx":      adx[last],
			"plus_di":  100 * smPlusDM[last] / smTR[last],
			"minus_di": 100 * smMinusDM[last] / smTR[last],
		}
	}
}

// wilderSmooth applies Wilder's running-sum smoothing: seeded with the sum
// of v[1..period], then out[i] = out[i-1] - out[i-1]/period + v[i]. The
// result stays on a sum scale, which cancels out in the DI ratios.
func wilderSmooth(v []float64, period int) []float64 {
	out := make([]float64, len(v))
	for i := range out {
		out[i] = nan
	}
	if len(v) < period {
		return out
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += v[i]
	}
	out[period] = sum
	for i := period + 1; i < len(v); i++ {
		out[i] = out[i-1] - out[i-1]/float64(period) + v[i]
	}
	return out
}

// computeOBV hand-rolls on-balance volume and its linear-regression slope
// over the trailing slopePeriod values, normalized by the mean OBV
// magnitude to produce a percentage.
func computeOBV(slopePeriod int) func(models.CandleSeries) map[string]float64 {
	return func(w models.CandleSeries) map[string]float64 {
		closes, volumes := w.Closes(), w.Volumes()
		n := len(closes)
		if n < slopePeriod+1 {
			return nanBundle("obv", "slope_normalized")
		}

		obv := make([]float64, n)
		for i := 1; i < n; i++ {
			switch {
			case closes[i] > closes[i-1]:
				obv[i] = obv[i-1] + volumes[i]
			case closes[i] < closes[i-1]:
				obv[i] = obv[i-1] - volumes[i]
			default:
				obv[i] = obv[i-1]
			}
		}

		recent := obv[n-slopePeriod:]
		xs := make([]float64, slopePeriod)
		for i := range xs {
			xs[i] = float64(i)
		}
		_, slope := stat.LinearRegression(xs, recent, nil, false)

		meanAbs := 0.0
		for _, v := range recent {
			meanAbs += math.Abs(v)
		}
		meanAbs /= float64(slopePeriod)

		slopeNormalized := 0.0
		if meanAbs > 0 {
			slopeNormalized = slope / meanAbs * 100
		}

		return map[string]float64{"obv": obv[n-1], "slope_normalized": slopeNormalized}
	}
}

func computeBollinger(period int, stdDev float64) func(models.CandleSeries) map[string]float64 {
	return func(w models.CandleSeries) map[string]float64 {
		closes := w.Closes()
		if len(closes) < period {
			return nanBundle("upper", "middle", "lower", "percent_b", "bandwidth")
		}
		middle, upper, lower := indicator.BollingerBands(closes)
		if len(middle) == 0 {
			return nanBundle("upper", "middle", "lower", "percent_b", "bandwidth")
		}
		last := len(middle) - 1
		price := closes[len(closes)-1]
		u, m, l := upper[last], middle[last], lower[last]

		percentB := nan
		if u != l {
			percentB = (price - l) / (u - l)
		}
		bandwidth := nan
		if m != 0 {
			bandwidth = (u - l) / m * 100
		}

		return map[string]float64{"upper": u, "middle": m, "lower": l, "percent_b": percentB, "bandwidth": bandwidth}
	}
}

func computeEMA(period int) func(models.CandleSeries) map[string]float64 {
	return func(w models.CandleSeries) map[string]float64 {
		closes := w.Closes()
		if len(closes) < period {
			return nanBundle("ema", "price_vs_ema_pct")
		}
		ema := indicator.Ema(period, closes)
		if len(ema) == 0 {
			return nanBundle("ema", "price_vs_ema_pct")
		}
		last := ema[len(ema)-1]
		price := closes[len(closes)-1]
		pctVsEma := nan
		if last != 0 {
			pctVsEma = (price - last) / last * 100
		}
		return map[string]float64{"ema": last, "price_vs_ema_pct": pctVsEma}
	}
}
