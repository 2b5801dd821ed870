package indicators

import "math"

// normalizeRSI: below oversold -> bullish ramp; above overbought -> bearish
// ramp; otherwise linear around the oversold/overbought midpoint.
func normalizeRSI(oversold, overbought float64) func(map[string]float64) float64 {
	return func(raw map[string]float64) float64 {
		v := raw["rsi"]
		switch {
		case v < oversold:
			return (oversold - v) / oversold
		case v > overbought:
			return -(v - overbought) / (100 - overbought)
		default:
			midpoint := (oversold + overbought) / 2
			return (midpoint - v) / (overbought - oversold)
		}
	}
}

func normalizeMACD(raw map[string]float64) float64 {
	macd, hist := raw["macd"], raw["histogram"]
	if macd == 0 && hist == 0 {
		return 0
	}
	if math.Abs(macd) == 0 {
		return 0
	}
	return hist / math.Abs(macd)
}

// normalizeStochastic combines an RSI-style level signal on %K (the
// mid-range branch halved relative to RSI's) with a crossover boost from
// %K vs %D.
func normalizeStochastic(oversold, overbought float64) func(map[string]float64) float64 {
	return func(raw map[string]float64) float64 {
		k, d := raw["k"], raw["d"]
		var levelSignal float64
		switch {
		case k <= oversold:
			levelSignal = (oversold - k) / oversold
		case k >= overbought:
			levelSignal = -(k - overbought) / (100 - overbought)
		default:
			midpoint := (oversold + overbought) / 2
			levelSignal = (midpoint - k) / (overbought - oversold) * 0.5
		}
		crossBoost := (k - d) / 20
		if crossBoost > 0.3 {
			crossBoost = 0.3
		} else if crossBoost < -0.3 {
			crossBoost = -0.3
		}
		return levelSignal + crossBoost
	}
}

// normalizeADX derives direction from +DI/-DI sign, scales trend strength
// around the threshold, and attenuates by DI separation.
func normalizeADX(threshold float64) func(map[string]float64) float64 {
	return func(raw map[string]float64) float64 {
		adx, plusDI, minusDI := raw["adx"], raw["plus_di"], raw["minus_di"]

		direction := 0.0
		switch {
		case plusDI > minusDI:
			direction = 1
		case plusDI < minusDI:
			direction = -1
		}

		var strength float64
		if adx < threshold {
			strength = adx / threshold * 0.5
		} else {
			strength = 0.5 + (adx-threshold)/75*0.5
		}

		diSeparation := math.Abs(plusDI-minusDI) / (plusDI + minusDI + 1) * 2
		if diSeparation > 1 {
			diSeparation = 1
		} else if diSeparation < 0.5 {
			diSeparation = 0.5
		}

		return direction * strength * diSeparation
	}
}

func normalizeOBV(raw map[string]float64) float64 {
	return raw["slope_normalized"] / 5
}

// normalizeBollinger is piecewise over %B: below the lower band and above
// the upper band extend the signal past the 0.3/0.7 near-band zones;
// inside the bands the near-band zones scale linearly toward the neutral
// middle, which itself carries a slight mean-reversion bias.
func normalizeBollinger(raw map[string]float64) float64 {
	percentB := raw["percent_b"]
	switch {
	case percentB <= 0:
		signal := 0.5 + math.Abs(percentB)*0.5
		if signal > 1 {
			signal = 1
		}
		return signal
	case percentB >= 1:
		signal := -0.5 - (percentB-1)*0.5
		if signal < -1 {
			signal = -1
		}
		return signal
	case percentB < 0.3:
		return (0.3 - percentB) / 0.3 * 0.5
	case percentB > 0.7:
		return -(percentB - 0.7) / 0.3 * 0.5
	default:
		return (0.5 - percentB) * 0.3
	}
}

// normalizeEMA scales price-vs-EMA deviation by the configured neutral
// band: inside the band the signal tops out at +/-0.3, beyond it extends
// toward +/-1.
func normalizeEMA(neutralPct float64) func(map[string]float64) float64 {
	return func(raw map[string]float64) float64 {
		ratio := raw["price_vs_ema_pct"] / neutralPct
		sign := 1.0
		if ratio < 0 {
			sign = -1
			ratio = -ratio
		}
		if ratio <= 1 {
			return sign * ratio * 0.3
		}
		extension := (ratio - 1) / 2
		if extension > 1 {
			extension = 1
		}
		return sign * (0.3 + 0.7*extension)
	}
}
