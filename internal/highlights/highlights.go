// Package highlights implements C4: stateless rules that fire chips off
// indicator extremes, capped at the top four by priority.
package highlights

import (
	"sort"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

const maxChips = 4

type rule func(models.IndicatorSet) *models.HighlightChip

var rules = []rule{
	checkRSIExtremes,
	checkMACDCross,
	checkStochExtremes,
	checkADXTrend,
	checkOBVDivergence,
	checkBollingerSqueeze,
	checkEMAAlignment,
}

// Generate runs every rule once, sorts by priority descending, and caps
// the result at maxChips.
func Generate(signals models.IndicatorSet) []models.HighlightChip {
	var chips []models.HighlightChip
	for _, r := range rules {
		if chip := r(signals); chip != nil {
			chips = append(chips, *chip)
		}
	}
	sort.SliceStable(chips, func(i, j int) bool { return chips[i].Priority > chips[j].Priority })
	if len(chips) > maxChips {
		chips = chips[:maxChips]
	}
	return chips
}

func checkRSIExtremes(s models.IndicatorSet) *models.HighlightChip {
	sig, ok := s["rsi_14"]
	if !ok {
		return nil
	}
	v := sig.Raw["rsi"]
	switch {
	case v <= 25:
		return &models.HighlightChip{Text: "RSI Oversold", Category: models.HighlightBullish, Priority: 90, Indicator: "rsi_14"}
	case v >= 75:
		return &models.HighlightChip{Text: "RSI Overbought", Category: models.HighlightBearish, Priority: 90, Indicator: "rsi_14"}
	}
	return nil
}

func checkMACDCross(s models.IndicatorSet) *models.HighlightChip {
	sig, ok := s["macd_12_26_9"]
	if !ok {
		return nil
	}
	macd, hist := sig.Raw["macd"], sig.Raw["histogram"]
	if macd == 0 {
		return nil
	}
	ratio := hist / absf(macd)
	switch {
	case ratio > 0.5:
		return &models.HighlightChip{Text: "MACD Bullish Cross", Category: models.HighlightBullish, Priority: 85, Indicator: "macd_12_26_9"}
	case ratio < -0.5:
		return &models.HighlightChip{Text: "MACD Bearish Cross", Category: models.HighlightBearish, Priority: 85, Indicator: "macd_12_26_9"}
	}
	return nil
}

func checkStochExtremes(s models.IndicatorSet) *models.HighlightChip {
	sig, ok := s["stoch_14_3_3"]
	if !ok {
		return nil
	}
	k := sig.Raw["k"]
	switch {
	case k <= 15:
		return &models.HighlightChip{Text: "Stoch Oversold", Category: models.HighlightBullish, Priority: 75, Indicator: "stoch_14_3_3"}
	case k >= 85:
		return &models.HighlightChip{Text: "Stoch Overbought", Category: models.HighlightBearish, Priority: 75, Indicator: "stoch_14_3_3"}
	}
	return nil
}

func checkADXTrend(s models.IndicatorSet) *models.HighlightChip {
	sig, ok := s["adx_14"]
	if !ok {
		return nil
	}
	adx, plusDI, minusDI := sig.Raw["adx"], sig.Raw["plus_di"], sig.Raw["minus_di"]
	switch {
	case adx >= 35 && plusDI > minusDI:
		return &models.HighlightChip{Text: "Strong Uptrend", Category: models.HighlightBullish, Priority: 95, Indicator: "adx_14"}
	case adx >= 35 && plusDI < minusDI:
		return &models.HighlightChip{Text: "Strong Downtrend", Category: models.HighlightBearish, Priority: 95, Indicator: "adx_14"}
	case adx < 20:
		return &models.HighlightChip{Text: "No Trend", Category: models.HighlightNeutral, Priority: 50, Indicator: "adx_14"}
	}
	return nil
}

func checkOBVDivergence(s models.IndicatorSet) *models.HighlightChip {
	sig, ok := s["obv"]
	if !ok {
		return nil
	}
	slope := sig.Raw["slope_normalized"]
	switch {
	case slope > 3:
		return &models.HighlightChip{Text: "Strong Buying", Category: models.HighlightBullish, Priority: 80, Indicator: "obv"}
	case slope < -3:
		return &models.HighlightChip{Text: "Strong Selling", Category: models.HighlightBearish, Priority: 80, Indicator: "obv"}
	}
	return nil
}

func checkBollingerSqueeze(s models.IndicatorSet) *models.HighlightChip {
	sig, ok := s["bbands_20_2"]
	if !ok {
		return nil
	}
	percentB, bandwidth := sig.Raw["percent_b"], sig.Raw["bandwidth"]
	switch {
	case percentB <= 0:
		return &models.HighlightChip{Text: "Below BB Lower", Category: models.HighlightBullish, Priority: 70, Indicator: "bbands_20_2"}
	case percentB >= 1:
		return &models.HighlightChip{Text: "Above BB Upper", Category: models.HighlightBearish, Priority: 70, Indicator: "bbands_20_2"}
	case bandwidth < 3:
		return &models.HighlightChip{Text: "BB Squeeze", Category: models.HighlightInfo, Priority: 65, Indicator: "bbands_20_2"}
	}
	return nil
}

func checkEMAAlignment(s models.IndicatorSet) *models.HighlightChip {
	ema20, ok20 := s["ema_20"]
	ema50, ok50 := s["ema_50"]
	ema200, ok200 := s["ema_200"]
	if !ok20 || !ok50 || !ok200 {
		return nil
	}
	p20, p50, p200 := ema20.Raw["price_vs_ema_pct"], ema50.Raw["price_vs_ema_pct"], ema200.Raw["price_vs_ema_pct"]

	switch {
	case p20 > 0 && p50 > 0 && p200 > 0:
		return &models.HighlightChip{Text: "EMA Bullish", Category: models.HighlightBullish, Priority: 88, Indicator: "ema_20"}
	case p20 < 0 && p50 < 0 && p200 < 0:
		return &models.HighlightChip{Text: "EMA Bearish", Category: models.HighlightBearish, Priority: 88, Indicator: "ema_20"}
	case p20 > 0 && p200 < 0:
		return &models.HighlightChip{Text: "EMA Transition", Category: models.HighlightInfo, Priority: 60, Indicator: "ema_20"}
	}
	return nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
