package highlights

import (
	"testing"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

func TestGenerate_RSIOversoldFires(t *testing.T) {
	set := models.IndicatorSet{
		"rsi_14": {Raw: map[string]float64{"rsi": 20}},
	}
	chips := Generate(set)
	if len(chips) != 1 || chips[0].Text != "RSI Oversold" {
		t.Fatalf("got %+v", chips)
	}
	if chips[0].Category != models.HighlightBullish {
		t.Errorf("expected bullish category, got %v", chips[0].Category)
	}
}

func TestGenerate_CapsAtFourByPriority(t *testing.T) {
	set := models.IndicatorSet{
		"rsi_14":       {Raw: map[string]float64{"rsi": 20}},                                            // 90
		"adx_14":       {Raw: map[string]float64{"adx": 40, "plus_di": 30, "minus_di": 10}},              // 95
		"macd_12_26_9": {Raw: map[string]float64{"macd": 10, "histogram": 6}},                            // 85
		"stoch_14_3_3": {Raw: map[string]float64{"k": 10, "d": 5}},                                       // 75
		"obv":          {Raw: map[string]float64{"slope_normalized": 5}},                                 // 80
		"bbands_20_2":  {Raw: map[string]float64{"percent_b": 0}},                                        // 70
	}
	chips := Generate(set)
	if len(chips) != 4 {
		t.Fatalf("expected 4 chips, got %d: %+v", len(chips), chips)
	}
	for i := 1; i < len(chips); i++ {
		if chips[i].Priority > chips[i-1].Priority {
			t.Errorf("chips not sorted by priority descending: %+v", chips)
		}
	}
	if chips[0].Text != "Strong Uptrend" {
		t.Errorf("expected highest-priority chip first, got %q", chips[0].Text)
	}
}

func TestGenerate_NoExtremesProducesNoChips(t *testing.T) {
	set := models.IndicatorSet{
		"rsi_14":       {Raw: map[string]float64{"rsi": 50}},
		"macd_12_26_9": {Raw: map[string]float64{"macd": 1, "histogram": 0.1}},
		"stoch_14_3_3": {Raw: map[string]float64{"k": 50, "d": 50}},
		"adx_14":       {Raw: map[string]float64{"adx": 25, "plus_di": 20, "minus_di": 19}},
		"obv":          {Raw: map[string]float64{"slope_normalized": 0}},
		"bbands_20_2":  {Raw: map[string]float64{"percent_b": 0.5, "bandwidth": 5}},
	}
	chips := Generate(set)
	if len(chips) != 0 {
		t.Errorf("expected no chips, got %+v", chips)
	}
}

func TestCheckEMAAlignment_MissingEMAReturnsNil(t *testing.T) {
	set := models.IndicatorSet{"ema_20": {Raw: map[string]float64{"price_vs_ema_pct": 1}}}
	if chip := checkEMAAlignment(set); chip != nil {
		t.Errorf("expected nil when ema_50/ema_200 absent, got %+v", chip)
	}
}

func TestCheckEMAAlignment_BullishAndBearish(t *testing.T) {
	bull := models.IndicatorSet{
		"ema_20":  {Raw: map[string]float64{"price_vs_ema_pct": 1}},
		"ema_50":  {Raw: map[string]float64{"price_vs_ema_pct": 2}},
		"ema_200": {Raw: map[string]float64{"price_vs_ema_pct": 3}},
	}
	if chip := checkEMAAlignment(bull); chip == nil || chip.Text != "EMA Bullish" {
		t.Errorf("expected EMA Bullish, got %+v", chip)
	}

	bear := models.IndicatorSet{
		"ema_20":  {Raw: map[string]float64{"price_vs_ema_pct": -1}},
		"ema_50":  {Raw: map[string]float64{"price_vs_ema_pct": -2}},
		"ema_200": {Raw: map[string]float64{"price_vs_ema_pct": -3}},
	}
	if chip := checkEMAAlignment(bear); chip == nil || chip.Text != "EMA Bearish" {
		t.Errorf("expected EMA Bearish, got %+v", chip)
	}
}
