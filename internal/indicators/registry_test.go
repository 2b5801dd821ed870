package indicators

import (
	"testing"
	"time"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

func syntheticWindow(n int, start float64, trendPerBar float64) models.CandleSeries {
	candles := make([]models.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		open := price
		close := price + trendPerBar
		high := open
		if close > high {
			high = close
		}
		low := open
		if close < low {
			low = close
		}
		candles[i] = models.Candle{
			OpenTime: time.Now().Add(time.Duration(i) * time.Hour),
			Open:     models.NewDecimal(open),
			High:     models.NewDecimal(high + 0.01),
			Low:      models.NewDecimal(low - 0.01),
			Close:    models.NewDecimal(close),
			Volume:   models.NewDecimal(100 + float64(i)),
		}
		price = close
	}
	return models.CandleSeries{Symbol: "TESTUSDT", Candles: candles}
}

func TestComputeAll_InsufficientHistoryIsAllNaN(t *testing.T) {
	r := DefaultRegistry()
	window := syntheticWindow(10, 100, 0.1)
	out := r.ComputeAll(window)

	sig, ok := out["ema_200"]
	if !ok {
		t.Fatalf("expected ema_200 in output")
	}
	if !isNaN(sig.Signal) {
		t.Fatalf("expected NaN signal for ema_200 with only 10 candles, got %v", sig.Signal)
	}
}

func TestComputeAll_UptrendProducesBullishEMASignals(t *testing.T) {
	r := DefaultRegistry()
	window := syntheticWindow(250, 100, 0.5)
	out := r.ComputeAll(window)

	for _, name := range []string{"ema_20", "ema_50", "ema_200"} {
		sig := out[name]
		if isNaN(sig.Signal) {
			t.Fatalf("%s: expected a numeric signal, got NaN", name)
		}
		if sig.Signal <= 0 {
			t.Errorf("%s: expected bullish (positive) signal in a sustained uptrend, got %v", name, sig.Signal)
		}
	}
}

func TestTotalWeightSumsToOne(t *testing.T) {
	r := DefaultRegistry()
	total := r.TotalWeight()
	if total < 0.99 || total > 1.01 {
		t.Errorf("expected registry weights to sum to ~1.0, got %v", total)
	}
}

func TestNormalizeRSI_Bounds(t *testing.T) {
	fn := normalizeRSI(30, 70)
	if v := fn(map[string]float64{"rsi": 0}); v != 1 {
		t.Errorf("rsi=0 should be maximally bullish, got %v", v)
	}
	if v := fn(map[string]float64{"rsi": 100}); v != -1 {
		t.Errorf("rsi=100 should be maximally bearish, got %v", v)
	}
}

func TestNormalizeBollinger_Bounds(t *testing.T) {
	if v := normalizeBollinger(map[string]float64{"percent_b": 0}); v != 0.5 {
		t.Errorf("percent_b=0 (touching lower band) should be bullish 0.5, got %v", v)
	}
	if v := normalizeBollinger(map[string]float64{"percent_b": 1}); v != -0.5 {
		t.Errorf("percent_b=1 (touching upper band) should be bearish -0.5, got %v", v)
	}
}
