package ranking

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

func TestRank_OrdersByBullishThenConfidenceDescending(t *testing.T) {
	symbols := []models.SymbolData{
		{Symbol: "AAA", BullishScore: 0.6, Confidence: 80},
		{Symbol: "BBB", BullishScore: 0.9, Confidence: 50},
		{Symbol: "CCC", BullishScore: 0.9, Confidence: 70},
	}
	out := Rank(symbols, "1h", uuid.New(), time.Now())

	want := []string{"CCC", "BBB", "AAA"}
	for i, sym := range want {
		if out[i].Symbol != sym {
			t.Fatalf("position %d: got %s want %s", i, out[i].Symbol, sym)
		}
		if int(out[i].Rank) != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, out[i].Rank)
		}
	}
}

func TestRank_SanitizesNaNAndInfToNull(t *testing.T) {
	symbols := []models.SymbolData{
		{
			Symbol: "AAA",
			Indicators: models.IndicatorSet{
				"rsi_14": {Signal: math.NaN(), Raw: map[string]float64{"rsi": math.Inf(1)}},
			},
		},
	}
	out := Rank(symbols, "1h", uuid.New(), time.Now())

	sig := out[0].IndicatorSignals["rsi_14"].(map[string]any)
	if sig["signal"] != nil {
		t.Errorf("expected NaN signal sanitized to nil, got %v", sig["signal"])
	}
	raw := sig["raw"].(map[string]any)
	if raw["rsi"] != nil {
		t.Errorf("expected +Inf raw sanitized to nil, got %v", raw["rsi"])
	}
}

func TestRank_EmbedsMarketPseudoIndicator(t *testing.T) {
	pct := 1.5
	symbols := []models.SymbolData{{Symbol: "AAA", PriceChangePct: &pct}}
	out := Rank(symbols, "1h", uuid.New(), time.Now())

	market, ok := out[0].IndicatorSignals["_market"].(map[string]any)
	if !ok {
		t.Fatalf("expected _market key in indicator signals")
	}
	if market["price_change_pct"] != pct {
		t.Errorf("got %v want %v", market["price_change_pct"], pct)
	}
	if market["funding_rate"] != nil {
		t.Errorf("expected nil funding_rate when not provided, got %v", market["funding_rate"])
	}
}

func TestRank_ContiguousRanksAcrossFullRun(t *testing.T) {
	symbols := make([]models.SymbolData, 10)
	for i := range symbols {
		symbols[i] = models.SymbolData{Symbol: "S", BullishScore: float64(i), Confidence: 50}
	}
	out := Rank(symbols, "1h", uuid.New(), time.Now())
	for i, snap := range out {
		if int(snap.Rank) != i+1 {
			t.Errorf("expected contiguous rank %d, got %d", i+1, snap.Rank)
		}
	}
}
