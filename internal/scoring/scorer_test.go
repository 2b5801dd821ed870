package scoring

import (
	"math"
	"testing"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

func signalSet(values ...float64) models.IndicatorSet {
	out := make(models.IndicatorSet, len(values))
	for i, v := range values {
		out[string(rune('a'+i))] = models.IndicatorSignal{Weight: 1, Signal: v}
	}
	return out
}

func TestBullishScore_UniformSignal(t *testing.T) {
	for _, s := range []float64{-1, -0.5, 0, 0.3, 1} {
		got := BullishScore(signalSet(s, s, s))
		want := (s + 1) / 2
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("signal=%v: got %v want %v", s, got, want)
		}
	}
}

func TestBullishScore_EmptyOrAllNaNReturnsNeutral(t *testing.T) {
	if got := BullishScore(models.IndicatorSet{}); got != 0.5 {
		t.Errorf("empty set: got %v want 0.5", got)
	}
	nanSet := models.IndicatorSet{"x": {Weight: 1, Signal: math.NaN()}}
	if got := BullishScore(nanSet); got != 0.5 {
		t.Errorf("all-NaN set: got %v want 0.5", got)
	}
}

func TestConfidence_FewerThanTwoValidSignalsMaxesAgreement(t *testing.T) {
	p := 1.0
	c := Confidence(signalSet(0.5), &p)
	// agreement=1.0, completeness=1/9, volume=1.0
	want := 0.60*1.0 + 0.25*(1.0/9) + 0.15*1.0
	if math.Abs(c-want) > 1e-9 {
		t.Errorf("got %v want %v", c, want)
	}
}

func TestConfidence_NoVolumeContextIsNeutral(t *testing.T) {
	got := computeVolumeAdequacy(nil)
	if got != 0.5 {
		t.Errorf("got %v want 0.5", got)
	}
}

func TestConfidence_ClippedToUnitInterval(t *testing.T) {
	p := 1.0
	c := Confidence(signalSet(1, 1, 1, 1, 1, 1, 1, 1, 1), &p)
	if c < 0 || c > 1 {
		t.Errorf("confidence out of [0,1]: %v", c)
	}
}
