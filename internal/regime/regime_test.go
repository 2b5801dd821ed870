package regime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

type fakeReader struct {
	snapshots []models.RankedSnapshot
}

func (f *fakeReader) TopSnapshots(ctx context.Context, timeframe models.Timeframe, n int) ([]models.RankedSnapshot, error) {
	return f.snapshots, nil
}

type fakeStore struct {
	upserted *models.TimeframeRegime
}

func (f *fakeStore) Upsert(ctx context.Context, r models.TimeframeRegime) error {
	f.upserted = &r
	return nil
}

func snapshotWith(bullish float64, adx, bandwidth float64) models.RankedSnapshot {
	return models.RankedSnapshot{
		ID:         1,
		BullishScore: models.NewDecimal(bullish),
		ComputedAt: time.Now(),
		RunID:      uuid.New(),
		IndicatorSignals: map[string]any{
			"adx_14":      map[string]any{"raw": map[string]any{"adx": adx}},
			"bbands_20_2": map[string]any{"raw": map[string]any{"bandwidth": bandwidth}},
		},
	}
}

func TestClassify_Volatile(t *testing.T) {
	label, conf := Classify(0.5, 30, 15)
	if label != models.RegimeVolatile {
		t.Fatalf("got %s", label)
	}
	if conf != 95 { // min(100, 50+30+15)
		t.Errorf("got confidence %v", conf)
	}
}

func TestClassify_TrendingBull(t *testing.T) {
	label, conf := Classify(0.70, 30, 5)
	if label != models.RegimeTrendingBull {
		t.Fatalf("got %s", label)
	}
	want := (0.70-0.5)*200 + 30
	if conf != want {
		t.Errorf("got %v want %v", conf, want)
	}
}

func TestClassify_TrendingBear(t *testing.T) {
	label, _ := Classify(0.30, 30, 5)
	if label != models.RegimeTrendingBear {
		t.Fatalf("got %s", label)
	}
}

func TestClassify_RangingFallback(t *testing.T) {
	label, conf := Classify(0.50, 10, 2)
	if label != models.RegimeRanging {
		t.Fatalf("got %s", label)
	}
	want := 100 - 10*2.0
	if conf != want {
		t.Errorf("got %v want %v", conf, want)
	}
}

func TestClassify_RangingConfidenceFloorsAt30(t *testing.T) {
	_, conf := Classify(0.50, 45, 2)
	if conf != 30 {
		t.Errorf("expected confidence floored at 30, got %v", conf)
	}
}

func TestCompute_AggregatesAndUpserts(t *testing.T) {
	reader := &fakeReader{snapshots: []models.RankedSnapshot{
		snapshotWith(0.8, 30, 2),
		snapshotWith(0.6, 40, 2),
	}}
	store := &fakeStore{}
	c := NewClassifier(reader, store)

	if err := c.Compute(context.Background(), models.Timeframe1h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.upserted == nil {
		t.Fatal("expected an upsert")
	}
	if store.upserted.SymbolsAnalyzed != 2 {
		t.Errorf("got %d", store.upserted.SymbolsAnalyzed)
	}
	wantADX := 35.0
	if store.upserted.AvgADX != wantADX {
		t.Errorf("got avg adx %v want %v", store.upserted.AvgADX, wantADX)
	}
}

func TestCompute_NoSnapshotsIsNoop(t *testing.T) {
	reader := &fakeReader{}
	store := &fakeStore{}
	c := NewClassifier(reader, store)

	if err := c.Compute(context.Background(), models.Timeframe1h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.upserted != nil {
		t.Errorf("expected no upsert when there are no snapshots")
	}
}
