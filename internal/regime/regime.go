// Package regime implements C7: derives one market-wide regime label per
// timeframe from the top-ranked snapshots of its latest run.
package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

const topN = 20

// SnapshotReader fetches the top-ranked snapshots from the latest completed
// run of a timeframe.
type SnapshotReader interface {
	TopSnapshots(ctx context.Context, timeframe models.Timeframe, n int) ([]models.RankedSnapshot, error)
}

// Store upserts the single continuously-overwritten regime row per timeframe.
type Store interface {
	Upsert(ctx context.Context, regime models.TimeframeRegime) error
}

// Classifier is C7.
type Classifier struct {
	reader SnapshotReader
	store  Store
}

func NewClassifier(reader SnapshotReader, store Store) *Classifier {
	return &Classifier{reader: reader, store: store}
}

// Compute reads the top-20 snapshots by rank for timeframe, aggregates
// average bullish score/ADX/Bollinger-bandwidth, classifies the regime, and
// upserts it.
func (c *Classifier) Compute(ctx context.Context, timeframe models.Timeframe) error {
	snapshots, err := c.reader.TopSnapshots(ctx, timeframe, topN)
	if err != nil {
		return fmt.Errorf("reading top snapshots for %s: %w", timeframe, err)
	}
	if len(snapshots) == 0 {
		return nil
	}

	avgScore, avgADX, avgBandwidth := aggregate(snapshots)
	label, confidence := Classify(avgScore, avgADX, avgBandwidth)

	result := models.TimeframeRegime{
		Timeframe:       string(timeframe),
		Regime:          label,
		Confidence:      int16(confidence),
		AvgScore:        avgScore,
		AvgADX:          avgADX,
		AvgBandwidth:    avgBandwidth,
		SymbolsAnalyzed: len(snapshots),
		ComputedAt:      time.Now().UTC(),
	}
	if err := c.store.Upsert(ctx, result); err != nil {
		return fmt.Errorf("upserting regime for %s: %w", timeframe, err)
	}
	return nil
}

func aggregate(snapshots []models.RankedSnapshot) (avgScore, avgADX, avgBandwidth float64) {
	var sumScore, sumADX, sumBandwidth float64
	var adxCount, bandwidthCount int

	for _, s := range snapshots {
		score, _ := s.BullishScore.Float64()
		sumScore += score

		if adx, ok := floatField(s.IndicatorSignals, "adx_14", "adx"); ok {
			sumADX += adx
			adxCount++
		}
		if bw, ok := floatField(s.IndicatorSignals, "bbands_20_2", "bandwidth"); ok {
			sumBandwidth += bw
			bandwidthCount++
		}
	}

	n := float64(len(snapshots))
	avgScore = sumScore / n
	if adxCount > 0 {
		avgADX = sumADX / float64(adxCount)
	}
	if bandwidthCount > 0 {
		avgBandwidth = sumBandwidth / float64(bandwidthCount)
	}
	return avgScore, avgADX, avgBandwidth
}

func floatField(signals map[string]any, indicator, field string) (float64, bool) {
	bundle, ok := signals[indicator].(map[string]any)
	if !ok {
		return 0, false
	}
	raw, ok := bundle["raw"].(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := raw[field].(float64)
	return v, ok
}

// Classify evaluates the §4.7 branches in order: volatile, then
// trending_bull, then trending_bear, falling back to ranging.
func Classify(avgScore, avgADX, avgBandwidth float64) (label string, confidence float64) {
	switch {
	case avgBandwidth > 10 && avgADX > 25:
		return models.RegimeVolatile, min100(50 + avgADX + avgBandwidth)
	case avgScore > 0.60 && avgADX > 25:
		return models.RegimeTrendingBull, min100((avgScore-0.5)*200 + avgADX)
	case avgScore < 0.40 && avgADX > 25:
		return models.RegimeTrendingBear, min100((0.5-avgScore)*200 + avgADX)
	default:
		return models.RegimeRanging, max30(100 - avgADX*2)
	}
}

func min100(v float64) float64 {
	if v > 100 {
		return 100
	}
	return v
}

func max30(v float64) float64 {
	if v < 30 {
		return 30
	}
	return v
}
