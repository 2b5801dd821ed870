// Package scoring implements C3: the bullish composite score and the
// confidence score, both pure functions over one symbol's indicator set.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

const expectedIndicatorCount = 9

// BullishScore is the weighted average of valid (non-NaN) signals,
// rescaled from [-1, 1] to [0, 1]. Returns 0.5 when no valid signals
// exist or the total weight of valid signals is zero.
func BullishScore(signals models.IndicatorSet) float64 {
	weightedSum := 0.0
	totalWeight := 0.0
	for _, sig := range signals {
		if math.IsNaN(sig.Signal) {
			continue
		}
		weightedSum += sig.Signal * sig.Weight
		totalWeight += sig.Weight
	}
	if totalWeight == 0 {
		return 0.5
	}
	avg := weightedSum / totalWeight
	rescaled := (avg + 1) / 2
	return models.Clip(rescaled, 0, 1)
}

const (
	agreementWeight   = 0.60
	completenessWeight = 0.25
	volumeWeight      = 0.15
	highPercentile    = 0.8
)

// Confidence is the weighted sum of agreement, completeness, and volume
// adequacy, clipped to [0, 1]. volumePercentile is nil when no volume
// context is available.
func Confidence(signals models.IndicatorSet, volumePercentile *float64) float64 {
	agreement := computeAgreement(signals)
	completeness := computeCompleteness(signals)
	volume := computeVolumeAdequacy(volumePercentile)

	score := agreementWeight*agreement + completenessWeight*completeness + volumeWeight*volume
	return models.Clip(score, 0, 1)
}

func computeAgreement(signals models.IndicatorSet) float64 {
	var valid []float64
	for _, sig := range signals {
		if !math.IsNaN(sig.Signal) {
			valid = append(valid, sig.Signal)
		}
	}
	if len(valid) < 2 {
		return 1.0
	}
	sd := stat.PopStdDev(valid, nil)
	if sd > 1 {
		sd = 1
	}
	return 1 - sd
}

func computeCompleteness(signals models.IndicatorSet) float64 {
	valid := 0
	for _, sig := range signals {
		if !math.IsNaN(sig.Signal) {
			valid++
		}
	}
	return float64(valid) / float64(expectedIndicatorCount)
}

// computeVolumeAdequacy: a percentile rank >= the 80th returns full
// adequacy; below it scales linearly. No volume context yields a neutral
// 0.5, matching the documented open question about this fallback.
func computeVolumeAdequacy(percentile *float64) float64 {
	if percentile == nil {
		return 0.5
	}
	p := *percentile
	if p >= highPercentile {
		return 1.0
	}
	return p / highPercentile
}

// VolumePercentileRank computes value's percentile rank (0..1) within a
// sorted ascending comparison set, for callers that only have the raw
// volume list rather than a pre-computed percentile.
func VolumePercentileRank(value float64, sortedAscending []float64) float64 {
	if len(sortedAscending) == 0 {
		return 0
	}
	count := 0
	for _, v := range sortedAscending {
		if v <= value {
			count++
		}
	}
	return float64(count) / float64(len(sortedAscending))
}

// ConfidencePercent rounds a [0,1] confidence score to the persisted
// integer 0-100 representation.
func ConfidencePercent(confidence float64) int {
	return int(math.Round(confidence * 100))
}
