// Package pipeline implements C6: the per-timeframe orchestration loop that
// ties C1 (exchange), C2 (indicators), C3 (scoring), C5 (ranking), and C7
// (regime) together behind one mutual-exclusion lock and one persisted run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/internal/indicators"
	"github.com/kieranvance/pulsetrader/internal/ranking"
	"github.com/kieranvance/pulsetrader/internal/scoring"
	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

const minCandlesRequired = 50

// ExchangeClient is C1's contract as consumed by the runner.
type ExchangeClient interface {
	ListActiveSymbols(ctx context.Context, minQuoteVolume decimal.Decimal) ([]models.Symbol, error)
	FetchCandleBatch(ctx context.Context, symbols []string, interval string, limit int) map[string]models.CandleSeries
}

// Lock is a non-blocking mutual-exclusion primitive guarding one run.
type Lock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds a resource-scoped Lock for one timeframe.
type LockFactory func(timeframe models.Timeframe) Lock

// Store persists runs, symbols, and snapshots. Implementations wrap a
// single transaction per call that either commits in full or rolls back.
type Store interface {
	CreateRun(ctx context.Context, timeframe models.Timeframe) (*models.ComputationRun, error)
	UpsertSymbols(ctx context.Context, symbols []models.Symbol) (map[string]int, error)
	SaveSnapshots(ctx context.Context, snapshots []models.RankedSnapshot) error
	CompleteRun(ctx context.Context, runID uuid.UUID, symbolCount int) error
	FailRun(ctx context.Context, runID uuid.UUID, errMsg string) error
}

// RegimeTrigger is C7's entry point, invoked after a run completes.
type RegimeTrigger interface {
	Compute(ctx context.Context, timeframe models.Timeframe) error
}

// CandleArchiver persists the raw candle window fetched for one timeframe
// independent of the ranked-snapshot history the Store keeps. Wiring one in
// is optional: a nil archiver just skips the archive write.
type CandleArchiver interface {
	AddSeries(timeframe models.Timeframe, series models.CandleSeries)
}

// SymbolSummary carries what the orchestrator needs after a run without
// re-reading the database: current prices and the candle extremes C8 uses
// for stop-loss/take-profit checks.
type SymbolSummary struct {
	Symbol string
	Close  decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
}

// RunSummary is what Run returns to its caller (the scheduler).
type RunSummary struct {
	RunID       uuid.UUID
	Timeframe   models.Timeframe
	SymbolCount int
	Symbols     []SymbolSummary
}

// Runner executes one pipeline run per call to Run.
type Runner struct {
	exchange       ExchangeClient
	store          Store
	locks          LockFactory
	regime         RegimeTrigger
	indicators     *indicators.Registry
	minQuoteVolume decimal.Decimal
	archiver       CandleArchiver
}

// SetCandleArchiver wires an optional time-series archive for the raw
// candle windows each run fetches. Unset by default.
func (r *Runner) SetCandleArchiver(archiver CandleArchiver) {
	r.archiver = archiver
}

// NewRunner wires C6's dependencies. minQuoteVolume is the volume floor
// applied to C1's active-symbol listing.
func NewRunner(exchange ExchangeClient, store Store, locks LockFactory, regime RegimeTrigger, registry *indicators.Registry, minQuoteVolume decimal.Decimal) *Runner {
	return &Runner{
		exchange:       exchange,
		store:          store,
		locks:          locks,
		regime:         regime,
		indicators:     registry,
		minQuoteVolume: minQuoteVolume,
	}
}

// Run executes the §4.6 protocol for one (timeframe, tick). A lock conflict
// is not an error: it returns a nil summary and nil error, signaling the
// caller to skip this tick silently (another replica already owns it).
func (r *Runner) Run(ctx context.Context, timeframe models.Timeframe) (*RunSummary, error) {
	lock := r.locks(timeframe)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring pipeline lock for %s: %w", timeframe, err)
	}
	if !acquired {
		logger.Info("pipeline run skipped: lock held by another replica", zap.String("timeframe", string(timeframe)))
		return nil, nil
	}
	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			logger.Warn("failed to release pipeline lock", zap.String("timeframe", string(timeframe)), zap.Error(releaseErr))
		}
	}()

	run, err := r.store.CreateRun(ctx, timeframe)
	if err != nil {
		return nil, fmt.Errorf("creating computation run for %s: %w", timeframe, err)
	}

	summary, runErr := r.execute(ctx, timeframe, run)
	if runErr != nil {
		if failErr := r.store.FailRun(ctx, run.ID, runErr.Error()); failErr != nil {
			logger.Error("failed to mark run as failed",
				zap.String("run_id", run.ID.String()),
				zap.Error(failErr),
			)
		}
		return nil, runErr
	}

	if err := r.store.CompleteRun(ctx, run.ID, summary.SymbolCount); err != nil {
		return nil, fmt.Errorf("completing run %s: %w", run.ID, err)
	}

	if err := r.regime.Compute(ctx, timeframe); err != nil {
		logger.Error("regime computation failed after successful run",
			zap.String("timeframe", string(timeframe)),
			zap.Error(err),
		)
	}

	return summary, nil
}

func (r *Runner) execute(ctx context.Context, timeframe models.Timeframe, run *models.ComputationRun) (*RunSummary, error) {
	settings, ok := models.TimeframeConfig[timeframe]
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	active, err := r.exchange.ListActiveSymbols(ctx, r.minQuoteVolume)
	if err != nil {
		return nil, fmt.Errorf("listing active symbols: %w", err)
	}
	if len(active) == 0 {
		return &RunSummary{RunID: run.ID, Timeframe: timeframe}, nil
	}

	symbolIDs, err := r.store.UpsertSymbols(ctx, active)
	if err != nil {
		return nil, fmt.Errorf("upserting symbols: %w", err)
	}

	names := make([]string, len(active))
	for i, s := range active {
		names[i] = s.Symbol
	}
	candleBatch := r.exchange.FetchCandleBatch(ctx, names, settings.Interval, settings.Candles)

	if r.archiver != nil {
		for _, series := range candleBatch {
			r.archiver.AddSeries(timeframe, series)
		}
	}

	var (
		symbolData []models.SymbolData
		summaries  []SymbolSummary
		volumes    []float64
	)
	for _, sym := range active {
		series, ok := candleBatch[sym.Symbol]
		if !ok || len(series.Candles) < minCandlesRequired {
			logger.Info("dropping symbol: insufficient candles",
				zap.String("symbol", sym.Symbol),
				zap.Int("candles", len(series.Candles)),
			)
			continue
		}
		volumes = append(volumes, series.Last().Volume.InexactFloat64())
	}
	sortedVolumes := append([]float64(nil), volumes...)
	sort.Float64s(sortedVolumes)

	for _, sym := range active {
		series, ok := candleBatch[sym.Symbol]
		if !ok || len(series.Candles) < minCandlesRequired {
			continue
		}

		signals := r.indicators.ComputeAll(series)
		bullish := scoring.BullishScore(signals)
		last := series.Last()
		volumeFloat := last.Volume.InexactFloat64()
		percentile := scoring.VolumePercentileRank(volumeFloat, sortedVolumes)
		confidence := scoring.Confidence(signals, &percentile)

		priceChangePct, priceChangeAbs, volumeChangePct, volumeChangeAbs := candleDeltas(series)

		data := models.SymbolData{
			Symbol:          sym.Symbol,
			SymbolID:        symbolIDs[sym.Symbol],
			Indicators:      signals,
			QuoteVolume24h:  last.QuoteVolume.InexactFloat64(),
			PriceChangePct:  priceChangePct,
			VolumeChangePct: volumeChangePct,
			PriceChangeAbs:  priceChangeAbs,
			VolumeChangeAbs: volumeChangeAbs,
			BullishScore:    bullish,
			Confidence:      scoring.ConfidencePercent(confidence),
			LastClose:       last.Close,
			LastHigh:        last.High,
			LastLow:         last.Low,
		}
		symbolData = append(symbolData, data)
		summaries = append(summaries, SymbolSummary{Symbol: sym.Symbol, Close: last.Close, High: last.High, Low: last.Low})
	}

	computedAt := time.Now().UTC()
	snapshots := ranking.Rank(symbolData, string(timeframe), run.ID, computedAt)

	if err := r.store.SaveSnapshots(ctx, snapshots); err != nil {
		return nil, fmt.Errorf("saving snapshots: %w", err)
	}

	return &RunSummary{
		RunID:       run.ID,
		Timeframe:   timeframe,
		SymbolCount: len(symbolData),
		Symbols:     summaries,
	}, nil
}

// candleDeltas computes candle-over-candle price and volume deltas between
// the last two candles in series. Nil when fewer than two candles exist.
func candleDeltas(series models.CandleSeries) (pricePct, priceAbs, volumePct, volumeAbs *float64) {
	n := len(series.Candles)
	if n < 2 {
		return nil, nil, nil, nil
	}
	prev, last := series.Candles[n-2], series.Candles[n-1]

	prevClose := prev.Close.InexactFloat64()
	lastClose := last.Close.InexactFloat64()
	absPrice := lastClose - prevClose
	priceAbs = &absPrice
	if prevClose != 0 {
		pct := absPrice / prevClose * 100
		pricePct = &pct
	}

	prevVolume := prev.Volume.InexactFloat64()
	lastVolume := last.Volume.InexactFloat64()
	absVolume := lastVolume - prevVolume
	volumeAbs = &absVolume
	if prevVolume != 0 {
		pct := absVolume / prevVolume * 100
		volumePct = &pct
	}
	return pricePct, priceAbs, volumePct, volumeAbs
}
