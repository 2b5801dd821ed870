package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle of a ComputationRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// ComputationRun is one pipeline execution for one timeframe.
type ComputationRun struct {
	ID           uuid.UUID  `db:"id"`
	Timeframe    string     `db:"timeframe"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	SymbolCount  *int16     `db:"symbol_count"`
	Status       RunStatus  `db:"status"`
	ErrorMessage *string    `db:"error_message"`
}

// MarketDelta is the reserved "_market" pseudo-indicator embedded in every
// snapshot's indicator_signals bundle.
type MarketDelta struct {
	PriceChangePct  *float64 `json:"price_change_pct"`
	VolumeChangePct *float64 `json:"volume_change_pct"`
	PriceChangeAbs  *float64 `json:"price_change_abs"`
	VolumeChangeAbs *float64 `json:"volume_change_abs"`
	FundingRate     *float64 `json:"funding_rate"`
}

// SymbolData is everything the ranker needs about one symbol in one run,
// assembled by the pipeline runner after indicator computation.
type SymbolData struct {
	Symbol          string
	SymbolID        int
	Indicators      IndicatorSet
	QuoteVolume24h  float64
	PriceChangePct  *float64
	VolumeChangePct *float64
	PriceChangeAbs  *float64
	VolumeChangeAbs *float64
	FundingRate     *float64
	BullishScore    float64
	Confidence      int
	LastClose       decimal.Decimal
	LastHigh        decimal.Decimal
	LastLow         decimal.Decimal
}

// RankedSnapshot is the per-symbol per-timeframe ranking result of one run.
type RankedSnapshot struct {
	ID               int64           `db:"id"`
	SymbolID         int             `db:"symbol_id"`
	Symbol           string          `db:"-"`
	Timeframe        string          `db:"timeframe"`
	BullishScore     decimal.Decimal `db:"bullish_score"`
	Confidence       int16           `db:"confidence"`
	Rank             int16           `db:"rank"`
	Highlights       []HighlightChip `db:"-"`
	IndicatorSignals map[string]any  `db:"-"`
	ComputedAt       time.Time       `db:"computed_at"`
	RunID            uuid.UUID       `db:"run_id"`
}

// TimeframeRegime is the single continuously-overwritten regime row per
// timeframe.
type TimeframeRegime struct {
	Timeframe       string    `db:"timeframe"`
	Regime          string    `db:"regime"`
	Confidence      int16     `db:"confidence"`
	AvgScore        float64   `db:"avg_score"`
	AvgADX          float64   `db:"avg_adx"`
	AvgBandwidth    float64   `db:"avg_bandwidth"`
	SymbolsAnalyzed int       `db:"symbols_analyzed"`
	ComputedAt      time.Time `db:"computed_at"`
}

// Regime labels, evaluated in the order C7 checks them.
const (
	RegimeVolatile     = "volatile"
	RegimeTrendingBull = "trending_bull"
	RegimeTrendingBear = "trending_bear"
	RegimeRanging      = "ranging"
)
