package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is a bar interval understood by the pipeline and the agents.
type Timeframe string

const (
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

// AllTimeframes lists every timeframe the pipeline schedules a worker for.
var AllTimeframes = []Timeframe{Timeframe15m, Timeframe30m, Timeframe1h, Timeframe4h, Timeframe1d, Timeframe1w}

// TimeframeSettings pins the exchange interval string, the candle window
// length, and the scheduling cadence for one timeframe.
type TimeframeSettings struct {
	Interval   string
	Candles    int
	CadenceMin int
}

// TimeframeConfig is the cadence table driving the six pipeline schedulers.
var TimeframeConfig = map[Timeframe]TimeframeSettings{
	Timeframe15m: {Interval: "15m", Candles: 200, CadenceMin: 5},
	Timeframe30m: {Interval: "30m", Candles: 200, CadenceMin: 10},
	Timeframe1h:  {Interval: "1h", Candles: 200, CadenceMin: 15},
	Timeframe4h:  {Interval: "4h", Candles: 200, CadenceMin: 60},
	Timeframe1d:  {Interval: "1d", Candles: 200, CadenceMin: 240},
	Timeframe1w:  {Interval: "1w", Candles: 200, CadenceMin: 1440},
}

// Symbol is a tradable instrument on the exchange.
type Symbol struct {
	ID         int       `db:"id"`
	Symbol     string    `db:"symbol"`
	BaseAsset  string    `db:"base_asset"`
	QuoteAsset string    `db:"quote_asset"`
	IsActive   bool      `db:"is_active"`
	LastSeenAt time.Time `db:"last_seen_at"`
	CreatedAt  time.Time `db:"created_at"`
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime    time.Time
	CloseTime   time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	QuoteVolume decimal.Decimal
	TradeCount  int64
}

// CandleSeries is an ascending-by-open-time window of candles for one symbol.
type CandleSeries struct {
	Symbol  string
	Candles []Candle
}

// Closes returns the close prices as a float64 slice, oldest first.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = ToFloat64(c.Close)
	}
	return out
}

func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = ToFloat64(c.High)
	}
	return out
}

func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = ToFloat64(c.Low)
	}
	return out
}

func (s CandleSeries) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = ToFloat64(c.Volume)
	}
	return out
}

// Last returns the most recent candle, or the zero value if empty.
func (s CandleSeries) Last() Candle {
	if len(s.Candles) == 0 {
		return Candle{}
	}
	return s.Candles[len(s.Candles)-1]
}
