package models

import "github.com/shopspring/decimal"

// PortfolioSummary is the transient view of an agent's portfolio + open
// positions the orchestrator builds for one cycle. It never embeds a
// pointer back to the Agent; positions reference it only by id.
type PortfolioSummary struct {
	AgentID             int
	CashBalance         decimal.Decimal
	TotalEquity         decimal.Decimal
	TotalRealizedPnL    decimal.Decimal
	TotalFeesPaid       decimal.Decimal
	OpenPositions       []AgentPosition
	AvailableForNewPosition decimal.Decimal
}

// HasPosition reports whether the agent already holds a position in symbol.
func (p *PortfolioSummary) HasPosition(symbol string) bool {
	for _, pos := range p.OpenPositions {
		if pos.Symbol == symbol {
			return true
		}
	}
	return false
}

// PositionFor returns the open position in symbol, if any.
func (p *PortfolioSummary) PositionFor(symbol string) *AgentPosition {
	for i := range p.OpenPositions {
		if p.OpenPositions[i].Symbol == symbol {
			return &p.OpenPositions[i]
		}
	}
	return nil
}

// PerformanceStats summarizes an agent's trade history; the agent runner
// reads MaxDrawdownPct from it for its drawdown alert.
type PerformanceStats struct {
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64
	MaxDrawdownPct  float64
	AvgDurationMins float64
}

// Ranking is one symbol's latest scored row for the agent's timeframe, as
// the orchestrator hands it to a strategy (a flattened RankedSnapshot).
type Ranking struct {
	Symbol           string
	Rank             int
	BullishScore     float64
	Confidence       int
	Highlights       []HighlightChip
	IndicatorSignals []NamedIndicatorSignal
	PriceChangePct   *float64
	VolumeChangePct  *float64
	FundingRate      *float64
}

// NamedIndicatorSignal is an IndicatorSignal carrying its own name, the
// shape BaseRuleStrategy._get_indicator scans linearly by name.
type NamedIndicatorSignal struct {
	Name     string
	Category IndicatorCategory
	Weight   float64
	Signal   float64
	Label    SignalLabel
	Strength SignalStrength
	Raw      map[string]float64
}

// CrossTFBundle is the cross-timeframe view assembled for cross-TF
// archetypes: confluence/divergence sets, a per-symbol per-TF score map,
// and the persisted regime per timeframe.
type CrossTFBundle struct {
	BullishConfluence []string
	BearishConfluence []string
	ScoreByTF         map[string]map[string]float64 // symbol -> timeframe -> bullish score
	Regimes           map[string]TimeframeRegime     // timeframe -> regime
}

// TweetSignal is one pre-scored tweet signal as assembled by the external
// tweet-ingestion collaborator.
type TweetSignal struct {
	Symbol          string
	SentimentScore  float64
	SymbolsMentioned []string
	Category        string // e.g. "founder", "insider", "analyst", "community"
	SetupType       string // "long_entry", "short_entry", ""
	Confidence      float64
}

// TweetContext is the derived per-timeframe tweet bundle for tweet and
// hybrid source agents; the core only consumes it, never computes it.
type TweetContext struct {
	AvgSentiment         float64
	BullishCount         int
	BearishCount         int
	MostMentionedSymbols []string
	Signals              []TweetSignal
}

// AgentContext is the full input bundle a strategy sees for one cycle.
type AgentContext struct {
	AgentID      int
	AgentName    string
	Archetype    string
	Timeframe    string
	Symbol       string // for single-symbol contexts such as backtests
	Portfolio    PortfolioSummary
	Performance  PerformanceStats
	Rankings     []Ranking
	CrossTF      *CrossTFBundle
	CurrentPrices map[string]decimal.Decimal
	Memory       []string
	Tweet        *TweetContext
}

// RankingFor returns the ranking row for symbol within this context, if
// present.
func (c *AgentContext) RankingFor(symbol string) *Ranking {
	for i := range c.Rankings {
		if c.Rankings[i].Symbol == symbol {
			return &c.Rankings[i]
		}
	}
	return nil
}
