// Package backtest implements C11: bar-by-bar replay of one strategy
// archetype against one symbol and timeframe, run through the identical
// indicator -> scoring -> strategy code path C6/C9 use live, against an
// in-memory SimPortfolio instead of C8's persisted one.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/internal/highlights"
	"github.com/kieranvance/pulsetrader/internal/indicators"
	"github.com/kieranvance/pulsetrader/internal/scoring"
	"github.com/kieranvance/pulsetrader/internal/strategy"
	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// warmupBars is how many leading candles indicators need (EMA200) before
// their signal is reliable; the replay starts after this many bars.
const warmupBars = 200

const cancellationCheckEvery = 50

// ExchangeClient is C1's contract as consumed by the backtest engine.
type ExchangeClient interface {
	FetchHistoricalCandles(ctx context.Context, symbol, interval string, start, end time.Time) (models.CandleSeries, error)
}

// Store persists a backtest run's lifecycle and its closed trades.
type Store interface {
	CreateRun(ctx context.Context, cfg models.BacktestConfig) (*models.BacktestRun, error)
	CompleteRun(ctx context.Context, runID int, stats Stats) error
	CancelRun(ctx context.Context, runID int) error
	FailRun(ctx context.Context, runID int, errMsg string) error
	SaveTrades(ctx context.Context, runID int, trades []SimTrade) error
}

// Engine replays candles bar by bar through the live indicator/scoring/
// strategy pipeline against an in-memory portfolio.
type Engine struct {
	exchange   ExchangeClient
	indicators *indicators.Registry
	strategies *strategy.Registry
	store      Store
}

// NewEngine wires C11's dependencies, defaulting to the live indicator
// battery and strategy archetypes.
func NewEngine(exchange ExchangeClient, store Store) *Engine {
	return &Engine{
		exchange:   exchange,
		indicators: indicators.DefaultRegistry(),
		strategies: strategy.DefaultRegistry(),
		store:      store,
	}
}

// Run executes the §4.11 protocol for cfg and persists the completed,
// cancelled, or failed run. A completed run force-closes any open position
// at the final candle and saves its trades. A cancelled run saves the trades
// closed before cancellation; a position still open at cancellation is not
// closed, so it has no trade row.
func (e *Engine) Run(ctx context.Context, cfg models.BacktestConfig) (*models.BacktestRun, error) {
	run, err := e.store.CreateRun(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create backtest run: %w", err)
	}

	strat, ok := e.strategies.Resolve(cfg.AgentName, cfg.StrategyArchetype)
	if !ok {
		msg := fmt.Sprintf("unknown strategy archetype %q", cfg.StrategyArchetype)
		if err := e.store.FailRun(ctx, run.ID, msg); err != nil {
			logger.Error("failed to mark backtest run failed", zap.Int("run_id", run.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("%s", msg)
	}

	settings, ok := models.TimeframeConfig[models.Timeframe(cfg.Timeframe)]
	if !ok {
		msg := fmt.Sprintf("unknown timeframe %q", cfg.Timeframe)
		if err := e.store.FailRun(ctx, run.ID, msg); err != nil {
			logger.Error("failed to mark backtest run failed", zap.Int("run_id", run.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("%s", msg)
	}

	warmupDuration := time.Duration(warmupBars) * timeframeDuration(settings.Interval)
	series, err := e.exchange.FetchHistoricalCandles(ctx, cfg.Symbol, settings.Interval, cfg.StartDate.Add(-warmupDuration), cfg.EndDate)
	if err != nil {
		if ferr := e.store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
			logger.Error("failed to mark backtest run failed", zap.Int("run_id", run.ID), zap.Error(ferr))
		}
		return nil, fmt.Errorf("fetch historical candles: %w", err)
	}

	if len(series.Candles) < warmupBars+10 {
		msg := fmt.Sprintf("insufficient candles: got %d, need at least %d", len(series.Candles), warmupBars+10)
		if err := e.store.FailRun(ctx, run.ID, msg); err != nil {
			logger.Error("failed to mark backtest run failed", zap.Int("run_id", run.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("%s", msg)
	}

	sim := NewSimPortfolio(cfg.InitialBalance)
	cancelled, err := e.replay(ctx, cfg, strat, series.Candles, sim)
	if err != nil {
		if ferr := e.store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
			logger.Error("failed to mark backtest run failed", zap.Int("run_id", run.ID), zap.Error(ferr))
		}
		return nil, fmt.Errorf("replay: %w", err)
	}

	if cancelled {
		// ctx is already done here, so persist with a context that keeps its
		// values but not its cancellation.
		persistCtx := context.WithoutCancel(ctx)
		if err := e.store.SaveTrades(persistCtx, run.ID, sim.Trades); err != nil {
			return nil, fmt.Errorf("save backtest trades: %w", err)
		}
		if err := e.store.CancelRun(persistCtx, run.ID); err != nil {
			return nil, fmt.Errorf("cancel backtest run: %w", err)
		}
		run.Status = models.BacktestCancelled
		return run, nil
	}

	last := series.Candles[len(series.Candles)-1]
	lastPrice := last.Close.InexactFloat64()
	for symbol := range sim.Positions {
		sim.ClosePosition(symbol, lastPrice, models.ExitBacktestEnd, last.OpenTime)
	}
	sim.UpdateEquity(map[string]float64{cfg.Symbol: lastPrice}, last.OpenTime)

	stats := sim.Stats()
	if err := e.store.SaveTrades(ctx, run.ID, sim.Trades); err != nil {
		return nil, fmt.Errorf("save backtest trades: %w", err)
	}
	if err := e.store.CompleteRun(ctx, run.ID, stats); err != nil {
		return nil, fmt.Errorf("complete backtest run: %w", err)
	}

	logger.Info("backtest completed",
		zap.Int("run_id", run.ID),
		zap.Int("total_trades", stats.TotalTrades),
		zap.Float64("total_pnl", stats.TotalPnL),
	)

	run.Status = models.BacktestCompleted
	run.FinalEquity = decimal.NewFromFloat(stats.FinalEquity)
	run.TotalPnL = decimal.NewFromFloat(stats.TotalPnL)
	run.TotalTrades = stats.TotalTrades
	run.WinningTrades = stats.WinningTrades
	run.MaxDrawdownPct = stats.MaxDrawdownPct
	if stats.SharpeRatio != nil {
		run.SharpeRatio = *stats.SharpeRatio
	}
	return run, nil
}

// replay walks candles[warmupBars:] forward, returning true if the context
// was cancelled before completion.
func (e *Engine) replay(ctx context.Context, cfg models.BacktestConfig, strat strategy.Strategy, candles []models.Candle, sim *SimPortfolio) (bool, error) {
	for i := warmupBars; i < len(candles); i++ {
		if i%cancellationCheckEvery == 0 {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
		}

		window := models.CandleSeries{Symbol: cfg.Symbol, Candles: candles[:i+1]}
		signals := e.indicators.ComputeAll(window)

		candle := candles[i]
		closePrice := candle.Close.InexactFloat64()
		prices := map[string]float64{cfg.Symbol: closePrice}

		sim.CheckStopLossTakeProfit(
			map[string]float64{cfg.Symbol: candle.High.InexactFloat64()},
			map[string]float64{cfg.Symbol: candle.Low.InexactFloat64()},
			candle.OpenTime,
		)

		ranking := buildRanking(cfg.Symbol, signals)
		agentCtx := models.AgentContext{
			AgentName:     cfg.AgentName,
			Archetype:     cfg.StrategyArchetype,
			Timeframe:     cfg.Timeframe,
			Symbol:        cfg.Symbol,
			Portfolio:     buildPortfolioSummary(sim, prices),
			Performance:   buildPerformanceStats(sim),
			Rankings:      []models.Ranking{ranking},
			CurrentPrices: map[string]decimal.Decimal{cfg.Symbol: candle.Close},
		}

		action := strat.Evaluate(agentCtx)

		switch action.Action {
		case models.ActionOpenLong, models.ActionOpenShort:
			if action.Symbol == cfg.Symbol {
				direction := models.PositionLong
				if action.Action == models.ActionOpenShort {
					direction = models.PositionShort
				}
				sizePct := action.PositionSizePct
				if sizePct <= 0 {
					sizePct = 0.10
				}
				sim.OpenPosition(cfg.Symbol, direction, closePrice, sizePct, pctPtr(action.StopLossPct), pctPtr(action.TakeProfitPct), candle.OpenTime, prices)
			}
		case models.ActionClose:
			if action.Symbol == cfg.Symbol {
				sim.ClosePosition(cfg.Symbol, closePrice, models.ExitAgentDecision, candle.OpenTime)
			}
		}

		sim.UpdateEquity(prices, candle.OpenTime)
	}
	return false, nil
}

func pctPtr(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func buildRanking(symbol string, signals models.IndicatorSet) models.Ranking {
	named := make([]models.NamedIndicatorSignal, 0, len(signals))
	for _, sig := range signals {
		named = append(named, models.NamedIndicatorSignal{
			Name:     sig.Name,
			Category: sig.Category,
			Weight:   sig.Weight,
			Signal:   sig.Signal,
			Label:    sig.Label,
			Strength: sig.Strength,
			Raw:      sig.Raw,
		})
	}

	bullish := scoring.BullishScore(signals)
	confidence := scoring.Confidence(signals, nil)

	return models.Ranking{
		Symbol:           symbol,
		Rank:             1,
		BullishScore:     bullish,
		Confidence:       scoring.ConfidencePercent(confidence),
		Highlights:       highlights.Generate(signals),
		IndicatorSignals: named,
	}
}

func buildPortfolioSummary(sim *SimPortfolio, prices map[string]float64) models.PortfolioSummary {
	positions := make([]models.AgentPosition, 0, len(sim.Positions))
	for _, pos := range sim.Positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			price = pos.EntryPrice
		}
		var unrealized float64
		if pos.Direction == models.PositionLong {
			unrealized = (price - pos.EntryPrice) / pos.EntryPrice * pos.PositionSize
		} else {
			unrealized = (pos.EntryPrice - price) / pos.EntryPrice * pos.PositionSize
		}
		positions = append(positions, models.AgentPosition{
			Symbol:        pos.Symbol,
			Direction:     pos.Direction,
			EntryPrice:    decimal.NewFromFloat(pos.EntryPrice),
			PositionSize:  decimal.NewFromFloat(pos.PositionSize),
			StopLoss:      decimalPtr(pos.StopLoss),
			TakeProfit:    decimalPtr(pos.TakeProfit),
			OpenedAt:      pos.OpenedAt,
			UnrealizedPnL: decimal.NewFromFloat(unrealized),
		})
	}

	equity := sim.equity(prices)
	return models.PortfolioSummary{
		CashBalance:             decimal.NewFromFloat(sim.Cash),
		TotalEquity:             decimal.NewFromFloat(equity),
		TotalRealizedPnL:        decimal.NewFromFloat(equity - sim.InitialBalance),
		OpenPositions:           positions,
		AvailableForNewPosition: decimal.NewFromFloat(sim.AvailableForNewPosition(prices)),
	}
}

func buildPerformanceStats(sim *SimPortfolio) models.PerformanceStats {
	if len(sim.Trades) == 0 {
		return models.PerformanceStats{}
	}
	winning, losing := 0, 0
	totalPnL, totalDuration := 0.0, 0
	for _, t := range sim.Trades {
		if t.PnL > 0 {
			winning++
		} else if t.PnL < 0 {
			losing++
		}
		totalPnL += t.PnL
		totalDuration += t.DurationMinutes
	}
	return models.PerformanceStats{
		TotalTrades:     len(sim.Trades),
		WinningTrades:   winning,
		LosingTrades:    losing,
		WinRate:         float64(winning) / float64(len(sim.Trades)),
		AvgDurationMins: float64(totalDuration) / float64(len(sim.Trades)),
	}
}

func decimalPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

// timeframeDuration maps an exchange interval string to its wall-clock
// span; unknown intervals fall back to one hour.
func timeframeDuration(interval string) time.Duration {
	switch interval {
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
