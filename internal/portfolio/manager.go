// Package portfolio implements C8: the sole authority over portfolio,
// position, and trade mutations. Every exported operation here is meant to
// run inside the caller's one-transaction-per-agent-cycle boundary.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

const (
	maxPositionSizePct     = 0.25
	maxConcurrentPositions = 5
	tradingFeePct          = 0.001
	reconcileEpsilon       = 0.01
)

// Store is the persistence boundary C8 mutates through. Implementations
// wrap sqlx against the agent_portfolios/agent_positions/agent_trades
// tables, one statement per call, inside the caller's transaction.
type Store interface {
	GetPortfolio(ctx context.Context, agentID int) (*models.AgentPortfolio, error)
	GetOpenPositions(ctx context.Context, agentID int) ([]models.AgentPosition, error)
	SymbolID(ctx context.Context, symbol string) (int, bool, error)
	CreatePosition(ctx context.Context, position models.AgentPosition) (*models.AgentPosition, error)
	DeletePosition(ctx context.Context, positionID int) error
	SavePortfolio(ctx context.Context, portfolio models.AgentPortfolio) error
	CreateTrade(ctx context.Context, trade models.AgentTrade) (*models.AgentTrade, error)
	SumTradePnL(ctx context.Context, agentID int) (decimal.Decimal, error)
}

// ValidationResult is validate's outcome.
type ValidationResult struct {
	Valid        bool
	ErrorMessage string
	Warnings     []string
}

// CandleExtremes is the (high, low, close) triple checkStopLossTakeProfit
// needs per symbol.
type CandleExtremes struct {
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// ReconcileReport is reconcile's read-only output.
type ReconcileReport struct {
	Consistent          bool
	RealizedDiscrepancy decimal.Decimal
	EquityDiscrepancy   decimal.Decimal
}

// Manager is C8.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Validate checks whether action can be executed for agentID against
// currentPrices, per spec.md §4.8.
func (m *Manager) Validate(ctx context.Context, agentID int, action models.TradeAction, currentPrices map[string]decimal.Decimal) (*ValidationResult, error) {
	if action.Action == models.ActionHold {
		return &ValidationResult{Valid: true}, nil
	}

	portfolio, err := m.store.GetPortfolio(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio for agent %d: %w", agentID, err)
	}
	if portfolio == nil {
		return &ValidationResult{Valid: false, ErrorMessage: "no portfolio found for agent"}, nil
	}

	positions, err := m.store.GetOpenPositions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading open positions for agent %d: %w", agentID, err)
	}

	switch action.Action {
	case models.ActionOpenLong, models.ActionOpenShort:
		return m.validateOpen(action, *portfolio, positions, currentPrices), nil
	case models.ActionClose:
		return validateClose(action, positions), nil
	default:
		return &ValidationResult{Valid: false, ErrorMessage: fmt.Sprintf("unknown action type %q", action.Action)}, nil
	}
}

func (m *Manager) validateOpen(action models.TradeAction, portfolio models.AgentPortfolio, positions []models.AgentPosition, currentPrices map[string]decimal.Decimal) *ValidationResult {
	if action.Symbol == "" {
		return &ValidationResult{Valid: false, ErrorMessage: "symbol required for open action"}
	}
	if _, ok := currentPrices[action.Symbol]; !ok {
		return &ValidationResult{Valid: false, ErrorMessage: fmt.Sprintf("no current price available for %s", action.Symbol)}
	}
	if len(positions) >= maxConcurrentPositions {
		return &ValidationResult{Valid: false, ErrorMessage: fmt.Sprintf("maximum %d concurrent positions reached", maxConcurrentPositions)}
	}
	for _, p := range positions {
		if p.Symbol == action.Symbol {
			return &ValidationResult{Valid: false, ErrorMessage: fmt.Sprintf("already have an open position in %s", action.Symbol)}
		}
	}
	if action.PositionSizePct <= 0 {
		return &ValidationResult{Valid: false, ErrorMessage: "position size percentage required for open action"}
	}
	if action.PositionSizePct > maxPositionSizePct {
		return &ValidationResult{Valid: false, ErrorMessage: fmt.Sprintf("position size %.1f%% exceeds max %.0f%%", action.PositionSizePct*100, maxPositionSizePct*100)}
	}

	notional := portfolio.TotalEquity.Mul(decimal.NewFromFloat(action.PositionSizePct))
	fees := notional.Mul(decimal.NewFromFloat(tradingFeePct)).Mul(decimal.NewFromInt(2))
	required := notional.Add(fees)
	if portfolio.CashBalance.LessThan(required) {
		return &ValidationResult{Valid: false, ErrorMessage: fmt.Sprintf("insufficient cash: need $%s, have $%s", required.StringFixed(2), portfolio.CashBalance.StringFixed(2))}
	}

	var warnings []string
	if action.Confidence < 0.5 {
		warnings = append(warnings, fmt.Sprintf("low confidence (%.0f%%)", action.Confidence*100))
	}
	return &ValidationResult{Valid: true, Warnings: warnings}
}

func validateClose(action models.TradeAction, positions []models.AgentPosition) *ValidationResult {
	if action.Symbol == "" {
		return &ValidationResult{Valid: false, ErrorMessage: "symbol required for close action"}
	}
	for _, p := range positions {
		if p.Symbol == action.Symbol {
			return &ValidationResult{Valid: true}
		}
	}
	return &ValidationResult{Valid: false, ErrorMessage: fmt.Sprintf("no open position found for %s", action.Symbol)}
}

// OpenPosition creates a new position, reserving its notional + entry fee
// from cash.
func (m *Manager) OpenPosition(ctx context.Context, agentID int, action models.TradeAction, currentPrice decimal.Decimal, decisionID *int64) (models.ExecutionResult, error) {
	if action.Action != models.ActionOpenLong && action.Action != models.ActionOpenShort {
		return models.ExecutionResult{Success: false, ErrorMessage: "invalid action for OpenPosition"}, nil
	}

	portfolio, err := m.store.GetPortfolio(ctx, agentID)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("loading portfolio: %w", err)
	}
	if portfolio == nil {
		return models.ExecutionResult{Success: false, ErrorMessage: "no portfolio found"}, nil
	}

	symbolID, ok, err := m.store.SymbolID(ctx, action.Symbol)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("looking up symbol %s: %w", action.Symbol, err)
	}
	if !ok {
		return models.ExecutionResult{Success: false, ErrorMessage: fmt.Sprintf("symbol %s not found", action.Symbol)}, nil
	}

	notional := portfolio.TotalEquity.Mul(decimal.NewFromFloat(action.PositionSizePct))
	entryFee := notional.Mul(decimal.NewFromFloat(tradingFeePct))

	direction := models.PositionLong
	if action.Action == models.ActionOpenShort {
		direction = models.PositionShort
	}

	var stopLoss, takeProfit *decimal.Decimal
	if action.StopLossPct > 0 {
		sl := slPrice(direction, currentPrice, action.StopLossPct)
		stopLoss = &sl
	}
	if action.TakeProfitPct > 0 {
		tp := tpPrice(direction, currentPrice, action.TakeProfitPct)
		takeProfit = &tp
	}

	position := models.AgentPosition{
		AgentID:       agentID,
		SymbolID:      symbolID,
		Symbol:        action.Symbol,
		Direction:     direction,
		EntryPrice:    currentPrice,
		PositionSize:  notional,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		OpenedAt:      time.Now().UTC(),
		UnrealizedPnL: decimal.Zero,
		DecisionID:    decisionID,
	}
	created, err := m.store.CreatePosition(ctx, position)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("creating position: %w", err)
	}

	portfolio.CashBalance = portfolio.CashBalance.Sub(notional.Add(entryFee))
	portfolio.TotalFeesPaid = portfolio.TotalFeesPaid.Add(entryFee)
	portfolio.UpdatedAt = time.Now().UTC()
	if err := m.store.SavePortfolio(ctx, *portfolio); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("saving portfolio: %w", err)
	}

	logger.Info("opened position",
		zap.Int("agent_id", agentID),
		zap.String("symbol", action.Symbol),
		zap.String("direction", string(direction)),
		zap.String("notional", notional.StringFixed(2)),
	)

	return models.ExecutionResult{Success: true, Position: created}, nil
}

func slPrice(direction models.PositionSide, entry decimal.Decimal, pct float64) decimal.Decimal {
	factor := decimal.NewFromFloat(1 - pct)
	if direction == models.PositionShort {
		factor = decimal.NewFromFloat(1 + pct)
	}
	return entry.Mul(factor)
}

func tpPrice(direction models.PositionSide, entry decimal.Decimal, pct float64) decimal.Decimal {
	factor := decimal.NewFromFloat(1 + pct)
	if direction == models.PositionShort {
		factor = decimal.NewFromFloat(1 - pct)
	}
	return entry.Mul(factor)
}

// ClosePosition realizes PnL for an open position and deletes it.
func (m *Manager) ClosePosition(ctx context.Context, agentID int, symbol string, exitPrice decimal.Decimal, reason models.ExitReason, decisionID *int64) (models.ExecutionResult, error) {
	positions, err := m.store.GetOpenPositions(ctx, agentID)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("loading open positions: %w", err)
	}

	var position *models.AgentPosition
	for i := range positions {
		if positions[i].Symbol == symbol {
			position = &positions[i]
			break
		}
	}
	if position == nil {
		return models.ExecutionResult{Success: false, ErrorMessage: fmt.Sprintf("no open position found for %s", symbol)}, nil
	}

	portfolio, err := m.store.GetPortfolio(ctx, agentID)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("loading portfolio: %w", err)
	}
	if portfolio == nil {
		return models.ExecutionResult{}, fmt.Errorf("no portfolio found for agent %d", agentID)
	}

	pnl := positionPnL(*position, exitPrice)
	exitFee := position.PositionSize.Mul(decimal.NewFromFloat(tradingFeePct))
	netPnL := pnl.Sub(exitFee)

	duration := int(time.Since(position.OpenedAt).Minutes())
	if duration < 1 {
		duration = 1
	}

	trade := models.AgentTrade{
		AgentID:         agentID,
		SymbolID:        position.SymbolID,
		Symbol:          symbol,
		Direction:       position.Direction,
		EntryPrice:      position.EntryPrice,
		ExitPrice:       exitPrice,
		PositionSize:    position.PositionSize,
		PnL:             netPnL,
		Fees:            exitFee,
		ExitReason:      reason,
		OpenedAt:        position.OpenedAt,
		ClosedAt:        time.Now().UTC(),
		DurationMinutes: duration,
		DecisionID:      position.DecisionID,
		CloseDecisionID: decisionID,
	}
	createdTrade, err := m.store.CreateTrade(ctx, trade)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("creating trade: %w", err)
	}
	if err := m.store.DeletePosition(ctx, position.ID); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("deleting position: %w", err)
	}

	portfolio.CashBalance = portfolio.CashBalance.Add(position.PositionSize.Add(netPnL))
	portfolio.TotalRealizedPnL = portfolio.TotalRealizedPnL.Add(netPnL)
	portfolio.TotalFeesPaid = portfolio.TotalFeesPaid.Add(exitFee)
	portfolio.UpdatedAt = time.Now().UTC()
	if err := m.store.SavePortfolio(ctx, *portfolio); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("saving portfolio: %w", err)
	}

	logger.Info("closed position",
		zap.Int("agent_id", agentID),
		zap.String("symbol", symbol),
		zap.String("reason", string(reason)),
		zap.String("pnl", netPnL.StringFixed(2)),
	)

	return models.ExecutionResult{Success: true, Trade: createdTrade}, nil
}

func positionPnL(position models.AgentPosition, exitPrice decimal.Decimal) decimal.Decimal {
	var priceDelta decimal.Decimal
	if position.Direction == models.PositionLong {
		priceDelta = exitPrice.Sub(position.EntryPrice)
	} else {
		priceDelta = position.EntryPrice.Sub(exitPrice)
	}
	units := position.PositionSize.Div(position.EntryPrice)
	return priceDelta.Mul(units)
}

// UpdateUnrealizedPnl recomputes unrealized PnL for every open position and
// rolls total equity up to cash + Σ(notional + unrealized).
func (m *Manager) UpdateUnrealizedPnl(ctx context.Context, agentID int, currentPrices map[string]decimal.Decimal) error {
	positions, err := m.store.GetOpenPositions(ctx, agentID)
	if err != nil {
		return fmt.Errorf("loading open positions: %w", err)
	}
	portfolio, err := m.store.GetPortfolio(ctx, agentID)
	if err != nil {
		return fmt.Errorf("loading portfolio: %w", err)
	}
	if portfolio == nil {
		return fmt.Errorf("no portfolio found for agent %d", agentID)
	}

	totalUnrealized := decimal.Zero
	positionsValue := decimal.Zero
	for _, position := range positions {
		// A position with no current price keeps its last persisted
		// unrealized PnL but still counts toward equity.
		if price, ok := currentPrices[position.Symbol]; ok {
			position.UnrealizedPnL = positionPnL(position, price)
			if _, err := m.store.CreatePosition(ctx, position); err != nil {
				// CreatePosition with an existing ID is expected to upsert;
				// callers implement Store.CreatePosition as an upsert-by-ID.
				return fmt.Errorf("updating unrealized pnl for position %d: %w", position.ID, err)
			}
		}
		totalUnrealized = totalUnrealized.Add(position.UnrealizedPnL)
		positionsValue = positionsValue.Add(position.PositionSize)
	}

	portfolio.TotalEquity = portfolio.CashBalance.Add(positionsValue).Add(totalUnrealized)
	portfolio.UpdatedAt = time.Now().UTC()
	if portfolio.TotalEquity.GreaterThan(portfolio.PeakEquity) {
		portfolio.PeakEquity = portfolio.TotalEquity
	}
	if portfolio.TroughEquity.IsZero() || portfolio.TotalEquity.LessThan(portfolio.TroughEquity) {
		portfolio.TroughEquity = portfolio.TotalEquity
	}
	return m.store.SavePortfolio(ctx, *portfolio)
}

// CheckStopLossTakeProfit closes any open position whose SL or TP was hit
// by the symbol's candle extremes this bar. SL is evaluated before TP on
// the same candle; at most one close happens per position per call.
func (m *Manager) CheckStopLossTakeProfit(ctx context.Context, agentID int, candleData map[string]CandleExtremes) ([]models.ExecutionResult, error) {
	positions, err := m.store.GetOpenPositions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}

	var results []models.ExecutionResult
	for _, position := range positions {
		candle, ok := candleData[position.Symbol]
		if !ok {
			continue
		}

		if position.StopLoss != nil {
			hit := (position.Direction == models.PositionLong && candle.Low.LessThanOrEqual(*position.StopLoss)) ||
				(position.Direction == models.PositionShort && candle.High.GreaterThanOrEqual(*position.StopLoss))
			if hit {
				result, err := m.ClosePosition(ctx, agentID, position.Symbol, *position.StopLoss, models.ExitStopLoss, nil)
				if err != nil {
					return results, err
				}
				results = append(results, result)
				continue
			}
		}

		if position.TakeProfit != nil {
			hit := (position.Direction == models.PositionLong && candle.High.GreaterThanOrEqual(*position.TakeProfit)) ||
				(position.Direction == models.PositionShort && candle.Low.LessThanOrEqual(*position.TakeProfit))
			if hit {
				result, err := m.ClosePosition(ctx, agentID, position.Symbol, *position.TakeProfit, models.ExitTakeProfit, nil)
				if err != nil {
					return results, err
				}
				results = append(results, result)
			}
		}
	}
	return results, nil
}

// Reconcile verifies Σ(trades.pnl) matches the portfolio's recorded realized
// PnL and that equity matches cash + positions + unrealized, reporting any
// discrepancy beyond reconcileEpsilon. Read-only.
func (m *Manager) Reconcile(ctx context.Context, agentID int) (*ReconcileReport, error) {
	portfolio, err := m.store.GetPortfolio(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio: %w", err)
	}
	if portfolio == nil {
		return nil, fmt.Errorf("no portfolio found for agent %d", agentID)
	}

	sumRealized, err := m.store.SumTradePnL(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("summing trade pnl: %w", err)
	}

	positions, err := m.store.GetOpenPositions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}
	sumUnrealized := decimal.Zero
	positionsValue := decimal.Zero
	for _, p := range positions {
		sumUnrealized = sumUnrealized.Add(p.UnrealizedPnL)
		positionsValue = positionsValue.Add(p.PositionSize)
	}

	realizedDiscrepancy := sumRealized.Sub(portfolio.TotalRealizedPnL).Abs()
	expectedEquity := portfolio.CashBalance.Add(positionsValue).Add(sumUnrealized)
	equityDiscrepancy := expectedEquity.Sub(portfolio.TotalEquity).Abs()

	epsilon := decimal.NewFromFloat(reconcileEpsilon)
	consistent := realizedDiscrepancy.LessThan(epsilon) && equityDiscrepancy.LessThan(epsilon)

	if !consistent {
		logger.Warn("portfolio reconciliation discrepancy",
			zap.Int("agent_id", agentID),
			zap.String("realized_discrepancy", realizedDiscrepancy.StringFixed(4)),
			zap.String("equity_discrepancy", equityDiscrepancy.StringFixed(4)),
		)
	}

	return &ReconcileReport{
		Consistent:          consistent,
		RealizedDiscrepancy: realizedDiscrepancy,
		EquityDiscrepancy:   equityDiscrepancy,
	}, nil
}

// GetPortfolioSummary builds the transient PortfolioSummary view C10 hands
// to a strategy: cash, equity, and open positions as currently persisted.
// AvailableForNewPosition is left at zero; callers that need it (scaled to
// an archetype's own concurrency cap) set it themselves.
func (m *Manager) GetPortfolioSummary(ctx context.Context, agentID int, currentPrices map[string]decimal.Decimal) (*models.PortfolioSummary, error) {
	portfolio, err := m.store.GetPortfolio(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio: %w", err)
	}
	if portfolio == nil {
		return nil, fmt.Errorf("no portfolio found for agent %d", agentID)
	}
	positions, err := m.store.GetOpenPositions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}
	return &models.PortfolioSummary{
		AgentID:          agentID,
		CashBalance:      portfolio.CashBalance,
		TotalEquity:      portfolio.TotalEquity,
		TotalRealizedPnL: portfolio.TotalRealizedPnL,
		TotalFeesPaid:    portfolio.TotalFeesPaid,
		OpenPositions:    positions,
	}, nil
}

// CloseAll closes every open position for agentID, used when an agent is
// paused.
func (m *Manager) CloseAll(ctx context.Context, agentID int, currentPrices map[string]decimal.Decimal, reason models.ExitReason) ([]models.ExecutionResult, error) {
	positions, err := m.store.GetOpenPositions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}

	var results []models.ExecutionResult
	for _, position := range positions {
		price, ok := currentPrices[position.Symbol]
		if !ok {
			continue
		}
		result, err := m.ClosePosition(ctx, agentID, position.Symbol, price, reason, nil)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
