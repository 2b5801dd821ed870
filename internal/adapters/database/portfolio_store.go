package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// PortfolioStore implements internal/portfolio.Store against Postgres.
type PortfolioStore struct {
	db *sqlx.DB
}

// NewPortfolioStore wraps db for C8's position/trade lifecycle.
func NewPortfolioStore(db *sqlx.DB) *PortfolioStore {
	return &PortfolioStore{db: db}
}

// GetPortfolio loads the one-per-agent portfolio row.
func (s *PortfolioStore) GetPortfolio(ctx context.Context, agentID int) (*models.AgentPortfolio, error) {
	var p models.AgentPortfolio
	const query = `
		SELECT agent_id, cash_balance, total_equity, total_realized_pnl, total_fees_paid, updated_at
		FROM agent_portfolios WHERE agent_id = $1
	`
	if err := s.db.GetContext(ctx, &p, query, agentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get portfolio for agent %d: %w", agentID, err)
	}
	return &p, nil
}

// GetOpenPositions loads every open position for agentID, joined for its
// display symbol.
func (s *PortfolioStore) GetOpenPositions(ctx context.Context, agentID int) ([]models.AgentPosition, error) {
	const query = `
		SELECT p.id, p.agent_id, p.symbol_id, s.symbol AS symbol, p.direction,
		       p.entry_price, p.position_size, p.stop_loss, p.take_profit,
		       p.opened_at, p.unrealized_pnl
		FROM agent_positions p
		JOIN symbols s ON s.id = p.symbol_id
		WHERE p.agent_id = $1
		ORDER BY p.opened_at
	`
	var positions []models.AgentPosition
	if err := s.db.SelectContext(ctx, &positions, query, agentID); err != nil {
		return nil, fmt.Errorf("get open positions for agent %d: %w", agentID, err)
	}
	return positions, nil
}

// SymbolID resolves a symbol string to its id.
func (s *PortfolioStore) SymbolID(ctx context.Context, symbol string) (int, bool, error) {
	var id int
	const query = `SELECT id FROM symbols WHERE symbol = $1`
	if err := s.db.GetContext(ctx, &id, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve symbol %s: %w", symbol, err)
	}
	return id, true, nil
}

// CreatePosition inserts a new open position.
func (s *PortfolioStore) CreatePosition(ctx context.Context, position models.AgentPosition) (*models.AgentPosition, error) {
	const query = `
		INSERT INTO agent_positions (
			agent_id, symbol_id, direction, entry_price, position_size,
			stop_loss, take_profit, opened_at, unrealized_pnl
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := s.db.QueryRowxContext(ctx, query,
		position.AgentID, position.SymbolID, position.Direction, position.EntryPrice, position.PositionSize,
		position.StopLoss, position.TakeProfit, position.OpenedAt, position.UnrealizedPnL,
	).Scan(&position.ID)
	if err != nil {
		return nil, fmt.Errorf("create position for agent %d symbol %d: %w", position.AgentID, position.SymbolID, err)
	}
	return &position, nil
}

// DeletePosition removes a closed position's row.
func (s *PortfolioStore) DeletePosition(ctx context.Context, positionID int) error {
	const query = `DELETE FROM agent_positions WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, positionID); err != nil {
		return fmt.Errorf("delete position %d: %w", positionID, err)
	}
	return nil
}

// SavePortfolio upserts the one-per-agent portfolio row.
func (s *PortfolioStore) SavePortfolio(ctx context.Context, portfolio models.AgentPortfolio) error {
	const query = `
		INSERT INTO agent_portfolios (agent_id, cash_balance, total_equity, total_realized_pnl, total_fees_paid, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (agent_id) DO UPDATE SET
			cash_balance = EXCLUDED.cash_balance,
			total_equity = EXCLUDED.total_equity,
			total_realized_pnl = EXCLUDED.total_realized_pnl,
			total_fees_paid = EXCLUDED.total_fees_paid,
			updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, query,
		portfolio.AgentID, portfolio.CashBalance, portfolio.TotalEquity, portfolio.TotalRealizedPnL, portfolio.TotalFeesPaid,
	)
	if err != nil {
		return fmt.Errorf("save portfolio for agent %d: %w", portfolio.AgentID, err)
	}
	return nil
}

// CreateTrade inserts a closed trade's immutable record.
func (s *PortfolioStore) CreateTrade(ctx context.Context, trade models.AgentTrade) (*models.AgentTrade, error) {
	const query = `
		INSERT INTO agent_trades (
			agent_id, symbol_id, direction, entry_price, exit_price, position_size,
			pnl, fees, exit_reason, opened_at, closed_at, duration_minutes,
			decision_id, close_decision_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err := s.db.QueryRowxContext(ctx, query,
		trade.AgentID, trade.SymbolID, trade.Direction, trade.EntryPrice, trade.ExitPrice, trade.PositionSize,
		trade.PnL, trade.Fees, trade.ExitReason, trade.OpenedAt, trade.ClosedAt, trade.DurationMinutes,
		trade.DecisionID, trade.CloseDecisionID,
	).Scan(&trade.ID)
	if err != nil {
		return nil, fmt.Errorf("create trade for agent %d symbol %d: %w", trade.AgentID, trade.SymbolID, err)
	}
	return &trade, nil
}

// SumTradePnL totals realized PnL across every closed trade for agentID.
func (s *PortfolioStore) SumTradePnL(ctx context.Context, agentID int) (decimal.Decimal, error) {
	var total decimal.Decimal
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM agent_trades WHERE agent_id = $1`
	if err := s.db.GetContext(ctx, &total, query, agentID); err != nil {
		return decimal.Zero, fmt.Errorf("sum trade pnl for agent %d: %w", agentID, err)
	}
	return total, nil
}
