package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// AgentStore implements internal/agent.Store against Postgres.
type AgentStore struct {
	db *sqlx.DB
}

// NewAgentStore wraps db for C10's context assembly and decision logging.
func NewAgentStore(db *sqlx.DB) *AgentStore {
	return &AgentStore{db: db}
}

// ActiveAgents lists every agent watching timeframe whose status is active
// (paused and discarded agents are excluded).
func (s *AgentStore) ActiveAgents(ctx context.Context, timeframe models.Timeframe) ([]models.Agent, error) {
	const query = `
		SELECT id, name, display_name, strategy_archetype, timeframe, status,
		       initial_balance, evolution_trade_threshold, created_at
		FROM agents
		WHERE timeframe = $1 AND status = 'active'
		ORDER BY id
	`
	var agents []models.Agent
	if err := s.db.SelectContext(ctx, &agents, query, string(timeframe)); err != nil {
		return nil, fmt.Errorf("list active agents for timeframe %s: %w", timeframe, err)
	}
	return agents, nil
}

// LatestRankings returns the most recent ranked_snapshots row per symbol for
// timeframe, as the flattened view a strategy consumes.
func (s *AgentStore) LatestRankings(ctx context.Context, timeframe models.Timeframe) ([]models.Ranking, error) {
	const query = `
		SELECT DISTINCT ON (sy.symbol)
		       sy.symbol, rs.rank, rs.bullish_score, rs.confidence, rs.indicator_signals
		FROM ranked_snapshots rs
		JOIN symbols sy ON sy.id = rs.symbol_id
		WHERE rs.timeframe = $1
		ORDER BY sy.symbol, rs.computed_at DESC
	`
	rows, err := s.db.QueryxContext(ctx, query, string(timeframe))
	if err != nil {
		return nil, fmt.Errorf("latest rankings for timeframe %s: %w", timeframe, err)
	}
	defer rows.Close()

	var rankings []models.Ranking
	for rows.Next() {
		var (
			symbol     string
			rank       int16
			bullish    decimal.Decimal
			confidence int16
			rawJSON    []byte
		)
		if err := rows.Scan(&symbol, &rank, &bullish, &confidence, &rawJSON); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}

		var signals map[string]map[string]any
		if err := json.Unmarshal(rawJSON, &signals); err != nil {
			return nil, fmt.Errorf("unmarshal indicator_signals for %s: %w", symbol, err)
		}

		rankings = append(rankings, models.Ranking{
			Symbol:           symbol,
			Rank:             int(rank),
			BullishScore:     bullish.InexactFloat64(),
			Confidence:       int(confidence),
			IndicatorSignals: indicatorSignalsFromJSON(signals),
		})
	}
	return rankings, rows.Err()
}

func indicatorSignalsFromJSON(raw map[string]map[string]any) []models.NamedIndicatorSignal {
	out := make([]models.NamedIndicatorSignal, 0, len(raw))
	for name, fields := range raw {
		if name == "_market" {
			continue
		}
		sig := models.NamedIndicatorSignal{Name: name}
		if v, ok := fields["category"].(string); ok {
			sig.Category = models.IndicatorCategory(v)
		}
		if v, ok := fields["signal"].(float64); ok {
			sig.Signal = v
		}
		if v, ok := fields["label"].(string); ok {
			sig.Label = models.SignalLabel(v)
		}
		if v, ok := fields["weight"].(float64); ok {
			sig.Weight = v
		}
		if v, ok := fields["strength"].(string); ok {
			sig.Strength = models.SignalStrength(v)
		}
		if raw, ok := fields["raw"].(map[string]any); ok {
			sig.Raw = map[string]float64{}
			for k, v := range raw {
				if f, ok := v.(float64); ok {
					sig.Raw[k] = f
				}
			}
		}
		out = append(out, sig)
	}
	return out
}

// CrossTFBundle loads the externally-assembled cross-timeframe confluence
// bundle cached for timeframe, if one has been produced.
func (s *AgentStore) CrossTFBundle(ctx context.Context, timeframe models.Timeframe) (*models.CrossTFBundle, error) {
	var payload []byte
	const query = `SELECT bundle FROM cross_tf_bundles WHERE timeframe = $1`
	if err := s.db.GetContext(ctx, &payload, query, string(timeframe)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cross-tf bundle for timeframe %s: %w", timeframe, err)
	}
	var bundle models.CrossTFBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshal cross-tf bundle for timeframe %s: %w", timeframe, err)
	}
	return &bundle, nil
}

// TweetContext loads the externally-assembled tweet context cached for
// timeframe, if one has been produced.
func (s *AgentStore) TweetContext(ctx context.Context, timeframe models.Timeframe) (*models.TweetContext, error) {
	var payload []byte
	const query = `SELECT context FROM tweet_contexts WHERE timeframe = $1`
	if err := s.db.GetContext(ctx, &payload, query, string(timeframe)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("tweet context for timeframe %s: %w", timeframe, err)
	}
	var tweet models.TweetContext
	if err := json.Unmarshal(payload, &tweet); err != nil {
		return nil, fmt.Errorf("unmarshal tweet context for timeframe %s: %w", timeframe, err)
	}
	return &tweet, nil
}

// RecentMemory returns an agent's most recent memory notes, oldest first.
func (s *AgentStore) RecentMemory(ctx context.Context, agentID int) ([]string, error) {
	const query = `
		SELECT note FROM agent_memory
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT 10
	`
	var notes []string
	if err := s.db.SelectContext(ctx, &notes, query, agentID); err != nil {
		return nil, fmt.Errorf("recent memory for agent %d: %w", agentID, err)
	}
	for i, j := 0, len(notes)-1; i < j; i, j = i+1, j-1 {
		notes[i], notes[j] = notes[j], notes[i]
	}
	return notes, nil
}

// PerformanceStats aggregates an agent's closed trades.
func (s *AgentStore) PerformanceStats(ctx context.Context, agentID int) (models.PerformanceStats, error) {
	const query = `
		SELECT
			COUNT(*) AS total_trades,
			COUNT(*) FILTER (WHERE pnl > 0) AS winning_trades,
			COUNT(*) FILTER (WHERE pnl < 0) AS losing_trades,
			COALESCE(AVG(duration_minutes), 0) AS avg_duration_mins
		FROM agent_trades
		WHERE agent_id = $1
	`
	var row struct {
		TotalTrades     int     `db:"total_trades"`
		WinningTrades   int     `db:"winning_trades"`
		LosingTrades    int     `db:"losing_trades"`
		AvgDurationMins float64 `db:"avg_duration_mins"`
	}
	if err := s.db.GetContext(ctx, &row, query, agentID); err != nil {
		return models.PerformanceStats{}, fmt.Errorf("performance stats for agent %d: %w", agentID, err)
	}
	stats := models.PerformanceStats{
		TotalTrades:     row.TotalTrades,
		WinningTrades:   row.WinningTrades,
		LosingTrades:    row.LosingTrades,
		AvgDurationMins: row.AvgDurationMins,
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	}

	drawdown, err := s.maxDrawdownPct(ctx, agentID)
	if err != nil {
		return models.PerformanceStats{}, err
	}
	stats.MaxDrawdownPct = drawdown

	return stats, nil
}

// maxDrawdownPct walks closed_at-ordered trades cumulatively, tracking the
// running peak equity and the largest percentage drop from it, the same
// running-peak definition C11's SimPortfolio.Stats uses over its equity
// curve.
func (s *AgentStore) maxDrawdownPct(ctx context.Context, agentID int) (float64, error) {
	const query = `
		SELECT pnl FROM agent_trades WHERE agent_id = $1 ORDER BY closed_at ASC
	`
	var pnls []decimal.Decimal
	if err := s.db.SelectContext(ctx, &pnls, query, agentID); err != nil {
		return 0, fmt.Errorf("drawdown trade history for agent %d: %w", agentID, err)
	}
	if len(pnls) == 0 {
		return 0, nil
	}

	equity, peak := 0.0, 0.0
	var maxDrawdown float64
	for _, pnl := range pnls {
		f, _ := pnl.Float64()
		equity += f
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown, nil
}

// ActivePromptVersion returns the agent's currently-active prompt version,
// defaulting to 1 if none has been recorded.
func (s *AgentStore) ActivePromptVersion(ctx context.Context, agentID int) (int, error) {
	var version int
	const query = `SELECT version FROM agent_prompt_versions WHERE agent_id = $1 AND is_active`
	if err := s.db.GetContext(ctx, &version, query, agentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 1, nil
		}
		return 0, fmt.Errorf("active prompt version for agent %d: %w", agentID, err)
	}
	return version, nil
}

// SaveDecision inserts an immutable per-cycle decision row.
func (s *AgentStore) SaveDecision(ctx context.Context, decision models.AgentDecision) (int64, error) {
	const query = `
		INSERT INTO agent_decisions (
			agent_id, action, symbol_id, reasoning_full, reasoning_summary,
			action_params, model_used, input_tokens, output_tokens,
			estimated_cost_usd, prompt_version, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		decision.AgentID, decision.Action, decision.SymbolID, decision.ReasoningFull, decision.ReasoningSummary,
		decision.ActionParams, decision.ModelUsed, decision.InputTokens, decision.OutputTokens,
		decision.EstimatedCostUSD, decision.PromptVersion, decision.DecidedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save decision for agent %d: %w", decision.AgentID, err)
	}
	return id, nil
}

// RecordTokenUsage upserts an agent's daily LLM token/cost ledger row.
func (s *AgentStore) RecordTokenUsage(ctx context.Context, agentID int, model, taskType string, day time.Time, inputTokens, outputTokens int, costUSD decimal.Decimal) error {
	const query = `
		INSERT INTO agent_token_usage (agent_id, model, task_type, day, input_tokens, output_tokens, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id, model, task_type, day) DO UPDATE SET
			input_tokens = agent_token_usage.input_tokens + EXCLUDED.input_tokens,
			output_tokens = agent_token_usage.output_tokens + EXCLUDED.output_tokens,
			cost_usd = agent_token_usage.cost_usd + EXCLUDED.cost_usd
	`
	_, err := s.db.ExecContext(ctx, query, agentID, model, taskType, day, inputTokens, outputTokens, costUSD)
	if err != nil {
		return fmt.Errorf("record token usage for agent %d: %w", agentID, err)
	}
	return nil
}
