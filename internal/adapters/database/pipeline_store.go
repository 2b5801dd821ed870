package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// PipelineStore implements internal/pipeline.Store against Postgres.
type PipelineStore struct {
	db *sqlx.DB
}

// NewPipelineStore wraps db for C6's run/symbol/snapshot persistence.
func NewPipelineStore(db *sqlx.DB) *PipelineStore {
	return &PipelineStore{db: db}
}

// CreateRun inserts a new computation_runs row in the running state.
func (s *PipelineStore) CreateRun(ctx context.Context, timeframe models.Timeframe) (*models.ComputationRun, error) {
	run := &models.ComputationRun{ID: uuid.New(), Timeframe: string(timeframe), Status: models.RunRunning}
	const query = `
		INSERT INTO computation_runs (id, timeframe, status, started_at)
		VALUES ($1, $2, $3, now())
		RETURNING started_at
	`
	if err := s.db.QueryRowxContext(ctx, query, run.ID, run.Timeframe, run.Status).Scan(&run.StartedAt); err != nil {
		return nil, fmt.Errorf("create computation run: %w", err)
	}
	return run, nil
}

// UpsertSymbols ensures every symbol exists in the symbols table, returning
// symbol -> id.
func (s *PipelineStore) UpsertSymbols(ctx context.Context, symbols []models.Symbol) (map[string]int, error) {
	ids := make(map[string]int, len(symbols))
	const query = `
		INSERT INTO symbols (symbol, base_asset, quote_asset, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET is_active = EXCLUDED.is_active
		RETURNING id
	`
	for _, sym := range symbols {
		var id int
		if err := s.db.QueryRowxContext(ctx, query, sym.Symbol, sym.BaseAsset, sym.QuoteAsset, sym.IsActive).Scan(&id); err != nil {
			return nil, fmt.Errorf("upsert symbol %s: %w", sym.Symbol, err)
		}
		ids[sym.Symbol] = id
	}
	return ids, nil
}

// SaveSnapshots inserts every ranked snapshot as an immutable row.
func (s *PipelineStore) SaveSnapshots(ctx context.Context, snapshots []models.RankedSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO ranked_snapshots (
			symbol_id, timeframe, bullish_score, confidence, rank,
			indicator_signals, computed_at, run_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, snap := range snapshots {
		signals := map[string]any{}
		for k, v := range snap.IndicatorSignals {
			signals[k] = v
		}
		payload, err := json.Marshal(signals)
		if err != nil {
			return fmt.Errorf("marshal indicator_signals for symbol %d: %w", snap.SymbolID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			snap.SymbolID, snap.Timeframe, snap.BullishScore, snap.Confidence, snap.Rank,
			payload, snap.ComputedAt, snap.RunID,
		); err != nil {
			return fmt.Errorf("insert snapshot for symbol %d: %w", snap.SymbolID, err)
		}
	}
	return tx.Commit()
}

// CompleteRun marks a computation_runs row completed with its symbol count.
func (s *PipelineStore) CompleteRun(ctx context.Context, runID uuid.UUID, symbolCount int) error {
	const query = `
		UPDATE computation_runs
		SET status = $2, symbol_count = $3, finished_at = now()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, runID, models.RunCompleted, symbolCount)
	if err != nil {
		return fmt.Errorf("complete computation run %s: %w", runID, err)
	}
	return nil
}

// FailRun marks a computation_runs row failed with an error message.
func (s *PipelineStore) FailRun(ctx context.Context, runID uuid.UUID, errMsg string) error {
	const query = `
		UPDATE computation_runs
		SET status = $2, error_message = $3, finished_at = now()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, runID, models.RunFailed, errMsg)
	if err != nil {
		return fmt.Errorf("fail computation run %s: %w", runID, err)
	}
	return nil
}
