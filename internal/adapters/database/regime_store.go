package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/pkg/models"
)

// RegimeStore implements internal/regime.SnapshotReader and
// internal/regime.Store against Postgres.
type RegimeStore struct {
	db *sqlx.DB
}

// NewRegimeStore wraps db for C7's top-ranked reads and regime upsert.
func NewRegimeStore(db *sqlx.DB) *RegimeStore {
	return &RegimeStore{db: db}
}

// TopSnapshots returns the n best-ranked snapshots of the latest completed
// run for timeframe.
func (s *RegimeStore) TopSnapshots(ctx context.Context, timeframe models.Timeframe, n int) ([]models.RankedSnapshot, error) {
	const query = `
		SELECT rs.id, rs.symbol_id, sy.symbol, rs.timeframe, rs.bullish_score,
		       rs.confidence, rs.rank, rs.indicator_signals, rs.computed_at, rs.run_id
		FROM ranked_snapshots rs
		JOIN symbols sy ON sy.id = rs.symbol_id
		WHERE rs.timeframe = $1 AND rs.run_id = (
			SELECT id FROM computation_runs
			WHERE timeframe = $1 AND status = 'completed'
			ORDER BY finished_at DESC LIMIT 1
		)
		ORDER BY rs.rank ASC
		LIMIT $2
	`
	rows, err := s.db.QueryxContext(ctx, query, string(timeframe), n)
	if err != nil {
		return nil, fmt.Errorf("top snapshots for timeframe %s: %w", timeframe, err)
	}
	defer rows.Close()

	var snapshots []models.RankedSnapshot
	for rows.Next() {
		var (
			snap    models.RankedSnapshot
			rawJSON []byte
		)
		if err := rows.Scan(&snap.ID, &snap.SymbolID, &snap.Symbol, &snap.Timeframe,
			&snap.BullishScore, &snap.Confidence, &snap.Rank, &rawJSON, &snap.ComputedAt, &snap.RunID); err != nil {
			return nil, fmt.Errorf("scan ranked snapshot row: %w", err)
		}
		if err := json.Unmarshal(rawJSON, &snap.IndicatorSignals); err != nil {
			return nil, fmt.Errorf("unmarshal indicator_signals for %s: %w", snap.Symbol, err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// Upsert overwrites the single regime row for this timeframe.
func (s *RegimeStore) Upsert(ctx context.Context, regime models.TimeframeRegime) error {
	const query = `
		INSERT INTO timeframe_regimes (
			timeframe, regime, confidence, avg_score, avg_adx, avg_bandwidth,
			symbols_analyzed, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (timeframe) DO UPDATE SET
			regime = EXCLUDED.regime,
			confidence = EXCLUDED.confidence,
			avg_score = EXCLUDED.avg_score,
			avg_adx = EXCLUDED.avg_adx,
			avg_bandwidth = EXCLUDED.avg_bandwidth,
			symbols_analyzed = EXCLUDED.symbols_analyzed,
			computed_at = EXCLUDED.computed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		regime.Timeframe, regime.Regime, regime.Confidence,
		decimal.NewFromFloat(regime.AvgScore), decimal.NewFromFloat(regime.AvgADX),
		decimal.NewFromFloat(regime.AvgBandwidth), regime.SymbolsAnalyzed, regime.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert regime for timeframe %s: %w", regime.Timeframe, err)
	}
	return nil
}
