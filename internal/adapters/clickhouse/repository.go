// Package clickhouse archives raw OHLCV candles fetched by C6 into a
// time-series store, separate from the ranked-snapshot history Postgres
// keeps. It never feeds a read path in this tree; it exists so replayed
// candle history survives independent of the pipeline's rolling windows.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// Repository handles ClickHouse candle-archive writes.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ClickHouse repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SaveCandles archives one symbol+timeframe's OHLCV window.
func (r *Repository) SaveCandles(ctx context.Context, symbol string, timeframe models.Timeframe, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO market_ohlcv
		(open_time, close_time, symbol, timeframe, open, high, low, close, volume, quote_volume, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, candle := range candles {
		_, err = stmt.ExecContext(ctx,
			candle.OpenTime,
			candle.CloseTime,
			symbol,
			string(timeframe),
			candle.Open.InexactFloat64(),
			candle.High.InexactFloat64(),
			candle.Low.InexactFloat64(),
			candle.Close.InexactFloat64(),
			candle.Volume.InexactFloat64(),
			candle.QuoteVolume.InexactFloat64(),
			candle.TradeCount,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("archived candles to ClickHouse",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(timeframe)),
		zap.Int("count", len(candles)),
	)

	return nil
}
