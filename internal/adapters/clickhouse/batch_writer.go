package clickhouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// candleRecord pairs one archived candle with the symbol+timeframe it
// belongs to, since models.Candle itself carries neither.
type candleRecord struct {
	symbol    string
	timeframe models.Timeframe
	candle    models.Candle
}

// BatchWriter buffers candle records and flushes them to the repository
// in batches, either on size or on a timer.
type BatchWriter struct {
	repo        *Repository
	buffer      []candleRecord
	bufferMu    sync.Mutex
	maxBatch    int
	maxWait     time.Duration
	flushTicker *time.Ticker
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewBatchWriter creates a new candle batch writer.
func NewBatchWriter(repo *Repository, maxBatch int, maxWait time.Duration) *BatchWriter {
	ctx, cancel := context.WithCancel(context.Background())

	bw := &BatchWriter{
		repo:     repo,
		buffer:   make([]candleRecord, 0, maxBatch),
		maxBatch: maxBatch,
		maxWait:  maxWait,
		ctx:      ctx,
		cancel:   cancel,
	}

	bw.flushTicker = time.NewTicker(maxWait)

	bw.wg.Add(1)
	go bw.autoFlush()

	return bw
}

// AddCandle buffers one candle for archival, flushing immediately once
// the buffer reaches maxBatch.
func (bw *BatchWriter) AddCandle(symbol string, timeframe models.Timeframe, candle models.Candle) {
	bw.bufferMu.Lock()
	bw.buffer = append(bw.buffer, candleRecord{symbol: symbol, timeframe: timeframe, candle: candle})
	shouldFlush := len(bw.buffer) >= bw.maxBatch
	bw.bufferMu.Unlock()

	if shouldFlush {
		bw.flush()
	}
}

// AddSeries buffers every candle in a fetched window under one symbol.
func (bw *BatchWriter) AddSeries(timeframe models.Timeframe, series models.CandleSeries) {
	for _, c := range series.Candles {
		bw.AddCandle(series.Symbol, timeframe, c)
	}
}

func (bw *BatchWriter) autoFlush() {
	defer bw.wg.Done()

	for {
		select {
		case <-bw.flushTicker.C:
			bw.flush()
		case <-bw.ctx.Done():
			bw.flush()
			return
		}
	}
}

// flush writes buffered candles to ClickHouse, grouped by symbol+timeframe.
func (bw *BatchWriter) flush() {
	bw.bufferMu.Lock()
	if len(bw.buffer) == 0 {
		bw.bufferMu.Unlock()
		return
	}
	toWrite := make([]candleRecord, len(bw.buffer))
	copy(toWrite, bw.buffer)
	bw.buffer = bw.buffer[:0]
	bw.bufferMu.Unlock()

	type groupKey struct {
		symbol    string
		timeframe models.Timeframe
	}
	grouped := make(map[groupKey][]models.Candle)
	for _, rec := range toWrite {
		key := groupKey{symbol: rec.symbol, timeframe: rec.timeframe}
		grouped[key] = append(grouped[key], rec.candle)
	}

	// Not derived from bw.ctx: Close cancels that before the final flush.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for key, candles := range grouped {
		if err := bw.repo.SaveCandles(ctx, key.symbol, key.timeframe, candles); err != nil {
			logger.Error("failed to flush candle batch to ClickHouse",
				zap.String("symbol", key.symbol),
				zap.Int("count", len(candles)),
				zap.Error(err),
			)
		}
	}

	logger.Debug("flushed candle batch to ClickHouse", zap.Int("records", len(toWrite)))
}

// Close stops the writer and flushes remaining data.
func (bw *BatchWriter) Close() error {
	bw.flushTicker.Stop()
	bw.cancel()
	bw.wg.Wait()
	return nil
}
