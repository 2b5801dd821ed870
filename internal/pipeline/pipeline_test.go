package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kieranvance/pulsetrader/internal/indicators"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

type fakeExchange struct {
	symbols []models.Symbol
	candles map[string]models.CandleSeries
}

func (f *fakeExchange) ListActiveSymbols(ctx context.Context, minQuoteVolume decimal.Decimal) ([]models.Symbol, error) {
	return f.symbols, nil
}

func (f *fakeExchange) FetchCandleBatch(ctx context.Context, symbols []string, interval string, limit int) map[string]models.CandleSeries {
	return f.candles
}

type fakeLock struct {
	acquireResult bool
	released      bool
}

func (l *fakeLock) TryAcquire(ctx context.Context) (bool, error) { return l.acquireResult, nil }
func (l *fakeLock) Release(ctx context.Context) error            { l.released = true; return nil }

type fakeStore struct {
	snapshots    []models.RankedSnapshot
	completed    bool
	failed       bool
	failedReason string
}

func (s *fakeStore) CreateRun(ctx context.Context, timeframe models.Timeframe) (*models.ComputationRun, error) {
	return &models.ComputationRun{ID: uuid.New(), Timeframe: string(timeframe), Status: models.RunRunning}, nil
}

func (s *fakeStore) UpsertSymbols(ctx context.Context, symbols []models.Symbol) (map[string]int, error) {
	ids := make(map[string]int, len(symbols))
	for i, sym := range symbols {
		ids[sym.Symbol] = i + 1
	}
	return ids, nil
}

func (s *fakeStore) SaveSnapshots(ctx context.Context, snapshots []models.RankedSnapshot) error {
	s.snapshots = snapshots
	return nil
}

func (s *fakeStore) CompleteRun(ctx context.Context, runID uuid.UUID, symbolCount int) error {
	s.completed = true
	return nil
}

func (s *fakeStore) FailRun(ctx context.Context, runID uuid.UUID, errMsg string) error {
	s.failed = true
	s.failedReason = errMsg
	return nil
}

type fakeRegime struct{ called bool }

func (r *fakeRegime) Compute(ctx context.Context, timeframe models.Timeframe) error {
	r.called = true
	return nil
}

func syntheticSeries(symbol string, n int) models.CandleSeries {
	candles := make([]models.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.1
		candles[i] = models.Candle{
			OpenTime:    time.Now().Add(time.Duration(i) * time.Hour),
			Open:        models.NewDecimal(price),
			High:        models.NewDecimal(price + 1),
			Low:         models.NewDecimal(price - 1),
			Close:       models.NewDecimal(price),
			Volume:      models.NewDecimal(1000 + float64(i)),
			QuoteVolume: models.NewDecimal(100000),
		}
	}
	return models.CandleSeries{Symbol: symbol, Candles: candles}
}

func newTestRunner(exchange *fakeExchange, store *fakeStore, lock *fakeLock, regime *fakeRegime) *Runner {
	return NewRunner(exchange, store, func(models.Timeframe) Lock { return lock }, regime, indicators.DefaultRegistry(), decimal.NewFromInt(1_000_000))
}

func TestRun_SkipsOnLockConflict(t *testing.T) {
	exchange := &fakeExchange{}
	store := &fakeStore{}
	lock := &fakeLock{acquireResult: false}
	regime := &fakeRegime{}

	r := newTestRunner(exchange, store, lock, regime)
	summary, err := r.Run(context.Background(), models.Timeframe1h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != nil {
		t.Fatalf("expected nil summary on lock conflict, got %+v", summary)
	}
	if store.completed {
		t.Errorf("expected no run to be created on lock conflict")
	}
}

func TestRun_DropsSymbolsWithInsufficientCandles(t *testing.T) {
	exchange := &fakeExchange{
		symbols: []models.Symbol{{Symbol: "BTCUSDT"}, {Symbol: "THINUSDT"}},
		candles: map[string]models.CandleSeries{
			"BTCUSDT":  syntheticSeries("BTCUSDT", 200),
			"THINUSDT": syntheticSeries("THINUSDT", 10),
		},
	}
	store := &fakeStore{}
	lock := &fakeLock{acquireResult: true}
	regime := &fakeRegime{}

	r := newTestRunner(exchange, store, lock, regime)
	summary, err := r.Run(context.Background(), models.Timeframe1h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.SymbolCount != 1 {
		t.Fatalf("expected 1 surviving symbol, got %d", summary.SymbolCount)
	}
	if len(store.snapshots) != 1 || store.snapshots[0].Symbol != "BTCUSDT" {
		t.Errorf("expected snapshot for BTCUSDT only, got %+v", store.snapshots)
	}
	if !store.completed {
		t.Errorf("expected run to be marked completed")
	}
	if !regime.called {
		t.Errorf("expected regime computation to be triggered")
	}
	if !lock.released {
		t.Errorf("expected lock to be released")
	}
}

func TestRun_FailsRunOnStoreError(t *testing.T) {
	exchange := &fakeExchange{
		symbols: []models.Symbol{{Symbol: "BTCUSDT"}},
		candles: map[string]models.CandleSeries{"BTCUSDT": syntheticSeries("BTCUSDT", 200)},
	}
	store := &failingSaveStore{fakeStore: fakeStore{}}
	lock := &fakeLock{acquireResult: true}
	regime := &fakeRegime{}

	r := newTestRunner(exchange, store, lock, regime)
	_, err := r.Run(context.Background(), models.Timeframe1h)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !store.failed {
		t.Errorf("expected run to be marked failed")
	}
	if !lock.released {
		t.Errorf("expected lock to be released even on failure")
	}
}

type failingSaveStore struct {
	fakeStore
}

func (s *failingSaveStore) SaveSnapshots(ctx context.Context, snapshots []models.RankedSnapshot) error {
	return errors.New("boom")
}
