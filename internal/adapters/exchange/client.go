// Package exchange implements C1: rate-limited, read-only REST access to a
// single public spot exchange (symbol metadata and OHLCV candles only — no
// authenticated trading surface).
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

const (
	exchangeInfoPath = "/api/v3/exchangeInfo"
	ticker24hPath    = "/api/v3/ticker/24hr"
	klinesPath       = "/api/v3/klines"

	maxConcurrentRequests = 10
	requestSpacing        = 50 * time.Millisecond
	maxKlinesLimit        = 1000
)

// APIError is a typed failure from the exchange after retries are exhausted.
// It carries enough to let a caller distinguish rate limiting from a genuine
// fault without string-matching the message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error %d: %s", e.StatusCode, e.Message)
}

// Client is a read-only Binance-compatible spot REST client.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	sem        chan struct{}
}

// NewClient builds a client against baseURL (e.g. "https://api.binance.com")
// with the pack's standard retryablehttp backoff and a token-bucket limiter
// holding requests to one per requestSpacing.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 8 * time.Second
	rc.Logger = nil
	rc.CheckRetry = retryOnServerErrorOrTimeout
	// Hand back the last response once retries run out, so get can turn it
	// into an APIError carrying the real status code.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    baseURL,
		httpClient: rc,
		limiter:    rate.NewLimiter(rate.Every(requestSpacing), 1),
		sem:        make(chan struct{}, maxConcurrentRequests),
	}
}

func retryOnServerErrorOrTimeout(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// get issues a bounded-concurrency, rate-limited GET and decodes the JSON
// body into out. 429s and 5xx are retried by the underlying library, whose
// backoff honors Retry-After; a 429 that survives retries becomes an
// APIError whose message carries the Retry-After seconds, and any other
// non-200 status becomes an APIError with the response body.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60
		if h := resp.Header.Get("Retry-After"); h != "" {
			if v, perr := strconv.Atoi(h); perr == nil {
				retryAfter = v
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("rate limited, retry after %ds", retryAfter)}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type exchangeInfoSymbol struct {
	Symbol               string `json:"symbol"`
	BaseAsset            string `json:"baseAsset"`
	QuoteAsset           string `json:"quoteAsset"`
	Status               string `json:"status"`
	IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
}

type exchangeInfoResponse struct {
	Symbols []exchangeInfoSymbol `json:"symbols"`
}

type ticker24h struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

// ListActiveSymbols returns USDT spot pairs above minQuoteVolume, sorted
// descending by 24h quote volume.
func (c *Client) ListActiveSymbols(ctx context.Context, minQuoteVolume decimal.Decimal) ([]models.Symbol, error) {
	var info exchangeInfoResponse
	if err := c.get(ctx, exchangeInfoPath, nil, &info); err != nil {
		return nil, fmt.Errorf("fetching exchange info: %w", err)
	}

	eligible := make(map[string]exchangeInfoSymbol, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset == "USDT" && s.Status == "TRADING" && s.IsSpotTradingAllowed {
			eligible[s.Symbol] = s
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	var tickers []ticker24h
	if err := c.get(ctx, ticker24hPath, nil, &tickers); err != nil {
		return nil, fmt.Errorf("fetching 24h tickers: %w", err)
	}

	now := time.Now().UTC()
	var out []models.Symbol
	for _, t := range tickers {
		meta, ok := eligible[t.Symbol]
		if !ok {
			continue
		}
		qv, err := decimal.NewFromString(t.QuoteVolume)
		if err != nil {
			continue
		}
		if qv.LessThan(minQuoteVolume) {
			continue
		}
		out = append(out, models.Symbol{
			Symbol:     meta.Symbol,
			BaseAsset:  meta.BaseAsset,
			QuoteAsset: meta.QuoteAsset,
			IsActive:   true,
			LastSeenAt: now,
		})
	}

	volumeOf := make(map[string]decimal.Decimal, len(out))
	for _, t := range tickers {
		if qv, err := decimal.NewFromString(t.QuoteVolume); err == nil {
			volumeOf[t.Symbol] = qv
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return volumeOf[out[i].Symbol].GreaterThan(volumeOf[out[j].Symbol])
	})

	logger.Info("listed active symbols",
		zap.Int("count", len(out)),
		zap.String("min_quote_volume", minQuoteVolume.String()),
	)
	return out, nil
}

// FetchCandles returns the most recent limit candles for symbol at interval,
// ascending by open time.
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, limit int) (models.CandleSeries, error) {
	if limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}
	q := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}

	var rows [][]any
	if err := c.get(ctx, klinesPath, q, &rows); err != nil {
		return models.CandleSeries{}, fmt.Errorf("fetching klines for %s: %w", symbol, err)
	}

	candles, err := decodeKlineRows(rows)
	if err != nil {
		return models.CandleSeries{}, fmt.Errorf("decoding klines for %s: %w", symbol, err)
	}
	return models.CandleSeries{Symbol: symbol, Candles: candles}, nil
}

// FetchCandleBatch fans FetchCandles out across symbols with bounded
// concurrency (enforced by the client's own semaphore); symbols that fail
// individually are omitted from the result rather than failing the batch.
func (c *Client) FetchCandleBatch(ctx context.Context, symbols []string, interval string, limit int) map[string]models.CandleSeries {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]models.CandleSeries, len(symbols))
	)

	for _, sym := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			series, err := c.FetchCandles(ctx, symbol, interval, limit)
			if err != nil {
				logger.Warn("failed to fetch candles for symbol, skipping",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			results[symbol] = series
			mu.Unlock()
		}(sym)
	}
	wg.Wait()

	logger.Info("fetched candle batch",
		zap.Int("requested", len(symbols)),
		zap.Int("succeeded", len(results)),
	)
	return results
}

// FetchHistoricalCandles paginates forward from start across [start, end]
// using Binance's startTime/endTime klines params until the window is
// covered. Used only by the backtest engine.
func (c *Client) FetchHistoricalCandles(ctx context.Context, symbol, interval string, start, end time.Time) (models.CandleSeries, error) {
	var all []models.Candle
	cursor := start

	for cursor.Before(end) {
		q := url.Values{
			"symbol":    {symbol},
			"interval":  {interval},
			"limit":     {strconv.Itoa(maxKlinesLimit)},
			"startTime": {strconv.FormatInt(cursor.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(end.UnixMilli(), 10)},
		}

		var rows [][]any
		if err := c.get(ctx, klinesPath, q, &rows); err != nil {
			return models.CandleSeries{}, fmt.Errorf("fetching historical klines for %s: %w", symbol, err)
		}
		if len(rows) == 0 {
			break
		}

		candles, err := decodeKlineRows(rows)
		if err != nil {
			return models.CandleSeries{}, fmt.Errorf("decoding historical klines for %s: %w", symbol, err)
		}
		all = append(all, candles...)

		last := candles[len(candles)-1]
		if !last.CloseTime.After(cursor) {
			break // no progress, avoid an infinite loop on a malformed response
		}
		cursor = last.CloseTime.Add(time.Millisecond)

		if len(rows) < maxKlinesLimit {
			break
		}
	}

	return models.CandleSeries{Symbol: symbol, Candles: all}, nil
}

func decodeKlineRows(rows [][]any) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 9 {
			return nil, fmt.Errorf("malformed kline row: expected >=9 fields, got %d", len(row))
		}
		openTime, err := toMillis(row[0])
		if err != nil {
			return nil, err
		}
		closeTime, err := toMillis(row[6])
		if err != nil {
			return nil, err
		}
		open, err := toDecimal(row[1])
		if err != nil {
			return nil, err
		}
		high, err := toDecimal(row[2])
		if err != nil {
			return nil, err
		}
		low, err := toDecimal(row[3])
		if err != nil {
			return nil, err
		}
		cl, err := toDecimal(row[4])
		if err != nil {
			return nil, err
		}
		volume, err := toDecimal(row[5])
		if err != nil {
			return nil, err
		}
		quoteVolume, err := toDecimal(row[7])
		if err != nil {
			return nil, err
		}
		trades, err := toInt64(row[8])
		if err != nil {
			return nil, err
		}

		candles = append(candles, models.Candle{
			OpenTime:    time.UnixMilli(openTime).UTC(),
			CloseTime:   time.UnixMilli(closeTime).UTC(),
			Open:        open,
			High:        high,
			Low:         low,
			Close:       cl,
			Volume:      volume,
			QuoteVolume: quoteVolume,
			TradeCount:  trades,
		})
	}
	return candles, nil
}

func toMillis(v any) (int64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected numeric timestamp, got %T", v)
	}
	return int64(f), nil
}

func toInt64(v any) (int64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected numeric trade count, got %T", v)
	}
	return int64(f), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	s, ok := v.(string)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("expected string-encoded decimal, got %T", v)
	}
	return decimal.NewFromString(s)
}
