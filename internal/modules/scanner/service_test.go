package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/verdict"
)

type fakeQuotes struct {
	quotes map[string]domain.Quote
	errs   map[string]error
}

func (f *fakeQuotes) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &q, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	candles map[string][]domain.Candle
	calls   int
}

func (f *fakeHistory) GetDailyCandles(_ context.Context, symbol string, _ int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	candles, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	return candles, nil
}

func (f *fakeHistory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// risingCandles produces a steady uptrend ending near the given close
func risingCandles(n int, endClose float64, volume int64) []domain.Candle {
	candles := make([]domain.Candle, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		close := endClose - float64(n-1-i)*0.5
		candles[i] = domain.Candle{
			Date:   day.AddDate(0, 0, i),
			Open:   close - 0.2,
			High:   close + 0.5,
			Low:    close - 0.5,
			Close:  close,
			Volume: volume,
		}
	}
	return candles
}

// fallingCandles produces a steady downtrend ending near the given close
func fallingCandles(n int, endClose float64, volume int64) []domain.Candle {
	candles := make([]domain.Candle, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		close := endClose + float64(n-1-i)*0.5
		candles[i] = domain.Candle{
			Date:   day.AddDate(0, 0, i),
			Open:   close + 0.2,
			High:   close + 0.5,
			Low:    close - 0.5,
			Close:  close,
			Volume: volume,
		}
	}
	return candles
}

func newTestCache(t *testing.T) *CandleCache {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewCandleCache(db.Conn(), zerolog.Nop())
}

func newTestService(t *testing.T, watchlist []string, quotes *fakeQuotes, history *fakeHistory) *Service {
	t.Helper()
	return New(
		Config{Watchlist: watchlist, CacheTTL: time.Hour, MaxConcurrent: 2},
		quotes,
		history,
		newTestCache(t),
		verdict.New(verdict.DefaultConfig()),
		nil,
		zerolog.Nop(),
	)
}

func TestScanRanksByConfidence(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"UPUP": {Symbol: "UPUP", Price: 100},
		"DOWN": {Symbol: "DOWN", Price: 100},
	}}
	history := &fakeHistory{candles: map[string][]domain.Candle{
		"UPUP": risingCandles(60, 100, 1000),
		"DOWN": fallingCandles(60, 100, 1000),
	}}
	svc := newTestService(t, []string{"DOWN", "UPUP"}, quotes, history)

	results, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "UPUP", results[0].Plan.Symbol)
	assert.Equal(t, "DOWN", results[1].Plan.Symbol)
	assert.Greater(t, results[0].Plan.ConfidenceScore, results[1].Plan.ConfidenceScore)
	assert.Equal(t, verdict.VerdictAvoid, results[1].Plan.Verdict)
}

func TestScanSkipsFailingSymbols(t *testing.T) {
	quotes := &fakeQuotes{
		quotes: map[string]domain.Quote{"GOOD": {Symbol: "GOOD", Price: 100}},
		errs:   map[string]error{"BAD": fmt.Errorf("upstream down")},
	}
	history := &fakeHistory{candles: map[string][]domain.Candle{
		"GOOD": risingCandles(60, 100, 1000),
	}}
	svc := newTestService(t, []string{"GOOD", "BAD"}, quotes, history)

	results, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "GOOD", results[0].Plan.Symbol)
}

func TestEvaluateServesFreshHistoryFromCache(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 100},
	}}
	history := &fakeHistory{candles: map[string][]domain.Candle{
		"AAPL": risingCandles(60, 100, 1000),
	}}
	svc := newTestService(t, []string{"AAPL"}, quotes, history)

	_, err := svc.Evaluate(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = svc.Evaluate(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, history.callCount(), "second evaluate must hit the cache")
}

func TestCandleCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	candles := risingCandles(10, 50, 500)

	require.NoError(t, cache.Put("AAPL", candles))

	got, cachedAt, err := cache.Get("AAPL")
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.False(t, cachedAt.IsZero())
	assert.InDelta(t, candles[9].Close, got[9].Close, 1e-9)
	assert.Equal(t, candles[9].Volume, got[9].Volume)
}

func TestCandleCacheMissReturnsNil(t *testing.T) {
	cache := newTestCache(t)

	got, cachedAt, err := cache.Get("NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.True(t, cachedAt.IsZero())
}

func TestCandleCachePurge(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put("AAPL", risingCandles(5, 50, 500)))

	purged, err := cache.Purge(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	got, _, err := cache.Get("AAPL")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLastPricesSkipsFailures(t *testing.T) {
	quotes := &fakeQuotes{
		quotes: map[string]domain.Quote{"AAPL": {Symbol: "AAPL", Price: 123.45}},
		errs:   map[string]error{"MSFT": fmt.Errorf("timeout")},
	}
	svc := newTestService(t, nil, quotes, &fakeHistory{})

	prices := svc.LastPrices(context.Background(), []string{"AAPL", "MSFT"})
	assert.InDelta(t, 123.45, prices["AAPL"], 1e-9)
	_, ok := prices["MSFT"]
	assert.False(t, ok)
}
