package monitor

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
	"github.com/aristath/papertrader/internal/modules/calendar"
	"github.com/aristath/papertrader/internal/modules/ledger"
)

type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	errs   map[string]error
	calls  int
}

func (f *fakeQuotes) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &q, nil
}

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestLedger(t *testing.T) *ledger.Service {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	svc, err := ledger.NewService(db.Conn(), 0, 100000, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func newTestScheduler(t *testing.T, svc *ledger.Service, quotes *fakeQuotes, at string) *Scheduler {
	t.Helper()

	cal, err := calendar.New(zerolog.Nop())
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now, err := time.ParseInLocation("2006-01-02 15:04", at, loc)
	require.NoError(t, err)

	cfg := Config{
		OpenInterval:   30 * time.Second,
		ClosedInterval: 5 * time.Minute,
		FetchTimeout:   time.Second,
		MaxConcurrent:  4,
	}
	executor := NewExitExecutor(svc, zerolog.Nop())
	return New(cfg, cal, quotes, svc, executor, fixedClock{t: now}, zerolog.Nop())
}

func fp(v float64) *float64 { return &v }

func TestDetectLiveTakeProfitWins(t *testing.T) {
	h := domain.Holding{Symbol: "AAPL", Shares: 10, AvgCost: 150, TakeProfit: fp(160), StopLoss: fp(145)}

	c := DetectLive(h, 161)
	require.NotNil(t, c)
	assert.Equal(t, domain.ExitTakeProfit, c.Type)
	assert.InDelta(t, 161.0, c.ExitPrice, 1e-9)
	assert.InDelta(t, 160.0, c.TargetPrice, 1e-9)

	c = DetectLive(h, 140)
	require.NotNil(t, c)
	assert.Equal(t, domain.ExitStopLoss, c.Type)
	assert.InDelta(t, 140.0, c.ExitPrice, 1e-9)

	assert.Nil(t, DetectLive(h, 150), "price between thresholds must not trigger")
}

func TestDetectRetroactiveStopLossWins(t *testing.T) {
	h := domain.Holding{Symbol: "AAPL", Shares: 10, AvgCost: 150, TakeProfit: fp(160), StopLoss: fp(145)}

	// Day range covers both thresholds: the stop is assumed to have hit first
	c := DetectRetroactive(h, 165, 140)
	require.NotNil(t, c)
	assert.Equal(t, domain.ExitStopLoss, c.Type)
	assert.InDelta(t, 145.0, c.ExitPrice, 1e-9)

	// Only the upside crossed: take-profit booked at the threshold
	c = DetectRetroactive(h, 165, 150)
	require.NotNil(t, c)
	assert.Equal(t, domain.ExitTakeProfit, c.Type)
	assert.InDelta(t, 160.0, c.ExitPrice, 1e-9)

	assert.Nil(t, DetectRetroactive(h, 155, 150))
}

func TestTickSettlesTakeProfitAtLivePrice(t *testing.T) {
	svc := newTestLedger(t)
	_, err := svc.Buy("AAPL", 10, 150, fp(160), fp(145))
	require.NoError(t, err)

	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 161},
	}}
	// Tuesday 11:00 ET, session on
	m := newTestScheduler(t, svc, quotes, "2025-06-10 11:00")

	m.Tick()

	holding, err := svc.Holding("AAPL")
	require.NoError(t, err)
	assert.Nil(t, holding)

	portfolio, err := svc.Portfolio()
	require.NoError(t, err)
	assert.InDelta(t, 100110.0, portfolio.Cash, 1e-9)

	trades, err := svc.TradeHistory(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.NotNil(t, trades[0].ExitType)
	assert.Equal(t, domain.ExitTakeProfit, *trades[0].ExitType)

	count, err := svc.UnreadAlertCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, 1, m.Status().ExitsSettled)
}

func TestTickSettlesStopLossAtLivePrice(t *testing.T) {
	svc := newTestLedger(t)
	_, err := svc.Buy("AAPL", 10, 150, fp(160), fp(145))
	require.NoError(t, err)

	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 144},
	}}
	m := newTestScheduler(t, svc, quotes, "2025-06-10 11:00")

	m.Tick()

	portfolio, err := svc.Portfolio()
	require.NoError(t, err)
	// 100000 - 1500 + 1440: the live fill is 144, below the 145 threshold
	assert.InDelta(t, 99940.0, portfolio.Cash, 1e-9)
	assert.InDelta(t, -60.0, portfolio.RealizedPL, 1e-9)
}

func TestRetroactivePassBooksAtThresholdPrice(t *testing.T) {
	svc := newTestLedger(t)
	_, err := svc.Buy("AAPL", 10, 150, fp(160), fp(145))
	require.NoError(t, err)

	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 148, DayHigh: 150, DayLow: 140},
	}}
	// Evening, session over
	m := newTestScheduler(t, svc, quotes, "2025-06-10 18:00")

	m.RetroactivePass()

	portfolio, err := svc.Portfolio()
	require.NoError(t, err)
	// 100000 - 1500 + 1450: the fill is the 145 threshold, not the 140 low
	assert.InDelta(t, 99950.0, portfolio.Cash, 1e-9)
	assert.InDelta(t, -50.0, portfolio.RealizedPL, 1e-9)

	alerts, err := svc.Alerts(10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.ExitStopLoss, alerts[0].Type)
	assert.InDelta(t, 145.0, alerts[0].ExitPrice, 1e-9)
}

func TestTickWhileClosedFetchesNothing(t *testing.T) {
	svc := newTestLedger(t)
	_, err := svc.Buy("AAPL", 10, 150, fp(160), fp(145))
	require.NoError(t, err)

	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 161},
	}}
	m := newTestScheduler(t, svc, quotes, "2025-06-10 18:00")

	m.Tick()

	assert.Zero(t, quotes.callCount(), "closed-session tick must not fetch quotes")

	holding, err := svc.Holding("AAPL")
	require.NoError(t, err)
	assert.NotNil(t, holding)

	status := m.Status()
	assert.Equal(t, calendar.StateClosed, status.SessionState)
	assert.Equal(t, 5*time.Minute, status.Interval)
}

func TestTickFetchFailureSkipsOnlyThatSymbol(t *testing.T) {
	svc := newTestLedger(t)
	_, err := svc.Buy("AAPL", 10, 150, fp(160), fp(145))
	require.NoError(t, err)
	_, err = svc.Buy("MSFT", 5, 300, fp(320), nil)
	require.NoError(t, err)

	quotes := &fakeQuotes{
		quotes: map[string]domain.Quote{
			"MSFT": {Symbol: "MSFT", Price: 325},
		},
		errs: map[string]error{
			"AAPL": fmt.Errorf("upstream timeout"),
		},
	}
	m := newTestScheduler(t, svc, quotes, "2025-06-10 11:00")

	m.Tick()

	// MSFT settled despite the AAPL failure
	msft, err := svc.Holding("MSFT")
	require.NoError(t, err)
	assert.Nil(t, msft)

	aapl, err := svc.Holding("AAPL")
	require.NoError(t, err)
	assert.NotNil(t, aapl)

	status := m.Status()
	assert.Equal(t, 1, status.FailedFetches)
	assert.Equal(t, 1, status.ExitsSettled)
}

func TestTickIgnoresHoldingsWithoutThresholds(t *testing.T) {
	svc := newTestLedger(t)
	_, err := svc.Buy("AAPL", 10, 150, nil, nil)
	require.NoError(t, err)

	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 500},
	}}
	m := newTestScheduler(t, svc, quotes, "2025-06-10 11:00")

	m.Tick()

	assert.Zero(t, quotes.callCount(), "unwatched holdings need no quotes")
	holding, err := svc.Holding("AAPL")
	require.NoError(t, err)
	assert.NotNil(t, holding)
}

func TestStartStopLifecycle(t *testing.T) {
	svc := newTestLedger(t)
	quotes := &fakeQuotes{}
	m := newTestScheduler(t, svc, quotes, "2025-06-10 18:00")

	m.Start()
	// Startup pass while closed is retroactive; with no holdings it is a no-op
	assert.Eventually(t, func() bool {
		return !m.Status().LastTick.IsZero()
	}, time.Second, 10*time.Millisecond)

	m.Stop()
	assert.False(t, m.Status().Running)
}
