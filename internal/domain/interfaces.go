package domain

import (
	"context"
	"time"
)

// QuoteSource fetches live quotes. Implementations may fail or time out;
// callers treat per-symbol failures as recoverable.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// HistorySource fetches daily OHLCV history, oldest bar first.
type HistorySource interface {
	GetDailyCandles(ctx context.Context, symbol string, days int) ([]Candle, error)
}

// Clock abstracts wall-clock time so schedulers and the market calendar
// are testable without real timers.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

// Now returns the current wall-clock time
func (RealClock) Now() time.Time {
	return time.Now()
}
