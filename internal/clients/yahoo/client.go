// Package yahoo implements the quote, history and analyst data sources on
// top of Yahoo Finance.
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/verdict"
)

// Client fetches market data from Yahoo Finance. It satisfies
// domain.QuoteSource, domain.HistorySource and scanner.AnalystSource.
type Client struct {
	log zerolog.Logger
}

// New creates a Yahoo Finance client
func New(log zerolog.Logger) *Client {
	return &Client{
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// GetQuote returns the live quote for a symbol. The price comes from the
// quote endpoint (falling back to pre/post market); the day range and volume
// come from the most recent daily bar.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	symbol = normalizeSymbol(symbol)

	return await(ctx, func() (*domain.Quote, error) {
		t, err := ticker.New(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to create ticker for %s: %w", symbol, err)
		}
		defer t.Close()

		price, err := c.livePrice(t, symbol)
		if err != nil {
			return nil, err
		}

		out := &domain.Quote{
			Symbol:    symbol,
			Price:     price,
			Timestamp: time.Now().UTC(),
		}

		// The current session's bar carries the day range; its absence only
		// degrades the quote
		bars, err := t.History(models.HistoryParams{
			Period:     "5d",
			Interval:   "1d",
			AutoAdjust: true,
		})
		if err != nil || len(bars) == 0 {
			c.log.Debug().Err(err).Str("symbol", symbol).Msg("No daily bar for day range")
			return out, nil
		}

		last := bars[len(bars)-1]
		out.DayHigh = last.High
		out.DayLow = last.Low
		out.Volume = int64(last.Volume)
		return out, nil
	})
}

// GetDailyCandles returns up to `days` daily bars, oldest first
func (c *Client) GetDailyCandles(ctx context.Context, symbol string, days int) ([]domain.Candle, error) {
	symbol = normalizeSymbol(symbol)

	return await(ctx, func() ([]domain.Candle, error) {
		t, err := ticker.New(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to create ticker for %s: %w", symbol, err)
		}
		defer t.Close()

		bars, err := t.History(models.HistoryParams{
			Period:     periodForDays(days),
			Interval:   "1d",
			AutoAdjust: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get history for %s: %w", symbol, err)
		}

		candles := make([]domain.Candle, 0, len(bars))
		for _, bar := range bars {
			candles = append(candles, domain.Candle{
				Date:   bar.Date,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}
		if len(candles) > days {
			candles = candles[len(candles)-days:]
		}
		return candles, nil
	})
}

// GetConsensus returns analyst consensus for a symbol
func (c *Client) GetConsensus(ctx context.Context, symbol string) (*verdict.AnalystConsensus, error) {
	symbol = normalizeSymbol(symbol)

	return await(ctx, func() (*verdict.AnalystConsensus, error) {
		t, err := ticker.New(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to create ticker for %s: %w", symbol, err)
		}
		defer t.Close()

		targets, err := t.AnalystPriceTargets()
		if err != nil {
			return nil, fmt.Errorf("failed to get price targets for %s: %w", symbol, err)
		}

		consensus := &verdict.AnalystConsensus{
			Score:       recommendationScore(targets.RecommendationKey),
			NumAnalysts: targets.NumberOfAnalysts,
		}

		target := targets.Mean
		if target == 0 {
			target = targets.Median
		}
		if target > 0 {
			consensus.TargetPrice = &target
		}

		return consensus, nil
	})
}

// livePrice extracts a usable price from the quote endpoint
func (c *Client) livePrice(t *ticker.Ticker, symbol string) (float64, error) {
	quote, err := t.Quote()
	if err != nil {
		return 0, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if quote == nil {
		return 0, fmt.Errorf("empty quote for %s", symbol)
	}

	switch {
	case quote.RegularMarketPrice > 0:
		return quote.RegularMarketPrice, nil
	case quote.PostMarketPrice > 0:
		return quote.PostMarketPrice, nil
	case quote.PreMarketPrice > 0:
		return quote.PreMarketPrice, nil
	}
	return 0, fmt.Errorf("no valid price for %s", symbol)
}

// recommendationScore maps Yahoo's recommendation key to [0,1]
func recommendationScore(key string) float64 {
	switch strings.ToLower(key) {
	case "strongbuy", "strong_buy":
		return 1.0
	case "buy":
		return 0.8
	case "sell":
		return 0.2
	case "strongsell", "strong_sell":
		return 0.0
	default:
		return 0.5
	}
}

// periodForDays picks the smallest Yahoo period string covering `days`
// calendar days of daily bars.
func periodForDays(days int) string {
	switch {
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// await runs fn on its own goroutine and honors context cancellation. The
// underlying library has no context support, so an abandoned call finishes
// in the background.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn()
		ch <- outcome{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case out := <-ch:
		return out.value, out.err
	}
}

var (
	_ domain.QuoteSource   = (*Client)(nil)
	_ domain.HistorySource = (*Client)(nil)
)
