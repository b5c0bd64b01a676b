// Package scanner evaluates the watchlist: for each symbol it assembles a
// quote, indicator set and analyst context, runs the verdict engine and
// returns battle plans ranked by confidence.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/indicators"
	"github.com/aristath/papertrader/internal/modules/verdict"
)

// historyDays is how much daily history a scan requests. SMA50 plus the
// previous-bar gap comparison needs 51 bars; weekends and holidays thin the
// calendar days out.
const historyDays = 90

// AnalystSource fetches sell-side consensus for a symbol. Optional: a nil
// source or a per-symbol error degrades the plan, never fails the scan.
type AnalystSource interface {
	GetConsensus(ctx context.Context, symbol string) (*verdict.AnalystConsensus, error)
}

// Config holds scanner tuning
type Config struct {
	Watchlist     []string
	CacheTTL      time.Duration // candle cache freshness budget
	MaxConcurrent int
}

// Service runs watchlist scans
type Service struct {
	cfg      Config
	quotes   domain.QuoteSource
	history  domain.HistorySource
	cache    *CandleCache
	engine   *verdict.Engine
	analysts AnalystSource
	log      zerolog.Logger
}

// New creates a scanner service. analysts may be nil.
func New(cfg Config, quotes domain.QuoteSource, history domain.HistorySource, cache *CandleCache, engine *verdict.Engine, analysts AnalystSource, log zerolog.Logger) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Service{
		cfg:      cfg,
		quotes:   quotes,
		history:  history,
		cache:    cache,
		engine:   engine,
		analysts: analysts,
		log:      log.With().Str("service", "scanner").Logger(),
	}
}

// Watchlist returns the configured symbols
func (s *Service) Watchlist() []string {
	return s.cfg.Watchlist
}

// ScanResult pairs a plan with the quote it was computed from
type ScanResult struct {
	Plan  verdict.BattlePlan `json:"plan"`
	Quote domain.Quote       `json:"quote"`
}

// Scan evaluates every watchlist symbol and returns results ranked by
// confidence, highest first. A symbol whose data cannot be fetched is
// skipped with a log line; the rest of the scan proceeds.
func (s *Service) Scan(ctx context.Context) ([]ScanResult, error) {
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []ScanResult

	for _, symbol := range s.cfg.Watchlist {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.Evaluate(ctx, symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Scan skipped symbol")
				return
			}
			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Plan.ConfidenceScore != results[j].Plan.ConfidenceScore {
			return results[i].Plan.ConfidenceScore > results[j].Plan.ConfidenceScore
		}
		return results[i].Plan.Symbol < results[j].Plan.Symbol
	})

	s.log.Info().Int("evaluated", len(results)).Int("watchlist", len(s.cfg.Watchlist)).Msg("Scan complete")
	return results, nil
}

// Evaluate produces a single symbol's battle plan
func (s *Service) Evaluate(ctx context.Context, symbol string) (*ScanResult, error) {
	quote, err := s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote fetch failed: %w", err)
	}

	candles, err := s.candles(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}

	ind := indicators.Calculate(candles)

	var consensus *verdict.AnalystConsensus
	if s.analysts != nil {
		consensus, err = s.analysts.GetConsensus(ctx, symbol)
		if err != nil {
			// Analyst data is enrichment, not a requirement
			s.log.Debug().Err(err).Str("symbol", symbol).Msg("Analyst consensus unavailable")
			consensus = nil
		}
	}

	plan := s.engine.Evaluate(*quote, ind, consensus)
	return &ScanResult{Plan: plan, Quote: *quote}, nil
}

// LastPrices returns the latest quote price for each watchlist symbol,
// skipping symbols that fail. Used for portfolio valuation.
func (s *Service) LastPrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	var mu sync.Mutex
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			quote, err := s.quotes.GetQuote(ctx, symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Price fetch failed")
				return
			}
			mu.Lock()
			prices[symbol] = quote.Price
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	return prices
}

// candles returns daily history, served from the cache while fresh
func (s *Service) candles(ctx context.Context, symbol string) ([]domain.Candle, error) {
	if s.cache != nil {
		cached, cachedAt, err := s.cache.Get(symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Candle cache read failed")
		} else if cached != nil && time.Since(cachedAt) < s.cfg.CacheTTL {
			return cached, nil
		}
	}

	candles, err := s.history.GetDailyCandles(ctx, symbol, historyDays)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(symbol, candles); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Candle cache write failed")
		}
	}
	return candles, nil
}

// PurgeCache drops cache entries older than the cutoff
func (s *Service) PurgeCache(cutoff time.Time) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Purge(cutoff)
}
