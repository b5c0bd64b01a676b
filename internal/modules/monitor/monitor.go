// Package monitor watches open positions for take-profit and stop-loss
// crossings. The cadence follows the market calendar: tight polling while
// the session is on, a slow heartbeat otherwise, plus a retroactive pass at
// startup for sessions that ran while the process was down.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/calendar"
)

// HoldingSource supplies the positions carrying exit thresholds
type HoldingSource interface {
	WatchedHoldings() ([]domain.Holding, error)
}

// Config holds monitor tuning
type Config struct {
	OpenInterval   time.Duration // tick interval while the session is on
	ClosedInterval time.Duration // tick interval while closed
	FetchTimeout   time.Duration // per-symbol quote fetch budget
	MaxConcurrent  int           // quote fetch fan-out bound
}

// Status is a point-in-time snapshot of the monitor's state
type Status struct {
	Running          bool                  `json:"running"`
	SessionState     calendar.SessionState `json:"session_state"`
	Interval         time.Duration         `json:"interval"`
	WatchedCount     int                   `json:"watched_count"`
	LastTick         time.Time             `json:"last_tick"`
	LastTickDuration time.Duration         `json:"last_tick_duration"`
	FailedFetches    int                   `json:"failed_fetches"` // in the last tick
	ExitsSettled     int                   `json:"exits_settled"`  // since start
}

// Scheduler drives the monitoring loop. Ticks run on a single goroutine, so
// a slow tick delays the next one instead of overlapping it.
type Scheduler struct {
	cfg      Config
	cal      *calendar.Calendar
	quotes   domain.QuoteSource
	holdings HoldingSource
	executor *ExitExecutor
	clock    domain.Clock
	log      zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	status Status
}

// New creates a scheduler
func New(cfg Config, cal *calendar.Calendar, quotes domain.QuoteSource, holdings HoldingSource, executor *ExitExecutor, clock domain.Clock, log zerolog.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Scheduler{
		cfg:      cfg,
		cal:      cal,
		quotes:   quotes,
		holdings: holdings,
		executor: executor,
		clock:    clock,
		log:      log.With().Str("service", "monitor").Logger(),
	}
}

// Start launches the monitoring loop. When the market is closed at startup
// the first pass is retroactive, settling threshold crossings from the most
// recent session the monitor missed.
func (m *Scheduler) Start() {
	m.stop = make(chan struct{})
	m.setRunning(true)

	m.wg.Add(1)
	go m.run()

	m.log.Info().
		Dur("open_interval", m.cfg.OpenInterval).
		Dur("closed_interval", m.cfg.ClosedInterval).
		Msg("Position monitor started")
}

// Stop shuts the loop down, letting an in-flight tick finish
func (m *Scheduler) Stop() {
	close(m.stop)
	m.wg.Wait()
	m.setRunning(false)
	m.log.Info().Msg("Position monitor stopped")
}

// Status returns a snapshot of the monitor state
func (m *Scheduler) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Scheduler) run() {
	defer m.wg.Done()

	first := true
	for {
		session := m.cal.Status(m.clock.Now())
		if first && !session.State.IsOpen() {
			m.RetroactivePass()
		} else {
			m.Tick()
		}
		first = false

		interval := m.cfg.ClosedInterval
		if m.cal.Status(m.clock.Now()).State.IsOpen() {
			interval = m.cfg.OpenInterval
		}

		timer := time.NewTimer(interval)
		select {
		case <-m.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Tick runs one monitoring pass. While the session is on it fetches live
// quotes and settles crossings; while closed it only refreshes the status,
// since prices cannot move.
func (m *Scheduler) Tick() {
	started := time.Now()
	session := m.cal.Status(m.clock.Now())

	holdings, err := m.holdings.WatchedHoldings()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to load watched holdings")
		m.finishTick(session, 0, started, 0)
		return
	}

	if !session.State.IsOpen() || len(holdings) == 0 {
		m.finishTick(session, len(holdings), started, 0)
		return
	}

	crossings, failed := m.detectLive(holdings)
	for _, c := range crossings {
		if err := m.executor.Execute(c); err == nil {
			m.countExit()
		}
	}

	m.finishTick(session, len(holdings), started, failed)
}

// RetroactivePass checks each watched holding against the most recent
// session's high/low range and settles crossings at the threshold price.
func (m *Scheduler) RetroactivePass() {
	started := time.Now()
	session := m.cal.Status(m.clock.Now())

	holdings, err := m.holdings.WatchedHoldings()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to load watched holdings")
		m.finishTick(session, 0, started, 0)
		return
	}

	failed := 0
	for _, h := range holdings {
		quote, err := m.fetchQuote(h.Symbol)
		if err != nil {
			failed++
			m.log.Warn().Err(err).Str("symbol", h.Symbol).Msg("Quote fetch failed, symbol skipped")
			continue
		}

		if c := DetectRetroactive(h, quote.DayHigh, quote.DayLow); c != nil {
			if err := m.executor.Execute(*c); err == nil {
				m.countExit()
			}
		}
	}

	m.log.Info().Int("holdings", len(holdings)).Msg("Retroactive pass complete")
	m.finishTick(session, len(holdings), started, failed)
}

// detectLive fans out quote fetches with a bounded worker count and collects
// crossings. A failed fetch skips only its own symbol.
func (m *Scheduler) detectLive(holdings []domain.Holding) ([]Crossing, int) {
	sem := make(chan struct{}, m.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var crossings []Crossing
	failed := 0

	for _, h := range holdings {
		wg.Add(1)
		sem <- struct{}{}
		go func(h domain.Holding) {
			defer wg.Done()
			defer func() { <-sem }()

			quote, err := m.fetchQuote(h.Symbol)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				m.log.Warn().Err(err).Str("symbol", h.Symbol).Msg("Quote fetch failed, symbol skipped")
				return
			}

			if c := DetectLive(h, quote.Price); c != nil {
				mu.Lock()
				crossings = append(crossings, *c)
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	return crossings, failed
}

func (m *Scheduler) fetchQuote(symbol string) (*domain.Quote, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout)
	defer cancel()
	return m.quotes.GetQuote(ctx, symbol)
}

func (m *Scheduler) finishTick(session calendar.SessionStatus, watched int, started time.Time, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.SessionState = session.State
	m.status.WatchedCount = watched
	m.status.LastTick = m.clock.Now()
	m.status.LastTickDuration = time.Since(started)
	m.status.FailedFetches = failed
	m.status.Interval = m.cfg.ClosedInterval
	if session.State.IsOpen() {
		m.status.Interval = m.cfg.OpenInterval
	}
}

func (m *Scheduler) countExit() {
	m.mu.Lock()
	m.status.ExitsSettled++
	m.mu.Unlock()
}

func (m *Scheduler) setRunning(running bool) {
	m.mu.Lock()
	m.status.Running = running
	m.mu.Unlock()
}
