// Package jobs runs scheduled maintenance: the end-of-day portfolio
// snapshot, alert pruning and candle cache cleanup.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/modules/calendar"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/aristath/papertrader/internal/modules/scanner"
)

const (
	// Snapshot at 16:30 Eastern on weekdays, after the regular close
	snapshotSpec = "30 16 * * 1-5"
	// Housekeeping in the quiet hours
	cleanupSpec = "0 3 * * *"

	alertRetention = 30 * 24 * time.Hour
	cacheRetention = 7 * 24 * time.Hour
	jobTimeout     = 2 * time.Minute
)

// Runner owns the cron scheduler and its jobs
type Runner struct {
	cron    *cron.Cron
	ledger  *ledger.Service
	scanner *scanner.Service
	cal     *calendar.Calendar
	log     zerolog.Logger
}

// New creates the job runner. Cron expressions evaluate in the market
// timezone so the snapshot lands after the Eastern close.
func New(ledgerSvc *ledger.Service, scannerSvc *scanner.Service, cal *calendar.Calendar, log zerolog.Logger) *Runner {
	return &Runner{
		cron:    cron.New(cron.WithLocation(cal.Location())),
		ledger:  ledgerSvc,
		scanner: scannerSvc,
		cal:     cal,
		log:     log.With().Str("service", "jobs").Logger(),
	}
}

// Start registers the jobs and launches the scheduler
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(snapshotSpec, r.snapshotJob); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(cleanupSpec, r.cleanupJob); err != nil {
		return err
	}

	r.cron.Start()
	r.log.Info().
		Str("snapshot", snapshotSpec).
		Str("cleanup", cleanupSpec).
		Msg("Scheduled jobs started")
	return nil
}

// Stop shuts the scheduler down, waiting for a running job to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info().Msg("Scheduled jobs stopped")
}

// snapshotJob values the account at the close and persists the daily row
func (r *Runner) snapshotJob() {
	now := time.Now().In(r.cal.Location())
	if !r.cal.IsTradingDay(now) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	holdings, err := r.ledger.Holdings()
	if err != nil {
		r.log.Error().Err(err).Msg("Snapshot failed to load holdings")
		return
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}

	prices := r.scanner.LastPrices(ctx, symbols)
	date := now.Format("2006-01-02")
	if err := r.ledger.RecordSnapshot(date, prices); err != nil {
		r.log.Error().Err(err).Str("date", date).Msg("Snapshot failed")
		return
	}
}

// cleanupJob prunes read alerts and stale candle cache entries
func (r *Runner) cleanupJob() {
	if _, err := r.ledger.PruneReadAlerts(time.Now().Add(-alertRetention)); err != nil {
		r.log.Error().Err(err).Msg("Alert pruning failed")
	}
	if _, err := r.scanner.PurgeCache(time.Now().Add(-cacheRetention)); err != nil {
		r.log.Error().Err(err).Msg("Candle cache purge failed")
	}
}
