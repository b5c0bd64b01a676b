// Paper trading simulator entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/papertrader/internal/clients/yahoo"
	"github.com/aristath/papertrader/internal/config"
	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/jobs"
	"github.com/aristath/papertrader/internal/modules/calendar"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/aristath/papertrader/internal/modules/monitor"
	"github.com/aristath/papertrader/internal/modules/scanner"
	"github.com/aristath/papertrader/internal/modules/verdict"
	"github.com/aristath/papertrader/internal/server"
	"github.com/aristath/papertrader/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Strs("watchlist", cfg.Watchlist).
		Msg("Starting paper trader")

	// Ledger database carries the audit trail, cache database is disposable
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	defer ledgerDB.Close()

	if err := ledgerDB.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer cacheDB.Close()

	if err := cacheDB.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate cache database: %w", err)
	}

	cal, err := calendar.New(log)
	if err != nil {
		return fmt.Errorf("failed to initialize market calendar: %w", err)
	}
	if cfg.CalendarFile != "" {
		if err := cal.LoadFromFile(cfg.CalendarFile); err != nil {
			return fmt.Errorf("failed to load calendar file: %w", err)
		}
	}

	yahooClient := yahoo.New(log)

	ledgerSvc, err := ledger.NewService(ledgerDB.Conn(), cfg.CommissionPerSide, cfg.StartingCash, log)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	verdictCfg := verdict.DefaultConfig()
	verdictCfg.InvestmentBudget = cfg.InvestmentBudget
	engine := verdict.New(verdictCfg)

	candleCache := scanner.NewCandleCache(cacheDB.Conn(), log)
	scannerSvc := scanner.New(scanner.Config{
		Watchlist:     cfg.Watchlist,
		CacheTTL:      1 * time.Hour,
		MaxConcurrent: cfg.MaxConcurrent,
	}, yahooClient, yahooClient, candleCache, engine, yahooClient, log)

	executor := monitor.NewExitExecutor(ledgerSvc, log)
	mon := monitor.New(monitor.Config{
		OpenInterval:   cfg.OpenInterval,
		ClosedInterval: cfg.ClosedInterval,
		FetchTimeout:   cfg.FetchTimeout,
		MaxConcurrent:  cfg.MaxConcurrent,
	}, cal, yahooClient, ledgerSvc, executor, domain.RealClock{}, log)
	mon.Start()
	defer mon.Stop()

	jobRunner := jobs.New(ledgerSvc, scannerSvc, cal, log)
	if err := jobRunner.Start(); err != nil {
		return fmt.Errorf("failed to start scheduled jobs: %w", err)
	}
	defer jobRunner.Stop()

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		DataDir: cfg.DataDir,

		Ledger:   ledgerSvc,
		Scanner:  scannerSvc,
		Monitor:  mon,
		Calendar: cal,
		Quotes:   yahooClient,
		Clock:    domain.RealClock{},
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
