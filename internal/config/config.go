// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Watchlist is the set of symbols scanned for battle plans
	Watchlist []string

	// CalendarFile optionally overrides the built-in holiday/early-close tables
	CalendarFile string

	// Monitor cadences and fetch bounds
	OpenInterval   time.Duration // tick interval while the market is open
	ClosedInterval time.Duration // tick interval while the market is closed
	FetchTimeout   time.Duration // per-symbol quote fetch timeout
	MaxConcurrent  int           // bounded fan-out per tick

	// Simulation parameters
	StartingCash      float64
	CommissionPerSide float64 // flat commission charged on each buy and sell
	InvestmentBudget  float64 // budget used for suggested position sizing
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory, resolve to absolute path, ensure it exists
	dataDir := getEnv("PAPERTRADER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("PORT", 8010),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		Watchlist:         getEnvAsList("WATCHLIST", []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL"}),
		CalendarFile:      getEnv("CALENDAR_FILE", ""),
		OpenInterval:      time.Duration(getEnvAsInt("MONITOR_OPEN_INTERVAL_SECONDS", 30)) * time.Second,
		ClosedInterval:    time.Duration(getEnvAsInt("MONITOR_CLOSED_INTERVAL_SECONDS", 300)) * time.Second,
		FetchTimeout:      time.Duration(getEnvAsInt("QUOTE_FETCH_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxConcurrent:     getEnvAsInt("MONITOR_MAX_CONCURRENT_FETCHES", 4),
		StartingCash:      getEnvAsFloat("STARTING_CASH", 100000),
		CommissionPerSide: getEnvAsFloat("COMMISSION_PER_SIDE", 0),
		InvestmentBudget:  getEnvAsFloat("INVESTMENT_BUDGET", 5000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.OpenInterval <= 0 || c.ClosedInterval <= 0 {
		return fmt.Errorf("monitor intervals must be positive")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("MONITOR_MAX_CONCURRENT_FETCHES must be at least 1")
	}
	if c.StartingCash < 0 {
		return fmt.Errorf("STARTING_CASH must not be negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
