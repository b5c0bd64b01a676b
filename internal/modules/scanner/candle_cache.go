package scanner

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/papertrader/internal/domain"
)

// CandleCache stores daily candle history per symbol as a msgpack blob in
// the cache database. The cache database is ephemeral and safe to delete.
type CandleCache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCandleCache creates a candle cache backed by the cache database
func NewCandleCache(db *sql.DB, log zerolog.Logger) *CandleCache {
	return &CandleCache{
		db:  db,
		log: log.With().Str("repo", "candle_cache").Logger(),
	}
}

// Get returns the cached candles for a symbol and when they were cached.
// A miss returns nil candles and no error.
func (c *CandleCache) Get(symbol string) ([]domain.Candle, time.Time, error) {
	var payload []byte
	var cachedAt int64
	err := c.db.QueryRow("SELECT payload, cached_at FROM candle_cache WHERE symbol = ?", symbol).
		Scan(&payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read candle cache: %w", err)
	}

	var candles []domain.Candle
	if err := msgpack.Unmarshal(payload, &candles); err != nil {
		// A corrupt blob is treated as a miss, the next Put overwrites it
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Corrupt candle cache entry, ignoring")
		return nil, time.Time{}, nil
	}

	return candles, time.Unix(cachedAt, 0).UTC(), nil
}

// Put stores the candles for a symbol, replacing any previous entry
func (c *CandleCache) Put(symbol string, candles []domain.Candle) error {
	payload, err := msgpack.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to encode candles: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO candle_cache (symbol, payload, cached_at)
		VALUES (?, ?, ?)
	`
	if _, err := c.db.Exec(query, symbol, payload, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to write candle cache: %w", err)
	}
	return nil
}

// Purge removes entries cached before the cutoff and returns how many
func (c *CandleCache) Purge(cutoff time.Time) (int, error) {
	res, err := c.db.Exec("DELETE FROM candle_cache WHERE cached_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge candle cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
