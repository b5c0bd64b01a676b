package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
)

// HoldingRepository handles open position rows. A position with zero shares
// is never stored - closing a position deletes its row.
type HoldingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:  db,
		log: log.With().Str("repo", "holding").Logger(),
	}
}

// GetAll returns every open holding ordered by symbol
func (r *HoldingRepository) GetAll() ([]domain.Holding, error) {
	return r.getAllWith(r.db)
}

func (r *HoldingRepository) getAllWith(q queryer) ([]domain.Holding, error) {
	query := `
		SELECT symbol, shares, avg_cost, take_profit, stop_loss, opened_at, updated_at
		FROM holdings
		ORDER BY symbol ASC
	`

	rows, err := q.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// GetWatched returns holdings carrying at least one exit threshold, the set
// the position monitor tracks.
func (r *HoldingRepository) GetWatched() ([]domain.Holding, error) {
	query := `
		SELECT symbol, shares, avg_cost, take_profit, stop_loss, opened_at, updated_at
		FROM holdings
		WHERE take_profit IS NOT NULL OR stop_loss IS NOT NULL
		ORDER BY symbol ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get watched holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// Get returns a holding by symbol, or nil when the position does not exist
func (r *HoldingRepository) Get(symbol string) (*domain.Holding, error) {
	return r.getWith(r.db, symbol)
}

// GetTx returns a holding by symbol inside a transaction
func (r *HoldingRepository) GetTx(tx *sql.Tx, symbol string) (*domain.Holding, error) {
	return r.getWith(tx, symbol)
}

func (r *HoldingRepository) getWith(q queryer, symbol string) (*domain.Holding, error) {
	query := `
		SELECT symbol, shares, avg_cost, take_profit, stop_loss, opened_at, updated_at
		FROM holdings WHERE symbol = ?
	`

	rows, err := q.Query(query, normalizeSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	h, err := scanHolding(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan holding: %w", err)
	}
	return &h, nil
}

// UpsertTx inserts or replaces a holding inside a transaction
func (r *HoldingRepository) UpsertTx(tx *sql.Tx, h domain.Holding) error {
	return r.upsertWith(tx, h)
}

func (r *HoldingRepository) upsertWith(q queryer, h domain.Holding) error {
	if h.Shares <= 0 {
		return fmt.Errorf("cannot store holding with non-positive shares: %v", h.Shares)
	}

	query := `
		INSERT OR REPLACE INTO holdings
		(symbol, shares, avg_cost, take_profit, stop_loss, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.Exec(query,
		normalizeSymbol(h.Symbol),
		h.Shares,
		h.AvgCost,
		nullFloat64Ptr(h.TakeProfit),
		nullFloat64Ptr(h.StopLoss),
		h.OpenedAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

// DeleteTx removes a holding inside a transaction
func (r *HoldingRepository) DeleteTx(tx *sql.Tx, symbol string) error {
	_, err := tx.Exec("DELETE FROM holdings WHERE symbol = ?", normalizeSymbol(symbol))
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

// SetThresholds updates the exit thresholds on an existing holding
func (r *HoldingRepository) SetThresholds(symbol string, takeProfit, stopLoss *float64) error {
	query := `
		UPDATE holdings SET take_profit = ?, stop_loss = ?, updated_at = ?
		WHERE symbol = ?
	`
	res, err := r.db.Exec(query,
		nullFloat64Ptr(takeProfit),
		nullFloat64Ptr(stopLoss),
		time.Now().Unix(),
		normalizeSymbol(symbol),
	)
	if err != nil {
		return fmt.Errorf("failed to set thresholds: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no holding for symbol %s", symbol)
	}

	r.log.Info().Str("symbol", symbol).Msg("Exit thresholds updated")
	return nil
}

func scanHolding(rows *sql.Rows) (domain.Holding, error) {
	var h domain.Holding
	var takeProfit, stopLoss sql.NullFloat64
	var openedAt, updatedAt int64

	err := rows.Scan(&h.Symbol, &h.Shares, &h.AvgCost, &takeProfit, &stopLoss, &openedAt, &updatedAt)
	if err != nil {
		return h, err
	}

	if takeProfit.Valid {
		h.TakeProfit = &takeProfit.Float64
	}
	if stopLoss.Valid {
		h.StopLoss = &stopLoss.Float64
	}
	h.OpenedAt = time.Unix(openedAt, 0).UTC()
	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return h, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
