package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
)

// TradeRepository handles the append-only trade log. Trade rows are never
// updated or deleted outside a full reset.
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// CreateTx appends a trade inside a transaction. A missing ID is assigned.
func (r *TradeRepository) CreateTx(tx *sql.Tx, trade domain.Trade) (domain.Trade, error) {
	return r.createWith(tx, trade)
}

// Create appends a trade
func (r *TradeRepository) Create(trade domain.Trade) (domain.Trade, error) {
	return r.createWith(r.db, trade)
}

func (r *TradeRepository) createWith(q queryer, trade domain.Trade) (domain.Trade, error) {
	if err := trade.Validate(); err != nil {
		return trade, err
	}
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now().UTC()
	}
	trade.Symbol = normalizeSymbol(trade.Symbol)

	query := `
		INSERT INTO trades
		(id, symbol, action, shares, price, total, take_profit, stop_loss, exit_type, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.Exec(query,
		trade.ID,
		trade.Symbol,
		string(trade.Action),
		trade.Shares,
		trade.Price,
		trade.Total,
		nullFloat64Ptr(trade.TakeProfit),
		nullFloat64Ptr(trade.StopLoss),
		nullExitType(trade.ExitType),
		trade.ExecutedAt.Unix(),
	)
	if err != nil {
		return trade, fmt.Errorf("failed to create trade: %w", err)
	}

	r.log.Info().
		Str("symbol", trade.Symbol).
		Str("action", string(trade.Action)).
		Float64("shares", trade.Shares).
		Float64("price", trade.Price).
		Msg("Trade recorded")

	return trade, nil
}

// GetHistory returns trades most recent first
func (r *TradeRepository) GetHistory(limit int) ([]domain.Trade, error) {
	query := `
		SELECT id, symbol, action, shares, price, total, take_profit, stop_loss, exit_type, executed_at
		FROM trades
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.queryTrades(query, limit)
}

// GetBySymbol returns trades for one symbol, most recent first
func (r *TradeRepository) GetBySymbol(symbol string, limit int) ([]domain.Trade, error) {
	query := `
		SELECT id, symbol, action, shares, price, total, take_profit, stop_loss, exit_type, executed_at
		FROM trades
		WHERE symbol = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.queryTrades(query, normalizeSymbol(symbol), limit)
}

func (r *TradeRepository) queryTrades(query string, args ...any) ([]domain.Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

func scanTrade(rows *sql.Rows) (domain.Trade, error) {
	var t domain.Trade
	var action string
	var takeProfit, stopLoss sql.NullFloat64
	var exitType sql.NullString
	var executedAt int64

	err := rows.Scan(&t.ID, &t.Symbol, &action, &t.Shares, &t.Price, &t.Total,
		&takeProfit, &stopLoss, &exitType, &executedAt)
	if err != nil {
		return t, err
	}

	t.Action = domain.TradeAction(action)
	if takeProfit.Valid {
		t.TakeProfit = &takeProfit.Float64
	}
	if stopLoss.Valid {
		t.StopLoss = &stopLoss.Float64
	}
	if exitType.Valid {
		et := domain.ExitType(exitType.String)
		t.ExitType = &et
	}
	t.ExecutedAt = time.Unix(executedAt, 0).UTC()
	return t, nil
}

func nullExitType(et *domain.ExitType) sql.NullString {
	if et == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*et), Valid: true}
}
