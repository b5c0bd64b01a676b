package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
)

// queryer abstracts *sql.DB and *sql.Tx so repository logic runs both
// standalone and inside a settlement transaction.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// PortfolioRepository handles the singleton cash account row
type PortfolioRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Init creates the singleton row with the given starting cash if it does not
// exist yet. An existing row is left untouched.
func (r *PortfolioRepository) Init(startingCash float64) error {
	query := `
		INSERT OR IGNORE INTO portfolio (id, cash, total_commissions, total_taxes, realized_pl, updated_at)
		VALUES (1, ?, 0, 0, 0, ?)
	`
	res, err := r.db.Exec(query, startingCash, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to init portfolio: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.log.Info().Float64("starting_cash", startingCash).Msg("Portfolio initialized")
	}
	return nil
}

// Get returns the portfolio state
func (r *PortfolioRepository) Get() (domain.Portfolio, error) {
	return r.getWith(r.db)
}

// GetTx returns the portfolio state inside a transaction
func (r *PortfolioRepository) GetTx(tx *sql.Tx) (domain.Portfolio, error) {
	return r.getWith(tx)
}

func (r *PortfolioRepository) getWith(q queryer) (domain.Portfolio, error) {
	query := `
		SELECT cash, total_commissions, total_taxes, realized_pl, updated_at
		FROM portfolio WHERE id = 1
	`

	var p domain.Portfolio
	var updatedAt int64
	err := q.QueryRow(query).Scan(&p.Cash, &p.TotalCommissions, &p.TotalTaxes, &p.RealizedPL, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("portfolio row missing, database not initialized")
	}
	if err != nil {
		return p, fmt.Errorf("failed to get portfolio: %w", err)
	}
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return p, nil
}

// SaveTx writes the portfolio state inside a transaction
func (r *PortfolioRepository) SaveTx(tx *sql.Tx, p domain.Portfolio) error {
	return r.saveWith(tx, p)
}

// Save writes the portfolio state
func (r *PortfolioRepository) Save(p domain.Portfolio) error {
	return r.saveWith(r.db, p)
}

func (r *PortfolioRepository) saveWith(q queryer, p domain.Portfolio) error {
	query := `
		UPDATE portfolio
		SET cash = ?, total_commissions = ?, total_taxes = ?, realized_pl = ?, updated_at = ?
		WHERE id = 1
	`
	_, err := q.Exec(query, p.Cash, p.TotalCommissions, p.TotalTaxes, p.RealizedPL, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	return nil
}

// ResetTx deletes the singleton row and recreates it with the given cash
func (r *PortfolioRepository) ResetTx(tx *sql.Tx, startingCash float64) error {
	if _, err := tx.Exec("DELETE FROM portfolio"); err != nil {
		return fmt.Errorf("failed to clear portfolio: %w", err)
	}
	query := `
		INSERT INTO portfolio (id, cash, total_commissions, total_taxes, realized_pl, updated_at)
		VALUES (1, ?, 0, 0, 0, ?)
	`
	if _, err := tx.Exec(query, startingCash, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to reset portfolio: %w", err)
	}
	return nil
}
