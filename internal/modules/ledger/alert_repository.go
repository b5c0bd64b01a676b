package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
)

// AlertRepository handles automatic-exit notifications. Alerts are
// append-only; the read flag is the only mutable field.
type AlertRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *sql.DB, log zerolog.Logger) *AlertRepository {
	return &AlertRepository{
		db:  db,
		log: log.With().Str("repo", "alert").Logger(),
	}
}

// CreateTx appends an unread alert inside a transaction
func (r *AlertRepository) CreateTx(tx *sql.Tx, alert domain.Alert) (domain.Alert, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.Symbol = normalizeSymbol(alert.Symbol)
	alert.Read = false

	query := `
		INSERT INTO alerts
		(id, type, symbol, shares, exit_price, target_price, realized_pl, realized_pl_percent, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err := tx.Exec(query,
		alert.ID,
		string(alert.Type),
		alert.Symbol,
		alert.Shares,
		alert.ExitPrice,
		alert.TargetPrice,
		alert.RealizedPL,
		alert.RealizedPLPercent,
		alert.CreatedAt.Unix(),
	)
	if err != nil {
		return alert, fmt.Errorf("failed to create alert: %w", err)
	}

	return alert, nil
}

// GetRecent returns alerts most recent first
func (r *AlertRepository) GetRecent(limit int) ([]domain.Alert, error) {
	query := `
		SELECT id, type, symbol, shares, exit_price, target_price, realized_pl, realized_pl_percent, read, created_at
		FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return r.queryAlerts(query, limit)
}

// GetUnread returns unread alerts most recent first
func (r *AlertRepository) GetUnread() ([]domain.Alert, error) {
	query := `
		SELECT id, type, symbol, shares, exit_price, target_price, realized_pl, realized_pl_percent, read, created_at
		FROM alerts
		WHERE read = 0
		ORDER BY created_at DESC, id DESC
	`
	return r.queryAlerts(query)
}

// CountUnread returns the number of unread alerts
func (r *AlertRepository) CountUnread() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM alerts WHERE read = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return count, nil
}

// MarkRead flags one alert as read
func (r *AlertRepository) MarkRead(id string) error {
	res, err := r.db.Exec("UPDATE alerts SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no alert with id %s", id)
	}
	return nil
}

// MarkAllRead flags every alert as read and returns how many changed
func (r *AlertRepository) MarkAllRead() (int, error) {
	res, err := r.db.Exec("UPDATE alerts SET read = 1 WHERE read = 0")
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts read: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteReadBefore prunes read alerts created before the cutoff
func (r *AlertRepository) DeleteReadBefore(cutoff time.Time) (int, error) {
	res, err := r.db.Exec("DELETE FROM alerts WHERE read = 1 AND created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Info().Int64("count", n).Time("cutoff", cutoff).Msg("Read alerts pruned")
	}
	return int(n), nil
}

func (r *AlertRepository) queryAlerts(query string, args ...any) ([]domain.Alert, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var alertType string
		var read int
		var createdAt int64

		err := rows.Scan(&a.ID, &alertType, &a.Symbol, &a.Shares, &a.ExitPrice,
			&a.TargetPrice, &a.RealizedPL, &a.RealizedPLPercent, &read, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		a.Type = domain.ExitType(alertType)
		a.Read = read != 0
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}

	return alerts, nil
}
