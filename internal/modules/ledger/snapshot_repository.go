package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is one end-of-day portfolio valuation row
type Snapshot struct {
	Date          string  `json:"date"` // "2006-01-02"
	Cash          float64 `json:"cash"`
	HoldingsValue float64 `json:"holdings_value"`
	TotalValue    float64 `json:"total_value"`
	RealizedPL    float64 `json:"realized_pl"`
}

// SnapshotRepository handles daily portfolio valuation snapshots
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Upsert writes the snapshot for its date, replacing an existing row
func (r *SnapshotRepository) Upsert(s Snapshot) error {
	query := `
		INSERT OR REPLACE INTO snapshots
		(date, cash, holdings_value, total_value, realized_pl, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, s.Date, s.Cash, s.HoldingsValue, s.TotalValue, s.RealizedPL, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	r.log.Info().Str("date", s.Date).Float64("total_value", s.TotalValue).Msg("Snapshot recorded")
	return nil
}

// GetHistory returns the most recent snapshots in ascending date order
func (r *SnapshotRepository) GetHistory(days int) ([]Snapshot, error) {
	query := `
		SELECT date, cash, holdings_value, total_value, realized_pl
		FROM (
			SELECT date, cash, holdings_value, total_value, realized_pl
			FROM snapshots ORDER BY date DESC LIMIT ?
		)
		ORDER BY date ASC
	`

	rows, err := r.db.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.Date, &s.Cash, &s.HoldingsValue, &s.TotalValue, &s.RealizedPL); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}
