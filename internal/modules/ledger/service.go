// Package ledger owns the simulated portfolio: the cash account, open
// holdings, the append-only trade log, exit alerts and daily snapshots.
// All multi-table mutations run inside a single transaction so the ledger
// can never half-apply a trade.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
)

// Service coordinates portfolio mutations across the ledger repositories
type Service struct {
	db                *sql.DB
	portfolioRepo     *PortfolioRepository
	holdingRepo       *HoldingRepository
	tradeRepo         *TradeRepository
	alertRepo         *AlertRepository
	snapshotRepo      *SnapshotRepository
	commissionPerSide float64
	startingCash      float64
	log               zerolog.Logger
}

// NewService creates the ledger service and ensures the portfolio row exists
func NewService(db *sql.DB, commissionPerSide, startingCash float64, log zerolog.Logger) (*Service, error) {
	s := &Service{
		db:                db,
		portfolioRepo:     NewPortfolioRepository(db, log),
		holdingRepo:       NewHoldingRepository(db, log),
		tradeRepo:         NewTradeRepository(db, log),
		alertRepo:         NewAlertRepository(db, log),
		snapshotRepo:      NewSnapshotRepository(db, log),
		commissionPerSide: commissionPerSide,
		startingCash:      startingCash,
		log:               log.With().Str("service", "ledger").Logger(),
	}

	if err := s.portfolioRepo.Init(startingCash); err != nil {
		return nil, err
	}
	return s, nil
}

// Portfolio returns the cash account state
func (s *Service) Portfolio() (domain.Portfolio, error) {
	return s.portfolioRepo.Get()
}

// Holdings returns all open positions
func (s *Service) Holdings() ([]domain.Holding, error) {
	return s.holdingRepo.GetAll()
}

// Holding returns one open position, nil when it does not exist
func (s *Service) Holding(symbol string) (*domain.Holding, error) {
	return s.holdingRepo.Get(symbol)
}

// WatchedHoldings returns positions carrying exit thresholds
func (s *Service) WatchedHoldings() ([]domain.Holding, error) {
	return s.holdingRepo.GetWatched()
}

// TradeHistory returns recent trades, most recent first
func (s *Service) TradeHistory(limit int) ([]domain.Trade, error) {
	return s.tradeRepo.GetHistory(limit)
}

// TradesForSymbol returns recent trades for one symbol
func (s *Service) TradesForSymbol(symbol string, limit int) ([]domain.Trade, error) {
	return s.tradeRepo.GetBySymbol(symbol, limit)
}

// Alerts returns recent exit alerts
func (s *Service) Alerts(limit int) ([]domain.Alert, error) {
	return s.alertRepo.GetRecent(limit)
}

// UnreadAlertCount returns the number of unread alerts
func (s *Service) UnreadAlertCount() (int, error) {
	return s.alertRepo.CountUnread()
}

// MarkAlertRead flags one alert as read
func (s *Service) MarkAlertRead(id string) error {
	return s.alertRepo.MarkRead(id)
}

// MarkAllAlertsRead flags every alert as read
func (s *Service) MarkAllAlertsRead() (int, error) {
	return s.alertRepo.MarkAllRead()
}

// PruneReadAlerts deletes read alerts older than the cutoff
func (s *Service) PruneReadAlerts(cutoff time.Time) (int, error) {
	return s.alertRepo.DeleteReadBefore(cutoff)
}

// SetThresholds updates the exit thresholds on an open position
func (s *Service) SetThresholds(symbol string, takeProfit, stopLoss *float64) error {
	if takeProfit != nil && *takeProfit <= 0 {
		return fmt.Errorf("take profit must be positive")
	}
	if stopLoss != nil && *stopLoss <= 0 {
		return fmt.Errorf("stop loss must be positive")
	}
	if takeProfit != nil && stopLoss != nil && *stopLoss >= *takeProfit {
		return fmt.Errorf("stop loss must be below take profit")
	}
	return s.holdingRepo.SetThresholds(symbol, takeProfit, stopLoss)
}

// Buy opens or extends a position. Cash is debited for cost plus commission;
// the position's average cost is the share-weighted mean of all buys.
func (s *Service) Buy(symbol string, shares, price float64, takeProfit, stopLoss *float64) (*domain.Trade, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("shares must be positive")
	}
	if price <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	if takeProfit != nil && *takeProfit <= price {
		return nil, fmt.Errorf("take profit must be above the buy price")
	}
	if stopLoss != nil && *stopLoss >= price {
		return nil, fmt.Errorf("stop loss must be below the buy price")
	}

	var trade domain.Trade
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		portfolio, err := s.portfolioRepo.GetTx(tx)
		if err != nil {
			return err
		}

		cost := shares * price
		totalDebit := cost + s.commissionPerSide
		if portfolio.Cash < totalDebit {
			return fmt.Errorf("insufficient cash: have %.2f, need %.2f", portfolio.Cash, totalDebit)
		}

		existing, err := s.holdingRepo.GetTx(tx, symbol)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		holding := domain.Holding{
			Symbol:     symbol,
			Shares:     shares,
			AvgCost:    price,
			TakeProfit: takeProfit,
			StopLoss:   stopLoss,
			OpenedAt:   now,
		}
		if existing != nil {
			combined := existing.Shares + shares
			holding.AvgCost = (existing.CostBasis() + cost) / combined
			holding.Shares = combined
			holding.OpenedAt = existing.OpenedAt
			// New thresholds replace old ones only when provided
			if takeProfit == nil {
				holding.TakeProfit = existing.TakeProfit
			}
			if stopLoss == nil {
				holding.StopLoss = existing.StopLoss
			}
		}

		if err := s.holdingRepo.UpsertTx(tx, holding); err != nil {
			return err
		}

		trade, err = s.tradeRepo.CreateTx(tx, domain.Trade{
			Symbol:     symbol,
			Action:     domain.ActionBuy,
			Shares:     shares,
			Price:      price,
			Total:      cost,
			TakeProfit: takeProfit,
			StopLoss:   stopLoss,
			ExecutedAt: now,
		})
		if err != nil {
			return err
		}

		portfolio.Cash -= totalDebit
		portfolio.TotalCommissions += s.commissionPerSide
		return s.portfolioRepo.SaveTx(tx, portfolio)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("symbol", trade.Symbol).
		Float64("shares", shares).
		Float64("price", price).
		Msg("Buy executed")
	return &trade, nil
}

// Sell closes all or part of a position at the given price. Selling the full
// position deletes the holding row.
func (s *Service) Sell(symbol string, shares, price float64) (*domain.Trade, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("shares must be positive")
	}
	if price <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}

	var trade domain.Trade
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		holding, err := s.holdingRepo.GetTx(tx, symbol)
		if err != nil {
			return err
		}
		if holding == nil {
			return fmt.Errorf("no holding for symbol %s", symbol)
		}
		if shares > holding.Shares {
			return fmt.Errorf("cannot sell %v shares, holding has %v", shares, holding.Shares)
		}

		portfolio, err := s.portfolioRepo.GetTx(tx)
		if err != nil {
			return err
		}

		proceeds := shares * price
		realized := (price-holding.AvgCost)*shares - s.commissionPerSide

		remaining := holding.Shares - shares
		if remaining > 0 {
			holding.Shares = remaining
			if err := s.holdingRepo.UpsertTx(tx, *holding); err != nil {
				return err
			}
		} else {
			if err := s.holdingRepo.DeleteTx(tx, symbol); err != nil {
				return err
			}
		}

		trade, err = s.tradeRepo.CreateTx(tx, domain.Trade{
			Symbol:     symbol,
			Action:     domain.ActionSell,
			Shares:     shares,
			Price:      price,
			Total:      proceeds,
			ExecutedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		portfolio.Cash += proceeds - s.commissionPerSide
		portfolio.TotalCommissions += s.commissionPerSide
		portfolio.RealizedPL += realized
		return s.portfolioRepo.SaveTx(tx, portfolio)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("symbol", trade.Symbol).
		Float64("shares", shares).
		Float64("price", price).
		Msg("Sell executed")
	return &trade, nil
}

// SettleExit closes a full position because an exit threshold was crossed.
// The settlement is a single transaction: cash credit, holding deletion, the
// SELL trade row and the unread alert either all commit or none do.
// exitPrice is the fill price; targetPrice is the threshold that triggered.
func (s *Service) SettleExit(symbol string, exitType domain.ExitType, exitPrice, targetPrice float64) (*domain.Trade, *domain.Alert, error) {
	if exitPrice <= 0 {
		return nil, nil, fmt.Errorf("exit price must be positive")
	}

	var trade domain.Trade
	var alert domain.Alert
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		holding, err := s.holdingRepo.GetTx(tx, symbol)
		if err != nil {
			return err
		}
		if holding == nil {
			// Already settled by an earlier tick
			return fmt.Errorf("no holding for symbol %s", symbol)
		}

		portfolio, err := s.portfolioRepo.GetTx(tx)
		if err != nil {
			return err
		}

		proceeds := holding.Shares * exitPrice
		realized := (exitPrice-holding.AvgCost)*holding.Shares - s.commissionPerSide
		realizedPct := 0.0
		if holding.AvgCost > 0 {
			realizedPct = (exitPrice - holding.AvgCost) / holding.AvgCost * 100
		}

		if err := s.holdingRepo.DeleteTx(tx, symbol); err != nil {
			return err
		}

		et := exitType
		trade, err = s.tradeRepo.CreateTx(tx, domain.Trade{
			Symbol:     symbol,
			Action:     domain.ActionSell,
			Shares:     holding.Shares,
			Price:      exitPrice,
			Total:      proceeds,
			TakeProfit: holding.TakeProfit,
			StopLoss:   holding.StopLoss,
			ExitType:   &et,
			ExecutedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		alert, err = s.alertRepo.CreateTx(tx, domain.Alert{
			Type:              exitType,
			Symbol:            symbol,
			Shares:            holding.Shares,
			ExitPrice:         exitPrice,
			TargetPrice:       targetPrice,
			RealizedPL:        realized,
			RealizedPLPercent: realizedPct,
		})
		if err != nil {
			return err
		}

		portfolio.Cash += proceeds - s.commissionPerSide
		portfolio.TotalCommissions += s.commissionPerSide
		portfolio.RealizedPL += realized
		return s.portfolioRepo.SaveTx(tx, portfolio)
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("symbol", symbol).
		Str("exit_type", string(exitType)).
		Float64("exit_price", exitPrice).
		Float64("realized_pl", alert.RealizedPL).
		Msg("Exit settled")
	return &trade, &alert, nil
}

// Reset wipes every ledger table and restores the starting cash balance
func (s *Service) Reset() error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		for _, table := range []string{"holdings", "trades", "alerts", "snapshots"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return s.portfolioRepo.ResetTx(tx, s.startingCash)
	})
	if err != nil {
		return err
	}

	s.log.Warn().Float64("starting_cash", s.startingCash).Msg("Ledger reset")
	return nil
}

// Summary is a point-in-time valuation of the whole account
type Summary struct {
	Cash          float64 `json:"cash"`
	HoldingsValue float64 `json:"holdings_value"`
	TotalValue    float64 `json:"total_value"`
	RealizedPL    float64 `json:"realized_pl"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
	HoldingCount  int     `json:"holding_count"`
}

// Summarize values the account using the given last prices. Symbols without
// a price fall back to cost basis.
func (s *Service) Summarize(prices map[string]float64) (Summary, error) {
	portfolio, err := s.portfolioRepo.Get()
	if err != nil {
		return Summary{}, err
	}
	holdings, err := s.holdingRepo.GetAll()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Cash:         portfolio.Cash,
		RealizedPL:   portfolio.RealizedPL,
		HoldingCount: len(holdings),
	}
	for _, h := range holdings {
		value := h.CostBasis()
		if price, ok := prices[h.Symbol]; ok && price > 0 {
			value = h.Shares * price
		}
		summary.HoldingsValue += value
		summary.UnrealizedPL += value - h.CostBasis()
	}
	summary.TotalValue = summary.Cash + summary.HoldingsValue
	return summary, nil
}

// RecordSnapshot persists today's valuation for the given prices
func (s *Service) RecordSnapshot(date string, prices map[string]float64) error {
	summary, err := s.Summarize(prices)
	if err != nil {
		return err
	}
	return s.snapshotRepo.Upsert(Snapshot{
		Date:          date,
		Cash:          summary.Cash,
		HoldingsValue: summary.HoldingsValue,
		TotalValue:    summary.TotalValue,
		RealizedPL:    summary.RealizedPL,
	})
}

// SnapshotHistory returns recent daily snapshots in ascending date order
func (s *Service) SnapshotHistory(days int) ([]Snapshot, error) {
	return s.snapshotRepo.GetHistory(days)
}
