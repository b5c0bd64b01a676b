// Package domain contains the core domain models shared across modules.
// This layer is pure: no infrastructure dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Quote is a point-in-time market quote for a symbol.
// Quotes are ephemeral - fetched per request and never persisted as-is.
type Quote struct {
	Symbol    string
	Price     float64
	DayHigh   float64
	DayLow    float64
	Volume    int64
	Timestamp time.Time
}

// Candle is a single daily OHLCV bar.
type Candle struct {
	Date   time.Time `msgpack:"date"`
	Open   float64   `msgpack:"open"`
	High   float64   `msgpack:"high"`
	Low    float64   `msgpack:"low"`
	Close  float64   `msgpack:"close"`
	Volume int64     `msgpack:"volume"`
}

// TradeAction is the side of a trade
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// ExitType describes which threshold closed a position automatically
type ExitType string

const (
	ExitTakeProfit ExitType = "TAKE_PROFIT"
	ExitStopLoss   ExitType = "STOP_LOSS"
)

// Holding is an open position. A holding with shares <= 0 does not exist -
// it is deleted, never stored as a zero row.
type Holding struct {
	Symbol     string
	Shares     float64
	AvgCost    float64
	TakeProfit *float64
	StopLoss   *float64
	OpenedAt   time.Time
	UpdatedAt  time.Time
}

// HasExitThresholds reports whether the holding carries at least one of
// take-profit / stop-loss and is therefore watched by the position monitor.
func (h Holding) HasExitThresholds() bool {
	return h.TakeProfit != nil || h.StopLoss != nil
}

// CostBasis returns shares * average cost.
func (h Holding) CostBasis() float64 {
	return h.Shares * h.AvgCost
}

// Trade is an immutable, append-only record of an executed simulated trade.
type Trade struct {
	ID         string
	Symbol     string
	Action     TradeAction
	Shares     float64
	Price      float64
	Total      float64
	TakeProfit *float64 // thresholds attached at buy time
	StopLoss   *float64
	ExitType   *ExitType // set on SELL rows produced by an automatic exit
	ExecutedAt time.Time
}

// Validate checks trade fields before persistence
func (t Trade) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("trade symbol is required")
	}
	if t.Action != ActionBuy && t.Action != ActionSell {
		return fmt.Errorf("invalid trade action: %s", t.Action)
	}
	if t.Shares <= 0 {
		return fmt.Errorf("trade shares must be positive, got %v", t.Shares)
	}
	if t.Price <= 0 {
		return fmt.Errorf("trade price must be positive, got %v", t.Price)
	}
	return nil
}

// Alert is an immutable record of an automatic exit event.
// Read is the only mutable field.
type Alert struct {
	ID                string
	Type              ExitType
	Symbol            string
	Shares            float64
	ExitPrice         float64
	TargetPrice       float64
	RealizedPL        float64
	RealizedPLPercent float64
	Read              bool
	CreatedAt         time.Time
}

// Portfolio is the single simulated cash account.
// Cumulative totals are monotonic counters except on reset.
type Portfolio struct {
	Cash             float64
	TotalCommissions float64
	TotalTaxes       float64
	RealizedPL       float64
	UpdatedAt        time.Time
}
