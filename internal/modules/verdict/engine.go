// Package verdict turns a quote and indicator set into a battle plan: a
// classified trade recommendation with entry zone, targets and confidence.
package verdict

import (
	"math"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/indicators"
)

// Verdict is the terminal classification of a scan. It is recomputed fresh
// on every scan, never persisted.
type Verdict string

const (
	VerdictBuyNow     Verdict = "BUY_NOW"
	VerdictWaitForDip Verdict = "WAIT_FOR_DIP"
	VerdictWatch      Verdict = "WATCH"
	VerdictAvoid      Verdict = "AVOID"
)

// AnalystConsensus is optional sell-side coverage context for a symbol
type AnalystConsensus struct {
	// Score in [0,1]: 1.0 strong buy, 0.5 hold, 0.0 strong sell
	Score       float64
	NumAnalysts int
	TargetPrice *float64
}

// FilterResults records the four boolean entry filters
type FilterResults struct {
	Trend    bool `json:"trend"`    // price above SMA50
	Momentum bool `json:"momentum"` // RSI inside the healthy band
	Volume   bool `json:"volume"`   // volume ratio above the floor
	Price    bool `json:"price"`    // above the absolute price floor
}

// PassCount returns how many filters passed
func (f FilterResults) PassCount() int {
	n := 0
	for _, ok := range []bool{f.Trend, f.Momentum, f.Volume, f.Price} {
		if ok {
			n++
		}
	}
	return n
}

// AllPass reports whether every filter passed
func (f FilterResults) AllPass() bool {
	return f.PassCount() == 4
}

// PriceRange is a low/high price band
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// PriceTarget is an absolute price plus its distance from the reference price
type PriceTarget struct {
	Price      float64 `json:"price"`
	Percentage float64 `json:"percentage"`
}

// SuggestedPosition sizes a position from the configured budget
type SuggestedPosition struct {
	Shares     float64 `json:"shares"`
	Investment float64 `json:"investment"`
	MaxRisk    float64 `json:"max_risk"`
	MaxProfit  float64 `json:"max_profit"`
}

// CrossoverData carries the moving-average context behind the verdict
type CrossoverData struct {
	Status indicators.CrossStatus `json:"status"`
	SMA20  *float64               `json:"sma20"`
	SMA50  *float64               `json:"sma50"`
}

// FallingKnifeData is attached when a multi-day decline is in progress
type FallingKnifeData struct {
	ConsecutiveDownDays int `json:"consecutive_down_days"`
}

// VolatilityData is attached when volatility is outside the normal bands
type VolatilityData struct {
	Level      indicators.VolatilityLevel `json:"level"`
	ATRPercent float64                    `json:"atr_percent"`
}

// BattlePlan is the engine's structured trade recommendation
type BattlePlan struct {
	Symbol            string             `json:"symbol"`
	Verdict           Verdict            `json:"verdict"`
	ConfidenceScore   float64            `json:"confidence_score"`
	EntryZone         PriceRange         `json:"entry_zone"`
	ProfitTarget      PriceTarget        `json:"profit_target"`
	StopLoss          PriceTarget        `json:"stop_loss"`
	RiskRewardRatio   float64            `json:"risk_reward_ratio"`
	SuggestedPosition SuggestedPosition  `json:"suggested_position"`
	Filters           FilterResults      `json:"filters"`
	Warnings          []string           `json:"warnings"`
	Crossover         *CrossoverData     `json:"crossover,omitempty"`
	FallingKnife      *FallingKnifeData  `json:"falling_knife,omitempty"`
	Volatility        *VolatilityData    `json:"volatility,omitempty"`
}

// Config holds the engine's tunable policy knobs
type Config struct {
	MinPrice       float64 // absolute price floor, excludes illiquid penny stocks
	VolumeFloor    float64 // minimum volume ratio
	RSIHealthyLow  float64
	RSIHealthyHigh float64

	// ATR multipliers; TargetATRMult > StopATRMult so reward > risk
	TargetATRMult    float64
	StopATRMult      float64
	EntryZoneATRMult float64 // half-width of the entry zone around SMA20

	// Fixed-percentage fallback when ATR is unavailable
	FallbackTargetPct float64
	FallbackStopPct   float64

	InvestmentBudget float64
}

// DefaultConfig returns the standard policy
func DefaultConfig() Config {
	return Config{
		MinPrice:          10.0,
		VolumeFloor:       1.1,
		RSIHealthyLow:     50,
		RSIHealthyHigh:    70,
		TargetATRMult:     2.0,
		StopATRMult:       1.0,
		EntryZoneATRMult:  0.5,
		FallbackTargetPct: 8.0,
		FallbackStopPct:   4.0,
		InvestmentBudget:  5000,
	}
}

// Warning messages, appended in a fixed order so plans are reproducible
const (
	WarnFallingKnife      = "falling knife: multi-day decline in progress"
	WarnHighVolatility    = "volatility is high"
	WarnExtremeVolatility = "volatility is extreme"
	WarnLowRiskReward     = "risk/reward ratio below 1.5"
	WarnThinCoverage      = "thin analyst coverage"
)

// fallingKnifeSevere is the down-day count at which a decline forces AVOID
const fallingKnifeSevere = 5

// Engine evaluates battle plans. Evaluate is a pure function of its inputs.
type Engine struct {
	cfg Config
}

// New creates a verdict engine
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate produces a battle plan for one symbol. consensus may be nil.
func (e *Engine) Evaluate(quote domain.Quote, ind indicators.IndicatorSet, consensus *AnalystConsensus) BattlePlan {
	price := quote.Price

	filters := FilterResults{
		Trend:    ind.SMA50 != nil && price > *ind.SMA50,
		Momentum: ind.RSI14 != nil && *ind.RSI14 >= e.cfg.RSIHealthyLow && *ind.RSI14 <= e.cfg.RSIHealthyHigh,
		Volume:   ind.VolumeRatio > e.cfg.VolumeFloor,
		Price:    price > e.cfg.MinPrice,
	}

	entryZone, target, stop := e.levels(price, ind)

	plan := BattlePlan{
		Symbol:       quote.Symbol,
		EntryZone:    entryZone,
		ProfitTarget: target,
		StopLoss:     stop,
		Filters:      filters,
		Warnings:     []string{},
	}

	// Risk/reward: profit-per-share over loss-per-share; undefined (0) when
	// loss-per-share is not positive
	lossPerShare := price - stop.Price
	profitPerShare := target.Price - price
	if lossPerShare > 0 {
		plan.RiskRewardRatio = profitPerShare / lossPerShare
	}

	plan.SuggestedPosition = e.sizePosition(price, target.Price, stop.Price)

	// Severe conditions override everything else
	fallingKnife := ind.ConsecutiveDownDays >= fallingKnifeSevere
	volatilityCrash := ind.VolatilityLevel == indicators.VolatilityExtreme && ind.CrossStatus.IsBearish()

	switch {
	case !filters.Trend, fallingKnife, volatilityCrash:
		plan.Verdict = VerdictAvoid
	case filters.AllPass() && price <= entryZone.High && price >= entryZone.Low:
		plan.Verdict = VerdictBuyNow
	case filters.AllPass() && price > entryZone.High:
		plan.Verdict = VerdictWaitForDip
	default:
		plan.Verdict = VerdictWatch
	}

	plan.ConfidenceScore = e.confidence(filters, ind, consensus)

	// Warnings never replace the verdict, only annotate it
	if ind.ConsecutiveDownDays >= 3 {
		plan.Warnings = append(plan.Warnings, WarnFallingKnife)
		plan.FallingKnife = &FallingKnifeData{ConsecutiveDownDays: ind.ConsecutiveDownDays}
	}
	switch ind.VolatilityLevel {
	case indicators.VolatilityHigh:
		plan.Warnings = append(plan.Warnings, WarnHighVolatility)
	case indicators.VolatilityExtreme:
		plan.Warnings = append(plan.Warnings, WarnExtremeVolatility)
	}
	if ind.VolatilityLevel != indicators.VolatilityNormal && ind.ATR14 != nil && price > 0 {
		plan.Volatility = &VolatilityData{
			Level:      ind.VolatilityLevel,
			ATRPercent: *ind.ATR14 / price * 100,
		}
	}
	if plan.RiskRewardRatio > 0 && plan.RiskRewardRatio < 1.5 {
		plan.Warnings = append(plan.Warnings, WarnLowRiskReward)
	}
	if consensus == nil || consensus.NumAnalysts < 3 {
		plan.Warnings = append(plan.Warnings, WarnThinCoverage)
	}

	if ind.CrossStatus != indicators.CrossUnknown {
		plan.Crossover = &CrossoverData{
			Status: ind.CrossStatus,
			SMA20:  ind.SMA20,
			SMA50:  ind.SMA50,
		}
	}

	return plan
}

// levels computes the entry zone, profit target and stop loss. ATR-based
// when ATR is available, fixed-percentage fallback otherwise. The invariant
// target > price > stop holds either way.
func (e *Engine) levels(price float64, ind indicators.IndicatorSet) (PriceRange, PriceTarget, PriceTarget) {
	var entry PriceRange
	var targetPrice, stopPrice float64

	if ind.ATR14 != nil && *ind.ATR14 > 0 {
		atr := *ind.ATR14
		targetPrice = price + e.cfg.TargetATRMult*atr
		stopPrice = price - e.cfg.StopATRMult*atr

		// Entry zone is anchored at the 20-day mean: a price extended far
		// above it is a wait-for-dip candidate
		anchor := price
		if ind.SMA20 != nil {
			anchor = *ind.SMA20
		}
		entry = PriceRange{
			Low:  anchor - e.cfg.EntryZoneATRMult*atr,
			High: anchor + e.cfg.EntryZoneATRMult*atr,
		}
	} else {
		targetPrice = price * (1 + e.cfg.FallbackTargetPct/100)
		stopPrice = price * (1 - e.cfg.FallbackStopPct/100)
		entry = PriceRange{Low: price * 0.98, High: price * 1.01}
	}

	// A degenerate stop (non-positive) is clamped away; the stop percentage
	// stays meaningful for display either way
	if stopPrice < 0 {
		stopPrice = 0
	}

	target := PriceTarget{Price: targetPrice, Percentage: pctFrom(price, targetPrice)}
	stop := PriceTarget{Price: stopPrice, Percentage: pctFrom(price, stopPrice)}
	return entry, target, stop
}

// sizePosition sizes a whole-share position from the configured budget
func (e *Engine) sizePosition(price, target, stop float64) SuggestedPosition {
	if price <= 0 || e.cfg.InvestmentBudget <= 0 {
		return SuggestedPosition{}
	}
	shares := math.Floor(e.cfg.InvestmentBudget / price)
	if shares <= 0 {
		return SuggestedPosition{}
	}
	pos := SuggestedPosition{
		Shares:     shares,
		Investment: shares * price,
	}
	if stop < price {
		pos.MaxRisk = shares * (price - stop)
	}
	if target > price {
		pos.MaxProfit = shares * (target - price)
	}
	return pos
}

// confidence aggregates the positive signals into a score in [0,100].
// Monotonic in "more positive signals": each passed filter, RSI proximity to
// the healthy band, volume strength and analyst alignment add points.
func (e *Engine) confidence(filters FilterResults, ind indicators.IndicatorSet, consensus *AnalystConsensus) float64 {
	score := float64(filters.PassCount()) * 15 // up to 60

	// RSI proximity: full points inside the band, tapering with distance
	if ind.RSI14 != nil {
		rsi := *ind.RSI14
		switch {
		case rsi >= e.cfg.RSIHealthyLow && rsi <= e.cfg.RSIHealthyHigh:
			score += 15
		case rsi < e.cfg.RSIHealthyLow:
			score += math.Max(0, 15-(e.cfg.RSIHealthyLow-rsi))
		default:
			score += math.Max(0, 15-(rsi-e.cfg.RSIHealthyHigh))
		}
	}

	// Volume strength: proportional below the floor, bonus above it
	if ind.VolumeRatio >= e.cfg.VolumeFloor {
		score += 10 + math.Min(5, (ind.VolumeRatio-e.cfg.VolumeFloor)*5)
	} else if e.cfg.VolumeFloor > 0 {
		score += ind.VolumeRatio / e.cfg.VolumeFloor * 10
	}

	// Analyst alignment when coverage exists
	if consensus != nil && consensus.NumAnalysts > 0 {
		score += consensus.Score * 10
	}

	return math.Max(0, math.Min(100, score))
}

// pctFrom returns the signed percentage distance from base to value
func pctFrom(base, value float64) float64 {
	if base == 0 {
		return 0
	}
	return (value - base) / base * 100
}
