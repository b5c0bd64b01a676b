// Package indicators computes the technical indicator set from daily OHLCV
// history. All functions are pure and deterministic given identical bars.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/papertrader/internal/domain"
)

// Moving-window sizes. A window value is nil whenever fewer bars exist than
// the window needs - never a placeholder zero.
const (
	smaShortPeriod = 20
	smaLongPeriod  = 50
	rsiPeriod      = 14
	atrPeriod      = 14
	volumeWindow   = 20
)

// CrossStatus classifies the SMA20/SMA50 relationship
type CrossStatus string

const (
	CrossStrongBullish CrossStatus = "strong_bullish"
	CrossBullish       CrossStatus = "bullish"
	CrossNeutral       CrossStatus = "neutral"
	CrossBearish       CrossStatus = "bearish"
	CrossStrongBearish CrossStatus = "strong_bearish"
	CrossUnknown       CrossStatus = "unknown"
)

// IsBearish reports whether the status belongs to the bearish family
func (c CrossStatus) IsBearish() bool {
	return c == CrossBearish || c == CrossStrongBearish
}

// VolatilityLevel buckets ATR as a percentage of price
type VolatilityLevel string

const (
	VolatilityLow      VolatilityLevel = "low"
	VolatilityNormal   VolatilityLevel = "normal"
	VolatilityElevated VolatilityLevel = "elevated"
	VolatilityHigh     VolatilityLevel = "high"
	VolatilityExtreme  VolatilityLevel = "extreme"
)

// IndicatorSet is the full indicator output for one symbol
type IndicatorSet struct {
	SMA20               *float64        `json:"sma20"`
	SMA50               *float64        `json:"sma50"`
	RSI14               *float64        `json:"rsi14"`
	ATR14               *float64        `json:"atr14"`
	VolumeRatio         float64         `json:"volume_ratio"`
	CrossStatus         CrossStatus     `json:"cross_status"`
	ConsecutiveDownDays int             `json:"consecutive_down_days"`
	VolatilityLevel     VolatilityLevel `json:"volatility_level"`
}

// Calculate computes the indicator set from chronologically ordered daily
// bars (oldest first). Short histories degrade to nil window values.
func Calculate(candles []domain.Candle) IndicatorSet {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	set := IndicatorSet{
		SMA20:               SMA(closes, smaShortPeriod),
		SMA50:               SMA(closes, smaLongPeriod),
		RSI14:               RSI(closes, rsiPeriod),
		ATR14:               ATR(candles, atrPeriod),
		VolumeRatio:         VolumeRatio(candles),
		ConsecutiveDownDays: ConsecutiveDownDays(closes),
	}
	set.CrossStatus = crossStatus(closes)
	set.VolatilityLevel = volatilityLevel(set.ATR14, lastClose(closes))

	return set
}

// SMA returns the arithmetic mean of the last n closes, or nil with fewer
// than n bars.
func SMA(closes []float64, n int) *float64 {
	if len(closes) < n {
		return nil
	}
	out := talib.Sma(closes, n)
	v := out[len(out)-1]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// RSI returns the Wilder-smoothed 14-period RSI, or nil with fewer than
// period+1 bars.
func RSI(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	out := talib.Rsi(closes, period)
	v := out[len(out)-1]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// ATR returns the mean of the last `period` true-range values, or nil with
// fewer than period+1 bars. True range needs the previous close, so the
// first bar contributes no value.
func ATR(candles []domain.Candle, period int) *float64 {
	if len(candles) < period+1 {
		return nil
	}

	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		bar := candles[i]
		tr := math.Max(bar.High-bar.Low,
			math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
		trueRanges = append(trueRanges, tr)
	}

	v := stat.Mean(trueRanges[len(trueRanges)-period:], nil)
	return &v
}

// VolumeRatio returns the latest volume divided by the mean volume of the
// preceding bars (up to 20). With no preceding history the ratio defaults
// to 1.0.
func VolumeRatio(candles []domain.Candle) float64 {
	if len(candles) < 2 {
		return 1.0
	}

	start := len(candles) - 1 - volumeWindow
	if start < 0 {
		start = 0
	}
	preceding := candles[start : len(candles)-1]

	volumes := make([]float64, len(preceding))
	for i, c := range preceding {
		volumes[i] = float64(c.Volume)
	}

	mean := stat.Mean(volumes, nil)
	if mean <= 0 {
		return 1.0
	}
	return float64(candles[len(candles)-1].Volume) / mean
}

// ConsecutiveDownDays counts trailing closes each strictly lower than the
// prior close; any up or flat day resets the count.
func ConsecutiveDownDays(closes []float64) int {
	count := 0
	for i := len(closes) - 1; i > 0; i-- {
		if closes[i] < closes[i-1] {
			count++
		} else {
			break
		}
	}
	return count
}

// crossStatus derives the SMA20/SMA50 relationship and whether the gap is
// widening. Unknown when either SMA is unavailable.
func crossStatus(closes []float64) CrossStatus {
	sma20 := SMA(closes, smaShortPeriod)
	sma50 := SMA(closes, smaLongPeriod)
	if sma20 == nil || sma50 == nil {
		return CrossUnknown
	}

	gap := *sma20 - *sma50

	// Gap at the previous bar, when one more bar of history allows it
	var prevGap *float64
	if len(closes) > smaLongPeriod {
		prev := closes[:len(closes)-1]
		prev20 := SMA(prev, smaShortPeriod)
		prev50 := SMA(prev, smaLongPeriod)
		if prev20 != nil && prev50 != nil {
			g := *prev20 - *prev50
			prevGap = &g
		}
	}

	switch {
	case gap > 0:
		if prevGap != nil && gap > *prevGap {
			return CrossStrongBullish
		}
		return CrossBullish
	case gap < 0:
		if prevGap != nil && gap < *prevGap {
			return CrossStrongBearish
		}
		return CrossBearish
	default:
		return CrossNeutral
	}
}

// volatilityLevel buckets ATR as a percentage of the latest close. The cut
// points are policy, but the bucketing is monotonic and total.
func volatilityLevel(atr *float64, price float64) VolatilityLevel {
	if atr == nil || price <= 0 {
		return VolatilityNormal
	}
	pct := *atr / price * 100
	switch {
	case pct < 1:
		return VolatilityLow
	case pct < 2:
		return VolatilityNormal
	case pct < 3:
		return VolatilityElevated
	case pct < 5:
		return VolatilityHigh
	default:
		return VolatilityExtreme
	}
}

func lastClose(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	return closes[len(closes)-1]
}
