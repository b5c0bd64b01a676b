package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/papertrader/internal/domain"
)

// flatCandles builds n bars with the given close and a fixed daily range
func flatCandles(n int, close float64, volume int64) []domain.Candle {
	candles := make([]domain.Candle, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = domain.Candle{
			Date:   day.AddDate(0, 0, i),
			Open:   close,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: volume,
		}
	}
	return candles
}

func closesOf(candles []domain.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func TestSMARequiresMinimumBars(t *testing.T) {
	for n := 0; n < 20; n++ {
		candles := flatCandles(n, 100, 1000)
		assert.Nilf(t, SMA(closesOf(candles), 20), "SMA20 must be nil with %d bars", n)
	}
}

func TestSMAEqualsArithmeticMean(t *testing.T) {
	// 25 bars, closes 1..25; SMA20 is the mean of the last 20 (6..25)
	candles := make([]domain.Candle, 25)
	for i := range candles {
		candles[i] = domain.Candle{Close: float64(i + 1), High: float64(i + 2), Low: float64(i), Volume: 100}
	}

	sma := SMA(closesOf(candles), 20)
	require.NotNil(t, sma)
	assert.InDelta(t, 15.5, *sma, 1e-9)
}

func TestNineteenBarsSMANullRSIComputedCrossUnknown(t *testing.T) {
	// 19 closes: SMA20 null, RSI14 computed (needs only 15), cross unknown
	candles := make([]domain.Candle, 19)
	for i := range candles {
		candles[i] = domain.Candle{Close: 100 + float64(i%3), High: 104, Low: 98, Volume: 1000}
	}

	set := Calculate(candles)

	assert.Nil(t, set.SMA20)
	assert.Nil(t, set.SMA50)
	assert.NotNil(t, set.RSI14)
	assert.Equal(t, CrossUnknown, set.CrossStatus)
}

func TestRSIInsufficientBars(t *testing.T) {
	candles := flatCandles(14, 100, 1000)
	assert.Nil(t, RSI(closesOf(candles), 14))
}

func TestRSIBoundsOnTrendingSeries(t *testing.T) {
	// Strictly rising closes push RSI to the top of its range
	candles := make([]domain.Candle, 30)
	for i := range candles {
		candles[i] = domain.Candle{Close: 100 + float64(i), High: 101 + float64(i), Low: 99 + float64(i), Volume: 1000}
	}

	rsi := RSI(closesOf(candles), 14)
	require.NotNil(t, rsi)
	assert.GreaterOrEqual(t, *rsi, 0.0)
	assert.LessOrEqual(t, *rsi, 100.0)
	assert.Greater(t, *rsi, 70.0)
}

func TestATRInsufficientBars(t *testing.T) {
	assert.Nil(t, ATR(flatCandles(14, 100, 1000), 14))
}

func TestATRFlatRange(t *testing.T) {
	// Constant close, high-low spread of 2 on every bar: TR is always 2
	atr := ATR(flatCandles(20, 100, 1000), 14)
	require.NotNil(t, atr)
	assert.InDelta(t, 2.0, *atr, 1e-9)
}

func TestATRUsesGapOverRange(t *testing.T) {
	// A close-to-close gap larger than the intraday range dominates TR
	candles := flatCandles(15, 100, 1000)
	candles[14].Open = 110
	candles[14].High = 111
	candles[14].Low = 109
	candles[14].Close = 110

	atr := ATR(candles, 14)
	require.NotNil(t, atr)
	// 13 ranges of 2.0 plus one gap TR of |111-100| = 11
	assert.InDelta(t, (13*2.0+11.0)/14.0, *atr, 1e-9)
}

func TestVolumeRatioDefaultsWithoutHistory(t *testing.T) {
	assert.Equal(t, 1.0, VolumeRatio(nil))
	assert.Equal(t, 1.0, VolumeRatio(flatCandles(1, 100, 1000)))
}

func TestVolumeRatioAgainstPrecedingMean(t *testing.T) {
	candles := flatCandles(21, 100, 1000)
	candles[20].Volume = 2500

	assert.InDelta(t, 2.5, VolumeRatio(candles), 1e-9)
}

func TestConsecutiveDownDays(t *testing.T) {
	assert.Equal(t, 0, ConsecutiveDownDays([]float64{100, 101, 102}))
	assert.Equal(t, 2, ConsecutiveDownDays([]float64{100, 102, 101, 99}))
	// Flat day resets the count
	assert.Equal(t, 0, ConsecutiveDownDays([]float64{102, 101, 101}))
	assert.Equal(t, 3, ConsecutiveDownDays([]float64{104, 103, 102, 101}))
}

func TestCrossStatusBullishFamilies(t *testing.T) {
	// 60 bars rising: SMA20 > SMA50 with a widening gap
	candles := make([]domain.Candle, 60)
	for i := range candles {
		candles[i] = domain.Candle{Close: 100 + float64(i), High: 101 + float64(i), Low: 99 + float64(i), Volume: 1000}
	}

	set := Calculate(candles)
	assert.Equal(t, CrossStrongBullish, set.CrossStatus)
	assert.False(t, set.CrossStatus.IsBearish())
}

func TestCrossStatusBearishFamilies(t *testing.T) {
	candles := make([]domain.Candle, 60)
	for i := range candles {
		candles[i] = domain.Candle{Close: 200 - float64(i), High: 201 - float64(i), Low: 199 - float64(i), Volume: 1000}
	}

	set := Calculate(candles)
	assert.Equal(t, CrossStrongBearish, set.CrossStatus)
	assert.True(t, set.CrossStatus.IsBearish())
}

func TestVolatilityLevelBuckets(t *testing.T) {
	mk := func(atr float64) *float64 { return &atr }

	assert.Equal(t, VolatilityLow, volatilityLevel(mk(0.5), 100))
	assert.Equal(t, VolatilityNormal, volatilityLevel(mk(1.5), 100))
	assert.Equal(t, VolatilityElevated, volatilityLevel(mk(2.5), 100))
	assert.Equal(t, VolatilityHigh, volatilityLevel(mk(4.0), 100))
	assert.Equal(t, VolatilityExtreme, volatilityLevel(mk(6.0), 100))
	assert.Equal(t, VolatilityNormal, volatilityLevel(nil, 100))
}

func TestCalculateIsDeterministic(t *testing.T) {
	candles := make([]domain.Candle, 60)
	for i := range candles {
		candles[i] = domain.Candle{Close: 100 + float64(i%7), High: 108, Low: 98, Volume: int64(900 + i)}
	}

	a := Calculate(candles)
	b := Calculate(candles)
	assert.Equal(t, a, b)
}
