package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/indicators"
)

func fp(v float64) *float64 { return &v }

// healthyIndicators builds a set that passes every filter for a $100 quote
func healthyIndicators() indicators.IndicatorSet {
	return indicators.IndicatorSet{
		SMA20:           fp(100),
		SMA50:           fp(90),
		RSI14:           fp(60),
		ATR14:           fp(2),
		VolumeRatio:     1.5,
		CrossStatus:     indicators.CrossBullish,
		VolatilityLevel: indicators.VolatilityNormal,
	}
}

func quoteAt(price float64) domain.Quote {
	return domain.Quote{Symbol: "AAPL", Price: price}
}

func TestEvaluateBuyNowInsideEntryZone(t *testing.T) {
	e := New(DefaultConfig())

	plan := e.Evaluate(quoteAt(100), healthyIndicators(), nil)

	assert.Equal(t, VerdictBuyNow, plan.Verdict)
	assert.True(t, plan.Filters.AllPass())

	// Entry zone is SMA20 +- 0.5*ATR, targets are +-ATR multiples of price
	assert.InDelta(t, 99.0, plan.EntryZone.Low, 1e-9)
	assert.InDelta(t, 101.0, plan.EntryZone.High, 1e-9)
	assert.InDelta(t, 104.0, plan.ProfitTarget.Price, 1e-9)
	assert.InDelta(t, 4.0, plan.ProfitTarget.Percentage, 1e-9)
	assert.InDelta(t, 98.0, plan.StopLoss.Price, 1e-9)
	assert.InDelta(t, -2.0, plan.StopLoss.Percentage, 1e-9)
	assert.InDelta(t, 2.0, plan.RiskRewardRatio, 1e-9)
}

func TestEvaluateWaitForDipAboveEntryZone(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()

	// Price extended well above the 20-day mean
	plan := e.Evaluate(quoteAt(110), ind, nil)

	assert.Equal(t, VerdictWaitForDip, plan.Verdict)
	assert.True(t, plan.Filters.AllPass())
	assert.Greater(t, 110.0, plan.EntryZone.High)
}

func TestEvaluateWatchOnPartialFilters(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.RSI14 = fp(78) // overbought, momentum filter fails

	plan := e.Evaluate(quoteAt(100), ind, nil)

	assert.Equal(t, VerdictWatch, plan.Verdict)
	assert.True(t, plan.Filters.Trend)
	assert.False(t, plan.Filters.Momentum)
}

func TestEvaluateAvoidWhenBelowSMA50(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.SMA50 = fp(110)

	plan := e.Evaluate(quoteAt(100), ind, nil)

	assert.Equal(t, VerdictAvoid, plan.Verdict)
	assert.False(t, plan.Filters.Trend)
}

func TestEvaluateAvoidWithMissingSMA50(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.SMA50 = nil

	plan := e.Evaluate(quoteAt(100), ind, nil)

	// Unknown trend is treated as a failed trend filter
	assert.Equal(t, VerdictAvoid, plan.Verdict)
}

func TestEvaluateAvoidOnFallingKnife(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.ConsecutiveDownDays = 5

	plan := e.Evaluate(quoteAt(100), ind, nil)

	assert.Equal(t, VerdictAvoid, plan.Verdict)
	assert.Contains(t, plan.Warnings, WarnFallingKnife)
	require.NotNil(t, plan.FallingKnife)
	assert.Equal(t, 5, plan.FallingKnife.ConsecutiveDownDays)
}

func TestEvaluateAvoidOnVolatilityCrash(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.VolatilityLevel = indicators.VolatilityExtreme
	ind.CrossStatus = indicators.CrossBearish

	plan := e.Evaluate(quoteAt(100), ind, nil)

	assert.Equal(t, VerdictAvoid, plan.Verdict)
	assert.Contains(t, plan.Warnings, WarnExtremeVolatility)
	require.NotNil(t, plan.Volatility)
	assert.Equal(t, indicators.VolatilityExtreme, plan.Volatility.Level)
}

func TestEvaluateExtremeVolatilityWithoutBearishCrossIsNotAvoid(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.VolatilityLevel = indicators.VolatilityExtreme

	plan := e.Evaluate(quoteAt(100), ind, nil)

	assert.NotEqual(t, VerdictAvoid, plan.Verdict)
	assert.Contains(t, plan.Warnings, WarnExtremeVolatility)
}

func TestEvaluateFallbackLevelsWithoutATR(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.ATR14 = nil

	plan := e.Evaluate(quoteAt(100), ind, nil)

	assert.InDelta(t, 108.0, plan.ProfitTarget.Price, 1e-9)
	assert.InDelta(t, 96.0, plan.StopLoss.Price, 1e-9)
	assert.InDelta(t, 98.0, plan.EntryZone.Low, 1e-9)
	assert.InDelta(t, 101.0, plan.EntryZone.High, 1e-9)
	assert.InDelta(t, 2.0, plan.RiskRewardRatio, 1e-9)
}

func TestEvaluateSuggestedPosition(t *testing.T) {
	e := New(DefaultConfig())

	plan := e.Evaluate(quoteAt(100), healthyIndicators(), nil)

	// $5000 budget at $100: 50 whole shares
	assert.InDelta(t, 50.0, plan.SuggestedPosition.Shares, 1e-9)
	assert.InDelta(t, 5000.0, plan.SuggestedPosition.Investment, 1e-9)
	assert.InDelta(t, 100.0, plan.SuggestedPosition.MaxRisk, 1e-9)
	assert.InDelta(t, 200.0, plan.SuggestedPosition.MaxProfit, 1e-9)
}

func TestEvaluateLowRiskRewardWarning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetATRMult = 1.0 // equal reward and risk
	e := New(cfg)

	plan := e.Evaluate(quoteAt(100), healthyIndicators(), nil)

	assert.InDelta(t, 1.0, plan.RiskRewardRatio, 1e-9)
	assert.Contains(t, plan.Warnings, WarnLowRiskReward)
}

func TestEvaluateThinCoverageWarning(t *testing.T) {
	e := New(DefaultConfig())

	noCoverage := e.Evaluate(quoteAt(100), healthyIndicators(), nil)
	assert.Contains(t, noCoverage.Warnings, WarnThinCoverage)

	covered := e.Evaluate(quoteAt(100), healthyIndicators(), &AnalystConsensus{
		Score:       0.8,
		NumAnalysts: 12,
	})
	assert.NotContains(t, covered.Warnings, WarnThinCoverage)
}

func TestEvaluateWarningOrderIsFixed(t *testing.T) {
	e := New(DefaultConfig())
	ind := healthyIndicators()
	ind.ConsecutiveDownDays = 3
	ind.VolatilityLevel = indicators.VolatilityHigh

	plan := e.Evaluate(quoteAt(100), ind, nil)

	assert.Equal(t, []string{WarnFallingKnife, WarnHighVolatility, WarnThinCoverage}, plan.Warnings)
}

func TestConfidenceBoundsAndMonotonicity(t *testing.T) {
	e := New(DefaultConfig())

	empty := e.Evaluate(quoteAt(5), indicators.IndicatorSet{VolumeRatio: 0}, nil)
	assert.GreaterOrEqual(t, empty.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, empty.ConfidenceScore, 100.0)

	without := e.Evaluate(quoteAt(100), healthyIndicators(), nil)
	with := e.Evaluate(quoteAt(100), healthyIndicators(), &AnalystConsensus{
		Score:       1.0,
		NumAnalysts: 10,
	})

	// Adding a positive signal never lowers the score
	assert.Greater(t, with.ConfidenceScore, without.ConfidenceScore)
	assert.LessOrEqual(t, with.ConfidenceScore, 100.0)
}

func TestConfidenceScoreValue(t *testing.T) {
	e := New(DefaultConfig())

	plan := e.Evaluate(quoteAt(100), healthyIndicators(), nil)

	// 60 (filters) + 15 (RSI in band) + 12 (volume 1.5 over 1.1 floor)
	assert.InDelta(t, 87.0, plan.ConfidenceScore, 1e-9)
}

func TestEvaluateCrossoverAttachment(t *testing.T) {
	e := New(DefaultConfig())

	plan := e.Evaluate(quoteAt(100), healthyIndicators(), nil)
	require.NotNil(t, plan.Crossover)
	assert.Equal(t, indicators.CrossBullish, plan.Crossover.Status)

	ind := healthyIndicators()
	ind.CrossStatus = indicators.CrossUnknown
	plan = e.Evaluate(quoteAt(100), ind, nil)
	assert.Nil(t, plan.Crossover)
}
