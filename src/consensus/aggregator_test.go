package consensus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivbot/src/market"
)

func reading(name string, signal market.Signal, confidence int) market.Reading {
	return market.Reading{
		Name:       name,
		Value:      1.0,
		Signal:     signal,
		Confidence: confidence,
		Enabled:    true,
	}
}

func testStrategy(minConfidence int) *market.Strategy {
	return &market.Strategy{Name: "EdgeAI Engine", MinConfidenceThreshold: minConfidence}
}

func TestAnalyze_NoIndicators(t *testing.T) {
	result := Analyze(nil, testStrategy(70))

	assert.Equal(t, market.SignalHold, result.Decision)
	assert.Equal(t, 0, result.Confidence)
	assert.Equal(t, QualityPoor, result.Quality)
	assert.Contains(t, result.Reasoning, "no indicators available")
}

func TestAnalyze_AllDisabled(t *testing.T) {
	readings := []market.Reading{
		{Name: "RSI", Signal: market.SignalBuy, Confidence: 90, Enabled: false},
		{Name: "MACD", Signal: market.SignalBuy, Confidence: 90, Enabled: false},
	}

	result := Analyze(readings, testStrategy(70))

	assert.Equal(t, market.SignalHold, result.Decision)
	assert.Contains(t, result.Reasoning, "all indicators are disabled")
}

func TestAnalyze_NoValidData(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 10), // 低于置信度下限
		{Name: "MACD", Value: math.NaN(), Signal: market.SignalBuy, Confidence: 90, Enabled: true},
	}

	result := Analyze(readings, testStrategy(70))

	assert.Equal(t, market.SignalHold, result.Decision)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 0, result.ValidCount)
	assert.Contains(t, result.Reasoning, "no indicators with valid data")
}

func TestAnalyze_UnanimousBuy(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 80),
		reading("MACD", market.SignalBuy, 75),
		reading("ADX", market.SignalBuy, 90),
	}

	result := Analyze(readings, testStrategy(70))

	require.Equal(t, market.SignalBuy, result.Decision)
	// 强度100×0.4 + 加权置信81.67×0.6 = 89
	assert.Equal(t, 89, result.Confidence)
	assert.Equal(t, QualityExcellent, result.Quality)
	assert.Equal(t, 3, result.BuyCount)
	assert.InDelta(t, 100.0, result.DecisionStrength, 0.001)
}

// 两多一空：冲突惩罚把置信度压到阈值之下，最终观望
func TestAnalyze_ConflictPenaltyForcesHold(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 80),
		reading("MACD", market.SignalBuy, 75),
		reading("ADX", market.SignalSell, 60),
	}

	result := Analyze(readings, testStrategy(70))

	// (66.67×0.4 + 71.67×0.6) × (1 - 0.3333×0.3) = 62.7
	assert.Equal(t, market.SignalHold, result.Decision)
	assert.Equal(t, 63, result.Confidence)
	assert.Equal(t, QualityPoor, result.Quality)
	assert.Equal(t, 2, result.BuyCount)
	assert.Equal(t, 1, result.SellCount)
	assert.InDelta(t, 66.67, result.DecisionStrength, 0.01)
	assert.Contains(t, result.Reasoning, "confidence 63% below strategy minimum of 70%")
}

// 同样的两多一空，较低的阈值下放行买入
func TestAnalyze_ConflictPenaltyPassesLowerThreshold(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 80),
		reading("MACD", market.SignalBuy, 75),
		reading("ADX", market.SignalSell, 60),
	}

	result := Analyze(readings, testStrategy(60))

	assert.Equal(t, market.SignalBuy, result.Decision)
	assert.Equal(t, 63, result.Confidence)
	assert.Equal(t, QualityFair, result.Quality)
	assert.Contains(t, result.Reasoning, "67% of indicators agree on BUY")
	assert.Contains(t, result.Reasoning, "1 indicator(s) point the opposite way")
}

func TestAnalyze_InsufficientConsensus(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 90),
		reading("MACD", market.SignalBuy, 90),
		reading("ADX", market.SignalSell, 90),
		reading("EMA 20", market.SignalSell, 90),
	}

	result := Analyze(readings, testStrategy(70))

	assert.Equal(t, market.SignalHold, result.Decision)
	assert.Equal(t, 0, result.Confidence)
	assert.Contains(t, result.Reasoning, "insufficient consensus (50% < 60%)")
	assert.Contains(t, result.Reasoning, "distribution: 2 buy, 2 sell, 0 neutral")
}

// 恰好达到60%一致率即可形成方向决策
func TestAnalyze_ConsensusAtBoundary(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalSell, 90),
		reading("MACD", market.SignalSell, 90),
		reading("ADX", market.SignalSell, 90),
		reading("EMA 20", market.SignalBuy, 90),
		reading("SMA 50", market.SignalBuy, 90),
	}

	result := Analyze(readings, testStrategy(60))

	assert.Equal(t, market.SignalSell, result.Decision)
	assert.InDelta(t, 60.0, result.DecisionStrength, 0.001)
}

func TestAnalyze_ThinEvidencePenalty(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 90),
		reading("MACD", market.SignalBuy, 90),
	}

	result := Analyze(readings, testStrategy(70))

	// (100×0.4 + 90×0.6) × 0.8 = 75.2
	assert.Equal(t, market.SignalBuy, result.Decision)
	assert.Equal(t, 75, result.Confidence)
}

func TestAnalyze_WeightsShiftConfidence(t *testing.T) {
	readings := []market.Reading{
		{Name: "RSI", Value: 1, Signal: market.SignalBuy, Confidence: 100, Enabled: true, Weight: 1.5},
		{Name: "MACD", Value: 1, Signal: market.SignalBuy, Confidence: 50, Enabled: true, Weight: 0.5},
	}

	result := Analyze(readings, testStrategy(70))

	// 加权置信 = (100×1.5 + 50×0.5) / 2.0 = 87.5
	assert.InDelta(t, 87.5, result.WeightedConfidence, 0.001)
	assert.Equal(t, market.SignalBuy, result.Decision)
}

func TestAnalyze_InvalidReadingsExcludedNotFatal(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 90),
		reading("MACD", market.SignalBuy, 85),
		reading("ADX", market.SignalBuy, 80),
		{Name: "Volume", Value: math.NaN(), Signal: market.SignalSell, Confidence: 90, Enabled: true},
	}

	result := Analyze(readings, testStrategy(70))

	assert.Equal(t, market.SignalBuy, result.Decision)
	assert.Equal(t, 3, result.ValidCount)
	assert.Equal(t, 4, result.TotalCount)
	assert.Contains(t, result.Reasoning, "1 indicator(s) excluded for invalid data")
}

func TestAnalyze_StrongIndicatorsInReasoning(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 95),
		reading("MACD", market.SignalBuy, 85),
		reading("ADX", market.SignalBuy, 72),
	}

	result := Analyze(readings, testStrategy(70))

	require.Equal(t, market.SignalBuy, result.Decision)
	assert.Contains(t, result.Reasoning, "strong indicators: RSI (95%), MACD (85%)")
}

// 纯函数：同样的输入重复计算得到完全一致的结果
func TestAnalyze_Deterministic(t *testing.T) {
	readings := []market.Reading{
		reading("RSI", market.SignalBuy, 80),
		reading("MACD", market.SignalSell, 75),
		reading("ADX", market.SignalNeutral, 60),
	}

	first := Analyze(readings, testStrategy(70))
	second := Analyze(readings, testStrategy(70))

	assert.Equal(t, first, second)
}

func TestQualityFromStrength(t *testing.T) {
	assert.Equal(t, QualityExcellent, qualityFromStrength(80))
	assert.Equal(t, QualityGood, qualityFromStrength(70))
	assert.Equal(t, QualityFair, qualityFromStrength(60))
}
