package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivbot/src/market"
	"derivbot/src/risk"
)

func snapshot(name string, signal market.Signal) []market.Reading {
	return []market.Reading{{
		Name:       name,
		Value:      1.0,
		Signal:     signal,
		Confidence: 80,
		Enabled:    true,
	}}
}

func TestEngine_PriorBeforeEnoughData(t *testing.T) {
	e := NewEngine()

	// 无数据用中性先验
	assert.Equal(t, 50.0, e.Accuracy("RSI"))

	// 5笔以内仍用先验
	for i := 0; i < 5; i++ {
		e.RecordTrade(snapshot("RSI", market.SignalBuy), market.SignalBuy, risk.OutcomeWin)
	}
	assert.Equal(t, 5, e.TotalTrades("RSI"))
	assert.Equal(t, 50.0, e.Accuracy("RSI"))

	// 第6笔开始用实测命中率
	e.RecordTrade(snapshot("RSI", market.SignalBuy), market.SignalBuy, risk.OutcomeWin)
	assert.Equal(t, 100.0, e.Accuracy("RSI"))
}

func TestEngine_CreditDissentRule(t *testing.T) {
	tests := []struct {
		name       string
		signal     market.Signal
		decision   market.Signal
		outcome    risk.Outcome
		creditsWin bool
	}{
		{"同向且盈利记命中", market.SignalBuy, market.SignalBuy, risk.OutcomeWin, true},
		{"同向但亏损不记", market.SignalBuy, market.SignalBuy, risk.OutcomeLoss, false},
		{"反向且亏损记命中", market.SignalSell, market.SignalBuy, risk.OutcomeLoss, true},
		{"反向但盈利不记", market.SignalSell, market.SignalBuy, risk.OutcomeWin, false},
		{"中性且亏损记命中", market.SignalNeutral, market.SignalBuy, risk.OutcomeLoss, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			e.RecordTrade(snapshot("X", tt.signal), tt.decision, tt.outcome)

			snap := e.Snapshot()
			require.Contains(t, snap, "X")
			assert.Equal(t, 1, snap["X"].Total)
			if tt.creditsWin {
				assert.Equal(t, 1, snap["X"].Wins)
			} else {
				assert.Equal(t, 0, snap["X"].Wins)
			}
		})
	}
}

func TestEngine_SkipsDisabledAndInvalid(t *testing.T) {
	e := NewEngine()
	readings := []market.Reading{
		{Name: "A", Value: 1, Signal: market.SignalBuy, Confidence: 80, Enabled: false},
		{Name: "B", Value: 1, Signal: market.SignalBuy, Confidence: 10, Enabled: true}, // 置信度过低
		{Name: "C", Value: 1, Signal: market.SignalBuy, Confidence: 80, Enabled: true},
	}

	e.RecordTrade(readings, market.SignalBuy, risk.OutcomeWin)

	snap := e.Snapshot()
	assert.NotContains(t, snap, "A")
	assert.NotContains(t, snap, "B")
	assert.Contains(t, snap, "C")
}

func TestEngine_IgnoresHoldDecision(t *testing.T) {
	e := NewEngine()
	e.RecordTrade(snapshot("RSI", market.SignalBuy), market.SignalHold, risk.OutcomeWin)

	assert.Empty(t, e.Snapshot())
}

func TestEngine_WeightFormula(t *testing.T) {
	e := NewEngine()

	// 无数据：accuracy 50 → weight (0.5+0.5)×0.8 = 0.8
	assert.Equal(t, 0.8, e.WeightOf("RSI"))

	// 6笔4胜：accuracy 66.67 → weight (0.5+0.6667)×0.8(样本<10) = 0.93
	e.Restore(map[string]Performance{"RSI": {Wins: 4, Total: 6}})
	assert.InDelta(t, 66.67, e.Accuracy("RSI"), 0.01)
	assert.Equal(t, 0.93, e.WeightOf("RSI"))

	// 20笔20胜：accuracy 100 → weight 1.5，样本充足无折扣
	e.Restore(map[string]Performance{"RSI": {Wins: 20, Total: 20}})
	assert.Equal(t, 1.5, e.WeightOf("RSI"))

	// 20笔0胜：accuracy 0 → weight 0.5
	e.Restore(map[string]Performance{"RSI": {Wins: 0, Total: 20}})
	assert.Equal(t, 0.5, e.WeightOf("RSI"))
}

func TestEngine_WinsNeverExceedTotal(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 20; i++ {
		e.RecordTrade(snapshot("RSI", market.SignalBuy), market.SignalBuy, risk.OutcomeWin)
	}

	snap := e.Snapshot()
	assert.LessOrEqual(t, snap["RSI"].Wins, snap["RSI"].Total)
	assert.Equal(t, 20, snap["RSI"].Total)
}

func TestEngine_ApplyReturnsDecoratedCopy(t *testing.T) {
	e := NewEngine()
	e.Restore(map[string]Performance{"RSI": {Wins: 8, Total: 10}})

	original := snapshot("RSI", market.SignalBuy)
	applied := e.Apply(original)

	require.Len(t, applied, 1)
	assert.Equal(t, 80.0, applied[0].Accuracy)
	assert.Equal(t, 1.3, applied[0].Weight) // 0.5 + 0.8×1.0，样本达标无折扣
	assert.Equal(t, 10, applied[0].TotalTrades)

	// 入参不被修改
	assert.Equal(t, 0.0, original[0].Weight)
	assert.Equal(t, 0.0, original[0].Accuracy)
}

func TestEngine_SnapshotRestoreRoundTrip(t *testing.T) {
	e := NewEngine()
	e.RecordTrade(snapshot("RSI", market.SignalBuy), market.SignalBuy, risk.OutcomeWin)
	e.RecordTrade(snapshot("MACD", market.SignalSell), market.SignalBuy, risk.OutcomeLoss)

	restored := NewEngine()
	restored.Restore(e.Snapshot())

	assert.Equal(t, e.Snapshot(), restored.Snapshot())
}
