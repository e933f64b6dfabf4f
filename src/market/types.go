package market

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Signal 指标信号方向（决策时额外使用 hold 表示不开仓）
type Signal string

const (
	SignalBuy     Signal = "buy"
	SignalSell    Signal = "sell"
	SignalNeutral Signal = "neutral"
	SignalHold    Signal = "hold"
)

// Opposite 返回相反方向，hold/neutral 原样返回
func (s Signal) Opposite() Signal {
	switch s {
	case SignalBuy:
		return SignalSell
	case SignalSell:
		return SignalBuy
	default:
		return s
	}
}

// Tick 实时行情快照
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// MinReadingConfidence 指标读数参与共识计算的最低置信度
const MinReadingConfidence = 30

// Reading 单个技术指标在当前周期的读数
// Weight/Accuracy/TotalTrades 由学习引擎维护，数据源只负责填充前五个字段
type Reading struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Signal      Signal  `json:"signal"`
	Confidence  int     `json:"confidence"` // 0-100
	Enabled     bool    `json:"enabled"`
	Weight      float64 `json:"weight"`
	Accuracy    float64 `json:"accuracy"`
	TotalTrades int     `json:"total_trades"`
}

// IsValid 读数是否可参与共识计算：
// 置信度达到下限、信号方向合法、数值为有限数
func (r *Reading) IsValid() bool {
	if r.Confidence < MinReadingConfidence {
		return false
	}
	if r.Signal != SignalBuy && r.Signal != SignalSell && r.Signal != SignalNeutral {
		return false
	}
	return !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0)
}

// EffectiveWeight 参与加权计算的权重，缺省（<=0）按 1 处理
func (r *Reading) EffectiveWeight() float64 {
	if r.Weight <= 0 {
		return 1
	}
	return r.Weight
}

// CurrentPriceKey 规则求值时注入的合成指标名
const CurrentPriceKey = "currentPrice"

// Values 把读数集合转换为 指标名->数值 的映射，并注入当前价格，供规则求值使用
func Values(readings []Reading, currentPrice float64) map[string]float64 {
	values := make(map[string]float64, len(readings)+1)
	for _, r := range readings {
		if !r.Enabled {
			continue
		}
		values[r.Name] = r.Value
	}
	values[CurrentPriceKey] = currentPrice
	return values
}
