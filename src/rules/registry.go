package rules

import (
	"fmt"

	"derivbot/src/market"
)

// 内置策略使用的指标名，需与数据源发布的指标名称完全一致
const (
	IndRSI    = "RSI"
	IndMACD   = "MACD"
	IndEMA20  = "EMA 20"
	IndSMA50  = "SMA 50"
	IndADX    = "ADX"
	IndBB     = "Bollinger Bands"
	IndVolume = "Volume"
)

// builtins 四个内置策略的规则定义，按数据而非代码表达，便于逐条测试
var builtins = map[string]*RuleSet{
	"Scalping Pro": {
		Name: "Scalping Pro",
		Buy: AllOf{
			Threshold{IndRSI, OpLT, 30},
			Threshold{IndMACD, OpGT, 0},
			Threshold{IndVolume, OpGT, 150000},
		},
		Sell: AllOf{
			Threshold{IndRSI, OpGT, 70},
			Threshold{IndMACD, OpLT, 0},
			Threshold{IndVolume, OpGT, 150000},
		},
	},
	"Trend Follower": {
		Name: "Trend Follower",
		Buy: AllOf{
			Compare{IndEMA20, OpGT, IndSMA50},
			Threshold{IndADX, OpGT, 25},
		},
		Sell: AllOf{
			Compare{IndEMA20, OpLT, IndSMA50},
			Threshold{IndADX, OpGT, 25},
		},
	},
	"Mean Reversion": {
		Name: "Mean Reversion",
		Buy: AllOf{
			Threshold{IndRSI, OpLT, 25},
			Threshold{IndBB, OpGT, 1.2500},
		},
		Sell: AllOf{
			Threshold{IndRSI, OpGT, 75},
			Threshold{IndBB, OpLT, 1.2600},
		},
	},
	"EdgeAI Engine": {
		Name: "EdgeAI Engine",
		Buy: AtLeast{
			N: 3,
			Conditions: []Node{
				Threshold{IndRSI, OpLT, 40},
				Threshold{IndMACD, OpGT, 0},
				Threshold{IndADX, OpGT, 20},
				Threshold{IndVolume, OpGT, 120000},
			},
		},
		Sell: AtLeast{
			N: 3,
			Conditions: []Node{
				Threshold{IndRSI, OpGT, 60},
				Threshold{IndMACD, OpLT, 0},
				Threshold{IndADX, OpGT, 20},
				Threshold{IndVolume, OpGT, 120000},
			},
		},
	},
}

// Lookup 按名称取内置策略规则
func Lookup(name string) (*RuleSet, bool) {
	rs, ok := builtins[name]
	return rs, ok
}

// Names 已注册的策略名列表
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

// EvaluateStrategy 按策略名对指标数值求值
// 未注册的策略名返回 ErrUnknownStrategy，调用方应在启动时校验配置而不是在心跳里容忍
func EvaluateStrategy(name string, values map[string]float64) (market.Signal, error) {
	rs, ok := Lookup(name)
	if !ok {
		return market.SignalHold, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return rs.Evaluate(values)
}
