package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"derivbot/src/market"
)

var hundred = decimal.NewFromInt(100)

// Sizer 仓位与马丁格尔序列管理，纯计算，不持有行情或经纪商状态
type Sizer struct {
	BaseStake         decimal.Decimal
	MartingaleEnabled bool
	Multiplier        decimal.Decimal // 亏损后注金倍数
	MaxLevels         int             // 马丁格尔层数上限
}

// Stake 第 level 层的注金 = 基础注金 × 倍数^level
// 马丁格尔关闭时恒为基础注金
func (s *Sizer) Stake(level int) decimal.Decimal {
	if !s.MartingaleEnabled || level <= 0 {
		return s.BaseStake
	}
	if level > s.MaxLevels {
		level = s.MaxLevels
	}
	return s.BaseStake.Mul(s.Multiplier.Pow(decimal.NewFromInt(int64(level)))).Round(2)
}

// NextLevel 根据本笔结果推进马丁格尔层级：盈利归零，亏损加一层封顶
func (s *Sizer) NextLevel(level int, outcome Outcome) int {
	if !s.MartingaleEnabled || outcome == OutcomeWin {
		return 0
	}
	next := level + 1
	if next > s.MaxLevels {
		next = s.MaxLevels
	}
	return next
}

// ApplyDirection 马丁格尔方向修正：上一笔亏损且仍在层数上限内时反向下单
func (s *Sizer) ApplyDirection(signal market.Signal, lastOutcome Outcome, level int) market.Signal {
	if !s.MartingaleEnabled {
		return signal
	}
	if lastOutcome == OutcomeLoss && level < s.MaxLevels {
		return signal.Opposite()
	}
	return signal
}

// Open 以当前价格和策略参数建仓，止损止盈价随方向取符号并立即冻结
func (s *Sizer) Open(symbol string, direction market.Signal, price decimal.Decimal,
	strat *market.Strategy, level int, lastOutcome Outcome, at time.Time) *Position {

	slFactor := decimal.NewFromFloat(strat.StopLoss()).Div(hundred)
	tpFactor := decimal.NewFromFloat(strat.TakeProfit()).Div(hundred)

	var slPrice, tpPrice decimal.Decimal
	if direction == market.SignalBuy {
		slPrice = price.Mul(decimal.NewFromInt(1).Sub(slFactor))
		tpPrice = price.Mul(decimal.NewFromInt(1).Add(tpFactor))
	} else {
		slPrice = price.Mul(decimal.NewFromInt(1).Add(slFactor))
		tpPrice = price.Mul(decimal.NewFromInt(1).Sub(tpFactor))
	}

	return &Position{
		ID:              fmt.Sprintf("pos-%d", at.UnixNano()),
		Symbol:          symbol,
		Direction:       direction,
		Stake:           s.Stake(level),
		EntryPrice:      price,
		EntryTime:       at,
		CurrentPrice:    price,
		StopLossPrice:   slPrice,
		TakeProfitPrice: tpPrice,
		MartingaleLevel: level,
		IsReverse:       lastOutcome == OutcomeLoss && level > 0,
	}
}
