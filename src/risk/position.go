package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"derivbot/src/market"
)

// 平仓原因，写入历史与学习引擎
const (
	ExitStopLoss   = "Stop Loss"
	ExitTakeProfit = "Take Profit"
	ExitTimeLimit  = "Time Limit"
	ExitSettled    = "Contract Settled"
)

// Outcome 单笔交易结果
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// Position 一笔持仓的完整生命周期，开仓时冻结止损止盈价，平仓后只读
type Position struct {
	ID              string
	Symbol          string
	Direction       market.Signal // buy 或 sell
	Stake           decimal.Decimal
	EntryPrice      decimal.Decimal
	EntryTime       time.Time
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	MartingaleLevel int
	IsReverse       bool // 本仓位因上一笔亏损而反向开仓

	CurrentPrice decimal.Decimal
	PnLPercent   decimal.Decimal

	Closed      bool
	ExitPrice   decimal.Decimal
	ExitTime    time.Time
	ExitReason  string
	FinalPnLPct decimal.Decimal
}

// UpdatePnL 按最新行情刷新浮动盈亏百分比
// 多头 PnL% = (现价-开仓价)/开仓价×100，空头取反
func (p *Position) UpdatePnL(price decimal.Decimal) {
	p.CurrentPrice = price
	if p.EntryPrice.IsZero() {
		return
	}
	pct := price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
	if p.Direction == market.SignalSell {
		pct = pct.Neg()
	}
	p.PnLPercent = pct
}

// ShouldStopLoss 现价触及止损线
func (p *Position) ShouldStopLoss(price decimal.Decimal) bool {
	if p.Direction == market.SignalBuy {
		return price.LessThanOrEqual(p.StopLossPrice)
	}
	return price.GreaterThanOrEqual(p.StopLossPrice)
}

// ShouldTakeProfit 现价触及止盈线
func (p *Position) ShouldTakeProfit(price decimal.Decimal) bool {
	if p.Direction == market.SignalBuy {
		return price.GreaterThanOrEqual(p.TakeProfitPrice)
	}
	return price.LessThanOrEqual(p.TakeProfitPrice)
}

// Close 以给定价格和原因平仓，重复调用无效果
func (p *Position) Close(price decimal.Decimal, reason string, at time.Time) {
	if p.Closed {
		return
	}
	p.UpdatePnL(price)
	p.Closed = true
	p.ExitPrice = price
	p.ExitTime = at
	p.ExitReason = reason
	p.FinalPnLPct = p.PnLPercent
}

// Outcome 平仓结果，盈亏百分比大于零记为 win
func (p *Position) Outcome() Outcome {
	if p.FinalPnLPct.GreaterThan(decimal.Zero) {
		return OutcomeWin
	}
	return OutcomeLoss
}

// HeldFor 持仓时长
func (p *Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
