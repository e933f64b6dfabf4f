package robot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"

	"derivbot/src/broker"
	"derivbot/src/consensus"
	"derivbot/src/market"
	"derivbot/src/risk"
	"derivbot/src/rules"
)

var hundredDec = decimal.NewFromInt(100)

// analyze 一次完整的入场分析：共识聚合 + 策略规则 + 马丁格尔方向修正
func (r *Robot) analyze(ctx context.Context, tick market.Tick) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Robot")

	r.setStatus(StatusAnalyzing)

	readings, err := r.feed.Readings(ctx)
	if err != nil {
		logger.Error("获取指标失败", "error", err)
		r.setStatus(StatusWaitingEntry)
		return
	}
	applied := r.learn.Apply(readings)

	cons := consensus.Analyze(applied, r.strategy)

	price, _ := tick.Price.Float64()
	values := market.Values(applied, price)

	// 未指定策略名时跳过规则求值，只依赖共识决策
	ruleSignal := market.SignalHold
	if r.strategy.Name != "" {
		var ruleErr error
		ruleSignal, ruleErr = rules.EvaluateStrategy(r.strategy.Name, values)
		if ruleErr != nil {
			if errors.Is(ruleErr, rules.ErrMissingIndicator) {
				// 缺指标按规则未触发处理，下个心跳重试
				logger.Info(fmt.Sprintf("规则求值降级: %s", ruleErr))
				ruleSignal = market.SignalHold
			} else {
				logger.Error("规则求值失败", "error", ruleErr)
				r.setStatus(StatusWaitingEntry)
				return
			}
		}
	}

	final := fuse(cons, ruleSignal, r.strategy.MinConfidence())
	if final == market.SignalHold {
		r.setStatus(StatusWaitingEntry)
		return
	}

	direction := r.sizer.ApplyDirection(final, r.lastOutcome, r.martingaleLevel)
	if direction != final {
		logger.Info(fmt.Sprintf("马丁格尔第%d层: 方向由 %s 反转为 %s",
			r.martingaleLevel+1, final, direction))
	}

	logger.Info(fmt.Sprintf("入场信号: direction=%s, consensus=%s(%d%%), rule=%s",
		direction, cons.Decision, cons.Confidence, ruleSignal))
	r.enter(ctx, direction, tick, applied)
}

// fuse 共识决策为主闸门：规则信号与共识方向冲突时观望；
// 共识观望但规则触发且加权信心达标时采用规则信号
func fuse(cons *consensus.Result, rule market.Signal, minConfidence int) market.Signal {
	switch cons.Decision {
	case market.SignalBuy, market.SignalSell:
		if rule != market.SignalHold && rule != cons.Decision {
			return market.SignalHold
		}
		return cons.Decision
	default:
		// 共识未达成方向时最终置信度恒为0，门槛比较的是加权置信度
		if rule != market.SignalHold && cons.WeightedConfidence >= float64(minConfidence) {
			return rule
		}
		return market.SignalHold
	}
}

// enter 建仓并提交订单，成交回执异步到达前持仓保持在途状态
func (r *Robot) enter(ctx context.Context, direction market.Signal, tick market.Tick, snapshot []market.Reading) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Robot")

	// 单持仓约束：任何时刻至多一笔持仓或在途订单
	if r.openPosition() != nil || r.pendingPos != nil {
		logger.Error("已有持仓或在途订单，拒绝重复开仓")
		return
	}

	pos := r.sizer.Open(r.cfg.Symbol, direction, tick.Price, r.strategy,
		r.martingaleLevel, r.lastOutcome, r.now())

	req := broker.OrderRequest{
		PositionID: pos.ID,
		Symbol:     r.cfg.Symbol,
		Direction:  direction,
		Stake:      pos.Stake,
		Price:      tick.Price,
		Duration:   r.cfg.ContractDuration,
	}
	if err := r.brk.RequestOrder(ctx, req); err != nil {
		logger.Error("提交订单失败", "error", err)
		r.setStatus(StatusWaitingEntry)
		return
	}

	r.pendingPos = pos
	r.pendingSnapshot = snapshot
	r.pendingDeadline = r.now().Add(r.cfg.OrderTimeout)

	logger.Info(fmt.Sprintf("已提交订单: id=%s, direction=%s, stake=%s, level=%d, reverse=%v",
		pos.ID, direction, pos.Stake, pos.MartingaleLevel, pos.IsReverse))
}

// monitor 持仓监控，退出优先级: 止损 > 止盈 > 持仓超时
func (r *Robot) monitor(ctx context.Context, tick market.Tick) {
	pos := r.openPosition()
	if pos == nil {
		r.setStatus(StatusWaitingEntry)
		return
	}

	// 持仓指针对外部访问器可见，字段变更要在写锁内进行
	r.mu.Lock()
	pos.UpdatePnL(tick.Price)
	r.mu.Unlock()
	r.notifyPosition(pos)

	now := r.now()
	var reason string
	switch {
	case pos.ShouldStopLoss(tick.Price):
		reason = risk.ExitStopLoss
	case pos.ShouldTakeProfit(tick.Price):
		reason = risk.ExitTakeProfit
	case pos.HeldFor(now) >= r.cfg.MaxHoldTime:
		reason = risk.ExitTimeLimit
	default:
		return
	}

	r.mu.Lock()
	pos.Close(tick.Price, reason, now)
	r.mu.Unlock()
	r.finishTrade(ctx, pos)
}

// finishTrade 平仓收尾：学习记账、马丁格尔推进、历史归档、进入冷却
func (r *Robot) finishTrade(ctx context.Context, pos *risk.Position) {
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("Robot")

	r.setStatus(StatusWaitingResult)

	r.mu.Lock()
	r.position = nil
	r.mu.Unlock()

	outcome := pos.Outcome()
	r.learn.RecordTrade(r.entrySnapshot, pos.Direction, outcome)
	r.entrySnapshot = nil

	r.lastOutcome = outcome
	level := r.sizer.NextLevel(pos.MartingaleLevel, outcome)

	r.mu.Lock()
	r.martingaleLevel = level
	r.history = append([]*risk.Position{pos}, r.history...)
	if len(r.history) > r.cfg.HistorySize {
		r.history = r.history[:r.cfg.HistorySize]
	}
	r.mu.Unlock()

	logger.Info(fmt.Sprintf("平仓: id=%s, reason=%s, pnl=%s%%, outcome=%s, nextLevel=%d",
		pos.ID, pos.ExitReason, pos.FinalPnLPct.Round(2), outcome, level))

	// 本地触发的平仓回报给经纪商结算，经纪商主动结算的不再重复
	if pos.ExitReason != risk.ExitSettled {
		if s, ok := r.brk.(broker.Settler); ok {
			profit := pos.Stake.Mul(pos.FinalPnLPct).Div(hundredDec)
			s.Settle(pos.ID, pos.Stake, profit)
		}
	}

	r.notifyPosition(pos)
	r.archive(pos)

	r.cooldownUntil = r.now().Add(r.cfg.Cooldown)
	r.setStatus(StatusCooldown)
}

// archive 异步落库，用持仓副本避免与心跳竞争
func (r *Robot) archive(pos *risk.Position) {
	if r.archiver == nil {
		return
	}
	cp := *pos
	snapshot := r.learn.Snapshot()
	strategy := r.strategy.Name

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx, logger := log.WithCtx(ctx)
		logger.PushPrefix("Robot")

		if err := r.archiver.ArchiveTrade(ctx, &cp, strategy); err != nil {
			logger.Error("成交落库失败", "error", err)
		}
		if err := r.archiver.SavePerformance(ctx, snapshot); err != nil {
			logger.Error("指标表现落库失败", "error", err)
		}
	}()
}
