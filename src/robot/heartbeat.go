package robot

import (
	"context"
	"fmt"

	"github.com/xpwu/go-log/log"

	"derivbot/src/broker"
	"derivbot/src/risk"
)

// tick 单次心跳：先排空经纪商事件，再检查订单超时，最后按状态分派
func (r *Robot) tick(ctx context.Context) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Robot")

	r.drainEvents(ctx)
	r.checkPendingOrder(ctx)

	tick, err := r.feed.CurrentTick(ctx)
	if err != nil {
		logger.Error("获取行情失败", "error", err)
		return
	}

	enabled := r.toggle.IsEngineEnabled()
	status := r.Status()

	// 外部停用：无持仓且无在途订单时立即停机，已持仓头寸先走完退出流程
	if !enabled {
		if status == StatusStopped {
			return
		}
		if r.CurrentPosition() == nil && r.pendingPos == nil && status != StatusWaitingResult {
			logger.Info("引擎已停用，机器人停机")
			r.setStatus(StatusStopped)
			return
		}
	}

	switch status {
	case StatusStopped:
		if enabled {
			r.setStatus(StatusWaitingEntry)
		}

	case StatusWaitingEntry, StatusAnalyzing:
		if r.pendingPos != nil {
			return // 等待订单回执
		}
		r.analyze(ctx, tick)

	case StatusInTrade:
		r.monitor(ctx, tick)

	case StatusWaitingResult:
		r.setStatus(StatusCooldown)

	case StatusCooldown:
		if r.now().After(r.cooldownUntil) {
			if enabled {
				r.setStatus(StatusWaitingEntry)
			} else {
				r.setStatus(StatusStopped)
			}
		}
	}
}

// drainEvents 非阻塞排空经纪商事件队列
func (r *Robot) drainEvents(ctx context.Context) {
	for {
		select {
		case ev, ok := <-r.brk.Events():
			if !ok {
				return
			}
			r.handleEvent(ctx, ev)
		default:
			return
		}
	}
}

func (r *Robot) handleEvent(ctx context.Context, ev broker.Event) {
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("Robot")

	switch ev.Type {
	case broker.EventBalanceUpdate:
		r.mu.Lock()
		r.balance = ev.Balance
		r.mu.Unlock()

	case broker.EventPositionOpened:
		if r.pendingPos == nil || r.pendingPos.ID != ev.PositionID {
			return // 迟到的回执，订单已超时丢弃
		}
		pos := r.pendingPos
		if !ev.Price.IsZero() {
			pos.EntryPrice = ev.Price
			pos.CurrentPrice = ev.Price
		}
		r.entrySnapshot = r.pendingSnapshot
		r.pendingPos = nil
		r.pendingSnapshot = nil

		r.mu.Lock()
		r.position = pos
		r.mu.Unlock()

		logger.Info(fmt.Sprintf("开仓成交: id=%s, direction=%s, stake=%s, entry=%s",
			pos.ID, pos.Direction, pos.Stake, pos.EntryPrice))
		r.setStatus(StatusInTrade)
		r.notifyPosition(pos)

	case broker.EventOrderFailed:
		if r.pendingPos == nil || r.pendingPos.ID != ev.PositionID {
			return
		}
		logger.Error(fmt.Sprintf("下单被拒: id=%s, reason=%s", ev.PositionID, ev.Reason))
		r.pendingPos = nil
		r.pendingSnapshot = nil
		r.setStatus(StatusWaitingEntry)

	case broker.EventPositionUpdate:
		pos := r.openPosition()
		if pos == nil || pos.ID != ev.PositionID {
			return
		}
		r.mu.Lock()
		pos.UpdatePnL(ev.Price)
		r.mu.Unlock()
		r.notifyPosition(pos)

	case broker.EventPositionClosed:
		pos := r.openPosition()
		if pos == nil || pos.ID != ev.PositionID {
			return
		}
		price := ev.Price
		if price.IsZero() {
			price = pos.CurrentPrice
		}
		r.mu.Lock()
		pos.Close(price, risk.ExitSettled, ev.Timestamp)
		// 经纪商给出的已实现盈亏是权威口径，折算成注金百分比
		if !pos.Stake.IsZero() {
			pos.FinalPnLPct = ev.Profit.Div(pos.Stake).Mul(hundredDec)
		}
		r.mu.Unlock()
		r.finishTrade(ctx, pos)
	}
}

// checkPendingOrder 订单回执超时则丢弃在途持仓
func (r *Robot) checkPendingOrder(ctx context.Context) {
	if r.pendingPos == nil || !r.now().After(r.pendingDeadline) {
		return
	}
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("Robot")

	logger.Error(fmt.Sprintf("订单回执超时，丢弃在途持仓: id=%s", r.pendingPos.ID))
	r.pendingPos = nil
	r.pendingSnapshot = nil
	r.setStatus(StatusWaitingEntry)
}

// openPosition 心跳 goroutine 内部直接取持仓指针
func (r *Robot) openPosition() *risk.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.position
}
