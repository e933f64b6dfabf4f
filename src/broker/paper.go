package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaperBroker 模拟经纪商，订单在内存中即时成交
// 事件通道带缓冲，满时丢弃最旧事件而不是阻塞下单方
type PaperBroker struct {
	mu      sync.Mutex
	balance decimal.Decimal
	events  chan Event
	closed  bool

	// failNextReason 非空时下一笔订单以该原因拒绝，用于演练下单故障
	failNextReason string
}

func NewPaperBroker(initialBalance decimal.Decimal) *PaperBroker {
	return &PaperBroker{
		balance: initialBalance,
		events:  make(chan Event, 64),
	}
}

// FailNext 让下一笔订单失败
func (b *PaperBroker) FailNext(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNextReason = reason
}

// Balance 当前模拟余额
func (b *PaperBroker) Balance() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// RequestOrder 即时回执：余额足够则立刻推送 position_opened
func (b *PaperBroker) RequestOrder(_ context.Context, req OrderRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("paper broker is closed")
	}

	if b.failNextReason != "" {
		reason := b.failNextReason
		b.failNextReason = ""
		b.push(Event{
			Type:       EventOrderFailed,
			PositionID: req.PositionID,
			Reason:     reason,
			Timestamp:  time.Now(),
		})
		return nil
	}

	if b.balance.LessThan(req.Stake) {
		b.push(Event{
			Type:       EventOrderFailed,
			PositionID: req.PositionID,
			Reason:     "insufficient balance",
			Timestamp:  time.Now(),
		})
		return nil
	}

	b.balance = b.balance.Sub(req.Stake)
	now := time.Now()
	b.push(Event{Type: EventPositionOpened, PositionID: req.PositionID, Price: req.Price, Timestamp: now})
	b.push(Event{Type: EventBalanceUpdate, Balance: b.balance, Timestamp: now})
	return nil
}

// Settle 按盈亏结算一笔持仓，盈利时返还注金加收益
func (b *PaperBroker) Settle(positionID string, stake, profit decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if profit.GreaterThan(decimal.Zero) {
		b.balance = b.balance.Add(stake).Add(profit)
	}
	now := time.Now()
	b.push(Event{Type: EventPositionClosed, PositionID: positionID, Profit: profit, Timestamp: now})
	b.push(Event{Type: EventBalanceUpdate, Balance: b.balance, Timestamp: now})
}

// Events 异步事件通道
func (b *PaperBroker) Events() <-chan Event {
	return b.events
}

// Close 关闭事件通道
func (b *PaperBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

// push 非阻塞入队，队列满时丢最旧的事件
func (b *PaperBroker) push(ev Event) {
	select {
	case b.events <- ev:
	default:
		select {
		case <-b.events:
		default:
		}
		b.events <- ev
	}
}
