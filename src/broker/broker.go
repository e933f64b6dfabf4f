package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"derivbot/src/market"
)

// EventType 经纪商异步事件类型
type EventType string

const (
	EventBalanceUpdate  EventType = "balance_update"
	EventPositionOpened EventType = "position_opened"
	EventPositionUpdate EventType = "position_update"
	EventPositionClosed EventType = "position_closed"
	EventOrderFailed    EventType = "order_failed"
)

// Event 经纪商推送的异步事件，机器人在每个心跳开始时非阻塞排空
type Event struct {
	Type       EventType
	PositionID string
	Price      decimal.Decimal // 成交价或最新标的价
	Profit     decimal.Decimal // position_closed 时的已实现盈亏
	Balance    decimal.Decimal // balance_update 时的账户余额
	Reason     string          // order_failed 的失败原因
	Timestamp  time.Time
}

// OrderRequest 下单请求，PositionID 由调用方生成用于事件关联
type OrderRequest struct {
	PositionID string
	Symbol     string
	Direction  market.Signal // buy 或 sell
	Stake      decimal.Decimal
	Price      decimal.Decimal // 请求时的参考价
	Duration   time.Duration   // 合约持续时间，0 表示不定期
}

// Broker 经纪商通道
// RequestOrder 即发即离：提交后立即返回，成交与否通过 Events 回执
type Broker interface {
	RequestOrder(ctx context.Context, req OrderRequest) error
	Events() <-chan Event
	Close() error
}

// Settler 可选接口：支持由状态机回报本地平仓结果的经纪商
// 实盘经纪商自己结算合约并推送 position_closed，不实现此接口
type Settler interface {
	Settle(positionID string, stake, profit decimal.Decimal)
}
