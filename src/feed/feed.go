package feed

import (
	"context"
	"sync/atomic"

	"derivbot/src/market"
)

// Feed 行情数据源：提供最新报价和指标快照
// CurrentTick 推进数据源的内部时钟（模拟源每次调用生成新行情）
type Feed interface {
	CurrentTick(ctx context.Context) (market.Tick, error)
	Readings(ctx context.Context) ([]market.Reading, error)
}

// Toggle 引擎总开关，跨 goroutine 安全
// 关闭后机器人在下一个心跳进入 stopped，已持仓的头寸继续走完退出流程
type Toggle struct {
	enabled atomic.Bool
}

func NewToggle(enabled bool) *Toggle {
	t := &Toggle{}
	t.enabled.Store(enabled)
	return t
}

// SetEnabled 设置引擎开关
func (t *Toggle) SetEnabled(v bool) {
	t.enabled.Store(v)
}

// IsEngineEnabled 引擎是否处于运行状态
func (t *Toggle) IsEngineEnabled() bool {
	return t.enabled.Load()
}
