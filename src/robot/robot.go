package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"

	"derivbot/src/broker"
	"derivbot/src/feed"
	"derivbot/src/learning"
	"derivbot/src/market"
	"derivbot/src/risk"
)

// Status 机器人状态机
type Status string

const (
	StatusStopped       Status = "stopped"
	StatusWaitingEntry  Status = "waiting_entry"
	StatusAnalyzing     Status = "analyzing"
	StatusInTrade       Status = "in_trade"
	StatusWaitingResult Status = "waiting_result"
	StatusCooldown      Status = "cooldown"
)

// Config 机器人运行参数
type Config struct {
	Symbol           string
	Heartbeat        time.Duration // 心跳间隔
	MaxHoldTime      time.Duration // 最长持仓时间
	Cooldown         time.Duration // 平仓后的冷却时间
	OrderTimeout     time.Duration // 订单回执超时
	ContractDuration time.Duration // 经纪商合约时长
	HistorySize      int           // 保留的历史成交条数
}

func (c *Config) withDefaults() {
	if c.Heartbeat <= 0 {
		c.Heartbeat = time.Second
	}
	if c.MaxHoldTime <= 0 {
		c.MaxHoldTime = 120 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Second
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 10
	}
}

// TradeArchiver 成交归档接口，落库失败只记日志不影响状态机
type TradeArchiver interface {
	ArchiveTrade(ctx context.Context, pos *risk.Position, strategy string) error
	SavePerformance(ctx context.Context, snapshot map[string]learning.Performance) error
}

// Robot 自动交易机器人
// 所有状态由 Run 的单个 goroutine 持有和变更，外部读取走带锁的访问器
type Robot struct {
	cfg      Config
	feed     feed.Feed
	toggle   *feed.Toggle
	brk      broker.Broker
	strategy *market.Strategy
	sizer    *risk.Sizer
	learn    *learning.Engine
	archiver TradeArchiver

	mu       sync.RWMutex
	status   Status
	position *risk.Position
	history  []*risk.Position
	balance  decimal.Decimal

	// 以下字段只在心跳 goroutine 中访问
	pendingPos      *risk.Position
	pendingDeadline time.Time
	pendingSnapshot []market.Reading
	entrySnapshot   []market.Reading
	cooldownUntil   time.Time
	lastOutcome     risk.Outcome
	martingaleLevel int

	onStatus   []func(Status)
	onPosition []func(risk.Position)

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}
	now      func() time.Time
}

func New(cfg Config, f feed.Feed, toggle *feed.Toggle, brk broker.Broker,
	strat *market.Strategy, sizer *risk.Sizer, learn *learning.Engine) *Robot {

	cfg.withDefaults()
	// 策略可缺省：共识门槛和风控参数走 market.Strategy 的缺省值
	if strat == nil {
		strat = &market.Strategy{}
	}
	return &Robot{
		cfg:      cfg,
		feed:     f,
		toggle:   toggle,
		brk:      brk,
		strategy: strat,
		sizer:    sizer,
		learn:    learn,
		status:   StatusStopped,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		now:      time.Now,
	}
}

// SetArchiver 挂接可选的持久层
func (r *Robot) SetArchiver(a TradeArchiver) {
	r.archiver = a
}

// OnStatusChanged 注册状态变更回调，在心跳 goroutine 中同步调用
func (r *Robot) OnStatusChanged(fn func(Status)) {
	r.onStatus = append(r.onStatus, fn)
}

// OnPositionChanged 注册持仓变更回调，收到的是持仓副本
func (r *Robot) OnPositionChanged(fn func(risk.Position)) {
	r.onPosition = append(r.onPosition, fn)
}

// Run 心跳主循环，阻塞直到 Stop 或 ctx 取消
func (r *Robot) Run(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Robot")

	logger.Info(fmt.Sprintf("机器人启动: symbol=%s, strategy=%s, heartbeat=%s",
		r.cfg.Symbol, r.strategy.Name, r.cfg.Heartbeat))

	ticker := time.NewTicker(r.cfg.Heartbeat)
	defer ticker.Stop()
	defer close(r.doneChan)

	for {
		select {
		case <-ticker.C:
			r.tick(ctx)
		case <-r.stopChan:
			logger.Info("机器人已停止")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop 终止心跳循环
func (r *Robot) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Done 循环退出后关闭
func (r *Robot) Done() <-chan struct{} {
	return r.doneChan
}

// Status 当前状态
func (r *Robot) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// CurrentPosition 当前持仓副本，没有持仓返回 nil
func (r *Robot) CurrentPosition() *risk.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.position == nil {
		return nil
	}
	cp := *r.position
	return &cp
}

// History 最近的已平仓成交，新的在前
func (r *Robot) History() []risk.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]risk.Position, len(r.history))
	for i, p := range r.history {
		out[i] = *p
	}
	return out
}

// Balance 经纪商最近推送的余额
func (r *Robot) Balance() decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balance
}

// MartingaleLevel 当前马丁格尔层级
func (r *Robot) MartingaleLevel() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.martingaleLevel
}

func (r *Robot) setStatus(s Status) {
	r.mu.Lock()
	changed := r.status != s
	r.status = s
	r.mu.Unlock()

	if changed {
		for _, fn := range r.onStatus {
			fn(s)
		}
	}
}

func (r *Robot) notifyPosition(pos *risk.Position) {
	cp := *pos
	for _, fn := range r.onPosition {
		fn(cp)
	}
}
