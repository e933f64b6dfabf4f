package robot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivbot/src/broker"
	"derivbot/src/consensus"
	"derivbot/src/feed"
	"derivbot/src/learning"
	"derivbot/src/market"
	"derivbot/src/risk"
)

// stubFeed 固定价格和指标快照的数据源，测试中手工改价
type stubFeed struct {
	mu       sync.Mutex
	price    decimal.Decimal
	readings []market.Reading
}

func (f *stubFeed) CurrentTick(_ context.Context) (market.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return market.Tick{Symbol: "frxEURUSD", Price: f.price, Timestamp: time.Now()}, nil
}

func (f *stubFeed) Readings(_ context.Context) ([]market.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]market.Reading, len(f.readings))
	copy(out, f.readings)
	return out, nil
}

func (f *stubFeed) SetPrice(p decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = p
}

// silentBroker 接受订单但永远不回执，用于演练订单超时
type silentBroker struct {
	events   chan broker.Event
	requests []broker.OrderRequest
}

func newSilentBroker() *silentBroker {
	return &silentBroker{events: make(chan broker.Event, 16)}
}

func (b *silentBroker) RequestOrder(_ context.Context, req broker.OrderRequest) error {
	b.requests = append(b.requests, req)
	return nil
}

func (b *silentBroker) Events() <-chan broker.Event { return b.events }
func (b *silentBroker) Close() error                { return nil }

// buyReadings 四个指标一致看多，共识与策略规则都会触发 buy
func buyReadings() []market.Reading {
	return []market.Reading{
		{Name: "RSI", Value: 30, Signal: market.SignalBuy, Confidence: 90, Enabled: true},
		{Name: "MACD", Value: 1.0, Signal: market.SignalBuy, Confidence: 90, Enabled: true},
		{Name: "ADX", Value: 30, Signal: market.SignalBuy, Confidence: 90, Enabled: true},
		{Name: "Volume", Value: 150000, Signal: market.SignalBuy, Confidence: 90, Enabled: true},
	}
}

// splitReadings 信号方向对半、数值仍满足 EdgeAI 买入规则：共识观望但规则触发
func splitReadings() []market.Reading {
	return []market.Reading{
		{Name: "RSI", Value: 30, Signal: market.SignalBuy, Confidence: 90, Enabled: true},
		{Name: "MACD", Value: 1.0, Signal: market.SignalSell, Confidence: 90, Enabled: true},
		{Name: "ADX", Value: 30, Signal: market.SignalBuy, Confidence: 90, Enabled: true},
		{Name: "Volume", Value: 150000, Signal: market.SignalSell, Confidence: 90, Enabled: true},
	}
}

type env struct {
	bot    *Robot
	fd     *stubFeed
	toggle *feed.Toggle
	learn  *learning.Engine
	clock  time.Time
}

func newEnv(brk broker.Broker) *env {
	fd := &stubFeed{price: decimal.NewFromFloat(1.25), readings: buyReadings()}
	tg := feed.NewToggle(true)
	strat := &market.Strategy{
		Name:                   "EdgeAI Engine",
		MinConfidenceThreshold: 60,
		Parameters:             market.StrategyParameters{StopLossPercent: 2.0, TakeProfitPercent: 4.0},
	}
	sizer := &risk.Sizer{
		BaseStake:         decimal.NewFromInt(100),
		MartingaleEnabled: true,
		Multiplier:        decimal.NewFromInt(2),
		MaxLevels:         3,
	}
	learn := learning.NewEngine()

	bot := New(Config{
		Symbol:       "frxEURUSD",
		Heartbeat:    time.Second,
		MaxHoldTime:  120 * time.Second,
		Cooldown:     10 * time.Second,
		OrderTimeout: 10 * time.Second,
		HistorySize:  10,
	}, fd, tg, brk, strat, sizer, learn)

	e := &env{bot: bot, fd: fd, toggle: tg, learn: learn,
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	bot.now = func() time.Time { return e.clock }
	return e
}

func (e *env) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func (e *env) tick() { e.bot.tick(context.Background()) }

// enterTrade 完整走一遍入场流程：stopped -> waiting_entry -> 下单 -> 成交
func (e *env) enterTrade(t *testing.T) {
	t.Helper()
	e.tick() // stopped -> waiting_entry
	require.Equal(t, StatusWaitingEntry, e.bot.Status())

	e.advance(time.Second)
	e.tick() // 分析并提交订单
	require.NotNil(t, e.bot.pendingPos)

	e.advance(time.Second)
	e.tick() // 排空成交回执
	require.Equal(t, StatusInTrade, e.bot.Status())
}

func TestRobot_EntryFlow(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)

	var statuses []Status
	e.bot.OnStatusChanged(func(s Status) { statuses = append(statuses, s) })

	e.enterTrade(t)

	pos := e.bot.CurrentPosition()
	require.NotNil(t, pos)
	assert.Equal(t, market.SignalBuy, pos.Direction)
	assert.Equal(t, "100", pos.Stake.String())
	assert.Equal(t, "1.25", pos.EntryPrice.String())
	assert.Equal(t, "1.225", pos.StopLossPrice.String())
	assert.Equal(t, "1.3", pos.TakeProfitPrice.String())
	assert.False(t, pos.IsReverse)

	// 注金已扣除
	assert.Equal(t, "9900", e.bot.Balance().String())
	assert.Equal(t, []Status{StatusWaitingEntry, StatusAnalyzing, StatusInTrade}, statuses)
}

// 共识因票型对半观望时，规则信号配合达标的加权置信度仍能驱动入场
func TestRobot_RuleInitiatedEntry(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.fd.readings = splitReadings()

	e.enterTrade(t)

	pos := e.bot.CurrentPosition()
	require.NotNil(t, pos)
	assert.Equal(t, market.SignalBuy, pos.Direction)
	assert.Equal(t, "100", pos.Stake.String())
}

func TestRobot_TakeProfitExit(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.enterTrade(t)

	e.fd.SetPrice(decimal.NewFromFloat(1.3))
	e.advance(time.Second)
	e.tick()

	assert.Equal(t, StatusCooldown, e.bot.Status())
	assert.Nil(t, e.bot.CurrentPosition())

	history := e.bot.History()
	require.Len(t, history, 1)
	assert.Equal(t, risk.ExitTakeProfit, history[0].ExitReason)
	assert.Equal(t, "4", history[0].FinalPnLPct.String())
	assert.Equal(t, risk.OutcomeWin, history[0].Outcome())

	// 盈利后马丁格尔回到第0层，学习引擎记了一笔
	assert.Equal(t, 0, e.bot.MartingaleLevel())
	assert.Equal(t, 1, e.learn.TotalTrades("RSI"))

	// 本地止盈由模拟经纪商结算：返还注金加收益 100 + 100×4%
	e.advance(time.Second)
	e.tick()
	assert.Equal(t, "10004", e.bot.Balance().String())

	// 冷却结束后重新等待入场
	e.advance(10 * time.Second)
	e.tick()
	assert.Equal(t, StatusWaitingEntry, e.bot.Status())
}

func TestRobot_StopLossAdvancesMartingale(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.enterTrade(t)

	e.fd.SetPrice(decimal.NewFromFloat(1.225))
	e.advance(time.Second)
	e.tick()

	history := e.bot.History()
	require.Len(t, history, 1)
	assert.Equal(t, risk.ExitStopLoss, history[0].ExitReason)
	assert.Equal(t, "-2", history[0].FinalPnLPct.String())
	assert.Equal(t, risk.OutcomeLoss, history[0].Outcome())
	assert.Equal(t, 1, e.bot.MartingaleLevel())

	// 下一笔：冷却后反向加倍下单；亏损结算不返还注金
	e.fd.SetPrice(decimal.NewFromFloat(1.25))
	e.advance(11 * time.Second)
	e.tick()
	require.Equal(t, StatusWaitingEntry, e.bot.Status())
	assert.Equal(t, "9900", e.bot.Balance().String())

	e.advance(time.Second)
	e.tick()
	require.NotNil(t, e.bot.pendingPos)
	assert.Equal(t, market.SignalSell, e.bot.pendingPos.Direction)
	assert.Equal(t, "200", e.bot.pendingPos.Stake.String())
	assert.Equal(t, 1, e.bot.pendingPos.MartingaleLevel)
	assert.True(t, e.bot.pendingPos.IsReverse)
}

func TestRobot_TimeLimitExit(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.enterTrade(t)

	// 价格不动，超过最长持仓时间后平仓
	e.advance(120 * time.Second)
	e.tick()

	history := e.bot.History()
	require.Len(t, history, 1)
	assert.Equal(t, risk.ExitTimeLimit, history[0].ExitReason)
	// 零盈亏记为亏损
	assert.Equal(t, risk.OutcomeLoss, history[0].Outcome())
	assert.Equal(t, 1, e.bot.MartingaleLevel())
}

// 止损止盈区间重叠、同一价格同时触发两条退出线时，止损优先
func TestRobot_ExitPriorityStopLossFirst(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)

	pos := &risk.Position{
		ID:              "pos-overlap",
		Symbol:          "frxEURUSD",
		Direction:       market.SignalBuy,
		Stake:           decimal.NewFromInt(100),
		EntryPrice:      decimal.NewFromFloat(1.25),
		EntryTime:       e.clock,
		CurrentPrice:    decimal.NewFromFloat(1.25),
		StopLossPrice:   decimal.NewFromFloat(1.3),
		TakeProfitPrice: decimal.NewFromFloat(1.25),
	}
	e.bot.mu.Lock()
	e.bot.position = pos
	e.bot.mu.Unlock()
	e.bot.setStatus(StatusInTrade)

	// 1.27 同时满足 <=1.3 的止损和 >=1.25 的止盈
	e.fd.SetPrice(decimal.NewFromFloat(1.27))
	e.advance(time.Second)
	e.tick()

	history := e.bot.History()
	require.Len(t, history, 1)
	assert.Equal(t, risk.ExitStopLoss, history[0].ExitReason)
}

// 外部读取持仓副本与心跳更新持仓并发进行
func TestRobot_ConcurrentPositionReads(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.enterTrade(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if pos := e.bot.CurrentPosition(); pos != nil {
				_ = pos.PnLPercent.String()
			}
			e.bot.History()
			e.bot.Balance()
		}
	}()

	prices := []float64{1.251, 1.249, 1.252, 1.248}
	for i := 0; i < 500; i++ {
		e.fd.SetPrice(decimal.NewFromFloat(prices[i%len(prices)]))
		e.advance(time.Millisecond)
		e.tick()
	}
	<-done

	assert.Equal(t, StatusInTrade, e.bot.Status())
}

// 未指定策略时机器人可运行：跳过规则求值，门槛和风控取缺省值
func TestRobot_NilStrategyDefaults(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)

	bot := New(e.bot.cfg, e.fd, e.toggle, paper, nil, e.bot.sizer, e.learn)
	bot.now = e.bot.now

	ctx := context.Background()
	bot.tick(ctx)
	require.Equal(t, StatusWaitingEntry, bot.Status())

	e.advance(time.Second)
	bot.tick(ctx)
	require.NotNil(t, bot.pendingPos)

	e.advance(time.Second)
	bot.tick(ctx)
	require.Equal(t, StatusInTrade, bot.Status())

	pos := bot.CurrentPosition()
	require.NotNil(t, pos)
	assert.Equal(t, "1.225", pos.StopLossPrice.String())
	assert.Equal(t, "1.3", pos.TakeProfitPrice.String())
}

func TestRobot_OrderTimeout(t *testing.T) {
	brk := newSilentBroker()
	e := newEnv(brk)

	e.tick()
	e.advance(time.Second)
	e.tick()
	require.NotNil(t, e.bot.pendingPos)
	firstID := e.bot.pendingPos.ID

	// 超时后丢弃在途订单，同一心跳内重新分析下单
	e.advance(11 * time.Second)
	e.tick()
	require.Len(t, brk.requests, 2)
	assert.NotEqual(t, firstID, brk.requests[1].PositionID)
	assert.Nil(t, e.bot.CurrentPosition())

	// 迟到的旧回执被忽略
	brk.events <- broker.Event{Type: broker.EventPositionOpened, PositionID: firstID,
		Price: decimal.NewFromFloat(1.25), Timestamp: e.clock}
	e.advance(time.Second)
	e.tick()
	assert.Nil(t, e.bot.CurrentPosition())
	assert.NotEqual(t, StatusInTrade, e.bot.Status())
}

func TestRobot_OrderRejected(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	paper.FailNext("rejected by desk")

	e.tick()
	e.advance(time.Second)
	e.tick()
	require.NotNil(t, e.bot.pendingPos)

	// 拒单回执清掉在途订单；引擎已停用时随即停机
	e.toggle.SetEnabled(false)
	e.advance(time.Second)
	e.tick()

	assert.Nil(t, e.bot.CurrentPosition())
	assert.Equal(t, StatusStopped, e.bot.Status())
	assert.Equal(t, "10000", paper.Balance().String())
	assert.Empty(t, e.bot.History())
}

func TestRobot_BrokerSettlement(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.enterTrade(t)

	pos := e.bot.CurrentPosition()
	require.NotNil(t, pos)

	paper.Settle(pos.ID, pos.Stake, decimal.NewFromInt(85))
	e.advance(time.Second)
	e.tick()

	history := e.bot.History()
	require.Len(t, history, 1)
	assert.Equal(t, risk.ExitSettled, history[0].ExitReason)
	// 经纪商口径的盈亏折算成注金百分比
	assert.Equal(t, "85", history[0].FinalPnLPct.String())
	assert.Equal(t, risk.OutcomeWin, history[0].Outcome())
	assert.Equal(t, "10085", e.bot.Balance().String())
	assert.Equal(t, StatusCooldown, e.bot.Status())
}

func TestRobot_DisableWhileInTrade(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.enterTrade(t)

	// 停用后已持仓头寸继续走完退出流程
	e.toggle.SetEnabled(false)
	e.advance(time.Second)
	e.tick()
	assert.Equal(t, StatusInTrade, e.bot.Status())

	e.fd.SetPrice(decimal.NewFromFloat(1.3))
	e.advance(time.Second)
	e.tick()
	require.Len(t, e.bot.History(), 1)
	assert.Equal(t, StatusCooldown, e.bot.Status())

	// 冷却结束后因引擎停用而停机
	e.advance(11 * time.Second)
	e.tick()
	assert.Equal(t, StatusStopped, e.bot.Status())
}

func TestRobot_SinglePositionGuard(t *testing.T) {
	brk := newSilentBroker()
	e := newEnv(brk)

	e.bot.mu.Lock()
	e.bot.position = &risk.Position{ID: "pos-existing"}
	e.bot.mu.Unlock()

	tick := market.Tick{Symbol: "frxEURUSD", Price: decimal.NewFromFloat(1.25)}
	e.bot.enter(context.Background(), market.SignalBuy, tick, nil)

	assert.Nil(t, e.bot.pendingPos)
	assert.Empty(t, brk.requests)
}

func TestRobot_HistoryTrim(t *testing.T) {
	paper := broker.NewPaperBroker(decimal.NewFromInt(10000))
	e := newEnv(paper)
	e.bot.cfg.HistorySize = 2

	sizer := &risk.Sizer{BaseStake: decimal.NewFromInt(100)}
	strat := &market.Strategy{}
	for i := 0; i < 3; i++ {
		e.advance(time.Second)
		pos := sizer.Open("frxEURUSD", market.SignalBuy, decimal.NewFromFloat(1.25),
			strat, 0, "", e.clock)
		pos.Close(decimal.NewFromFloat(1.3), risk.ExitTakeProfit, e.clock)
		e.bot.finishTrade(context.Background(), pos)
	}

	history := e.bot.History()
	require.Len(t, history, 2)
	// 新的在前
	assert.True(t, history[0].ExitTime.After(history[1].ExitTime))
}

func TestFuse(t *testing.T) {
	tests := []struct {
		name     string
		decision market.Signal
		weighted float64
		rule     market.Signal
		want     market.Signal
	}{
		{"consensus and rule agree", market.SignalBuy, 90, market.SignalBuy, market.SignalBuy},
		{"rule silent follows consensus", market.SignalSell, 90, market.SignalHold, market.SignalSell},
		{"conflicting rule forces hold", market.SignalBuy, 90, market.SignalSell, market.SignalHold},
		{"consensus hold, confident rule wins", market.SignalHold, 75, market.SignalBuy, market.SignalBuy},
		{"consensus hold, weak rule stays out", market.SignalHold, 65, market.SignalBuy, market.SignalHold},
		{"both hold", market.SignalHold, 90, market.SignalHold, market.SignalHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cons := &consensus.Result{Decision: tt.decision, WeightedConfidence: tt.weighted}
			assert.Equal(t, tt.want, fuse(cons, tt.rule, 70))
		})
	}
}

// 多空票型对半时共识的最终置信度恒为0，规则入场门槛必须看加权置信度
func TestFuse_RuleEntryOnConsensusHold(t *testing.T) {
	strat := &market.Strategy{MinConfidenceThreshold: 70}
	cons := consensus.Analyze(splitReadings(), strat)

	require.Equal(t, market.SignalHold, cons.Decision)
	require.Equal(t, 0, cons.Confidence)
	require.InDelta(t, 90.0, cons.WeightedConfidence, 0.001)

	assert.Equal(t, market.SignalBuy, fuse(cons, market.SignalBuy, 70))
	assert.Equal(t, market.SignalHold, fuse(cons, market.SignalBuy, 95))
}
