package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xpwu/go-log/log"

	"derivbot/src/binance"
	"derivbot/src/indicators"
	"derivbot/src/market"
)

// BinanceFeed 币安实盘行情源
// 后台协程定期拉取K线并重算指标，心跳读取的是缓存快照，行情接口抖动不会阻塞决策循环
type BinanceFeed struct {
	client   *binance.Client
	symbol   string
	interval string
	limit    int

	mu       sync.RWMutex
	readings []market.Reading
	lastTick market.Tick

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewBinanceFeed(client *binance.Client, symbol, interval string) *BinanceFeed {
	return &BinanceFeed{
		client:   client,
		symbol:   symbol,
		interval: interval,
		limit:    200,
		stopChan: make(chan struct{}),
	}
}

// Start 启动后台刷新协程，refreshEvery 通常与K线周期同级
func (f *BinanceFeed) Start(ctx context.Context, refreshEvery time.Duration) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BinanceFeed")

	// 首次刷新同步执行，失败直接暴露给启动流程
	if err := f.refresh(ctx); err != nil {
		return fmt.Errorf("initial market data refresh failed: %w", err)
	}

	go func() {
		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := f.refresh(ctx); err != nil {
					logger.Error("行情刷新失败", "error", err)
				}
			case <-f.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info(fmt.Sprintf("行情源已启动: symbol=%s, interval=%s", f.symbol, f.interval))
	return nil
}

// Stop 停止后台刷新
func (f *BinanceFeed) Stop() {
	f.stopOnce.Do(func() { close(f.stopChan) })
}

// CurrentTick 返回缓存的最新报价
func (f *BinanceFeed) CurrentTick(_ context.Context) (market.Tick, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.lastTick.Price.IsZero() {
		return market.Tick{}, fmt.Errorf("no market data yet for %s", f.symbol)
	}
	return f.lastTick, nil
}

// Readings 返回缓存的指标快照副本
func (f *BinanceFeed) Readings(_ context.Context) ([]market.Reading, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.readings) == 0 {
		return nil, fmt.Errorf("no indicator data yet for %s", f.symbol)
	}
	out := make([]market.Reading, len(f.readings))
	copy(out, f.readings)
	return out, nil
}

func (f *BinanceFeed) refresh(ctx context.Context) error {
	klines, err := f.client.GetKlines(ctx, f.symbol, f.interval, f.limit)
	if err != nil {
		return err
	}
	if len(klines) < 60 {
		return fmt.Errorf("not enough klines for %s: got %d", f.symbol, len(klines))
	}

	price, err := f.client.GetCurrentPrice(ctx, f.symbol)
	if err != nil {
		return err
	}

	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	for i, k := range klines {
		closes[i], _ = k.Close.Float64()
		highs[i], _ = k.High.Float64()
		lows[i], _ = k.Low.Float64()
	}
	lastVolume, _ := klines[len(klines)-1].Volume.Float64()

	readings := buildReadings(closes, highs, lows, lastVolume)

	f.mu.Lock()
	f.readings = readings
	f.lastTick = market.Tick{Symbol: f.symbol, Price: price, Timestamp: time.Now()}
	f.mu.Unlock()
	return nil
}

// buildReadings 由K线序列推导指标快照，信号与信心来自确定性的技术分析规则
func buildReadings(closes, highs, lows []float64, volume float64) []market.Reading {
	price := closes[len(closes)-1]

	rsi := orDefault(indicators.RSI(closes, 14), 50)
	_, _, macdHist := indicators.MACD(closes, 12, 26, 9)
	macdHist = orDefault(macdHist, 0)
	adx := orDefault(indicators.ADX(highs, lows, closes, 14), 20)
	ema20 := orDefault(indicators.EMA(closes, 20), price)
	sma50 := orDefault(indicators.SMA(closes, 50), price)
	bbMid, bbUp, bbLow := indicators.Bollinger(closes, 20, 2)
	bbMid = orDefault(bbMid, price)

	out := []market.Reading{
		taSignal("RSI", rsi, rsi < 35, rsi > 65, 50+absDist(rsi, 35, 65)*2),
		taSignal("MACD", macdHist, macdHist > 0, macdHist < 0, 55),
		taSignal("Bollinger Bands", bbMid, price < orDefault(bbLow, price), price > orDefault(bbUp, price), 60),
		taSignal("EMA 20", ema20, ema20 > sma50, ema20 < sma50, 55),
		taSignal("SMA 50", sma50, price > sma50, price < sma50, 50),
		taSignal("Volume", volume, false, false, 45),
	}

	// ADX 只给趋势强度，方向跟随均线
	adxReading := market.Reading{Name: "ADX", Value: adx, Enabled: true, Signal: market.SignalNeutral, Confidence: 40}
	if adx > 25 {
		if ema20 > sma50 {
			adxReading.Signal = market.SignalBuy
		} else {
			adxReading.Signal = market.SignalSell
		}
		adxReading.Confidence = clampConfidence(45 + adx)
	}
	out = append(out, adxReading)
	return out
}

func taSignal(name string, value float64, buy, sell bool, confidence float64) market.Reading {
	r := market.Reading{Name: name, Value: value, Enabled: true}
	switch {
	case buy:
		r.Signal = market.SignalBuy
		r.Confidence = clampConfidence(confidence)
	case sell:
		r.Signal = market.SignalSell
		r.Confidence = clampConfidence(confidence)
	default:
		r.Signal = market.SignalNeutral
		r.Confidence = 40
	}
	return r
}

// absDist 距离最近越界边界的深度，用于给 RSI 之类的超买超卖加权信心
func absDist(v, lowBound, highBound float64) float64 {
	if v < lowBound {
		return lowBound - v
	}
	if v > highBound {
		return v - highBound
	}
	return 0
}
