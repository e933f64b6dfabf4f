package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"derivbot/src/indicators"
	"derivbot/src/market"
)

const (
	simStartPrice   = 10000.0
	simVolatility   = 4.0
	simIntraMoves   = 10  // 每根K线内的价格步数，用来生成影线
	simHistoryLimit = 500 // K线历史上限
)

type candle struct {
	open, high, low, close float64
}

// Simulated 随机游走行情模拟器
// 每次 CurrentTick 推进一根K线并重算全部指标快照，种子固定时序列可复现
type Simulated struct {
	mu       sync.Mutex
	symbol   string
	rng      *rand.Rand
	history  []candle
	readings []market.Reading
	now      func() time.Time
}

func NewSimulated(symbol string, seed int64) *Simulated {
	s := &Simulated{
		symbol: symbol,
		rng:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}
	// 预热历史，保证首个心跳就有足够数据算指标
	for i := 0; i < 60; i++ {
		s.step()
	}
	s.refreshReadings()
	return s
}

// CurrentTick 生成下一根K线并返回最新报价
func (s *Simulated) CurrentTick(_ context.Context) (market.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.step()
	s.refreshReadings()

	last := s.history[len(s.history)-1]
	return market.Tick{
		Symbol:    s.symbol,
		Price:     decimal.NewFromFloat(last.close).Round(4),
		Timestamp: s.now(),
	}, nil
}

// Readings 返回最近一次生成的指标快照副本
func (s *Simulated) Readings(_ context.Context) ([]market.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]market.Reading, len(s.readings))
	copy(out, s.readings)
	return out, nil
}

func (s *Simulated) step() {
	open := simStartPrice
	if len(s.history) > 0 {
		open = s.history[len(s.history)-1].close
	}

	high, low, price := open, open, open
	for i := 0; i < simIntraMoves; i++ {
		price += (s.rng.Float64() - 0.5) * (simVolatility / simIntraMoves) * 2
		high = math.Max(high, price)
		low = math.Min(low, price)
	}

	s.history = append(s.history, candle{open: open, high: high, low: low, close: price})
	if len(s.history) > simHistoryLimit {
		s.history = s.history[len(s.history)-simHistoryLimit:]
	}
}

func (s *Simulated) closes() []float64 {
	out := make([]float64, len(s.history))
	for i, c := range s.history {
		out[i] = c.close
	}
	return out
}

func (s *Simulated) refreshReadings() {
	closes := s.closes()
	highs := make([]float64, len(s.history))
	lows := make([]float64, len(s.history))
	for i, c := range s.history {
		highs[i] = c.high
		lows[i] = c.low
	}
	price := closes[len(closes)-1]

	rsi := orDefault(indicators.RSI(closes, 14), 50)
	_, _, macdHist := indicators.MACD(closes, 12, 26, 9)
	macdHist = orDefault(macdHist, 0)
	adx := orDefault(indicators.ADX(highs, lows, closes, 14), 20)
	ema20 := orDefault(indicators.EMA(closes, 20), price)
	sma50 := orDefault(indicators.SMA(closes, 50), price)
	bbMid, _, _ := indicators.Bollinger(closes, 20, 2)
	bbMid = orDefault(bbMid, price)
	volume := 100000 + s.rng.Float64()*100000

	s.readings = []market.Reading{
		s.rsiReading(rsi),
		s.macdReading(macdHist),
		s.genericReading("Bollinger Bands", bbMid),
		s.adxReading(adx),
		s.genericReading("EMA 20", ema20),
		s.genericReading("SMA 50", sma50),
		s.genericReading("Volume", volume),
		s.genericReading("Stochastic", 50+(s.rng.Float64()-0.5)*60),
		s.genericReading("Supertrend", price+(s.rng.Float64()-0.5)*simVolatility),
		s.genericReading("News Sentiment", (s.rng.Float64()-0.5)*2),
	}
}

// rsiReading 超卖看多、超买看空，偏离越深信心越高
func (s *Simulated) rsiReading(value float64) market.Reading {
	r := market.Reading{Name: "RSI", Value: value, Enabled: true}
	switch {
	case value < 35:
		r.Signal = market.SignalBuy
		r.Confidence = clampConfidence(50 + (35-value)*2)
	case value > 65:
		r.Signal = market.SignalSell
		r.Confidence = clampConfidence(50 + (value-65)*2)
	default:
		r.Signal = market.SignalNeutral
		r.Confidence = clampConfidence(30 + s.rng.Float64()*20)
	}
	return r
}

// macdReading 柱状值方向即信号方向
func (s *Simulated) macdReading(hist float64) market.Reading {
	r := market.Reading{Name: "MACD", Value: hist, Enabled: true}
	switch {
	case hist > 0.1:
		r.Signal = market.SignalBuy
		r.Confidence = clampConfidence(50 + s.rng.Float64()*35)
	case hist < -0.1:
		r.Signal = market.SignalSell
		r.Confidence = clampConfidence(50 + s.rng.Float64()*35)
	default:
		r.Signal = market.SignalNeutral
		r.Confidence = clampConfidence(30 + s.rng.Float64()*25)
	}
	return r
}

// adxReading ADX 只度量趋势强度，信号方向跟随短期均线走向
func (s *Simulated) adxReading(value float64) market.Reading {
	r := market.Reading{Name: "ADX", Value: value, Enabled: true}
	closes := s.closes()
	trendUp := len(closes) >= 2 && closes[len(closes)-1] > closes[len(closes)-2]
	if value > 25 {
		if trendUp {
			r.Signal = market.SignalBuy
		} else {
			r.Signal = market.SignalSell
		}
		r.Confidence = clampConfidence(45 + value)
	} else {
		r.Signal = market.SignalNeutral
		r.Confidence = clampConfidence(30 + s.rng.Float64()*20)
	}
	return r
}

func (s *Simulated) genericReading(name string, value float64) market.Reading {
	r := market.Reading{Name: name, Value: value, Enabled: true}
	roll := s.rng.Float64()
	switch {
	case roll < 0.35:
		r.Signal = market.SignalBuy
		r.Confidence = clampConfidence(45 + s.rng.Float64()*40)
	case roll < 0.7:
		r.Signal = market.SignalSell
		r.Confidence = clampConfidence(45 + s.rng.Float64()*40)
	default:
		r.Signal = market.SignalNeutral
		r.Confidence = clampConfidence(30 + s.rng.Float64()*30)
	}
	return r
}

func clampConfidence(v float64) int {
	return int(math.Round(math.Max(25, math.Min(95, v))))
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
