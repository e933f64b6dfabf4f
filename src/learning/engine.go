package learning

import (
	"math"
	"sync"

	"derivbot/src/market"
	"derivbot/src/risk"
)

const (
	priorAccuracy   = 50.0 // 样本不足时的中性先验
	minTradesForAcc = 5    // 超过该笔数才用实测命中率
	lowSamplePenalty = 0.8 // 样本少于 10 笔时的权重折扣
	lowSampleLimit   = 10
)

// Performance 单个指标的历史表现计数
type Performance struct {
	Wins  int `json:"wins"`
	Total int `json:"total"`
}

// Engine 指标表现学习引擎
// 每笔平仓后按成交方向给指标记账：指标与决策同向且盈利记一次命中，
// 指标与决策不同向且亏损同样记为命中（指标不支持这笔交易是对的）
type Engine struct {
	mu   sync.RWMutex
	perf map[string]*Performance
}

func NewEngine() *Engine {
	return &Engine{perf: make(map[string]*Performance)}
}

// RecordTrade 按入场时刻的指标快照记账，只统计启用且数据有效的指标
func (e *Engine) RecordTrade(entryReadings []market.Reading, decision market.Signal, outcome risk.Outcome) {
	if decision != market.SignalBuy && decision != market.SignalSell {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range entryReadings {
		r := &entryReadings[i]
		if !r.Enabled || !r.IsValid() {
			continue
		}
		p, ok := e.perf[r.Name]
		if !ok {
			p = &Performance{}
			e.perf[r.Name] = p
		}
		p.Total++
		if (r.Signal == decision && outcome == risk.OutcomeWin) ||
			(r.Signal != decision && outcome == risk.OutcomeLoss) {
			p.Wins++
		}
	}
}

// Accuracy 指标命中率（百分比），样本不足 6 笔时返回中性先验 50
func (e *Engine) Accuracy(name string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accuracyLocked(name)
}

func (e *Engine) accuracyLocked(name string) float64 {
	p, ok := e.perf[name]
	if !ok || p.Total <= minTradesForAcc {
		return priorAccuracy
	}
	return float64(p.Wins) / float64(p.Total) * 100
}

// WeightOf 由命中率映射权重：50% -> 1.0，100% -> 1.5，样本不足打八折
func (e *Engine) WeightOf(name string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weightLocked(name)
}

func (e *Engine) weightLocked(name string) float64 {
	acc := e.accuracyLocked(name)
	weight := 0.5 + (acc/100)*1.0
	p := e.perf[name]
	if p == nil || p.Total < lowSampleLimit {
		weight *= lowSamplePenalty
	}
	return round2(weight)
}

// TotalTrades 指标参与记账的笔数
func (e *Engine) TotalTrades(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.perf[name]; ok {
		return p.Total
	}
	return 0
}

// Apply 给指标快照标注学习后的权重与命中率，返回副本，入参不被修改
func (e *Engine) Apply(readings []market.Reading) []market.Reading {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]market.Reading, len(readings))
	copy(out, readings)
	for i := range out {
		out[i].Weight = e.weightLocked(out[i].Name)
		out[i].Accuracy = round2(e.accuracyLocked(out[i].Name))
		if p, ok := e.perf[out[i].Name]; ok {
			out[i].TotalTrades = p.Total
		} else {
			out[i].TotalTrades = 0
		}
	}
	return out
}

// Snapshot 导出当前表现计数，用于落库
func (e *Engine) Snapshot() map[string]Performance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]Performance, len(e.perf))
	for name, p := range e.perf {
		out[name] = *p
	}
	return out
}

// Restore 从持久化数据恢复计数，覆盖同名指标的现有记录
func (e *Engine) Restore(data map[string]Performance) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, p := range data {
		cp := p
		e.perf[name] = &cp
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
