package rules

import (
	"errors"
	"fmt"

	"derivbot/src/market"
)

// ErrMissingIndicator 条件引用了当前数据集中不存在的指标
// 属于可恢复的求值故障：条件按 false 处理，整体决策退回 hold
var ErrMissingIndicator = errors.New("rule references missing indicator")

// ErrUnknownStrategy 请求了未注册的策略
var ErrUnknownStrategy = errors.New("unknown strategy")

// Op 阈值比较运算符
type Op string

const (
	OpGT  Op = ">"
	OpLT  Op = "<"
	OpGTE Op = ">="
	OpLTE Op = "<="
)

func compare(left, right float64, op Op) bool {
	switch op {
	case OpGT:
		return left > right
	case OpLT:
		return left < right
	case OpGTE:
		return left >= right
	case OpLTE:
		return left <= right
	default:
		return false
	}
}

// Node 规则条件树节点
// 求值错误不会中断整棵树：出错的子条件按 false 参与组合，错误继续上抛供调用方记录
type Node interface {
	eval(values map[string]float64) (bool, error)
}

// Threshold 指标与固定阈值比较
type Threshold struct {
	Indicator string
	Op        Op
	Value     float64
}

func (c Threshold) eval(values map[string]float64) (bool, error) {
	v, ok := values[c.Indicator]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingIndicator, c.Indicator)
	}
	return compare(v, c.Value, c.Op), nil
}

// Compare 两个指标互相比较（例如均线交叉）
type Compare struct {
	Left  string
	Op    Op
	Right string
}

func (c Compare) eval(values map[string]float64) (bool, error) {
	l, ok := values[c.Left]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingIndicator, c.Left)
	}
	r, ok := values[c.Right]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingIndicator, c.Right)
	}
	return compare(l, r, c.Op), nil
}

// AllOf 所有子条件同时成立
type AllOf []Node

func (c AllOf) eval(values map[string]float64) (bool, error) {
	result := true
	var firstErr error
	for _, child := range c {
		ok, err := child.eval(values)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if !ok {
			result = false
		}
	}
	return result, firstErr
}

// AnyOf 任一子条件成立
type AnyOf []Node

func (c AnyOf) eval(values map[string]float64) (bool, error) {
	result := false
	var firstErr error
	for _, child := range c {
		ok, err := child.eval(values)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			result = true
		}
	}
	return result, firstErr
}

// AtLeast N个布尔条件中至少有 N 个成立（多数表决）
type AtLeast struct {
	N          int
	Conditions []Node
}

func (c AtLeast) eval(values map[string]float64) (bool, error) {
	count := 0
	var firstErr error
	for _, child := range c.Conditions {
		ok, err := child.eval(values)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			count++
		}
	}
	return count >= c.N, firstErr
}

// RuleSet 一个策略的买卖谓词，纯数据结构，可独立于状态机测试
type RuleSet struct {
	Name string
	Buy  Node
	Sell Node
}

// Evaluate 对当前指标数值求值，返回 buy/sell/hold
// 任一谓词触发了求值故障时返回 hold 以及可恢复错误，心跳不受影响
func (rs *RuleSet) Evaluate(values map[string]float64) (market.Signal, error) {
	buyOK, buyErr := rs.Buy.eval(values)
	sellOK, sellErr := rs.Sell.eval(values)

	if buyErr != nil || sellErr != nil {
		err := buyErr
		if err == nil {
			err = sellErr
		}
		return market.SignalHold, err
	}

	// 买入条件优先，与原始策略逻辑保持一致
	if buyOK {
		return market.SignalBuy, nil
	}
	if sellOK {
		return market.SignalSell, nil
	}
	return market.SignalHold, nil
}
