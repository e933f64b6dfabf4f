package consensus

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"derivbot/src/market"
)

// Quality 共识分析的质量分级
type Quality string

const (
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// 共识算法常量
const (
	// MinimumConsensus 达成方向决策所需的最低指标一致率(%)
	MinimumConsensus = 60.0

	consensusWeight     = 0.4 // 决策强度在最终置信度中的占比
	confidenceWeight    = 0.6 // 加权置信度在最终置信度中的占比
	thinEvidencePenalty = 0.8 // 有效指标不足3个时的惩罚系数
	conflictPenaltyMax  = 0.3 // 信号冲突的最大惩罚比例
)

// Result 共识分析结果，无状态派生数据，每个周期重新计算
type Result struct {
	Decision           market.Signal `json:"decision"`
	Confidence         int           `json:"confidence"` // 0-100
	Quality            Quality       `json:"quality"`
	BuyCount           int           `json:"buy_count"`
	SellCount          int           `json:"sell_count"`
	NeutralCount       int           `json:"neutral_count"`
	ValidCount         int           `json:"valid_count"`
	TotalCount         int           `json:"total_count"` // 启用的指标总数
	WeightedConfidence float64       `json:"weighted_confidence"`
	DecisionStrength   float64       `json:"decision_strength"` // 胜出方向的一致率(%)
	Reasoning          []string      `json:"reasoning"`
}

func holdResult(totalCount int, reason string) *Result {
	return &Result{
		Decision:   market.SignalHold,
		Confidence: 0,
		Quality:    QualityPoor,
		TotalCount: totalCount,
		Reasoning:  []string{reason},
	}
}

// Analyze 把一组指标读数融合为单个共识决策
// 纯函数：相同输入产生完全相同的输出，不持有任何状态
func Analyze(readings []market.Reading, strat *market.Strategy) *Result {
	if len(readings) == 0 {
		return holdResult(0, "no indicators available")
	}

	// 1. 只保留启用的指标
	enabled := make([]market.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return holdResult(0, "all indicators are disabled")
	}

	// 2. 数据校验：低置信度、非法信号、NaN 一律剔除，不进入打分
	valid := make([]market.Reading, 0, len(enabled))
	for _, r := range enabled {
		if r.IsValid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return holdResult(len(enabled), "no indicators with valid data")
	}

	// 3. 按信号方向分组
	var buys, sells, neutrals []market.Reading
	for _, r := range valid {
		switch r.Signal {
		case market.SignalBuy:
			buys = append(buys, r)
		case market.SignalSell:
			sells = append(sells, r)
		default:
			neutrals = append(neutrals, r)
		}
	}

	// 4. 加权平均置信度，缺省权重按 1 处理
	totalWeight := 0.0
	weightedSum := 0.0
	for _, r := range valid {
		w := r.EffectiveWeight()
		totalWeight += w
		weightedSum += float64(r.Confidence) * w
	}
	weightedConfidence := 0.0
	if totalWeight > 0 {
		weightedConfidence = weightedSum / totalWeight
	}

	// 5. 一致率
	total := float64(len(valid))
	buyPct := float64(len(buys)) / total * 100
	sellPct := float64(len(sells)) / total * 100
	neutralPct := float64(len(neutrals)) / total * 100

	// 6. 共识规则：一致率达到下限且压过反方向才给出方向决策
	decision := market.SignalHold
	strength := 0.0
	quality := QualityPoor

	switch {
	case buyPct >= MinimumConsensus && buyPct > sellPct:
		decision = market.SignalBuy
		strength = buyPct
		quality = qualityFromStrength(buyPct)
	case sellPct >= MinimumConsensus && sellPct > buyPct:
		decision = market.SignalSell
		strength = sellPct
		quality = qualityFromStrength(sellPct)
	default:
		strength = math.Max(buyPct, math.Max(sellPct, neutralPct))
	}

	// 7. 最终置信度 = 决策强度与加权置信度的组合，再叠加两类惩罚
	finalConfidence := 0.0
	if decision != market.SignalHold {
		finalConfidence = strength*consensusWeight + weightedConfidence*confidenceWeight

		// 有效指标太少，证据不足
		if len(valid) < 3 {
			finalConfidence *= thinEvidencePenalty
		}

		// 多空同时出现信号时按冲突比例惩罚，上限30%
		conflict := math.Min(buyPct, sellPct) / 100
		finalConfidence *= 1 - conflict*conflictPenaltyMax
	}
	confidence := int(math.Round(math.Max(0, math.Min(100, finalConfidence))))

	// 8. 策略置信度门槛：不达标强制 hold 并降级质量
	minConfidence := strat.MinConfidence()
	belowThreshold := confidence < minConfidence
	if belowThreshold {
		decision = market.SignalHold
		quality = QualityPoor
	}

	reasoning := buildReasoning(decision, confidence, minConfidence, strength,
		weightedConfidence, buyPct, sellPct, buys, sells, neutrals, valid, enabled, belowThreshold)

	return &Result{
		Decision:           decision,
		Confidence:         confidence,
		Quality:            quality,
		BuyCount:           len(buys),
		SellCount:          len(sells),
		NeutralCount:       len(neutrals),
		ValidCount:         len(valid),
		TotalCount:         len(enabled),
		WeightedConfidence: weightedConfidence,
		DecisionStrength:   strength,
		Reasoning:          reasoning,
	}
}

func qualityFromStrength(pct float64) Quality {
	switch {
	case pct >= 80:
		return QualityExcellent
	case pct >= 70:
		return QualityGood
	default:
		return QualityFair
	}
}

func buildReasoning(decision market.Signal, confidence, minConfidence int,
	strength, weightedConfidence, buyPct, sellPct float64,
	buys, sells, neutrals, valid, enabled []market.Reading, belowThreshold bool) []string {

	var reasoning []string

	if decision != market.SignalHold {
		reasoning = append(reasoning,
			fmt.Sprintf("%d%% of indicators agree on %s", int(math.Round(strength)), strings.ToUpper(string(decision))),
			fmt.Sprintf("weighted average confidence: %d%%", int(math.Round(weightedConfidence))))

		// 列出支持方向中最可靠的两个指标
		var strong []market.Reading
		for _, r := range valid {
			if r.Signal == decision && r.Confidence >= 70 {
				strong = append(strong, r)
			}
		}
		sort.Slice(strong, func(i, j int) bool { return strong[i].Confidence > strong[j].Confidence })
		if len(strong) > 2 {
			strong = strong[:2]
		}
		if len(strong) > 0 {
			names := make([]string, len(strong))
			for i, r := range strong {
				names[i] = fmt.Sprintf("%s (%d%%)", r.Name, r.Confidence)
			}
			reasoning = append(reasoning, "strong indicators: "+strings.Join(names, ", "))
		}

		opposite := len(sells)
		if decision == market.SignalSell {
			opposite = len(buys)
		}
		if opposite > 0 {
			reasoning = append(reasoning, fmt.Sprintf("%d indicator(s) point the opposite way", opposite))
		}
	} else {
		switch {
		case belowThreshold && confidence > 0:
			reasoning = append(reasoning,
				fmt.Sprintf("confidence %d%% below strategy minimum of %d%%", confidence, minConfidence))
		case strength < MinimumConsensus:
			reasoning = append(reasoning,
				fmt.Sprintf("insufficient consensus (%d%% < %d%%)", int(math.Round(math.Max(buyPct, sellPct))), int(MinimumConsensus)))
		default:
			reasoning = append(reasoning, "conflicting signals across indicators")
		}
		reasoning = append(reasoning,
			fmt.Sprintf("distribution: %d buy, %d sell, %d neutral", len(buys), len(sells), len(neutrals)))
	}

	if len(valid) < len(enabled) {
		reasoning = append(reasoning,
			fmt.Sprintf("%d indicator(s) excluded for invalid data", len(enabled)-len(valid)))
	}

	return reasoning
}
