package market

// 策略参数缺省值，与交易端保持一致
const (
	DefaultMinConfidenceThreshold = 70
	DefaultStopLossPercent        = 2.0
	DefaultTakeProfitPercent      = 4.0
)

// StrategyParameters 策略的风控参数
type StrategyParameters struct {
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
}

// Strategy 交易策略元数据，会话内不可变，由外部选定
type Strategy struct {
	Name                   string             `json:"name"`
	MinConfidenceThreshold int                `json:"min_confidence_threshold"`
	Parameters             StrategyParameters `json:"parameters"`
}

// MinConfidence 入场所需的最低置信度，未配置时取缺省值
func (s *Strategy) MinConfidence() int {
	if s == nil || s.MinConfidenceThreshold <= 0 {
		return DefaultMinConfidenceThreshold
	}
	return s.MinConfidenceThreshold
}

// StopLoss 止损百分比，未配置时取缺省值
func (s *Strategy) StopLoss() float64 {
	if s == nil || s.Parameters.StopLossPercent <= 0 {
		return DefaultStopLossPercent
	}
	return s.Parameters.StopLossPercent
}

// TakeProfit 止盈百分比，未配置时取缺省值
func (s *Strategy) TakeProfit() float64 {
	if s == nil || s.Parameters.TakeProfitPercent <= 0 {
		return DefaultTakeProfitPercent
	}
	return s.Parameters.TakeProfitPercent
}
