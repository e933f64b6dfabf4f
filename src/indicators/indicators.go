package indicators

import "math"

// SMA 简单移动平均，数据不足返回 NaN
func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// EMA 指数移动平均，以首个 n 周期 SMA 作为种子
func EMA(closes []float64, n int) float64 {
	series := emaSeries(closes, n)
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func emaSeries(closes []float64, n int) []float64 {
	if len(closes) < n || n <= 0 {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, 0, len(closes)-n+1)
	seed := 0.0
	for i := 0; i < n; i++ {
		seed += closes[i]
	}
	prev := seed / float64(n)
	out = append(out, prev)
	for i := n; i < len(closes); i++ {
		prev = closes[i]*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// StdDev 最近 n 个值的总体标准差
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

// Bollinger 布林带中轨与上下轨
func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// RSI 相对强弱指标，全部上涨时取 100
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// MACD 返回 DIF、DEA 与柱状值，使用标准 12/26/9 之外也可自定义周期
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist float64) {
	if len(closes) < slow+signal || fast <= 0 || slow <= fast || signal <= 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// 两条 EMA 序列尾部对齐后相减得到 DIF 序列
	offset := len(fastSeries) - len(slowSeries)
	diff := make([]float64, len(slowSeries))
	for i := range slowSeries {
		diff[i] = fastSeries[i+offset] - slowSeries[i]
	}

	sigSeries := emaSeries(diff, signal)
	if len(sigSeries) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	line = diff[len(diff)-1]
	sig = sigSeries[len(sigSeries)-1]
	hist = line - sig
	return
}

// ADX 平均趋向指标，衡量趋势强度，不区分方向
func ADX(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	// 需要 period 根算出首个 DX，再平滑 period 次
	if len(closes) < 2*period+1 || period <= 0 {
		return math.NaN()
	}

	var trSum, plusSum, minusSum float64
	dxs := make([]float64, 0, period)

	for i := 1; i < len(closes); i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		if i <= period {
			trSum += tr
			plusSum += plusDM
			minusSum += minusDM
			if i < period {
				continue
			}
		} else {
			// Wilder 平滑
			trSum = trSum - trSum/float64(period) + tr
			plusSum = plusSum - plusSum/float64(period) + plusDM
			minusSum = minusSum - minusSum/float64(period) + minusDM
		}

		if trSum == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI := 100 * plusSum / trSum
		minusDI := 100 * minusSum / trSum
		if plusDI+minusDI == 0 {
			dxs = append(dxs, 0)
			continue
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/(plusDI+minusDI))
	}

	if len(dxs) < period {
		return math.NaN()
	}
	adx := 0.0
	for i := 0; i < period; i++ {
		adx += dxs[i]
	}
	adx /= float64(period)
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}
	return adx
}
