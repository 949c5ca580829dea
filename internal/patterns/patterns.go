// Package patterns 实现触发做空的K线形态检测：
// 长短两种“拉高滞涨”窗口、单根放量滞涨K线，以及入场前的
// 涨幅扩展与回撤确认。所有检测都只读K线序列，不携带状态。
package patterns

import (
	"math"

	"shortside-backtest-go/internal/models"
)

const (
	stuffWindowBars  = 20
	stuffWindow2Bars = 5
	priceTierCutoff  = 8.0
)

func stuffWindow(bars []models.Bar, i, n int, bigMove, smallMove float64) bool {
	if i < n {
		return false
	}
	windowOpen := bars[i-n].Open
	if windowOpen <= 0 {
		return false
	}
	maxHigh := 0.0
	for j := i - n; j <= i; j++ {
		if bars[j].High > maxHigh {
			maxHigh = bars[j].High
		}
	}
	required := smallMove
	if bars[i].Close >= priceTierCutoff {
		required = bigMove
	}
	if maxHigh-windowOpen <= required {
		return false
	}
	// 滞涨确认：当前收盘没能守住窗口起点的开盘价
	return bars[i].Close <= windowOpen
}

// StuffWindow 20根K线窗口内冲高至少 $1.00（低价股 $0.20）
// 且当前收盘跌回窗口起点开盘价之下
func StuffWindow(bars []models.Bar, i int) bool {
	return stuffWindow(bars, i, stuffWindowBars, 1.00, 0.20)
}

// StuffWindow2 5根K线的快速版本，阈值 $1.40（低价股 $0.25）
func StuffWindow2(bars []models.Bar, i int) bool {
	return stuffWindow(bars, i, stuffWindow2Bars, 1.40, 0.25)
}

// StuffCandleHard 单根放量滞涨K线：长上影、收盘不高于开盘、
// 成交量超过价位对应的阈值
func StuffCandleHard(b models.Bar) bool {
	move := 0.20
	volume := 900_000.0
	if b.Close >= priceTierCutoff {
		move = 0.70
		volume = 600_000.0
	}
	return b.High-b.Open > move && b.Close <= b.Open && b.Volume > volume
}

// MinOverallMoveAdj 按参考价分层上调最小涨幅要求：
// 价格越低，要求的百分比涨幅越高
func MinOverallMoveAdj(reference, base float64) float64 {
	switch {
	case reference < 0.25:
		return base + 245
	case reference < 0.40:
		return base + 150
	case reference < 0.60:
		return base + 110
	case reference < 0.90:
		return base + 40
	case reference < 1.20:
		return base + 25
	default:
		return base
	}
}

// Extension 当前K线创出日内新高，且相对参考价的涨幅超过分层阈值，
// 并且最近 windowBars 根K线内的涨幅扩展超过 minExtension
func Extension(bars []models.Bar, i int, reference, hod float64, minMove, minExtension float64, windowBars int) bool {
	if reference <= 0 {
		return false
	}
	if bars[i].High != hod {
		return false
	}
	changeFromRef := 100 * (bars[i].High - reference) / reference
	if changeFromRef <= minMove {
		return false
	}
	j := i - windowBars
	if j < 0 {
		j = 0
	}
	changeAtWindowStart := 100 * (bars[j].Close - reference) / reference
	return changeFromRef-changeAtWindowStart > minExtension
}

// Pullback 高点回撤占整个波段 (参考价到日内高点) 的比例
// 是否超过 minPullback。波段为零或结果非有限值时不成立。
func Pullback(closePrice, hod, reference, minPullback float64) bool {
	if hod == reference {
		return false
	}
	pullback := 100 * (hod - closePrice) / (hod - reference)
	if math.IsNaN(pullback) || math.IsInf(pullback, 0) {
		return false
	}
	return pullback > minPullback
}
