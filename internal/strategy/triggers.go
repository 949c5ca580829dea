package strategy

import (
	"shortside-backtest-go/internal/models"
	"shortside-backtest-go/internal/patterns"
)

// stuffTrigger Backside 策略的综合触发判定，作用于含盘前的完整序列。
// 滞涨窗口要求沿上升沿触发（上一根不满足、当前满足），单根放量
// 滞涨K线不受此限制。
func stuffTrigger(cfg *models.BacksideConfig, bars []models.Bar, i int,
	preTriggerTwoCount, stuffTriggerCount int, previousClose, highOfDay float64) bool {

	if stuffTriggerCount >= cfg.MaxStuffTriggers {
		return false
	}

	sw := patterns.StuffWindow(bars, i)
	sw2 := patterns.StuffWindow2(bars, i)
	sch := patterns.StuffCandleHard(bars[i])

	edge := (sw && !patterns.StuffWindow(bars, i-1)) ||
		(sw2 && !patterns.StuffWindow2(bars, i-1)) ||
		sch
	if !edge {
		return false
	}

	minMove := patterns.MinOverallMoveAdj(previousClose, cfg.MinOverallMovePercent)
	extension := patterns.Extension(bars, i, previousClose, highOfDay,
		minMove, cfg.MinExtensionPercent, cfg.ExtensionWindowBars)
	if preTriggerTwoCount == 0 && !extension {
		return false
	}

	if bars[i].Close >= cfg.PriceCeiling {
		return false
	}

	var totalVolume float64
	for j := 0; j <= i; j++ {
		totalVolume += bars[j].Volume
	}
	return totalVolume > cfg.MinCumulativeVolume
}

// intradayStuff 日内策略的滞涨判定，只看盘中序列。
// 与 Backside 的差异：收盘价与窗口开盘价用严格小于比较，
// 且不要求上升沿。
func intradayStuff(bars []models.Bar, i int) bool {
	b := bars[i]

	var sw bool
	if i >= 20 {
		open20 := bars[i-20].Open
		high20 := maxHigh(bars[i-20 : i+1])
		threshold := 0.20
		if b.Close >= 8 {
			threshold = 1.00
		}
		if open20 > 0 && high20 > 0 {
			sw = high20-open20 > threshold && b.Close < open20
		}
	}

	var sw2 bool
	if i >= 5 {
		open5 := bars[i-5].Open
		high5 := maxHigh(bars[i-5 : i+1])
		threshold := 0.25
		if b.Close >= 8 {
			threshold = 1.40
		}
		if open5 > 0 && high5 > 0 {
			sw2 = high5-open5 > threshold && b.Close < open5
		}
	}

	var sch bool
	if b.Open > 0 {
		move := 0.20
		volume := 900_000.0
		if b.Close >= 8 {
			move = 0.70
			volume = 600_000.0
		}
		sch = b.High-b.Open > move && b.Close < b.Open && b.Volume > volume
	}

	return sw || sw2 || sch
}

func maxHigh(bars []models.Bar) float64 {
	high := 0.0
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
	}
	return high
}
