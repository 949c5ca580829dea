package strategy

import (
	"time"

	"go.uber.org/zap"

	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/models"
	"shortside-backtest-go/internal/patterns"
)

// Backside 冲高回落做空策略。只有在盘中高点先后越过盘前高点、
// 27%加价线和归一化止损位之后，才开始等待滞涨触发；触发后
// 下一根K线开盘入场，止损挂在入场价上方40%。每只股票每日至多
// 一笔交易。
type Backside struct {
	cfg  *models.Config
	slip *execution.Slipper
}

func NewBackside(cfg *models.Config, slip *execution.Slipper) *Backside {
	return &Backside{cfg: cfg, slip: slip}
}

type backsideSim struct {
	cfg           *models.Config
	slip          *execution.Slipper
	log           *zap.SugaredLogger
	bars          []models.Bar
	ticker        string
	date          string
	previousClose float64
	preMarketHigh float64
	violationLine float64
	normalized    float64
	riskAmount    float64

	st          *SimState
	pos         *Position
	entryComm   float64
	lastBarTime time.Time
}

// Simulate 对单只候选股执行当日仿真。返回 (nil, nil) 表示当日无交易。
func (b *Backside) Simulate(in Input) (*models.TradeRecord, error) {
	log := logger.S()
	series := in.Series
	if series == nil || len(series.Bars) < 2 {
		return nil, models.ErrInsufficientData
	}

	preMarketHigh, ok := series.PreMarketHigh()
	if !ok {
		return nil, models.ErrNoPreMarketData
	}

	bcfg := &b.cfg.Backside
	// 前收盘取序列首根K线的收盘价，与筛选阶段保持同一口径
	previousClose := series.Bars[0].Close

	// 归一化止损：两条 Gapper 止损线取高者；当日无盘中数据时退化为
	// 盘前高点的固定倍数
	var normalized float64
	if first, ok := series.FirstMarketBar(); ok {
		dayOpen := first.Open
		stop1 := preMarketHigh * bcfg.NormalizedStopMult
		stop2 := dayOpen + (dayOpen-previousClose)*bcfg.NormalizedStopGap
		normalized = stop1
		if stop2 > normalized {
			normalized = stop2
		}
	} else {
		normalized = preMarketHigh * bcfg.FallbackStopMult
	}

	riskAmount := bcfg.StaticRisk
	if !b.cfg.UseStaticSizing {
		riskAmount = in.DayStartBalance * bcfg.RiskFraction
	}

	sim := &backsideSim{
		cfg:           b.cfg,
		slip:          b.slip,
		log:           log,
		bars:          series.Bars,
		ticker:        series.Ticker,
		date:          series.Date,
		previousClose: previousClose,
		preMarketHigh: preMarketHigh,
		violationLine: preMarketHigh * bcfg.ViolationMultiplier,
		normalized:    normalized,
		riskAmount:    riskAmount,
		st:            newSimState(),
	}

	for i, bar := range series.Bars {
		if record := sim.step(i, bar); record != nil {
			return record, nil
		}
	}

	// 收盘仍未离场时按全序列末根K线收盘价买回
	if sim.pos != nil {
		last := series.Bars[len(series.Bars)-1]
		return sim.close(b.slip.Exit(last.Close), last.Time, models.ExitEndOfDay), nil
	}
	return nil, nil
}

// step 处理一根K线，平仓时返回交易记录
func (s *backsideSim) step(i int, bar models.Bar) *models.TradeRecord {
	st := s.st
	bcfg := &s.cfg.Backside

	// 全天高点包含盘前K线
	if bar.High > st.HighOfDay {
		st.HighOfDay = bar.High
	}

	hhmm := bar.HHMM()
	if hhmm < models.MarketOpen || hhmm >= models.MarketClose {
		return nil
	}

	if !s.lastBarTime.IsZero() && bar.Time.Sub(s.lastBarTime).Seconds() > float64(s.cfg.HaltGapSeconds) {
		if !st.HaltDetected {
			st.HaltDetected = true
			if s.pos != nil {
				s.log.Warnw("halt detected in position", "ticker", s.ticker, "time", bar.Time)
			}
		}
	}

	if bar.High > st.HighOfDayRTH {
		st.HighOfDayRTH = bar.High
	}

	if !st.ExceededPreMarketHigh && st.HighOfDayRTH > s.preMarketHigh {
		st.ExceededPreMarketHigh = true
	}
	if st.ExceededPreMarketHigh && !st.ViolatedPreMarketFilter && bar.High >= s.violationLine {
		st.ViolatedPreMarketFilter = true
	}
	if !st.NormalizedStopTriggered && st.HighOfDayRTH >= s.normalized {
		st.NormalizedStopTriggered = true
	}

	if hhmm > bcfg.LastEntryTime && s.pos == nil && st.Phase != PhaseTriggerPending {
		return nil
	}

	gated := st.ExceededPreMarketHigh && st.ViolatedPreMarketFilter && st.NormalizedStopTriggered

	switch {
	case s.pos == nil && st.Phase == PhaseScanning && gated:
		if stuffTrigger(bcfg, s.bars[:i+1], i, st.PreTriggerTwoCount, st.StuffTriggerCount,
			s.previousClose, st.HighOfDay) {
			if hhmm <= bcfg.LastEntryTime {
				triggerPrice := bar.Close
				// $1-2 区间历史胜率过低，触发价落在死区直接放弃
				if triggerPrice >= bcfg.DeadZoneMin && triggerPrice < bcfg.DeadZoneMax {
					s.log.Infow("trigger price in dead zone, skipping",
						"ticker", s.ticker, "price", triggerPrice)
					return nil
				}
				st.Phase = PhaseTriggerPending
				st.TriggerIndex = i
				st.StuffTriggerCount++
				s.log.Infow("trigger detected, entering next bar",
					"ticker", s.ticker, "time", bar.Time, "price", triggerPrice)
			}
		}

	case s.pos == nil && st.Phase == PhaseTriggerPending && i == st.TriggerIndex+1:
		if hhmm <= bcfg.LastEntryTime {
			entryPrice := s.slip.Entry(bar.Open)
			stopLoss := entryPrice * (1 + bcfg.StopLossPercent)
			if stopLoss-entryPrice <= 0 {
				st.Phase = PhaseScanning
				return nil
			}
			shares := execution.Shares(s.riskAmount, entryPrice, bcfg.StopLossPercent)
			if shares <= 0 {
				st.Phase = PhaseScanning
				return nil
			}
			s.pos = &Position{
				EntryPrice: entryPrice,
				EntryTime:  bar.Time,
				Shares:     shares,
				StopLoss:   stopLoss,
			}
			s.entryComm = execution.Commission(entryPrice, shares, s.cfg.CommissionPercent)
			st.Phase = PhaseOpen
			s.log.Infow("entered short", "ticker", s.ticker, "time", bar.Time,
				"entry", entryPrice, "stop", stopLoss, "shares", shares)
		} else {
			st.Phase = PhaseScanning
		}

	case s.pos != nil:
		stopLoss := s.pos.StopLoss

		if st.HaltDetected && (bar.Open >= stopLoss || bar.High >= stopLoss) {
			raw := stopLoss
			if bar.Open >= stopLoss {
				raw = bar.Open
			}
			st.HaltDetected = false
			return s.close(s.slip.ExitAfterHalt(raw, s.cfg.HaltSlippageMultiplier), bar.Time, models.ExitHaltStop)
		}
		if !st.HaltDetected && (bar.Open >= stopLoss || bar.High >= stopLoss) {
			raw := stopLoss
			if bar.Open >= stopLoss {
				raw = bar.Open
			}
			return s.close(s.slip.Exit(raw), bar.Time, models.ExitStopLoss)
		}
		if hhmm >= bcfg.EODExitTime {
			return s.close(s.slip.Exit(bar.Open), bar.Time, models.ExitEndOfDay)
		}
	}

	if patterns.Pullback(bar.Close, st.HighOfDay, s.previousClose, bcfg.MinPullbackPercent) {
		st.PreTriggerTwoCount++
	}

	s.lastBarTime = bar.Time
	if st.HaltDetected && s.pos == nil {
		st.HaltDetected = false
	}
	return nil
}

func (s *backsideSim) close(exitPrice float64, exitTime time.Time, reason string) *models.TradeRecord {
	pos := s.pos
	exitComm := execution.Commission(exitPrice, pos.Shares, s.cfg.CommissionPercent)
	gross := (pos.EntryPrice - exitPrice) * float64(pos.Shares)
	record := &models.TradeRecord{
		ID:            execution.NewTradeID(s.ticker, pos.EntryTime.UnixNano()),
		Date:          s.date,
		Ticker:        s.ticker,
		Strategy:      models.StrategyBackside,
		EntryTime:     pos.EntryTime,
		ExitTime:      exitTime,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		Shares:        pos.Shares,
		StopLoss:      pos.StopLoss,
		ExitReason:    reason,
		Commission:    s.entryComm + exitComm,
		NetPnL:        gross - s.entryComm - exitComm,
		PreMarketHigh: s.preMarketHigh,
		HaltInvolved:  reason == models.ExitHaltStop,
	}
	s.pos = nil
	s.st.Phase = PhaseClosed
	s.log.Infow("backside trade complete", "ticker", s.ticker, "date", s.date,
		"exit", reason, "net_pnl", record.NetPnL)
	return record
}
