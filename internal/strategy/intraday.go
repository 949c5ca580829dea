package strategy

import (
	"time"

	"go.uber.org/zap"

	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/models"
)

// Intraday 日内 Backside 策略。不依赖盘前数据：以当日开盘价为
// 参考，先等涨幅达标，再等回撤达标，之后的滞涨K线触发做空。
// 入场与止损结构与 Backside 相同，但风险金额和成交量门槛更低，
// 14:30 后强制离场。
type Intraday struct {
	cfg  *models.Config
	slip *execution.Slipper
}

func NewIntraday(cfg *models.Config, slip *execution.Slipper) *Intraday {
	return &Intraday{cfg: cfg, slip: slip}
}

type intradaySim struct {
	cfg        *models.Config
	slip       *execution.Slipper
	log        *zap.SugaredLogger
	bars       []models.Bar // 仅盘中K线
	ticker     string
	date       string
	dayOpen    float64
	riskAmount float64

	st          *SimState
	pos         *Position
	entryComm   float64
	lastBarTime time.Time
}

// Simulate 对单只日内候选股执行当日仿真。返回 (nil, nil) 表示无交易。
func (n *Intraday) Simulate(in Input) (*models.TradeRecord, error) {
	log := logger.S()
	series := in.Series
	if series == nil || len(series.Bars) < 2 {
		return nil, models.ErrInsufficientData
	}

	icfg := &n.cfg.Intraday

	// 当日开盘价：首根盘中K线足够早时直接用其开盘价，
	// 否则退回日线快照里的开盘价
	first, ok := series.FirstMarketBar()
	var dayOpen float64
	switch {
	case ok && first.HHMM() <= icfg.MaxDayOpenDelay:
		dayOpen = first.Open
	case in.Candidate.DayOpen > 0:
		dayOpen = in.Candidate.DayOpen
	default:
		return nil, models.ErrNoMarketData
	}
	if dayOpen <= 0 {
		return nil, models.ErrNoMarketData
	}

	marketBars := series.MarketBars()
	if len(marketBars) == 0 {
		return nil, models.ErrNoMarketData
	}

	riskAmount := icfg.StaticRisk
	if !n.cfg.UseStaticSizingIntraday {
		riskAmount = in.DayStartBalance * icfg.RiskPercent / 100
	}

	sim := &intradaySim{
		cfg:        n.cfg,
		slip:       n.slip,
		log:        log,
		bars:       marketBars,
		ticker:     series.Ticker,
		date:       series.Date,
		dayOpen:    dayOpen,
		riskAmount: riskAmount,
		st:         newSimState(),
	}
	sim.st.HighOfDay = dayOpen

	for i, bar := range marketBars {
		if record := sim.step(i, bar); record != nil {
			return record, nil
		}
	}

	if sim.pos != nil {
		last := marketBars[len(marketBars)-1]
		raw := last.Close
		if raw <= 0 {
			raw = last.Open
		}
		if raw <= 0 {
			raw = sim.pos.EntryPrice
		}
		return sim.close(n.slip.Exit(raw), last.Time, models.ExitEndOfDay), nil
	}
	return nil, nil
}

func (s *intradaySim) step(i int, bar models.Bar) *models.TradeRecord {
	st := s.st
	icfg := &s.cfg.Intraday

	if !bar.Valid() {
		s.log.Debugw("skipping malformed candle", "ticker", s.ticker, "time", bar.Time)
		return nil
	}

	if !s.lastBarTime.IsZero() &&
		bar.Time.Sub(s.lastBarTime).Seconds() > float64(s.cfg.HaltGapSeconds) && s.pos != nil {
		st.HaltDetected = true
		s.log.Warnw("halt detected in position", "ticker", s.ticker, "time", bar.Time)
	}
	s.lastBarTime = bar.Time

	if bar.High > st.HighOfDay {
		st.HighOfDay = bar.High
	}
	highestMove := (st.HighOfDay - s.dayOpen) / s.dayOpen * 100

	hhmm := bar.HHMM()

	if st.HaltDetected && s.pos != nil {
		if bar.Open > s.pos.StopLoss {
			st.HaltDetected = false
			return s.close(s.slip.ExitAfterHalt(bar.Open, s.cfg.HaltSlippageMultiplier), bar.Time, models.ExitHaltStop)
		}
		st.HaltDetected = false
	}

	if s.pos != nil {
		stopLoss := s.pos.StopLoss
		if bar.High >= stopLoss || bar.Open >= stopLoss {
			raw := stopLoss
			if bar.Open >= stopLoss {
				raw = bar.Open
			}
			return s.close(s.slip.Exit(raw), bar.Time, models.ExitStopLoss)
		}
		if hhmm >= icfg.LastEntryTime {
			raw := bar.Close
			if raw <= 0 {
				raw = bar.Open
			}
			if raw <= 0 {
				raw = s.pos.EntryPrice
			}
			return s.close(s.slip.Exit(raw), bar.Time, models.ExitTimeCutoff)
		}
	}

	switch {
	case s.pos == nil && st.Phase == PhaseScanning && hhmm <= icfg.LastEntryTime:
		if !st.MoveQualified {
			if highestMove < icfg.MinMovePercent {
				return nil
			}
			st.MoveQualified = true
			s.log.Infow("move qualified", "ticker", s.ticker, "move_pct", highestMove, "time", bar.Time)
		}

		if !st.PullbackQualified {
			pullback := 0.0
			if st.HighOfDay > s.dayOpen {
				pullback = (st.HighOfDay - bar.Low) / (st.HighOfDay - s.dayOpen) * 100
			}
			if pullback < icfg.MinPullbackPercent {
				return nil
			}
			st.PullbackQualified = true
			s.log.Infow("pullback qualified", "ticker", s.ticker, "pullback_pct", pullback, "time", bar.Time)
		}

		if intradayStuff(s.bars, i) && s.cumulativeVolume(i) >= icfg.MinCumulativeVolume {
			st.Phase = PhaseTriggerPending
			st.TriggerIndex = i
			s.log.Infow("trigger detected, entering next bar",
				"ticker", s.ticker, "time", bar.Time, "price", bar.Close)
		}

	case s.pos == nil && st.Phase == PhaseTriggerPending && i == st.TriggerIndex+1:
		if hhmm > icfg.LastEntryTime {
			st.Phase = PhaseScanning
			return nil
		}
		if bar.Open <= 0 {
			st.Phase = PhaseScanning
			return nil
		}
		entryPrice := s.slip.Entry(bar.Open)
		stopLoss := entryPrice * (1 + icfg.StopLossPercent)
		if stopLoss-entryPrice <= 0.01 {
			st.Phase = PhaseScanning
			return nil
		}
		shares := execution.Shares(s.riskAmount, entryPrice, icfg.StopLossPercent)
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
			"entry", entryPrice, "stop", stopLoss, "shares", shares,
			"hod_at_entry", st.HighOfDay, "move_pct", highestMove)
	}
	return nil
}

func (s *intradaySim) cumulativeVolume(i int) float64 {
	var total float64
	for j := 0; j <= i; j++ {
		total += s.bars[j].Volume
	}
	return total
}

func (s *intradaySim) close(exitPrice float64, exitTime time.Time, reason string) *models.TradeRecord {
	pos := s.pos
	exitComm := execution.Commission(exitPrice, pos.Shares, s.cfg.CommissionPercent)
	gross := (pos.EntryPrice - exitPrice) * float64(pos.Shares)
	record := &models.TradeRecord{
		ID:           execution.NewTradeID(s.ticker, pos.EntryTime.UnixNano()),
		Date:         s.date,
		Ticker:       s.ticker,
		Strategy:     models.StrategyIntraday,
		EntryTime:    pos.EntryTime,
		ExitTime:     exitTime,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		Shares:       pos.Shares,
		StopLoss:     pos.StopLoss,
		ExitReason:   reason,
		Commission:   s.entryComm + exitComm,
		NetPnL:       gross - s.entryComm - exitComm,
		HaltInvolved: reason == models.ExitHaltStop,
	}
	s.pos = nil
	s.st.Phase = PhaseClosed
	s.log.Infow("intraday backside trade complete", "ticker", s.ticker, "date", s.date,
		"exit", reason, "net_pnl", record.NetPnL)
	return record
}
