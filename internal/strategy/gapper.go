package strategy

import (
	"math"
	"time"

	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/models"
)

// Gapper 开盘跳空做空策略。9:29 收盘价为入场参考，9:30 按滑点价
// 开出两腿空单，各自挂不同的止损，15:00 强制平仓。
type Gapper struct {
	cfg  *models.Config
	slip *execution.Slipper
}

func NewGapper(cfg *models.Config, slip *execution.Slipper) *Gapper {
	return &Gapper{cfg: cfg, slip: slip}
}

type gapperLeg struct {
	shares    int
	stopLoss  float64
	exitPrice float64
	exitTime  time.Time
	reason    string
	done      bool
}

func (l *gapperLeg) exit(price float64, t time.Time, reason string) {
	l.exitPrice = price
	l.exitTime = t
	l.reason = reason
	l.done = true
}

// Simulate 对单只候选股执行当日仿真，无交易条件时返回 (nil, nil)
func (g *Gapper) Simulate(in Input) (*models.TradeRecord, error) {
	log := logger.S()
	series := in.Series
	if series == nil || len(series.Bars) < 2 {
		return nil, models.ErrInsufficientData
	}

	previousClose := in.Candidate.PreviousClose
	preMarketHigh := in.Candidate.PreMarketHigh

	// 以序列中实际的盘前高点为准，传入值仅作交叉校验
	if actual, ok := series.PreMarketHigh(); ok && math.Abs(actual-preMarketHigh) > 0.01 {
		log.Warnw("pre-market high mismatch, using series value",
			"ticker", series.Ticker, "given", preMarketHigh, "actual", actual)
		preMarketHigh = actual
	}

	if _, ok := series.BarAt(928); !ok {
		return nil, models.ErrMissingReferenceBar
	}
	bar929, ok := series.BarAt(929)
	if !ok {
		return nil, models.ErrMissingReferenceBar
	}
	referencePrice := bar929.Close
	if referencePrice <= 0 || preMarketHigh <= 0 {
		return nil, models.ErrMissingReferenceBar
	}

	gapPercent := 0.0
	if bar928, ok := series.BarAt(928); ok && previousClose > 0 {
		gapPercent = (bar928.Close - previousClose) / previousClose * 100
	}

	entryDrop := (preMarketHigh - referencePrice) / preMarketHigh * 100
	gcfg := &g.cfg.Gapper
	stopLoss1 := preMarketHigh * gcfg.Stop1Multiplier
	stopLoss2 := referencePrice + (referencePrice-previousClose)*gcfg.Stop2GapFactor
	leg2Active := entryDrop <= gcfg.MaxEntryDropPercent

	leg1 := &gapperLeg{stopLoss: stopLoss1, reason: models.ExitEndOfDay}
	leg2 := &gapperLeg{stopLoss: stopLoss2, reason: models.ExitEndOfDay}
	leg1.shares = execution.Shares(g.riskAmount(gcfg.StaticRiskLeg1, gcfg.RiskPercentLeg1, in.Balance),
		referencePrice, (stopLoss1-referencePrice)/referencePrice)
	if leg2Active {
		leg2.shares = execution.Shares(g.riskAmount(gcfg.StaticRiskLeg2, gcfg.RiskPercentLeg2, in.Balance),
			referencePrice, (stopLoss2-referencePrice)/referencePrice)
	}
	if leg1.shares <= 0 && leg2.shares <= 0 {
		log.Debugw("degenerate position size, no trade",
			"ticker", series.Ticker, "reference", referencePrice)
		return nil, nil
	}

	entryPrice := g.slip.Entry(referencePrice)
	entryTime := bar929.Time.Add(time.Minute)

	var window []models.Bar
	for _, b := range series.Bars {
		if hhmm := b.HHMM(); hhmm >= models.MarketOpen && hhmm <= gcfg.EODExitTime {
			window = append(window, b)
		}
	}
	if len(window) < 2 {
		return nil, models.ErrNoMarketData
	}

	trailingActivated := false
	trailingStop := math.Inf(1)
	backsideEligible := false
	haltDetected := false
	haltInvolved := false
	var lastBarTime time.Time

	for _, bar := range window {
		if !lastBarTime.IsZero() && bar.Time.Sub(lastBarTime).Seconds() > float64(g.cfg.HaltGapSeconds) {
			if !haltDetected {
				haltDetected = true
				haltInvolved = true
				log.Warnw("halt detected", "ticker", series.Ticker,
					"gap_minutes", bar.Time.Sub(lastBarTime).Minutes(), "time", bar.Time)
			}
		}

		if haltDetected {
			if !leg1.done && bar.Open >= leg1.stopLoss {
				leg1.exit(g.slip.ExitAfterHalt(bar.Open, g.cfg.HaltSlippageMultiplier), bar.Time, models.ExitHaltStop)
				backsideEligible = true
			}
			if !leg2.done && leg2Active && bar.Open >= leg2.stopLoss {
				leg2.exit(g.slip.ExitAfterHalt(bar.Open, g.cfg.HaltSlippageMultiplier), bar.Time, models.ExitHaltStop)
				backsideEligible = true
			}
			haltDetected = false
		}

		if !trailingActivated && (entryPrice-bar.Low)/entryPrice >= gcfg.TrailingActivation {
			trailingActivated = true
			trailingStop = bar.Low * (1 + gcfg.TrailingDistance)
		}

		if trailingActivated {
			if bar.Low < trailingStop/(1+gcfg.TrailingDistance) {
				trailingStop = bar.Low * (1 + gcfg.TrailingDistance)
			}
			if bar.High >= trailingStop {
				raw := trailingStop
				if bar.Open > trailingStop {
					raw = bar.Open
				}
				if !leg1.done {
					leg1.exit(g.slip.Exit(raw), bar.Time, models.ExitTrailingStop)
				}
				if !leg2.done && leg2Active {
					leg2.exit(g.slip.Exit(raw), bar.Time, models.ExitTrailingStop)
				}
				break
			}
		} else {
			if !leg1.done && bar.High >= leg1.stopLoss {
				raw := leg1.stopLoss
				if bar.Open > leg1.stopLoss {
					raw = bar.Open
				}
				leg1.exit(g.slip.Exit(raw), bar.Time, models.ExitStopLoss)
				backsideEligible = true
			}
			if !leg2.done && leg2Active && bar.High >= leg2.stopLoss {
				raw := leg2.stopLoss
				if bar.Open > leg2.stopLoss {
					raw = bar.Open
				}
				leg2.exit(g.slip.Exit(raw), bar.Time, models.ExitStopLoss)
				backsideEligible = true
			}
		}

		lastBarTime = bar.Time

		if leg1.done && (leg2.done || !leg2Active) {
			break
		}
	}

	// 未触发止损的腿在 15:00 K线的开盘价平仓，缺该K线时用窗口末根
	if !leg1.done || (leg2Active && !leg2.done) {
		eodBar := window[len(window)-1]
		for _, b := range window {
			if b.HHMM() == gcfg.EODExitTime {
				eodBar = b
				break
			}
		}
		if !leg1.done {
			leg1.exit(g.slip.Exit(eodBar.Open), eodBar.Time, models.ExitEndOfDay)
		}
		if leg2Active && !leg2.done {
			leg2.exit(g.slip.Exit(eodBar.Open), eodBar.Time, models.ExitEndOfDay)
		}
	}

	pnl1 := (entryPrice - leg1.exitPrice) * float64(leg1.shares)
	commission1 := execution.Commission(entryPrice+leg1.exitPrice, leg1.shares, g.cfg.CommissionPercent)
	var pnl2, commission2 float64
	if leg2Active {
		pnl2 = (entryPrice - leg2.exitPrice) * float64(leg2.shares)
		commission2 = execution.Commission(entryPrice+leg2.exitPrice, leg2.shares, g.cfg.CommissionPercent)
	}

	record := &models.TradeRecord{
		ID:               execution.NewTradeID(series.Ticker, entryTime.UnixNano()),
		Date:             series.Date,
		Ticker:           series.Ticker,
		Strategy:         models.StrategyGapper,
		EntryTime:        entryTime,
		EntryPrice:       entryPrice,
		Shares:           leg1.shares,
		StopLoss:         stopLoss1,
		ExitPrice:        leg1.exitPrice,
		ExitTime:         leg1.exitTime,
		ExitReason:       leg1.reason,
		Commission:       commission1 + commission2,
		NetPnL:           pnl1 - commission1 + pnl2 - commission2,
		GapPercent:       gapPercent,
		PreMarketHigh:    preMarketHigh,
		EntryDropPercent: entryDrop,
		TrailingStopUsed: trailingActivated,
		HaltInvolved:     haltInvolved,
		BacksideEligible: backsideEligible,
	}
	if leg2Active {
		record.Shares2 = leg2.shares
		record.StopLoss2 = stopLoss2
		record.ExitPrice2 = leg2.exitPrice
		record.ExitTime2 = leg2.exitTime
		record.ExitReason2 = leg2.reason
	}

	log.Infow("gapper trade complete", "ticker", series.Ticker, "date", series.Date,
		"net_pnl", record.NetPnL, "leg1", leg1.reason, "leg2", record.ExitReason2,
		"backside_eligible", backsideEligible)
	return record, nil
}

func (g *Gapper) riskAmount(static, percent, balance float64) float64 {
	if g.cfg.UseStaticSizing {
		return static
	}
	return balance * percent / 100
}
