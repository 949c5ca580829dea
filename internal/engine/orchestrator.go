// Package engine 驱动整个回测：逐交易日取候选股、预热行情缓存，
// 再按 Gapper → Backside → 日内 Backside 的固定顺序串行仿真，
// 资金在日内逐笔复利。
package engine

import (
	"context"
	"errors"
	"time"

	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/models"
	"shortside-backtest-go/internal/strategy"
)

const dateLayout = "2006-01-02"

// BarSource 仿真所需的行情来源
type BarSource interface {
	IntradayBars(ctx context.Context, ticker, date string) (*models.BarSeries, error)
	PreviousClose(ctx context.Context, ticker, date string) (float64, error)
}

// DayResult 单个交易日的仿真结果
type DayResult struct {
	Date          string
	Trades        []*models.TradeRecord
	StartBalance  float64
	EndBalance    float64
	WinningTrades int
}

// NetPnL 当日净盈亏
func (d *DayResult) NetPnL() float64 {
	return d.EndBalance - d.StartBalance
}

// Orchestrator 单日调度器。周一跳过 Gapper 与日内策略并对全部
// 候选股跑 Backside；其余交易日 Backside 只接力 Gapper 被止损
// 打出的票，日内策略回避已交易过的票。
type Orchestrator struct {
	cfg      *models.Config
	data     BarSource
	gapper   *strategy.Gapper
	backside *strategy.Backside
	intraday *strategy.Intraday
}

func NewOrchestrator(cfg *models.Config, data BarSource, slip *execution.Slipper) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		data:     data,
		gapper:   strategy.NewGapper(cfg, slip),
		backside: strategy.NewBackside(cfg, slip),
		intraday: strategy.NewIntraday(cfg, slip),
	}
}

// RunDay 处理一个交易日，返回当日结果和更新后的累计盈利笔数
func (o *Orchestrator) RunDay(ctx context.Context, date string, candidates *models.CandidateSet,
	startBalance float64, winningCount int) (*DayResult, int) {

	log := logger.S()
	result := &DayResult{Date: date, StartBalance: startBalance, EndBalance: startBalance}

	day, err := time.Parse(dateLayout, date)
	if err != nil {
		log.Errorw("invalid trading date", "date", date, "error", err)
		return result, winningCount
	}
	isMonday := day.Weekday() == time.Monday

	balance := startBalance
	eligible := make(map[string]bool)
	gapperTraded := make(map[string]bool)
	processed := make(map[string]bool)

	record := func(rec *models.TradeRecord) {
		rec.BalanceAfter = balance + rec.NetPnL
		balance = rec.BalanceAfter
		result.Trades = append(result.Trades, rec)
		if rec.Win() {
			winningCount++
			result.WinningTrades++
		}
	}

	// Gapper：周一不做
	if isMonday {
		log.Infow("Monday: skipping gapper trades", "date", date)
	} else {
		for _, cand := range candidates.Gap {
			if processed[cand.Ticker] {
				continue
			}
			series, err := o.data.IntradayBars(ctx, cand.Ticker, date)
			if err != nil || series == nil {
				o.logSkip("gapper", cand.Ticker, date, err)
				continue
			}
			if _, ok := series.PreMarketHigh(); !ok {
				continue
			}
			prevClose, err := o.data.PreviousClose(ctx, cand.Ticker, date)
			if err != nil {
				o.logSkip("gapper", cand.Ticker, date, err)
				continue
			}
			cand.PreviousClose = prevClose

			rec, err := o.gapper.Simulate(strategy.Input{
				Series:          series,
				Candidate:       cand,
				Balance:         balance,
				DayStartBalance: startBalance,
			})
			if err != nil {
				o.logSkip("gapper", cand.Ticker, date, err)
				continue
			}
			if rec == nil {
				continue
			}
			record(rec)
			gapperTraded[cand.Ticker] = true
			if rec.BacksideEligible {
				eligible[cand.Ticker] = true
			} else {
				processed[cand.Ticker] = true
			}
		}
	}

	// Backside：周一全量，其余交易日只做接力票
	for _, cand := range candidates.Gap {
		if !isMonday && !eligible[cand.Ticker] {
			continue
		}
		if processed[cand.Ticker] {
			continue
		}
		series, err := o.data.IntradayBars(ctx, cand.Ticker, date)
		if err != nil || series == nil {
			o.logSkip("backside", cand.Ticker, date, err)
			continue
		}
		rec, err := o.backside.Simulate(strategy.Input{
			Series:          series,
			Candidate:       cand,
			Balance:         balance,
			DayStartBalance: startBalance,
		})
		if err != nil {
			o.logSkip("backside", cand.Ticker, date, err)
			continue
		}
		if rec == nil {
			continue
		}
		record(rec)
		processed[cand.Ticker] = true
	}

	// 日内 Backside：周一不做，回避当日已有 Gapper 交易的票
	if isMonday {
		log.Infow("Monday: skipping intraday backside trades", "date", date)
	} else {
		for _, cand := range candidates.Intraday {
			if gapperTraded[cand.Ticker] {
				continue
			}
			series, err := o.data.IntradayBars(ctx, cand.Ticker, date)
			if err != nil || series == nil {
				o.logSkip("intraday", cand.Ticker, date, err)
				continue
			}
			rec, err := o.intraday.Simulate(strategy.Input{
				Series:          series,
				Candidate:       cand,
				Balance:         balance,
				DayStartBalance: startBalance,
			})
			if err != nil {
				o.logSkip("intraday", cand.Ticker, date, err)
				continue
			}
			if rec == nil {
				continue
			}
			record(rec)
			processed[cand.Ticker] = true
		}
	}

	result.EndBalance = balance
	if len(result.Trades) > 0 {
		log.Infow("day complete", "date", date, "trades", len(result.Trades),
			"day_pnl", result.NetPnL(), "balance", balance)
	}
	return result, winningCount
}

// logSkip 数据缺口属于常态，降到 debug；真正的错误走 warn
func (o *Orchestrator) logSkip(strategyName, ticker, date string, err error) {
	if err == nil ||
		errors.Is(err, models.ErrInsufficientData) ||
		errors.Is(err, models.ErrNoPreMarketData) ||
		errors.Is(err, models.ErrMissingReferenceBar) ||
		errors.Is(err, models.ErrNoMarketData) {
		logger.S().Debugw("skipping ticker", "strategy", strategyName,
			"ticker", ticker, "date", date, "reason", err)
		return
	}
	logger.S().Warnw("simulation failed", "strategy", strategyName,
		"ticker", ticker, "date", date, "error", err)
}
