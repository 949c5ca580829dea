package engine

import (
	"context"
	"fmt"
	"time"

	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/models"
)

// CandidateSource 每日候选股来源
type CandidateSource interface {
	CandidatesForDate(ctx context.Context, date string) (*models.CandidateSet, error)
}

// Result 整段回测的汇总
type Result struct {
	StartDate     string
	EndDate       string
	StartBalance  float64
	EndBalance    float64
	WinningTrades int
	Days          []*DayResult
	Trades        []*models.TradeRecord
}

// Backtest 多日回测驱动。候选发现与行情预取可以并发，
// 仿真本身逐日串行以保证资金复利路径唯一。
type Backtest struct {
	cfg        *models.Config
	candidates CandidateSource
	data       BarSource
	orch       *Orchestrator
}

func NewBacktest(cfg *models.Config, candidates CandidateSource, data BarSource, slip *execution.Slipper) *Backtest {
	return &Backtest{
		cfg:        cfg,
		candidates: candidates,
		data:       data,
		orch:       NewOrchestrator(cfg, data, slip),
	}
}

// Run 在 [start, end] 的所有工作日上执行回测
func (b *Backtest) Run(ctx context.Context, start, end string) (*Result, error) {
	log := logger.S()

	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", start, err)
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", end, err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s precedes start date %s", end, start)
	}

	result := &Result{
		StartDate:    start,
		EndDate:      end,
		StartBalance: b.cfg.StartingBalance,
		EndBalance:   b.cfg.StartingBalance,
	}
	balance := b.cfg.StartingBalance
	winningCount := 0

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := day.Format(dateLayout)

		set, err := b.candidates.CandidatesForDate(ctx, date)
		if err != nil {
			log.Errorw("candidate screening failed, skipping day", "date", date, "error", err)
			continue
		}
		if set == nil || (len(set.Gap) == 0 && len(set.Intraday) == 0) {
			continue
		}

		b.prefetchDay(ctx, date, set)

		dayResult, wins := b.orch.RunDay(ctx, date, set, balance, winningCount)
		winningCount = wins
		balance = dayResult.EndBalance

		result.Days = append(result.Days, dayResult)
		result.Trades = append(result.Trades, dayResult.Trades...)
	}

	result.EndBalance = balance
	result.WinningTrades = winningCount
	log.Infow("backtest complete", "days", len(result.Days), "trades", len(result.Trades),
		"start_balance", result.StartBalance, "end_balance", result.EndBalance)
	return result, nil
}

// prefetchDay 并发预热当日所有候选股的分钟数据
func (b *Backtest) prefetchDay(ctx context.Context, date string, set *models.CandidateSet) {
	seen := make(map[string]bool)
	pool := NewPrefetcher(b.data, b.cfg.DataWorkers)
	pool.Start(ctx)
	for _, cand := range set.Gap {
		if !seen[cand.Ticker] {
			seen[cand.Ticker] = true
			pool.Submit(ctx, cand.Ticker, date)
		}
	}
	for _, cand := range set.Intraday {
		if !seen[cand.Ticker] {
			seen[cand.Ticker] = true
			pool.Submit(ctx, cand.Ticker, date)
		}
	}
	pool.CloseAndWait()
}
