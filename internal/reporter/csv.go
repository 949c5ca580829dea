package reporter

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"

	"shortside-backtest-go/internal/engine"
	"shortside-backtest-go/internal/models"
)

// ledgerRow 交易明细的CSV行，时间序列化为纽约时间字符串
type ledgerRow struct {
	ID               string  `csv:"id"`
	Date             string  `csv:"date"`
	Ticker           string  `csv:"ticker"`
	Strategy         string  `csv:"strategy"`
	EntryTime        string  `csv:"entry_time"`
	EntryPrice       float64 `csv:"entry_price"`
	Shares           int     `csv:"shares"`
	StopLoss         float64 `csv:"stop_loss"`
	ExitTime         string  `csv:"exit_time"`
	ExitPrice        float64 `csv:"exit_price"`
	ExitReason       string  `csv:"exit_reason"`
	Shares2          int     `csv:"shares2"`
	StopLoss2        float64 `csv:"stop_loss2"`
	ExitTime2        string  `csv:"exit_time2"`
	ExitPrice2       float64 `csv:"exit_price2"`
	ExitReason2      string  `csv:"exit_reason2"`
	Commission       float64 `csv:"commission"`
	NetPnL           float64 `csv:"net_pnl"`
	GapPercent       float64 `csv:"gap_percent"`
	PreMarketHigh    float64 `csv:"pre_market_high"`
	EntryDropPercent float64 `csv:"entry_drop_percent"`
	TrailingStopUsed bool    `csv:"trailing_stop_used"`
	HaltInvolved     bool    `csv:"halt_involved"`
	BacksideEligible bool    `csv:"backside_eligible"`
	BalanceAfter     float64 `csv:"balance_after"`
}

// tickerRow 按股票聚合的分析行
type tickerRow struct {
	Ticker  string  `csv:"ticker"`
	Trades  int     `csv:"trades"`
	Wins    int     `csv:"wins"`
	WinRate float64 `csv:"win_rate"`
	NetPnL  float64 `csv:"net_pnl"`
	AvgPnL  float64 `csv:"avg_pnl"`
}

// equityRow 权益曲线行
type equityRow struct {
	Date    string  `csv:"date"`
	Balance float64 `csv:"balance"`
	RSI     string  `csv:"rsi"`
}

const clockLayout = "15:04"

// ExportCSV 在 outDir 下写出交易明细、按股票分析与权益曲线三个文件
func (r *Reporter) ExportCSV(res *engine.Result, m *Metrics, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	ledger := make([]*ledgerRow, 0, len(res.Trades))
	for _, t := range res.Trades {
		row := &ledgerRow{
			ID:               t.ID,
			Date:             t.Date,
			Ticker:           t.Ticker,
			Strategy:         t.Strategy,
			EntryTime:        t.EntryTime.Format(clockLayout),
			EntryPrice:       t.EntryPrice,
			Shares:           t.Shares,
			StopLoss:         t.StopLoss,
			ExitTime:         t.ExitTime.Format(clockLayout),
			ExitPrice:        t.ExitPrice,
			ExitReason:       t.ExitReason,
			Commission:       t.Commission,
			NetPnL:           t.NetPnL,
			GapPercent:       t.GapPercent,
			PreMarketHigh:    t.PreMarketHigh,
			EntryDropPercent: t.EntryDropPercent,
			TrailingStopUsed: t.TrailingStopUsed,
			HaltInvolved:     t.HaltInvolved,
			BacksideEligible: t.BacksideEligible,
			BalanceAfter:     t.BalanceAfter,
		}
		if t.Shares2 > 0 {
			row.Shares2 = t.Shares2
			row.StopLoss2 = t.StopLoss2
			row.ExitTime2 = t.ExitTime2.Format(clockLayout)
			row.ExitPrice2 = t.ExitPrice2
			row.ExitReason2 = t.ExitReason2
		}
		ledger = append(ledger, row)
	}
	if err := writeCSV(filepath.Join(outDir, "trades.csv"), &ledger); err != nil {
		return err
	}

	tickers := tickerAnalysis(res.Trades)
	if err := writeCSV(filepath.Join(outDir, "ticker_analysis.csv"), &tickers); err != nil {
		return err
	}

	equity := make([]*equityRow, 0, len(m.EquityCurve))
	for _, p := range m.EquityCurve {
		row := &equityRow{Date: p.Date, Balance: p.Balance}
		if !math.IsNaN(p.RSI) {
			row.RSI = fmt.Sprintf("%.2f", p.RSI)
		}
		equity = append(equity, row)
	}
	return writeCSV(filepath.Join(outDir, "equity_curve.csv"), &equity)
}

func tickerAnalysis(trades []*models.TradeRecord) []*tickerRow {
	byTicker := make(map[string]*tickerRow)
	for _, t := range trades {
		row, ok := byTicker[t.Ticker]
		if !ok {
			row = &tickerRow{Ticker: t.Ticker}
			byTicker[t.Ticker] = row
		}
		row.Trades++
		if t.Win() {
			row.Wins++
		}
		row.NetPnL += t.NetPnL
	}

	out := make([]*tickerRow, 0, len(byTicker))
	for _, row := range byTicker {
		if row.Trades > 0 {
			row.WinRate = float64(row.Wins) / float64(row.Trades) * 100
			row.AvgPnL = row.NetPnL / float64(row.Trades)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetPnL > out[j].NetPnL })
	return out
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
