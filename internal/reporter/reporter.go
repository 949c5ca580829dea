// Package reporter 汇总回测结果：绩效指标、权益曲线（含RSI）、
// 按策略与星期的分组统计，终端表格输出与CSV导出。
package reporter

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"

	"shortside-backtest-go/internal/engine"
	"shortside-backtest-go/internal/models"
)

const rsiPeriod = 20

// EquityPoint 权益曲线上的一个交易日
type EquityPoint struct {
	Date    string
	Balance float64
	RSI     float64 // 不足周期时为 NaN
}

// GroupSummary 某一维度（策略、星期）下的汇总
type GroupSummary struct {
	Name    string
	Trades  int
	Wins    int
	WinRate float64
	NetPnL  float64
}

// Metrics 整段回测的绩效指标
type Metrics struct {
	StartDate        string
	EndDate          string
	InitialBalance   float64
	FinalBalance     float64
	TotalProfit      float64
	ProfitPercentage float64
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	WinRate          float64
	AvgProfitLoss    float64
	MaxDrawdown      float64
	DailyPnLMean     float64
	DailyPnLStdDev   float64
	TotalCommission  float64
	EquityCurve      []EquityPoint
	ByStrategy       []GroupSummary
	ByWeekday        []GroupSummary
}

type Reporter struct {
	cfg *models.Config
}

func New(cfg *models.Config) *Reporter {
	return &Reporter{cfg: cfg}
}

// Build 从回测结果计算全部指标
func (r *Reporter) Build(res *engine.Result) *Metrics {
	m := &Metrics{
		StartDate:      res.StartDate,
		EndDate:        res.EndDate,
		InitialBalance: res.StartBalance,
		FinalBalance:   res.EndBalance,
		TotalTrades:    len(res.Trades),
		WinningTrades:  res.WinningTrades,
	}
	m.LosingTrades = m.TotalTrades - m.WinningTrades
	m.TotalProfit = m.FinalBalance - m.InitialBalance
	if m.InitialBalance != 0 {
		m.ProfitPercentage = m.TotalProfit / m.InitialBalance * 100
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}

	var totalWin, totalLoss float64
	for _, t := range res.Trades {
		m.TotalCommission += t.Commission
		if t.Win() {
			totalWin += t.NetPnL
		} else {
			totalLoss += t.NetPnL
		}
	}
	if m.WinningTrades > 0 && m.LosingTrades > 0 {
		avgWin := totalWin / float64(m.WinningTrades)
		avgLoss := math.Abs(totalLoss / float64(m.LosingTrades))
		if avgLoss > 0 {
			m.AvgProfitLoss = avgWin / avgLoss
		}
	}

	m.EquityCurve = equityCurve(res)
	balances := make([]float64, 0, len(m.EquityCurve)+1)
	balances = append(balances, m.InitialBalance)
	dailyPnL := make([]float64, 0, len(res.Days))
	for _, d := range res.Days {
		dailyPnL = append(dailyPnL, d.NetPnL())
	}
	for _, p := range m.EquityCurve {
		balances = append(balances, p.Balance)
	}
	m.MaxDrawdown = calculateMaxDrawdown(balances) * 100

	if len(dailyPnL) > 0 {
		m.DailyPnLMean, _ = stats.Mean(dailyPnL)
		m.DailyPnLStdDev, _ = stats.StandardDeviationSample(dailyPnL)
	}

	m.ByStrategy = groupBy(res.Trades, func(t *models.TradeRecord) string { return t.Strategy })
	m.ByWeekday = groupBy(res.Trades, func(t *models.TradeRecord) string {
		day, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return "Unknown"
		}
		return day.Weekday().String()
	})
	return m
}

// equityCurve 逐日累计净盈亏叠加初始资金，并在其上计算RSI
func equityCurve(res *engine.Result) []EquityPoint {
	points := make([]EquityPoint, 0, len(res.Days))
	balance := res.StartBalance
	for _, d := range res.Days {
		balance += d.NetPnL()
		points = append(points, EquityPoint{Date: d.Date, Balance: balance, RSI: math.NaN()})
	}

	balances := make([]float64, len(points))
	for i, p := range points {
		balances[i] = p.Balance
	}
	rsi := relativeStrength(balances, rsiPeriod)
	for i := range points {
		points[i].RSI = rsi[i]
	}
	return points
}

// relativeStrength Wilder 平滑的RSI，前 period 个点为 NaN
func relativeStrength(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(values) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		diff := values[i] - values[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss -= diff
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func calculateMaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0.0
	}
	peak := equityCurve[0]
	maxDrawdown := 0.0

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

func groupBy(trades []*models.TradeRecord, key func(*models.TradeRecord) string) []GroupSummary {
	byKey := make(map[string]*GroupSummary)
	for _, t := range trades {
		k := key(t)
		g, ok := byKey[k]
		if !ok {
			g = &GroupSummary{Name: k}
			byKey[k] = g
		}
		g.Trades++
		if t.Win() {
			g.Wins++
		}
		g.NetPnL += t.NetPnL
	}

	out := make([]GroupSummary, 0, len(byKey))
	for _, g := range byKey {
		if g.Trades > 0 {
			g.WinRate = float64(g.Wins) / float64(g.Trades) * 100
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Print 把指标渲染成终端表格
func (r *Reporter) Print(m *Metrics) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Backtest Summary %s ~ %s", m.StartDate, m.EndDate)
	t.AppendRows([]table.Row{
		{"Initial Balance", fmt.Sprintf("%.2f", m.InitialBalance)},
		{"Final Balance", fmt.Sprintf("%.2f", m.FinalBalance)},
		{"Total Profit", fmt.Sprintf("%.2f", m.TotalProfit)},
		{"Return", fmt.Sprintf("%.2f%%", m.ProfitPercentage)},
		{"Total Trades", m.TotalTrades},
		{"Winning Trades", m.WinningTrades},
		{"Losing Trades", m.LosingTrades},
		{"Win Rate", fmt.Sprintf("%.2f%%", m.WinRate)},
		{"Avg Win/Loss", fmt.Sprintf("%.2f", m.AvgProfitLoss)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown)},
		{"Daily PnL Mean", fmt.Sprintf("%.2f", m.DailyPnLMean)},
		{"Daily PnL StdDev", fmt.Sprintf("%.2f", m.DailyPnLStdDev)},
		{"Total Commission", fmt.Sprintf("%.2f", m.TotalCommission)},
	})
	if signal := r.equitySignal(m); signal != "" {
		t.AppendRow(table.Row{"Equity RSI(20)", signal})
	}
	t.Render()

	printGroups("By Strategy", m.ByStrategy)
	printGroups("By Weekday", m.ByWeekday)
}

// equitySignal 权益曲线RSI的过热/超卖提示
func (r *Reporter) equitySignal(m *Metrics) string {
	for i := len(m.EquityCurve) - 1; i >= 0; i-- {
		rsi := m.EquityCurve[i].RSI
		if math.IsNaN(rsi) {
			continue
		}
		switch {
		case rsi > 85:
			return fmt.Sprintf("%.1f (overbought)", rsi)
		case rsi < 50:
			return fmt.Sprintf("%.1f (oversold)", rsi)
		default:
			return fmt.Sprintf("%.1f", rsi)
		}
	}
	return ""
}

func printGroups(title string, groups []GroupSummary) {
	if len(groups) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Name", "Trades", "Wins", "Win Rate", "Net PnL"})
	for _, g := range groups {
		t.AppendRow(table.Row{
			g.Name, g.Trades, g.Wins,
			fmt.Sprintf("%.2f%%", g.WinRate),
			fmt.Sprintf("%.2f", g.NetPnL),
		})
	}
	t.Render()
}
