package reporter

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortside-backtest-go/internal/config"
	"shortside-backtest-go/internal/engine"
	"shortside-backtest-go/internal/models"
)

func sampleResult() *engine.Result {
	entry := time.Date(2024, 6, 3, 9, 33, 0, 0, time.UTC)
	t1 := &models.TradeRecord{
		ID: "AAA-1", Date: "2024-06-03", Ticker: "AAA",
		Strategy:  models.StrategyBackside,
		EntryTime: entry, ExitTime: entry.Add(10 * time.Minute),
		EntryPrice: 2.00, ExitPrice: 1.50, Shares: 1000,
		ExitReason: models.ExitEndOfDay,
		Commission: 14.0, NetPnL: 486.0, BalanceAfter: 10486.0,
	}
	t2 := &models.TradeRecord{
		ID: "BBB-1", Date: "2024-06-04", Ticker: "BBB",
		Strategy:  models.StrategyGapper,
		EntryTime: entry.AddDate(0, 0, 1), ExitTime: entry.AddDate(0, 0, 1).Add(time.Hour),
		EntryPrice: 3.00, ExitPrice: 3.80, Shares: 500,
		ExitReason: models.ExitStopLoss,
		Commission: 13.6, NetPnL: -413.6, BalanceAfter: 10072.4,
	}
	return &engine.Result{
		StartDate:     "2024-06-03",
		EndDate:       "2024-06-04",
		StartBalance:  10000,
		EndBalance:    10072.4,
		WinningTrades: 1,
		Trades:        []*models.TradeRecord{t1, t2},
		Days: []*engine.DayResult{
			{Date: "2024-06-03", StartBalance: 10000, EndBalance: 10486, Trades: []*models.TradeRecord{t1}, WinningTrades: 1},
			{Date: "2024-06-04", StartBalance: 10486, EndBalance: 10072.4, Trades: []*models.TradeRecord{t2}},
		},
	}
}

func TestBuildMetrics(t *testing.T) {
	r := New(config.DefaultConfig())
	m := r.Build(sampleResult())

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 50.0, m.WinRate, 1e-9)
	assert.InDelta(t, 72.4, m.TotalProfit, 1e-9)
	assert.InDelta(t, 0.724, m.ProfitPercentage, 1e-9)
	assert.InDelta(t, 27.6, m.TotalCommission, 1e-9)
	assert.InDelta(t, 486.0/413.6, m.AvgProfitLoss, 1e-9)

	// Peak 10486 down to 10072.4.
	assert.InDelta(t, (10486.0-10072.4)/10486.0*100, m.MaxDrawdown, 1e-9)

	require.Len(t, m.EquityCurve, 2)
	assert.InDelta(t, 10486.0, m.EquityCurve[0].Balance, 1e-9)
	assert.InDelta(t, 10072.4, m.EquityCurve[1].Balance, 1e-9)

	// Two points are not enough for a 20-period RSI.
	assert.True(t, math.IsNaN(m.EquityCurve[1].RSI))

	require.Len(t, m.ByStrategy, 2)
	require.Len(t, m.ByWeekday, 2)
}

func TestCalculateMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 0.25, calculateMaxDrawdown([]float64{10000, 12000, 9000, 11000}), 1e-9)
	assert.Equal(t, 0.0, calculateMaxDrawdown([]float64{10000, 11000, 12000}))
	assert.Equal(t, 0.0, calculateMaxDrawdown([]float64{10000}))
}

func TestRelativeStrength(t *testing.T) {
	// Strictly rising equity pins RSI at 100 once the window fills.
	values := make([]float64, 30)
	for i := range values {
		values[i] = 10000 + float64(i)*100
	}
	rsi := relativeStrength(values, 20)
	assert.True(t, math.IsNaN(rsi[19]))
	assert.InDelta(t, 100.0, rsi[20], 1e-9)
	assert.InDelta(t, 100.0, rsi[29], 1e-9)

	// Strictly falling equity pins RSI at 0.
	for i := range values {
		values[i] = 10000 - float64(i)*100
	}
	rsi = relativeStrength(values, 20)
	assert.InDelta(t, 0.0, rsi[29], 1e-9)
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	r := New(config.DefaultConfig())
	res := sampleResult()
	m := r.Build(res)

	require.NoError(t, r.ExportCSV(res, m, dir))

	for _, name := range []string{"trades.csv", "ticker_analysis.csv", "equity_curve.csv"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}

	trades, err := os.ReadFile(filepath.Join(dir, "trades.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(trades), "AAA")
	assert.Contains(t, string(trades), models.StrategyGapper)
}
