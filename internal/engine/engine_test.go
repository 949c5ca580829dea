package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortside-backtest-go/internal/config"
	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/models"
)

// mockBarSource serves canned series per ticker and counts lookups.
type mockBarSource struct {
	mu             sync.Mutex
	series         map[string]*models.BarSeries
	prevClose      map[string]float64
	barCalls       int
	prevCloseCalls int
}

func (m *mockBarSource) IntradayBars(ctx context.Context, ticker, date string) (*models.BarSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barCalls++
	return m.series[ticker], nil
}

func (m *mockBarSource) PreviousClose(ctx context.Context, ticker, date string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prevCloseCalls++
	return m.prevClose[ticker], nil
}

func testBar(hh, mm int, o, h, l, c, v float64) models.Bar {
	return models.Bar{
		Time:   time.Date(2024, 6, 4, hh, mm, 0, 0, time.UTC),
		Open:   o, High: h, Low: l, Close: c, Volume: v,
	}
}

// backsideSeries qualifies every backside gate and stops out after the
// 9:33 entry.
func backsideSeries(ticker string) *models.BarSeries {
	return &models.BarSeries{Ticker: ticker, Date: "2024-06-04", Bars: []models.Bar{
		testBar(9, 0, 0.50, 1.00, 0.45, 0.50, 500_000),
		testBar(9, 30, 0.90, 0.95, 0.85, 0.92, 200_000),
		testBar(9, 31, 0.95, 1.60, 0.90, 1.55, 400_000),
		testBar(9, 32, 2.20, 2.45, 2.00, 2.10, 1_000_000),
		testBar(9, 33, 2.00, 2.10, 1.90, 1.95, 100_000),
		testBar(9, 34, 2.60, 2.90, 2.50, 2.70, 50_000),
	}}
}

// gapperSeries stops out both legs on the 9:31 spike, which relays the
// ticker to the backside strategy.
func gapperSeries(ticker string) *models.BarSeries {
	return &models.BarSeries{Ticker: ticker, Date: "2024-06-04", Bars: []models.Bar{
		testBar(9, 0, 1.90, 2.00, 1.80, 1.90, 2_000_000),
		testBar(9, 28, 2.05, 2.10, 2.00, 2.10, 100_000),
		testBar(9, 29, 2.10, 2.25, 2.05, 2.20, 100_000),
		testBar(9, 30, 2.20, 2.25, 2.10, 2.15, 50_000),
		testBar(9, 31, 2.40, 3.10, 2.30, 2.50, 80_000),
	}}
}

// intradaySeries qualifies the intraday gates and stops out after entry.
func intradaySeries(ticker string) *models.BarSeries {
	return &models.BarSeries{Ticker: ticker, Date: "2024-06-04", Bars: []models.Bar{
		testBar(9, 30, 1.00, 1.10, 0.95, 1.05, 300_000),
		testBar(9, 31, 1.05, 1.80, 1.00, 1.75, 500_000),
		testBar(9, 32, 1.70, 1.95, 1.40, 1.45, 1_200_000),
		testBar(9, 33, 1.50, 1.60, 1.40, 1.55, 100_000),
		testBar(9, 34, 1.90, 2.20, 1.85, 2.00, 50_000),
	}}
}

func newTestOrchestrator(data BarSource) *Orchestrator {
	cfg := config.DefaultConfig()
	slip := execution.NewSlipper(cfg.RandomSeed,
		cfg.SlippageProbability, cfg.SlippageMinPercent, cfg.SlippageMaxPercent)
	return NewOrchestrator(cfg, data, slip)
}

// TestRunDayMonday verifies that Mondays run backside against every gap
// candidate and skip the gapper and intraday strategies entirely.
func TestRunDayMonday(t *testing.T) {
	data := &mockBarSource{series: map[string]*models.BarSeries{
		"BKSD": backsideSeries("BKSD"),
		"INTR": intradaySeries("INTR"),
	}}
	orch := newTestOrchestrator(data)

	candidates := &models.CandidateSet{
		Date:     "2024-06-03", // Monday
		Gap:      []models.Candidate{{Ticker: "BKSD"}},
		Intraday: []models.Candidate{{Ticker: "INTR"}},
	}

	result, wins := orch.RunDay(context.Background(), "2024-06-03", candidates, 10000, 0)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, models.StrategyBackside, result.Trades[0].Strategy)

	// Gapper never ran, so the previous close was never fetched.
	assert.Zero(t, data.prevCloseCalls)

	// The losing stop-out does not count as a win.
	assert.Zero(t, wins)
	assert.InDelta(t, 10000+result.Trades[0].NetPnL, result.EndBalance, 1e-9)
	assert.InDelta(t, result.EndBalance, result.Trades[0].BalanceAfter, 1e-9)
}

// TestRunDayRelay verifies the weekday flow: the gapper stop-out marks
// the ticker backside-eligible, the intraday strategy avoids tickers the
// gapper already traded, and balances compound across trades.
func TestRunDayRelay(t *testing.T) {
	data := &mockBarSource{
		series: map[string]*models.BarSeries{
			"GAPX": gapperSeries("GAPX"),
			"INTR": intradaySeries("INTR"),
		},
		prevClose: map[string]float64{"GAPX": 1.00},
	}
	orch := newTestOrchestrator(data)

	candidates := &models.CandidateSet{
		Date: "2024-06-04", // Tuesday
		Gap:  []models.Candidate{{Ticker: "GAPX", PreviousClose: 999}},
		Intraday: []models.Candidate{
			{Ticker: "GAPX", DayOpen: 1.00}, // skipped: already traded by gapper
			{Ticker: "INTR", DayOpen: 1.00},
		},
	}

	result, _ := orch.RunDay(context.Background(), "2024-06-04", candidates, 10000, 0)
	require.Len(t, result.Trades, 2)

	gapTrade := result.Trades[0]
	assert.Equal(t, models.StrategyGapper, gapTrade.Strategy)
	assert.True(t, gapTrade.BacksideEligible)
	// The stale candidate previous close was replaced by the fetched one.
	assert.InDelta(t, 110.0, gapTrade.GapPercent, 1e-9)
	assert.Equal(t, 1, data.prevCloseCalls)

	intradayTrade := result.Trades[1]
	assert.Equal(t, models.StrategyIntraday, intradayTrade.Strategy)
	assert.Equal(t, "INTR", intradayTrade.Ticker)

	// Balance compounds trade by trade.
	assert.InDelta(t, 10000+gapTrade.NetPnL, gapTrade.BalanceAfter, 1e-9)
	assert.InDelta(t, gapTrade.BalanceAfter+intradayTrade.NetPnL, intradayTrade.BalanceAfter, 1e-9)
	assert.InDelta(t, intradayTrade.BalanceAfter, result.EndBalance, 1e-9)
}

// TestRunDayNonEligibleBlocksBackside verifies that on weekdays the
// backside strategy only sees tickers the gapper stopped out of.
func TestRunDayNonEligibleBlocksBackside(t *testing.T) {
	// End-of-day gapper exit: not backside eligible.
	series := gapperSeries("GAPX")
	series.Bars[3] = testBar(9, 30, 2.20, 2.30, 2.10, 2.15, 50_000)
	series.Bars[4] = testBar(15, 0, 1.50, 1.55, 1.45, 1.50, 50_000)

	data := &mockBarSource{
		series:    map[string]*models.BarSeries{"GAPX": series},
		prevClose: map[string]float64{"GAPX": 1.00},
	}
	orch := newTestOrchestrator(data)

	candidates := &models.CandidateSet{
		Date: "2024-06-04",
		Gap:  []models.Candidate{{Ticker: "GAPX"}},
	}

	result, _ := orch.RunDay(context.Background(), "2024-06-04", candidates, 10000, 0)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, models.StrategyGapper, result.Trades[0].Strategy)
	assert.False(t, result.Trades[0].BacksideEligible)
}

// mockCandidateSource records which dates were screened.
type mockCandidateSource struct {
	mu    sync.Mutex
	dates []string
}

func (m *mockCandidateSource) CandidatesForDate(ctx context.Context, date string) (*models.CandidateSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dates = append(m.dates, date)
	return &models.CandidateSet{Date: date}, nil
}

func TestBacktestSkipsWeekends(t *testing.T) {
	cfg := config.DefaultConfig()
	src := &mockCandidateSource{}
	data := &mockBarSource{}
	slip := execution.NewSlipper(cfg.RandomSeed, 100, 0.66, 0.66)
	bt := NewBacktest(cfg, src, data, slip)

	// Saturday and Sunday only: nothing is screened.
	result, err := bt.Run(context.Background(), "2024-06-01", "2024-06-02")
	require.NoError(t, err)
	assert.Empty(t, src.dates)
	assert.Equal(t, cfg.StartingBalance, result.EndBalance)

	// A full calendar week screens exactly the five weekdays.
	_, err = bt.Run(context.Background(), "2024-06-03", "2024-06-09")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-06-03", "2024-06-04", "2024-06-05", "2024-06-06", "2024-06-07",
	}, src.dates)
}

func TestBacktestRejectsInvertedRange(t *testing.T) {
	cfg := config.DefaultConfig()
	bt := NewBacktest(cfg, &mockCandidateSource{}, &mockBarSource{},
		execution.NewSlipper(1, 100, 0.66, 0.66))

	_, err := bt.Run(context.Background(), "2024-06-10", "2024-06-03")
	assert.Error(t, err)
}

func TestPrefetcherWarmsEveryJob(t *testing.T) {
	data := &mockBarSource{}
	p := NewPrefetcher(data, 4)
	p.Start(context.Background())
	for _, ticker := range []string{"AAA", "BBB", "CCC"} {
		p.Submit(context.Background(), ticker, "2024-06-04")
	}
	p.CloseAndWait()

	assert.Equal(t, 3, data.barCalls)
}

// TestPrefetcherSubmitAfterCancel verifies that producers are not stuck
// on a full queue once the context is cancelled and the workers are gone.
func TestPrefetcherSubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	data := &mockBarSource{}
	p := NewPrefetcher(data, 1)
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more jobs than the queue buffers; each Submit must return.
		for i := 0; i < 32; i++ {
			p.Submit(ctx, "AAA", "2024-06-04")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Submit blocked on a full queue after cancellation")
	}
	p.CloseAndWait()
}
