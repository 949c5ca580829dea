package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortside-backtest-go/internal/config"
	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/models"
)

// fixedSlipper returns a slipper with a constant 0.66% adverse fill,
// matching the default configuration.
func fixedSlipper() *execution.Slipper {
	return execution.NewSlipper(42, 100, 0.66, 0.66)
}

func testBar(hh, mm int, o, h, l, c, v float64) models.Bar {
	return models.Bar{
		Time:   time.Date(2024, 6, 4, hh, mm, 0, 0, time.UTC),
		Open:   o, High: h, Low: l, Close: c, Volume: v,
	}
}

func testSeries(bars ...models.Bar) *models.BarSeries {
	return &models.BarSeries{Ticker: "TEST", Date: "2024-06-04", Bars: bars}
}

// gapperPrelude is the common pre-market and reference-candle setup:
// pre-market high 2.00, previous close 1.00, 9:29 close 2.20.
// Stop 1 = 2.00*1.2711 = 2.5422, stop 2 = 2.20 + 1.20*0.64 = 2.968.
func gapperPrelude() []models.Bar {
	return []models.Bar{
		testBar(9, 0, 1.90, 2.00, 1.80, 1.90, 2_000_000),
		testBar(9, 28, 2.05, 2.10, 2.00, 2.10, 100_000),
		testBar(9, 29, 2.10, 2.25, 2.05, 2.20, 100_000),
	}
}

func gapperInput(series *models.BarSeries) Input {
	return Input{
		Series: series,
		Candidate: models.Candidate{
			Ticker:        "TEST",
			PreviousClose: 1.00,
			PreMarketHigh: 2.00,
		},
		Balance:         10000,
		DayStartBalance: 10000,
	}
}

func TestGapperEndOfDayExit(t *testing.T) {
	g := NewGapper(config.DefaultConfig(), fixedSlipper())

	bars := append(gapperPrelude(),
		testBar(9, 30, 2.20, 2.30, 2.10, 2.15, 50_000),
		testBar(9, 31, 2.15, 2.30, 2.05, 2.10, 50_000),
		testBar(15, 0, 1.50, 1.55, 1.45, 1.50, 50_000),
	)
	rec, err := g.Simulate(gapperInput(testSeries(bars...)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, models.StrategyGapper, rec.Strategy)
	assert.InDelta(t, 2.20*(1-0.0066), rec.EntryPrice, 1e-9)
	assert.InDelta(t, 2.5422, rec.StopLoss, 1e-9)
	assert.InDelta(t, 2.968, rec.StopLoss2, 1e-9)

	// Risk $1000 per leg over the per-share stop distance.
	assert.Equal(t, 2922, rec.Shares)
	assert.Equal(t, 1302, rec.Shares2)

	// Both legs cover at the 15:00 candle open with ordinary slippage.
	assert.Equal(t, models.ExitEndOfDay, rec.ExitReason)
	assert.Equal(t, models.ExitEndOfDay, rec.ExitReason2)
	assert.InDelta(t, 1.50*1.0066, rec.ExitPrice, 1e-9)
	assert.InDelta(t, 1.50*1.0066, rec.ExitPrice2, 1e-9)

	assert.False(t, rec.BacksideEligible)
	assert.False(t, rec.TrailingStopUsed)
	assert.Greater(t, rec.NetPnL, 0.0)
	assert.InDelta(t, 110.0, rec.GapPercent, 1e-9)
}

func TestGapperStopLossMarksBacksideEligible(t *testing.T) {
	g := NewGapper(config.DefaultConfig(), fixedSlipper())

	bars := append(gapperPrelude(),
		testBar(9, 30, 2.20, 2.25, 2.10, 2.15, 50_000),
		testBar(9, 31, 2.40, 3.10, 2.30, 2.50, 80_000),
	)
	rec, err := g.Simulate(gapperInput(testSeries(bars...)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, models.ExitStopLoss, rec.ExitReason)
	assert.Equal(t, models.ExitStopLoss, rec.ExitReason2)
	// The candle opened below both stops, so fills are at the stop levels.
	assert.InDelta(t, 2.5422*1.0066, rec.ExitPrice, 1e-9)
	assert.InDelta(t, 2.968*1.0066, rec.ExitPrice2, 1e-9)
	assert.True(t, rec.BacksideEligible)
	assert.Less(t, rec.NetPnL, 0.0)
}

func TestGapperHaltGapStop(t *testing.T) {
	g := NewGapper(config.DefaultConfig(), fixedSlipper())

	// Ten-minute gap between candles, then a reopen above both stops.
	bars := append(gapperPrelude(),
		testBar(9, 30, 2.20, 2.25, 2.10, 2.15, 50_000),
		testBar(9, 40, 3.00, 3.20, 2.90, 3.00, 80_000),
	)
	rec, err := g.Simulate(gapperInput(testSeries(bars...)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, models.ExitHaltStop, rec.ExitReason)
	assert.Equal(t, models.ExitHaltStop, rec.ExitReason2)
	assert.True(t, rec.HaltInvolved)
	assert.True(t, rec.BacksideEligible)

	// Amplified fill: 3.00*1.0066 plus 1.5x the slippage delta.
	base := 3.00 * 1.0066
	want := base + (base-3.00)*1.5
	assert.InDelta(t, want, rec.ExitPrice, 1e-9)
	assert.InDelta(t, want, rec.ExitPrice2, 1e-9)
}

func TestGapperTrailingStop(t *testing.T) {
	g := NewGapper(config.DefaultConfig(), fixedSlipper())

	// A collapse past 90% of the entry price arms the trailing stop at
	// low*1.9; the bounce through it covers both legs.
	bars := append(gapperPrelude(),
		testBar(9, 30, 2.20, 2.25, 2.10, 2.15, 50_000),
		testBar(9, 31, 0.30, 0.35, 0.20, 0.25, 80_000),
		testBar(9, 32, 0.45, 0.50, 0.40, 0.45, 80_000),
	)
	rec, err := g.Simulate(gapperInput(testSeries(bars...)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.TrailingStopUsed)
	assert.Equal(t, models.ExitTrailingStop, rec.ExitReason)
	assert.Equal(t, models.ExitTrailingStop, rec.ExitReason2)
	// The candle opened above the 0.38 trailing level, so the fill
	// references the open.
	assert.InDelta(t, 0.45*1.0066, rec.ExitPrice, 1e-9)
	assert.Greater(t, rec.NetPnL, 0.0)
}

func TestGapperTrailingStopTightensOnly(t *testing.T) {
	g := NewGapper(config.DefaultConfig(), fixedSlipper())

	// The 9:31 low 0.20 arms the trail at 0.38. The 9:32 low 0.15
	// ratchets it down to 0.285. The 9:33 higher low (0.22) must not
	// loosen it back up, so the 9:34 bounce through 0.285 covers there:
	// had the trail stayed at 0.38 or widened to 0.22*1.9 = 0.418, the
	// 0.30 high would never reach it and the exit would be end of day.
	bars := append(gapperPrelude(),
		testBar(9, 30, 2.20, 2.25, 2.10, 2.15, 50_000),
		testBar(9, 31, 0.30, 0.35, 0.20, 0.25, 80_000),
		testBar(9, 32, 0.18, 0.20, 0.15, 0.16, 80_000),
		testBar(9, 33, 0.24, 0.27, 0.22, 0.25, 80_000),
		testBar(9, 34, 0.26, 0.30, 0.25, 0.28, 80_000),
	)
	rec, err := g.Simulate(gapperInput(testSeries(bars...)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.TrailingStopUsed)
	assert.Equal(t, models.ExitTrailingStop, rec.ExitReason)
	assert.Equal(t, time.Date(2024, 6, 4, 9, 34, 0, 0, time.UTC), rec.ExitTime)
	// Fill at the ratcheted 0.15*1.9 level, not the armed 0.38 one.
	assert.InDelta(t, 0.15*1.9*1.0066, rec.ExitPrice, 1e-9)
	assert.InDelta(t, 0.15*1.9*1.0066, rec.ExitPrice2, 1e-9)
}

func TestGapperLegTwoExcludedOnDeepDrop(t *testing.T) {
	cfg := config.DefaultConfig()
	g := NewGapper(cfg, fixedSlipper())

	// Reference price 41% below the pre-market high: leg 2 stays out.
	bars := []models.Bar{
		testBar(9, 0, 1.90, 2.00, 1.80, 1.90, 2_000_000),
		testBar(9, 28, 1.20, 1.25, 1.15, 1.20, 100_000),
		testBar(9, 29, 1.20, 1.22, 1.15, 1.18, 100_000),
		testBar(9, 30, 1.18, 1.20, 1.10, 1.15, 50_000),
		testBar(15, 0, 1.00, 1.05, 0.95, 1.00, 50_000),
	}
	rec, err := g.Simulate(gapperInput(testSeries(bars...)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Greater(t, rec.EntryDropPercent, cfg.Gapper.MaxEntryDropPercent)
	assert.Zero(t, rec.Shares2)
	assert.Empty(t, rec.ExitReason2)
	assert.Greater(t, rec.Shares, 0)
}

func TestGapperMissingReferenceCandles(t *testing.T) {
	g := NewGapper(config.DefaultConfig(), fixedSlipper())

	// No 9:28 candle.
	bars := []models.Bar{
		testBar(9, 0, 1.90, 2.00, 1.80, 1.90, 2_000_000),
		testBar(9, 29, 2.10, 2.25, 2.05, 2.20, 100_000),
		testBar(9, 30, 2.20, 2.30, 2.10, 2.15, 50_000),
	}
	_, err := g.Simulate(gapperInput(testSeries(bars...)))
	assert.ErrorIs(t, err, models.ErrMissingReferenceBar)

	_, err = g.Simulate(gapperInput(nil))
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}
