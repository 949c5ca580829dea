package screener

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"shortside-backtest-go/internal/config"
	"shortside-backtest-go/internal/models"
)

func testBar(hh, mm int, o, h, l, c, v float64) models.Bar {
	return models.Bar{
		Time:   time.Date(2024, 6, 4, hh, mm, 0, 0, time.UTC),
		Open:   o, High: h, Low: l, Close: c, Volume: v,
	}
}

func TestValidTicker(t *testing.T) {
	valid := []string{"AAPL", "F", "SPY", "ABCD"}
	for _, ticker := range valid {
		assert.True(t, ValidTicker(ticker), ticker)
	}

	invalid := []string{
		"ABCDE", // five characters and up: derivative listings
		"ABCWS", // warrant suffix
		"ABRT",  // rights suffix
		"ZVZZT", // test symbols
		"ZWZZT",
		"ZBZZT",
	}
	for _, ticker := range invalid {
		assert.False(t, ValidTicker(ticker), ticker)
	}
}

func TestConfirmIntradayMove(t *testing.T) {
	s := New(nil, nil, config.DefaultConfig())

	// Volume and move both reached at the 9:32 candle.
	confirmed := &models.BarSeries{Ticker: "TEST", Date: "2024-06-04", Bars: []models.Bar{
		testBar(9, 30, 1.00, 1.20, 0.95, 1.10, 200_000),
		testBar(9, 31, 1.10, 1.50, 1.05, 1.45, 200_000),
		testBar(9, 32, 1.45, 1.80, 1.40, 1.75, 200_000),
	}}
	assert.True(t, s.confirmIntradayMove(confirmed))

	// The move happens on thin volume and the volume arrives after the
	// move has faded: never both at once.
	unconfirmed := &models.BarSeries{Ticker: "TEST", Date: "2024-06-04", Bars: []models.Bar{
		testBar(9, 30, 1.00, 1.80, 0.95, 1.10, 100_000),
		testBar(9, 31, 1.10, 1.20, 1.05, 1.15, 100_000),
	}}
	assert.False(t, s.confirmIntradayMove(unconfirmed))

	// Pre-market candles do not count toward the confirmation.
	premarketOnly := &models.BarSeries{Ticker: "TEST", Date: "2024-06-04", Bars: []models.Bar{
		testBar(9, 0, 1.00, 1.80, 0.95, 1.75, 2_000_000),
	}}
	assert.False(t, s.confirmIntradayMove(premarketOnly))
}

func TestReferenceBarFallback(t *testing.T) {
	with928 := &models.BarSeries{Bars: []models.Bar{
		testBar(9, 27, 1.00, 1.05, 0.95, 1.00, 100),
		testBar(9, 28, 1.10, 1.15, 1.05, 1.12, 100),
		testBar(9, 29, 1.20, 1.25, 1.15, 1.22, 100),
	}}
	b, ok := referenceBar(with928)
	assert.True(t, ok)
	assert.Equal(t, 928, b.HHMM())

	only929 := &models.BarSeries{Bars: []models.Bar{
		testBar(9, 29, 1.20, 1.25, 1.15, 1.22, 100),
	}}
	b, ok = referenceBar(only929)
	assert.True(t, ok)
	assert.Equal(t, 929, b.HHMM())

	only927 := &models.BarSeries{Bars: []models.Bar{
		testBar(9, 27, 1.00, 1.05, 0.95, 1.00, 100),
	}}
	b, ok = referenceBar(only927)
	assert.True(t, ok)
	assert.Equal(t, 927, b.HHMM())

	none := &models.BarSeries{Bars: []models.Bar{
		testBar(9, 30, 1.00, 1.05, 0.95, 1.00, 100),
	}}
	_, ok = referenceBar(none)
	assert.False(t, ok)
}
