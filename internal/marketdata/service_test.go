package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortside-backtest-go/internal/models"
)

func barAt(hh, mm int) models.Bar {
	return models.Bar{
		Time: time.Date(2024, 6, 4, hh, mm, 0, 0, time.UTC),
		Open: 1.0, High: 1.0, Low: 1.0, Close: 1.0, Volume: 100,
	}
}

func TestSessionFilter(t *testing.T) {
	bars := []models.Bar{
		barAt(3, 59),  // before pre-market: dropped
		barAt(4, 0),   // pre-market open: kept
		barAt(9, 27),  // late pre-market: kept
		barAt(9, 29),  // kept
		barAt(9, 30),  // market open: kept
		barAt(15, 59), // kept
		barAt(16, 0),  // market close: kept
		barAt(16, 1),  // after hours: dropped
		barAt(20, 0),  // dropped
	}

	filtered := SessionFilter(bars)
	require.Len(t, filtered, 6)

	want := []int{400, 927, 929, 930, 1559, 1600}
	for i, b := range filtered {
		assert.Equal(t, want[i], b.HHMM())
	}
}

func TestSessionFilterEmpty(t *testing.T) {
	assert.Empty(t, SessionFilter(nil))
	assert.Empty(t, SessionFilter([]models.Bar{barAt(2, 0), barAt(22, 0)}))
}
