package models

import "time"

// 交易时段边界 (HHMM, 美东时间)
const (
	PreMarketStart = 400
	MarketOpen     = 930
	MarketClose    = 1600
)

// Bar 单根分钟K线 (美东时间)
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// HHMM 返回K线时间的 HHMM 表示，例如 9:28 -> 928
func (b Bar) HHMM() int {
	return b.Time.Hour()*100 + b.Time.Minute()
}

// IsPreMarket 是否为盘前K线
func (b Bar) IsPreMarket() bool {
	return b.HHMM() < MarketOpen
}

// Valid 检查OHLC是否自洽，异常K线直接跳过
func (b Bar) Valid() bool {
	if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
		return false
	}
	if b.High < b.Open || b.High < b.Low || b.High < b.Close {
		return false
	}
	if b.Low > b.Open || b.Low > b.High || b.Low > b.Close {
		return false
	}
	return true
}

// BarSeries 单只股票单个交易日的分钟序列，已按时间升序并完成时段过滤
type BarSeries struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date"` // 2006-01-02
	Bars   []Bar  `json:"bars"`
}

// PreMarketHigh 盘前 (09:30之前) 的最高价，无盘前数据时返回 false
func (s *BarSeries) PreMarketHigh() (float64, bool) {
	high := 0.0
	found := false
	for _, b := range s.Bars {
		if !b.IsPreMarket() {
			continue
		}
		if !found || b.High > high {
			high = b.High
		}
		found = true
	}
	return high, found
}

// BarAt 返回指定 HHMM 时刻的K线
func (s *BarSeries) BarAt(hhmm int) (Bar, bool) {
	for _, b := range s.Bars {
		if b.HHMM() == hhmm {
			return b, true
		}
	}
	return Bar{}, false
}

// FirstMarketBar 返回首根盘中K线 (>= 09:30)
func (s *BarSeries) FirstMarketBar() (Bar, bool) {
	for _, b := range s.Bars {
		if b.HHMM() >= MarketOpen {
			return b, true
		}
	}
	return Bar{}, false
}

// MarketBars 返回 [09:30, 16:00) 区间内的K线
func (s *BarSeries) MarketBars() []Bar {
	out := make([]Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if hhmm := b.HHMM(); hhmm >= MarketOpen && hhmm < MarketClose {
			out = append(out, b)
		}
	}
	return out
}

// Candidate 某个交易日进入回测的候选股
type Candidate struct {
	Ticker          string  `json:"ticker"`
	GapPercent      float64 `json:"gap_percent"`
	Price           float64 `json:"price"` // 9:28 参考价
	PreviousClose   float64 `json:"previous_close"`
	PreMarketVolume float64 `json:"pre_market_volume"`
	PreMarketHigh   float64 `json:"pre_market_high"`
	FloatSize       float64 `json:"float_size"`
	DayOpen         float64 `json:"day_open"`
	MovePercent     float64 `json:"move_percent"`
	Volume          float64 `json:"volume"`
}

// CandidateSet 单日的全部候选股，分策略维护
type CandidateSet struct {
	Date     string      `json:"date"`
	Gap      []Candidate `json:"gap"`
	Intraday []Candidate `json:"intraday"`
}
