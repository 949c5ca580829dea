package models

import (
	"errors"
	"time"
)

// 策略名称
const (
	StrategyGapper   = "Gapper"
	StrategyBackside = "Backside"
	StrategyIntraday = "Intraday Backside"
)

// 出场原因
const (
	ExitStopLoss     = "Stop Loss"
	ExitHaltStop     = "Halt Gap Stop"
	ExitTrailingStop = "Trailing Stop"
	ExitEndOfDay     = "End of Day"
	ExitTimeCutoff   = "Time Cutoff"
)

// 行情/仿真过程中的可判定错误
var (
	ErrInsufficientData    = errors.New("insufficient intraday data")
	ErrNoPreMarketData     = errors.New("no pre-market data")
	ErrMissingReferenceBar = errors.New("missing reference candle")
	ErrNoMarketData        = errors.New("no market-hours data")
)

// TradeRecord 一笔完成的交易。Gapper 的两腿合并为一条记录，
// 第二腿字段仅在该策略下有意义。
type TradeRecord struct {
	ID               string    `json:"id"`
	Date             string    `json:"date"`
	Ticker           string    `json:"ticker"`
	Strategy         string    `json:"strategy"`
	EntryTime        time.Time `json:"entry_time"`
	ExitTime         time.Time `json:"exit_time"`
	EntryPrice       float64   `json:"entry_price"`
	ExitPrice        float64   `json:"exit_price"`
	Shares           int       `json:"shares"`
	StopLoss         float64   `json:"stop_loss"`
	ExitReason       string    `json:"exit_reason"`
	Shares2          int       `json:"shares2,omitempty"`
	ExitPrice2       float64   `json:"exit_price2,omitempty"`
	ExitTime2        time.Time `json:"exit_time2,omitempty"`
	StopLoss2        float64   `json:"stop_loss2,omitempty"`
	ExitReason2      string    `json:"exit_reason2,omitempty"`
	Commission       float64   `json:"commission"`
	NetPnL           float64   `json:"net_pnl"`
	GapPercent       float64   `json:"gap_percent,omitempty"`
	PreMarketHigh    float64   `json:"pre_market_high,omitempty"`
	EntryDropPercent float64   `json:"entry_drop_percent,omitempty"`
	TrailingStopUsed bool      `json:"trailing_stop_used,omitempty"`
	HaltInvolved     bool      `json:"halt_involved,omitempty"`
	BacksideEligible bool      `json:"backside_eligible,omitempty"`
	BalanceAfter     float64   `json:"balance_after"`
}

// Win 该笔交易是否盈利
func (t *TradeRecord) Win() bool {
	return t.NetPnL > 0
}
