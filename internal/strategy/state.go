// Package strategy 实现三个日内做空策略的逐K线状态机：
// Gapper（开盘跳空）、Backside（冲高回落）与日内 Backside。
// 状态机只消费已物化的K线序列，不做任何IO；所有随机性
// 来自注入的滑点模拟器，同一种子下结果逐位一致。
package strategy

import (
	"time"

	"shortside-backtest-go/internal/models"
)

// Phase 状态机所处阶段
type Phase int

const (
	PhaseScanning Phase = iota // 扫描中，等待触发
	PhaseTriggerPending        // 已触发，等待下一根K线入场
	PhaseOpen                  // 持有空头仓位
	PhaseClosed                // 当日交易完成
)

// Input 单次仿真的全部输入。K线序列必须已完成时段过滤并按时间升序。
type Input struct {
	Series          *models.BarSeries
	Candidate       models.Candidate
	Balance         float64 // 当前账户资金，用于按比例的仓位计算
	DayStartBalance float64 // 当日起始资金，Backside/日内策略的风险基数
}

// Position 当前持有的空头仓位
type Position struct {
	EntryPrice float64
	EntryTime  time.Time
	Shares     int
	StopLoss   float64
}

// SimState Backside 状态机的可观测状态。粘性开关当日内只进不退。
type SimState struct {
	Phase                   Phase
	ExceededPreMarketHigh   bool // 盘中高点突破盘前高点
	ViolatedPreMarketFilter bool // 突破盘前高点的27%加价线
	NormalizedStopTriggered bool // 盘中高点触及归一化止损位
	MoveQualified           bool // 日内策略：涨幅达标
	PullbackQualified       bool // 日内策略：回撤达标
	PreTriggerTwoCount      int
	StuffTriggerCount       int
	TriggerIndex            int
	HaltDetected            bool
	HighOfDay               float64 // 含盘前的最高价
	HighOfDayRTH            float64 // 仅盘中的最高价
}

// newSimState 初始 TriggerIndex 置为 -1 表示尚未触发
func newSimState() *SimState {
	return &SimState{Phase: PhaseScanning, TriggerIndex: -1}
}
