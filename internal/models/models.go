package models

// Config 结构体定义了回测器的所有配置参数
type Config struct {
	StartingBalance         float64 `json:"starting_balance"`           // 回测初始资金 (USD)
	DBPath                  string  `json:"db_path"`                    // 行情缓存数据库路径
	OutputDir               string  `json:"output_dir"`                 // 报表输出目录
	RandomSeed              int64   `json:"random_seed"`                // 滑点随机数种子，保证结果可复现
	CommissionPercent       float64 `json:"commission_percent"`         // 每笔成交的佣金率 (0.4 表示 0.4%)
	SlippageProbability     int     `json:"slippage_probability"`       // 滑点触发概率 (1-100)
	SlippageMinPercent      float64 `json:"slippage_min_percent"`       // 滑点下限 (%)
	SlippageMaxPercent      float64 `json:"slippage_max_percent"`       // 滑点上限 (%)
	HaltGapSeconds          int     `json:"halt_gap_seconds"`           // 相邻K线间隔超过该秒数视为停牌
	HaltSlippageMultiplier  float64 `json:"halt_slippage_multiplier"`   // 停牌后止损出场的额外滑点倍数
	UseStaticSizing         bool    `json:"use_static_sizing"`          // Gapper/Backside 是否使用固定风险金额
	UseStaticSizingIntraday bool    `json:"use_static_sizing_intraday"` // 日内策略是否使用固定风险金额
	RetryAttempts           int     `json:"retry_attempts"`             // 行情请求失败时的重试次数
	RetryInitialDelayMs     int     `json:"retry_initial_delay_ms"`     // 重试前的初始延迟毫秒数
	DataWorkers             int     `json:"data_workers"`               // 行情预取并发数

	Gapper   GapperConfig   `json:"gapper"`   // Gapper 策略参数
	Backside BacksideConfig `json:"backside"` // Backside 策略参数
	Intraday IntradayConfig `json:"intraday"` // 日内 Backside 策略参数
	Screener ScreenerConfig `json:"screener"` // 候选股筛选参数

	LogConfig LogConfig `json:"log"` // 日志配置
}

// GapperConfig Gapper 策略（开盘跳空做空）的参数
type GapperConfig struct {
	StaticRiskLeg1      float64 `json:"static_risk_leg1"`       // 第一腿固定风险金额 (USD)
	StaticRiskLeg2      float64 `json:"static_risk_leg2"`       // 第二腿固定风险金额 (USD)
	RiskPercentLeg1     float64 `json:"risk_percent_leg1"`      // 第一腿风险占账户比例 (%)
	RiskPercentLeg2     float64 `json:"risk_percent_leg2"`      // 第二腿风险占账户比例 (%)
	Stop1Multiplier     float64 `json:"stop1_multiplier"`       // 止损一 = 盘前高点 × 该倍数
	Stop2GapFactor      float64 `json:"stop2_gap_factor"`       // 止损二 = 入场价 + 跳空幅度 × 该系数
	MaxEntryDropPercent float64 `json:"max_entry_drop_percent"` // 盘前高点到入场价回落超过该比例时第二腿不参与
	TrailingActivation  float64 `json:"trailing_activation"`    // 移动止损激活阈值（入场价到最低价的回撤比例）
	TrailingDistance    float64 `json:"trailing_distance"`      // 移动止损距离（低点 × (1+该值)）
	EODExitTime         int     `json:"eod_exit_time"`          // 收盘平仓时间 (HHMM)
}

// BacksideConfig Backside 策略（冲高回落做空）的参数
type BacksideConfig struct {
	StaticRisk            float64 `json:"static_risk"`              // 固定风险金额 (USD)
	RiskFraction          float64 `json:"risk_fraction"`            // 风险占账户比例（小数）
	StopLossPercent       float64 `json:"stop_loss_percent"`        // 止损 = 入场价 × (1+该值)
	PriceCeiling          float64 `json:"price_ceiling"`            // 触发K线收盘价上限 (USD)
	DeadZoneMin           float64 `json:"dead_zone_min"`            // 触发价死区下限 (USD)
	DeadZoneMax           float64 `json:"dead_zone_max"`            // 触发价死区上限 (USD)
	MinCumulativeVolume   float64 `json:"min_cumulative_volume"`    // 触发时的最小累计成交量
	MaxStuffTriggers      int     `json:"max_stuff_triggers"`       // 每日最多评估的触发次数
	LastEntryTime         int     `json:"last_entry_time"`          // 最晚入场时间 (HHMM)
	EODExitTime           int     `json:"eod_exit_time"`            // 收盘平仓时间 (HHMM)
	ViolationMultiplier   float64 `json:"violation_multiplier"`     // 盘前高点突破幅度阈值（1.27 即 27%）
	NormalizedStopMult    float64 `json:"normalized_stop_mult"`     // 归一化止损 = 盘前高点 × 该倍数
	NormalizedStopGap     float64 `json:"normalized_stop_gap"`      // 归一化止损第二候选的跳空系数
	FallbackStopMult      float64 `json:"fallback_stop_mult"`       // 无盘中开盘价时的备用止损倍数
	MinOverallMovePercent float64 `json:"min_overall_move_percent"` // 相对参考价的最小涨幅基准 (%)
	MinExtensionPercent   float64 `json:"min_extension_percent"`    // 短窗口内的最小扩展涨幅 (%)
	ExtensionWindowBars   int     `json:"extension_window_bars"`    // 扩展涨幅回看K线数
	MinPullbackPercent    float64 `json:"min_pullback_percent"`     // 高点回撤占波段的最小比例 (%)
}

// IntradayConfig 日内 Backside 策略的参数
type IntradayConfig struct {
	StaticRisk          float64 `json:"static_risk"`           // 固定风险金额 (USD)
	RiskPercent         float64 `json:"risk_percent"`          // 风险占账户比例 (%)
	StopLossPercent     float64 `json:"stop_loss_percent"`     // 止损 = 入场价 × (1+该值)
	MinMovePercent      float64 `json:"min_move_percent"`      // 日内高点相对开盘价的最小涨幅 (%)
	MinPullbackPercent  float64 `json:"min_pullback_percent"`  // 高点回撤占开盘到高点区间的最小比例 (%)
	MinCumulativeVolume float64 `json:"min_cumulative_volume"` // 触发时的最小盘中累计成交量
	LastEntryTime       int     `json:"last_entry_time"`       // 最晚入场时间 (HHMM)
	MaxDayOpenDelay     int     `json:"max_day_open_delay"`    // 首根K线晚于该时间 (HHMM) 则改用日线开盘价
}

// ScreenerConfig 候选股筛选参数
type ScreenerConfig struct {
	MinInitialGapPercent  float64 `json:"min_initial_gap_percent"`  // 日线跳空初筛阈值 (%)
	MinGapPercent         float64 `json:"min_gap_percent"`          // 9:28 确认跳空阈值 (%)
	MinSharePrice         float64 `json:"min_share_price"`          // 最低股价 (USD)
	MinPreMarketVolume    float64 `json:"min_pre_market_volume"`    // 最小盘前成交量
	SplitCheckGapPercent  float64 `json:"split_check_gap_percent"`  // 跳空超过该值时核查是否拆股
	FloatSize             float64 `json:"float_size"`               // 流通股本占位值
	IntradayOpenMin       float64 `json:"intraday_open_min"`        // 日内候选开盘价下限 (USD)
	IntradayOpenMax       float64 `json:"intraday_open_max"`        // 日内候选开盘价上限 (USD)
	IntradayMinMove       float64 `json:"intraday_min_move"`        // 日内候选最小涨幅 (%)
	IntradayMinVolume     float64 `json:"intraday_min_volume"`      // 日内候选最小成交量
	MaxTickerSymbolLength int     `json:"max_ticker_symbol_length"` // 代码长度上限，超过视为衍生品
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}
