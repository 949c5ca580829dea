package config

import (
	"encoding/json"
	"fmt"
	"os"

	"shortside-backtest-go/internal/models"
)

// DefaultConfig 返回与原始策略一致的默认参数
func DefaultConfig() *models.Config {
	return &models.Config{
		StartingBalance:         10000,
		DBPath:                  "data/barcache",
		OutputDir:               "output",
		RandomSeed:              42,
		CommissionPercent:       0.4,
		SlippageProbability:     100,
		SlippageMinPercent:      0.66,
		SlippageMaxPercent:      0.66,
		HaltGapSeconds:          180,
		HaltSlippageMultiplier:  1.5,
		UseStaticSizing:         true,
		UseStaticSizingIntraday: true,
		RetryAttempts:           3,
		RetryInitialDelayMs:     500,
		DataWorkers:             8,
		Gapper: models.GapperConfig{
			StaticRiskLeg1:      1000,
			StaticRiskLeg2:      1000,
			RiskPercentLeg1:     4.0,
			RiskPercentLeg2:     2.75,
			Stop1Multiplier:     1.2711,
			Stop2GapFactor:      0.64,
			MaxEntryDropPercent: 40,
			TrailingActivation:  0.9,
			TrailingDistance:    0.9,
			EODExitTime:         1500,
		},
		Backside: models.BacksideConfig{
			StaticRisk:            2000,
			RiskFraction:          0.0675,
			StopLossPercent:       0.40,
			PriceCeiling:          11.75,
			DeadZoneMin:           1.0,
			DeadZoneMax:           2.0,
			MinCumulativeVolume:   1_000_000,
			MaxStuffTriggers:      4,
			LastEntryTime:         1430,
			EODExitTime:           1559,
			ViolationMultiplier:   1.27,
			NormalizedStopMult:    1.2711,
			NormalizedStopGap:     0.64,
			FallbackStopMult:      1.35,
			MinOverallMovePercent: 80,
			MinExtensionPercent:   40,
			ExtensionWindowBars:   30,
			MinPullbackPercent:    15,
		},
		Intraday: models.IntradayConfig{
			StaticRisk:          1500,
			RiskPercent:         5.0,
			StopLossPercent:     0.40,
			MinMovePercent:      70,
			MinPullbackPercent:  15,
			MinCumulativeVolume: 1_000_000,
			LastEntryTime:       1430,
			MaxDayOpenDelay:     935,
		},
		Screener: models.ScreenerConfig{
			MinInitialGapPercent:  45,
			MinGapPercent:         50,
			MinSharePrice:         0.30,
			MinPreMarketVolume:    1_000_000,
			SplitCheckGapPercent:  500,
			FloatSize:             3_000_000,
			IntradayOpenMin:       0.1,
			IntradayOpenMax:       6.0,
			IntradayMinMove:       70,
			IntradayMinVolume:     500_000,
			MaxTickerSymbolLength: 4,
		},
		LogConfig: models.LogConfig{
			Level:  "info",
			Output: "console",
		},
	}
}

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中，
// 未出现的字段保持默认值
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := DefaultConfig()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查关键参数的取值范围
func Validate(cfg *models.Config) error {
	if cfg.StartingBalance <= 0 {
		return fmt.Errorf("starting_balance must be positive, got %.2f", cfg.StartingBalance)
	}
	if cfg.SlippageProbability < 0 || cfg.SlippageProbability > 100 {
		return fmt.Errorf("slippage_probability must be in [0,100], got %d", cfg.SlippageProbability)
	}
	if cfg.SlippageMinPercent > cfg.SlippageMaxPercent {
		return fmt.Errorf("slippage_min_percent %.2f exceeds slippage_max_percent %.2f",
			cfg.SlippageMinPercent, cfg.SlippageMaxPercent)
	}
	if cfg.CommissionPercent < 0 {
		return fmt.Errorf("commission_percent must not be negative, got %.2f", cfg.CommissionPercent)
	}
	if cfg.HaltGapSeconds <= 60 {
		return fmt.Errorf("halt_gap_seconds must exceed one bar interval, got %d", cfg.HaltGapSeconds)
	}
	if cfg.Backside.DeadZoneMin > cfg.Backside.DeadZoneMax {
		return fmt.Errorf("backside dead zone is inverted: [%.2f, %.2f]",
			cfg.Backside.DeadZoneMin, cfg.Backside.DeadZoneMax)
	}
	if cfg.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be positive, got %d", cfg.RetryAttempts)
	}
	if cfg.DataWorkers <= 0 {
		return fmt.Errorf("data_workers must be positive, got %d", cfg.DataWorkers)
	}
	return nil
}
