package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shortside-backtest-go/internal/config"
	"shortside-backtest-go/internal/engine"
	"shortside-backtest-go/internal/execution"
	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/marketdata"
	"shortside-backtest-go/internal/models"
	"shortside-backtest-go/internal/persistence"
	"shortside-backtest-go/internal/reporter"
	"shortside-backtest-go/internal/screener"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	startDate := flag.String("start", "", "start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date (YYYY-MM-DD)")
	outDir := flag.String("out", "", "output directory for CSV reports (overrides config)")
	dbPath := flag.String("db", "", "bar cache directory (overrides config)")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	// 在加载.env和配置文件之前先有一个默认logger可用
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.S().Infof("配置文件 %s 不存在，使用默认配置。", *configPath)
			cfg = config.DefaultConfig()
		} else {
			logger.S().Fatalf("无法加载配置文件: %v", err)
		}
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	if *startDate == "" || *endDate == "" {
		logger.S().Fatal("必须通过 --start 和 --end 指定回测区间 (YYYY-MM-DD)。")
	}

	apiKey := os.Getenv("POLYGON_API_KEY")
	if apiKey == "" {
		logger.S().Fatal("错误：POLYGON_API_KEY 环境变量必须被设置。")
	}

	// --- 初始化行情缓存与数据服务 ---
	cache, err := persistence.NewBadgerCache(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("无法打开行情缓存 %s: %v", cfg.DBPath, err)
	}
	defer cache.Close()

	md, err := marketdata.NewService(apiKey, cache, cfg)
	if err != nil {
		logger.S().Fatalf("初始化行情服务失败: %v", err)
	}

	// --- 组装回测引擎 ---
	slip := execution.NewSlipper(cfg.RandomSeed,
		cfg.SlippageProbability, cfg.SlippageMinPercent, cfg.SlippageMaxPercent)
	scr := screener.New(md, cache, cfg)
	bt := engine.NewBacktest(cfg, scr, md, slip)

	// Ctrl+C 时取消回测，已有的缓存数据保留
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.S().Infof("开始回测 %s 到 %s，初始资金 %.2f", *startDate, *endDate, cfg.StartingBalance)
	result, err := bt.Run(ctx, *startDate, *endDate)
	if err != nil {
		logger.S().Fatalf("回测失败: %v", err)
	}

	// --- 生成报告并导出CSV ---
	rep := reporter.New(cfg)
	metrics := rep.Build(result)
	rep.Print(metrics)
	if err := rep.ExportCSV(result, metrics, cfg.OutputDir); err != nil {
		logger.S().Errorf("导出CSV失败: %v", err)
	} else {
		logger.S().Infof("CSV报告已写入 %s", cfg.OutputDir)
	}
}
