// Package marketdata 封装 Polygon 行情接口：分钟K线、日线分组快照、
// 前收盘价与拆股记录。所有分钟数据先落本地缓存再消费，
// 同一 (ticker, date) 只会请求一次。
package marketdata

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	pmodels "github.com/polygon-io/client-go/rest/models"

	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/models"
	"shortside-backtest-go/internal/persistence"
)

const dateLayout = "2006-01-02"

// DailySnapshot 单只股票的日线快照
type DailySnapshot struct {
	Ticker string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Service 行情服务，缓存优先
type Service struct {
	client *polygon.Client
	cache  persistence.BarCache
	cfg    *models.Config
	loc    *time.Location
}

func NewService(apiKey string, cache persistence.BarCache, cfg *models.Config) (*Service, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load eastern timezone: %w", err)
	}
	return &Service{
		client: polygon.New(apiKey),
		cache:  cache,
		cfg:    cfg,
		loc:    loc,
	}, nil
}

// IntradayBars 返回指定交易日的分钟序列，已完成时段过滤。
// 无数据时返回 (nil, nil)。
func (s *Service) IntradayBars(ctx context.Context, ticker, date string) (*models.BarSeries, error) {
	log := logger.S()

	cached, err := s.cache.LoadBars(ticker, date)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		log.Debugw("bar cache hit", "ticker", ticker, "date", date)
		return s.series(ticker, date, cached), nil
	}

	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	var bars []models.Bar
	err = s.withRetry(ctx, func() error {
		bars = bars[:0]
		params := pmodels.ListAggsParams{
			Ticker:     ticker,
			Multiplier: 1,
			Timespan:   pmodels.Minute,
			From:       pmodels.Millis(day),
			To:         pmodels.Millis(day.Add(24*time.Hour - time.Millisecond)),
		}.WithOrder(pmodels.Asc).WithAdjusted(false).WithLimit(50000)

		iter := s.client.ListAggs(ctx, params)
		for iter.Next() {
			item := iter.Item()
			bars = append(bars, models.Bar{
				Time:   time.Time(item.Timestamp).In(s.loc),
				Open:   item.Open,
				High:   item.High,
				Low:    item.Low,
				Close:  item.Close,
				Volume: item.Volume,
			})
		}
		return iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch minute aggs for %s on %s: %w", ticker, date, err)
	}
	if len(bars) == 0 {
		return nil, nil
	}

	if err := s.cache.SaveBars(ticker, date, bars); err != nil {
		log.Warnw("failed to cache bars", "ticker", ticker, "date", date, "error", err)
	}
	return s.series(ticker, date, bars), nil
}

// series 套用与筛选阶段一致的时段过滤：
// 盘前 [04:00, 09:30) 加上盘中 [09:28, 16:00]
func (s *Service) series(ticker, date string, bars []models.Bar) *models.BarSeries {
	return &models.BarSeries{Ticker: ticker, Date: date, Bars: SessionFilter(bars)}
}

// SessionFilter 保留盘前与盘中时段的K线，其余丢弃
func SessionFilter(bars []models.Bar) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		hhmm := b.HHMM()
		premarket := hhmm >= models.PreMarketStart && hhmm < models.MarketOpen
		session := hhmm >= 928 && hhmm <= models.MarketClose
		if premarket || session {
			out = append(out, b)
		}
	}
	return out
}

// PreviousClose 向前回溯至多10个自然日，取最近一个有成交的收盘价
func (s *Service) PreviousClose(ctx context.Context, ticker, date string) (float64, error) {
	if v, ok, err := s.cache.LoadPreviousClose(ticker, date); err != nil {
		return 0, err
	} else if ok {
		return v, nil
	}

	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}

	for i := 1; i <= 10; i++ {
		prev := day.AddDate(0, 0, -i)
		params := pmodels.GetDailyOpenCloseAggParams{
			Ticker: ticker,
			Date:   pmodels.Date(prev),
		}.WithAdjusted(false)

		res, err := s.client.GetDailyOpenCloseAgg(ctx, params)
		if err != nil {
			// 周末、假日或无成交的日子直接往前找
			continue
		}
		if err := s.cache.SavePreviousClose(ticker, date, res.Close); err != nil {
			logger.S().Warnw("failed to cache previous close", "ticker", ticker, "error", err)
		}
		return res.Close, nil
	}
	return 0, fmt.Errorf("no previous close found for %s before %s", ticker, date)
}

// GroupedDaily 指定日期全市场的日线快照
func (s *Service) GroupedDaily(ctx context.Context, date string) ([]DailySnapshot, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	var out []DailySnapshot
	err = s.withRetry(ctx, func() error {
		params := pmodels.GetGroupedDailyAggsParams{
			Locale:     pmodels.US,
			MarketType: pmodels.Stocks,
			Date:       pmodels.Date(day),
		}.WithAdjusted(false)

		res, err := s.client.GetGroupedDailyAggs(ctx, params)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, agg := range res.Results {
			out = append(out, DailySnapshot{
				Ticker: agg.Ticker,
				Open:   agg.Open,
				High:   agg.High,
				Low:    agg.Low,
				Close:  agg.Close,
				Volume: agg.Volume,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch grouped daily for %s: %w", date, err)
	}
	return out, nil
}

// HasRecentSplit 查询该股票在 date 之前 lookbackDays 天内是否有拆股记录。
// 极端跳空大多是拆股造成的假信号。
func (s *Service) HasRecentSplit(ctx context.Context, ticker, date string, lookbackDays int) (bool, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return false, fmt.Errorf("parse date %q: %w", date, err)
	}

	params := pmodels.ListSplitsParams{}.
		WithTicker(pmodels.EQ, ticker).
		WithExecutionDate(pmodels.GTE, pmodels.Date(day.AddDate(0, 0, -lookbackDays))).
		WithExecutionDate(pmodels.LTE, pmodels.Date(day))

	iter := s.client.ListSplits(ctx, params)
	for iter.Next() {
		return true, iter.Err()
	}
	return false, iter.Err()
}

// withRetry 带线性退避的重试，只用于幂等的读请求
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := time.Duration(s.cfg.RetryInitialDelayMs) * time.Millisecond
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.S().Warnw("market data request failed, retrying",
			"attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(attempt+1)):
		}
	}
	return err
}
