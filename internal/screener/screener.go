// Package screener 从 Polygon 日线分组快照里发现每日候选股：
// 跳空候选（Gapper/Backside 共用）与日内异动候选。结果落缓存，
// 同一日期只筛一次。
package screener

import (
	"context"
	"sort"
	"strings"
	"time"

	"shortside-backtest-go/internal/logger"
	"shortside-backtest-go/internal/marketdata"
	"shortside-backtest-go/internal/models"
	"shortside-backtest-go/internal/persistence"
)

const dateLayout = "2006-01-02"

type Screener struct {
	md    *marketdata.Service
	cache persistence.BarCache
	cfg   *models.Config
}

func New(md *marketdata.Service, cache persistence.BarCache, cfg *models.Config) *Screener {
	return &Screener{md: md, cache: cache, cfg: cfg}
}

// CandidatesForDate 返回指定交易日的候选股集合，缓存优先
func (s *Screener) CandidatesForDate(ctx context.Context, date string) (*models.CandidateSet, error) {
	log := logger.S()

	if set, err := s.cache.LoadCandidates(date); err != nil {
		return nil, err
	} else if set != nil {
		log.Debugw("candidate cache hit", "date", date)
		return set, nil
	}

	gap, err := s.gapCandidates(ctx, date)
	if err != nil {
		return nil, err
	}
	intraday, err := s.intradayCandidates(ctx, date)
	if err != nil {
		return nil, err
	}

	set := &models.CandidateSet{Date: date, Gap: gap, Intraday: intraday}
	if err := s.cache.SaveCandidates(set); err != nil {
		log.Warnw("failed to cache candidates", "date", date, "error", err)
	}
	log.Infow("screened candidates", "date", date,
		"gap", len(gap), "intraday", len(intraday))
	return set, nil
}

type initialGapper struct {
	ticker          string
	previousClose   float64
	needsSplitCheck bool
}

// gapCandidates 两段筛选：日线层面的初筛（跳空45%以上）加
// 9:28 分钟级确认（跳空50%以上、盘前量100万以上）
func (s *Screener) gapCandidates(ctx context.Context, date string) ([]models.Candidate, error) {
	scfg := &s.cfg.Screener

	prevDate, prevSnapshots, err := s.previousTradingDay(ctx, date)
	if err != nil {
		return nil, err
	}
	if prevSnapshots == nil {
		return nil, nil
	}
	prevCloses := make(map[string]float64, len(prevSnapshots))
	for _, snap := range prevSnapshots {
		prevCloses[snap.Ticker] = snap.Close
	}

	current, err := s.md.GroupedDaily(ctx, date)
	if err != nil {
		return nil, err
	}

	var initial []initialGapper
	for _, snap := range current {
		if !ValidTicker(snap.Ticker) {
			continue
		}
		prevClose, ok := prevCloses[snap.Ticker]
		if !ok || prevClose <= 0 {
			continue
		}
		initialGap := (snap.Open - prevClose) / prevClose * 100
		if initialGap >= scfg.MinInitialGapPercent && snap.Open >= scfg.MinSharePrice {
			initial = append(initial, initialGapper{
				ticker:          snap.Ticker,
				previousClose:   prevClose,
				needsSplitCheck: initialGap >= scfg.SplitCheckGapPercent,
			})
		}
	}

	splitLookback := s.daysBetween(prevDate, date)

	var out []models.Candidate
	for _, cand := range initial {
		series, err := s.md.IntradayBars(ctx, cand.ticker, date)
		if err != nil {
			logger.S().Warnw("failed to fetch intraday bars for candidate",
				"ticker", cand.ticker, "date", date, "error", err)
			continue
		}
		if series == nil || len(series.Bars) == 0 {
			continue
		}

		refBar, ok := referenceBar(series)
		if !ok {
			continue
		}
		gap928 := (refBar.Close - cand.previousClose) / cand.previousClose * 100

		// 跳空过于夸张时先排除拆股造成的假信号
		if cand.needsSplitCheck || gap928 > scfg.SplitCheckGapPercent {
			isSplit, err := s.md.HasRecentSplit(ctx, cand.ticker, date, splitLookback)
			if err != nil {
				logger.S().Warnw("split check failed", "ticker", cand.ticker, "error", err)
			} else if isSplit {
				continue
			}
		}

		if gap928 < scfg.MinGapPercent || refBar.Close < scfg.MinSharePrice {
			continue
		}
		preMarketVolume := 0.0
		for _, b := range series.Bars {
			if b.IsPreMarket() {
				preMarketVolume += b.Volume
			}
		}
		if preMarketVolume < scfg.MinPreMarketVolume {
			continue
		}

		pmh, _ := series.PreMarketHigh()
		candidate := models.Candidate{
			Ticker:          cand.ticker,
			GapPercent:      gap928,
			Price:           refBar.Close,
			PreviousClose:   cand.previousClose,
			PreMarketVolume: preMarketVolume,
			PreMarketHigh:   pmh,
			FloatSize:       scfg.FloatSize,
		}
		if first, ok := series.FirstMarketBar(); ok {
			candidate.DayOpen = first.Open
		}
		out = append(out, candidate)
	}
	return out, nil
}

// intradayCandidates 日线层面找低价异动股，再用分钟数据确认
// 成交量与涨幅在盘中真实发生过
func (s *Screener) intradayCandidates(ctx context.Context, date string) ([]models.Candidate, error) {
	scfg := &s.cfg.Screener

	current, err := s.md.GroupedDaily(ctx, date)
	if err != nil {
		return nil, err
	}

	var pending []models.Candidate
	for _, snap := range current {
		if !ValidTicker(snap.Ticker) {
			continue
		}
		if snap.Open <= 0 || snap.High <= 0 {
			continue
		}
		move := (snap.High - snap.Open) / snap.Open * 100
		inPriceRange := snap.Open >= scfg.IntradayOpenMin && snap.Open <= scfg.IntradayOpenMax
		if inPriceRange && (move >= scfg.IntradayMinMove || snap.Volume >= scfg.IntradayMinVolume) {
			pending = append(pending, models.Candidate{
				Ticker:      snap.Ticker,
				MovePercent: move,
				Volume:      snap.Volume,
				DayOpen:     snap.Open,
				FloatSize:   scfg.FloatSize,
			})
		}
	}

	var out []models.Candidate
	for _, cand := range pending {
		if cand.Volume < scfg.IntradayMinVolume || cand.MovePercent < scfg.IntradayMinMove {
			continue
		}
		series, err := s.md.IntradayBars(ctx, cand.Ticker, date)
		if err != nil {
			logger.S().Warnw("failed to fetch intraday bars for candidate",
				"ticker", cand.Ticker, "date", date, "error", err)
			continue
		}
		if series == nil {
			continue
		}
		if s.confirmIntradayMove(series) {
			out = append(out, cand)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].MovePercent > out[j].MovePercent
	})
	return out, nil
}

// confirmIntradayMove 盘中是否存在某一时点，累计成交量和
// 相对开盘涨幅同时达标
func (s *Screener) confirmIntradayMove(series *models.BarSeries) bool {
	scfg := &s.cfg.Screener
	first, ok := series.FirstMarketBar()
	if !ok || first.Open <= 0 {
		return false
	}
	dayOpen := first.Open

	cumVolume := 0.0
	for _, b := range series.Bars {
		if b.HHMM() < models.MarketOpen {
			continue
		}
		cumVolume += b.Volume
		move := (b.High - dayOpen) / dayOpen * 100
		if cumVolume >= scfg.IntradayMinVolume && move >= scfg.IntradayMinMove {
			return true
		}
	}
	return false
}

// previousTradingDay 往前找最近一个有日线数据的交易日
func (s *Screener) previousTradingDay(ctx context.Context, date string) (string, []marketdata.DailySnapshot, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", nil, err
	}
	for i := 1; i <= 10; i++ {
		prev := day.AddDate(0, 0, -i).Format(dateLayout)
		snaps, err := s.md.GroupedDaily(ctx, prev)
		if err != nil {
			logger.S().Warnw("grouped daily fetch failed", "date", prev, "error", err)
			continue
		}
		if len(snaps) > 0 {
			return prev, snaps, nil
		}
	}
	return "", nil, nil
}

func (s *Screener) daysBetween(from, to string) int {
	a, err1 := time.Parse(dateLayout, from)
	b, err2 := time.Parse(dateLayout, to)
	if err1 != nil || err2 != nil {
		return 7
	}
	return int(b.Sub(a).Hours() / 24)
}

// referenceBar 9:28 K线，缺失时依次退回 9:29、9:27
func referenceBar(series *models.BarSeries) (models.Bar, bool) {
	for _, hhmm := range []int{928, 929, 927} {
		if b, ok := series.BarAt(hhmm); ok {
			return b, true
		}
	}
	return models.Bar{}, false
}

// ValidTicker 排除权证、配股等衍生代码和测试代码
func ValidTicker(ticker string) bool {
	if len(ticker) >= 5 {
		return false
	}
	if strings.HasSuffix(ticker, "WS") && len(ticker) > 4 {
		return false
	}
	if strings.HasSuffix(ticker, "RT") || strings.HasSuffix(ticker, "WSA") {
		return false
	}
	switch ticker {
	case "ZVZZT", "ZWZZT", "ZBZZT":
		return false
	}
	return true
}
