package engine

import (
	"context"
	"sync"

	"shortside-backtest-go/internal/logger"
)

type prefetchJob struct {
	Ticker string
	Date   string
}

// Prefetcher 在仿真开始前并发预热行情缓存。仿真本身严格串行，
// 并发只发生在IO层，结果的确定性不受影响。
type Prefetcher struct {
	data        BarSource
	jobQueue    chan prefetchJob
	workerCount int
	wg          sync.WaitGroup
}

func NewPrefetcher(data BarSource, workerCount int) *Prefetcher {
	return &Prefetcher{
		data:        data,
		jobQueue:    make(chan prefetchJob, workerCount*4),
		workerCount: workerCount,
	}
}

func (p *Prefetcher) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	logger.S().Debugw("started prefetch workers", "workers", p.workerCount)
}

// Submit 入队一个待预热的 (ticker, date)。队列满时阻塞，
// 上下文取消后直接丢弃，避免 worker 已退出时卡死生产方。
func (p *Prefetcher) Submit(ctx context.Context, ticker, date string) {
	select {
	case p.jobQueue <- prefetchJob{Ticker: ticker, Date: date}:
	case <-ctx.Done():
	}
}

// CloseAndWait 关闭队列并等待所有预热任务完成
func (p *Prefetcher) CloseAndWait() {
	close(p.jobQueue)
	p.wg.Wait()
}

func (p *Prefetcher) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if _, err := p.data.IntradayBars(ctx, job.Ticker, job.Date); err != nil {
				logger.S().Warnw("prefetch failed",
					"ticker", job.Ticker, "date", job.Date, "error", err)
			}
		}
	}
}
