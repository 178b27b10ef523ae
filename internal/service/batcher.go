package service

import (
	"context"
	"sync"
	"time"

	"GSCSync/internal/config"
	"GSCSync/internal/gsc"
	"GSCSync/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SiteWork 单站点同步动作（拉取+入库），返回写入行数
type SiteWork func(ctx context.Context, site *model.Site) (int64, error)

// SiteOutcome 单站点同步结果（成功与失败都有一条，互不影响）
type SiteOutcome struct {
	Site        *model.Site
	Status      string // model.StatusSuccess / model.StatusFailed
	RowsWritten int64
	Attempts    int
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// Batcher 把站点列表切成固定大小的批，批内并发、批间停顿，
// 全部外呼经过令牌桶限速，单站点失败不阻塞其余站点
type Batcher struct {
	batchSize    int
	batchPause   time.Duration
	retryCount   int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	logger       *logrus.Logger
}

// NewBatcher 创建Batcher，限速令牌周期=CallPause（外呼总速率上限与站点数无关）
func NewBatcher(cfg *config.SyncConfig, logger *logrus.Logger) *Batcher {
	return &Batcher{
		batchSize:    cfg.BatchSize,
		batchPause:   cfg.BatchPause,
		retryCount:   cfg.RetryCount,
		retryBackoff: cfg.RetryBackoff,
		limiter:      rate.NewLimiter(rate.Every(cfg.CallPause), 1),
		logger:       logger,
	}
}

// partitionSites 按固定大小切批（23个站点、批大小5 → 5/5/5/5/3）
func partitionSites(sites []*model.Site, size int) [][]*model.Site {
	if size <= 0 {
		size = 1
	}
	var batches [][]*model.Site
	for i := 0; i < len(sites); i += size {
		end := i + size
		if end > len(sites) {
			end = len(sites)
		}
		batches = append(batches, sites[i:end])
	}
	return batches
}

// Run 逐批处理全部站点。批间检查取消（协作式），取消后不再启动后续批，
// 已完成的结果原样返回；批内站点并发执行，同时在途调用数不超过批大小
func (b *Batcher) Run(ctx context.Context, sites []*model.Site, work SiteWork) []SiteOutcome {
	batches := partitionSites(sites, b.batchSize)
	outcomes := make([]SiteOutcome, 0, len(sites))

	for i, batch := range batches {
		if ctx.Err() != nil {
			b.logger.Warnf("同步在第%d/%d批前被取消，已完成结果保留", i+1, len(batches))
			break
		}

		results := make([]SiteOutcome, len(batch))
		var wg sync.WaitGroup
		for j, site := range batch {
			wg.Add(1)
			go func(j int, site *model.Site) {
				defer wg.Done()
				results[j] = b.syncOne(ctx, site, work)
			}(j, site)
		}
		wg.Wait()
		outcomes = append(outcomes, results...)

		// 批间停顿（最后一批后不停）
		if i < len(batches)-1 && b.batchPause > 0 {
			select {
			case <-time.After(b.batchPause):
			case <-ctx.Done():
			}
		}
	}

	return outcomes
}

// syncOne 单站点执行+重试：可重试错误按指数退避最多重试retryCount次，
// 不可重试错误（认证失效/无权限/存储失败）立即记为失败
func (b *Batcher) syncOne(ctx context.Context, site *model.Site, work SiteWork) SiteOutcome {
	outcome := SiteOutcome{Site: site, StartedAt: time.Now()}

	var lastErr error
	for attempt := 0; attempt <= b.retryCount; attempt++ {
		if attempt > 0 {
			backoff := b.retryBackoff << (attempt - 1)
			b.logger.WithFields(logrus.Fields{
				"site":    site.URL,
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("可重试错误，退避后重试")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
		}
		if err := b.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		rows, err := work(ctx, site)
		outcome.Attempts = attempt + 1
		if err == nil {
			outcome.Status = model.StatusSuccess
			outcome.RowsWritten = rows
			outcome.FinishedAt = time.Now()
			return outcome
		}
		lastErr = err
		if !gsc.IsRetryable(err) {
			break
		}
	}

	outcome.Status = model.StatusFailed
	outcome.Err = lastErr
	outcome.FinishedAt = time.Now()
	if outcome.Attempts == 0 {
		outcome.Attempts = 1
	}
	b.logger.WithError(lastErr).WithField("site", site.URL).Warn("站点同步失败")
	return outcome
}
