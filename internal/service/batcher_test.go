package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"GSCSync/internal/config"
	"GSCSync/internal/gsc"
	"GSCSync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatcherConfig() *config.SyncConfig {
	return &config.SyncConfig{
		BatchSize:    5,
		BatchPause:   time.Millisecond,
		CallPause:    time.Microsecond,
		RetryCount:   3,
		RetryBackoff: time.Millisecond,
	}
}

func makeSites(n int) []*model.Site {
	sites := make([]*model.Site, n)
	for i := range sites {
		sites[i] = &model.Site{ID: uint64(i + 1), URL: fmt.Sprintf("sc-domain:site%02d.example.com", i+1)}
	}
	return sites
}

func TestPartitionSites(t *testing.T) {
	batches := partitionSites(makeSites(23), 5)
	require.Len(t, batches, 5)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 5)
	assert.Len(t, batches[2], 5)
	assert.Len(t, batches[3], 5)
	assert.Len(t, batches[4], 3)

	// 不足一批时整体作为一批
	batches = partitionSites(makeSites(3), 5)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)

	assert.Empty(t, partitionSites(nil, 5))
}

func TestBatcherRun_AllSitesProcessed(t *testing.T) {
	b := NewBatcher(testBatcherConfig(), testLogger())

	var calls int64
	outcomes := b.Run(context.Background(), makeSites(23), func(ctx context.Context, site *model.Site) (int64, error) {
		atomic.AddInt64(&calls, 1)
		return 10, nil
	})

	require.Len(t, outcomes, 23)
	assert.EqualValues(t, 23, calls)
	for _, o := range outcomes {
		assert.Equal(t, model.StatusSuccess, o.Status)
		assert.EqualValues(t, 10, o.RowsWritten)
		assert.Equal(t, 1, o.Attempts)
	}
}

func TestBatcherRun_ConcurrencyBoundedByBatchSize(t *testing.T) {
	cfg := testBatcherConfig()
	cfg.BatchSize = 3
	b := NewBatcher(cfg, testLogger())

	var inFlight, peak int64
	outcomes := b.Run(context.Background(), makeSites(10), func(ctx context.Context, site *model.Site) (int64, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return 0, nil
	})

	require.Len(t, outcomes, 10)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestBatcherRun_RetryableErrorRetriesWithBackoff(t *testing.T) {
	b := NewBatcher(testBatcherConfig(), testLogger())

	var calls int32
	quotaErr := &gsc.Error{Kind: gsc.KindQuota, Err: errors.New("quota exceeded")}
	outcomes := b.Run(context.Background(), makeSites(1), func(ctx context.Context, site *model.Site) (int64, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return 0, quotaErr
		}
		return 7, nil
	})

	require.Len(t, outcomes, 1)
	assert.Equal(t, model.StatusSuccess, outcomes[0].Status)
	assert.Equal(t, 3, outcomes[0].Attempts)
	assert.EqualValues(t, 7, outcomes[0].RowsWritten)
}

func TestBatcherRun_NonRetryableErrorFailsImmediately(t *testing.T) {
	b := NewBatcher(testBatcherConfig(), testLogger())

	authErr := &gsc.Error{Kind: gsc.KindAuth, Err: errors.New("invalid credentials")}
	var calls int32
	outcomes := b.Run(context.Background(), makeSites(1), func(ctx context.Context, site *model.Site) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return 0, authErr
	})

	require.Len(t, outcomes, 1)
	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.EqualValues(t, 1, calls)
	assert.ErrorIs(t, outcomes[0].Err, authErr)
}

func TestBatcherRun_RetriesExhaustedReportsLastError(t *testing.T) {
	cfg := testBatcherConfig()
	cfg.RetryCount = 2
	b := NewBatcher(cfg, testLogger())

	transient := &gsc.Error{Kind: gsc.KindTransient, Err: errors.New("connection reset")}
	outcomes := b.Run(context.Background(), makeSites(1), func(ctx context.Context, site *model.Site) (int64, error) {
		return 0, transient
	})

	require.Len(t, outcomes, 1)
	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	assert.Equal(t, 3, outcomes[0].Attempts) // 首次+2次重试
	assert.ErrorIs(t, outcomes[0].Err, transient)
}

func TestBatcherRun_FailureDoesNotBlockOtherSites(t *testing.T) {
	cfg := testBatcherConfig()
	cfg.RetryCount = 0
	b := NewBatcher(cfg, testLogger())

	failURL := "sc-domain:site03.example.com"
	outcomes := b.Run(context.Background(), makeSites(10), func(ctx context.Context, site *model.Site) (int64, error) {
		if site.URL == failURL {
			return 0, &gsc.Error{Kind: gsc.KindInvalidProperty, Site: site.URL, Err: errors.New("forbidden")}
		}
		return 5, nil
	})

	require.Len(t, outcomes, 10)
	var failed, succeeded int
	for _, o := range outcomes {
		if o.Status == model.StatusFailed {
			failed++
			assert.Equal(t, failURL, o.Site.URL)
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 9, succeeded)
}

func TestBatcherRun_CancelledBeforeStart(t *testing.T) {
	b := NewBatcher(testBatcherConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := b.Run(ctx, makeSites(10), func(ctx context.Context, site *model.Site) (int64, error) {
		return 0, nil
	})
	assert.Empty(t, outcomes)
}

func TestBatcherRun_CancelBetweenBatchesKeepsCompleted(t *testing.T) {
	cfg := testBatcherConfig()
	cfg.BatchSize = 5
	cfg.BatchPause = 5 * time.Millisecond
	b := NewBatcher(cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	outcomes := b.Run(ctx, makeSites(15), func(ctx context.Context, site *model.Site) (int64, error) {
		// 第一批完成后取消
		once.Do(cancel)
		return 1, nil
	})

	// 至少第一批已完成，后续批不再启动
	require.NotEmpty(t, outcomes)
	assert.Less(t, len(outcomes), 15)
	assert.Equal(t, 0, len(outcomes)%5)
}
