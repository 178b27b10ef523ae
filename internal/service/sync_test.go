package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"GSCSync/internal/config"
	"GSCSync/internal/gsc"
	"GSCSync/internal/interfaces"
	"GSCSync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeMetricsClient 可编程的MetricsClient替身
type fakeMetricsClient struct {
	mu        sync.Mutex
	props     []interfaces.Property
	propsErr  error
	rows      map[string][]interfaces.MetricsRow
	errs      map[string]error
	gotRanges map[string][2]time.Time
	calls     map[string]int
}

func newFakeClient(props ...interfaces.Property) *fakeMetricsClient {
	return &fakeMetricsClient{
		props:     props,
		rows:      make(map[string][]interfaces.MetricsRow),
		errs:      make(map[string]error),
		gotRanges: make(map[string][2]time.Time),
		calls:     make(map[string]int),
	}
}

func (f *fakeMetricsClient) ListProperties(ctx context.Context) ([]interfaces.Property, error) {
	if f.propsErr != nil {
		return nil, f.propsErr
	}
	return f.props, nil
}

func (f *fakeMetricsClient) FetchRange(ctx context.Context, siteURL string, start, end time.Time) ([]interfaces.MetricsRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[siteURL]++
	f.gotRanges[siteURL] = [2]time.Time{start, end}
	if err := f.errs[siteURL]; err != nil {
		return nil, err
	}
	return f.rows[siteURL], nil
}

func testSyncService(t *testing.T, client interfaces.MetricsClient) (*SyncService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	cfg := &config.Config{Sync: config.SyncConfig{
		BatchSize:       5,
		BatchPause:      time.Millisecond,
		CallPause:       time.Microsecond,
		RetryCount:      0,
		RetryBackoff:    time.Millisecond,
		IncrementalDays: 7,
		InitialDays:     90,
		DataLagDays:     2,
		RetentionDays:   90,
	}}
	svc := NewSyncService(db, client, cfg, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return svc, db
}

func TestRunSync_Success(t *testing.T) {
	client := newFakeClient(
		interfaces.Property{SiteURL: "sc-domain:a.example.com", PermissionLevel: "siteOwner"},
		interfaces.Property{SiteURL: "sc-domain:b.example.com", PermissionLevel: "siteOwner"},
	)
	d1, d2 := day(2026, 8, 27), day(2026, 8, 28)
	for _, url := range []string{"sc-domain:a.example.com", "sc-domain:b.example.com"} {
		client.rows[url] = []interfaces.MetricsRow{
			{Date: d1, Keyword: "k1", Page: "/p", Clicks: 2, Impressions: 20, CTR: 0.1, Position: 4},
			{Date: d2, Keyword: "k1", Page: "/p", Clicks: 3, Impressions: 30, CTR: 0.1, Position: 5},
		}
	}
	svc, h := testSyncService(t, client)

	summary, err := svc.RunSync(context.Background(), model.ModeIncremental, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, summary.Status)
	assert.Equal(t, model.PhaseDone, summary.Phase)
	assert.Equal(t, 2, summary.SitesDiscovered)
	assert.Equal(t, 2, summary.SitesSynced)
	assert.Zero(t, summary.SitesFailed)
	assert.EqualValues(t, 4, summary.TotalRows)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 7, summary.Days)

	// 同步区间 = [today−lag−days, today−lag]
	r := client.gotRanges["sc-domain:a.example.com"]
	assert.Equal(t, "2026-08-21", r[0].Format("2006-01-02"))
	assert.Equal(t, "2026-08-28", r[1].Format("2006-01-02"))

	// 运行记录终态
	var run model.SyncRun
	require.NoError(t, h.First(&run, "run_uuid = ?", summary.RunUUID).Error)
	assert.Equal(t, model.StatusSuccess, run.Status)
	assert.Equal(t, 2, run.SitesSynced)
	assert.EqualValues(t, 4, run.TotalRows)
	require.NotNil(t, run.CompletedAt)

	// 每站点恰好一条带终态的日志
	var siteLogs []model.SyncSiteLog
	require.NoError(t, h.Where("run_id = ?", run.ID).Find(&siteLogs).Error)
	require.Len(t, siteLogs, 2)
	for _, l := range siteLogs {
		assert.Equal(t, model.StatusSuccess, l.Status)
		assert.EqualValues(t, 2, l.RowsWritten)
		require.NotNil(t, l.FinishedAt)
	}

	// 触达的(site, date)都重算出了日汇总
	var aggCount int64
	require.NoError(t, h.Model(&model.SiteDaily{}).Count(&aggCount).Error)
	assert.EqualValues(t, 4, aggCount)

	// 成功站点推进last_sync
	var sites []model.Site
	require.NoError(t, h.Find(&sites).Error)
	require.Len(t, sites, 2)
	for _, s := range sites {
		assert.NotNil(t, s.LastSync)
		assert.True(t, s.IsActive)
	}
}

func TestRunSync_PartialOnSiteFailure(t *testing.T) {
	client := newFakeClient(
		interfaces.Property{SiteURL: "sc-domain:ok1.example.com"},
		interfaces.Property{SiteURL: "sc-domain:bad.example.com"},
		interfaces.Property{SiteURL: "sc-domain:ok2.example.com"},
	)
	d := day(2026, 8, 28)
	client.rows["sc-domain:ok1.example.com"] = []interfaces.MetricsRow{{Date: d, Keyword: "k", Page: "/p", Clicks: 1, Impressions: 10, Position: 3}}
	client.rows["sc-domain:ok2.example.com"] = []interfaces.MetricsRow{{Date: d, Keyword: "k", Page: "/p", Clicks: 1, Impressions: 10, Position: 3}}
	client.errs["sc-domain:bad.example.com"] = &gsc.Error{Kind: gsc.KindQuota, Site: "sc-domain:bad.example.com", Err: errors.New("quota exceeded")}

	svc, h := testSyncService(t, client)
	summary, err := svc.RunSync(context.Background(), model.ModeIncremental, 0)
	require.NoError(t, err) // 站点级失败不升级为运行级失败
	assert.Equal(t, model.StatusPartial, summary.Status)
	assert.Equal(t, 2, summary.SitesSynced)
	assert.Equal(t, 1, summary.SitesFailed)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "sc-domain:bad.example.com")

	var run model.SyncRun
	require.NoError(t, h.First(&run, "run_uuid = ?", summary.RunUUID).Error)
	assert.Equal(t, model.StatusPartial, run.Status)
	assert.NotEmpty(t, run.Errors)

	var failedLog model.SyncSiteLog
	require.NoError(t, h.Where("status = ?", model.StatusFailed).First(&failedLog).Error)
	require.NotNil(t, failedLog.ErrorMessage)
	assert.Contains(t, *failedLog.ErrorMessage, "quota")
}

func TestRunSync_DiscoveryFailureIsCatastrophic(t *testing.T) {
	client := newFakeClient()
	client.propsErr = &gsc.Error{Kind: gsc.KindAuth, Err: errors.New("invalid credentials")}

	svc, h := testSyncService(t, client)
	summary, err := svc.RunSync(context.Background(), model.ModeIncremental, 0)
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, model.StatusFailed, summary.Status)
	assert.Equal(t, model.PhaseFailed, summary.Phase)
	require.NotEmpty(t, summary.Errors)

	var run model.SyncRun
	require.NoError(t, h.First(&run, "run_uuid = ?", summary.RunUUID).Error)
	assert.Equal(t, model.StatusFailed, run.Status)
}

func TestRunSync_InvalidPropertyDeactivatesSite(t *testing.T) {
	client := newFakeClient(
		interfaces.Property{SiteURL: "sc-domain:revoked.example.com"},
	)
	client.errs["sc-domain:revoked.example.com"] = &gsc.Error{
		Kind: gsc.KindInvalidProperty, Site: "sc-domain:revoked.example.com", Err: errors.New("forbidden"),
	}

	svc, h := testSyncService(t, client)
	summary, err := svc.RunSync(context.Background(), model.ModeIncremental, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, summary.Status)

	var site model.Site
	require.NoError(t, h.First(&site, "url = ?", "sc-domain:revoked.example.com").Error)
	assert.False(t, site.IsActive)
}

func TestRunSync_FailedSiteRetriesRecordedRange(t *testing.T) {
	client := newFakeClient(
		interfaces.Property{SiteURL: "sc-domain:retry.example.com"},
		interfaces.Property{SiteURL: "sc-domain:fresh.example.com"},
	)
	svc, h := testSyncService(t, client)

	// 预置一次失败历史：该站点重试时沿用原区间，不推进水位
	site := &model.Site{URL: "sc-domain:retry.example.com", IsActive: true, AddedAt: time.Now()}
	require.NoError(t, h.Create(site).Error)
	prevRun := &model.SyncRun{RunUUID: "prev-run", Mode: model.ModeIncremental, StartedAt: time.Now(), Status: model.StatusPartial}
	require.NoError(t, h.Create(prevRun).Error)
	msg := "quota exceeded"
	require.NoError(t, h.Create(&model.SyncSiteLog{
		RunID:        prevRun.ID,
		SiteID:       site.ID,
		RangeStart:   day(2026, 8, 1),
		RangeEnd:     day(2026, 8, 10),
		StartedAt:    time.Now(),
		Status:       model.StatusFailed,
		ErrorMessage: &msg,
	}).Error)

	_, err := svc.RunSync(context.Background(), model.ModeIncremental, 0)
	require.NoError(t, err)

	retried := client.gotRanges["sc-domain:retry.example.com"]
	assert.Equal(t, "2026-08-01", retried[0].Format("2006-01-02"))
	assert.Equal(t, "2026-08-10", retried[1].Format("2006-01-02"))

	// 无历史的站点用默认区间
	fresh := client.gotRanges["sc-domain:fresh.example.com"]
	assert.Equal(t, "2026-08-21", fresh[0].Format("2006-01-02"))
	assert.Equal(t, "2026-08-28", fresh[1].Format("2006-01-02"))
}

func TestRunSync_RerunOverwritesRevisedRows(t *testing.T) {
	url := "sc-domain:a.example.com"
	client := newFakeClient(interfaces.Property{SiteURL: url})
	d := day(2026, 8, 28)
	client.rows[url] = []interfaces.MetricsRow{{Date: d, Keyword: "k", Page: "/p", Clicks: 2, Impressions: 20, CTR: 0.1, Position: 4}}

	svc, h := testSyncService(t, client)
	_, err := svc.RunSync(context.Background(), model.ModeIncremental, 0)
	require.NoError(t, err)

	// GSC修订了历史数据：同自然键后写覆盖先写
	client.rows[url] = []interfaces.MetricsRow{{Date: d, Keyword: "k", Page: "/p", Clicks: 5, Impressions: 50, CTR: 0.1, Position: 2}}
	_, err = svc.RunSync(context.Background(), model.ModeIncremental, 0)
	require.NoError(t, err)

	var rows []model.KeywordDaily
	require.NoError(t, h.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 5, rows[0].Clicks)
	assert.EqualValues(t, 50, rows[0].Impressions)

	var agg model.SiteDaily
	require.NoError(t, h.First(&agg).Error)
	assert.EqualValues(t, 5, agg.TotalClicks)
	assert.InDelta(t, 2.0, agg.AvgPosition, 1e-9)
}

func TestRunSync_ModeAndDaysDefaults(t *testing.T) {
	svc, _ := testSyncService(t, newFakeClient())

	summary, err := svc.RunSync(context.Background(), "bogus", 0)
	require.NoError(t, err)
	assert.Equal(t, model.ModeIncremental, summary.Mode)
	assert.Equal(t, 7, summary.Days)

	summary, err = svc.RunSync(context.Background(), model.ModeInitial, 0)
	require.NoError(t, err)
	assert.Equal(t, model.ModeInitial, summary.Mode)
	assert.Equal(t, 90, summary.Days)

	summary, err = svc.RunSync(context.Background(), model.ModeIncremental, 14)
	require.NoError(t, err)
	assert.Equal(t, 14, summary.Days)
}
