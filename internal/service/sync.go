package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"GSCSync/internal/config"
	"GSCSync/internal/gsc"
	"GSCSync/internal/interfaces"
	"GSCSync/internal/model"
	"GSCSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SyncService 同步编排器：发现→同步→聚合→清理→收尾，
// 运行状态作为显式值在各阶段传递（非全局单例，可并发/可测试隔离）
type SyncService struct {
	client      interfaces.MetricsClient
	siteRepo    repository.SiteRepository
	metricsRepo repository.MetricsRepository
	logRepo     repository.SyncLogRepository
	aggregator  *AggregationService
	retention   *RetentionService
	batcher     *Batcher
	cfg         *config.SyncConfig
	logger      *logrus.Logger
	now         func() time.Time // 测试注入
}

// NewSyncService 创建同步编排器
func NewSyncService(db *gorm.DB, client interfaces.MetricsClient, cfg *config.Config, logger *logrus.Logger) *SyncService {
	siteRepo := repository.NewSiteRepository(db)
	metricsRepo := repository.NewMetricsRepository(db)
	return &SyncService{
		client:      client,
		siteRepo:    siteRepo,
		metricsRepo: metricsRepo,
		logRepo:     repository.NewSyncLogRepository(db),
		aggregator:  NewAggregationService(metricsRepo, logger),
		retention:   NewRetentionService(siteRepo, metricsRepo, logger),
		batcher:     NewBatcher(&cfg.Sync, logger),
		cfg:         &cfg.Sync,
		logger:      logger,
		now:         time.Now,
	}
}

// dateRange 单站点同步区间（闭区间，日粒度）
type dateRange struct {
	start time.Time
	end   time.Time
}

// RunSummary 一次运行的汇总结果（CLI与API共用）
type RunSummary struct {
	RunUUID         string         `json:"run_uuid"`
	Mode            string         `json:"mode"`
	Days            int            `json:"days"`
	Phase           model.RunPhase `json:"phase"`
	SitesDiscovered int            `json:"sites_discovered"`
	SitesSynced     int            `json:"sites_synced"`
	SitesFailed     int            `json:"sites_failed"`
	TotalRows       int64          `json:"total_rows"`
	RowsPruned      int64          `json:"rows_pruned"`
	Errors          []string       `json:"errors"`
	Status          string         `json:"status"`
}

// RunSync 执行一次端到端同步。days<=0时按mode取默认回溯天数。
// 站点级失败不升级为运行级失败；只有发现失败或存储不可达才返回error
func (s *SyncService) RunSync(ctx context.Context, mode string, days int) (*RunSummary, error) {
	if mode != model.ModeInitial {
		mode = model.ModeIncremental
	}
	if days <= 0 {
		if mode == model.ModeInitial {
			days = s.cfg.InitialDays
		} else {
			days = s.cfg.IncrementalDays
		}
	}

	run := &model.SyncRun{
		RunUUID:   uuid.NewString(),
		Mode:      mode,
		Days:      days,
		StartedAt: s.now(),
		Status:    model.StatusRunning,
	}
	if err := s.logRepo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("创建运行记录失败（存储不可达）: %w", err)
	}
	summary := &RunSummary{RunUUID: run.RunUUID, Mode: mode, Days: days, Phase: model.PhaseDiscovering}
	s.logger.Infof("同步开始：run=%s mode=%s days=%d", run.RunUUID, mode, days)

	// 阶段1：发现property并对账入库
	props, err := s.client.ListProperties(ctx)
	if err != nil {
		return s.failRun(ctx, run, summary, fmt.Errorf("property发现失败: %w", err))
	}
	existing, err := s.siteRepo.ListSites(ctx)
	if err != nil {
		return s.failRun(ctx, run, summary, fmt.Errorf("读取站点集合失败: %w", err))
	}
	diff := BuildDiscoveryDiff(existing, props)
	if err := s.siteRepo.ApplyDiscoveryDiff(ctx, diff); err != nil {
		return s.failRun(ctx, run, summary, fmt.Errorf("应用站点对账失败: %w", err))
	}
	active, err := s.siteRepo.ListActiveSites(ctx)
	if err != nil {
		return s.failRun(ctx, run, summary, fmt.Errorf("读取激活站点失败: %w", err))
	}
	summary.SitesDiscovered = len(active)
	s.logger.Infof("发现完成：新增%d，停用%d，激活站点%d", len(diff.Added), len(diff.Removed), len(active))

	// 每站点区间在批处理前一次算好（上次失败的站点用原区间重试，不推进水位）
	ranges := make(map[uint64]dateRange, len(active))
	for _, site := range active {
		ranges[site.ID] = s.rangeFor(ctx, site, days)
	}

	// 阶段2：限速批量同步
	summary.Phase = model.PhaseSyncing
	var mu sync.Mutex
	touched := make(map[SiteDate]struct{})

	work := func(ctx context.Context, site *model.Site) (int64, error) {
		r := ranges[site.ID]
		rows, err := s.client.FetchRange(ctx, site.URL, r.start, r.end)
		if err != nil {
			return 0, err
		}
		records := make([]*model.KeywordDaily, 0, len(rows))
		syncedAt := time.Now()
		for _, row := range rows {
			records = append(records, &model.KeywordDaily{
				SiteID:      site.ID,
				Keyword:     row.Keyword,
				Page:        row.Page,
				QueryDate:   row.Date,
				Clicks:      row.Clicks,
				Impressions: row.Impressions,
				CTR:         row.CTR,
				Position:    row.Position,
				SyncedAt:    syncedAt,
			})
		}
		n, err := s.metricsRepo.BulkUpsertKeywordDaily(ctx, records)
		if err != nil {
			return 0, gsc.StorageErr(site.URL, err)
		}
		mu.Lock()
		for _, rec := range records {
			touched[SiteDate{SiteID: site.ID, Date: rec.QueryDate.Format("2006-01-02")}] = struct{}{}
		}
		mu.Unlock()
		if err := s.siteRepo.UpdateLastSync(ctx, site.ID, time.Now()); err != nil {
			s.logger.WithError(err).WithField("site", site.URL).Warn("更新last_sync失败")
		}
		return n, nil
	}

	outcomes := s.batcher.Run(ctx, active, work)
	s.recordOutcomes(ctx, run, ranges, outcomes, summary)
	interrupted := len(outcomes) < len(active)

	// 阶段3：重算触达的(site, date)日汇总
	summary.Phase = model.PhaseAggregating
	s.aggregator.RecomputeTouched(ctx, touched)

	// 阶段4：保留期清理（聚合之后执行）
	summary.Phase = model.PhasePruning
	pruned, err := s.retention.Prune(ctx, s.cfg.RetentionDays, s.today())
	if err != nil {
		s.logger.WithError(err).Warn("保留期清理失败")
		summary.Errors = append(summary.Errors, fmt.Sprintf("prune: %v", err))
	}
	summary.RowsPruned = pruned

	// 收尾：任一站点失败或中途取消→partial，否则success
	status := model.StatusSuccess
	if summary.SitesFailed > 0 || len(summary.Errors) > 0 || interrupted {
		status = model.StatusPartial
	}
	s.finishRun(ctx, run, summary, status, pruned)
	summary.Phase = model.PhaseDone
	s.logger.Infof("同步完成：run=%s status=%s 成功%d 失败%d 写入%d行 清理%d行",
		run.RunUUID, status, summary.SitesSynced, summary.SitesFailed, summary.TotalRows, pruned)
	return summary, nil
}

// rangeFor 单站点同步区间：最近一条日志为failed时沿用其区间重试，
// 否则区间止于today−data_lag_days（GSC数据延迟发布），回溯days天
func (s *SyncService) rangeFor(ctx context.Context, site *model.Site, days int) dateRange {
	last, err := s.logRepo.LatestSiteLog(ctx, site.ID)
	if err == nil && last.Status == model.StatusFailed {
		return dateRange{start: last.RangeStart, end: last.RangeEnd}
	}
	end := s.today().AddDate(0, 0, -s.cfg.DataLagDays)
	return dateRange{start: end.AddDate(0, 0, -days), end: end}
}

// recordOutcomes 每站点追加一条SyncSiteLog（含终态，之后不再变更）并累计运行计数；
// 无权限/已移除的站点在此停用
func (s *SyncService) recordOutcomes(ctx context.Context, run *model.SyncRun, ranges map[uint64]dateRange, outcomes []SiteOutcome, summary *RunSummary) {
	for _, o := range outcomes {
		finished := o.FinishedAt
		r := ranges[o.Site.ID]
		l := &model.SyncSiteLog{
			RunID:       run.ID,
			SiteID:      o.Site.ID,
			RangeStart:  r.start,
			RangeEnd:    r.end,
			StartedAt:   o.StartedAt,
			FinishedAt:  &finished,
			Status:      o.Status,
			RowsWritten: o.RowsWritten,
		}
		if o.Err != nil {
			msg := o.Err.Error()
			l.ErrorMessage = &msg
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", o.Site.URL, o.Err))
			if gsc.KindOf(o.Err) == gsc.KindInvalidProperty {
				if err := s.siteRepo.DeactivateSite(ctx, o.Site.ID); err != nil {
					s.logger.WithError(err).WithField("site", o.Site.URL).Warn("停用站点失败")
				} else {
					s.logger.WithField("site", o.Site.URL).Info("站点无权限或已移除，已停用")
				}
			}
		}
		if err := s.logRepo.AppendSiteLog(ctx, l); err != nil {
			s.logger.WithError(err).WithField("site", o.Site.URL).Warn("写入站点同步日志失败")
		}

		if o.Status == model.StatusSuccess {
			summary.SitesSynced++
			summary.TotalRows += o.RowsWritten
		} else {
			summary.SitesFailed++
		}
	}
}

// finishRun 写入运行终态（失败也只警告，不影响返回结果）
func (s *SyncService) finishRun(ctx context.Context, run *model.SyncRun, summary *RunSummary, status string, pruned int64) {
	completed := s.now()
	run.CompletedAt = &completed
	run.SitesSynced = summary.SitesSynced
	run.SitesFailed = summary.SitesFailed
	run.TotalRows = summary.TotalRows
	run.RowsPruned = pruned
	run.Status = status
	if len(summary.Errors) > 0 {
		if b, err := json.Marshal(summary.Errors); err == nil {
			run.Errors = datatypes.JSON(b)
		}
	}
	if err := s.logRepo.FinishRun(ctx, run); err != nil {
		s.logger.WithError(err).Warn("写入运行终态失败")
	}
	summary.Status = status
}

// failRun 灾难性失败（发现失败/存储不可达）：运行记为failed并返回error
func (s *SyncService) failRun(ctx context.Context, run *model.SyncRun, summary *RunSummary, cause error) (*RunSummary, error) {
	s.logger.WithError(cause).Error("同步运行灾难性失败")
	summary.Errors = append(summary.Errors, cause.Error())
	s.finishRun(ctx, run, summary, model.StatusFailed, 0)
	summary.Phase = model.PhaseFailed
	return summary, cause
}

// today 当前日期（UTC日粒度归一化）
func (s *SyncService) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
