package repository

import (
	"context"

	"GSCSync/internal/model"

	"gorm.io/gorm"
)

// SyncLogRepository 同步运行与站点日志仓储
type SyncLogRepository interface {
	// CreateRun 创建运行记录（status=running）
	CreateRun(ctx context.Context, run *model.SyncRun) error
	// FinishRun 写入运行终态（仅结束时更新一次）
	FinishRun(ctx context.Context, run *model.SyncRun) error
	// AppendSiteLog 追加单站点日志（带终态一次写入，之后不再变更）
	AppendSiteLog(ctx context.Context, l *model.SyncSiteLog) error
	// LatestSiteLog 站点最近一条日志（失败重试范围判定用）；无记录返回gorm.ErrRecordNotFound
	LatestSiteLog(ctx context.Context, siteID uint64) (*model.SyncSiteLog, error)
	// ListRuns 最近的运行记录
	ListRuns(ctx context.Context, limit int) ([]*model.SyncRun, error)
	// ListSiteLogsByRun 单次运行的全部站点日志
	ListSiteLogsByRun(ctx context.Context, runID uint64) ([]*model.SyncSiteLog, error)
}

type syncLogRepository struct {
	db *gorm.DB
}

// NewSyncLogRepository 创建SyncLogRepository实例
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) CreateRun(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// FinishRun 写入运行终态
func (r *syncLogRepository) FinishRun(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Model(&model.SyncRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"completed_at": run.CompletedAt,
			"sites_synced": run.SitesSynced,
			"sites_failed": run.SitesFailed,
			"total_rows":   run.TotalRows,
			"rows_pruned":  run.RowsPruned,
			"errors":       run.Errors,
			"status":       run.Status,
		}).Error
}

func (r *syncLogRepository) AppendSiteLog(ctx context.Context, l *model.SyncSiteLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// LatestSiteLog 站点最近一条日志
func (r *syncLogRepository) LatestSiteLog(ctx context.Context, siteID uint64) (*model.SyncSiteLog, error) {
	var l model.SyncSiteLog
	if err := r.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("id DESC").
		First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// ListRuns 最近的运行记录
func (r *syncLogRepository) ListRuns(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []*model.SyncRun
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ListSiteLogsByRun 单次运行的全部站点日志
func (r *syncLogRepository) ListSiteLogsByRun(ctx context.Context, runID uint64) ([]*model.SyncSiteLog, error) {
	var logs []*model.SyncSiteLog
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
