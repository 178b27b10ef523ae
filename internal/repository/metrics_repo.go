package repository

import (
	"context"
	"sort"
	"time"

	"GSCSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OverviewRow 站点概览视图（查询边界给前端用的轻量结构，避免在外层依赖gorm标签）
type OverviewRow struct {
	SiteID       uint64     `json:"site_id"`
	URL          string     `json:"url"`
	LastSync     *time.Time `json:"last_sync"`
	Clicks       int64      `json:"clicks"`
	Impressions  int64      `json:"impressions"`
	CTR          float64    `json:"ctr"`
	AvgPosition  float64    `json:"avg_position"`
	KeywordCount int64      `json:"keyword_count"`
}

// TrendPoint 日趋势视图
type TrendPoint struct {
	QueryDate        time.Time `json:"query_date"`
	TotalClicks      int64     `json:"total_clicks"`
	TotalImpressions int64     `json:"total_impressions"`
	AvgCTR           float64   `json:"avg_ctr"`
	AvgPosition      float64   `json:"avg_position"`
	KeywordCount     int64     `json:"keyword_count"`
}

// KeywordStatRow 关键词分析视图（机会词/低CTR词共用），按(site, keyword)聚合
type KeywordStatRow struct {
	SiteURL     string  `json:"site_url"`
	Keyword     string  `json:"keyword"`
	Page        string  `json:"page"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	CTR         float64 `json:"ctr"`
	AvgPosition float64 `json:"avg_position"`
}

// MoverRow 周环比涨跌关键词（pos_change>0为排名上升）
type MoverRow struct {
	SiteURL            string  `json:"site_url"`
	Keyword            string  `json:"keyword"`
	CurrentPos         float64 `json:"current_pos"`
	PrevPos            float64 `json:"prev_pos"`
	PosChange          float64 `json:"pos_change"`
	CurrentClicks      int64   `json:"current_clicks"`
	PrevClicks         int64   `json:"prev_clicks"`
	ClickChange        int64   `json:"click_change"`
	CurrentImpressions int64   `json:"current_impressions"`
}

// MoverLists 涨跌榜（各取前limit名）
type MoverLists struct {
	Winners []*MoverRow `json:"winners"`
	Losers  []*MoverRow `json:"losers"`
}

// MetricsRepository 指标明细与日汇总仓储
type MetricsRepository interface {
	// BulkUpsertKeywordDaily 按自然键(site_id, keyword, page, query_date)批量upsert，单事务
	BulkUpsertKeywordDaily(ctx context.Context, rows []*model.KeywordDaily) (int64, error)
	// ListKeywordDaily 查询单(site, date)的全部明细行（聚合重算用）
	ListKeywordDaily(ctx context.Context, siteID uint64, date time.Time) ([]*model.KeywordDaily, error)
	// ReplaceSiteDaily 按(site_id, query_date)整行替换日汇总
	ReplaceSiteDaily(ctx context.Context, agg *model.SiteDaily) error
	// DeleteSiteDaily 删除单(site, date)的日汇总（原始行已清空时）
	DeleteSiteDaily(ctx context.Context, siteID uint64, date time.Time) error
	// ListSiteDaily 按日期区间查询站点日汇总
	ListSiteDaily(ctx context.Context, siteID uint64, from, to time.Time) ([]*model.SiteDaily, error)
	// PruneOlderThan 单事务删除站点cutoff之前的明细与汇总行，返回删除行数
	PruneOlderThan(ctx context.Context, siteID uint64, cutoff time.Time) (int64, error)
	// Overview 最近days天每站点汇总（展示加权排名）
	Overview(ctx context.Context, days int, asOf time.Time) ([]*OverviewRow, error)
	// SiteTrends 单站点最近days天日趋势
	SiteTrends(ctx context.Context, siteID uint64, days int, asOf time.Time) ([]*TrendPoint, error)
	// AllTrends 全部站点合并的日趋势
	AllTrends(ctx context.Context, days int, asOf time.Time) ([]*TrendPoint, error)
	// Opportunities 加权排名落在[minPos, maxPos]的关键词（接近首页的潜力词）
	Opportunities(ctx context.Context, minPos, maxPos float64, days, limit int, asOf time.Time) ([]*KeywordStatRow, error)
	// Movers 最近days天与上一个days天窗口对比，排名变化超过1位的关键词涨跌榜
	Movers(ctx context.Context, days, limit int, asOf time.Time) (*MoverLists, error)
	// LowCTR 展示不低于minImpressions且点击率不高于maxCTR的关键词
	LowCTR(ctx context.Context, days int, minImpressions int64, maxCTR float64, limit int, asOf time.Time) ([]*KeywordStatRow, error)
}

type metricsRepository struct {
	db *gorm.DB
}

// NewMetricsRepository 创建MetricsRepository实例
func NewMetricsRepository(db *gorm.DB) MetricsRepository {
	return &metricsRepository{db: db}
}

// BulkUpsertKeywordDaily 批量upsert明细行（同键后写覆盖先写）
func (r *metricsRepository) BulkUpsertKeywordDaily(ctx context.Context, rows []*model.KeywordDaily) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "site_id"}, {Name: "keyword"}, {Name: "page"}, {Name: "query_date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"clicks", "impressions", "ctr", "position", "synced_at"}),
		}).CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// ListKeywordDaily 查询单(site, date)的全部明细行
func (r *metricsRepository) ListKeywordDaily(ctx context.Context, siteID uint64, date time.Time) ([]*model.KeywordDaily, error) {
	var rows []*model.KeywordDaily
	if err := r.db.WithContext(ctx).
		Where("site_id = ? AND query_date = ?", siteID, date).
		Order("keyword ASC, page ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceSiteDaily 按(site_id, query_date)整行替换日汇总
func (r *metricsRepository) ReplaceSiteDaily(ctx context.Context, agg *model.SiteDaily) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "site_id"}, {Name: "query_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_clicks", "total_impressions", "avg_ctr", "avg_position", "keyword_count",
		}),
	}).Create(agg).Error
}

// DeleteSiteDaily 删除单(site, date)的日汇总
func (r *metricsRepository) DeleteSiteDaily(ctx context.Context, siteID uint64, date time.Time) error {
	return r.db.WithContext(ctx).
		Where("site_id = ? AND query_date = ?", siteID, date).
		Delete(&model.SiteDaily{}).Error
}

// ListSiteDaily 按日期区间查询站点日汇总
func (r *metricsRepository) ListSiteDaily(ctx context.Context, siteID uint64, from, to time.Time) ([]*model.SiteDaily, error) {
	var rows []*model.SiteDaily
	if err := r.db.WithContext(ctx).
		Where("site_id = ? AND query_date >= ? AND query_date <= ?", siteID, from, to).
		Order("query_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PruneOlderThan 单事务删除站点cutoff之前的明细与汇总行。
// 明细与汇总同事务删除，读端不会看到半清理的日期
func (r *metricsRepository) PruneOlderThan(ctx context.Context, siteID uint64, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("site_id = ? AND query_date < ?", siteID, cutoff).Delete(&model.KeywordDaily{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		res = tx.Where("site_id = ? AND query_date < ?", siteID, cutoff).Delete(&model.SiteDaily{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Overview 最近days天每站点汇总（排名按展示加权，小流量词不扭曲整体排名）
func (r *metricsRepository) Overview(ctx context.Context, days int, asOf time.Time) ([]*OverviewRow, error) {
	if days <= 0 {
		days = 28
	}
	cutoff := asOf.AddDate(0, 0, -days)
	var rows []*OverviewRow
	if err := r.db.WithContext(ctx).Model(&model.Site{}).
		Select(`sites.id AS site_id, sites.url, sites.last_sync,
			COALESCE(SUM(site_daily.total_clicks), 0) AS clicks,
			COALESCE(SUM(site_daily.total_impressions), 0) AS impressions,
			CASE WHEN COALESCE(SUM(site_daily.total_impressions), 0) > 0
			     THEN SUM(site_daily.total_clicks) * 1.0 / SUM(site_daily.total_impressions)
			     ELSE 0 END AS ctr,
			CASE WHEN COALESCE(SUM(site_daily.total_impressions), 0) > 0
			     THEN SUM(site_daily.avg_position * site_daily.total_impressions) / SUM(site_daily.total_impressions)
			     ELSE 0 END AS avg_position,
			COALESCE(MAX(site_daily.keyword_count), 0) AS keyword_count`).
		Joins("LEFT JOIN site_daily ON site_daily.site_id = sites.id AND site_daily.query_date >= ?", cutoff).
		Group("sites.id").
		Order("clicks DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SiteTrends 单站点最近days天日趋势
func (r *metricsRepository) SiteTrends(ctx context.Context, siteID uint64, days int, asOf time.Time) ([]*TrendPoint, error) {
	if days <= 0 {
		days = 90
	}
	cutoff := asOf.AddDate(0, 0, -days)
	var rows []*TrendPoint
	if err := r.db.WithContext(ctx).Model(&model.SiteDaily{}).
		Select("query_date, total_clicks, total_impressions, avg_ctr, avg_position, keyword_count").
		Where("site_id = ? AND query_date >= ?", siteID, cutoff).
		Order("query_date ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AllTrends 全部站点合并的日趋势（同样按展示加权）
func (r *metricsRepository) AllTrends(ctx context.Context, days int, asOf time.Time) ([]*TrendPoint, error) {
	if days <= 0 {
		days = 90
	}
	cutoff := asOf.AddDate(0, 0, -days)
	var rows []*TrendPoint
	if err := r.db.WithContext(ctx).Model(&model.SiteDaily{}).
		Select(`query_date,
			SUM(total_clicks) AS total_clicks,
			SUM(total_impressions) AS total_impressions,
			CASE WHEN SUM(total_impressions) > 0
			     THEN SUM(total_clicks) * 1.0 / SUM(total_impressions)
			     ELSE 0 END AS avg_ctr,
			CASE WHEN SUM(total_impressions) > 0
			     THEN SUM(avg_position * total_impressions) / SUM(total_impressions)
			     ELSE 0 END AS avg_position,
			SUM(keyword_count) AS keyword_count`).
		Where("query_date >= ?", cutoff).
		Group("query_date").
		Order("query_date ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Opportunities 排名8-20段的潜力关键词（默认值），按(site, keyword)加权聚合
func (r *metricsRepository) Opportunities(ctx context.Context, minPos, maxPos float64, days, limit int, asOf time.Time) ([]*KeywordStatRow, error) {
	if days <= 0 {
		days = 28
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	cutoff := asOf.AddDate(0, 0, -days)
	var rows []*KeywordStatRow
	if err := r.db.WithContext(ctx).Model(&model.KeywordDaily{}).
		Select(`sites.url AS site_url, keyword_daily.keyword,
			MIN(keyword_daily.page) AS page,
			SUM(keyword_daily.clicks) AS clicks,
			SUM(keyword_daily.impressions) AS impressions,
			CASE WHEN SUM(keyword_daily.impressions) > 0
			     THEN SUM(keyword_daily.clicks) * 1.0 / SUM(keyword_daily.impressions)
			     ELSE 0 END AS ctr,
			CASE WHEN SUM(keyword_daily.impressions) > 0
			     THEN SUM(keyword_daily.position * keyword_daily.impressions) / SUM(keyword_daily.impressions)
			     ELSE 0 END AS avg_position`).
		Joins("JOIN sites ON sites.id = keyword_daily.site_id").
		Where("keyword_daily.query_date >= ?", cutoff).
		Group("keyword_daily.site_id, keyword_daily.keyword, sites.url").
		Having(`CASE WHEN SUM(keyword_daily.impressions) > 0
			     THEN SUM(keyword_daily.position * keyword_daily.impressions) / SUM(keyword_daily.impressions)
			     ELSE 0 END BETWEEN ? AND ?`, minPos, maxPos).
		Order("impressions DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// moversQuery 本窗口与上一窗口各自按(site, keyword)加权聚合后join，
// 排名变化超过1位才进入榜单（小于1位的抖动视为噪声）
const moversQuery = `
WITH this_window AS (
	SELECT site_id, keyword,
	       CASE WHEN SUM(impressions) > 0
	            THEN SUM(position * impressions) / SUM(impressions)
	            ELSE 0 END AS avg_pos,
	       SUM(clicks) AS clicks,
	       SUM(impressions) AS impressions
	FROM keyword_daily
	WHERE query_date >= ?
	GROUP BY site_id, keyword
),
prev_window AS (
	SELECT site_id, keyword,
	       CASE WHEN SUM(impressions) > 0
	            THEN SUM(position * impressions) / SUM(impressions)
	            ELSE 0 END AS avg_pos,
	       SUM(clicks) AS clicks,
	       SUM(impressions) AS impressions
	FROM keyword_daily
	WHERE query_date >= ? AND query_date < ?
	GROUP BY site_id, keyword
)
SELECT sites.url AS site_url, tw.keyword,
       tw.avg_pos AS current_pos, pw.avg_pos AS prev_pos,
       pw.avg_pos - tw.avg_pos AS pos_change,
       tw.clicks AS current_clicks, pw.clicks AS prev_clicks,
       tw.clicks - pw.clicks AS click_change,
       tw.impressions AS current_impressions
FROM this_window tw
JOIN prev_window pw ON pw.site_id = tw.site_id AND pw.keyword = tw.keyword
JOIN sites ON sites.id = tw.site_id
WHERE ABS(pw.avg_pos - tw.avg_pos) > 1
ORDER BY pos_change DESC
LIMIT ?`

// Movers 周环比涨跌榜：排名数值变小为上升（pos_change>0），变大为下降
func (r *metricsRepository) Movers(ctx context.Context, days, limit int, asOf time.Time) (*MoverLists, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	thisStart := asOf.AddDate(0, 0, -days)
	prevStart := asOf.AddDate(0, 0, -days*2)

	var rows []*MoverRow
	if err := r.db.WithContext(ctx).
		Raw(moversQuery, thisStart, prevStart, thisStart, limit*2).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	result := &MoverLists{}
	for _, row := range rows {
		if row.PosChange > 0 && len(result.Winners) < limit {
			result.Winners = append(result.Winners, row)
		} else if row.PosChange < 0 {
			result.Losers = append(result.Losers, row)
		}
	}
	sort.Slice(result.Losers, func(i, j int) bool {
		return result.Losers[i].PosChange < result.Losers[j].PosChange
	})
	if len(result.Losers) > limit {
		result.Losers = result.Losers[:limit]
	}
	return result, nil
}

// LowCTR 高展示低点击率的关键词（标题/描述优化候选）
func (r *metricsRepository) LowCTR(ctx context.Context, days int, minImpressions int64, maxCTR float64, limit int, asOf time.Time) ([]*KeywordStatRow, error) {
	if days <= 0 {
		days = 28
	}
	if minImpressions <= 0 {
		minImpressions = 100
	}
	if maxCTR <= 0 {
		maxCTR = 0.02
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	cutoff := asOf.AddDate(0, 0, -days)
	var rows []*KeywordStatRow
	if err := r.db.WithContext(ctx).Model(&model.KeywordDaily{}).
		Select(`sites.url AS site_url, keyword_daily.keyword,
			MIN(keyword_daily.page) AS page,
			SUM(keyword_daily.clicks) AS clicks,
			SUM(keyword_daily.impressions) AS impressions,
			CASE WHEN SUM(keyword_daily.impressions) > 0
			     THEN SUM(keyword_daily.clicks) * 1.0 / SUM(keyword_daily.impressions)
			     ELSE 0 END AS ctr,
			CASE WHEN SUM(keyword_daily.impressions) > 0
			     THEN SUM(keyword_daily.position * keyword_daily.impressions) / SUM(keyword_daily.impressions)
			     ELSE 0 END AS avg_position`).
		Joins("JOIN sites ON sites.id = keyword_daily.site_id").
		Where("keyword_daily.query_date >= ?", cutoff).
		Group("keyword_daily.site_id, keyword_daily.keyword, sites.url").
		Having(`SUM(keyword_daily.impressions) >= ? AND
			CASE WHEN SUM(keyword_daily.impressions) > 0
			     THEN SUM(keyword_daily.clicks) * 1.0 / SUM(keyword_daily.impressions)
			     ELSE 0 END <= ?`, minImpressions, maxCTR).
		Order("impressions DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
