package service

import (
	"context"
	"fmt"
	"time"

	"GSCSync/internal/model"
	"GSCSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// SiteDate 聚合重算的键（日期按天归一化为字符串，避免时区/时刻差异拆键）
type SiteDate struct {
	SiteID uint64
	Date   string // 2006-01-02
}

// AggregationService 日汇总服务：对受影响的(site, date)从明细整体重算（不做增量修补，避免漂移）
type AggregationService struct {
	metricsRepo repository.MetricsRepository
	logger      *logrus.Logger
}

// NewAggregationService 创建日汇总服务
func NewAggregationService(metricsRepo repository.MetricsRepository, logger *logrus.Logger) *AggregationService {
	return &AggregationService{metricsRepo: metricsRepo, logger: logger}
}

// Recompute 重算单(site, date)日汇总并整行替换；输入不变时输出逐字节一致（幂等）。
// 明细已全部消失时删除对应汇总行，保证汇总不引用已删除日期
func (s *AggregationService) Recompute(ctx context.Context, siteID uint64, date time.Time) error {
	rows, err := s.metricsRepo.ListKeywordDaily(ctx, siteID, date)
	if err != nil {
		return fmt.Errorf("读取明细失败: %w", err)
	}
	if len(rows) == 0 {
		return s.metricsRepo.DeleteSiteDaily(ctx, siteID, date)
	}
	return s.metricsRepo.ReplaceSiteDaily(ctx, computeDaily(siteID, date, rows))
}

// RecomputeTouched 对本次运行触达的全部(site, date)重算；单键失败不阻塞其余键
func (s *AggregationService) RecomputeTouched(ctx context.Context, touched map[SiteDate]struct{}) int {
	recomputed := 0
	for key := range touched {
		date, err := time.Parse("2006-01-02", key.Date)
		if err != nil {
			s.logger.WithField("date", key.Date).Warn("聚合键日期非法，跳过")
			continue
		}
		if err := s.Recompute(ctx, key.SiteID, date); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"site_id": key.SiteID,
				"date":    key.Date,
			}).Warn("日汇总重算失败")
			continue
		}
		recomputed++
	}
	if recomputed > 0 {
		s.logger.Infof("日汇总重算完成：%d个(site, date)", recomputed)
	}
	return recomputed
}

// computeDaily 纯计算：总点击/总展示求和，CTR=总点击/总展示，
// 排名按展示加权平均（小流量词不扭曲整体排名），无展示时两者为0
func computeDaily(siteID uint64, date time.Time, rows []*model.KeywordDaily) *model.SiteDaily {
	var totalClicks, totalImpressions int64
	var weightedPosition float64
	keywords := make(map[string]bool, len(rows))

	for _, r := range rows {
		totalClicks += r.Clicks
		totalImpressions += r.Impressions
		weightedPosition += r.Position * float64(r.Impressions)
		keywords[r.Keyword] = true
	}

	agg := &model.SiteDaily{
		SiteID:           siteID,
		QueryDate:        date,
		TotalClicks:      totalClicks,
		TotalImpressions: totalImpressions,
		KeywordCount:     int64(len(keywords)),
	}
	if totalImpressions > 0 {
		agg.AvgCTR = float64(totalClicks) / float64(totalImpressions)
		agg.AvgPosition = weightedPosition / float64(totalImpressions)
	}
	return agg
}
