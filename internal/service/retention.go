package service

import (
	"context"
	"time"

	"GSCSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// RetentionService 保留期清理：删除超出保留窗口的明细与日汇总。
// 在聚合之后运行，不会删掉进行中聚合仍依赖的数据
type RetentionService struct {
	siteRepo    repository.SiteRepository
	metricsRepo repository.MetricsRepository
	logger      *logrus.Logger
}

// NewRetentionService 创建保留期清理服务
func NewRetentionService(siteRepo repository.SiteRepository, metricsRepo repository.MetricsRepository, logger *logrus.Logger) *RetentionService {
	return &RetentionService{siteRepo: siteRepo, metricsRepo: metricsRepo, logger: logger}
}

// Prune 删除query_date早于asOf−retentionDays的行。
// 按站点逐个清理，每站点一个事务：中途崩溃只会留下整站清理前或清理后的状态；
// 单站点失败不阻塞其余站点。返回总删除行数
func (s *RetentionService) Prune(ctx context.Context, retentionDays int, asOf time.Time) (int64, error) {
	cutoff := asOf.AddDate(0, 0, -retentionDays)

	sites, err := s.siteRepo.ListSites(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, site := range sites {
		n, err := s.metricsRepo.PruneOlderThan(ctx, site.ID, cutoff)
		if err != nil {
			s.logger.WithError(err).WithField("site", site.URL).Warn("保留期清理失败，跳过该站点")
			continue
		}
		total += n
	}
	if total > 0 {
		s.logger.Infof("保留期清理完成：删除%d行（早于%s）", total, cutoff.Format("2006-01-02"))
	}
	return total, nil
}
