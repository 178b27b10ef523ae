package repository

import (
	"context"
	"fmt"
	"time"

	"GSCSync/internal/interfaces"
	"GSCSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DiscoveryDiff 发现阶段对账结果（新增/不变/已消失）
type DiscoveryDiff struct {
	Added     []interfaces.Property // 首次出现的property
	Unchanged []interfaces.Property // 仍在列表中的已有站点
	Removed   []*model.Site         // 已激活但本次列表中消失的站点
}

// SiteRepository 站点仓储
type SiteRepository interface {
	// ApplyDiscoveryDiff 在单事务内应用对账结果：upsert新增与不变站点，停用消失站点
	ApplyDiscoveryDiff(ctx context.Context, diff *DiscoveryDiff) error
	// ListActiveSites 按URL排序返回全部激活站点
	ListActiveSites(ctx context.Context) ([]*model.Site, error)
	// ListSites 返回全部站点（含停用）
	ListSites(ctx context.Context) ([]*model.Site, error)
	// GetSiteByID 按主键查询站点
	GetSiteByID(ctx context.Context, siteID uint64) (*model.Site, error)
	// UpdateLastSync 更新站点最近成功同步时间
	UpdateLastSync(ctx context.Context, siteID uint64, t time.Time) error
	// DeactivateSite 停用站点（property被移除或无权限时）
	DeactivateSite(ctx context.Context, siteID uint64) error
}

type siteRepository struct {
	db *gorm.DB
}

// NewSiteRepository 创建SiteRepository实例
func NewSiteRepository(db *gorm.DB) SiteRepository {
	return &siteRepository{db: db}
}

// ApplyDiscoveryDiff 单事务应用对账结果（站点只停用不删除）
func (r *siteRepository) ApplyDiscoveryDiff(ctx context.Context, diff *DiscoveryDiff) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := func(p interfaces.Property) error {
			site := &model.Site{
				URL:             p.SiteURL,
				PermissionLevel: p.PermissionLevel,
				IsActive:        true,
				AddedAt:         time.Now(),
			}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "url"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"permission_level": p.PermissionLevel,
					"is_active":        true,
					"updated_at":       time.Now(),
				}),
			}).Create(site).Error
		}

		for _, p := range diff.Added {
			if err := upsert(p); err != nil {
				return fmt.Errorf("新增站点失败: %w, url: %s", err, p.SiteURL)
			}
		}
		for _, p := range diff.Unchanged {
			if err := upsert(p); err != nil {
				return fmt.Errorf("更新站点失败: %w, url: %s", err, p.SiteURL)
			}
		}
		for _, s := range diff.Removed {
			if err := tx.Model(&model.Site{}).
				Where("id = ?", s.ID).
				Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error; err != nil {
				return fmt.Errorf("停用站点失败: %w, url: %s", err, s.URL)
			}
		}
		return nil
	})
}

// ListActiveSites 按URL排序返回全部激活站点
func (r *siteRepository) ListActiveSites(ctx context.Context) ([]*model.Site, error) {
	var sites []*model.Site
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("url ASC").
		Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

// ListSites 返回全部站点
func (r *siteRepository) ListSites(ctx context.Context) ([]*model.Site, error) {
	var sites []*model.Site
	if err := r.db.WithContext(ctx).Order("url ASC").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

// GetSiteByID 按主键查询站点
func (r *siteRepository) GetSiteByID(ctx context.Context, siteID uint64) (*model.Site, error) {
	var site model.Site
	if err := r.db.WithContext(ctx).Where("id = ?", siteID).First(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

// UpdateLastSync 更新站点最近成功同步时间
func (r *siteRepository) UpdateLastSync(ctx context.Context, siteID uint64, t time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Site{}).
		Where("id = ?", siteID).
		Updates(map[string]interface{}{"last_sync": t, "updated_at": time.Now()}).Error
}

// DeactivateSite 停用站点
func (r *siteRepository) DeactivateSite(ctx context.Context, siteID uint64) error {
	return r.db.WithContext(ctx).Model(&model.Site{}).
		Where("id = ?", siteID).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}
