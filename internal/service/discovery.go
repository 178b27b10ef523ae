package service

import (
	"GSCSync/internal/interfaces"
	"GSCSync/internal/model"
	"GSCSync/internal/repository"
)

// BuildDiscoveryDiff 对账：把property列表与库内站点集合做diff（纯函数，入库由仓储事务完成）。
// 新property→Added；仍在列表的已有站点→Unchanged；激活但本次消失→Removed（只停用不删除）
func BuildDiscoveryDiff(existing []*model.Site, props []interfaces.Property) *repository.DiscoveryDiff {
	byURL := make(map[string]*model.Site, len(existing))
	for _, s := range existing {
		byURL[s.URL] = s
	}
	seen := make(map[string]bool, len(props))

	diff := &repository.DiscoveryDiff{}
	for _, p := range props {
		if seen[p.SiteURL] {
			continue // property列表重复项兜底
		}
		seen[p.SiteURL] = true
		if _, ok := byURL[p.SiteURL]; ok {
			diff.Unchanged = append(diff.Unchanged, p)
		} else {
			diff.Added = append(diff.Added, p)
		}
	}
	for _, s := range existing {
		if s.IsActive && !seen[s.URL] {
			diff.Removed = append(diff.Removed, s)
		}
	}
	return diff
}
