package interfaces

import (
	"context"
	"time"
)

// Property 服务账号可见的一个GSC property
type Property struct {
	SiteURL         string // sc-domain:example.com 或 https://example.com/
	PermissionLevel string // siteOwner/siteFullUser/siteRestrictedUser
}

// MetricsRow 单行指标数据（维度date/query/page）
type MetricsRow struct {
	Date        time.Time // 数据日期
	Keyword     string    // 搜索词
	Page        string    // 落地页URL
	Clicks      int64     // 点击数
	Impressions int64     // 展示数
	CTR         float64   // 点击率
	Position    float64   // 平均排名
}

// MetricsClient 外部搜索分析API的单次调用原语（不做批处理、不做限速）
type MetricsClient interface {
	// ListProperties 列出凭证可访问的全部property（发现阶段用）
	ListProperties(ctx context.Context) ([]Property, error)
	// FetchRange 拉取单站点指定日期区间的全部明细行（内部翻页）
	FetchRange(ctx context.Context, siteURL string, start, end time.Time) ([]MetricsRow, error)
}
