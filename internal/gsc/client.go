package gsc

import (
	"context"
	"fmt"
	"time"

	"GSCSync/internal/config"
	"GSCSync/internal/interfaces"
	"GSCSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	searchconsole "google.golang.org/api/searchconsole/v1"
)

const dateLayout = "2006-01-02"

// Client Search Console API客户端（单次调用原语，批处理与限速在service层）
type Client struct {
	cfg    *config.GSCConfig
	svc    *searchconsole.Service
	logger *logrus.Logger
}

// NewClient 用服务账号凭证创建GSC客户端。
// 底层transport用自建HTTP客户端（代理/超时/gzip），通过oauth2.HTTPClient注入
func NewClient(ctx context.Context, cfg *config.GSCConfig, logger *logrus.Logger) (interfaces.MetricsClient, error) {
	base := httpclient.NewHTTPClient(cfg, logger)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	svc, err := searchconsole.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(searchconsole.WebmastersReadonlyScope),
	)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Err: fmt.Errorf("创建GSC服务失败: %w", err)}
	}

	return &Client{cfg: cfg, svc: svc, logger: logger}, nil
}

// ListProperties 列出服务账号可访问的全部property
func (c *Client) ListProperties(ctx context.Context) ([]interfaces.Property, error) {
	resp, err := c.svc.Sites.List().Context(ctx).Do()
	if err != nil {
		return nil, Classify("", err)
	}

	props := make([]interfaces.Property, 0, len(resp.SiteEntry))
	for _, entry := range resp.SiteEntry {
		props = append(props, interfaces.Property{
			SiteURL:         entry.SiteUrl,
			PermissionLevel: entry.PermissionLevel,
		})
	}
	c.logger.Infof("发现%d个GSC property", len(props))
	return props, nil
}

// FetchRange 拉取单站点日期区间内全部明细行（维度date/query/page，内部按startRow翻页）
func (c *Client) FetchRange(ctx context.Context, siteURL string, start, end time.Time) ([]interfaces.MetricsRow, error) {
	var allRows []interfaces.MetricsRow
	var startRow int64

	for {
		req := &searchconsole.SearchAnalyticsQueryRequest{
			StartDate:  start.Format(dateLayout),
			EndDate:    end.Format(dateLayout),
			Dimensions: []string{"date", "query", "page"},
			RowLimit:   c.cfg.MaxRowsPerQuery,
			StartRow:   startRow,
		}

		resp, err := c.svc.Searchanalytics.Query(siteURL, req).Context(ctx).Do()
		if err != nil {
			return nil, Classify(siteURL, err)
		}
		if len(resp.Rows) == 0 {
			break
		}

		for _, row := range resp.Rows {
			converted, ok := c.convertRow(siteURL, row)
			if !ok {
				continue
			}
			allRows = append(allRows, converted)
		}

		startRow += int64(len(resp.Rows))
		if int64(len(resp.Rows)) < c.cfg.MaxRowsPerQuery {
			break
		}
	}

	return allRows, nil
}

// convertRow 单行转换与清洗：保证 impressions ≥ clicks ≥ 0，CTR按本地数据重算
func (c *Client) convertRow(siteURL string, row *searchconsole.ApiDataRow) (interfaces.MetricsRow, bool) {
	if len(row.Keys) < 3 {
		c.logger.WithField("site", siteURL).Warn("GSC返回行维度不足，跳过")
		return interfaces.MetricsRow{}, false
	}
	d, err := time.Parse(dateLayout, row.Keys[0])
	if err != nil {
		c.logger.WithError(err).WithField("site", siteURL).Warn("GSC返回行日期解析失败，跳过")
		return interfaces.MetricsRow{}, false
	}

	clicks := int64(row.Clicks)
	impressions := int64(row.Impressions)
	if clicks < 0 {
		clicks = 0
	}
	if impressions < clicks {
		impressions = clicks
	}
	ctr := 0.0
	if impressions > 0 {
		ctr = float64(clicks) / float64(impressions)
	}
	position := row.Position
	if position < 0 {
		position = 0
	}

	return interfaces.MetricsRow{
		Date:        d,
		Keyword:     row.Keys[1],
		Page:        row.Keys[2],
		Clicks:      clicks,
		Impressions: impressions,
		CTR:         ctr,
		Position:    position,
	}, true
}
