package model

import (
	"time"

	"gorm.io/datatypes"
)

// Site GSC站点（由服务账号可见的property自动发现，只停用不删除）
type Site struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	URL             string     `gorm:"column:url;type:varchar(512);uniqueIndex;not null;comment:站点URL（sc-domain:或URL前缀）"`
	PermissionLevel string     `gorm:"column:permission_level;type:varchar(64);comment:服务账号权限级别"`
	IsActive        bool       `gorm:"column:is_active;type:boolean;default:true;comment:是否仍在property列表中"`
	AddedAt         time.Time  `gorm:"column:added_at;type:timestamp;default:now();comment:首次发现时间"`
	LastSync        *time.Time `gorm:"column:last_sync;type:timestamp;comment:最近一次成功同步时间"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// KeywordDaily 关键词日粒度明细，自然键(site_id, keyword, page, query_date)。
// GSC会在滚动窗口内修订历史数据，同键后写覆盖先写
type KeywordDaily struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	SiteID      uint64    `gorm:"column:site_id;type:bigint;not null;uniqueIndex:uk_site_kw_page_date;index:idx_kw_site_date;comment:关联站点ID"`
	Keyword     string    `gorm:"column:keyword;type:varchar(512);not null;uniqueIndex:uk_site_kw_page_date;comment:搜索词"`
	Page        string    `gorm:"column:page;type:varchar(1024);uniqueIndex:uk_site_kw_page_date;comment:落地页URL"`
	QueryDate   time.Time `gorm:"column:query_date;type:date;not null;uniqueIndex:uk_site_kw_page_date;index:idx_kw_site_date;comment:数据日期"`
	Clicks      int64     `gorm:"column:clicks;type:bigint;default:0;comment:点击数"`
	Impressions int64     `gorm:"column:impressions;type:bigint;default:0;comment:展示数"`
	CTR         float64   `gorm:"column:ctr;type:numeric(10,6);default:0;comment:点击率=clicks/impressions"`
	Position    float64   `gorm:"column:position;type:numeric(10,4);default:0;comment:平均排名（1为首位）"`
	SyncedAt    time.Time `gorm:"column:synced_at;type:timestamp;default:now();comment:入库时间"`
}

// SiteDaily 站点日汇总，完全由KeywordDaily推导，按(site_id, query_date)整行替换
type SiteDaily struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	SiteID           uint64    `gorm:"column:site_id;type:bigint;not null;uniqueIndex:uk_site_date;comment:关联站点ID"`
	QueryDate        time.Time `gorm:"column:query_date;type:date;not null;uniqueIndex:uk_site_date;comment:数据日期"`
	TotalClicks      int64     `gorm:"column:total_clicks;type:bigint;default:0;comment:总点击数"`
	TotalImpressions int64     `gorm:"column:total_impressions;type:bigint;default:0;comment:总展示数"`
	AvgCTR           float64   `gorm:"column:avg_ctr;type:numeric(10,6);default:0;comment:汇总点击率"`
	AvgPosition      float64   `gorm:"column:avg_position;type:numeric(10,4);default:0;comment:展示加权平均排名（无展示时为0）"`
	KeywordCount     int64     `gorm:"column:keyword_count;type:bigint;default:0;comment:当日去重关键词数"`
}

// SyncRun 一次同步运行的汇总记录
type SyncRun struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RunUUID     string         `gorm:"column:run_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一运行ID"`
	Mode        string         `gorm:"column:mode;type:varchar(16);not null;comment:运行模式：initial/incremental"`
	Days        int            `gorm:"column:days;type:int;default:0;comment:回溯天数"`
	StartedAt   time.Time      `gorm:"column:started_at;type:timestamp;not null;comment:开始时间"`
	CompletedAt *time.Time     `gorm:"column:completed_at;type:timestamp;comment:结束时间"`
	SitesSynced int            `gorm:"column:sites_synced;type:int;default:0;comment:成功站点数"`
	SitesFailed int            `gorm:"column:sites_failed;type:int;default:0;comment:失败站点数"`
	TotalRows   int64          `gorm:"column:total_rows;type:bigint;default:0;comment:写入明细行数"`
	RowsPruned  int64          `gorm:"column:rows_pruned;type:bigint;default:0;comment:保留期清理行数"`
	Errors      datatypes.JSON `gorm:"column:errors;type:jsonb;comment:站点级错误列表"`
	Status      string         `gorm:"column:status;type:varchar(16);default:running;comment:状态：running/success/partial/failed"`
}

// SyncSiteLog 单站点单次运行的同步日志（追加写，结束后不再变更）
type SyncSiteLog struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RunID        uint64     `gorm:"column:run_id;type:bigint;not null;index:idx_ssl_run;comment:关联运行ID"`
	SiteID       uint64     `gorm:"column:site_id;type:bigint;not null;index:idx_ssl_site;comment:关联站点ID"`
	RangeStart   time.Time  `gorm:"column:range_start;type:date;not null;comment:同步区间起"`
	RangeEnd     time.Time  `gorm:"column:range_end;type:date;not null;comment:同步区间止"`
	StartedAt    time.Time  `gorm:"column:started_at;type:timestamp;not null;comment:开始时间"`
	FinishedAt   *time.Time `gorm:"column:finished_at;type:timestamp;comment:结束时间"`
	Status       string     `gorm:"column:status;type:varchar(16);default:running;comment:状态：running/success/failed"`
	RowsWritten  int64      `gorm:"column:rows_written;type:bigint;default:0;comment:写入行数"`
	ErrorMessage *string    `gorm:"column:error_message;type:text;comment:失败原因"`
}

func (Site) TableName() string         { return "sites" }
func (KeywordDaily) TableName() string { return "keyword_daily" }
func (SiteDaily) TableName() string    { return "site_daily" }
func (SyncRun) TableName() string      { return "sync_runs" }
func (SyncSiteLog) TableName() string  { return "sync_site_logs" }
