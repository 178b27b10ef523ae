package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"GSCSync/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetricsHandler 查询边界（给前端面板用的只读接口）
type MetricsHandler struct {
	siteRepo    repository.SiteRepository
	metricsRepo repository.MetricsRepository
	logger      *logrus.Logger
}

func NewMetricsHandler(db *gorm.DB, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		siteRepo:    repository.NewSiteRepository(db),
		metricsRepo: repository.NewMetricsRepository(db),
		logger:      logger,
	}
}

// ListSites 全部站点（含停用）
// @Summary 站点列表
// @Success 200 {object} map[string]interface{}
// @Router /api/sites [get]
func (h *MetricsHandler) ListSites(c *gin.Context) {
	sites, err := h.siteRepo.ListSites(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("查询站点列表失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites, "total": len(sites)})
}

// Overview 最近N天各站点汇总
// @Summary 站点概览
// @Param days query int false "回溯天数（默认28）"
// @Success 200 {object} map[string]interface{}
// @Router /api/overview [get]
func (h *MetricsHandler) Overview(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "28"))
	rows, err := h.metricsRepo.Overview(c.Request.Context(), days, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("查询站点概览失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "sites": rows})
}

// Trends 日趋势：带site_id为单站点，否则全站合并
// @Summary 日趋势
// @Param site_id query int false "站点ID"
// @Param days query int false "回溯天数（默认90）"
// @Success 200 {object} map[string]interface{}
// @Router /api/trends [get]
func (h *MetricsHandler) Trends(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "90"))

	if siteIDStr := c.Query("site_id"); siteIDStr != "" {
		siteID, err := strconv.ParseUint(siteIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "site_id非法"})
			return
		}
		site, err := h.siteRepo.GetSiteByID(c.Request.Context(), siteID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "站点不存在"})
				return
			}
			h.logger.WithError(err).Error("查询站点失败")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		points, err := h.metricsRepo.SiteTrends(c.Request.Context(), site.ID, days, time.Now())
		if err != nil {
			h.logger.WithError(err).Error("查询站点趋势失败")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"site_id": site.ID, "url": site.URL, "days": days, "trends": points})
		return
	}

	points, err := h.metricsRepo.AllTrends(c.Request.Context(), days, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("查询全站趋势失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "trends": points})
}

// Opportunities 加权排名落在指定区间的潜力关键词（默认8-20，接近首页）
// @Summary 机会关键词
// @Param min_pos query number false "排名下界（默认8）"
// @Param max_pos query number false "排名上界（默认20）"
// @Param days query int false "回溯天数（默认28）"
// @Param limit query int false "返回条数（默认200）"
// @Success 200 {object} map[string]interface{}
// @Router /api/opportunities [get]
func (h *MetricsHandler) Opportunities(c *gin.Context) {
	minPos, _ := strconv.ParseFloat(c.DefaultQuery("min_pos", "8"), 64)
	maxPos, _ := strconv.ParseFloat(c.DefaultQuery("max_pos", "20"), 64)
	days, _ := strconv.Atoi(c.DefaultQuery("days", "28"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	rows, err := h.metricsRepo.Opportunities(c.Request.Context(), minPos, maxPos, days, limit, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("查询机会关键词失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "min_pos": minPos, "max_pos": maxPos, "keywords": rows})
}

// Movers 本窗口与上一窗口对比的关键词涨跌榜
// @Summary 涨跌关键词
// @Param days query int false "窗口天数（默认7）"
// @Param limit query int false "各榜返回条数（默认100）"
// @Success 200 {object} map[string]interface{}
// @Router /api/movers [get]
func (h *MetricsHandler) Movers(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	lists, err := h.metricsRepo.Movers(c.Request.Context(), days, limit, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("查询涨跌关键词失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "winners": lists.Winners, "losers": lists.Losers})
}

// LowCTR 高展示低点击率关键词（标题/描述优化候选）
// @Summary 低CTR关键词
// @Param days query int false "回溯天数（默认28）"
// @Param min_imp query int false "最低展示数（默认100）"
// @Param max_ctr query number false "点击率上限（默认0.02）"
// @Param limit query int false "返回条数（默认200）"
// @Success 200 {object} map[string]interface{}
// @Router /api/low-ctr [get]
func (h *MetricsHandler) LowCTR(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "28"))
	minImp, _ := strconv.ParseInt(c.DefaultQuery("min_imp", "100"), 10, 64)
	maxCTR, _ := strconv.ParseFloat(c.DefaultQuery("max_ctr", "0.02"), 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	rows, err := h.metricsRepo.LowCTR(c.Request.Context(), days, minImp, maxCTR, limit, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("查询低CTR关键词失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "min_imp": minImp, "max_ctr": maxCTR, "keywords": rows})
}
