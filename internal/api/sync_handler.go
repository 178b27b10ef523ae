package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"GSCSync/internal/config"
	"GSCSync/internal/interfaces"
	"GSCSync/internal/model"
	"GSCSync/internal/repository"
	"GSCSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SyncHandler struct {
	syncService *service.SyncService
	logRepo     repository.SyncLogRepository
	logger      *logrus.Logger

	mu          sync.Mutex
	running     bool
	lastSummary *service.RunSummary
}

func NewSyncHandler(db *gorm.DB, client interfaces.MetricsClient, cfg *config.Config, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: service.NewSyncService(db, client, cfg, logger),
		logRepo:     repository.NewSyncLogRepository(db),
		logger:      logger,
	}
}

type triggerSyncRequest struct {
	Days    int  `json:"days"`    // 自定义回溯天数（可选）
	Initial bool `json:"initial"` // 首次全量回填
}

// TriggerSync 触发一次后台同步
// @Summary 触发GSC数据同步（已有运行进行中时返回409）
// @Param body body triggerSyncRequest false "days/initial"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string
// @Router /api/sync [post]
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req triggerSyncRequest
	_ = c.ShouldBindJSON(&req) // body可为空，全部走默认值

	mode := model.ModeIncremental
	if req.Initial || c.Query("initial") == "true" {
		mode = model.ModeInitial
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"status": "already_running"})
		return
	}
	h.running = true
	h.mu.Unlock()

	go func() {
		// 脱离请求上下文：HTTP连接断开不中止同步
		defer func() {
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
		}()
		summary, err := h.syncService.RunSync(context.Background(), mode, req.Days)
		if err != nil {
			h.logger.WithError(err).Error("后台同步失败")
		}
		h.mu.Lock()
		h.lastSummary = summary
		h.mu.Unlock()
	}()

	c.JSON(http.StatusOK, gin.H{"status": "started", "mode": mode, "days": req.Days})
}

// SyncStatus 查询同步是否进行中及最近一次结果
// @Summary 同步状态
// @Success 200 {object} map[string]interface{}
// @Router /api/sync-status [get]
func (h *SyncHandler) SyncStatus(c *gin.Context) {
	h.mu.Lock()
	running := h.running
	last := h.lastSummary
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"running": running, "last_run": last})
}

// ListSyncLogs 最近的运行记录；带run_id时附该次运行的站点日志
// @Summary 同步历史
// @Param limit query int false "返回条数（默认20）"
// @Param run_id query int false "附带站点级日志的运行ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/sync-logs [get]
func (h *SyncHandler) ListSyncLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.logRepo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("查询运行记录失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"runs": runs}
	if runIDStr := c.Query("run_id"); runIDStr != "" {
		runID, err := strconv.ParseUint(runIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_id非法"})
			return
		}
		siteLogs, err := h.logRepo.ListSiteLogsByRun(c.Request.Context(), runID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["site_logs"] = siteLogs
	}
	c.JSON(http.StatusOK, resp)
}
