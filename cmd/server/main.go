package main

import (
	"context"
	"fmt"
	"log"

	"GSCSync/internal/api"
	"GSCSync/internal/config"
	"GSCSync/internal/database"
	"GSCSync/internal/gsc"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. 加载配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 2. 初始化日志
	logrusLogger := logrus.New()
	logrusLogger.SetLevel(logrus.InfoLevel)
	logrusLogger.Info("配置文件加载成功")

	// 3. 初始化 PostgreSQL 连接（库不存在则先创建再连，启动时自动迁移表结构）
	db, err := database.Open(&cfg.Postgres, logrusLogger)
	if err != nil {
		logrusLogger.Fatalf("连接PostgreSQL失败: %v", err)
	}
	logrusLogger.Info("PostgreSQL连接成功，表结构检查完成")

	// 4. 创建GSC客户端（服务账号凭证）
	client, err := gsc.NewClient(context.Background(), &cfg.GSC, logrusLogger)
	if err != nil {
		logrusLogger.Fatalf("创建GSC客户端失败: %v", err)
	}

	// 5. 配置Gin运行模式（从配置读取：debug/release）
	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()

	// 注册pprof 方便调试和监测性能问题
	pprof.Register(r)
	logrusLogger.Infof("Gin运行模式: %s", cfg.Server.Mode)

	// 6. 同步触发与状态接口（给外部定时器/运维用）
	syncHandler := api.NewSyncHandler(db, client, cfg, logrusLogger)
	r.POST("/api/sync", syncHandler.TriggerSync)
	r.GET("/api/sync-status", syncHandler.SyncStatus)
	r.GET("/api/sync-logs", syncHandler.ListSyncLogs)

	// 7. 查询接口（给前端面板用）
	metricsHandler := api.NewMetricsHandler(db, logrusLogger)
	r.GET("/api/sites", metricsHandler.ListSites)
	r.GET("/api/overview", metricsHandler.Overview)
	r.GET("/api/trends", metricsHandler.Trends)
	r.GET("/api/opportunities", metricsHandler.Opportunities)
	r.GET("/api/movers", metricsHandler.Movers)
	r.GET("/api/low-ctr", metricsHandler.LowCTR)

	// 8. 启动服务（从配置读取端口）
	port := cfg.Server.Port
	logrusLogger.Infof("服务启动成功，端口：%d", port)
	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		logrusLogger.Fatalf("启动服务失败: %v", err)
	}
}
