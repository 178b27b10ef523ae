package main

import (
	"context"
	"fmt"
	"os"

	"GSCSync/internal/config"
	"GSCSync/internal/database"
	"GSCSync/internal/gsc"
	"GSCSync/internal/model"
	"GSCSync/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagInitial bool
	flagDays    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sync",
		Short:         "手动触发一次GSC数据同步",
		Long:          "发现服务账号可见的全部property，限速批量拉取指标并入库，重算日汇总后清理过期数据",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSync,
	}
	rootCmd.Flags().BoolVar(&flagInitial, "initial", false, "首次全量回填（默认90天）")
	rootCmd.Flags().IntVar(&flagDays, "days", 0, "自定义回溯天数（默认增量7天）")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "同步失败: %v\n", err)
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("加载配置文件失败: %w", err)
	}

	logrusLogger := logrus.New()
	logrusLogger.SetLevel(logrus.InfoLevel)

	db, err := database.Open(&cfg.Postgres, logrusLogger)
	if err != nil {
		return fmt.Errorf("连接PostgreSQL失败: %w", err)
	}

	ctx := context.Background()
	client, err := gsc.NewClient(ctx, &cfg.GSC, logrusLogger)
	if err != nil {
		return fmt.Errorf("创建GSC客户端失败: %w", err)
	}

	mode := model.ModeIncremental
	if flagInitial {
		mode = model.ModeInitial
	}

	days := flagDays
	fmt.Printf("开始GSC同步（mode=%s）...\n", mode)
	summary, err := service.NewSyncService(db, client, cfg, logrusLogger).RunSync(ctx, mode, days)
	if err != nil {
		// 灾难性失败（发现失败/存储不可达）才走非零退出码
		return err
	}

	fmt.Printf("\n%s\n", "==================================================")
	fmt.Printf("运行ID:     %s\n", summary.RunUUID)
	fmt.Printf("发现站点:   %d\n", summary.SitesDiscovered)
	fmt.Printf("同步成功:   %d\n", summary.SitesSynced)
	fmt.Printf("同步失败:   %d\n", summary.SitesFailed)
	fmt.Printf("写入行数:   %d\n", summary.TotalRows)
	fmt.Printf("清理行数:   %d\n", summary.RowsPruned)
	fmt.Printf("状态:       %s\n", summary.Status)

	if len(summary.Errors) > 0 {
		fmt.Printf("\n错误（%d）:\n", len(summary.Errors))
		for _, e := range summary.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	// 部分成功但一个站点都没同步上，视为失败退出
	if summary.Status == model.StatusPartial && summary.SitesSynced == 0 {
		return fmt.Errorf("没有任何站点同步成功（发现%d个站点）", summary.SitesDiscovered)
	}
	return nil
}
