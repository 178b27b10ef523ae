package service

import (
	"io"
	"testing"
	"time"

	"GSCSync/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB 创建内存SQLite测试库并迁移全部表结构
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// 内存库只允许单连接，避免连接池拿到没有表结构的新库
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Site{},
		&model.KeywordDaily{},
		&model.SiteDaily{},
		&model.SyncRun{},
		&model.SyncSiteLog{},
	))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// testLogger 静默logger，测试输出不被日志刷屏
func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// day 日粒度UTC时间构造
func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
