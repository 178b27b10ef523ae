package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Postgres PostgresConfig `mapstructure:"postgres"` // PostgreSQL配置
	GSC      GSCConfig      `mapstructure:"gsc"`      // Search Console API配置
	Sync     SyncConfig     `mapstructure:"sync"`     // 同步调度配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// GSCConfig Search Console API配置
type GSCConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`   // 服务账号凭证文件路径
	Timeout         int    `mapstructure:"timeout"`            // 请求超时（秒）
	Proxy           string `mapstructure:"proxy"`              // 代理地址（可选）
	MaxRowsPerQuery int64  `mapstructure:"max_rows_per_query"` // 单次查询最大行数（GSC上限25000）
}

// SyncConfig 同步调度配置
type SyncConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`       // 每批站点数
	BatchPause      time.Duration `mapstructure:"batch_pause"`      // 批间停顿
	CallPause       time.Duration `mapstructure:"call_pause"`       // 单次调用间最小间隔（限速令牌周期）
	RetryCount      int           `mapstructure:"retry_count"`      // 可重试错误的重试次数
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`    // 重试退避基准时长（指数递增）
	IncrementalDays int           `mapstructure:"incremental_days"` // 增量同步回溯天数
	InitialDays     int           `mapstructure:"initial_days"`     // 首次全量同步回溯天数
	DataLagDays     int           `mapstructure:"data_lag_days"`    // GSC数据发布延迟天数
	RetentionDays   int           `mapstructure:"retention_days"`   // 数据保留天数
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.GSC.CredentialsFile = v
	}
	if v := os.Getenv("GSC_PROXY"); v != "" {
		cfg.GSC.Proxy = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// ApplyDefaults 未配置项回落到默认值（与GSC配额和数据延迟特性匹配）
func ApplyDefaults(cfg *Config) {
	if cfg.GSC.MaxRowsPerQuery <= 0 {
		cfg.GSC.MaxRowsPerQuery = 25000
	}
	if cfg.GSC.Timeout <= 0 {
		cfg.GSC.Timeout = 60
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 5
	}
	if cfg.Sync.BatchPause <= 0 {
		cfg.Sync.BatchPause = time.Second
	}
	if cfg.Sync.CallPause <= 0 {
		cfg.Sync.CallPause = 200 * time.Millisecond
	}
	if cfg.Sync.RetryCount <= 0 {
		cfg.Sync.RetryCount = 3
	}
	if cfg.Sync.RetryBackoff <= 0 {
		cfg.Sync.RetryBackoff = 2 * time.Second
	}
	if cfg.Sync.IncrementalDays <= 0 {
		cfg.Sync.IncrementalDays = 7
	}
	if cfg.Sync.InitialDays <= 0 {
		cfg.Sync.InitialDays = 90
	}
	if cfg.Sync.DataLagDays <= 0 {
		cfg.Sync.DataLagDays = 2
	}
	if cfg.Sync.RetentionDays <= 0 {
		cfg.Sync.RetentionDays = 90
	}
}
