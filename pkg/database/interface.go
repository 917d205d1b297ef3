package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"recognition-review-backend/pkg/review"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	LockTimeout  time.Duration
	Debug        bool
}

// NewDatabase 根据配置选择存储实现：PostgreSQL 优先，本地存储仅用于开发
func NewDatabase(ctx context.Context, config DatabaseConfig, logger *slog.Logger) (review.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if config.PostgresDSN != "" && !config.UseLocalDB {
		logger.Info("using postgres record store", "lock_timeout", config.LockTimeout)
		return NewPostgresStore(ctx, config.PostgresDSN, config.LockTimeout)
	}

	if !config.UseLocalDB {
		return nil, fmt.Errorf("no database configured: set POSTGRES_DSN or USE_LOCAL_DB=true")
	}

	if config.LocalDataDir == "" {
		logger.Info("using in-memory record store")
		return NewLocalStore(), nil
	}

	dataDir := config.LocalDataDir
	// serverless 环境文件系统只读，退回临时目录
	if isServerlessEnvironment() {
		dataDir = os.TempDir() + "/recognition-review-data"
	}
	logger.Info("using local file record store", "data_dir", dataDir)
	return OpenLocalStore(dataDir)
}

// isServerlessEnvironment 检查 Vercel / Lambda 环境
func isServerlessEnvironment() bool {
	return os.Getenv("VERCEL_ENV") != "" || os.Getenv("VERCEL_URL") != "" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
