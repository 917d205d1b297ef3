package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"recognition-review-backend/pkg/review"
)

// storePool 进程级存储单例（serverless 冷启动之间复用连接）
type storePool struct {
	instance review.Store
	config   DatabaseConfig
	lastUsed time.Time
}

var (
	globalPool *storePool
	poolMutex  sync.Mutex
)

// GetDatabase 获取存储实例（单例模式），配置变化或健康检查失败时重建
func GetDatabase(ctx context.Context, config DatabaseConfig, logger *slog.Logger) (review.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool != nil && !shouldRecreate(ctx, globalPool, config, logger) {
		globalPool.lastUsed = time.Now()
		return globalPool.instance, nil
	}

	if globalPool != nil && globalPool.instance != nil {
		if err := globalPool.instance.Close(); err != nil {
			logger.Warn("failed to close previous store", "error", err)
		}
		globalPool = nil
	}

	instance, err := NewDatabase(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	globalPool = &storePool{instance: instance, config: config, lastUsed: time.Now()}
	return instance, nil
}

// shouldRecreate 判断是否需要重新创建连接
func shouldRecreate(ctx context.Context, pool *storePool, config DatabaseConfig, logger *slog.Logger) bool {
	if pool.instance == nil || pool.config != config {
		logger.Info("database configuration changed, recreating store")
		return true
	}
	if time.Since(pool.lastUsed) > 30*time.Minute {
		// 超过30分钟未使用，先做健康检查
		if err := pool.instance.HealthCheck(ctx); err != nil {
			logger.Warn("database health check failed, recreating store", "error", err)
			return true
		}
	}
	return false
}

// CloseDatabase 关闭全局存储
func CloseDatabase() error {
	poolMutex.Lock()
	defer poolMutex.Unlock()
	if globalPool == nil || globalPool.instance == nil {
		return nil
	}
	err := globalPool.instance.Close()
	globalPool = nil
	return err
}
