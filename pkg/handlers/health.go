package handlers

import (
	"context"
	"net/http"
	"time"

	"recognition-review-backend/pkg/utils"
)

// HealthChecker is satisfied by every record store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	environment string
	storeKind   string
	store       HealthChecker
}

func NewHealthHandler(environment, storeKind string, store HealthChecker) *HealthHandler {
	return &HealthHandler{environment: environment, storeKind: storeKind, store: store}
}

// GET /
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 测试数据库连接
	dbStatus := "healthy"
	status := "healthy"
	if err := h.store.HealthCheck(ctx); err != nil {
		dbStatus = "unhealthy: " + err.Error()
		status = "degraded"
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "recognition-review",
		"version":     "1.0.0",
		"environment": h.environment,
		"database":    h.storeKind,
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      status,
	})
}
