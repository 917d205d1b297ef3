package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type logFieldsKey struct{}

// logFields is filled by inner middleware so the outer request log can report it.
type logFields struct {
	actorID string
}

func setLoggedActor(ctx context.Context, actorID string) {
	if f, ok := ctx.Value(logFieldsKey{}).(*logFields); ok {
		f.actorID = actorID
	}
}

// Logger 请求日志中间件：每个请求一条结构化日志
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			fields := &logFields{actorID: "anonymous"}
			r = r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, fields))

			// 包装ResponseWriter来捕获状态码
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"actor", fields.actorID,
				"ip", getClientIP(r),
				"request_id", middleware.GetReqID(r.Context()),
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}

// getClientIP 获取客户端IP地址
func getClientIP(r *http.Request) string {
	// 检查X-Forwarded-For头（代理/负载均衡器）
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
