package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/utils"
)

// ContextKey 用于在context中存储请求身份的键
type ContextKey string

const (
	ActorContextKey ContextKey = "actor"
)

// TokenValidator is the part of utils.JWTService the middleware needs.
type TokenValidator interface {
	ValidateToken(tokenString string) (*models.TokenClaims, error)
}

// AuthMiddleware JWT认证中间件，把 Actor 放入 context
func AuthMiddleware(tokens TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 从Authorization头获取token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorizedResponse(w, "Missing authorization header")
				return
			}

			// 检查Bearer前缀
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			claims, err := tokens.ValidateToken(tokenString)
			if err != nil {
				logger.Debug("token rejected", "path", r.URL.Path, "error", err)
				utils.WriteUnauthorizedResponse(w, "Invalid token")
				return
			}

			actor := claims.Actor()
			setLoggedActor(r.Context(), actor.ID)
			ctx := context.WithValue(r.Context(), ActorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole 只允许指定角色访问
func RequireRole(roles ...models.ReviewRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActorFromContext(r.Context())
			if !ok {
				utils.WriteUnauthorizedResponse(w, "Authentication required")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.WriteForbiddenResponse(w, fmt.Sprintf("role %s cannot access this resource", actor.Role))
		})
	}
}

// GetActorFromContext 从context中获取请求身份
func GetActorFromContext(ctx context.Context) (*models.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(*models.Actor)
	return actor, ok && actor != nil
}

// WithActor 把身份放入 context（测试与内部调用使用）
func WithActor(ctx context.Context, actor *models.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// RequireActor 要求请求已认证的辅助函数
func RequireActor(ctx context.Context) (*models.Actor, error) {
	actor, ok := GetActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("actor not authenticated")
	}
	return actor, nil
}
