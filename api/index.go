package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recognition-review-backend/pkg/calendar"
	"recognition-review-backend/pkg/config"
	"recognition-review-backend/pkg/database"
	"recognition-review-backend/pkg/handlers"
	"recognition-review-backend/pkg/logging"
	customMiddleware "recognition-review-backend/pkg/middleware"
	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/notify"
	"recognition-review-backend/pkg/review"
	"recognition-review-backend/pkg/utils"
)

// App bundles everything the router needs.
type App struct {
	Config   *config.Config
	Store    review.Store
	Service  *review.Service
	JWT      *utils.JWTService
	Location *time.Location
	Logger   *slog.Logger
}

// NewApp wires the review service over store from configuration.
func NewApp(cfg *config.Config, store review.Store, logger *slog.Logger) (*App, error) {
	catalog := review.DefaultCatalog()
	if cfg.CatalogFile != "" {
		var err error
		if catalog, err = review.LoadCatalog(cfg.CatalogFile); err != nil {
			return nil, err
		}
		logger.Info("loaded document catalog", "file", cfg.CatalogFile)
	}

	active, archive, loc, err := calendar.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	svc := review.NewService(store,
		review.WithCatalog(catalog),
		review.WithPeriod(active, archive),
		review.WithNotifier(notify.NewLogDispatcher(logger)),
		review.WithLogger(logger),
		review.WithRetry(cfg.ReviewMaxRetries, -1),
	)
	return &App{
		Config:   cfg,
		Store:    store,
		Service:  svc,
		JWT:      utils.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
		Location: loc,
		Logger:   logger,
	}, nil
}

// DatabaseConfig maps application config onto the store factory.
func DatabaseConfig(cfg *config.Config) database.DatabaseConfig {
	return database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		LockTimeout:  cfg.ReviewLockTimeout,
		Debug:        cfg.Debug,
	}
}

var (
	vercelApp    http.Handler
	vercelErr    error
	vercelAppMux sync.Mutex
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	router, err := vercelRouter(r.Context())
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}
	router.ServeHTTP(w, r)
}

// vercelRouter builds the router once per cold start.
func vercelRouter(ctx context.Context) (http.Handler, error) {
	vercelAppMux.Lock()
	defer vercelAppMux.Unlock()
	if vercelApp != nil || vercelErr != nil {
		return vercelApp, vercelErr
	}

	cfg := config.GetCached()
	if vercelErr = cfg.Validate(); vercelErr != nil {
		return nil, vercelErr
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.IsProduction())

	store, err := database.GetDatabase(ctx, DatabaseConfig(cfg), logger)
	if err != nil {
		// 数据库错误不缓存，下次请求重试
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	app, err := NewApp(cfg, store, logger)
	if err != nil {
		vercelErr = err
		return nil, err
	}
	vercelApp = NewRouter(app)
	return vercelApp, nil
}

// NewRouter 创建Chi路由器并注册中间件与路由
func NewRouter(app *App) http.Handler {
	router := chi.NewRouter()
	setupMiddleware(router, app)
	setupRoutes(router, app)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, app *App) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.StripSlashes)
	router.Use(customMiddleware.Logger(app.Logger))
	router.Use(customMiddleware.Recovery(app.Logger, app.Config.IsDevelopment()))

	// CORS中间件
	router.Use(customMiddleware.CORS(app.Config.AllowedOrigins, app.Config.IsDevelopment()))

	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(25 * time.Second)) // 留5秒缓冲

	// 开发环境额外中间件
	if app.Config.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, app *App) {
	storeKind := "local"
	if _, ok := app.Store.(*database.PostgresStore); ok {
		storeKind = "postgresql"
	}
	healthHandler := handlers.NewHealthHandler(app.Config.Environment, storeKind, app.Store)
	reviewHandler := handlers.NewReviewHandler(app.Service, app.Location, app.Logger)

	// 健康检查端点
	router.Get("/", healthHandler.HealthCheck)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.AuthMiddleware(app.JWT, app.Logger))
		r.Use(customMiddleware.MaxBodySize(1 << 20))
		r.Use(customMiddleware.ContentTypeJSON)

		// 审核决定
		r.With(customMiddleware.RequireRole(models.RoleAdviser, models.RoleCompliance)).
			Post("/documents/{id}/decision", reviewHandler.Decide)

		// 提交文件与事件批次（组织干部或其指导老师）
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.RequireRole(models.RoleOfficer, models.RoleAdviser))
			r.Post("/documents", reviewHandler.Submit)
			r.Post("/batches", reviewHandler.CreateBatch)
		})

		r.Route("/owners", func(r chi.Router) {
			r.With(customMiddleware.RequireRole(models.RoleCompliance)).Post("/", reviewHandler.RegisterOwner)
			r.Route("/{kind}/{id}", func(r chi.Router) {
				r.Get("/recognition", reviewHandler.GetChecklist)
				r.Group(func(r chi.Router) {
					r.Use(customMiddleware.RequireRole(models.RoleCompliance))
					r.Post("/recognition/recompute", reviewHandler.Recompute)
					r.Put("/stage", reviewHandler.SetStage)
				})
			})
		})

		// 合规审核队列
		r.With(customMiddleware.RequireRole(models.RoleCompliance)).Get("/batches", reviewHandler.ListBatches)
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
