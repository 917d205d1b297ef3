package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultJWTSecret = "your-secret-key-change-in-production"
	dateLayout       = "2006-01-02"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string

	// JWT配置
	JWTSecret string
	TokenTTL  time.Duration

	// CORS配置
	AllowedOrigins []string

	// 日志与调试
	Debug       bool
	LogLevel    string
	TraceStdout bool

	// 审核流程配置
	CatalogFile       string
	ActivePeriodStart string
	ActivePeriodEnd   string
	CalendarTimezone  string
	ReviewMaxRetries  int
	ReviewLockTimeout time.Duration
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	// 根据环境加载对应的 .env 文件
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}

	switch env {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}

	config := &Config{
		Environment:       getEnvWithDefault("ENVIRONMENT", "development"),
		Port:              getEnvWithDefault("PORT", "3000"),
		UseLocalDB:        getEnvBool("USE_LOCAL_DB", true),
		LocalDataDir:      strings.TrimSpace(os.Getenv("LOCAL_DATA_DIR")),
		JWTSecret:         getEnvWithDefault("JWT_SECRET", defaultJWTSecret),
		TokenTTL:          getEnvDuration("JWT_TTL", 24*time.Hour),
		Debug:             getEnvBool("DEBUG", false),
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		TraceStdout:       getEnvBool("TRACE_STDOUT", false),
		CatalogFile:       strings.TrimSpace(os.Getenv("CATALOG_FILE")),
		ActivePeriodStart: strings.TrimSpace(os.Getenv("ACTIVE_PERIOD_START")),
		ActivePeriodEnd:   strings.TrimSpace(os.Getenv("ACTIVE_PERIOD_END")),
		CalendarTimezone:  getEnvWithDefault("CALENDAR_TIMEZONE", "UTC"),
		ReviewMaxRetries:  getEnvInt("REVIEW_MAX_RETRIES", 3),
		ReviewLockTimeout: getEnvDuration("REVIEW_LOCK_TIMEOUT", 5*time.Second),
	}

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	// 生产环境强制使用 PostgreSQL，关闭调试
	if config.Environment == "production" {
		if config.PostgresDSN != "" {
			config.UseLocalDB = false
		}
		config.Debug = false
	}
	if config.Debug {
		config.LogLevel = "debug"
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// 验证JWT密钥
	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		slog.Warn("using default JWT secret (not recommended for production)")
	}

	// 验证数据库配置
	if !c.UseLocalDB && c.PostgresDSN == "" {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或设置 USE_LOCAL_DB=true")
	}
	if c.IsProduction() && c.UseLocalDB {
		slog.Warn("production environment is using the local record store; configure POSTGRES_DSN")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}

	if c.ReviewMaxRetries < 0 {
		return fmt.Errorf("REVIEW_MAX_RETRIES must not be negative")
	}
	if c.ReviewLockTimeout < 0 {
		return fmt.Errorf("REVIEW_LOCK_TIMEOUT must not be negative")
	}

	// 学期窗口：两端要么都配置要么都不配置
	loc, err := c.Location()
	if err != nil {
		return err
	}
	if (c.ActivePeriodStart == "") != (c.ActivePeriodEnd == "") {
		return fmt.Errorf("ACTIVE_PERIOD_START and ACTIVE_PERIOD_END must be set together")
	}
	if c.ActivePeriodStart != "" {
		start, err := time.ParseInLocation(dateLayout, c.ActivePeriodStart, loc)
		if err != nil {
			return fmt.Errorf("ACTIVE_PERIOD_START must be YYYY-MM-DD: %w", err)
		}
		end, err := time.ParseInLocation(dateLayout, c.ActivePeriodEnd, loc)
		if err != nil {
			return fmt.Errorf("ACTIVE_PERIOD_END must be YYYY-MM-DD: %w", err)
		}
		if end.Before(start) {
			return fmt.Errorf("ACTIVE_PERIOD_END is before ACTIVE_PERIOD_START")
		}
	}

	return nil
}

// Location 返回学期日历所在时区
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.CalendarTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", c.CalendarTimezone, err)
	}
	return loc, nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration 获取时长类型的环境变量（如 "5s"、"250ms"）
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadEnvFile 加载 .env 文件到环境变量
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // 文件不存在或无法打开，静默返回
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// 解析 KEY=VALUE 格式
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// 移除值两端的引号（如果有）
		if len(value) >= 2 {
			if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
				(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
				value = value[1 : len(value)-1]
			}
		}

		// 只有当环境变量不存在时才设置
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
