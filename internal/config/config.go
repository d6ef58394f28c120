// 包 config：进程配置。环境变量（可由 .env 预先注入）解析为 Config 并统一校验，
// 核心包只接收注入的 Config，不直接读取环境变量
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Postgres：数据库连接参数
type Postgres struct {
	Host         string `validate:"required"`
	Port         int    `validate:"min=1,max=65535"`
	User         string `validate:"required"`
	Password     string
	DB           string `validate:"required"`
	SSLMode      string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns int    `validate:"min=1"`
	MaxIdleConns int    `validate:"min=0,ltefield=MaxOpenConns"`
}

// DSN：postgres:// 形式的连接串
func (p Postgres) DSN() string {
	dsn := "postgres://" + p.User
	if p.Password != "" {
		dsn += ":" + p.Password
	}
	dsn += "@" + p.Host + ":" + strconv.Itoa(p.Port) + "/" + p.DB + "?sslmode=" + p.SSLMode
	return dsn
}

// Redis：缓存连接参数；Enable=false 时不建立连接
type Redis struct {
	Enable bool
	Host   string `validate:"required_if=Enable true"`
	Port   int    `validate:"min=1,max=65535"`
	Pass   string
	DB     int `validate:"min=0,max=15"`
}

// Addr：host:port
func (r Redis) Addr() string { return r.Host + ":" + strconv.Itoa(r.Port) }

// TLS：HTTPS 监听；证书缺失时生成自签名证书
type TLS struct {
	Enable   bool
	CertPath string `validate:"required_if=Enable true"`
	KeyPath  string `validate:"required_if=Enable true"`
}

// Config：进程级配置
type Config struct {
	Addr    string `validate:"required"`
	APIBase string `validate:"required,startswith=/"`

	Postgres Postgres
	Redis    Redis
	TLS      TLS

	// LSMCacheTTL：本地天空模型结果缓存时长，0 表示不缓存
	LSMCacheTTL time.Duration `validate:"min=0"`
	// LSMLocalCacheSize：进程内结果缓存条目数，0 表示关闭
	LSMLocalCacheSize int `validate:"min=0"`
	TileLevel         int `validate:"min=0,max=30"`
	// MaxTiles：单次请求在 TileLevel 下的切片上限，超出时改用更粗层级
	MaxTiles int `validate:"min=1"`

	// AOIRetention：切片登记在最后一次访问后保留的时长，0 表示永久保留
	AOIRetention     time.Duration `validate:"min=0"`
	AOIPruneInterval time.Duration `validate:"required_with=AOIRetention"`

	RateLimitEnabled bool
	RateLimitQPS     float64 `validate:"gt=0"`
	RateLimitBurst   int     `validate:"min=1"`

	CatalogDir    string
	CatalogWatch  bool
	CatalogConfig string
	// IngestWeekday / IngestHour：定时重扫 CatalogDir 的时间点（IngestTZ 时区）
	IngestWeekday time.Weekday `validate:"min=0,max=6"`
	IngestHour    int          `validate:"min=0,max=23"`
	IngestTZ      string       `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load：从环境变量读取配置并校验
// 约束：数值解析失败按错误返回，不静默回退默认值
func Load() (*Config, error) {
	e := &envReader{}
	c := &Config{
		Addr:    e.str("ADDR", ":8080"),
		APIBase: e.str("API_BASE", "/api"),
		Postgres: Postgres{
			Host:         e.str("PG_HOST", "localhost"),
			Port:         e.int("PG_PORT", 5432),
			User:         e.str("PG_USER", "postgres"),
			Password:     e.str("PG_PASSWORD", ""),
			DB:           e.str("PG_DB", "gsm"),
			SSLMode:      e.str("PG_SSLMODE", "disable"),
			MaxOpenConns: e.int("PG_MAX_OPEN_CONNS", 50),
			MaxIdleConns: e.int("PG_MAX_IDLE_CONNS", 25),
		},
		Redis: Redis{
			Enable: e.bool("REDIS_ENABLE", false),
			Host:   e.str("REDIS_HOST", "127.0.0.1"),
			Port:   e.int("REDIS_PORT", 6379),
			Pass:   e.str("REDIS_PASS", ""),
			DB:     e.int("REDIS_DB", 0),
		},
		TLS: TLS{
			Enable:   e.bool("TLS_ENABLE", false),
			CertPath: e.str("TLS_CERT_PATH", "data/certs/server.crt"),
			KeyPath:  e.str("TLS_KEY_PATH", "data/certs/server.key"),
		},
		LSMCacheTTL:       time.Duration(e.int("LSM_CACHE_TTL_S", 300)) * time.Second,
		LSMLocalCacheSize: e.int("LSM_LOCAL_CACHE_SIZE", 256),
		TileLevel:         e.int("TILE_LEVEL", 8),
		MaxTiles:          e.int("MAX_TILES", 20000),
		AOIRetention:      time.Duration(e.int("AOI_RETENTION_H", 720)) * time.Hour,
		AOIPruneInterval:  time.Duration(e.int("AOI_PRUNE_INTERVAL_M", 60)) * time.Minute,
		RateLimitEnabled:  e.bool("RATE_LIMIT_ENABLED", false),
		RateLimitQPS:      e.float("RATE_LIMIT_QPS", 20),
		RateLimitBurst:    e.int("RATE_LIMIT_BURST", 40),
		CatalogDir:        e.str("CATALOG_DIR", "data/catalogs"),
		CatalogWatch:      e.bool("CATALOG_WATCH", false),
		CatalogConfig:     e.str("CATALOG_CONFIG", "data/catalogs/catalogs.json"),
		IngestWeekday:     time.Weekday(e.int("INGEST_WEEKDAY", int(time.Monday))),
		IngestHour:        e.int("INGEST_HOUR", 3),
		IngestTZ:          e.str("INGEST_TZ", "UTC"),
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.IngestTZ); err != nil {
		return nil, fmt.Errorf("config: INGEST_TZ: %w", err)
	}
	// 缓存的切片 id 不能比其登记行活得更久，否则回收后会漏掉该切片的点源
	if c.AOIRetention > 0 && c.LSMCacheTTL >= c.AOIRetention {
		return nil, fmt.Errorf("config: LSM_CACHE_TTL_S (%s) must be shorter than AOI_RETENTION_H (%s)", c.LSMCacheTTL, c.AOIRetention)
	}
	return c, nil
}

// envReader：收集解析错误，Load 结束时一并返回
type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not a number", key, v))
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not a boolean", key, v))
		return def
	}
	return b
}
