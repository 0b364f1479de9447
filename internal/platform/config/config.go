package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends selectable with OPTIN_STORAGE.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageCookie   = "cookie"
)

// Server captures process level configuration.
type Server struct {
	Addr        string `env:"OPTIN_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	Storage     string `env:"OPTIN_STORAGE" envDefault:"memory"`

	// MeasurementID is the analytics tag loaded once a visitor opts in.
	MeasurementID string `env:"ANALYTICS_MEASUREMENT_ID"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Log       LogConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	SQLite    SQLiteConfig
	Visitor   VisitorConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// RedisConfig holds connection settings for the shared substrate.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	// EntryTTL expires a visitor's hash after inactivity; zero keeps it forever.
	EntryTTL time.Duration `env:"REDIS_ENTRY_TTL" envDefault:"0s"`
}

type PostgresConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"optin.db"`
}

// VisitorConfig controls the signed visitor-id cookie.
type VisitorConfig struct {
	SigningKey string        `env:"VISITOR_SIGNING_KEY"`
	TTL        time.Duration `env:"VISITOR_TTL" envDefault:"8760h"`
	Secure     bool          `env:"VISITOR_COOKIE_SECURE" envDefault:"false"`
}

// BreakerConfig tunes the circuit breaker in front of remote substrates.
type BreakerConfig struct {
	MaxFailures uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	OpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
}

// RateLimitConfig bounds banner actions per client IP.
type RateLimitConfig struct {
	PerSecond  float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	Burst      int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	MaxClients int     `env:"RATE_LIMIT_MAX_CLIENTS" envDefault:"10000"`
	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string `env:"RATE_LIMIT_TRUSTED_PROXIES" envSeparator:","`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c Server) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageCookie:
	case StorageRedis:
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL is required when OPTIN_STORAGE=redis")
		}
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return errors.New("DATABASE_URL is required when OPTIN_STORAGE=postgres")
		}
	case StorageSQLite:
		if c.SQLite.Path == "" {
			return errors.New("SQLITE_PATH is required when OPTIN_STORAGE=sqlite")
		}
	default:
		return fmt.Errorf("unknown OPTIN_STORAGE %q", c.Storage)
	}
	if c.Storage != StorageCookie && c.Visitor.SigningKey == "" {
		return errors.New("VISITOR_SIGNING_KEY is required for server-side storage")
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 || c.RateLimit.MaxClients <= 0 {
		return errors.New("rate limit must be positive")
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		if proxy = strings.TrimSpace(proxy); proxy != "" && !validProxy(proxy) {
			return fmt.Errorf("invalid RATE_LIMIT_TRUSTED_PROXIES entry %q", proxy)
		}
	}
	return nil
}

// UsesVisitorID reports whether entries are keyed by the visitor cookie.
func (c Server) UsesVisitorID() bool {
	return c.Storage != StorageCookie
}

func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
