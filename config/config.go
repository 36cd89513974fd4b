package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	JWT         JWTConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	RateLimiter RateLimiterConfig
	Bulkhead    BulkheadConfig
	Dispatch    DispatchConfig
	Location    LocationConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

type JWTConfig struct {
	Secret      string
	ExpiryHours time.Duration
}

type PostgresConfig struct {
	URL      string // DATABASE_URL takes precedence if set
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	SSLMode  string
}

type RedisConfig struct {
	URL      string // REDIS_URL takes precedence if set
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimiterConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type BulkheadConfig struct {
	HeartbeatPool int
	MutationPool  int
	ReadPool      int
}

// DispatchConfig carries the lifecycle thresholds. All of them are product
// tuning, not correctness requirements.
type DispatchConfig struct {
	AcceptanceLockout   time.Duration
	AutoDeleteWindow    time.Duration
	DeliverySLA         time.Duration
	SweepInterval       time.Duration
	HeartbeatTTL        time.Duration
	DefaultPackageLimit int
	IdempotencyTTLSec   int
}

type LocationConfig struct {
	MinPublishInterval time.Duration
	CacheTTLSec        int
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getenvInt("PORT", getenvInt("SERVER_PORT", 8080)),
			ShutdownTimeout: time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 5)) * time.Second,
			RequestTimeout:  time.Duration(getenvInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:      getenv("JWT_SECRET", "default-secret-change-me"),
			ExpiryHours: time.Duration(getenvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Postgres: PostgresConfig{
			URL:      getenv("DATABASE_URL", ""),
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenvInt("POSTGRES_PORT", 5432),
			User:     getenv("POSTGRES_USER", "dispatch_admin"),
			Password: getenv("POSTGRES_PASSWORD", "secure_password"),
			DB:       getenv("POSTGRES_DB", "courier_dispatch"),
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getenv("REDIS_URL", ""),
			Host:     getenv("REDIS_HOST", "localhost"),
			Port:     getenvInt("REDIS_PORT", 6379),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimiter: RateLimiterConfig{
			MaxRequests:   getenvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds: getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Bulkhead: BulkheadConfig{
			HeartbeatPool: getenvInt("BULKHEAD_HEARTBEAT_POOL", 100),
			MutationPool:  getenvInt("BULKHEAD_MUTATION_POOL", 50),
			ReadPool:      getenvInt("BULKHEAD_READ_POOL", 50),
		},
		Dispatch: DispatchConfig{
			AcceptanceLockout:   time.Duration(getenvInt("ACCEPTANCE_LOCKOUT_SECONDS", 10)) * time.Second,
			AutoDeleteWindow:    time.Duration(getenvInt("AUTO_DELETE_MINUTES", 120)) * time.Minute,
			DeliverySLA:         time.Duration(getenvInt("DELIVERY_SLA_MINUTES", 60)) * time.Minute,
			SweepInterval:       time.Duration(getenvInt("SWEEP_INTERVAL_SECONDS", 5)) * time.Second,
			HeartbeatTTL:        time.Duration(getenvInt("HEARTBEAT_TTL_SECONDS", 30)) * time.Second,
			DefaultPackageLimit: getenvInt("DEFAULT_PACKAGE_LIMIT", 5),
			IdempotencyTTLSec:   getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		},
		Location: LocationConfig{
			MinPublishInterval: time.Duration(getenvInt("LOCATION_MIN_PUBLISH_MS", 500)) * time.Millisecond,
			CacheTTLSec:        getenvInt("LOCATION_CACHE_TTL_SECONDS", 60),
		},
	}

	return cfg, nil
}

func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
