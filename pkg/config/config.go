package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Stream    StreamConfig
	Pool      PoolConfig
	JWT       JWTConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Catalog   CatalogConfig
	CORS      CORSConfig
	Log       LogConfig
}

// DatabaseConfig holds connection settings. StatementTimeout is applied
// as a session parameter and bounds how long a confirmation transaction
// can sit on section row locks.
type DatabaseConfig struct {
	Host             string
	Port             int
	User             string
	Password         string
	Name             string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	StatementTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StreamConfig describes the Redis stream that carries enrollment
// request events from intake to the worker pool. ReconcileEvery and
// ReconcileAfter drive the sweep that republishes records stuck PENDING
// longer than the threshold.
type StreamConfig struct {
	Key            string
	Group          string
	Consumer       string
	MaxLen         int64
	ReadCount      int64
	BlockTimeout   time.Duration
	ReconcileEvery time.Duration
	ReconcileAfter time.Duration
}

// PoolConfig sizes the confirmation worker pool. Size should not exceed
// DB_MAX_OPEN_CONNS or workers will contend for connections.
type PoolConfig struct {
	Size int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// AuthConfig toggles JWT protection of the enrollment endpoints.
type AuthConfig struct {
	Enabled bool
}

// RateLimitConfig governs the token bucket applied to enrollment intake.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// CatalogConfig tunes caching of section availability snapshots.
type CatalogConfig struct {
	CacheTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:             v.GetString("DB_HOST"),
		Port:             v.GetInt("DB_PORT"),
		User:             v.GetString("DB_USER"),
		Password:         v.GetString("DB_PASSWORD"),
		Name:             v.GetString("DB_NAME"),
		SSLMode:          v.GetString("DB_SSL_MODE"),
		MaxOpenConns:     v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:     v.GetInt("DB_MAX_IDLE_CONNS"),
		StatementTimeout: parseDuration(v.GetString("DB_STATEMENT_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Stream = StreamConfig{
		Key:            v.GetString("STREAM_KEY"),
		Group:          v.GetString("STREAM_GROUP"),
		Consumer:       v.GetString("STREAM_CONSUMER"),
		MaxLen:         v.GetInt64("STREAM_MAX_LEN"),
		ReadCount:      v.GetInt64("STREAM_READ_COUNT"),
		BlockTimeout:   parseDuration(v.GetString("STREAM_BLOCK_TIMEOUT"), 5*time.Second),
		ReconcileEvery: parseDuration(v.GetString("STREAM_RECONCILE_EVERY"), time.Minute),
		ReconcileAfter: parseDuration(v.GetString("STREAM_RECONCILE_AFTER"), 2*time.Minute),
	}

	cfg.Pool = PoolConfig{
		Size: v.GetInt("POOL_SIZE"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.Auth = AuthConfig{
		Enabled: v.GetBool("ENABLE_AUTH"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:           v.GetBool("ENABLE_RATE_LIMIT"),
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Catalog = CatalogConfig{
		CacheTTL: parseDuration(v.GetString("CATALOG_CACHE_TTL"), 30*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "uni_enroll")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("STREAM_KEY", "enrollments:requested")
	v.SetDefault("STREAM_GROUP", "enroll-workers")
	v.SetDefault("STREAM_CONSUMER", "")
	v.SetDefault("STREAM_MAX_LEN", 10000)
	v.SetDefault("STREAM_READ_COUNT", 16)
	v.SetDefault("STREAM_BLOCK_TIMEOUT", "5s")
	v.SetDefault("STREAM_RECONCILE_EVERY", "1m")
	v.SetDefault("STREAM_RECONCILE_AFTER", "2m")

	v.SetDefault("POOL_SIZE", 5)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("ENABLE_AUTH", false)

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	v.SetDefault("CATALOG_CACHE_TTL", "30s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
