package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env   string
	Port  int
	Store string

	DBURL      string
	DBMaxConns int32

	RequestTimeout time.Duration
	MigrateOnStart bool
	SeedDemo       bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	CORSOrigins        []string
	RateLimitPerMinute int
	MaxBodyBytes       int64

	AMQPURL      string
	AMQPExchange string

	WorkerConcurrency   int
	WorkerPollInterval  time.Duration
	WorkerStaleAfter    time.Duration
	WorkerShutdownGrace time.Duration
	WorkerHealthPort    int
}

// Load reads the process environment. A .env file in the working directory
// is applied first when present; variables already set win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "err", err)
	}

	store := strings.ToLower(getEnv("STORE", StorePostgres))
	if store != StoreMemory {
		store = StorePostgres
	}

	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 3000),
		Store: store,

		DBURL:      buildDBURL(),
		DBMaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),

		RequestTimeout: getEnvMillis("REQUEST_TIMEOUT_MS", 5*time.Second),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),
		SeedDemo:       getEnvBool("SEED_DEMO", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvMillis("CACHE_TTL_MS", 2*time.Second),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "")),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "eventreg.notifications"),

		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval:  getEnvMillis("WORKER_POLL_INTERVAL_MS", 250*time.Millisecond),
		WorkerStaleAfter:    getEnvMillis("WORKER_STALE_AFTER_MS", 2*time.Minute),
		WorkerShutdownGrace: getEnvMillis("WORKER_SHUTDOWN_GRACE_MS", 10*time.Second),
		WorkerHealthPort:    getEnvInt("WORKER_HEALTH_PORT", 8081),
	}
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func buildDBURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "eventreg")
	pass := getEnv("DB_PASSWORD", "eventreg")
	name := getEnv("DB_NAME", "eventreg")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	num, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}

	return num
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}

	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}

	return b
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	ms := getEnvInt(key, -1)
	if ms <= 0 {
		return fallback
	}

	return time.Duration(ms) * time.Millisecond
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
