package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Region      string

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	HTTPAddr    string
	AdminSecret string

	// Classifier thresholds. Similarity at or above AcceptedOriginal keeps the
	// recommendation as-is; at or above MinorEdit counts as a small edit.
	SimilarityAcceptedOriginal float64
	SimilarityMinorEdit        float64

	// Credits charged per USD of metered provider spend.
	CreditsPerUSD float64

	// Snapshot dates younger than this stay open and are rebuilt automatically.
	AggregationGracePeriod time.Duration

	// Minimum ages before records of a category may be purged.
	RetentionAudit       time.Duration
	RetentionSecurity    time.Duration
	RetentionApplication time.Duration

	SessionStaleAfter time.Duration

	SchedulerRollupSpec       string
	SchedulerRetentionSpec    string
	SchedulerSessionSweepSpec string

	MetricsEnabled bool
	TracingEnabled bool
	OTLPEndpoint   string

	SeedDemo bool

	RateLimit RateLimitConfig
}

type LoggerConfig struct {
	Level string
}

// RateLimitConfig throttles the event-write endpoints. Disabled unless a
// redis address is configured.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Sustained events per second and burst capacity per caller.
	EventRate  float64
	EventBurst int

	// TTL of the distributed rollup lock held while rebuilding snapshots.
	RollupLockTTL time.Duration
}

// Load reads configuration from environment variables and an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "citeledger"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		Region:      getenv("AWS_REGION", "us-east-1"),

		Logger: LoggerConfig{Level: getenv("LOG_LEVEL", "info")},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "citeledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		AdminSecret: strings.TrimSpace(getenv("ADMIN_SECRET", "")),

		SimilarityAcceptedOriginal: getenvFloat("SIMILARITY_THRESHOLD_ORIGINAL", 0.95),
		SimilarityMinorEdit:        getenvFloat("SIMILARITY_THRESHOLD_MINOR", 0.80),

		CreditsPerUSD: getenvFloat("CREDITS_PER_USD", 100),

		AggregationGracePeriod: getenvDuration("AGGREGATION_GRACE_PERIOD", 48*time.Hour),

		RetentionAudit:       getenvDuration("RETENTION_AUDIT", 7*365*24*time.Hour),
		RetentionSecurity:    getenvDuration("RETENTION_SECURITY", 7*365*24*time.Hour),
		RetentionApplication: getenvDuration("RETENTION_APPLICATION", 90*24*time.Hour),

		SessionStaleAfter: getenvDuration("SESSION_STALE_AFTER", 24*time.Hour),

		SchedulerRollupSpec:       getenv("SCHEDULER_ROLLUP_SPEC", "@every 15m"),
		SchedulerRetentionSpec:    getenv("SCHEDULER_RETENTION_SPEC", "@daily"),
		SchedulerSessionSweepSpec: getenv("SCHEDULER_SESSION_SWEEP_SPEC", "@hourly"),

		MetricsEnabled: getenvBool("METRICS_ENABLED", true),
		TracingEnabled: getenvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SeedDemo: getenvBool("SEED_DEMO", false),

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			EventRate:     getenvFloat("RATE_LIMIT_EVENT_RATE", 50),
			EventBurst:    getenvInt("RATE_LIMIT_EVENT_BURST", 100),
			RollupLockTTL: getenvDuration("RATE_LIMIT_ROLLUP_LOCK_TTL", 10*time.Minute),
		},
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
