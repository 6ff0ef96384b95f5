package config

import (
	"fmt"
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

	HTTPAddr string

	Telemetry TelemetryConfig

	// UsageTimeZone is the canonical zone used to derive usage period keys.
	// Every instance must agree on it.
	UsageTimeZone string

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
	DBConnMaxIdleTime int

	Stripe StripeConfig
	Redis  RedisConfig

	Reconcile ReconcileConfig
	Scheduler SchedulerConfig

	// AdminAPIToken gates tier and counter administration. Empty disables
	// the admin routes.
	AdminAPIToken string
}

// TelemetryConfig feeds the logger and the OTLP exporters.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ReconcileConfig bounds how often a single user can force a billing repair.
type ReconcileConfig struct {
	RatePerMinute int64
	Burst         int64
	LockTTL       time.Duration
}

// SchedulerConfig drives the background sweep that repairs paid profiles
// whose billing period lapsed without a webhook.
type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	DriftGrace  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "story-entitlements"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		UsageTimeZone: getenv("USAGE_TIME_ZONE", "UTC"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtlpEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OtlpProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Reconcile: ReconcileConfig{
			RatePerMinute: getenvInt64("RECONCILE_RATE_PER_MINUTE", 6),
			Burst:         getenvInt64("RECONCILE_BURST", 3),
			LockTTL:       time.Duration(getenvInt64("RECONCILE_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: time.Duration(getenvInt64("SCHEDULER_RUN_INTERVAL_SECONDS", 300)) * time.Second,
			BatchSize:   int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			DriftGrace:  time.Duration(getenvInt64("BILLING_DRIFT_GRACE_HOURS", 24)) * time.Hour,
		},
		AdminAPIToken: strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
	}

	if _, err := cfg.loadUsageLocation(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UsageLocation resolves UsageTimeZone. Load rejects zones that cannot be
// loaded, so only a hand-built Config reaches the UTC fallback.
func (c Config) UsageLocation() *time.Location {
	loc, err := c.loadUsageLocation()
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) loadUsageLocation() (*time.Location, error) {
	name := strings.TrimSpace(c.UsageTimeZone)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid USAGE_TIME_ZONE %q: %w", name, err)
	}
	return loc, nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
