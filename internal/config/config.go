package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	// Environment selects the server-hosts strategy (production or staging).
	Environment string

	PostgresDSN   string
	ClickHouseDSN string
	RedisAddr     string

	// Conversion queue state persistence.
	QueueStateBackend string // "file" or "redis"
	QueueStatePath    string

	GeoIPDB string

	// Ad event retention.
	CacheRetention time.Duration // in-memory cache window
	EventRetention time.Duration // durable table expiry horizon

	// Conversion confirmation delays.
	ConversionDelayMean time.Duration
	OverdueDelayMax     time.Duration

	// Daily permission cap on served events per ad type. Zero disables it.
	DailyServeCap int

	// Diagnostic log bounds.
	DiagnosticLogPath     string
	DiagnosticLogMaxBytes int64
	DiagnosticLogMaxLines int

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// ClickHouse connection pooling configuration
	CHMaxOpenConns int

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8788")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "openadtrack")
	cfg.Environment = getenv("ADTRACK_ENV", "production")

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")

	cfg.QueueStateBackend = getenv("QUEUE_STATE_BACKEND", "file")
	cfg.QueueStatePath = getenv("QUEUE_STATE_PATH", "state")

	cfg.GeoIPDB = getenv("GEOIP_DB", "internal/geoip/testdata/GeoLite2-Country.mmdb")

	cfg.CacheRetention = envDuration("CACHE_RETENTION", 24*time.Hour)
	cfg.EventRetention = envDuration("EVENT_RETENTION", 90*24*time.Hour)

	cfg.ConversionDelayMean = envDuration("CONVERSION_DELAY_MEAN", time.Hour)
	cfg.OverdueDelayMax = envDuration("OVERDUE_DELAY_MAX", time.Minute)

	cfg.DailyServeCap = envInt("DAILY_SERVE_CAP", 20)

	cfg.DiagnosticLogPath = getenv("DIAGNOSTIC_LOG_PATH", "diagnostics.log")
	cfg.DiagnosticLogMaxBytes = int64(envInt("DIAGNOSTIC_LOG_MAX_BYTES", 1<<20))
	cfg.DiagnosticLogMaxLines = envInt("DIAGNOSTIC_LOG_MAX_LINES", 500)

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// ClickHouse defaults higher due to async insert patterns and event volume
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 100)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
