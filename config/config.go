package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials, required unless staging
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Staging replaces SmartAPI with the tickserver at SimURL.
	Staging bool
	SimURL  string

	// Infrastructure
	RedisAddr     string // empty keeps the cache in memory
	RedisPassword string
	RedisDB       int
	SQLitePath    string // empty disables the candle archive
	MetricsAddr   string
	StreamAddr    string
	LogLevel      string
	UniverseFile  string

	// Ingestion
	CandleInterval    time.Duration
	MinUpdateInterval time.Duration

	// Connectivity
	WatchdogTimeout  time.Duration
	MaxBackoff       time.Duration
	AuthFailureLimit int
	PollInterval     time.Duration
	ClosedRefresh    time.Duration

	// Cache
	ResultTTL time.Duration
	BackupTTL time.Duration

	// Feature loops
	RiskFreeRate     float64
	OptionsRefresh   time.Duration
	CompassBroadcast time.Duration
	SummaryInterval  time.Duration
	ContractRefresh  time.Duration

	// Circuit breaker for computation errors
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}

	cfg := &Config{
		Staging: getBool("STAGING_MODE", false),
		SimURL:  getEnv("SIM_WS_URL", "ws://localhost:9001/ws"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		StreamAddr:    getEnv("STREAM_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		UniverseFile:  getEnv("UNIVERSE_FILE", ""),

		CandleInterval:    getDuration("CANDLE_INTERVAL", time.Minute),
		MinUpdateInterval: getDuration("MIN_UPDATE_INTERVAL", time.Second),

		WatchdogTimeout:  getDuration("WATCHDOG_TIMEOUT", 60*time.Second),
		MaxBackoff:       getDuration("MAX_BACKOFF", 60*time.Second),
		AuthFailureLimit: getInt("AUTH_FAILURE_LIMIT", 3),
		PollInterval:     getDuration("POLL_INTERVAL", 5*time.Second),
		ClosedRefresh:    getDuration("CLOSED_REFRESH", 5*time.Minute),

		ResultTTL: getDuration("RESULT_TTL", 5*time.Second),
		BackupTTL: getDuration("BACKUP_TTL", 24*time.Hour),

		RiskFreeRate:     getFloat("RISK_FREE_RATE", 0.07),
		OptionsRefresh:   getDuration("OPTIONS_REFRESH", 30*time.Second),
		CompassBroadcast: getDuration("COMPASS_BROADCAST", 5*time.Second),
		SummaryInterval:  getDuration("SUMMARY_INTERVAL", time.Second),
		ContractRefresh:  getDuration("CONTRACT_REFRESH", 6*time.Hour),

		BreakerFailures: getInt("BREAKER_FAILURES", 5),
		BreakerCooldown: getDuration("BREAKER_COOLDOWN", 30*time.Second),
	}

	if !cfg.Staging {
		cfg.AngelAPIKey = mustEnv("ANGEL_API_KEY")
		cfg.AngelClientCode = mustEnv("ANGEL_CLIENT_CODE")
		cfg.AngelPassword = mustEnv("ANGEL_PASSWORD")
		cfg.AngelTOTPSecret = mustEnv("ANGEL_TOTP_SECRET")
	}
	return cfg
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

// getDuration accepts Go duration strings ("90s", "5m") or bare seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
	return fallback
}
