package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	// PostgresDSN enables the processed-message ledger when set.
	PostgresDSN string

	NATSURL           string
	NATSStatusSubject string
	NATSEventsSubject string

	ClassifierURL        string
	ClassifierModel      string
	ClassifierAPIKey     string
	ClassifierEnabled    bool
	ClassifierTimeout    time.Duration
	ClassifierRatePerSec float64
	ClassifierRetries    int

	StoragePath string
	LogsPath    string
	RulesFile   string

	IDPrefix    string
	LockTimeout time.Duration

	MaxRequestBytes         int64
	APIRateLimitRPS         float64
	APIRateLimitBurst       int
	APIMaxConcurrentIntakes int
	APIBackpressureWait     time.Duration

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:           mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSStatusSubject: mustEnv("NATS_STATUS_SUBJECT", "accruals.status_changes"),
		NATSEventsSubject: mustEnv("NATS_EVENTS_SUBJECT", "accruals.transitions"),

		ClassifierURL:        mustEnv("CLASSIFIER_URL", "http://localhost:11434"),
		ClassifierModel:      mustEnv("CLASSIFIER_MODEL", "llama3.2-vision"),
		ClassifierAPIKey:     mustEnv("CLASSIFIER_API_KEY", ""),
		ClassifierEnabled:    mustEnvBool("CLASSIFIER_ENABLED", true),
		ClassifierTimeout:    mustEnvDuration("CLASSIFIER_TIMEOUT", 90*time.Second),
		ClassifierRatePerSec: mustEnvFloat("CLASSIFIER_RATE_PER_SEC", 1),
		ClassifierRetries:    mustEnvInt("CLASSIFIER_MAX_ATTEMPTS", 2),

		StoragePath: mustEnv("STORAGE_PATH", "./data/storage"),
		LogsPath:    mustEnv("LOGS_PATH", "./data/logs"),
		RulesFile:   mustEnv("RULES_FILE", ""),

		IDPrefix:    mustEnv("ID_PREFIX", "V"),
		LockTimeout: mustEnvDuration("LOCK_TIMEOUT", 30*time.Second),

		MaxRequestBytes:         int64(mustEnvInt("MAX_REQUEST_MB", 64)) << 20,
		APIRateLimitRPS:         mustEnvFloat("API_RATE_LIMIT_RPS", 5),
		APIRateLimitBurst:       mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxConcurrentIntakes: mustEnvInt("API_MAX_CONCURRENT_INTAKES", 4),
		APIBackpressureWait:     mustEnvDuration("API_BACKPRESSURE_WAIT", 2*time.Second),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
