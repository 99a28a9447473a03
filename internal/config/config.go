package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	RedisURL    string
	NatsURL     string

	KafkaBrokers      []string
	AlertsTopic       string
	TransactionsTopic string
	ConsumerGroup     string

	OtelEnabled    bool
	JaegerEndpoint string

	ModelPath     string
	TablesPath    string
	Scorer        string
	ScoreSubject  string
	ScorerTimeout time.Duration

	StorageTimeout time.Duration
	NightStartHour int
	NightEndHour   int

	StatsLocation *time.Location
	StatsCacheTTL time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() *Config {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("STATS_TIMEZONE", "UTC"))
	if err != nil {
		loc = time.UTC
	}

	return &Config{
		Port:        getEnv("PORT", "8083"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    normalizeRedisURL(os.Getenv("REDIS_URL")),
		NatsURL:     os.Getenv("NATS_URL"),

		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		AlertsTopic:       getEnv("ALERTS_TOPIC", "fraud.alerts"),
		TransactionsTopic: getEnv("TRANSACTIONS_TOPIC", "transactions.raw"),
		ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "fraud-detector"),

		OtelEnabled:    getBoolEnv("OTEL_ENABLED", true),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "jaeger:4318"),

		ModelPath:     getEnv("MODEL_PATH", "artifacts/fraud_tree.json"),
		TablesPath:    getEnv("TABLES_PATH", "artifacts/feature_tables.json"),
		Scorer:        getEnv("SCORER", "local"),
		ScoreSubject:  getEnv("SCORE_SUBJECT", "fraud.score"),
		ScorerTimeout: getDurationEnv("SCORER_TIMEOUT", 2*time.Second),

		StorageTimeout: getDurationEnv("STORAGE_TIMEOUT", 3*time.Second),
		NightStartHour: getIntEnv("NIGHT_START_HOUR", 22),
		NightEndHour:   getIntEnv("NIGHT_END_HOUR", 6),

		StatsLocation: loc,
		StatsCacheTTL: getDurationEnv("STATS_CACHE_TTL", 15*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeRedisURL strips a redis:// scheme so the value can be used as an
// address.
func normalizeRedisURL(url string) string {
	url = strings.TrimPrefix(url, "redis://")
	return strings.TrimSuffix(url, "/")
}
