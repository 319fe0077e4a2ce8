package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	RedisPassword string
	RedisDB       int
	JWTSecret     string
	JWTTTLHours   int

	LogLevel  string
	LogFormat string // "json" | "text"

	// Push transport. An empty RabbitMQURL leaves delivery to the WebSocket hub only.
	RabbitMQURL  string
	PushExchange string

	// GCSchedule is the cron spec of the unused touch type cleanup job.
	GCSchedule string

	RateLimitRPS   int
	RateLimitBurst int

	// AdminUsernames are granted the admin role at startup.
	AdminUsernames []string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTTTLHours:    getEnvInt("JWT_TTL_HOURS", 24*30),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		PushExchange:   getEnv("PUSH_EXCHANGE", "touch_push"),
		GCSchedule:     getEnv("GC_SCHEDULE", "@daily"),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
		AdminUsernames: getEnvList("ADMIN_USERNAMES"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to defaultValue when the variable is unset or not a number.
func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		logrus.WithField("key", key).Warn("invalid integer in environment, using default")
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
