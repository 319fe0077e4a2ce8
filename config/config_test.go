package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("GC_SCHEDULE", "")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("ADMIN_USERNAMES", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "@daily", cfg.GCSchedule)
	assert.Equal(t, "touch_push", cfg.PushExchange)
	assert.Empty(t, cfg.RabbitMQURL)
	assert.Equal(t, 720, cfg.JWTTTLHours)
	assert.Empty(t, cfg.AdminUsernames)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")
	t.Setenv("ADMIN_USERNAMES", " root, ,ops ")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 5, cfg.RateLimitRPS, "bad integers fall back to the default")
	assert.Equal(t, []string{"root", "ops"}, cfg.AdminUsernames)
}
