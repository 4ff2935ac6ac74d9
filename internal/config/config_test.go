package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")

	cfg := New()

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/moodbuddy")
	assert.Equal(t, uint64(1), cfg.Matching.PlaceholderID)
	assert.Equal(t, []uint64{1, 2}, cfg.Matching.ReservedIDs)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestNew_PostgresDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_HOST", "pg")

	cfg := New()

	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "host=pg")
	assert.Contains(t, cfg.DB.DSN, "port=5432")
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("RESERVED_USER_IDS", "1, 2 ,x,99")
	t.Setenv("PLACEHOLDER_USER_ID", "7")
	t.Setenv("REDIS_STATS_TTL", "2m")
	t.Setenv("RATE_BURST", "not-a-number")
	t.Setenv("LOG_SOURCE", "yes")

	cfg := New()

	assert.Equal(t, []uint64{1, 2, 99}, cfg.Matching.ReservedIDs)
	assert.Equal(t, uint64(7), cfg.Matching.PlaceholderID)
	assert.Equal(t, 2*time.Minute, cfg.Redis.StatsTTL)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.True(t, cfg.Log.Source)
}
