package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Equal(t, PresenceBackendLocal, cfg.PresenceBackend)
	assert.Equal(t, 30*time.Second, cfg.MembershipCacheTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.TombstoneTTL)
	assert.Equal(t, 90*24*time.Hour, cfg.RedactedTTL)
	assert.Equal(t, "0 3 * * *", cfg.RetentionCron)
	assert.EqualValues(t, 25, cfg.DBMaxConns)
	assert.Equal(t, 256, cfg.WSSendBuffer)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PRESENCE_BACKEND", "redis")
	t.Setenv("MEMBERSHIP_CACHE_TTL", "0")
	t.Setenv("WS_RATE_LIMIT", "2.5")
	t.Setenv("DB_MAX_CONNS", "8")
	t.Setenv("DB_MIN_CONNS", "2")
	t.Setenv("DIRECTORY_SEED", "/etc/portalchat/directory.yaml")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, PresenceBackendRedis, cfg.PresenceBackend)
	assert.Equal(t, "/etc/portalchat/directory.yaml", cfg.DirectorySeed)
	assert.Zero(t, cfg.MembershipCacheTTL)
	assert.Equal(t, 2.5, cfg.WSRateLimit)
	assert.EqualValues(t, 8, cfg.DBMaxConns)
	assert.EqualValues(t, 2, cfg.DBMinConns)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"production without secret": {"ENV": "production"},
		"unknown store":             {"STORE_BACKEND": "mongo"},
		"unknown presence":          {"PRESENCE_BACKEND": "etcd"},
		"bad cron":                  {"RETENTION_CRON": "every night"},
		"bad duration":              {"TOMBSTONE_TTL": "30 days"},
		"bad int":                   {"WS_SEND_BUFFER": "lots"},
		"min above max":             {"DB_MAX_CONNS": "2", "DB_MIN_CONNS": "4"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestProductionWithSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}
