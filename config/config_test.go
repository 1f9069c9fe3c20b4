package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LIVEKIT_API_SECRET", "lk-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, uint32(600), cfg.LiveKit.EmptyTimeoutSec)
	assert.Equal(t, "lk-secret", cfg.LiveKit.WebhookSecret, "webhook secret falls back to the API secret")
	assert.Equal(t, "speaker", cfg.Recording.Layout)
	assert.Equal(t, ProviderLiveKit, cfg.Credentials.Provider)
	assert.Equal(t, time.Hour, cfg.Credentials.TTL())
	assert.Equal(t, 10*time.Second, cfg.LiveKit.CallTimeout())
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/x")
	t.Setenv("LIVEKIT_WEBHOOK_SECRET", "hook")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")
	t.Setenv("CREDENTIALS_PROVIDER", "ZEGO")
	t.Setenv("CREDENTIALS_TTL_MINUTES", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://db:5432/x", cfg.Database.DSN())
	assert.Equal(t, "hook", cfg.LiveKit.WebhookSecret)
	assert.True(t, cfg.Storage.ForcePathStyle)
	assert.Equal(t, ProviderZego, cfg.Credentials.Provider)
	assert.Equal(t, 15*time.Minute, cfg.Credentials.TTL())
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("CREDENTIALS_PROVIDER", "agora")
	_, err := Load()
	require.Error(t, err)
}

func TestCredentialTTLIsBounded(t *testing.T) {
	assert.Equal(t, time.Hour, CredentialsConfig{TTLMinutes: 600}.TTL())
	assert.Equal(t, time.Hour, CredentialsConfig{TTLMinutes: 0}.TTL())
	assert.Equal(t, 30*time.Minute, CredentialsConfig{TTLMinutes: 30}.TTL())
}

func TestDSNFromComponents(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "1", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:1/d?sslmode=disable", c.DSN())
}
