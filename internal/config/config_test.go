package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PAYMENT_DETAILS_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12*time.Hour, cfg.AutoReleaseWindow)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, [32]byte{}, cfg.PaymentDetailsKey)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadProductionOK(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 40))
	t.Setenv("PAYMENT_DETAILS_KEY", strings.Repeat("ab", 32))
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://tasknory.app, https://admin.tasknory.app")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://tasknory.app", "https://admin.tasknory.app"}, cfg.AllowedOrigins)
	assert.Equal(t, byte(0xab), cfg.PaymentDetailsKey[0])
}

func TestParseKeyRejectsWrongLength(t *testing.T) {
	_, err := parseKey("abcd")
	assert.Error(t, err)

	_, err = parseKey("zz")
	assert.Error(t, err)
}

func TestUnknownStorageDriver(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_DRIVER", "s3")

	_, err := Load()
	assert.Error(t, err)
}
