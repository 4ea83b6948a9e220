package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173,https://community.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 64, cfg.WSSendBuffer)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.Equal(t, []string{"http://localhost:5173", "https://community.example"}, cfg.AllowedOrigins)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PERSIST_TIMEOUT", "0s")

	_, err := Load()
	assert.ErrorContains(t, err, "PERSIST_TIMEOUT")
}
