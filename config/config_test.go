package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	var c Config
	c.JWT = JWTConfig{
		SecretKey:        "secret",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenDays: 7,
	}
	c.Deletion.AdminCheckPolicy = "fail-open"
	return c
}

func TestInitConfig_EmbeddedDefaults(t *testing.T) {
	t.Setenv("APP_JWT_SECRETKEY", "from-env")

	cfg, err := InitConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.SecretKey)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenTTL())
	assert.Equal(t, "fail-open", cfg.Deletion.AdminCheckPolicy)
	assert.Equal(t, 10*time.Second, cfg.Services.Timeout)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing secret", func(t *testing.T) {
		c := validConfig()
		c.JWT.SecretKey = ""
		assert.Error(t, c.Validate())
	})

	t.Run("non-positive refresh days", func(t *testing.T) {
		c := validConfig()
		c.JWT.RefreshTokenDays = 0
		assert.Error(t, c.Validate())
	})

	t.Run("unknown admin check policy", func(t *testing.T) {
		c := validConfig()
		c.Deletion.AdminCheckPolicy = "fail-sometimes"
		assert.ErrorContains(t, c.Validate(), "adminCheckPolicy")
	})
}
