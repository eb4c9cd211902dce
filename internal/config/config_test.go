package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/beaver_test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "https://beaver.app", cfg.WebBaseURL)
	})

	t.Run("reads overrides", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PORT", "9000")
		t.Setenv("WEB_BASE_URL", "https://track.example.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, ":9000", cfg.Addr())
		assert.Equal(t, "https://track.example.com", cfg.WebBaseURL)
	})

	t.Run("fails without DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestTrackingURL(t *testing.T) {
	cfg := &Config{WebBaseURL: "https://beaver.app/"}
	assert.Equal(t, "https://beaver.app/s/abc-123", cfg.TrackingURL("abc-123"))
}

func TestValidate(t *testing.T) {
	t.Run("production requires twilio credentials", func(t *testing.T) {
		cfg := &Config{}
		err := cfg.Validate(true)
		assert.Error(t, err)
	})

	t.Run("production passes with credentials", func(t *testing.T) {
		cfg := &Config{
			TwilioAccountSID:  "AC123",
			TwilioAuthToken:   "token",
			TwilioPhoneNumber: "+14155550100",
			RedisURL:          "rediss://prod:6379",
		}
		assert.NoError(t, cfg.Validate(true))
	})

	t.Run("development requires nothing", func(t *testing.T) {
		cfg := &Config{}
		assert.NoError(t, cfg.Validate(false))
	})
}
