package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.test/v2")
	t.Setenv("LOGIN_MODE", "Federated")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TOKEN_SAFETY_MARGIN", "30s")
	t.Setenv("REFRESH_TIMEOUT", "5s")
	t.Setenv("TENANT_AUTO_SELECT", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://api.example.test/v2", cfg.APIBaseURL)
	require.Equal(t, LoginModeFederated, cfg.LoginMode)
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, 30*time.Second, cfg.TokenSafetyMargin)
	require.Equal(t, 5*time.Second, cfg.RefreshTimeout)
	require.False(t, cfg.TenantAutoSelect)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			APIBaseURL:     "http://localhost",
			APITimeout:     time.Second,
			RefreshTimeout: time.Second,
			LoginMode:      LoginModeAuto,
			StoreDriver:    StoreDriverFile,
			StoreFile:      "./state/session.json",
		}
	}

	t.Run("valid defaults", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := base()
		cfg.StoreDriver = "sqlite"
		require.ErrorContains(t, cfg.Validate(), "STORE_DRIVER")
	})

	t.Run("postgres requires database url", func(t *testing.T) {
		cfg := base()
		cfg.StoreDriver = StoreDriverPostgres
		require.ErrorContains(t, cfg.Validate(), "DATABASE_URL")
	})

	t.Run("bad login mode", func(t *testing.T) {
		cfg := base()
		cfg.LoginMode = "saml"
		require.ErrorContains(t, cfg.Validate(), "LOGIN_MODE")
	})
}

func TestLoadSandboxRequiresSecret(t *testing.T) {
	t.Setenv("SANDBOX_JWT_SECRET", "")
	_, err := LoadSandbox()
	require.ErrorContains(t, err, "SANDBOX_JWT_SECRET")

	t.Setenv("SANDBOX_JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	cfg, err := LoadSandbox()
	require.NoError(t, err)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}
