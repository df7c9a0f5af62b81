package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverFile     = "file"
	StoreDriverMemory   = "memory"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"

	LoginModeLegacy    = "legacy"
	LoginModeFederated = "federated"
	LoginModeAuto      = "auto"
)

type Config struct {
	APIBaseURL        string
	APITimeout        time.Duration
	APIRateLimitRPM   int
	LoginMode         string
	StoreDriver       string
	StoreFile         string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	StoreNamespace    string
	DatabaseURL       string
	DBMaxConns        int32
	DBMinConns        int32
	TokenSafetyMargin time.Duration
	RefreshTimeout    time.Duration
	TenantAutoSelect  bool
	LogLevel          slog.Level
}

type SandboxConfig struct {
	Port             string
	JWTSecret        string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	FixturesFile     string
	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	RequestTimeout   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:        getEnv("API_BASE_URL", "http://localhost:8081/api/v1"),
		APITimeout:        getDuration("API_TIMEOUT", 15*time.Second),
		APIRateLimitRPM:   getInt("API_RATE_LIMIT_RPM", 600),
		LoginMode:         strings.ToLower(getEnv("LOGIN_MODE", LoginModeAuto)),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFile)),
		StoreFile:         getEnv("STORE_FILE", "./state/session.json"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:           getInt("REDIS_DB", 0),
		StoreNamespace:    getEnv("STORE_NAMESPACE", "family-session"),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:        int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:        int32(getInt("DB_MIN_CONNS", 0)),
		TokenSafetyMargin: getDuration("TOKEN_SAFETY_MARGIN", 60*time.Second),
		RefreshTimeout:    getDuration("REFRESH_TIMEOUT", 20*time.Second),
		TenantAutoSelect:  getBool("TENANT_AUTO_SELECT", true),
		LogLevel:          getLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}

	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("REFRESH_TIMEOUT must be positive")
	}

	if c.TokenSafetyMargin < 0 {
		return fmt.Errorf("TOKEN_SAFETY_MARGIN cannot be negative")
	}

	switch c.LoginMode {
	case LoginModeLegacy, LoginModeFederated, LoginModeAuto:
	default:
		return fmt.Errorf("LOGIN_MODE must be one of legacy, federated, auto (got %q)", c.LoginMode)
	}

	switch c.StoreDriver {
	case StoreDriverFile:
		if strings.TrimSpace(c.StoreFile) == "" {
			return fmt.Errorf("STORE_FILE cannot be empty")
		}
	case StoreDriverMemory:
	case StoreDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	return nil
}

func LoadSandbox() (*SandboxConfig, error) {
	_ = godotenv.Load()

	cfg := &SandboxConfig{
		Port:             getEnv("SANDBOX_PORT", "8081"),
		JWTSecret:        strings.TrimSpace(os.Getenv("SANDBOX_JWT_SECRET")),
		AccessTTL:        getDuration("SANDBOX_ACCESS_TTL", time.Hour),
		RefreshTTL:       getDuration("SANDBOX_REFRESH_TTL", 720*time.Hour),
		FixturesFile:     getEnv("SANDBOX_FIXTURES", "./fixtures/sandbox.yaml"),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 30),
		RequestTimeout:   getDuration("REQUEST_TIMEOUT", 30*time.Second),
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("SANDBOX_JWT_SECRET is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("SANDBOX_ACCESS_TTL and SANDBOX_REFRESH_TTL must be positive")
	}

	return cfg, nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}

	return level
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
