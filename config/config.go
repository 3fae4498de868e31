package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the platform service
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Redis   RedisConfig
	Games   GamesConfig
	Roster  RosterConfig
	Storage AssetStorageConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Env            string
	GatewayToken   string
	AllowedOrigins string
}

// StoreConfig selects and configures persistence
type StoreConfig struct {
	Driver      string
	DatabaseURL string
}

// RedisConfig holds the dashboard stats cache configuration.
// An empty Address disables caching.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	StatsTTL time.Duration
}

// GamesConfig holds game identity settings
type GamesConfig struct {
	AliasesFile           string
	AliasBackfillInterval time.Duration
}

// RosterConfig holds the school-management sync settings.
// An empty BaseURL disables the worker.
type RosterConfig struct {
	BaseURL  string
	Path     string
	Interval time.Duration
}

// AssetStorageConfig holds Cloudflare R2 settings for game artwork.
type AssetStorageConfig struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough settings exist to talk to R2.
func (c AssetStorageConfig) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("PORT", 5200),
			Env:            getEnv("APP_ENV", "development"),
			GatewayToken:   getEnv("GAME_SERVICE_TOKEN", ""),
			AllowedOrigins: normalizeOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			StatsTTL: getEnvAsDuration("STATS_CACHE_TTL", 30*time.Second),
		},
		Games: GamesConfig{
			AliasesFile:           getEnv("GAME_ALIASES_FILE", "./config/game_aliases.yaml"),
			AliasBackfillInterval: getEnvAsDuration("ALIAS_BACKFILL_INTERVAL", 10*time.Minute),
		},
		Roster: RosterConfig{
			BaseURL:  getEnv("ROSTER_SYNC_URL", ""),
			Path:     getEnv("ROSTER_SYNC_PATH", "/api/v1/public/rosters"),
			Interval: getEnvAsDuration("ROSTER_SYNC_INTERVAL", time.Minute),
		},
		Storage: AssetStorageConfig{
			AccountID:       getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          getEnv("R2_BUCKET_NAME", ""),
			CDNBaseURL:      getEnv("CDN_BASE_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.GatewayToken == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN is required")
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Redis.StatsTTL < 0 {
		return fmt.Errorf("STATS_CACHE_TTL must not be negative")
	}

	if c.Games.AliasBackfillInterval <= 0 {
		return fmt.Errorf("ALIAS_BACKFILL_INTERVAL must be positive")
	}

	if c.Roster.BaseURL != "" && c.Roster.Interval <= 0 {
		return fmt.Errorf("ROSTER_SYNC_INTERVAL must be positive")
	}

	return nil
}

// normalizeOrigins trims each comma-separated origin for fiber's CORS config
func normalizeOrigins(raw string) string {
	list := strings.Split(raw, ",")
	out := make([]string, 0, len(list))
	for _, origin := range list {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return strings.Join(out, ",")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
