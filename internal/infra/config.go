package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Ledger backend selectors.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents application configuration loaded from environment
// variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	Port   string `env:"PORT" envDefault:"8080"`

	// Ledger store selection. The memory backend keeps no state across
	// restarts and exists for local runs and tests.
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"redis"`
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	DatabaseURL   string `env:"DATABASE_URL"`
	KeyPrefix     string `env:"LEDGER_KEY_PREFIX" envDefault:"sig:"`

	FreeQuotaLimit int    `env:"FREE_QUOTA_LIMIT" envDefault:"8"`
	CodeLength     int    `env:"REDEEM_CODE_LENGTH" envDefault:"12"`
	AdminToken     string `env:"ADMIN_TOKEN"`

	// Pre-shared code lists, one comma-separated list per credit tier, plus
	// an optional YAML file for arbitrary tiers.
	SeedCodesFile string   `env:"SEED_CODES_FILE"`
	SeedCodes5    []string `env:"SEED_CODES_5" envSeparator:","`
	SeedCodes10   []string `env:"SEED_CODES_10" envSeparator:","`
	SeedCodes50   []string `env:"SEED_CODES_50" envSeparator:","`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// LoadConfig parses configuration from the environment and validates the
// parts that cannot have a sane default.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.LedgerBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unsupported LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	return cfg, nil
}

// SeedLists returns the env-configured code lists keyed by credit tier.
func (c *Config) SeedLists() map[int][]string {
	lists := make(map[int][]string)
	for credits, codes := range map[int][]string{
		5:  c.SeedCodes5,
		10: c.SeedCodes10,
		50: c.SeedCodes50,
	} {
		if len(codes) > 0 {
			lists[credits] = codes
		}
	}
	return lists
}
