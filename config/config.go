/*
Package config assembles the explicit runtime configuration.

PURPOSE:
  One struct carries everything the process needs: listen address,
  database path, the two provider credentials, sync scheduling and the
  optional Redis cache. It is built once in main and injected; no
  package reads the environment on its own.

SOURCES (highest wins):
  1. Command-line flags
  2. Environment variables (a .env file is loaded first when present)
  3. Defaults

SEE ALSO:
  - cmd/server/main.go: the only caller of Load
  - provider: consumes the Payroll/Timetrack sections
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the whole runtime configuration.
type Config struct {
	Port   int
	DBPath string

	Payroll   PayrollConfig
	Timetrack TimetrackConfig

	// SyncSchedule is a cron expression; empty disables periodic syncs.
	SyncSchedule string

	// RedisURL enables the plan-charge cache when non-empty.
	RedisURL string
	CacheTTL time.Duration
}

// PayrollConfig is the source-A provider's connection settings.
type PayrollConfig struct {
	BaseURL   string
	APIKey    string
	CompanyID string
}

// TimetrackConfig is the source-B provider's connection settings.
type TimetrackConfig struct {
	BaseURL string
	APIKey  string
}

// Load reads a .env file when one exists, then the environment. Flag
// values are applied by the caller on top of the result.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		Port:         envInt("PORT", 8080),
		DBPath:       envStr("DB_PATH", "plancharge.db"),
		SyncSchedule: envStr("SYNC_SCHEDULE", "0 */6 * * *"),
		RedisURL:     os.Getenv("REDIS_URL"),
		CacheTTL:     envDuration("CACHE_TTL", 5*time.Minute),
		Payroll: PayrollConfig{
			BaseURL:   envStr("PAYROLL_API_URL", "https://partner-api.payfit.com"),
			APIKey:    os.Getenv("PAYROLL_API_KEY"),
			CompanyID: os.Getenv("PAYROLL_COMPANY_ID"),
		},
		Timetrack: TimetrackConfig{
			BaseURL: envStr("TIMETRACK_API_URL", "https://api.gryzzly.io/v1"),
			APIKey:  os.Getenv("TIMETRACK_API_KEY"),
		},
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
