// Package config loads CoreBit's runtime configuration from the environment
// (with an optional .env file for local/dev parity), then lets the
// repository's persisted settings override individual keys at runtime.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/corebit/corebit-server/internal/repository"
)

// Config is the resolved set of environment-driven settings.
type Config struct {
	PollingInterval       time.Duration
	MaxProbeConcurrency   int
	OfflineThreshold      int
	MetricsRetention      time.Duration
	LicensingServerURL    string
	AdminRecoverySecret   string
	AdminRecoveryPassword string
}

func defaults() Config {
	return Config{
		PollingInterval:     30 * time.Second,
		MaxProbeConcurrency: 16,
		OfflineThreshold:    3,
		MetricsRetention:    72 * time.Hour,
		LicensingServerURL:  "https://license.corebit.example.com",
	}
}

// Load reads an optional .env file (missing is not an error, matching the
// teacher's config loader), then overlays environment variables onto the
// defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	if v, ok := os.LookupEnv("POLLING_INTERVAL_SECONDS"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("POLLING_INTERVAL_SECONDS: %w", err)
		}
		cfg.PollingInterval = time.Duration(secs) * time.Second
	}

	if v, ok := os.LookupEnv("MAX_PROBE_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("MAX_PROBE_CONCURRENCY: %w", err)
		}
		cfg.MaxProbeConcurrency = n
	}

	if v, ok := os.LookupEnv("OFFLINE_THRESHOLD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("OFFLINE_THRESHOLD: %w", err)
		}
		cfg.OfflineThreshold = n
	}

	if v, ok := os.LookupEnv("METRICS_RETENTION_HOURS"); ok {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("METRICS_RETENTION_HOURS: %w", err)
		}
		cfg.MetricsRetention = time.Duration(hours) * time.Hour
	}

	if v, ok := os.LookupEnv("LICENSING_SERVER_URL"); ok {
		cfg.LicensingServerURL = v
	}
	cfg.AdminRecoverySecret = os.Getenv("ADMIN_RECOVERY_SECRET")
	cfg.AdminRecoveryPassword = os.Getenv("ADMIN_RECOVERY_PASSWORD")

	return cfg, nil
}

// settingsOverrides are the keys a persisted repository row may override.
// Keys mirror the environment variable names, lowercased, for GET/PUT
// /api/settings/{key}.
var settingsOverrides = map[string]func(*Config, string) error{
	"polling_interval_seconds": func(c *Config, v string) error {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.PollingInterval = time.Duration(secs) * time.Second
		return nil
	},
	"max_probe_concurrency": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.MaxProbeConcurrency = n
		return nil
	},
	"offline_threshold": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.OfflineThreshold = n
		return nil
	},
	"metrics_retention_hours": func(c *Config, v string) error {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.MetricsRetention = time.Duration(hours) * time.Hour
		return nil
	},
}

// ApplySettings overlays persisted settings[key] rows onto cfg, returning a
// new Config. Unknown keys are ignored; a store-backed UI should validate
// keys itself before writing.
func ApplySettings(ctx context.Context, cfg Config, repo repository.SettingsRepository) (Config, error) {
	if repo == nil {
		return cfg, nil
	}
	settings, err := repo.ListSettings(ctx)
	if err != nil {
		return cfg, fmt.Errorf("list settings: %w", err)
	}

	for key, value := range settings {
		apply, ok := settingsOverrides[key]
		if !ok {
			continue
		}
		if err := apply(&cfg, value); err != nil {
			return cfg, fmt.Errorf("apply setting %q: %w", key, err)
		}
	}
	return cfg, nil
}
