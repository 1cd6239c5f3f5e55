// Package config loads service configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`
	FeedDir     string `yaml:"feedDir"` // CSV stop feed drop directory; empty = demo data

	Engine Engine `yaml:"engine"`
	Notify Notify `yaml:"notify"`
}

// Engine tunes the optimization engine.
type Engine struct {
	Workers              int     `yaml:"workers"`              // 0 = GOMAXPROCS
	DefaultBudgetSec     int     `yaml:"defaultBudgetSec"`     // full optimization default
	MinBudgetSec         int     `yaml:"minBudgetSec"`         // request floor
	MaxBudgetSec         int     `yaml:"maxBudgetSec"`         // request ceiling
	MaxAdaptationSec     int     `yaml:"maxAdaptationSec"`     // adaptation ceiling
	AdaptationRatePerSec float64 `yaml:"adaptationRatePerSec"` // per-org token rate
	AdaptationBurst      int     `yaml:"adaptationBurst"`
	MaxDateHorizonDays   int     `yaml:"maxDateHorizonDays"`
}

// Notify tunes the outbound delivery worker.
type Notify struct {
	MaxAttempts int `yaml:"maxAttempts"`
}

// Default returns the baked-in configuration.
func Default() Config {
	return Config{
		Addr: ":8080",
		Engine: Engine{
			Workers:              runtime.GOMAXPROCS(0),
			DefaultBudgetSec:     60,
			MinBudgetSec:         5,
			MaxBudgetSec:         300,
			MaxAdaptationSec:     30,
			AdaptationRatePerSec: 2,
			AdaptationBurst:      5,
			MaxDateHorizonDays:   30,
		},
		Notify: Notify{MaxAttempts: 10},
	}
}

// Load reads path (when non-empty and present) over the defaults, then
// applies environment overrides: PORT, DATABASE_URL, REDIS_URL,
// STOP_FEED_DIR, ENGINE_WORKERS.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("STOP_FEED_DIR"); v != "" {
		cfg.FeedDir = v
	}
	if v := os.Getenv("ENGINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.Workers = n
		}
	}
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = runtime.GOMAXPROCS(0)
	}
	return cfg, nil
}

// DefaultBudget returns the default optimization budget as a duration.
func (e Engine) DefaultBudget() time.Duration {
	return time.Duration(e.DefaultBudgetSec) * time.Second
}
