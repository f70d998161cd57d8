// Package config loads process configuration from a YAML file and
// BATCHPLANE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string

	// Admin HTTP surface
	HTTPPort       int
	RateLimit      float64 // requests/sec, 0 = unlimited
	RateLimitBurst int

	// Engine
	PollDelay time.Duration
	PollBatch int
	PoolSize  int

	// Cron fan-out
	FireDelay        time.Duration
	FireInitialDelay time.Duration

	// Runner resolution
	DefaultRoot        string
	StrictRegistration bool
	AllowedPackages    []string
	MappingFile        string

	// Observability
	OTELEndpoint string
}

// Load reads configuration. path may be empty, in which case batchplane.yaml
// in the current directory is tried; a missing config file is legal and
// leaves defaults plus environment overrides in effect.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("http.port", 6161)
	v.SetDefault("admin.rate-limit", 0.0)
	v.SetDefault("admin.rate-limit-burst", 10)
	v.SetDefault("scheduler.poll.delay-ms", 2000)
	v.SetDefault("scheduler.poll.batch", 16)
	v.SetDefault("scheduler.pool-size", 0)
	v.SetDefault("scheduler.fire.delay-ms", 10000)
	v.SetDefault("scheduler.fire.initial-delay-ms", 5000)
	v.SetDefault("scheduler.default-root", "/")
	v.SetDefault("runner.registration.strict", false)
	v.SetDefault("runner.allowed.packages", "batchplane/internal/runner")
	v.SetDefault("runner.mapping-file", "batch.properties")
	v.SetDefault("otel.endpoint", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("batchplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BATCHPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		DatabaseDriver:     v.GetString("database.driver"),
		DatabaseURL:        v.GetString("database.url"),
		HTTPPort:           v.GetInt("http.port"),
		RateLimit:          v.GetFloat64("admin.rate-limit"),
		RateLimitBurst:     v.GetInt("admin.rate-limit-burst"),
		PollDelay:          time.Duration(v.GetInt("scheduler.poll.delay-ms")) * time.Millisecond,
		PollBatch:          v.GetInt("scheduler.poll.batch"),
		PoolSize:           v.GetInt("scheduler.pool-size"),
		FireDelay:          time.Duration(v.GetInt("scheduler.fire.delay-ms")) * time.Millisecond,
		FireInitialDelay:   time.Duration(v.GetInt("scheduler.fire.initial-delay-ms")) * time.Millisecond,
		DefaultRoot:        v.GetString("scheduler.default-root"),
		StrictRegistration: v.GetBool("runner.registration.strict"),
		AllowedPackages:    splitList(v.GetString("runner.allowed.packages")),
		MappingFile:        v.GetString("runner.mapping-file"),
		OTELEndpoint:       v.GetString("otel.endpoint"),
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
