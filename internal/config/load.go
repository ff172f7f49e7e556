package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml in the working
// directory and from environment variables with the LIFEDB_ prefix.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LIFEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values so a bare environment still yields a
// runnable configuration (the database URL remains required).
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// An empty default keeps the key visible to viper so AutomaticEnv can
	// populate it during Unmarshal; validation rejects the empty value.
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_dir", "migrations")

	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.poll_interval_ms", 1000)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.stale_after_seconds", 300)
	v.SetDefault("worker.stale_sweep_interval_seconds", 60)
	v.SetDefault("worker.rate_per_second", 5.0)
	v.SetDefault("worker.retry_base_seconds", 10)
	v.SetDefault("worker.retry_max_seconds", 21600)
	v.SetDefault("worker.retry_jitter_factor", 0.3)

	v.SetDefault("digest.concurrency", 3)
	v.SetDefault("digest.select_batch_size", 50)
	v.SetDefault("digest.sweep_interval_seconds", 30)
}
