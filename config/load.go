package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally an
// uplink.yaml config file in the working directory. Environment variables
// take precedence over values from config files, and both take precedence
// over defaults. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.listen_addr", "localhost:8750")
	v.SetDefault("queue.tick_interval", "15s")
	v.SetDefault("queue.step_timeout", "2m")
	v.SetDefault("queue.retention", "24h")
	v.SetDefault("queue.handle_ttl", "1h")
	v.SetDefault("queue.max_artifact_bytes", 200*1024*1024)
	v.SetDefault("queue.backoff_base", "1s")
	v.SetDefault("queue.backoff_cap", "60s")
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "uplink-queue.json")
	v.SetDefault("log.level", "info")

	// Keys without meaningful defaults still need registering so
	// AutomaticEnv surfaces them during Unmarshal.
	v.SetDefault("store.url", "")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.trigger_url", "")
	v.SetDefault("auth.token", "")

	v.SetConfigName("uplink")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("UPLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
